package tui

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/edaniels/golog"
	"go.viam.com/test"

	"github.com/grovedash/grovedash/channel"
	"github.com/grovedash/grovedash/gateway"
	"github.com/grovedash/grovedash/health"
	"github.com/grovedash/grovedash/reading"
	"github.com/grovedash/grovedash/scheduler"
	"github.com/grovedash/grovedash/state"
)

func newTestModel(t *testing.T) (Model, *state.Store) {
	t.Helper()
	logger := golog.NewTestLogger(t)
	reg, err := channel.NewRegistry(channel.DefaultConfig().Descriptors())
	test.That(t, err, test.ShouldBeNil)

	store := state.NewStore(8, logger)
	tracker := health.NewTracker(health.Policy{}, clock.New(), logger)
	sched := scheduler.New(gateway.NewFakeGateway(), reg, store, tracker, nil, clock.New(), scheduler.Config{}, logger)
	return New(store, sched, reg, tracker), store
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func update(m Model, msg tea.Msg) Model {
	next, _ := m.Update(msg)
	return next.(Model)
}

func TestViewListsChannels(t *testing.T) {
	m, store := newTestModel(t)

	out := m.View()
	test.That(t, out, test.ShouldContainSubstring, "CHANNEL")
	for _, name := range []string{"climate", "button", "relay", "ledbar", "sonar", "rotary", "sound", "light"} {
		test.That(t, out, test.ShouldContainSubstring, name)
	}

	now := time.Now()
	store.Publish(reading.Reading{
		Channel: "climate", Kind: channel.KindDHT, At: now,
		Validity: reading.Ok, Temperature: 23.5, Humidity: 48,
	})
	store.Publish(reading.Reading{
		Channel: "sonar", Kind: channel.KindUltrasonic, At: now,
		Validity: reading.Ok, Value: 100,
	})
	store.Publish(reading.Reading{
		Channel: "relay", Kind: channel.KindDigitalOut, At: now,
		Validity: reading.Ok, Bool: true, Value: 1,
	})

	m = update(m, tickMsg(now))
	out = m.View()
	test.That(t, out, test.ShouldContainSubstring, "23.5 C")
	test.That(t, out, test.ShouldContainSubstring, "48% RH")
	test.That(t, out, test.ShouldContainSubstring, "100.0 cm")
	test.That(t, out, test.ShouldContainSubstring, "ON")
}

func TestTickSchedulesNextTick(t *testing.T) {
	m, _ := newTestModel(t)
	_, cmd := m.Update(tickMsg(time.Now()))
	test.That(t, cmd, test.ShouldNotBeNil)
}

func TestQuitKeys(t *testing.T) {
	m, _ := newTestModel(t)
	for _, msg := range []tea.Msg{keyMsg("q"), tea.KeyMsg{Type: tea.KeyCtrlC}} {
		_, cmd := m.Update(msg)
		test.That(t, cmd, test.ShouldNotBeNil)
		test.That(t, cmd(), test.ShouldHaveSameTypeAs, tea.QuitMsg{})
	}
}

func TestRelayToggle(t *testing.T) {
	m, store := newTestModel(t)

	m = update(m, keyMsg("r"))
	test.That(t, m.status, test.ShouldEqual, "relay on")

	// with the relay visibly on, the same key turns it off
	store.Publish(reading.Reading{
		Channel: "relay", Kind: channel.KindDigitalOut, At: time.Now(),
		Validity: reading.Ok, Bool: true, Value: 1,
	})
	m = update(m, keyMsg("r"))
	test.That(t, m.status, test.ShouldEqual, "relay off")
}

func TestLedBarLevelEntry(t *testing.T) {
	m, _ := newTestModel(t)

	m = update(m, keyMsg("l"))
	test.That(t, m.typingLevel, test.ShouldBeTrue)
	m = update(m, keyMsg("7"))
	m = update(m, keyMsg("enter"))
	test.That(t, m.typingLevel, test.ShouldBeFalse)
	test.That(t, m.status, test.ShouldEqual, "ledbar set to 7")
}

func TestLedBarLevelEntryRejected(t *testing.T) {
	m, _ := newTestModel(t)

	// out-of-range levels are rejected before any bus traffic
	m = update(m, keyMsg("l"))
	m = update(m, keyMsg("9"))
	m = update(m, keyMsg("9"))
	m = update(m, keyMsg("enter"))
	test.That(t, m.status, test.ShouldContainSubstring, "outside legal domain")

	m = update(m, keyMsg("l"))
	m = update(m, keyMsg("enter"))
	test.That(t, m.status, test.ShouldEqual, "ledbar: not a number")

	// esc abandons the entry without a command
	m = update(m, keyMsg("l"))
	m = update(m, keyMsg("esc"))
	test.That(t, m.typingLevel, test.ShouldBeFalse)
}

func newCustomModel(t *testing.T, descs []channel.Descriptor) Model {
	t.Helper()
	logger := golog.NewTestLogger(t)
	reg, err := channel.NewRegistry(descs)
	test.That(t, err, test.ShouldBeNil)

	store := state.NewStore(8, logger)
	tracker := health.NewTracker(health.Policy{}, clock.New(), logger)
	sched := scheduler.New(gateway.NewFakeGateway(), reg, store, tracker, nil, clock.New(), scheduler.Config{}, logger)
	return New(store, sched, reg, tracker)
}

func TestOutputKeysFollowRegistry(t *testing.T) {
	// renamed outputs in a custom channel table still get the key bindings
	m := newCustomModel(t, []channel.Descriptor{
		{Name: "pump", Pin: "D4", Kind: channel.KindDigitalOut, Interval: time.Second, Decode: channel.DecodeRule{MaxLevel: 1}},
		{Name: "dimmer", Pin: "D5", Kind: channel.KindDigitalOut, Interval: time.Second, Decode: channel.DecodeRule{MaxLevel: 8}},
	})

	m = update(m, keyMsg("r"))
	test.That(t, m.status, test.ShouldEqual, "pump on")

	m = update(m, keyMsg("l"))
	test.That(t, m.typingLevel, test.ShouldBeTrue)
	m = update(m, keyMsg("5"))
	m = update(m, keyMsg("enter"))
	test.That(t, m.status, test.ShouldEqual, "dimmer set to 5")

	out := m.View()
	test.That(t, out, test.ShouldContainSubstring, "r: toggle pump")
	test.That(t, out, test.ShouldContainSubstring, "l: set dimmer")
}

func TestOutputKeysWithoutOutputs(t *testing.T) {
	m := newCustomModel(t, []channel.Descriptor{
		{Name: "button", Pin: "D3", Kind: channel.KindDigitalIn, Interval: time.Second},
	})

	m = update(m, keyMsg("r"))
	test.That(t, m.status, test.ShouldEqual, "no on/off output configured")

	m = update(m, keyMsg("l"))
	test.That(t, m.typingLevel, test.ShouldBeFalse)
	test.That(t, m.status, test.ShouldEqual, "no leveled output configured")

	out := m.View()
	test.That(t, out, test.ShouldNotContainSubstring, "r: toggle")
	test.That(t, out, test.ShouldNotContainSubstring, "l: set")
}

func TestFatalBanner(t *testing.T) {
	m, _ := newTestModel(t)
	m = update(m, FatalMsg{})
	test.That(t, m.View(), test.ShouldContainSubstring, "BUS UNAVAILABLE")
}
