// Package tui is the terminal dashboard over the live state store. It only
// ever reads store snapshots and submits actuator commands; the bus belongs
// to the scheduler.
package tui

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/grovedash/grovedash/channel"
	"github.com/grovedash/grovedash/health"
	"github.com/grovedash/grovedash/reading"
	"github.com/grovedash/grovedash/scheduler"
	"github.com/grovedash/grovedash/state"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#2E5E4E")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)

	nameStyle     = lipgloss.NewStyle().Width(10).Padding(0, 1)
	pinStyle      = lipgloss.NewStyle().Width(5).Padding(0, 1)
	valueStyle    = lipgloss.NewStyle().Width(22).Padding(0, 1)
	validityStyle = lipgloss.NewStyle().Width(13).Padding(0, 1)
	ageStyle      = lipgloss.NewStyle().Width(8).Align(lipgloss.Right).Padding(0, 1)

	okStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	staleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	badStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	suspendedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("201")).Bold(true)

	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	fatalStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FAFAFA")).Background(lipgloss.Color("196")).Bold(true).Padding(0, 1)
)

type tickMsg time.Time

// FatalMsg tells the dashboard the bus gateway is gone and polling halted.
type FatalMsg struct{}

// A Model is the bubbletea model for the dashboard.
type Model struct {
	store   *state.Store
	sched   *scheduler.Scheduler
	reg     *channel.Registry
	tracker *health.Tracker

	// output channels resolved from the registry: the first plain on/off
	// output and the first leveled one
	toggleName string
	levelName  string
	levelMax   int

	levelInput  textinput.Model
	typingLevel bool
	status      string
	fatal       bool
	now         time.Time
}

// New constructs the dashboard model.
func New(store *state.Store, sched *scheduler.Scheduler, reg *channel.Registry, tracker *health.Tracker) Model {
	m := Model{
		store:   store,
		sched:   sched,
		reg:     reg,
		tracker: tracker,
		now:     time.Now(),
	}
	for _, d := range reg.All() {
		if !d.Kind.Output() {
			continue
		}
		if d.Decode.MaxLevel > 1 {
			if m.levelName == "" {
				m.levelName = d.Name
				m.levelMax = d.Decode.MaxLevel
			}
		} else if m.toggleName == "" {
			m.toggleName = d.Name
		}
	}

	ti := textinput.New()
	ti.Placeholder = fmt.Sprintf("0-%d", m.levelMax)
	ti.CharLimit = 3
	ti.Width = 6
	m.levelInput = ti
	return m
}

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init starts the refresh ticker.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles ticks, key bindings and the fatal signal.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.now = time.Time(msg)
		return m, tickCmd()
	case FatalMsg:
		m.fatal = true
		return m, nil
	case tea.KeyMsg:
		if m.typingLevel {
			return m.updateLevelInput(msg)
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			m.status = m.toggleOutput()
			return m, nil
		case "l":
			if m.levelName == "" {
				m.status = "no leveled output configured"
				return m, nil
			}
			m.typingLevel = true
			m.levelInput.SetValue("")
			m.levelInput.Focus()
			return m, textinput.Blink
		}
	}
	return m, nil
}

func (m Model) updateLevelInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.typingLevel = false
		m.levelInput.Blur()
		return m, nil
	case "enter":
		m.typingLevel = false
		m.levelInput.Blur()
		level, err := strconv.Atoi(m.levelInput.Value())
		if err != nil {
			m.status = m.levelName + ": not a number"
			return m, nil
		}
		if err := m.sched.Submit(scheduler.Command{Channel: m.levelName, Value: level}); err != nil {
			m.status = err.Error()
		} else {
			m.status = fmt.Sprintf("%s set to %d", m.levelName, level)
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.levelInput, cmd = m.levelInput.Update(msg)
	return m, cmd
}

func (m Model) toggleOutput() string {
	if m.toggleName == "" {
		return "no on/off output configured"
	}
	cur := m.store.Current(m.toggleName)
	next := 1
	if cur.Validity == reading.Ok && cur.Bool {
		next = 0
	}
	if err := m.sched.Submit(scheduler.Command{Channel: m.toggleName, Value: next}); err != nil {
		return err.Error()
	}
	if next == 1 {
		return m.toggleName + " on"
	}
	return m.toggleName + " off"
}

// View renders the channel table.
func (m Model) View() string {
	s := titleStyle.Render("grovedash") + "\n\n"
	if m.fatal {
		s += fatalStyle.Render("BUS UNAVAILABLE - polling halted") + "\n\n"
	}

	s += headerStyle.Render(
		nameStyle.Render("CHANNEL")+
			pinStyle.Render("PIN")+
			valueStyle.Render("VALUE")+
			validityStyle.Render("STATE")+
			ageStyle.Render("AGE")) + "\n"

	for _, d := range m.reg.All() {
		r := m.store.Current(d.Name)
		h := m.tracker.Get(d.Name)
		s += nameStyle.Render(d.Name) +
			pinStyle.Render(d.Pin) +
			valueStyle.Render(formatValue(d, r)) +
			validityStyle.Render(formatState(r, h)) +
			ageStyle.Render(formatAge(m.now, r)) + "\n"
	}

	if m.typingLevel {
		s += "\n" + m.levelName + " level: " + m.levelInput.View() + "\n"
	}
	if m.status != "" {
		s += "\n" + m.status + "\n"
	}
	help := "q: quit"
	if m.levelName != "" {
		help = "l: set " + m.levelName + "  " + help
	}
	if m.toggleName != "" {
		help = "r: toggle " + m.toggleName + "  " + help
	}
	s += "\n" + helpStyle.Render(help) + "\n"
	return s
}

func formatValue(d channel.Descriptor, r reading.Reading) string {
	if r.At.IsZero() {
		return "-"
	}
	switch d.Kind {
	case channel.KindDHT:
		if r.Validity != reading.Ok {
			return "-"
		}
		return fmt.Sprintf("%.1f C  %.0f%% RH", r.Temperature, r.Humidity)
	case channel.KindDigitalIn, channel.KindDigitalOut:
		if d.Decode.MaxLevel > 1 {
			return fmt.Sprintf("level %.0f", r.Value)
		}
		if r.Bool {
			return "ON"
		}
		return "OFF"
	case channel.KindUltrasonic:
		return fmt.Sprintf("%.1f cm", r.Value)
	default:
		return fmt.Sprintf("%.1f", r.Value)
	}
}

func formatState(r reading.Reading, h health.ChannelHealth) string {
	if h.State == health.Suspended {
		return suspendedStyle.Render("suspended")
	}
	switch r.Validity {
	case reading.Ok:
		return okStyle.Render(string(r.Validity))
	case reading.Stale:
		return staleStyle.Render(string(r.Validity))
	default:
		return badStyle.Render(string(r.Validity))
	}
}

func formatAge(now time.Time, r reading.Reading) string {
	if r.At.IsZero() {
		return "-"
	}
	age := now.Sub(r.At)
	if age < 0 {
		age = 0
	}
	return age.Truncate(100 * time.Millisecond).String()
}
