package state

import (
	"sync"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"go.viam.com/test"

	"github.com/grovedash/grovedash/channel"
	"github.com/grovedash/grovedash/reading"
)

func okReading(name string, value float64, at time.Time) reading.Reading {
	return reading.Reading{
		Channel:  name,
		Kind:     channel.KindAnalogIn,
		At:       at,
		Validity: reading.Ok,
		Value:    value,
	}
}

func TestStoreCurrent(t *testing.T) {
	store := NewStore(4, golog.NewTestLogger(t))

	// never polled yet
	r := store.Current("rotary")
	test.That(t, r.Validity, test.ShouldEqual, reading.Unavailable)
	test.That(t, r.At.IsZero(), test.ShouldBeTrue)

	now := time.Now()
	store.Publish(okReading("rotary", 120, now))
	r = store.Current("rotary")
	test.That(t, r.Validity, test.ShouldEqual, reading.Ok)
	test.That(t, r.Value, test.ShouldEqual, 120.0)
	test.That(t, r.At, test.ShouldEqual, now)
}

func TestStoreHistoryEviction(t *testing.T) {
	store := NewStore(4, golog.NewTestLogger(t))
	now := time.Now()
	for i := 0; i < 7; i++ {
		store.Publish(okReading("rotary", float64(i), now.Add(time.Duration(i)*time.Second)))
	}

	hist := store.History("rotary")
	test.That(t, hist, test.ShouldHaveLength, 4)
	// oldest first, oldest evicted
	for i, r := range hist {
		test.That(t, r.Value, test.ShouldEqual, float64(i+3))
	}

	test.That(t, store.History("unknown"), test.ShouldBeNil)
}

func TestStoreStaleNeverDisplacesOk(t *testing.T) {
	store := NewStore(4, golog.NewTestLogger(t))
	now := time.Now()
	climate := channel.Descriptor{Name: "climate", Pin: "D2", Kind: channel.KindDHT, Interval: 2 * time.Second}

	good := reading.Reading{
		Channel: "climate", Kind: channel.KindDHT, At: now,
		Validity: reading.Ok, Temperature: 23.5, Humidity: 48,
	}
	store.Publish(good)
	store.Publish(reading.StaleReading(climate, now.Add(2*time.Second)))

	// the last good value stays current
	cur := store.Current("climate")
	test.That(t, cur.Validity, test.ShouldEqual, reading.Ok)
	test.That(t, cur.Temperature, test.ShouldEqual, 23.5)
	test.That(t, cur.At, test.ShouldEqual, now)

	// but the stale attempt is on the record
	hist := store.History("climate")
	test.That(t, hist, test.ShouldHaveLength, 2)
	test.That(t, hist[1].Validity, test.ShouldEqual, reading.Stale)

	// anything other than ok does get displaced by stale
	store.Publish(reading.UnavailableReading(climate, now.Add(3*time.Second)))
	test.That(t, store.Current("climate").Validity, test.ShouldEqual, reading.Unavailable)
	store.Publish(reading.StaleReading(climate, now.Add(4*time.Second)))
	test.That(t, store.Current("climate").Validity, test.ShouldEqual, reading.Stale)
}

func TestStoreSubscribe(t *testing.T) {
	store := NewStore(4, golog.NewTestLogger(t))
	sub := make(chan reading.Reading, 1)
	store.Subscribe("button", sub)

	now := time.Now()
	store.Publish(okReading("button", 1, now))
	select {
	case r := <-sub:
		test.That(t, r.Value, test.ShouldEqual, 1.0)
	default:
		t.Fatal("expected a notification")
	}

	// other channels do not notify this subscriber
	store.Publish(okReading("rotary", 5, now))
	select {
	case <-sub:
		t.Fatal("unexpected notification")
	default:
	}

	store.Unsubscribe("button", sub)
	store.Publish(okReading("button", 0, now))
	select {
	case <-sub:
		t.Fatal("unsubscribed but still notified")
	default:
	}
}

func TestStoreSubscribeNeverBlocks(t *testing.T) {
	store := NewStore(4, golog.NewTestLogger(t))
	full := make(chan reading.Reading) // no capacity, no reader
	store.Subscribe("button", full)

	done := make(chan struct{})
	go func() {
		store.Publish(okReading("button", 1, time.Now()))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	// the dropped notification is still observable through the store
	test.That(t, store.Current("button").Value, test.ShouldEqual, 1.0)
}

func TestStoreSubscribeChurnDuringPublish(t *testing.T) {
	store := NewStore(4, golog.NewTestLogger(t))
	now := time.Now()

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					store.Publish(okReading("button", 1, now))
				}
			}
		}()
	}

	// churn the subscriber list against the publishers; the race detector
	// trips here if Publish shares the list's backing array with the mutators
	for i := 0; i < 500; i++ {
		sub := make(chan reading.Reading, 1)
		store.Subscribe("button", sub)
		store.Unsubscribe("button", sub)
	}
	close(done)
	wg.Wait()

	test.That(t, store.Current("button").Value, test.ShouldEqual, 1.0)
}

func TestStoreDefaultCapacity(t *testing.T) {
	store := NewStore(0, golog.NewTestLogger(t))
	now := time.Now()
	for i := 0; i < DefaultHistoryCapacity+5; i++ {
		store.Publish(okReading("c", float64(i), now))
	}
	test.That(t, store.History("c"), test.ShouldHaveLength, DefaultHistoryCapacity)
}
