// Package state holds the latest reading per channel plus a short rolling
// history. It is the single source of truth the presentation layer reads;
// readers always observe complete readings and never block the poll loop.
package state

import (
	"sync"

	"github.com/edaniels/golog"

	"github.com/grovedash/grovedash/reading"
)

// DefaultHistoryCapacity bounds per-channel history when none is configured.
const DefaultHistoryCapacity = 32

// ring is a fixed-capacity FIFO of readings, oldest evicted first.
type ring struct {
	data   []reading.Reading
	pos    int
	filled bool
}

func newRing(capacity int) *ring {
	return &ring{data: make([]reading.Reading, capacity)}
}

func (r *ring) add(x reading.Reading) {
	r.data[r.pos] = x
	r.pos++
	if r.pos >= len(r.data) {
		r.pos = 0
		r.filled = true
	}
}

// snapshot returns the ring contents oldest first.
func (r *ring) snapshot() []reading.Reading {
	if !r.filled {
		return append([]reading.Reading{}, r.data[:r.pos]...)
	}
	out := make([]reading.Reading, 0, len(r.data))
	out = append(out, r.data[r.pos:]...)
	out = append(out, r.data[:r.pos]...)
	return out
}

// A Store is the live state store. All methods are safe for concurrent use;
// the poll loop is the sole publisher in practice.
type Store struct {
	mu       sync.RWMutex
	capacity int
	logger   golog.Logger
	current  map[string]reading.Reading
	history  map[string]*ring
	subs     map[string][]chan<- reading.Reading
}

// NewStore constructs a store with the given per-channel history capacity.
func NewStore(capacity int, logger golog.Logger) *Store {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &Store{
		capacity: capacity,
		logger:   logger,
		current:  map[string]reading.Reading{},
		history:  map[string]*ring{},
		subs:     map[string][]chan<- reading.Reading{},
	}
}

// Publish atomically replaces the channel's current reading, appends to its
// history and notifies subscribers. A stale reading never displaces a valid
// current one; the last known-good value stays visible while the history and
// subscribers still see the stale attempt.
func (s *Store) Publish(r reading.Reading) {
	s.mu.Lock()
	h, ok := s.history[r.Channel]
	if !ok {
		h = newRing(s.capacity)
		s.history[r.Channel] = h
	}
	h.add(r)
	if cur, ok := s.current[r.Channel]; !ok || r.Validity != reading.Stale || cur.Validity != reading.Ok {
		s.current[r.Channel] = r
	}
	// copy under the lock: Subscribe and Unsubscribe mutate the backing array
	subs := append([]chan<- reading.Reading(nil), s.subs[r.Channel]...)
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- r:
		default:
			// slow consumer; the store itself is the fallback
			s.logger.Debugw("dropped reading notification", "channel", r.Channel)
		}
	}
}

// Current returns the latest reading for the channel, or the never-read
// sentinel before the first poll.
func (s *Store) Current(name string) reading.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.current[name]
	if !ok {
		return reading.Never(name)
	}
	return r
}

// History returns the channel's rolling history, oldest first.
func (s *Store) History(name string) []reading.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.history[name]
	if !ok {
		return nil
	}
	return h.snapshot()
}

// Subscribe registers ch for notifications about the named channel. Sends
// never block: a full channel just misses that notification.
func (s *Store) Subscribe(name string, ch chan<- reading.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[name] = append(s.subs[name], ch)
}

// Unsubscribe removes a previously registered channel.
func (s *Store) Unsubscribe(name string, ch chan<- reading.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := s.subs[name]
	for i, c := range subs {
		if c == ch {
			s.subs[name] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}
