// Package health tracks per-channel bus fault streaks and decides when a
// misbehaving channel should back off or leave the poll rotation entirely.
// One bad sensor on a shared bus must not starve the others or retry-storm
// the transport.
package health

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
)

// State is the recovery state of one channel.
type State string

// Transitions are monotonic within a failure streak
// (healthy -> degraded -> suspended) and reset to healthy only on success.
const (
	Healthy   = State("healthy")
	Degraded  = State("degraded")
	Suspended = State("suspended")
)

// A Policy bounds the retry behavior. Zero fields take the defaults.
type Policy struct {
	// FailureThreshold is how many consecutive transport faults suspend a
	// channel.
	FailureThreshold int
	// BackoffCap limits the exponential backoff between degraded retries.
	BackoffCap time.Duration
	// Cooldown is how long a suspended channel sits out before one recovery
	// probe.
	Cooldown time.Duration
}

// DefaultPolicy returns the stock recovery policy.
func DefaultPolicy() Policy {
	return Policy{
		FailureThreshold: 3,
		BackoffCap:       5 * time.Second,
		Cooldown:         30 * time.Second,
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.FailureThreshold <= 0 {
		p.FailureThreshold = def.FailureThreshold
	}
	if p.BackoffCap <= 0 {
		p.BackoffCap = def.BackoffCap
	}
	if p.Cooldown <= 0 {
		p.Cooldown = def.Cooldown
	}
	return p
}

// ChannelHealth is a snapshot of one channel's recovery state.
type ChannelHealth struct {
	State               State
	ConsecutiveFailures int
	NextRetryAt         time.Time
}

// A Tracker owns the health state of every channel. Only the scheduler
// mutates it; anyone may snapshot it.
type Tracker struct {
	mu       sync.Mutex
	policy   Policy
	clock    clock.Clock
	logger   golog.Logger
	channels map[string]*ChannelHealth
}

// NewTracker constructs a tracker with the given policy.
func NewTracker(policy Policy, c clock.Clock, logger golog.Logger) *Tracker {
	return &Tracker{
		policy:   policy.withDefaults(),
		clock:    c,
		logger:   logger,
		channels: map[string]*ChannelHealth{},
	}
}

// get returns the tracked entry, creating a healthy one on first sight.
// Caller must hold mu.
func (t *Tracker) get(name string) *ChannelHealth {
	ch, ok := t.channels[name]
	if !ok {
		ch = &ChannelHealth{State: Healthy}
		t.channels[name] = ch
	}
	return ch
}

// Get returns a copy of the channel's current health.
func (t *Tracker) Get(name string) ChannelHealth {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.get(name)
}

// RecordSuccess resets the channel to healthy.
func (t *Tracker) RecordSuccess(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := t.get(name)
	if ch.State != Healthy {
		t.logger.Infow("channel recovered", "channel", name, "was", string(ch.State))
	}
	ch.State = Healthy
	ch.ConsecutiveFailures = 0
	ch.NextRetryAt = time.Time{}
}

// RecordFault notes one transport fault and returns how long the channel
// should stay off the bus: capped exponential backoff while degraded, the
// full cooldown once the streak reaches the suspension threshold.
func (t *Tracker) RecordFault(name string, base time.Duration, err error) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := t.get(name)
	ch.ConsecutiveFailures++
	now := t.clock.Now()

	if ch.ConsecutiveFailures >= t.policy.FailureThreshold {
		if ch.State != Suspended {
			t.logger.Warnw("channel suspended",
				"channel", name,
				"consecutive_failures", ch.ConsecutiveFailures,
				"cooldown", t.policy.Cooldown,
				"error", err)
		}
		ch.State = Suspended
		ch.NextRetryAt = now.Add(t.policy.Cooldown)
		return t.policy.Cooldown
	}

	ch.State = Degraded
	// doubling stops at the cap so a long streak cannot overflow the delay
	delay := base
	for i := 0; i < ch.ConsecutiveFailures && delay < t.policy.BackoffCap; i++ {
		delay *= 2
	}
	if delay > t.policy.BackoffCap {
		delay = t.policy.BackoffCap
	}
	ch.NextRetryAt = now.Add(delay)
	t.logger.Debugw("channel degraded",
		"channel", name,
		"consecutive_failures", ch.ConsecutiveFailures,
		"retry_in", delay,
		"error", err)
	return delay
}

// ShouldAttempt reports whether the channel may hit the bus right now. Only a
// suspended channel before its retry deadline is excluded.
func (t *Tracker) ShouldAttempt(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := t.get(name)
	if ch.State != Suspended {
		return true
	}
	return !t.clock.Now().Before(ch.NextRetryAt)
}
