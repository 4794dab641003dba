package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/grovedash/grovedash/gateway"
	"github.com/grovedash/grovedash/metrics"
	"github.com/grovedash/grovedash/reading"
)

// A Command asks an output channel to take a value. It is consumed exactly
// once.
type Command struct {
	Channel  string
	Value    int
	IssuedAt time.Time
}

// An InvalidCommandError rejects a command before it reaches the bus.
type InvalidCommandError struct {
	Channel string
	Reason  string
}

func (e *InvalidCommandError) Error() string {
	return fmt.Sprintf("invalid command for channel %q: %s", e.Channel, e.Reason)
}

// ErrCommandQueueFull means the sink is saturated; the caller should retry
// rather than block the UI.
var ErrCommandQueueFull = errors.New("command queue full")

// ErrClosed means the scheduler has shut down.
var ErrClosed = errors.New("scheduler is closed")

// Submit validates the command against its channel's descriptor and queues
// it. Invalid commands fail here, synchronously, without any bus traffic.
// Valid commands run ahead of routine polls on the loop's next cycle.
func (s *Scheduler) Submit(cmd Command) error {
	d, ok := s.reg.Describe(cmd.Channel)
	if !ok {
		s.metrics.ObserveCommand(metrics.CommandRejected)
		return &InvalidCommandError{Channel: cmd.Channel, Reason: "no such channel"}
	}
	if !d.Kind.Output() {
		s.metrics.ObserveCommand(metrics.CommandRejected)
		return &InvalidCommandError{Channel: cmd.Channel, Reason: fmt.Sprintf("kind %s is not writable", d.Kind)}
	}
	if cmd.Value < 0 || cmd.Value > d.Decode.MaxLevel {
		s.metrics.ObserveCommand(metrics.CommandRejected)
		return &InvalidCommandError{
			Channel: cmd.Channel,
			Reason:  fmt.Sprintf("value %d outside legal domain 0..%d", cmd.Value, d.Decode.MaxLevel),
		}
	}
	if cmd.IssuedAt.IsZero() {
		cmd.IssuedAt = s.clock.Now()
	}

	// acceptance happens under cmdMu so a command can never slip in between
	// Close's final drain and the closed mark: everything accepted is either
	// executed by the loop or reported failed at shutdown
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	if s.closed {
		return ErrClosed
	}
	select {
	case s.cmdCh <- cmd:
		s.metrics.ObserveCommand(metrics.CommandAccepted)
		return nil
	default:
		return ErrCommandQueueFull
	}
}

// execute performs the command's single bus write and publishes the outcome
// as a reading, so the actuator's visible state is never silently stale.
// ok is false when the loop must stop.
func (s *Scheduler) execute(ctx context.Context, cmd Command) bool {
	d, ok := s.reg.Describe(cmd.Channel)
	if !ok {
		return true
	}
	wctx, cancel := context.WithTimeout(ctx, s.cfg.ReadTimeout)
	err := s.gw.WriteDigital(wctx, d.Port(), cmd.Value)
	cancel()
	now := s.clock.Now()

	switch {
	case err == nil:
		s.store.Publish(reading.Reading{
			Channel:  d.Name,
			Kind:     d.Kind,
			At:       now,
			Validity: reading.Ok,
			Bool:     cmd.Value > 0,
			Value:    float64(cmd.Value),
		})
		s.tracker.RecordSuccess(d.Name)
		s.metrics.SetChannelState(d.Name, s.tracker.Get(d.Name).State)
		return true
	case errors.Is(err, gateway.ErrUnavailable):
		s.store.Publish(reading.UnavailableReading(d, now))
		s.metrics.ObserveCommand(metrics.CommandFailed)
		s.fatal(err)
		return false
	case ctx.Err() != nil:
		s.store.Publish(reading.UnavailableReading(d, now))
		s.metrics.ObserveCommand(metrics.CommandFailed)
		return false
	default:
		s.logger.Warnw("actuator command failed", "channel", d.Name, "value", cmd.Value, "error", err)
		s.tracker.RecordFault(d.Name, d.Interval, err)
		s.metrics.SetChannelState(d.Name, s.tracker.Get(d.Name).State)
		s.metrics.ObserveCommand(metrics.CommandFailed)
		s.store.Publish(reading.UnavailableReading(d, now))
		return true
	}
}

// failPending reports every queued-but-unsent command as failed so shutdown
// leaves nothing in doubt.
func (s *Scheduler) failPending() {
	for {
		select {
		case cmd := <-s.cmdCh:
			if d, ok := s.reg.Describe(cmd.Channel); ok {
				s.store.Publish(reading.UnavailableReading(d, s.clock.Now()))
			}
			s.metrics.ObserveCommand(metrics.CommandFailed)
			s.logger.Warnw("command abandoned at shutdown", "channel", cmd.Channel, "value", cmd.Value)
		default:
			return
		}
	}
}
