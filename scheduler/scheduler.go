// Package scheduler drives all bus traffic. One background goroutine owns
// the gateway: it polls each channel at its configured interval, applies the
// recovery policy on transport faults, executes queued actuator commands
// ahead of the rotation and publishes every outcome to the live state store.
package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/grovedash/grovedash/channel"
	"github.com/grovedash/grovedash/gateway"
	"github.com/grovedash/grovedash/health"
	"github.com/grovedash/grovedash/metrics"
	"github.com/grovedash/grovedash/reading"
	"github.com/grovedash/grovedash/state"
)

// A Config tunes the scheduler. Zero fields take the defaults.
type Config struct {
	// ReadTimeout bounds every individual bus operation.
	ReadTimeout time.Duration
	// CommandQueueSize is the capacity of the actuator command queue.
	CommandQueueSize int
}

func (c Config) withDefaults() Config {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 750 * time.Millisecond
	}
	if c.CommandQueueSize <= 0 {
		c.CommandQueueSize = 16
	}
	return c
}

// A Scheduler owns the bus and the poll rotation.
type Scheduler struct {
	cfg     Config
	gw      gateway.Gateway
	reg     *channel.Registry
	store   *state.Store
	tracker *health.Tracker
	metrics *metrics.Metrics
	clock   clock.Clock
	logger  golog.Logger

	cmdMu  sync.Mutex
	cmdCh  chan Command
	closed bool
	queue  dueQueue

	cancelCtx               context.Context
	cancelFunc              func()
	activeBackgroundWorkers sync.WaitGroup
	fatalOnce               sync.Once
	fatalCh                 chan struct{}
}

// New constructs a scheduler over the given collaborators. The metrics
// argument may be nil.
func New(
	gw gateway.Gateway,
	reg *channel.Registry,
	store *state.Store,
	tracker *health.Tracker,
	m *metrics.Metrics,
	c clock.Clock,
	cfg Config,
	logger golog.Logger,
) *Scheduler {
	cancelCtx, cancelFunc := context.WithCancel(context.Background())
	s := &Scheduler{
		cfg:        cfg.withDefaults(),
		gw:         gw,
		reg:        reg,
		store:      store,
		tracker:    tracker,
		metrics:    m,
		clock:      c,
		logger:     logger,
		cancelCtx:  cancelCtx,
		cancelFunc: cancelFunc,
		fatalCh:    make(chan struct{}),
	}
	s.cmdCh = make(chan Command, s.cfg.CommandQueueSize)
	return s
}

// Start launches the background poll loop.
func (s *Scheduler) Start() {
	s.activeBackgroundWorkers.Add(1)
	goutils.ManagedGo(func() {
		s.run(s.cancelCtx)
	}, s.activeBackgroundWorkers.Done)
}

// Fatal is closed if the gateway becomes unreachable entirely. Polling has
// halted by then; the process should surface its degraded mode to the user.
func (s *Scheduler) Fatal() <-chan struct{} {
	return s.fatalCh
}

// Close stops the loop, waits out the in-flight bus call and reports any
// queued commands as failed. It does not close the gateway; the gateway
// outlives the rotation that uses it.
func (s *Scheduler) Close() error {
	s.cancelFunc()
	s.activeBackgroundWorkers.Wait()
	s.cmdMu.Lock()
	s.closed = true
	s.cmdMu.Unlock()
	// the loop's own drain has run by now; catch anything submitted since
	s.failPending()
	return nil
}

// dueQueue orders channels by their next due time.
type dueItem struct {
	name string
	at   time.Time
}

type dueQueue []dueItem

func (q dueQueue) Len() int            { return len(q) }
func (q dueQueue) Less(i, j int) bool  { return q[i].at.Before(q[j].at) }
func (q dueQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *dueQueue) Push(x interface{}) { *q = append(*q, x.(dueItem)) }
func (q *dueQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.failPending()

	now := s.clock.Now()
	s.queue = s.queue[:0]
	heap.Init(&s.queue)
	for _, d := range s.reg.All() {
		heap.Push(&s.queue, dueItem{name: d.Name, at: now})
	}
	s.logger.Infow("poll loop started", "channels", s.reg.Len())

	for {
		// commands jump the rotation
		select {
		case <-ctx.Done():
			return
		case cmd := <-s.cmdCh:
			if !s.execute(ctx, cmd) {
				return
			}
			continue
		default:
		}

		next := s.queue[0]
		if wait := next.at.Sub(s.clock.Now()); wait > 0 {
			timer := s.clock.Timer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case cmd := <-s.cmdCh:
				timer.Stop()
				if !s.execute(ctx, cmd) {
					return
				}
				continue
			case <-timer.C:
			}
		}

		item := heap.Pop(&s.queue).(dueItem)
		d, ok := s.reg.Describe(item.name)
		if !ok {
			continue
		}

		if h := s.tracker.Get(d.Name); h.State == health.Suspended && s.clock.Now().Before(h.NextRetryAt) {
			// sit out the cooldown; one probe at the deadline
			heap.Push(&s.queue, dueItem{name: d.Name, at: h.NextRetryAt})
			continue
		}

		nextAt, ok := s.pollOnce(ctx, d)
		if !ok {
			return
		}
		heap.Push(&s.queue, dueItem{name: d.Name, at: nextAt})
	}
}

// pollOnce performs exactly one bus operation for the channel and returns
// when it should next run. ok is false when the loop must stop (shutdown or
// a dead gateway).
func (s *Scheduler) pollOnce(ctx context.Context, d channel.Descriptor) (time.Time, bool) {
	start := s.clock.Now()
	rctx, cancel := context.WithTimeout(ctx, s.cfg.ReadTimeout)
	sample, err := s.readRaw(rctx, d)
	cancel()
	dur := s.clock.Since(start)
	now := s.clock.Now()

	switch {
	case err == nil:
		r := reading.Decode(d, sample)
		s.store.Publish(r)
		s.tracker.RecordSuccess(d.Name)
		s.metrics.SetChannelState(d.Name, health.Healthy)
		outcome := metrics.OutcomeOk
		if r.Validity == reading.Invalid {
			outcome = metrics.OutcomeInvalid
		}
		s.metrics.ObservePoll(d.Name, outcome, dur)
		return now.Add(d.Interval), true
	case errors.Is(err, gateway.ErrNotReady):
		// minimum inter-read spacing; keep the previous value current
		s.store.Publish(reading.StaleReading(d, now))
		s.metrics.ObservePoll(d.Name, metrics.OutcomeStale, dur)
		return now.Add(d.Interval), true
	case errors.Is(err, gateway.ErrUnavailable):
		s.fatal(err)
		return time.Time{}, false
	case ctx.Err() != nil:
		return time.Time{}, false
	default:
		delay := s.tracker.RecordFault(d.Name, d.Interval, err)
		s.metrics.SetChannelState(d.Name, s.tracker.Get(d.Name).State)
		s.metrics.ObservePoll(d.Name, metrics.OutcomeFault, dur)
		return now.Add(delay), true
	}
}

// readRaw dispatches the one bus read appropriate to the channel's kind.
func (s *Scheduler) readRaw(ctx context.Context, d channel.Descriptor) (reading.RawSample, error) {
	at := s.clock.Now()
	sample := reading.RawSample{Channel: d.Name, At: at}
	var err error
	switch d.Kind {
	case channel.KindDigitalIn, channel.KindDigitalOut:
		var v int
		if v, err = s.gw.ReadDigital(ctx, d.Port()); err == nil {
			sample.Values = []float64{float64(v)}
		}
	case channel.KindAnalogIn:
		var v int
		if v, err = s.gw.ReadAnalog(ctx, d.Port()); err == nil {
			sample.Values = []float64{float64(v)}
		}
	case channel.KindUltrasonic:
		var v int
		if v, err = s.gw.ReadUltrasonic(ctx, d.Port()); err == nil {
			sample.Values = []float64{float64(v)}
		}
	case channel.KindDHT:
		var temp, hum float64
		if temp, hum, err = s.gw.ReadDHT(ctx, d.Port(), d.Decode.DHTModel); err == nil {
			sample.Values = []float64{temp, hum}
		}
	}
	sample.Duration = s.clock.Since(at)
	return sample, err
}

func (s *Scheduler) fatal(err error) {
	s.fatalOnce.Do(func() {
		s.logger.Errorw("bus gateway unavailable; polling halted", "error", err)
		close(s.fatalCh)
	})
}
