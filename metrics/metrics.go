// Package metrics instruments the polling core with prometheus collectors.
// Collectors are registered on an injected Registerer and never served over
// the network by this module.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/grovedash/grovedash/health"
)

// Poll outcome labels.
const (
	OutcomeOk      = "ok"
	OutcomeStale   = "stale"
	OutcomeInvalid = "invalid"
	OutcomeFault   = "fault"
)

// Command outcome labels.
const (
	CommandAccepted = "accepted"
	CommandRejected = "rejected"
	CommandFailed   = "failed"
)

// Metrics aggregates the core's collectors. A nil *Metrics is a valid no-op
// so instrumentation stays optional.
type Metrics struct {
	polls        *prometheus.CounterVec
	commands     *prometheus.CounterVec
	channelState *prometheus.GaugeVec
	readDuration prometheus.Histogram
}

// New registers the core's collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grovedash_polls_total",
			Help: "Poll attempts by channel and outcome.",
		}, []string{"channel", "outcome"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grovedash_commands_total",
			Help: "Actuator commands by outcome.",
		}, []string{"outcome"}),
		channelState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "grovedash_channel_state",
			Help: "Recovery state per channel: 0 healthy, 1 degraded, 2 suspended.",
		}, []string{"channel"}),
		readDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "grovedash_bus_read_seconds",
			Help:    "Duration of individual bus operations.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
	}
	reg.MustRegister(m.polls, m.commands, m.channelState, m.readDuration)
	return m
}

// ObservePoll counts one poll attempt and its bus time.
func (m *Metrics) ObservePoll(channel, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(channel, outcome).Inc()
	m.readDuration.Observe(dur.Seconds())
}

// ObserveCommand counts one command by outcome.
func (m *Metrics) ObserveCommand(outcome string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(outcome).Inc()
}

// SetChannelState mirrors the fault classifier's view of a channel.
func (m *Metrics) SetChannelState(channel string, s health.State) {
	if m == nil {
		return
	}
	var v float64
	switch s {
	case health.Degraded:
		v = 1
	case health.Suspended:
		v = 2
	}
	m.channelState.WithLabelValues(channel).Set(v)
}
