// Package reading turns raw bus samples into immutable typed readings. A
// decode anomaly is always expressed through the reading's validity, never as
// an error returned to the caller.
package reading

import (
	"time"

	"github.com/grovedash/grovedash/channel"
)

// Validity classifies how much a reading can be trusted.
type Validity string

// Every reading carries exactly one of these.
const (
	// Ok is a fresh, plausible value.
	Ok = Validity("ok")
	// Stale means the sensor refused to produce a new value yet (DHT minimum
	// read spacing); the previous valid reading remains current.
	Stale = Validity("stale")
	// Invalid means the bus answered but the value is physically implausible.
	Invalid = Validity("invalid")
	// Unavailable means no value could be obtained at all.
	Unavailable = Validity("unavailable")
)

// A Reading is one immutable snapshot of a channel. Which value fields are
// meaningful depends on Kind: Bool for digital channels, Value for analog and
// ultrasonic (and the commanded level of outputs), Temperature/Humidity for
// the DHT composite.
type Reading struct {
	Channel  string
	Kind     channel.Kind
	At       time.Time
	Validity Validity

	Bool        bool
	Value       float64
	Temperature float64
	Humidity    float64
}

// Never is the sentinel returned for a channel that has not been polled yet.
func Never(name string) Reading {
	return Reading{Channel: name, Validity: Unavailable}
}

// StaleReading marks a poll attempt the sensor deferred.
func StaleReading(d channel.Descriptor, at time.Time) Reading {
	return Reading{Channel: d.Name, Kind: d.Kind, At: at, Validity: Stale}
}

// UnavailableReading marks an attempt that produced no value.
func UnavailableReading(d channel.Descriptor, at time.Time) Reading {
	return Reading{Channel: d.Name, Kind: d.Kind, At: at, Validity: Unavailable}
}
