// Package gateway is the exclusive-access wrapper around the physical sensor
// bus. All calls are bounded by their context and report failures through the
// transport fault taxonomy rather than hanging.
package gateway

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// A Gateway owns one physical bus. At most one call may be in flight at a
// time; implementations serialize internally but callers are expected to
// funnel access through a single owner anyway.
type Gateway interface {
	// ReadDigital reads a digital port, returning 0 or 1.
	ReadDigital(ctx context.Context, port int) (int, error)
	// ReadAnalog reads an analog port, returning 0..1023.
	ReadAnalog(ctx context.Context, port int) (int, error)
	// ReadUltrasonic triggers a ranging pulse and returns the echo round-trip
	// time in microseconds.
	ReadUltrasonic(ctx context.Context, port int) (int, error)
	// ReadDHT reads the temperature (C) and relative humidity (%) pair from a
	// DHT sensor. ErrNotReady means the sensor's minimum inter-read spacing
	// has not elapsed yet.
	ReadDHT(ctx context.Context, port, model int) (float64, float64, error)
	// WriteDigital drives an output port.
	WriteDigital(ctx context.Context, port, value int) error
	// Close releases the bus.
	Close() error
}

// FaultKind classifies a transient transport fault.
type FaultKind string

// The transient fault classes the recovery policy distinguishes.
const (
	FaultTimeout  = FaultKind("timeout")
	FaultBusy     = FaultKind("busy")
	FaultChecksum = FaultKind("checksum")
)

// A TransportError is a transient bus-level failure: the operation may well
// succeed if retried after a backoff.
type TransportError struct {
	Kind  FaultKind
	Cause error
}

func (e *TransportError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("bus transport fault (%s)", e.Kind)
	}
	return fmt.Sprintf("bus transport fault (%s): %s", e.Kind, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// NewTransportError wraps cause as a transient fault of the given kind.
func NewTransportError(kind FaultKind, cause error) error {
	return &TransportError{Kind: kind, Cause: cause}
}

// AsTransport extracts the transport fault from err, if it is one.
func AsTransport(err error) (*TransportError, bool) {
	var te *TransportError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// ErrNotReady is returned by ReadDHT when the sensor enforces its minimum
// inter-read spacing. It is neither a fault nor a value.
var ErrNotReady = errors.New("sensor not ready for another read")

// ErrUnavailable means the gateway itself is gone (port vanished, firmware
// unreachable). This is fatal to polling as a whole, not a per-channel fault.
var ErrUnavailable = errors.New("bus gateway unavailable")
