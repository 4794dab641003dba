// Package channel describes the fixed table of sensors and actuators attached
// to the bus: which pin each one lives on, how often it is polled and how its
// raw values are decoded.
package channel

import (
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Kind enumerates the supported channel kinds.
type Kind string

// The kinds of channels a GrovePi-class board exposes.
const (
	KindDigitalIn  = Kind("digital_in")
	KindDigitalOut = Kind("digital_out")
	KindAnalogIn   = Kind("analog_in")
	KindDHT        = Kind("dht_temp_humidity")
	KindUltrasonic = Kind("ultrasonic")
)

// Known returns whether k is one of the enumerated kinds.
func (k Kind) Known() bool {
	switch k {
	case KindDigitalIn, KindDigitalOut, KindAnalogIn, KindDHT, KindUltrasonic:
		return true
	}
	return false
}

// Output returns whether channels of this kind accept commands.
func (k Kind) Output() bool {
	return k == KindDigitalOut
}

// analog returns whether channels of this kind live on an analog pin.
func (k Kind) analog() bool {
	return k == KindAnalogIn
}

// DHT sensor models understood by the firmware.
const (
	DHT11 = 0
	DHT22 = 1
)

// A DecodeRule carries the per-channel parameters used to turn raw bus values
// into typed readings. Only the fields relevant to the channel's kind are set.
type DecodeRule struct {
	// ScaleMin/ScaleMax linearly rescale an analog raw value (0-1023). If both
	// are zero the raw intensity is passed through.
	ScaleMin float64
	ScaleMax float64

	// MaxRangeCM is the ultrasonic cutoff beyond which an echo is treated as
	// open air.
	MaxRangeCM float64

	// DHTModel selects DHT11 or DHT22 framing on the firmware side.
	DHTModel int

	// MaxLevel is the largest value an output channel accepts; 1 for a plain
	// relay or buzzer, 10 for the LED bar.
	MaxLevel int
}

// A Descriptor is the immutable identity of one configured channel.
type Descriptor struct {
	Name     string
	Pin      string // e.g. "D3", "A0"
	Kind     Kind
	Interval time.Duration
	Decode   DecodeRule
}

// Port returns the numeric port the firmware addresses for this descriptor's
// pin, e.g. 3 for "D3" and 0 for "A0".
func (d Descriptor) Port() int {
	_, port, err := parsePin(d.Pin)
	if err != nil {
		return -1
	}
	return port
}

// parsePin splits a pin name into its class and port number.
func parsePin(pin string) (analog bool, port int, err error) {
	if len(pin) < 2 {
		return false, 0, errors.Errorf("invalid pin %q", pin)
	}
	switch pin[0] {
	case 'D':
	case 'A':
		analog = true
	default:
		return false, 0, errors.Errorf("invalid pin %q: must start with D or A", pin)
	}
	port, err = strconv.Atoi(pin[1:])
	if err != nil || port < 0 {
		return false, 0, errors.Errorf("invalid pin %q: bad port number", pin)
	}
	return analog, port, nil
}

// validate checks the descriptor in isolation (cross-descriptor checks such
// as pin conflicts belong to the registry).
func (d Descriptor) validate() error {
	if d.Name == "" {
		return errors.New("channel has no name")
	}
	if !d.Kind.Known() {
		return errors.Errorf("channel %q: unknown kind %q", d.Name, d.Kind)
	}
	analog, _, err := parsePin(d.Pin)
	if err != nil {
		return errors.Wrapf(err, "channel %q", d.Name)
	}
	if analog != d.Kind.analog() {
		return errors.Errorf("channel %q: kind %s cannot live on pin %s", d.Name, d.Kind, d.Pin)
	}
	if d.Interval <= 0 {
		return errors.Errorf("channel %q: poll interval must be positive", d.Name)
	}
	if d.Kind == KindDHT && d.Decode.DHTModel != DHT11 && d.Decode.DHTModel != DHT22 {
		return errors.Errorf("channel %q: unknown dht model %d", d.Name, d.Decode.DHTModel)
	}
	if d.Kind.Output() && d.Decode.MaxLevel < 1 {
		return errors.Errorf("channel %q: output needs a max level of at least 1", d.Name)
	}
	return nil
}
