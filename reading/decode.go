package reading

import (
	"time"

	"github.com/grovedash/grovedash/channel"
)

// DHT plausibility window; anything outside is a corrupt frame rather than
// weather.
const (
	minPlausibleTempC = -40.0
	maxPlausibleTempC = 80.0
	minPlausibleRH    = 0.0
	maxPlausibleRH    = 100.0
)

// adcMax is the top of the board's 10-bit ADC range.
const adcMax = 1023

// echo microseconds to centimeters for a there-and-back sound pulse.
const microsPerCM = 58.0

// A RawSample is the transient result of one successful bus operation. It is
// discarded once decoded.
type RawSample struct {
	Channel  string
	At       time.Time
	Values   []float64
	Duration time.Duration
}

type decodeFunc func(channel.Descriptor, RawSample) Reading

// decoders is total over the enumerated kind set; Decode fails closed on
// anything else.
var decoders = map[channel.Kind]decodeFunc{
	channel.KindDigitalIn:  decodeDigital,
	channel.KindDigitalOut: decodeDigital,
	channel.KindAnalogIn:   decodeAnalog,
	channel.KindDHT:        decodeDHT,
	channel.KindUltrasonic: decodeUltrasonic,
}

// Decode turns a raw sample into a typed reading. It never fails: unknown
// kinds, short samples and implausible values all come back as Invalid.
func Decode(d channel.Descriptor, s RawSample) Reading {
	dec, ok := decoders[d.Kind]
	if !ok {
		return invalid(d, s)
	}
	return dec(d, s)
}

func invalid(d channel.Descriptor, s RawSample) Reading {
	return Reading{Channel: d.Name, Kind: d.Kind, At: s.At, Validity: Invalid}
}

func base(d channel.Descriptor, s RawSample) Reading {
	return Reading{Channel: d.Name, Kind: d.Kind, At: s.At, Validity: Ok}
}

func decodeDigital(d channel.Descriptor, s RawSample) Reading {
	if len(s.Values) < 1 {
		return invalid(d, s)
	}
	raw := s.Values[0]
	// leveled outputs (LED bar) read back 0..MaxLevel; everything else is
	// strictly binary
	max := 1.0
	if d.Kind.Output() && d.Decode.MaxLevel > 1 {
		max = float64(d.Decode.MaxLevel)
	}
	if raw != float64(int(raw)) || raw < 0 || raw > max {
		return invalid(d, s)
	}
	r := base(d, s)
	r.Bool = raw > 0
	r.Value = raw
	return r
}

func decodeAnalog(d channel.Descriptor, s RawSample) Reading {
	if len(s.Values) < 1 {
		return invalid(d, s)
	}
	raw := s.Values[0]
	if raw != float64(int(raw)) || raw < 0 || raw > adcMax {
		return invalid(d, s)
	}
	r := base(d, s)
	if d.Decode.ScaleMax > d.Decode.ScaleMin {
		span := d.Decode.ScaleMax - d.Decode.ScaleMin
		r.Value = d.Decode.ScaleMin + raw/adcMax*span
	} else {
		r.Value = raw
	}
	return r
}

func decodeDHT(d channel.Descriptor, s RawSample) Reading {
	if len(s.Values) < 2 {
		return invalid(d, s)
	}
	temp, hum := s.Values[0], s.Values[1]
	if temp < minPlausibleTempC || temp > maxPlausibleTempC {
		return invalid(d, s)
	}
	if hum < minPlausibleRH || hum > maxPlausibleRH {
		return invalid(d, s)
	}
	r := base(d, s)
	r.Temperature = temp
	r.Humidity = hum
	return r
}

func decodeUltrasonic(d channel.Descriptor, s RawSample) Reading {
	if len(s.Values) < 1 || s.Values[0] < 0 {
		return invalid(d, s)
	}
	cm := s.Values[0] / microsPerCM
	if d.Decode.MaxRangeCM > 0 && cm > d.Decode.MaxRangeCM {
		// no echo came back; open air in front of the ranger, not a fault
		return invalid(d, s)
	}
	r := base(d, s)
	r.Value = cm
	return r
}
