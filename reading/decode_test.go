package reading

import (
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/grovedash/grovedash/channel"
)

var sampleTime = time.Date(2024, 5, 4, 12, 0, 0, 0, time.UTC)

func sample(values ...float64) RawSample {
	return RawSample{Channel: "x", At: sampleTime, Values: values}
}

func TestDecodeDigital(t *testing.T) {
	button := channel.Descriptor{Name: "button", Pin: "D3", Kind: channel.KindDigitalIn, Interval: time.Second}

	r := Decode(button, sample(1))
	test.That(t, r.Validity, test.ShouldEqual, Ok)
	test.That(t, r.Bool, test.ShouldBeTrue)
	test.That(t, r.At, test.ShouldEqual, sampleTime)

	r = Decode(button, sample(0))
	test.That(t, r.Validity, test.ShouldEqual, Ok)
	test.That(t, r.Bool, test.ShouldBeFalse)

	// anything outside {0,1} is a corrupt frame for a binary channel
	r = Decode(button, sample(2))
	test.That(t, r.Validity, test.ShouldEqual, Invalid)

	r = Decode(button, sample())
	test.That(t, r.Validity, test.ShouldEqual, Invalid)
}

func TestDecodeLeveledOutput(t *testing.T) {
	ledbar := channel.Descriptor{
		Name: "ledbar", Pin: "D5", Kind: channel.KindDigitalOut, Interval: time.Second,
		Decode: channel.DecodeRule{MaxLevel: 10},
	}

	r := Decode(ledbar, sample(7))
	test.That(t, r.Validity, test.ShouldEqual, Ok)
	test.That(t, r.Value, test.ShouldEqual, 7.0)
	test.That(t, r.Bool, test.ShouldBeTrue)

	r = Decode(ledbar, sample(11))
	test.That(t, r.Validity, test.ShouldEqual, Invalid)
}

func TestDecodeAnalog(t *testing.T) {
	rotary := channel.Descriptor{
		Name: "rotary", Pin: "A0", Kind: channel.KindAnalogIn, Interval: time.Second,
		Decode: channel.DecodeRule{ScaleMin: 0, ScaleMax: 300},
	}

	r := Decode(rotary, sample(0))
	test.That(t, r.Validity, test.ShouldEqual, Ok)
	test.That(t, r.Value, test.ShouldEqual, 0.0)

	r = Decode(rotary, sample(1023))
	test.That(t, r.Validity, test.ShouldEqual, Ok)
	test.That(t, r.Value, test.ShouldEqual, 300.0)

	r = Decode(rotary, sample(511.5))
	test.That(t, r.Validity, test.ShouldEqual, Invalid)

	r = Decode(rotary, sample(1024))
	test.That(t, r.Validity, test.ShouldEqual, Invalid)

	// no scale configured: raw intensity passes through
	sound := channel.Descriptor{Name: "sound", Pin: "A1", Kind: channel.KindAnalogIn, Interval: time.Second}
	r = Decode(sound, sample(640))
	test.That(t, r.Validity, test.ShouldEqual, Ok)
	test.That(t, r.Value, test.ShouldEqual, 640.0)
}

func TestDecodeDHT(t *testing.T) {
	climate := channel.Descriptor{Name: "climate", Pin: "D2", Kind: channel.KindDHT, Interval: time.Second}

	r := Decode(climate, sample(23.5, 48))
	test.That(t, r.Validity, test.ShouldEqual, Ok)
	test.That(t, r.Temperature, test.ShouldEqual, 23.5)
	test.That(t, r.Humidity, test.ShouldEqual, 48.0)

	for _, values := range [][]float64{
		{-41, 50},  // too cold to be real
		{81, 50},   // too hot
		{22, -1},   // humidity below range
		{22, 101},  // humidity above range
		{22},       // short frame
	} {
		r = Decode(climate, sample(values...))
		test.That(t, r.Validity, test.ShouldEqual, Invalid)
	}
}

func TestDecodeUltrasonic(t *testing.T) {
	sonar := channel.Descriptor{
		Name: "sonar", Pin: "D7", Kind: channel.KindUltrasonic, Interval: time.Second,
		Decode: channel.DecodeRule{MaxRangeCM: 400},
	}

	r := Decode(sonar, sample(5800))
	test.That(t, r.Validity, test.ShouldEqual, Ok)
	test.That(t, r.Value, test.ShouldAlmostEqual, 100.0, 0.01)

	// no echo within range: open air, reported invalid but not a fault
	r = Decode(sonar, sample(58*500))
	test.That(t, r.Validity, test.ShouldEqual, Invalid)

	r = Decode(sonar, sample(-1))
	test.That(t, r.Validity, test.ShouldEqual, Invalid)
}

func TestDecodeUnknownKindFailsClosed(t *testing.T) {
	d := channel.Descriptor{Name: "x", Pin: "D3", Kind: channel.Kind("mystery"), Interval: time.Second}
	r := Decode(d, sample(1))
	test.That(t, r.Validity, test.ShouldEqual, Invalid)
	test.That(t, r.Channel, test.ShouldEqual, "x")
}

func TestNeverSentinel(t *testing.T) {
	r := Never("button")
	test.That(t, r.Validity, test.ShouldEqual, Unavailable)
	test.That(t, r.At.IsZero(), test.ShouldBeTrue)
}
