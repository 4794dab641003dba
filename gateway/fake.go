package gateway

import (
	"context"
	"sync"
)

// A FakeGateway provides scripted values and injectable faults in order to
// test the polling core without hardware.
type FakeGateway struct {
	mu sync.Mutex

	digital    map[int]int
	analog     map[int]int
	ultrasonic map[int]int
	dhtTemp    map[int]float64
	dhtHum     map[int]float64

	// Written digital values, by port.
	Written map[int]int

	// NotReady makes ReadDHT report the minimum-spacing condition.
	NotReady bool
	// Unavailable makes every call fail as if the bus itself is gone.
	Unavailable bool

	nextErrs []error

	// Call counters.
	ReadCount  int
	WriteCount int
	CloseCount int
}

// NewFakeGateway constructs a fake with empty port maps.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		digital:    map[int]int{},
		analog:     map[int]int{},
		ultrasonic: map[int]int{},
		dhtTemp:    map[int]float64{},
		dhtHum:     map[int]float64{},
		Written:    map[int]int{},
	}
}

// SetDigital scripts the value a digital port reads back.
func (g *FakeGateway) SetDigital(port, v int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.digital[port] = v
}

// SetAnalog scripts the value an analog port reads back.
func (g *FakeGateway) SetAnalog(port, v int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.analog[port] = v
}

// SetUltrasonic scripts the echo time a ranging port reads back.
func (g *FakeGateway) SetUltrasonic(port, micros int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ultrasonic[port] = micros
}

// SetDHT scripts the pair a DHT port reads back.
func (g *FakeGateway) SetDHT(port int, temp, hum float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dhtTemp[port] = temp
	g.dhtHum[port] = hum
}

// FailNext queues errors to be returned, in order, by the next read or write
// calls before scripted values resume.
func (g *FakeGateway) FailNext(errs ...error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextErrs = append(g.nextErrs, errs...)
}

// Calls returns the total number of bus operations performed.
func (g *FakeGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ReadCount + g.WriteCount
}

// WrittenValue returns the last value written to a port.
func (g *FakeGateway) WrittenValue(port int) (int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.Written[port]
	return v, ok
}

// popErr consumes the next injected error, if any. Caller must hold mu.
func (g *FakeGateway) popErr() error {
	if g.Unavailable {
		return ErrUnavailable
	}
	if len(g.nextErrs) == 0 {
		return nil
	}
	err := g.nextErrs[0]
	g.nextErrs = g.nextErrs[1:]
	return err
}

// ReadDigital returns the scripted digital value.
func (g *FakeGateway) ReadDigital(ctx context.Context, port int) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ReadCount++
	if err := g.popErr(); err != nil {
		return 0, err
	}
	return g.digital[port], nil
}

// ReadAnalog returns the scripted analog value.
func (g *FakeGateway) ReadAnalog(ctx context.Context, port int) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ReadCount++
	if err := g.popErr(); err != nil {
		return 0, err
	}
	return g.analog[port], nil
}

// ReadUltrasonic returns the scripted echo time.
func (g *FakeGateway) ReadUltrasonic(ctx context.Context, port int) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ReadCount++
	if err := g.popErr(); err != nil {
		return 0, err
	}
	return g.ultrasonic[port], nil
}

// ReadDHT returns the scripted pair, honoring NotReady.
func (g *FakeGateway) ReadDHT(ctx context.Context, port, model int) (float64, float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ReadCount++
	if err := g.popErr(); err != nil {
		return 0, 0, err
	}
	if g.NotReady {
		return 0, 0, ErrNotReady
	}
	return g.dhtTemp[port], g.dhtHum[port], nil
}

// WriteDigital records the written value so tests can assert on it, and makes
// it visible to subsequent ReadDigital calls the way a relay reads back.
func (g *FakeGateway) WriteDigital(ctx context.Context, port, value int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.WriteCount++
	if err := g.popErr(); err != nil {
		return err
	}
	g.Written[port] = value
	g.digital[port] = value
	return nil
}

// Close does nothing but count.
func (g *FakeGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.CloseCount++
	return nil
}
