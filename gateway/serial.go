package gateway

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/edaniels/golog"
	slib "github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"
)

// A SerialGateway speaks the line-oriented firmware protocol over a serial
// port. Requests are single lines; the firmware answers with one line
// prefixed '@' (result), '#' (error), or '!' (not ready). Anything else is a
// debug message and gets logged.
type SerialGateway struct {
	port       io.ReadWriteCloser
	portReader *bufio.Reader
	logger     golog.Logger
	cmdLock    sync.Mutex
	closed     bool
}

// NewSerialGateway opens the firmware port at the conventional 9600 8N1.
func NewSerialGateway(portName string, logger golog.Logger) (*SerialGateway, error) {
	options := slib.OpenOptions{
		PortName:              portName,
		BaudRate:              9600,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       0,
		InterCharacterTimeout: 500,
	}
	port, err := slib.Open(options)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open bus port %q", portName)
	}
	return NewSerialGatewayFromPort(port, logger), nil
}

// NewSerialGatewayFromPort wraps an already-open port; used by tests with an
// in-memory pipe.
func NewSerialGatewayFromPort(port io.ReadWriteCloser, logger golog.Logger) *SerialGateway {
	return &SerialGateway{port: port, portReader: bufio.NewReader(port), logger: logger}
}

// runCommand sends one command and waits for its reply line. The caller's
// context bounds the exchange; the port's inter-character timeout keeps any
// single read from hanging.
func (g *SerialGateway) runCommand(ctx context.Context, cmd string) (string, error) {
	g.cmdLock.Lock()
	defer g.cmdLock.Unlock()

	if g.closed {
		return "", ErrUnavailable
	}
	if err := ctx.Err(); err != nil {
		return "", NewTransportError(FaultTimeout, err)
	}

	cmd = strings.TrimSpace(cmd)
	if _, err := g.port.Write([]byte(cmd + "\r")); err != nil {
		if errors.Is(err, io.ErrClosedPipe) {
			return "", ErrUnavailable
		}
		return "", NewTransportError(FaultTimeout, errors.Wrap(err, "error sending command"))
	}

	for {
		if err := ctx.Err(); err != nil {
			return "", NewTransportError(FaultTimeout, err)
		}
		line, err := g.portReader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return "", ErrUnavailable
			}
			return "", NewTransportError(FaultTimeout, errors.Wrap(err, "error reading reply"))
		}

		line = strings.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		switch line[0] {
		case '@':
			return line[1:], nil
		case '#':
			return "", firmwareError(line[1:])
		case '!':
			return "", ErrNotReady
		default:
			g.logger.Debugf("firmware debug message: %s", line)
		}
	}
}

// firmwareError maps a '#'-prefixed firmware complaint onto the fault
// taxonomy. Unknown complaints count as checksum-level corruption.
func firmwareError(msg string) error {
	switch {
	case strings.HasPrefix(msg, "busy"):
		return NewTransportError(FaultBusy, errors.New(msg))
	case strings.HasPrefix(msg, "crc"):
		return NewTransportError(FaultChecksum, errors.New(msg))
	default:
		return NewTransportError(FaultChecksum, errors.Errorf("firmware error: %s", msg))
	}
}

// ReadDigital reads a digital port.
func (g *SerialGateway) ReadDigital(ctx context.Context, port int) (int, error) {
	res, err := g.runCommand(ctx, fmt.Sprintf("dread %d", port))
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(res)
	if err != nil {
		return 0, NewTransportError(FaultChecksum, errors.Wrapf(err, "bad dread reply %q", res))
	}
	return v, nil
}

// ReadAnalog reads an analog port.
func (g *SerialGateway) ReadAnalog(ctx context.Context, port int) (int, error) {
	res, err := g.runCommand(ctx, fmt.Sprintf("aread %d", port))
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(res)
	if err != nil {
		return 0, NewTransportError(FaultChecksum, errors.Wrapf(err, "bad aread reply %q", res))
	}
	return v, nil
}

// ReadUltrasonic triggers a ranging pulse and returns the echo time in
// microseconds.
func (g *SerialGateway) ReadUltrasonic(ctx context.Context, port int) (int, error) {
	res, err := g.runCommand(ctx, fmt.Sprintf("usread %d", port))
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(res)
	if err != nil {
		return 0, NewTransportError(FaultChecksum, errors.Wrapf(err, "bad usread reply %q", res))
	}
	return v, nil
}

// ReadDHT reads a temperature/humidity pair.
func (g *SerialGateway) ReadDHT(ctx context.Context, port, model int) (float64, float64, error) {
	res, err := g.runCommand(ctx, fmt.Sprintf("dht %d %d", port, model))
	if err != nil {
		return 0, 0, err
	}
	fields := strings.Fields(res)
	if len(fields) != 2 {
		return 0, 0, NewTransportError(FaultChecksum, errors.Errorf("bad dht reply %q", res))
	}
	temp, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, 0, NewTransportError(FaultChecksum, errors.Wrapf(err, "bad dht temperature %q", fields[0]))
	}
	hum, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 0, 0, NewTransportError(FaultChecksum, errors.Wrapf(err, "bad dht humidity %q", fields[1]))
	}
	return temp, hum, nil
}

// WriteDigital drives an output port.
func (g *SerialGateway) WriteDigital(ctx context.Context, port, value int) error {
	res, err := g.runCommand(ctx, fmt.Sprintf("dwrite %d %d", port, value))
	if err != nil {
		return err
	}
	if res != "ok" {
		return NewTransportError(FaultChecksum, errors.Errorf("unexpected dwrite reply %q", res))
	}
	return nil
}

// Close releases the port. Calls after Close report the bus as unavailable.
func (g *SerialGateway) Close() error {
	g.cmdLock.Lock()
	defer g.cmdLock.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	return g.port.Close()
}
