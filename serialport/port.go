package serialport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/liuyenting/olive-motion-asi/asi"
	"github.com/liuyenting/olive-motion-asi/logger"
)

const (
	// DefaultBaudRate matches the factory USB configuration of ASI
	// controllers. RS-232 installations often run slower; override with
	// WithBaudRate.
	DefaultBaudRate = 115200

	// DefaultReadTimeout bounds a single device read. It is the worst-case
	// latency for ReadUntil to notice a cancelled context while the device
	// is silent.
	DefaultReadTimeout = 50 * time.Millisecond

	readChunkSize = 256
)

// ErrPortClosed indicates a read or write on a port that is not open.
var ErrPortClosed = errors.New("serialport: port is not open")

// device is the slice of serial.Port the transport uses, narrowed so tests
// can substitute an in-memory fake.
type device interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	ResetOutputBuffer() error
	Close() error
}

var _ device = (serial.Port)(nil)

// Port is an asi.Transport over a host serial device such as /dev/ttyUSB0
// or COM3.
//
// The mutex only protects the open/close lifecycle and the pending buffer.
// Request/reply ordering is the command channel's job; the port assumes one
// reader and one writer at a time.
type Port struct {
	name        string
	baudRate    int
	readTimeout time.Duration
	logger      logger.Logger

	mu      sync.Mutex
	dev     device
	pending []byte
}

var _ asi.Transport = (*Port)(nil)

// New creates a Port for the named serial device. The device is not touched
// until Open.
func New(name string, opts ...Option) (*Port, error) {
	if name == "" {
		return nil, errors.New("serialport: port name is required")
	}

	p := &Port{
		name:        name,
		baudRate:    DefaultBaudRate,
		readTimeout: DefaultReadTimeout,
		logger:      logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(p); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// Name returns the device name the port was created with.
func (p *Port) Name() string { return p.name }

// Open opens the device with 8N1 framing, applies the read timeout and
// flushes both buffers so a stale reply from a previous session cannot be
// taken for the first reply of this one.
func (p *Port) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.dev != nil {
		return fmt.Errorf("serialport: %s is already open", p.name)
	}

	dev, err := serial.Open(p.name, &serial.Mode{
		BaudRate: p.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return fmt.Errorf("serialport: open %s: %w", p.name, err)
	}

	if err := dev.SetReadTimeout(p.readTimeout); err != nil {
		dev.Close()
		return fmt.Errorf("serialport: set read timeout: %w", err)
	}

	if err := dev.ResetInputBuffer(); err != nil {
		dev.Close()
		return fmt.Errorf("serialport: flush input: %w", err)
	}

	if err := dev.ResetOutputBuffer(); err != nil {
		dev.Close()
		return fmt.Errorf("serialport: flush output: %w", err)
	}

	p.dev = dev
	p.pending = nil

	p.logger.Debug("serial port opened", "port", p.name, "baud", p.baudRate)

	return nil
}

// Close closes the device. Closing an already closed port is a no-op. A
// ReadUntil blocked on the device observes the close as a read error.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.dev == nil {
		return nil
	}

	err := p.dev.Close()
	p.dev = nil
	p.pending = nil

	if err != nil {
		return fmt.Errorf("serialport: close %s: %w", p.name, err)
	}

	p.logger.Debug("serial port closed", "port", p.name)

	return nil
}

// IsOpen reports whether the device is open.
func (p *Port) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.dev != nil
}

// Write sends data to the device in full.
func (p *Port) Write(data []byte) error {
	dev, err := p.device()
	if err != nil {
		return err
	}

	n, err := dev.Write(data)
	if err != nil {
		return fmt.Errorf("serialport: write: %w", err)
	}
	if n != len(data) {
		return fmt.Errorf("serialport: short write: %d of %d bytes", n, len(data))
	}

	return nil
}

// ReadUntil accumulates bytes from the device until terminator appears and
// returns everything through the terminator inclusive. Bytes past the
// terminator stay buffered for the next call.
//
// The device read timeout bounds how long a single read blocks, so a
// cancelled context is honored within one timeout period even when the
// device sends nothing.
func (p *Port) ReadUntil(ctx context.Context, terminator []byte) ([]byte, error) {
	if len(terminator) == 0 {
		return nil, errors.New("serialport: empty terminator")
	}

	buf := make([]byte, readChunkSize)
	for {
		p.mu.Lock()
		frame, rest, ok := cutTerminated(p.pending, terminator)
		if ok {
			p.pending = rest
			p.mu.Unlock()

			return frame, nil
		}
		p.mu.Unlock()

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dev, err := p.device()
		if err != nil {
			return nil, err
		}

		n, err := dev.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("serialport: read: %w", err)
		}
		if n == 0 {
			// Read timeout expired with no data.
			continue
		}

		p.mu.Lock()
		p.pending = append(p.pending, buf[:n]...)
		p.mu.Unlock()
	}
}

func (p *Port) device() (device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.dev == nil {
		return nil, ErrPortClosed
	}

	return p.dev, nil
}

// cutTerminated splits buf at the first occurrence of terminator. frame holds
// everything through the terminator inclusive and rest holds the remainder,
// both as fresh slices so buf may be reused.
func cutTerminated(buf, terminator []byte) (frame, rest []byte, ok bool) {
	i := bytes.Index(buf, terminator)
	if i < 0 {
		return nil, buf, false
	}

	end := i + len(terminator)
	frame = append([]byte(nil), buf[:end]...)
	rest = append([]byte(nil), buf[end:]...)

	return frame, rest, true
}
