package serialport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liuyenting/olive-motion-asi/logger"
)

// fakeDevice scripts read chunks and records writes. An exhausted script
// behaves like a read timeout: Read sleeps idleDelay and returns (0, nil).
type fakeDevice struct {
	mu        sync.Mutex
	chunks    [][]byte
	writes    [][]byte
	readErr   error
	writeErr  error
	shortBy   int
	idleDelay time.Duration
	closed    bool
}

var _ device = (*fakeDevice)(nil)

func (d *fakeDevice) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, errors.New("device closed")
	}
	if d.readErr != nil {
		return 0, d.readErr
	}
	if len(d.chunks) == 0 {
		time.Sleep(d.idleDelay)
		return 0, nil
	}

	chunk := d.chunks[0]
	d.chunks = d.chunks[1:]

	return copy(p, chunk), nil
}

func (d *fakeDevice) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.writeErr != nil {
		return 0, d.writeErr
	}
	d.writes = append(d.writes, append([]byte(nil), p...))

	return len(p) - d.shortBy, nil
}

func (d *fakeDevice) SetReadTimeout(time.Duration) error { return nil }
func (d *fakeDevice) ResetInputBuffer() error            { return nil }
func (d *fakeDevice) ResetOutputBuffer() error           { return nil }

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true

	return nil
}

// newFakePort attaches a Port to a fake device directly, bypassing Open so
// no real tty is involved.
func newFakePort(t *testing.T, dev device) *Port {
	t.Helper()

	p, err := New("/dev/ttyFAKE")
	require.NoError(t, err)
	p.dev = dev

	return p
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("/dev/ttyUSB0")
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB0", p.Name())
	assert.Equal(t, DefaultBaudRate, p.baudRate)
	assert.Equal(t, DefaultReadTimeout, p.readTimeout)
	assert.False(t, p.IsOpen())
}

func TestNew_Options(t *testing.T) {
	mockLogger := logger.NewMockLogger()

	p, err := New("COM3",
		WithBaudRate(9600),
		WithReadTimeout(10*time.Millisecond),
		WithLogger(mockLogger),
	)
	require.NoError(t, err)

	assert.Equal(t, 9600, p.baudRate)
	assert.Equal(t, 10*time.Millisecond, p.readTimeout)
	assert.Same(t, mockLogger, p.logger)
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		port string
		opts []Option
	}{
		{"empty name", "", nil},
		{"zero baud rate", "COM3", []Option{WithBaudRate(0)}},
		{"negative baud rate", "COM3", []Option{WithBaudRate(-9600)}},
		{"zero read timeout", "COM3", []Option{WithReadTimeout(0)}},
		{"nil logger", "COM3", []Option{WithLogger(nil)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.port, tt.opts...)
			require.Error(t, err)
			assert.Nil(t, p)
		})
	}
}

func TestPort_ClosedOperations(t *testing.T) {
	p, err := New("/dev/ttyUSB0")
	require.NoError(t, err)

	assert.ErrorIs(t, p.Write([]byte("W X\r")), ErrPortClosed)

	_, err = p.ReadUntil(context.Background(), []byte("\r\n"))
	assert.ErrorIs(t, err, ErrPortClosed)

	assert.NoError(t, p.Close())
}

func TestPort_Write(t *testing.T) {
	dev := &fakeDevice{}
	p := newFakePort(t, dev)

	require.NoError(t, p.Write([]byte("M X=1500\r")))
	require.Len(t, dev.writes, 1)
	assert.Equal(t, "M X=1500\r", string(dev.writes[0]))
}

func TestPort_WriteErrors(t *testing.T) {
	t.Run("device failure", func(t *testing.T) {
		dev := &fakeDevice{writeErr: errors.New("io failure")}
		p := newFakePort(t, dev)

		err := p.Write([]byte("W X\r"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "serialport: write")
	})

	t.Run("short write", func(t *testing.T) {
		dev := &fakeDevice{shortBy: 1}
		p := newFakePort(t, dev)

		err := p.Write([]byte("W X\r"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "short write")
	})
}

func TestPort_ReadUntil(t *testing.T) {
	dev := &fakeDevice{chunks: [][]byte{
		[]byte(":A 15"),
		[]byte("000\r"),
		[]byte("\n:N-4\r\n"),
	}}
	p := newFakePort(t, dev)

	frame, err := p.ReadUntil(context.Background(), []byte("\r\n"))
	require.NoError(t, err)
	assert.Equal(t, ":A 15000\r\n", string(frame))

	// The second reply arrived in the same chunk as the first terminator and
	// must be served from the pending buffer without another device read.
	frame, err = p.ReadUntil(context.Background(), []byte("\r\n"))
	require.NoError(t, err)
	assert.Equal(t, ":N-4\r\n", string(frame))
}

func TestPort_ReadUntil_EmptyTerminator(t *testing.T) {
	p := newFakePort(t, &fakeDevice{})

	_, err := p.ReadUntil(context.Background(), nil)
	require.Error(t, err)
}

func TestPort_ReadUntil_ContextCancelled(t *testing.T) {
	dev := &fakeDevice{idleDelay: time.Millisecond}
	p := newFakePort(t, dev)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.ReadUntil(ctx, []byte("\r\n"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPort_ReadUntil_DeviceError(t *testing.T) {
	dev := &fakeDevice{readErr: errors.New("io failure")}
	p := newFakePort(t, dev)

	_, err := p.ReadUntil(context.Background(), []byte("\r\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "serialport: read")
}

func TestPort_CloseClearsPending(t *testing.T) {
	dev := &fakeDevice{chunks: [][]byte{[]byte(":A\r\nleftover")}}
	p := newFakePort(t, dev)

	frame, err := p.ReadUntil(context.Background(), []byte("\r\n"))
	require.NoError(t, err)
	assert.Equal(t, ":A\r\n", string(frame))

	require.NoError(t, p.Close())
	assert.False(t, p.IsOpen())
	assert.Nil(t, p.pending)
}

func TestCutTerminated(t *testing.T) {
	term := []byte("\r\n")

	tests := []struct {
		name      string
		buf       string
		wantFrame string
		wantRest  string
		wantOK    bool
	}{
		{"empty buffer", "", "", "", false},
		{"incomplete frame", ":A 123", "", ":A 123", false},
		{"split terminator", ":A 123\r", "", ":A 123\r", false},
		{"exact frame", ":A\r\n", ":A\r\n", "", true},
		{"leftover retained", ":A 15000\r\n:N-4\r\n", ":A 15000\r\n", ":N-4\r\n", true},
		{"terminator first", "\r\nrest", "\r\n", "rest", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, rest, ok := cutTerminated([]byte(tt.buf), term)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantFrame, string(frame))
			assert.Equal(t, tt.wantRest, string(rest))
		})
	}
}
