package asi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// newTestConfig creates a Config with a poll interval short enough for tests.
func newTestConfig(t *testing.T, dialect Dialect, opts ...Option) *Config {
	t.Helper()

	defaults := []Option{WithPollInterval(time.Millisecond)}

	cfg, err := NewConfig(dialect, append(defaults, opts...)...)
	require.NoError(t, err)

	return cfg
}

// newTestController wires a controller to a simulated device. The controller
// is not opened.
func newTestController(t *testing.T, dev *simDevice, dialect Dialect, opts ...Option) (*Controller, *simTransport) {
	t.Helper()

	tr := newSimTransport(dev, dialect)
	ctrl, err := NewController(tr, newTestConfig(t, dialect, opts...))
	require.NoError(t, err)

	return ctrl, tr
}

// openTestController additionally opens the controller and registers cleanup.
func openTestController(t *testing.T, dev *simDevice, dialect Dialect, opts ...Option) (*Controller, *simTransport) {
	t.Helper()

	ctrl, tr := newTestController(t, dev, dialect, opts...)
	require.NoError(t, ctrl.Open(context.Background()))
	t.Cleanup(func() { _ = ctrl.Close(context.Background()) })

	return ctrl, tr
}

// openTestAxis opens one axis on an MS-2000 simulation and registers cleanup.
func openTestAxis(t *testing.T, label string) (*Axis, *simDevice, *simTransport) {
	t.Helper()

	dev := newSimMS2000()
	ctrl, tr := openTestController(t, dev, MS2000())

	axis, err := NewAxis(ctrl, label)
	require.NoError(t, err)
	require.NoError(t, axis.Open(context.Background()))
	t.Cleanup(func() { _ = axis.Close(context.Background()) })

	return axis, dev, tr
}

// --- simulated device ---

// simAxis models one motor behind the simulated firmware. Positions are
// absolute device units; the reported coordinate is abs minus origin.
type simAxis struct {
	multiplier float64
	motorOn    bool

	hardLo, hardHi float64 // travel extremes, absolute device units
	abs            float64 // current absolute position, device units
	origin         float64 // coordinate origin, absolute device units

	velocity float64
	accel    float64

	limLo, limHi float64 // soft limits as last written, physical units
}

func newSimAxis(multiplier, hardLo, hardHi, abs float64) *simAxis {
	return &simAxis{
		multiplier: multiplier,
		motorOn:    true,
		hardLo:     hardLo,
		hardHi:     hardHi,
		abs:        abs,
		velocity:   5.745,
		accel:      70,
		limLo:      -50,
		limHi:      50,
	}
}

// position returns the reported coordinate in device units.
func (ax *simAxis) position() float64 {
	return ax.abs - ax.origin
}

func (ax *simAxis) clamp() {
	if ax.abs < ax.hardLo {
		ax.abs = ax.hardLo
	}
	if ax.abs > ax.hardHi {
		ax.abs = ax.hardHi
	}
}

// simDevice models the firmware of one controller. Moves land instantly,
// clamped to the hard stops, and the busy flag stays up for moveTicks status
// polls afterwards so completion waits are exercised.
type simDevice struct {
	name      string
	build     string
	version   string
	cardTable string // lines joined with \r; empty for single-card families

	axes      map[string]*simAxis
	moveTicks int
	busyTicks int

	// failVerb makes the device answer the given verb with failCode.
	failVerb string
	failCode int
}

func newSimMS2000() *simDevice {
	return &simDevice{
		name:      "ASI-MS2000-WK",
		build:     "MS2000_XY",
		version:   "Version: 9.2l",
		moveTicks: 2,
		axes: map[string]*simAxis{
			// X sits off-center: travel -25..75 physical units.
			"X": newSimAxis(10000, -250000, 750000, 15000),
			"Y": newSimAxis(10000, -500000, 500000, 0),
		},
	}
}

func newSimTiger() *simDevice {
	return &simDevice{
		build:   "TIGER_COMM",
		version: ":A 9.2o",
		cardTable: "1:X:100,Y:101 V1.0 SCAN_XY_LED\r" +
			"2:Z:110 V1.2 STD_ZF\r" +
			"3:L:0 V1.0 LED_DRV",
		moveTicks: 2,
		axes: map[string]*simAxis{
			"X": newSimAxis(10000, -250000, 750000, 15000),
			"Y": newSimAxis(10000, -500000, 500000, 0),
			"Z": newSimAxis(100000, -1000000, 1000000, 0),
		},
	}
}

func simFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// handle executes one command line (prefix and terminator already stripped)
// and returns the reply without its terminator.
func (d *simDevice) handle(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ":N-1"
	}
	if d.failVerb != "" && fields[0] == d.failVerb {
		return fmt.Sprintf(":N-%d", d.failCode)
	}

	switch verb := fields[0]; verb {
	case verbName:
		if d.cardTable != "" {
			return d.cardTable
		}
		return d.name

	case verbBuild:
		return d.build

	case verbVersion:
		return d.version

	case verbStatus:
		if d.busyTicks > 0 {
			d.busyTicks--
			return "B"
		}
		return "N"

	case verbHalt:
		d.busyTicks = 0
		return ":A"

	case verbUnitMult:
		ax, label, _, ok := d.axisArg(fields)
		if !ok {
			return ":N-2"
		}
		return fmt.Sprintf(":%s=%s A", label, simFloat(ax.multiplier))

	case verbMotorCtrl:
		ax, _, _, ok := d.axisArg(fields)
		if !ok {
			return ":N-2"
		}
		if ax.motorOn {
			return ":A 1"
		}
		return ":A 0"

	case verbWhere:
		ax, _, _, ok := d.axisArg(fields)
		if !ok {
			return ":N-2"
		}
		return ":A " + simFloat(ax.position())

	case verbMoveAbs:
		ax, _, val, ok := d.axisArg(fields)
		if !ok {
			return ":N-2"
		}
		if val == nil {
			return ":N-3"
		}
		ax.abs = ax.origin + *val
		ax.clamp()
		d.busyTicks = d.moveTicks
		return ":A"

	case verbMoveRel:
		ax, _, val, ok := d.axisArg(fields)
		if !ok {
			return ":N-2"
		}
		if val == nil {
			return ":N-3"
		}
		ax.abs += *val
		ax.clamp()
		d.busyTicks = d.moveTicks
		return ":A"

	case verbHome:
		ax, _, _, ok := d.axisArg(fields)
		if !ok {
			return ":N-2"
		}
		ax.abs = ax.origin
		ax.clamp()
		d.busyTicks = d.moveTicks
		return ":A"

	case verbVelocity:
		ax, label, val, ok := d.axisArg(fields)
		if !ok {
			return ":N-2"
		}
		if val == nil {
			return fmt.Sprintf(":A %s=%s", label, simFloat(ax.velocity))
		}
		ax.velocity = *val
		return ":A"

	case verbAccel:
		ax, label, val, ok := d.axisArg(fields)
		if !ok {
			return ":N-2"
		}
		if val == nil {
			return fmt.Sprintf(":A %s=%s", label, simFloat(ax.accel))
		}
		ax.accel = *val
		return ":A"

	case verbLowerLimit:
		ax, _, val, ok := d.axisArg(fields)
		if !ok {
			return ":N-2"
		}
		if val == nil {
			return ":A " + simFloat(ax.limLo)
		}
		ax.limLo = *val
		return ":A"

	case verbUpperLimit:
		ax, _, val, ok := d.axisArg(fields)
		if !ok {
			return ":N-2"
		}
		if val == nil {
			return ":A " + simFloat(ax.limHi)
		}
		ax.limHi = *val
		return ":A"

	case verbRefStatus:
		ax, _, _, ok := d.axisArg(fields)
		if !ok {
			return ":N-2"
		}
		switch {
		case ax.abs <= ax.hardLo:
			return flagLowerLimit
		case ax.abs >= ax.hardHi:
			return flagUpperLimit
		default:
			return "N"
		}

	case verbSetOrigin:
		ax, _, _, ok := d.axisArg(fields)
		if !ok {
			return ":N-2"
		}
		ax.origin = ax.abs
		return ":A"

	default:
		return ":N-1"
	}
}

// axisArg resolves the axis argument of a command: "X", "X?", "X-", "X+" or
// "X=value". val is nil for query and flag forms.
func (d *simDevice) axisArg(fields []string) (ax *simAxis, label string, val *float64, ok bool) {
	if len(fields) < 2 {
		return nil, "", nil, false
	}

	arg := fields[1]
	if l, v, found := strings.Cut(arg, "="); found {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, "", nil, false
		}
		label = l
		val = &parsed
	} else {
		label = strings.TrimRight(arg, "?-+")
	}

	ax, ok = d.axes[label]

	return ax, label, val, ok
}

// --- simulated transport ---

// simTransport adapts a simDevice to the Transport interface. It records
// every command line for assertions and counts writes that arrive while a
// reply is still outstanding, which a correctly serialized channel never
// produces.
type simTransport struct {
	dev     *simDevice
	dialect Dialect

	mu       sync.Mutex
	open     bool
	silent   bool // swallow commands to simulate a mute device
	inflight bool
	overlap  int
	writes   []string
	pending  []byte
	wrote    chan struct{}
}

var _ Transport = (*simTransport)(nil)

func newSimTransport(dev *simDevice, dialect Dialect) *simTransport {
	return &simTransport{
		dev:     dev,
		dialect: dialect,
		wrote:   make(chan struct{}, 1),
	}
}

func (tr *simTransport) Open() error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.open = true

	return nil
}

func (tr *simTransport) Close() error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.open = false

	return nil
}

func (tr *simTransport) IsOpen() bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	return tr.open
}

func (tr *simTransport) Write(p []byte) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if !tr.open {
		return errors.New("sim: transport closed")
	}
	if tr.inflight {
		tr.overlap++
	}
	tr.inflight = true

	line := string(bytes.TrimSuffix(p, tr.dialect.commandTerm))
	line = strings.TrimPrefix(line, tr.dialect.addressPrefix)
	tr.writes = append(tr.writes, line)

	if tr.silent {
		return nil
	}

	tr.pending = append(tr.pending, tr.dev.handle(line)...)
	tr.pending = append(tr.pending, tr.dialect.responseTerm...)

	select {
	case tr.wrote <- struct{}{}:
	default:
	}

	return nil
}

func (tr *simTransport) ReadUntil(ctx context.Context, terminator []byte) ([]byte, error) {
	for {
		tr.mu.Lock()
		if idx := bytes.Index(tr.pending, terminator); idx >= 0 {
			end := idx + len(terminator)
			out := append([]byte(nil), tr.pending[:end]...)
			tr.pending = tr.pending[end:]
			tr.inflight = false
			tr.mu.Unlock()

			return out, nil
		}
		tr.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-tr.wrote:
		}
	}
}

func (tr *simTransport) setSilent(silent bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.silent = silent
}

func (tr *simTransport) overlapCount() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	return tr.overlap
}

func (tr *simTransport) commandLines() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	out := make([]string, len(tr.writes))
	copy(out, tr.writes)

	return out
}
