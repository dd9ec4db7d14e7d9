package asi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/liuyenting/olive-motion-asi/internal/util"
	"github.com/liuyenting/olive-motion-asi/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

// Controller-level verbs.
const (
	verbBuild   = "BU"
	verbVersion = "V"
	verbName    = "N"
	verbStatus  = "/"
	verbHalt    = `\`
)

// busyFlag is the status reply while any motor is moving.
const busyFlag = "B"

const vendorASI = "ASI"

// Identity is the controller identity captured while opening and cleared on
// close.
type Identity struct {
	Vendor  string
	Model   string
	Version string
}

// Controller drives one ASI stage controller over a serial transport.
//
// The controller owns the transport exclusively through its command channel.
// Axes never touch the transport; every per-axis command routes through
// [Controller.Send], so the channel lock is the only guard needed for wire
// correctness. A single Controller type covers the MS-2000, LX-4000 and Tiger
// families; the differences live in the configured [Dialect].
type Controller struct {
	cfg     *Config
	dialect Dialect
	channel *Channel
	logger  logger.Logger

	opState atomicOpState

	// mu guards identity and cards.
	mu       sync.Mutex
	identity Identity
	cards    []Card

	axes *xsync.MapOf[string, *Axis]
}

// Compile-time check: Controller implements Device.
var _ Device = (*Controller)(nil)

// NewController creates a controller over the given transport.
//
// The transport should be closed; Open establishes the session. The
// configuration decides the dialect, the logger and the polling behavior of
// the axes the controller hands out.
func NewController(transport Transport, cfg *Config) (*Controller, error) {
	if transport == nil {
		return nil, errors.New("asi: transport is nil")
	}
	if cfg == nil {
		return nil, errors.New("asi: config is nil")
	}

	c := &Controller{
		cfg:     cfg,
		dialect: cfg.Dialect(),
		channel: newChannel(transport, cfg.GetLogger()),
		logger:  cfg.GetLogger(),
		axes:    xsync.NewMapOf[string, *Axis](),
	}
	c.opState.Set(closedState)

	return c, nil
}

// Open opens the transport and verifies the device identity.
//
// The identity probe queries the family token (name for MS-2000 and LX-4000,
// build for Tiger) and fails with ErrUnsupportedDevice when the attached
// device answers with an unexpected token, leaving the transport closed.
// Opening an already opened controller is a no-op.
func (c *Controller) Open(ctx context.Context) error {
	if !c.opState.ToOpening() {
		if c.opState.IsOpened() {
			return nil
		}
		return fmt.Errorf("asi: controller is %s", c.opState.String())
	}

	if err := c.channel.open(); err != nil {
		c.opState.Set(closedState)
		return fmt.Errorf("asi: open transport: %w", err)
	}

	if err := c.probeIdentity(ctx); err != nil {
		_ = c.channel.close()
		c.opState.Set(closedState)

		return err
	}

	c.opState.ToOpened()

	identity, _ := c.Identity()
	c.logger.Info("controller opened",
		"dialect", c.dialect.name,
		"model", identity.Model,
		"version", identity.Version,
	)

	return nil
}

// Close releases the transport and clears the identity, the card table and
// the axis registry. Axes opened from this controller must be closed first;
// closing the controller does not stop motion in progress.
func (c *Controller) Close(ctx context.Context) error {
	if c.opState.IsClosed() {
		return nil
	}
	if !c.opState.ToClosing() {
		return fmt.Errorf("asi: controller is %s", c.opState.String())
	}

	c.mu.Lock()
	c.identity = Identity{}
	c.cards = nil
	c.mu.Unlock()
	c.axes.Clear()

	err := c.channel.close()
	c.opState.ToClosed()
	if err != nil {
		return fmt.Errorf("asi: close transport: %w", err)
	}

	c.logger.Info("controller closed", "dialect", c.dialect.name)

	return nil
}

// Send encodes the command with the controller's dialect, performs one
// exclusive transaction and decodes the reply.
//
// Device errors come back as *DeviceError; match categories with errors.Is.
// Send is safe for concurrent use, transactions serialize on the channel.
func (c *Controller) Send(ctx context.Context, cmd *Command) (string, error) {
	wire, err := cmd.Encode(&c.dialect)
	if err != nil {
		return "", err
	}

	raw, err := c.channel.Transact(ctx, wire, c.dialect.responseTerm)
	if err != nil {
		return "", err
	}

	payload, err := c.dialect.DecodeResponse(raw)
	if err != nil {
		var devErr *DeviceError
		if errors.As(err, &devErr) {
			c.channel.metrics.incDeviceErrCount()
		}

		return "", fmt.Errorf("command %q: %w", cmd.Verb(), err)
	}

	return payload, nil
}

// probeIdentity queries the family token and the firmware version, and on a
// card-addressed chassis takes the initial card table snapshot. The token
// source depends on the dialect: Tiger identifies through its build string,
// the MS-2000 family through its device name.
func (c *Controller) probeIdentity(ctx context.Context) error {
	var model string

	switch c.dialect.idSource {
	case identityFromBuild:
		build, err := c.Send(ctx, NewCommand(verbBuild))
		if err != nil {
			return fmt.Errorf("query build: %w", err)
		}
		if !c.dialect.matchIdentity(build) {
			return fmt.Errorf("%w: build %q", ErrUnsupportedDevice, build)
		}
		model = build

	default:
		name, err := c.Send(ctx, NewCommand(verbName))
		if err != nil {
			return fmt.Errorf("query name: %w", err)
		}
		if !c.dialect.matchIdentity(name) {
			return fmt.Errorf("%w: name %q", ErrUnsupportedDevice, name)
		}
		model = name
	}

	version, err := c.queryVersion(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.identity = Identity{Vendor: vendorASI, Model: model, Version: version}
	c.mu.Unlock()

	if c.dialect.cardAddressed {
		if _, err := c.QueryCards(ctx); err != nil {
			return err
		}
	}

	return nil
}

// queryVersion reads the firmware version. MS-2000 firmware answers
// "Version: 9.2l" so the dialect may select the second field; Tiger answers
// with the bare version text.
func (c *Controller) queryVersion(ctx context.Context) (string, error) {
	payload, err := c.Send(ctx, NewCommand(verbVersion))
	if err != nil {
		return "", fmt.Errorf("query version: %w", err)
	}

	if c.dialect.versionSecondField {
		fields := strings.Fields(payload)
		if len(fields) >= 2 {
			return fields[1], nil
		}
	}

	return payload, nil
}

// Identity returns the identity captured at open time. ok is false while the
// controller is not open.
func (c *Controller) Identity() (Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.identity, c.identity != Identity{}
}

// EnumerateAxes discovers the axes the controller drives.
//
// MS-2000 family candidates come from the build-string suffix after "_", one
// letter per axis. Tiger candidates come from the card table, restricted to
// cards whose character tag marks a motion card. Every candidate is probed
// with TestOpen; candidates rejected with ErrUnsupportedDevice are skipped.
// The returned slice preserves discovery order, and each discovered axis is
// registered for lookup via [Controller.Axis].
func (c *Controller) EnumerateAxes(ctx context.Context) ([]*Axis, error) {
	if !c.opState.IsOpened() {
		return nil, ErrNotOpen
	}

	labels, err := c.candidateLabels(ctx)
	if err != nil {
		return nil, err
	}

	axes := make([]*Axis, 0, len(labels))
	for _, label := range labels {
		axis := newAxis(c, label)
		if err := axis.TestOpen(ctx); err != nil {
			if errors.Is(err, ErrUnsupportedDevice) {
				c.logger.Debug("axis candidate rejected", "label", label, "error", err.Error())
				continue
			}

			return nil, fmt.Errorf("probe axis %s: %w", label, err)
		}

		axes = append(axes, axis)
		c.axes.Store(label, axis)
	}

	c.logger.Info("axes enumerated", "count", len(axes))

	return axes, nil
}

func (c *Controller) candidateLabels(ctx context.Context) ([]string, error) {
	if c.dialect.cardAddressed {
		cards, err := c.QueryCards(ctx)
		if err != nil {
			return nil, err
		}

		var labels []string
		for _, card := range cards {
			if !card.HasMotionAxes() {
				continue
			}
			labels = append(labels, card.AxisLabels()...)
		}

		return labels, nil
	}

	build, err := c.Send(ctx, NewCommand(verbBuild))
	if err != nil {
		return nil, fmt.Errorf("query build: %w", err)
	}

	_, suffix, ok := strings.Cut(build, "_")
	if !ok {
		return nil, fmt.Errorf("%w: build %q has no axis suffix", ErrMalformedResponse, build)
	}

	labels := make([]string, 0, len(suffix))
	for _, r := range suffix {
		labels = append(labels, string(r))
	}

	return labels, nil
}

// Axis returns a previously enumerated axis by its label.
func (c *Controller) Axis(label string) (*Axis, bool) {
	return c.axes.Load(label)
}

// QueryCards reads and parses the card table of a card-addressed chassis.
// The parsed table is kept as a snapshot readable through [Controller.Cards].
func (c *Controller) QueryCards(ctx context.Context) ([]Card, error) {
	if !c.dialect.cardAddressed {
		return nil, fmt.Errorf("asi: %s controllers carry no card table", c.dialect.name)
	}

	payload, err := c.Send(ctx, NewCommand(verbName))
	if err != nil {
		return nil, fmt.Errorf("query card table: %w", err)
	}

	cards, err := parseCardTable(payload)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cards = cards
	c.mu.Unlock()

	return cards, nil
}

// Cards returns the last card table snapshot taken by QueryCards.
func (c *Controller) Cards() []Card {
	c.mu.Lock()
	defer c.mu.Unlock()

	return util.CloneSlice(c.cards, 0)
}

// IsBusy reports whether any motor on the controller is moving. The status
// poll is a single-character exchange cheap enough for tight polling loops.
func (c *Controller) IsBusy(ctx context.Context) (bool, error) {
	payload, err := c.Send(ctx, NewCommand(verbStatus))
	if err != nil {
		return false, err
	}

	return payload == busyFlag, nil
}

// Halt stops all motion immediately. The firmware halts every motor; there
// is no per-axis variant. Commands interrupted by the halt fail with
// ErrHalted.
func (c *Controller) Halt(ctx context.Context) error {
	if _, err := c.Send(ctx, NewCommand(verbHalt)); err != nil {
		return fmt.Errorf("halt: %w", err)
	}

	return nil
}

// EnumerateProperties lists the queryable controller properties.
func (c *Controller) EnumerateProperties() []Property {
	props := []Property{PropertyBuild}
	if c.dialect.cardAddressed {
		props = append(props, PropertyCards)
	}

	return props
}

// GetProperty resolves a property name to its protocol query.
func (c *Controller) GetProperty(ctx context.Context, prop Property) (any, error) {
	switch prop {
	case PropertyBuild:
		return c.Send(ctx, NewCommand(verbBuild))
	case PropertyCards:
		return c.QueryCards(ctx)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProperty, prop)
	}
}

// IsOpen reports whether the controller session is established.
func (c *Controller) IsOpen() bool {
	return c.opState.IsOpened()
}

// Dialect returns the controller's dialect, including configured overrides.
func (c *Controller) Dialect() Dialect {
	return c.dialect
}

// Metrics returns the transaction counters of the command channel.
func (c *Controller) Metrics() *ChannelMetrics {
	return c.channel.Metrics()
}
