package asi

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/liuyenting/olive-motion-asi/internal/pool"
	"github.com/liuyenting/olive-motion-asi/logger"
)

// Per-axis verbs.
const (
	verbMoveAbs    = "M"
	verbMoveRel    = "R"
	verbHome       = "!"
	verbWhere      = "W"
	verbVelocity   = "S"
	verbAccel      = "AC"
	verbUnitMult   = "UM"
	verbMotorCtrl  = "MC"
	verbRefStatus  = "RS"
	verbLowerLimit = "SL"
	verbUpperLimit = "SU"
	verbSetOrigin  = "HM"
)

// Limit-switch flags in "RS <label>-" replies.
const (
	flagUpperLimit = "U"
	flagLowerLimit = "L"
)

// LimitStatus is the limit-switch state of an axis.
type LimitStatus int

const (
	// WithinRange means neither limit switch is engaged.
	WithinRange LimitStatus = iota
	// LowerLimit means the axis sits on its lower travel extreme.
	LowerLimit
	// UpperLimit means the axis sits on its upper travel extreme.
	UpperLimit
)

func (s LimitStatus) String() string {
	switch s {
	case LowerLimit:
		return "LowerLimit"
	case UpperLimit:
		return "UpperLimit"
	default:
		return "WithinRange"
	}
}

// Axis is one motorized degree of freedom on a controller.
//
// Positions, velocities and limits are expressed in physical units; the axis
// converts to integer device steps with the unit multiplier fetched while
// opening. The multiplier is only valid while the axis is open, so every
// motion call on a closed axis fails with ErrAxisNotOpen.
//
// Motion operations hold the axis lock for their full duration, including the
// optional completion wait, so two goroutines cannot interleave moves on the
// same axis. IsBusy, Wait and Stop deliberately skip the axis lock: they must
// stay usable while a calibration or a blocking move is in flight.
type Axis struct {
	ctrl   *Controller
	label  string
	logger logger.Logger

	opState atomicOpState

	// mu serializes motion operations and guards multiplier.
	mu         sync.Mutex
	multiplier float64
}

// Compile-time check: Axis implements Device.
var _ Device = (*Axis)(nil)

// NewAxis creates an axis handle on the given controller. EnumerateAxes
// creates and probes handles for every discovered label; NewAxis is for
// callers that already know theirs.
func NewAxis(ctrl *Controller, label string) (*Axis, error) {
	if ctrl == nil {
		return nil, errors.New("asi: controller is nil")
	}
	if label == "" {
		return nil, errors.New("asi: axis label is empty")
	}

	return newAxis(ctrl, label), nil
}

func newAxis(ctrl *Controller, label string) *Axis {
	a := &Axis{
		ctrl:   ctrl,
		label:  label,
		logger: ctrl.logger.With("axis", label),
	}
	a.opState.Set(closedState)

	return a
}

// Label returns the one-letter axis label.
func (a *Axis) Label() string { return a.label }

// Open fetches the axis unit multiplier and marks the axis usable. Opening
// an already opened axis is a no-op.
func (a *Axis) Open(ctx context.Context) error {
	if !a.opState.ToOpening() {
		if a.opState.IsOpened() {
			return nil
		}
		return fmt.Errorf("asi: axis %s is %s", a.label, a.opState.String())
	}

	mult, err := a.queryUnitMultiplier(ctx)
	if err != nil {
		a.opState.Set(closedState)
		return fmt.Errorf("open axis %s: %w", a.label, err)
	}
	if mult <= 0 {
		a.opState.Set(closedState)
		return fmt.Errorf("%w: axis %s unit multiplier %v", ErrMalformedResponse, a.label, mult)
	}

	a.mu.Lock()
	a.multiplier = mult
	a.mu.Unlock()

	a.opState.ToOpened()
	a.logger.Debug("axis opened", "multiplier", mult)

	return nil
}

// Close stops motion and invalidates the unit multiplier. The stop lands
// immediately even when a motion operation holds the axis lock; the state
// cleanup then waits for that operation to unwind.
func (a *Axis) Close(ctx context.Context) error {
	if a.opState.IsClosed() {
		return nil
	}
	if !a.opState.ToClosing() {
		return fmt.Errorf("asi: axis %s is %s", a.label, a.opState.String())
	}

	stopErr := a.Stop(ctx)

	a.mu.Lock()
	a.multiplier = 0
	a.mu.Unlock()

	a.opState.ToClosed()

	if stopErr != nil {
		return fmt.Errorf("close axis %s: %w", a.label, stopErr)
	}

	a.logger.Debug("axis closed")

	return nil
}

// TestOpen probes whether the label names a usable motion axis: open, check
// the motor-control flag, close. A probe rejected by the firmware or a motor
// reported as disabled fails with ErrUnsupportedDevice; discovery treats such
// an axis as absent.
func (a *Axis) TestOpen(ctx context.Context) error {
	if err := a.Open(ctx); err != nil {
		var devErr *DeviceError
		if errors.As(err, &devErr) {
			return fmt.Errorf("%w: axis %s rejected the multiplier probe: %v", ErrUnsupportedDevice, a.label, err)
		}

		return err
	}

	enabled, probeErr := a.MotorControl(ctx)
	closeErr := a.Close(ctx)

	if probeErr != nil {
		var devErr *DeviceError
		if errors.As(probeErr, &devErr) {
			return fmt.Errorf("%w: axis %s rejected the motor probe: %v", ErrUnsupportedDevice, a.label, probeErr)
		}

		return probeErr
	}
	if !enabled {
		return fmt.Errorf("%w: axis %s reports its motor disabled", ErrUnsupportedDevice, a.label)
	}

	return closeErr
}

// IsOpen reports whether the axis is open.
func (a *Axis) IsOpen() bool {
	return a.opState.IsOpened()
}

// Position returns the current position in physical units.
func (a *Axis) Position(ctx context.Context) (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.position(ctx)
}

// MoveAbsolute moves to pos, given in physical units. With wait set the call
// blocks, polling the busy flag, until motion completes.
func (a *Axis) MoveAbsolute(ctx context.Context, pos float64, wait bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.moveAbsolute(ctx, pos, wait)
}

// MoveRelative moves by delta physical units from the current position. With
// wait set the call blocks until motion completes.
func (a *Axis) MoveRelative(ctx context.Context, delta float64, wait bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.moveRelative(ctx, delta, wait)
}

// Home drives the axis to its home position. With wait set the call blocks
// until motion completes.
func (a *Axis) Home(ctx context.Context, wait bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.ensureOpen(); err != nil {
		return err
	}

	a.logger.Debug("home")
	if _, err := a.ctrl.Send(ctx, NewCommand(verbHome, a.label)); err != nil {
		return fmt.Errorf("home axis %s: %w", a.label, err)
	}

	if wait {
		return a.Wait(ctx)
	}

	return nil
}

// Velocity returns the axis velocity setting.
func (a *Axis) Velocity(ctx context.Context) (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.velocity(ctx)
}

// SetVelocity sets the axis velocity.
func (a *Axis) SetVelocity(ctx context.Context, v float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.setVelocity(ctx, v)
}

// Acceleration returns the axis acceleration setting in milliseconds to
// reach full speed.
func (a *Axis) Acceleration(ctx context.Context) (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.ensureOpen(); err != nil {
		return 0, err
	}

	payload, err := a.ctrl.Send(ctx, NewCommand(verbAccel, a.label+"?"))
	if err != nil {
		return 0, fmt.Errorf("query acceleration of axis %s: %w", a.label, err)
	}

	return parseValueField(payload)
}

// SetAcceleration sets the axis acceleration.
func (a *Axis) SetAcceleration(ctx context.Context, acc float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.ensureOpen(); err != nil {
		return err
	}

	if _, err := a.ctrl.Send(ctx, NewCommand(verbAccel).WithAxisArg(a.label, acc)); err != nil {
		return fmt.Errorf("set acceleration of axis %s: %w", a.label, err)
	}

	return nil
}

// Limits returns the working travel range in physical units.
func (a *Axis) Limits(ctx context.Context) (lo float64, hi float64, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.limits(ctx)
}

// SetLimits sets the working travel range in physical units.
func (a *Axis) SetLimits(ctx context.Context, lo, hi float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.setLimits(ctx, lo, hi)
}

// SetOrigin zeroes the coordinate system at the current position.
func (a *Axis) SetOrigin(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.setOrigin(ctx)
}

// LimitStatus reports which limit switch, if any, the axis sits on.
func (a *Axis) LimitStatus(ctx context.Context) (LimitStatus, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.limitStatus(ctx)
}

// MotorControl reports whether the axis motor drive is enabled.
func (a *Axis) MotorControl(ctx context.Context) (bool, error) {
	payload, err := a.ctrl.Send(ctx, NewCommand(verbMotorCtrl, a.label+"?"))
	if err != nil {
		return false, fmt.Errorf("query motor control of axis %s: %w", a.label, err)
	}

	return payload == "1", nil
}

// UnitMultiplier returns the device steps per physical unit fetched while
// opening.
func (a *Axis) UnitMultiplier() (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.ensureOpen(); err != nil {
		return 0, err
	}

	return a.multiplier, nil
}

// IsBusy reports whether the controller is executing motion. The firmware
// reports busy for the whole controller, not per axis. IsBusy takes no axis
// lock so it works while a blocking move or a calibration is in flight.
func (a *Axis) IsBusy(ctx context.Context) (bool, error) {
	return a.ctrl.IsBusy(ctx)
}

// Wait polls the busy flag at the configured interval until motion completes
// or ctx is cancelled. Like IsBusy it takes no axis lock.
func (a *Axis) Wait(ctx context.Context) error {
	interval := a.ctrl.cfg.PollInterval()
	for {
		busy, err := a.IsBusy(ctx)
		if err != nil {
			return err
		}
		if !busy {
			return nil
		}

		if err := sleepContext(ctx, interval); err != nil {
			return err
		}
	}
}

// Stop halts motion immediately. The firmware halts every motor on the
// controller; there is no per-axis halt. Stop takes no axis lock so it can
// interrupt a blocking move or a calibration.
func (a *Axis) Stop(ctx context.Context) error {
	if err := a.ctrl.Halt(ctx); err != nil {
		return fmt.Errorf("stop axis %s: %w", a.label, err)
	}

	return nil
}

// EnumerateProperties lists the queryable axis properties.
func (a *Axis) EnumerateProperties() []Property {
	return []Property{PropertyMotorControl, PropertyUnitMultiplier}
}

// GetProperty resolves a property name to its protocol query. Unlike
// UnitMultiplier, which returns the value cached at open time, the property
// query always asks the device.
func (a *Axis) GetProperty(ctx context.Context, prop Property) (any, error) {
	switch prop {
	case PropertyMotorControl:
		return a.MotorControl(ctx)
	case PropertyUnitMultiplier:
		return a.queryUnitMultiplier(ctx)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProperty, prop)
	}
}

// --- internals, called with mu held ---

func (a *Axis) ensureOpen() error {
	if !a.opState.IsOpened() {
		return ErrAxisNotOpen
	}

	return nil
}

// toDeviceUnits converts a physical value to integer device steps.
func (a *Axis) toDeviceUnits(v float64) int64 {
	return int64(math.Round(v * a.multiplier))
}

// toPhysical converts raw device steps back to physical units.
func (a *Axis) toPhysical(raw float64) float64 {
	return raw / a.multiplier
}

func (a *Axis) position(ctx context.Context) (float64, error) {
	if err := a.ensureOpen(); err != nil {
		return 0, err
	}

	payload, err := a.ctrl.Send(ctx, NewCommand(verbWhere, a.label))
	if err != nil {
		return 0, fmt.Errorf("query position of axis %s: %w", a.label, err)
	}

	raw, err := parseLeadingFloat(payload)
	if err != nil {
		return 0, err
	}

	return a.toPhysical(raw), nil
}

func (a *Axis) moveAbsolute(ctx context.Context, pos float64, wait bool) error {
	if err := a.ensureOpen(); err != nil {
		return err
	}

	a.logger.Debug("move absolute", "position", pos, "wait", wait)
	if _, err := a.ctrl.Send(ctx, NewCommand(verbMoveAbs).WithAxisArg(a.label, a.toDeviceUnits(pos))); err != nil {
		return fmt.Errorf("move axis %s to %v: %w", a.label, pos, err)
	}

	if wait {
		return a.Wait(ctx)
	}

	return nil
}

func (a *Axis) moveRelative(ctx context.Context, delta float64, wait bool) error {
	if err := a.ensureOpen(); err != nil {
		return err
	}

	a.logger.Debug("move relative", "delta", delta, "wait", wait)
	if _, err := a.ctrl.Send(ctx, NewCommand(verbMoveRel).WithAxisArg(a.label, a.toDeviceUnits(delta))); err != nil {
		return fmt.Errorf("move axis %s by %v: %w", a.label, delta, err)
	}

	if wait {
		return a.Wait(ctx)
	}

	return nil
}

func (a *Axis) velocity(ctx context.Context) (float64, error) {
	if err := a.ensureOpen(); err != nil {
		return 0, err
	}

	payload, err := a.ctrl.Send(ctx, NewCommand(verbVelocity, a.label+"?"))
	if err != nil {
		return 0, fmt.Errorf("query velocity of axis %s: %w", a.label, err)
	}

	return parseValueField(payload)
}

func (a *Axis) setVelocity(ctx context.Context, v float64) error {
	if err := a.ensureOpen(); err != nil {
		return err
	}

	if _, err := a.ctrl.Send(ctx, NewCommand(verbVelocity).WithAxisArg(a.label, v)); err != nil {
		return fmt.Errorf("set velocity of axis %s: %w", a.label, err)
	}

	return nil
}

func (a *Axis) limits(ctx context.Context) (float64, float64, error) {
	if err := a.ensureOpen(); err != nil {
		return 0, 0, err
	}

	loPayload, err := a.ctrl.Send(ctx, NewCommand(verbLowerLimit, a.label+"?"))
	if err != nil {
		return 0, 0, fmt.Errorf("query lower limit of axis %s: %w", a.label, err)
	}
	lo, err := parseValueField(loPayload)
	if err != nil {
		return 0, 0, err
	}

	hiPayload, err := a.ctrl.Send(ctx, NewCommand(verbUpperLimit, a.label+"?"))
	if err != nil {
		return 0, 0, fmt.Errorf("query upper limit of axis %s: %w", a.label, err)
	}
	hi, err := parseValueField(hiPayload)
	if err != nil {
		return 0, 0, err
	}

	return lo, hi, nil
}

func (a *Axis) setLimits(ctx context.Context, lo, hi float64) error {
	if err := a.ensureOpen(); err != nil {
		return err
	}
	if lo >= hi {
		return fmt.Errorf("asi: lower limit %v is not below upper limit %v", lo, hi)
	}

	if _, err := a.ctrl.Send(ctx, NewCommand(verbLowerLimit).WithAxisArg(a.label, lo)); err != nil {
		return fmt.Errorf("set lower limit of axis %s: %w", a.label, err)
	}
	if _, err := a.ctrl.Send(ctx, NewCommand(verbUpperLimit).WithAxisArg(a.label, hi)); err != nil {
		return fmt.Errorf("set upper limit of axis %s: %w", a.label, err)
	}

	return nil
}

func (a *Axis) setOrigin(ctx context.Context) error {
	if err := a.ensureOpen(); err != nil {
		return err
	}

	if _, err := a.ctrl.Send(ctx, NewCommand(verbSetOrigin, a.label+"+")); err != nil {
		return fmt.Errorf("set origin of axis %s: %w", a.label, err)
	}

	return nil
}

func (a *Axis) limitStatus(ctx context.Context) (LimitStatus, error) {
	if err := a.ensureOpen(); err != nil {
		return WithinRange, err
	}

	payload, err := a.ctrl.Send(ctx, NewCommand(verbRefStatus, a.label+"-"))
	if err != nil {
		return WithinRange, fmt.Errorf("query limit status of axis %s: %w", a.label, err)
	}

	switch payload {
	case flagUpperLimit:
		return UpperLimit, nil
	case flagLowerLimit:
		return LowerLimit, nil
	default:
		return WithinRange, nil
	}
}

// queryUnitMultiplier asks the device for the steps-per-unit factor. The
// reply has the shape ":X=10000.000000 A"; the value sits after the last "=".
func (a *Axis) queryUnitMultiplier(ctx context.Context) (float64, error) {
	payload, err := a.ctrl.Send(ctx, NewCommand(verbUnitMult, a.label+"?"))
	if err != nil {
		return 0, fmt.Errorf("query unit multiplier of axis %s: %w", a.label, err)
	}

	return parseValueField(payload)
}

// sleepContext sleeps for d or until ctx is cancelled, drawing the timer
// from the shared pool.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := pool.GetTimer(d)
	defer pool.PutTimer(timer)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
