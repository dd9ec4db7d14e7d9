package asi

import (
	"context"
	"fmt"
)

// Calibrate homes the axis by searching for both limit switches and centers
// the coordinate system between them:
//
//  1. Widen the limits to the configured search span so only the physical
//     switches can end the search.
//  2. Record the current position as the reference to return to.
//  3. Drive toward the far positive edge until the upper switch engages;
//     record the position as hi.
//  4. Drive toward the far negative edge until the lower switch engages;
//     record the position as lo.
//  5. Move up by half the measured travel to reach the center.
//  6. Zero the coordinate system at the center.
//  7. Set the working limits to half the travel on either side.
//  8. Move back to the reference position in the new coordinates.
//
// The axis lock is held for the whole procedure, so no other motion call can
// interleave on this axis; other axes calibrate independently and their
// commands still serialize per transaction on the channel. Stop and IsBusy
// stay callable. A failed step aborts the procedure immediately and may leave
// the axis at an arbitrary position with search-wide limits; the error is
// surfaced, never retried.
func (a *Axis) Calibrate(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.calibrate(ctx)
}

func (a *Axis) calibrate(ctx context.Context) error {
	if err := a.ensureOpen(); err != nil {
		return err
	}

	span := a.ctrl.cfg.CalibrationSpan()
	a.logger.Debug("calibration started", "span", span)

	if err := a.setLimits(ctx, -span, span); err != nil {
		return fmt.Errorf("calibrate axis %s: widen limits: %w", a.label, err)
	}

	reference, err := a.position(ctx)
	if err != nil {
		return fmt.Errorf("calibrate axis %s: read reference: %w", a.label, err)
	}

	hi, err := a.seekLimit(ctx, UpperLimit, span)
	if err != nil {
		return fmt.Errorf("calibrate axis %s: seek upper limit: %w", a.label, err)
	}
	a.logger.Debug("upper limit found", "position", hi)

	lo, err := a.seekLimit(ctx, LowerLimit, -span)
	if err != nil {
		return fmt.Errorf("calibrate axis %s: seek lower limit: %w", a.label, err)
	}
	a.logger.Debug("lower limit found", "position", lo)

	half := (hi - lo) / 2
	if err := a.moveRelative(ctx, half, true); err != nil {
		return fmt.Errorf("calibrate axis %s: center: %w", a.label, err)
	}

	if err := a.setOrigin(ctx); err != nil {
		return fmt.Errorf("calibrate axis %s: %w", a.label, err)
	}

	if err := a.setLimits(ctx, -half, half); err != nil {
		return fmt.Errorf("calibrate axis %s: set working limits: %w", a.label, err)
	}

	if err := a.moveRelative(ctx, (reference-lo)-half, true); err != nil {
		return fmt.Errorf("calibrate axis %s: return to reference: %w", a.label, err)
	}

	a.logger.Info("axis calibrated", "travel", hi-lo)

	return nil
}

// seekLimit starts a move toward target and polls the limit switches until
// want engages, then reads back the position there. The firmware stops the
// motor on its own when a switch engages.
func (a *Axis) seekLimit(ctx context.Context, want LimitStatus, target float64) (float64, error) {
	if err := a.moveAbsolute(ctx, target, false); err != nil {
		return 0, err
	}

	interval := a.ctrl.cfg.PollInterval()
	for {
		status, err := a.limitStatus(ctx)
		if err != nil {
			return 0, err
		}
		if status == want {
			break
		}

		if err := sleepContext(ctx, interval); err != nil {
			return 0, err
		}
	}

	return a.position(ctx)
}
