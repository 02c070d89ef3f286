package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/swncrew-core/internal/mission"
)

const defaultCleanupTimeout = 5 * time.Second

// Outcome describes how one mission run ended. Cancellation is not an
// error: Cancelled is set and Err stays nil unless a port call also failed.
type Outcome struct {
	StartTS   time.Time
	EndTS     time.Time
	Cancelled bool
	Err       error
}

// Runner executes a single mission against the valve and setpoint ports.
type Runner struct {
	valves         ValvePort
	setpoints      SetpointPort
	sensorID       int
	cleanupTimeout time.Duration
	now            func() time.Time
	logger         Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithCleanupTimeout bounds the setpoint-clear and valve-close commands
// issued after a mission, which run even when the mission was cancelled.
func WithCleanupTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.cleanupTimeout = d
		}
	}
}

// WithClock replaces time.Now for start and end timestamps.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// WithRunnerLogger sets the runner's logger.
func WithRunnerLogger(l Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRunner creates a Runner that sends setpoints to flowmeter sensorID.
func NewRunner(valves ValvePort, setpoints SetpointPort, sensorID int, opts ...RunnerOption) *Runner {
	r := &Runner{
		valves:         valves,
		setpoints:      setpoints,
		sensorID:       sensorID,
		cleanupTimeout: defaultCleanupTimeout,
		now:            time.Now,
		logger:         noopLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes a mission's flow trajectory.
//
// It performs the following steps:
//  1. Opens the mission's valve
//  2. Applies each setpoint at its scheduled offset
//  3. Clears the setpoint and closes the valve exactly once, however the
//     run ends
//
// Parameters:
//   - ctx: Cancels the run; cleanup still runs under its own timeout
//   - m: A mission that has passed mission.Validate
//
// Returns:
//   - Outcome: Start and end times, whether the run was cancelled, and
//     any port or cleanup error. Run never panics.
//
// Thread Safety:
//   - Run holds no Runner state between calls; the controller calls it
//     for one mission at a time.
func (r *Runner) Run(ctx context.Context, m mission.Mission) (out Outcome) {
	defer func() {
		if p := recover(); p != nil {
			out.Err = errors.Join(out.Err, fmt.Errorf("%w: %v", ErrRunnerPanic, p))
		}
		if out.StartTS.IsZero() {
			out.StartTS = r.now()
		}
		out.Err = errors.Join(out.Err, r.cleanup(ctx, m.ValveID))
		out.EndTS = r.now()
		if out.EndTS.Before(out.StartTS) {
			out.EndTS = out.StartTS
		}
	}()

	if ctx.Err() != nil {
		out.Cancelled = true
		return out
	}

	if err := r.valves.SetValveOpen(ctx, m.ValveID, true); err != nil {
		out.Cancelled, out.Err = r.classify(ctx, fmt.Errorf("opening valve %d: %w", m.ValveID, err))
		return out
	}
	out.StartTS = r.now()
	r.logger.Debug("valve opened", "valve_id", m.ValveID, "points", len(m.FlowTrajectory))

	out.Cancelled, out.Err = r.follow(ctx, m.FlowTrajectory)
	return out
}

// follow applies each point's flow rate and holds it until the point's
// time, measured from mission start.
func (r *Runner) follow(ctx context.Context, points []mission.Point) (cancelled bool, err error) {
	var previous float64
	for i, p := range points {
		if ctx.Err() != nil {
			return true, nil
		}

		rate := p.FlowRate
		if err := r.setpoints.SetFlowSetpoint(ctx, r.sensorID, &rate); err != nil {
			return r.classify(ctx, fmt.Errorf("point %d: setting flow setpoint %v: %w", i, rate, err))
		}

		if wait := p.Time - previous; wait > 0 {
			if !sleep(ctx, time.Duration(wait*float64(time.Second))) {
				return true, nil
			}
		}
		previous = p.Time
	}
	return false, nil
}

// classify treats a port error caused by our own cancellation as a
// cancellation rather than a failure.
func (r *Runner) classify(ctx context.Context, err error) (bool, error) {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return true, nil
	}
	return false, err
}

// cleanup clears the setpoint and closes the valve. Both commands are
// attempted even if the first fails, on a context detached from the
// mission's cancellation.
func (r *Runner) cleanup(ctx context.Context, valveID int) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cleanupTimeout)
	defer cancel()

	clearErr := guard(func() error { return r.setpoints.SetFlowSetpoint(ctx, r.sensorID, nil) })
	if clearErr != nil {
		clearErr = fmt.Errorf("clearing flow setpoint: %w", clearErr)
	}
	closeErr := guard(func() error { return r.valves.SetValveOpen(ctx, valveID, false) })
	if closeErr != nil {
		closeErr = fmt.Errorf("closing valve %d: %w", valveID, closeErr)
	}

	if err := errors.Join(clearErr, closeErr); err != nil {
		r.logger.Error("mission cleanup failed", "valve_id", valveID, "error", err)
		return err
	}
	r.logger.Debug("valve closed", "valve_id", valveID)
	return nil
}

func guard(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrRunnerPanic, p)
		}
	}()
	return fn()
}

// sleep waits for d, returning false if ctx is done first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
