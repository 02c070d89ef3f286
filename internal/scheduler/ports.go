package scheduler

import (
	"context"

	"github.com/nerrad567/swncrew-core/internal/mission"
)

// ValvePort opens and closes the flow-control valves.
type ValvePort interface {
	SetValveOpen(ctx context.Context, valveID int, open bool) error
}

// SetpointPort sets the flow setpoint on a flowmeter. A nil value clears
// the setpoint.
type SetpointPort interface {
	SetFlowSetpoint(ctx context.Context, sensorID int, value *float64) error
}

// TelemetrySink records finished missions. Failures are logged by the
// controller and otherwise ignored.
type TelemetrySink interface {
	RecordCompletedMission(ctx context.Context, c mission.Completed) error
}

// Logger is the logging interface used by the scheduler.
// Satisfied by logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
