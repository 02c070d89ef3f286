package scheduler

import "errors"

var (
	// ErrRunnerPanic wraps a panic recovered while executing a mission.
	ErrRunnerPanic = errors.New("scheduler: mission execution panicked")

	// ErrSinkPanic wraps a panic recovered from a telemetry sink.
	ErrSinkPanic = errors.New("scheduler: telemetry sink panicked")
)
