package mission

import (
	"fmt"
	"math"
	"time"
)

const (
	minValveID            = -1
	minScalingFactor      = 1
	hoursPerDay           = 24
	actualStartTimeLayout = "15:04:05"

	// maxPointTime is the first time, in seconds, a time.Duration cannot hold.
	maxPointTime = float64(math.MaxInt64) / float64(time.Second)
)

var validEndUses map[EndUse]struct{}

func init() {
	validEndUses = make(map[EndUse]struct{}, len(AllEndUses()))
	for _, e := range AllEndUses() {
		validEndUses[e] = struct{}{}
	}
}

// ValidationError reports the field that made a mission unacceptable.
// Index is the offending trajectory point, or -1.
type ValidationError struct {
	Field   string `json:"field"`
	Index   int    `json:"index"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("mission: invalid %s[%d]: %s", e.Field, e.Index, e.Message)
	}
	return fmt.Sprintf("mission: invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidMission
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Index: -1, Message: fmt.Sprintf(format, args...)}
}

func invalidPoint(i int, format string, args ...any) *ValidationError {
	return &ValidationError{Field: "flow_trajectory", Index: i, Message: fmt.Sprintf(format, args...)}
}

// Validate checks a mission for admission and returns the first problem
// found as a *ValidationError. It has no side effects.
func Validate(m Mission) error {
	if m.ValveID < minValveID {
		return invalid("valve_id", "must be >= %d, got %d", minValveID, m.ValveID)
	}

	if err := ValidateTrajectory(m.FlowTrajectory); err != nil {
		return err
	}

	if m.ActualEndUse != nil && !ValidEndUse(*m.ActualEndUse) {
		return invalid("actual_end_use", "unknown end use %q", *m.ActualEndUse)
	}
	if m.DurationScalingFactor != nil && *m.DurationScalingFactor < minScalingFactor {
		return invalid("duration_scaling_factor", "must be >= %d, got %d", minScalingFactor, *m.DurationScalingFactor)
	}
	if m.ActualStartTime != nil {
		if _, err := time.Parse(actualStartTimeLayout, *m.ActualStartTime); err != nil {
			return invalid("actual_start_time", "must be HH:MM:SS, got %q", *m.ActualStartTime)
		}
	}
	return nil
}

// ValidateTrajectory requires a non-empty trajectory of finite,
// non-negative points with strictly ascending times, each small enough
// to be held as a time.Duration.
func ValidateTrajectory(points []Point) error {
	if len(points) == 0 {
		return invalid("flow_trajectory", "trajectory is empty")
	}

	for i, p := range points {
		switch {
		case !finite(p.Time) || !finite(p.FlowRate):
			return invalidPoint(i, "time and flow_rate must be finite")
		case p.Time < 0:
			return invalidPoint(i, "negative time %v", p.Time)
		case p.Time >= maxPointTime:
			return invalidPoint(i, "time %v exceeds the longest supported hold of %.0fs", p.Time, maxPointTime)
		case p.FlowRate < 0:
			return invalidPoint(i, "negative flow_rate %v", p.FlowRate)
		case i > 0 && p.Time <= points[i-1].Time:
			return invalidPoint(i, "time %v does not follow %v; times must be strictly ascending", p.Time, points[i-1].Time)
		}
	}
	return nil
}

// ValidateClassified checks a classification result before it is accepted.
func ValidateClassified(c Classified) error {
	if err := Validate(c.Mission); err != nil {
		return err
	}
	if c.EndTS.Before(c.StartTS) {
		return invalid("end_ts", "end_ts precedes start_ts")
	}
	if !ValidEndUse(c.PredictedEndUse) {
		return invalid("predicted_end_use", "unknown end use %q", c.PredictedEndUse)
	}

	f := c.Features
	measured := []struct {
		name  string
		value float64
	}{
		{"Volume", f.Volume}, {"Mean", f.Mean}, {"Peak", f.Peak}, {"Duration", f.Duration},
	}
	for _, m := range measured {
		if !finite(m.value) || m.value < 0 {
			return invalid("features."+m.name, "must be a non-negative number")
		}
	}
	if !finite(f.Hour) || f.Hour < 0 || f.Hour >= hoursPerDay {
		return invalid("features.Hour", "must be in [0, 24), got %v", f.Hour)
	}
	return nil
}

// ValidEndUse reports whether e is a known end use.
func ValidEndUse(e EndUse) bool {
	_, ok := validEndUses[e]
	return ok
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
