package device

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// AllValves addresses every valve at once.
const AllValves = -1

// Kinds name device classes in commands, MQTT device names and telemetry
// measurements.
const (
	KindSolenoidValve = "solenoid valve"
	KindFlowmeter     = "flowmeter"
)

// UnitLitresPerMinute is the unit of flowmeter readings and setpoints.
const UnitLitresPerMinute = "l/min"

const (
	valvePrefix     = "valve-"
	flowmeterPrefix = "flowmeter-"
)

// Valve is an on/off solenoid valve.
type Valve struct {
	ID        int        `json:"id"`
	Type      string     `json:"type"`
	Open      bool       `json:"open"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Reading is a single flowmeter measurement.
type Reading struct {
	Value       float64 `json:"value"`
	TimestampNS int64   `json:"timestamp_ns"`
}

// NewReading creates a reading taken at ts.
func NewReading(value float64, ts time.Time) Reading {
	return Reading{Value: value, TimestampNS: ts.UnixNano()}
}

// Time returns the reading's timestamp.
func (r Reading) Time() time.Time {
	return time.Unix(0, r.TimestampNS).UTC()
}

// Validate rejects non-finite and negative values.
func (r Reading) Validate() error {
	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) || r.Value < 0 {
		return fmt.Errorf("%w: value must be a non-negative number, got %v", ErrInvalidReading, r.Value)
	}
	if r.TimestampNS <= 0 {
		return fmt.Errorf("%w: timestamp_ns must be positive", ErrInvalidReading)
	}
	return nil
}

// Flowmeter is a flow sensor that also accepts a flow setpoint.
type Flowmeter struct {
	ID             int      `json:"id"`
	Type           string   `json:"type"`
	Unit           string   `json:"unit"`
	Setpoint       *float64 `json:"setpoint"`
	CurrentReading *Reading `json:"current_reading"`
}

func (f Flowmeter) clone() Flowmeter {
	if f.Setpoint != nil {
		v := *f.Setpoint
		f.Setpoint = &v
	}
	if f.CurrentReading != nil {
		r := *f.CurrentReading
		f.CurrentReading = &r
	}
	return f
}

func (v Valve) clone() Valve {
	if v.UpdatedAt != nil {
		t := *v.UpdatedAt
		v.UpdatedAt = &t
	}
	return v
}

// ValveName is the bridge-facing device name of a valve, e.g. "valve-2".
// AllValves maps to "valve-all".
func ValveName(id int) string {
	if id == AllValves {
		return valvePrefix + "all"
	}
	return valvePrefix + strconv.Itoa(id)
}

// FlowmeterName is the bridge-facing device name of a flowmeter.
func FlowmeterName(id int) string {
	return flowmeterPrefix + strconv.Itoa(id)
}

// ParseName splits a device name produced by ValveName or FlowmeterName
// into its kind and ID.
func ParseName(name string) (kind string, id int, err error) {
	var rest string
	switch {
	case strings.HasPrefix(name, valvePrefix):
		kind, rest = KindSolenoidValve, strings.TrimPrefix(name, valvePrefix)
	case strings.HasPrefix(name, flowmeterPrefix):
		kind, rest = KindFlowmeter, strings.TrimPrefix(name, flowmeterPrefix)
	default:
		return "", 0, fmt.Errorf("%w: %q", ErrUnknownDevice, name)
	}

	if kind == KindSolenoidValve && rest == "all" {
		return kind, AllValves, nil
	}
	id, err = strconv.Atoi(rest)
	if err != nil || id < 0 {
		return "", 0, fmt.Errorf("%w: %q", ErrUnknownDevice, name)
	}
	return kind, id, nil
}
