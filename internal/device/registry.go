package device

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Logger defines the logging interface used by the device package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry holds the last known state of every valve and flowmeter.
//
// The set of devices is fixed at construction. All public methods are
// thread-safe and return copies.
type Registry struct {
	mu         sync.RWMutex
	valves     []Valve
	flowmeters []Flowmeter
	now        func() time.Time
	logger     Logger
}

// NewRegistry creates a registry with valves 0..valveCount-1 and
// flowmeters 0..flowmeterCount-1, all closed and idle.
func NewRegistry(valveCount, flowmeterCount int) *Registry {
	r := &Registry{
		valves:     make([]Valve, max(valveCount, 0)),
		flowmeters: make([]Flowmeter, max(flowmeterCount, 0)),
		now:        time.Now,
		logger:     noopLogger{},
	}
	for i := range r.valves {
		r.valves[i] = Valve{ID: i, Type: KindSolenoidValve}
	}
	for i := range r.flowmeters {
		r.flowmeters[i] = Flowmeter{ID: i, Type: KindFlowmeter, Unit: UnitLitresPerMinute}
	}
	return r
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Valves returns every valve ordered by ID.
func (r *Registry) Valves() []Valve {
	r.mu.RLock()
	defer r.mu.RUnlock()

	valves := make([]Valve, len(r.valves))
	for i, v := range r.valves {
		valves[i] = v.clone()
	}
	return valves
}

// Valve returns one valve.
func (r *Registry) Valve(id int) (Valve, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id < 0 || id >= len(r.valves) {
		return Valve{}, fmt.Errorf("%w: %d", ErrValveNotFound, id)
	}
	return r.valves[id].clone(), nil
}

// CheckValve reports whether id addresses a known valve or AllValves.
func (r *Registry) CheckValve(id int) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id == AllValves || (id >= 0 && id < len(r.valves)) {
		return nil
	}
	return fmt.Errorf("%w: %d", ErrValveNotFound, id)
}

// SetValveOpen records a valve's state. AllValves updates every valve.
func (r *Registry) SetValveOpen(id int, open bool) error {
	if err := r.CheckValve(id); err != nil {
		return err
	}

	now := r.now().UTC()
	r.mu.Lock()
	for i := range r.valves {
		if id == AllValves || i == id {
			r.valves[i].Open = open
			r.valves[i].UpdatedAt = &now
		}
	}
	r.mu.Unlock()

	r.logger.Debug("valve state updated", "valve_id", id, "open", open)
	return nil
}

// Flowmeters returns every flowmeter ordered by ID.
func (r *Registry) Flowmeters() []Flowmeter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	flowmeters := make([]Flowmeter, len(r.flowmeters))
	for i, f := range r.flowmeters {
		flowmeters[i] = f.clone()
	}
	return flowmeters
}

// Flowmeter returns one flowmeter.
func (r *Registry) Flowmeter(id int) (Flowmeter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id < 0 || id >= len(r.flowmeters) {
		return Flowmeter{}, fmt.Errorf("%w: %d", ErrFlowmeterNotFound, id)
	}
	return r.flowmeters[id].clone(), nil
}

// CheckFlowmeter reports whether id addresses a known flowmeter.
func (r *Registry) CheckFlowmeter(id int) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id < 0 || id >= len(r.flowmeters) {
		return fmt.Errorf("%w: %d", ErrFlowmeterNotFound, id)
	}
	return nil
}

// SetSetpoint records a flowmeter's setpoint. A nil value clears it.
func (r *Registry) SetSetpoint(id int, value *float64) error {
	if value != nil && (math.IsNaN(*value) || math.IsInf(*value, 0) || *value < 0) {
		return fmt.Errorf("%w: setpoint must be a non-negative number, got %v", ErrInvalidReading, *value)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id < 0 || id >= len(r.flowmeters) {
		return fmt.Errorf("%w: %d", ErrFlowmeterNotFound, id)
	}
	if value == nil {
		r.flowmeters[id].Setpoint = nil
	} else {
		v := *value
		r.flowmeters[id].Setpoint = &v
	}
	return nil
}

// RecordReading stores reading as the flowmeter's current reading.
// Readings older than the stored one are ignored.
func (r *Registry) RecordReading(id int, reading Reading) (Flowmeter, error) {
	if err := reading.Validate(); err != nil {
		return Flowmeter{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id < 0 || id >= len(r.flowmeters) {
		return Flowmeter{}, fmt.Errorf("%w: %d", ErrFlowmeterNotFound, id)
	}
	f := &r.flowmeters[id]
	if f.CurrentReading == nil || reading.TimestampNS >= f.CurrentReading.TimestampNS {
		f.CurrentReading = &reading
	}
	return f.clone(), nil
}

// Stats returns registry statistics for monitoring.
type Stats struct {
	Valves          int `json:"valves"`
	OpenValves      int `json:"open_valves"`
	Flowmeters      int `json:"flowmeters"`
	ActiveSetpoints int `json:"active_setpoints"`
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{Valves: len(r.valves), Flowmeters: len(r.flowmeters)}
	for _, v := range r.valves {
		if v.Open {
			s.OpenValves++
		}
	}
	for _, f := range r.flowmeters {
		if f.Setpoint != nil {
			s.ActiveSetpoints++
		}
	}
	return s
}
