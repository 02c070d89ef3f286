package device

import (
	"encoding/json"
	"fmt"
	"path"
	"time"
)

// State keys reported by hardware bridges.
const (
	StateKeyFlowRate = "flow_rate"
	StateKeyOpen     = "open"
)

// StateIngester applies bridge state messages to the registry.
type StateIngester struct {
	registry *Registry
	recorder Recorder
	logger   Logger
	now      func() time.Time
}

// NewStateIngester creates an ingester for registry.
func NewStateIngester(registry *Registry) *StateIngester {
	return &StateIngester{registry: registry, recorder: noopRecorder{}, logger: noopLogger{}, now: time.Now}
}

// SetRecorder sets where ingested readings are reported.
func (in *StateIngester) SetRecorder(rec Recorder) {
	if rec != nil {
		in.recorder = rec
	}
}

// SetLogger sets the logger.
func (in *StateIngester) SetLogger(logger Logger) {
	if logger != nil {
		in.logger = logger
	}
}

// HandleState decodes one StateMessage. It matches mqtt.MessageHandler so
// it can be subscribed directly to swncrew/state/{protocol}/+.
//
// The device is taken from device_id, falling back to the last topic
// segment.
func (in *StateIngester) HandleState(topic string, payload []byte) error {
	var msg StateMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	name := msg.DeviceID
	if name == "" {
		name = path.Base(topic)
	}
	kind, id, err := ParseName(name)
	if err != nil {
		return err
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = in.now()
	}

	switch kind {
	case KindFlowmeter:
		return in.applyReading(id, msg.State, ts)
	default:
		return in.applyValve(id, msg.State)
	}
}

func (in *StateIngester) applyReading(id int, state map[string]any, ts time.Time) error {
	value, ok := state[StateKeyFlowRate].(float64)
	if !ok {
		return fmt.Errorf("%w: flowmeter state needs numeric %q", ErrInvalidMessage, StateKeyFlowRate)
	}
	if _, err := in.registry.RecordReading(id, NewReading(value, ts)); err != nil {
		return err
	}
	in.recorder.WriteSensorReading(KindFlowmeter, id, value, ts)
	in.logger.Debug("flowmeter reading ingested", "sensor_id", id, "flow_rate", value)
	return nil
}

func (in *StateIngester) applyValve(id int, state map[string]any) error {
	open, ok := state[StateKeyOpen].(bool)
	if !ok {
		return fmt.Errorf("%w: valve state needs boolean %q", ErrInvalidMessage, StateKeyOpen)
	}
	return in.registry.SetValveOpen(id, open)
}
