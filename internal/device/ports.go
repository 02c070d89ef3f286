package device

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/swncrew-core/internal/infrastructure/mqtt"
)

// Recorder receives device state changes, typically for time-series
// storage. Implementations must not block.
type Recorder interface {
	WriteActuatorState(kind string, id int, value float64, ts time.Time)
	WriteSensorReading(kind string, id int, value float64, ts time.Time)
}

// Publisher sends JSON payloads to MQTT topics. Satisfied by *mqtt.Client.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

type noopRecorder struct{}

func (noopRecorder) WriteActuatorState(string, int, float64, time.Time) {}
func (noopRecorder) WriteSensorReading(string, int, float64, time.Time) {}

// base holds what both port implementations share.
type base struct {
	registry *Registry
	recorder Recorder
	logger   Logger
	now      func() time.Time
}

func newBase(registry *Registry) base {
	return base{registry: registry, recorder: noopRecorder{}, logger: noopLogger{}, now: time.Now}
}

// SetRecorder sets where state changes are reported.
func (b *base) SetRecorder(rec Recorder) {
	if rec != nil {
		b.recorder = rec
	}
}

// SetLogger sets the logger.
func (b *base) SetLogger(logger Logger) {
	if logger != nil {
		b.logger = logger
	}
}

func (b *base) valveApplied(valveID int, open bool, ts time.Time) {
	if err := b.registry.SetValveOpen(valveID, open); err != nil {
		b.logger.Warn("recording valve state", "valve_id", valveID, "error", err)
	}
	state := 0.0
	if open {
		state = 1
	}
	if valveID == AllValves {
		for _, v := range b.registry.Valves() {
			b.recorder.WriteActuatorState(KindSolenoidValve, v.ID, state, ts)
		}
		return
	}
	b.recorder.WriteActuatorState(KindSolenoidValve, valveID, state, ts)
}

func (b *base) setpointApplied(sensorID int, value *float64, ts time.Time) {
	if err := b.registry.SetSetpoint(sensorID, value); err != nil {
		b.logger.Warn("recording flow setpoint", "sensor_id", sensorID, "error", err)
	}
	setpoint := 0.0
	if value != nil {
		setpoint = *value
	}
	b.recorder.WriteActuatorState(KindFlowmeter, sensorID, setpoint, ts)
}

// MQTTPorts drives valves and flowmeters through a hardware bridge by
// publishing CommandMessages. A command counts as applied once the broker
// has acknowledged it.
type MQTTPorts struct {
	base
	pub      Publisher
	protocol string
	topics   mqtt.Topics
}

// NewMQTTPorts creates ports that publish commands for protocol (e.g.
// "gpio" or "can") through pub.
func NewMQTTPorts(pub Publisher, registry *Registry, protocol string) *MQTTPorts {
	return &MQTTPorts{base: newBase(registry), pub: pub, protocol: protocol}
}

// SetValveOpen publishes an open or close command for valveID.
func (p *MQTTPorts) SetValveOpen(ctx context.Context, valveID int, open bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.registry.CheckValve(valveID); err != nil {
		return err
	}

	command := CommandClose
	if open {
		command = CommandOpen
	}
	if err := p.send(ValveName(valveID), command, nil); err != nil {
		return err
	}
	p.valveApplied(valveID, open, p.now())
	return nil
}

// SetFlowSetpoint publishes a setpoint command for sensorID, or a clear
// command when value is nil.
func (p *MQTTPorts) SetFlowSetpoint(ctx context.Context, sensorID int, value *float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.registry.CheckFlowmeter(sensorID); err != nil {
		return err
	}

	command, params := CommandClearSetpoint, map[string]any(nil)
	if value != nil {
		command, params = CommandSetSetpoint, map[string]any{"setpoint": *value, "unit": UnitLitresPerMinute}
	}
	if err := p.send(FlowmeterName(sensorID), command, params); err != nil {
		return err
	}
	p.setpointApplied(sensorID, value, p.now())
	return nil
}

func (p *MQTTPorts) send(deviceName, command string, params map[string]any) error {
	msg := CommandMessage{
		ID:         uuid.NewString(),
		Timestamp:  p.now().UTC(),
		DeviceID:   deviceName,
		Command:    command,
		Parameters: params,
		Source:     CommandSource,
	}
	topic := p.topics.Command(p.protocol, deviceName)
	if err := p.pub.PublishJSON(topic, msg, false); err != nil {
		return fmt.Errorf("publishing %s to %s: %w", command, deviceName, err)
	}
	p.logger.Debug("command published", "topic", topic, "command", command, "command_id", msg.ID)
	return nil
}

// MockPorts applies commands directly to the registry. Each setpoint is
// mirrored as the flowmeter's reading so the catalogue looks live.
type MockPorts struct {
	base
}

// NewMockPorts creates in-process ports over registry.
func NewMockPorts(registry *Registry) *MockPorts {
	return &MockPorts{base: newBase(registry)}
}

// SetValveOpen records the valve state.
func (p *MockPorts) SetValveOpen(ctx context.Context, valveID int, open bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.registry.CheckValve(valveID); err != nil {
		return err
	}
	p.valveApplied(valveID, open, p.now())
	return nil
}

// SetFlowSetpoint records the setpoint and a matching reading.
func (p *MockPorts) SetFlowSetpoint(ctx context.Context, sensorID int, value *float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.registry.CheckFlowmeter(sensorID); err != nil {
		return err
	}

	now := p.now()
	p.setpointApplied(sensorID, value, now)

	flow := 0.0
	if value != nil {
		flow = *value
	}
	if _, err := p.registry.RecordReading(sensorID, NewReading(flow, now)); err != nil {
		return err
	}
	p.recorder.WriteSensorReading(KindFlowmeter, sensorID, flow, now)
	return nil
}
