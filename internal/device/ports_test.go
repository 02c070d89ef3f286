package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type published struct {
	topic string
	msg   CommandMessage
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (f *fakePublisher) PublishJSON(topic string, v any, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{topic: topic, msg: v.(CommandMessage)})
	return nil
}

type point struct {
	kind  string
	id    int
	value float64
}

type fakeRecorder struct {
	mu        sync.Mutex
	actuators []point
	sensors   []point
}

func (f *fakeRecorder) WriteActuatorState(kind string, id int, value float64, _ time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actuators = append(f.actuators, point{kind, id, value})
}

func (f *fakeRecorder) WriteSensorReading(kind string, id int, value float64, _ time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sensors = append(f.sensors, point{kind, id, value})
}

func TestMQTTPorts_ValveCommands(t *testing.T) {
	reg := NewRegistry(3, 1)
	pub := &fakePublisher{}
	rec := &fakeRecorder{}
	ports := NewMQTTPorts(pub, reg, "gpio")
	ports.SetRecorder(rec)

	ctx := context.Background()
	if err := ports.SetValveOpen(ctx, 2, true); err != nil {
		t.Fatalf("SetValveOpen error = %v", err)
	}
	if err := ports.SetValveOpen(ctx, 2, false); err != nil {
		t.Fatalf("SetValveOpen(false) error = %v", err)
	}

	if len(pub.sent) != 2 {
		t.Fatalf("published %d commands, want 2", len(pub.sent))
	}
	first := pub.sent[0]
	if first.topic != "swncrew/command/gpio/valve-2" {
		t.Errorf("topic = %q", first.topic)
	}
	if first.msg.Command != CommandOpen || first.msg.DeviceID != "valve-2" || first.msg.Source != CommandSource {
		t.Errorf("command = %+v", first.msg)
	}
	if first.msg.ID == "" || first.msg.ID == pub.sent[1].msg.ID {
		t.Error("each command needs a unique ID")
	}
	if pub.sent[1].msg.Command != CommandClose {
		t.Errorf("second command = %q, want close", pub.sent[1].msg.Command)
	}

	if v, _ := reg.Valve(2); v.Open {
		t.Error("valve 2 should be closed")
	}
	want := []point{{KindSolenoidValve, 2, 1}, {KindSolenoidValve, 2, 0}}
	if len(rec.actuators) != 2 || rec.actuators[0] != want[0] || rec.actuators[1] != want[1] {
		t.Errorf("actuator telemetry = %v, want %v", rec.actuators, want)
	}
}

func TestMQTTPorts_AllValves(t *testing.T) {
	reg := NewRegistry(3, 0)
	pub := &fakePublisher{}
	rec := &fakeRecorder{}
	ports := NewMQTTPorts(pub, reg, "gpio")
	ports.SetRecorder(rec)

	if err := ports.SetValveOpen(context.Background(), AllValves, true); err != nil {
		t.Fatalf("SetValveOpen(all) error = %v", err)
	}
	if pub.sent[0].topic != "swncrew/command/gpio/valve-all" {
		t.Errorf("topic = %q", pub.sent[0].topic)
	}
	if got := reg.GetStats().OpenValves; got != 3 {
		t.Errorf("OpenValves = %d, want 3", got)
	}
	if len(rec.actuators) != 3 {
		t.Errorf("actuator points = %d, want one per valve", len(rec.actuators))
	}
}

func TestMQTTPorts_Setpoint(t *testing.T) {
	reg := NewRegistry(1, 2)
	pub := &fakePublisher{}
	ports := NewMQTTPorts(pub, reg, "can")

	v := 3.5
	if err := ports.SetFlowSetpoint(context.Background(), 1, &v); err != nil {
		t.Fatalf("SetFlowSetpoint error = %v", err)
	}
	msg := pub.sent[0].msg
	if pub.sent[0].topic != "swncrew/command/can/flowmeter-1" || msg.Command != CommandSetSetpoint {
		t.Errorf("sent %+v to %q", msg, pub.sent[0].topic)
	}
	if msg.Parameters["setpoint"] != 3.5 {
		t.Errorf("parameters = %v", msg.Parameters)
	}
	if f, _ := reg.Flowmeter(1); f.Setpoint == nil || *f.Setpoint != 3.5 {
		t.Error("registry setpoint not updated")
	}

	if err := ports.SetFlowSetpoint(context.Background(), 1, nil); err != nil {
		t.Fatalf("clear error = %v", err)
	}
	if pub.sent[1].msg.Command != CommandClearSetpoint || pub.sent[1].msg.Parameters != nil {
		t.Errorf("clear command = %+v", pub.sent[1].msg)
	}
	if f, _ := reg.Flowmeter(1); f.Setpoint != nil {
		t.Error("setpoint should be cleared")
	}
}

func TestMQTTPorts_Errors(t *testing.T) {
	reg := NewRegistry(1, 1)
	pub := &fakePublisher{err: errors.New("not connected")}
	ports := NewMQTTPorts(pub, reg, "gpio")

	err := ports.SetValveOpen(context.Background(), 0, true)
	if err == nil || !errors.Is(err, pub.err) {
		t.Fatalf("SetValveOpen error = %v, want publish error", err)
	}
	if v, _ := reg.Valve(0); v.Open {
		t.Error("failed command must not change registry state")
	}

	pub.err = nil
	if err := ports.SetValveOpen(context.Background(), 7, true); !errors.Is(err, ErrValveNotFound) {
		t.Errorf("unknown valve error = %v", err)
	}
	if err := ports.SetFlowSetpoint(context.Background(), 4, nil); !errors.Is(err, ErrFlowmeterNotFound) {
		t.Errorf("unknown flowmeter error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := ports.SetValveOpen(ctx, 0, true); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled ctx error = %v", err)
	}
	if len(pub.sent) != 0 {
		t.Errorf("published %d commands, want none", len(pub.sent))
	}
}

func TestMockPorts_MirrorsSetpoint(t *testing.T) {
	reg := NewRegistry(2, 1)
	rec := &fakeRecorder{}
	ports := NewMockPorts(reg)
	ports.SetRecorder(rec)
	ctx := context.Background()

	if err := ports.SetValveOpen(ctx, 1, true); err != nil {
		t.Fatalf("SetValveOpen error = %v", err)
	}
	v := 6.0
	if err := ports.SetFlowSetpoint(ctx, 0, &v); err != nil {
		t.Fatalf("SetFlowSetpoint error = %v", err)
	}

	f, _ := reg.Flowmeter(0)
	if f.CurrentReading == nil || f.CurrentReading.Value != 6 {
		t.Errorf("reading = %+v, want 6", f.CurrentReading)
	}

	if err := ports.SetFlowSetpoint(ctx, 0, nil); err != nil {
		t.Fatalf("clear error = %v", err)
	}
	f, _ = reg.Flowmeter(0)
	if f.Setpoint != nil || f.CurrentReading.Value != 0 {
		t.Errorf("after clear = %+v", f)
	}

	if len(rec.sensors) != 2 || rec.sensors[0].value != 6 || rec.sensors[1].value != 0 {
		t.Errorf("sensor telemetry = %v", rec.sensors)
	}
	if v, _ := reg.Valve(1); !v.Open {
		t.Error("valve 1 should be open")
	}
}
