package telemetry

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/nerrad567/swncrew-core/internal/mission"
)

// MeasurementMission is the measurement completed missions are written to.
const MeasurementMission = "flow_mission"

// PointWriter queues a single point. Satisfied by *influxdb.Client.
type PointWriter interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time)
}

// InfluxSink writes missions and device state as InfluxDB points.
type InfluxSink struct {
	writer PointWriter
	rigID  string
}

// NewInfluxSink creates a sink tagging every point with rigID.
func NewInfluxSink(writer PointWriter, rigID string) *InfluxSink {
	return &InfluxSink{writer: writer, rigID: rigID}
}

// RecordCompletedMission writes one point per mission, timestamped at
// its end.
func (s *InfluxSink) RecordCompletedMission(ctx context.Context, c mission.Completed) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	trajectory, err := json.Marshal(c.Mission.FlowTrajectory)
	if err != nil {
		return err
	}

	tags := map[string]string{
		"rig_id":   s.rigID,
		"valve_id": strconv.Itoa(c.Mission.ValveID),
		"status":   string(c.Status),
	}
	if c.Mission.ActualEndUse != nil {
		tags["end_use"] = string(*c.Mission.ActualEndUse)
	}

	fields := map[string]any{
		"mission_id":         c.Mission.ID,
		"duration_s":         c.Elapsed().Seconds(),
		"planned_duration_s": c.Mission.Duration().Seconds(),
		"planned_volume_l":   c.Mission.PlannedVolume(),
		"points":             len(c.Mission.FlowTrajectory),
		"trajectory":         string(trajectory),
	}
	if c.Error != "" {
		fields["error"] = c.Error
	}

	s.writer.WritePoint(MeasurementMission, tags, fields, c.EndTS)
	return nil
}

// WriteActuatorState writes a valve position (0 or 1) or a flow setpoint.
// The measurement is the device kind.
func (s *InfluxSink) WriteActuatorState(kind string, id int, value float64, ts time.Time) {
	s.writer.WritePoint(kind,
		map[string]string{"rig_id": s.rigID, "id": strconv.Itoa(id), "role": "actuator"},
		map[string]any{"value": value},
		ts,
	)
}

// WriteSensorReading writes one sensor reading.
func (s *InfluxSink) WriteSensorReading(kind string, id int, value float64, ts time.Time) {
	s.writer.WritePoint(kind,
		map[string]string{"rig_id": s.rigID, "id": strconv.Itoa(id), "role": "sensor"},
		map[string]any{"value": value},
		ts,
	)
}
