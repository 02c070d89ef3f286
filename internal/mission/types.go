package mission

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Point is one trajectory step: hold FlowRate (l/min) until Time seconds
// after mission start.
type Point struct {
	Time     float64
	FlowRate float64
}

// MarshalJSON encodes the point as a [time, flow_rate] pair.
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.Time, p.FlowRate})
}

// UnmarshalJSON accepts either [time, flow_rate] or
// {"time": ..., "flow_rate": ...}.
func (p *Point) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var obj struct {
			Time     *float64 `json:"time"`
			FlowRate *float64 `json:"flow_rate"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		if obj.Time == nil || obj.FlowRate == nil {
			return fmt.Errorf("trajectory point needs time and flow_rate")
		}
		p.Time, p.FlowRate = *obj.Time, *obj.FlowRate
		return nil
	}

	var pair []float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("trajectory point needs exactly 2 values, got %d", len(pair))
	}
	p.Time, p.FlowRate = pair[0], pair[1]
	return nil
}

// EndUse names the household appliance a flow pattern belongs to.
type EndUse string

// End uses known to the rig and the classifier.
const (
	EndUseShower        EndUse = "Shower"
	EndUseToilet        EndUse = "Toilet"
	EndUseFaucet        EndUse = "Faucet"
	EndUseClothesWasher EndUse = "ClothesWasher"
	EndUseDishwasher    EndUse = "Dishwasher"
	EndUseBathtub       EndUse = "Bathtub"
	EndUseOther         EndUse = "other"
)

// AllEndUses returns every valid EndUse.
func AllEndUses() []EndUse {
	return []EndUse{
		EndUseShower, EndUseToilet, EndUseFaucet, EndUseClothesWasher,
		EndUseDishwasher, EndUseBathtub, EndUseOther,
	}
}

// Mission asks for one valve to follow FlowTrajectory.
//
// ActualEndUse, DurationScalingFactor and ActualStartTime describe how a
// simulated mission was generated. They are validated on admission and
// carried through to completion records but never read by the scheduler.
type Mission struct {
	// ID is assigned at admission when the producer leaves it empty.
	ID string `json:"id,omitempty"`

	ValveID        int     `json:"valve_id"`
	FlowTrajectory []Point `json:"flow_trajectory"`

	ActualEndUse          *EndUse `json:"actual_end_use,omitempty"`
	DurationScalingFactor *int    `json:"duration_scaling_factor,omitempty"`
	ActualStartTime       *string `json:"actual_start_time,omitempty"`
}

// Duration is the elapsed time of the last trajectory point.
func (m Mission) Duration() time.Duration {
	if len(m.FlowTrajectory) == 0 {
		return 0
	}
	return seconds(m.FlowTrajectory[len(m.FlowTrajectory)-1].Time)
}

// PlannedVolume is the volume in litres the trajectory asks for, with
// each rate held from the previous point's time up to its own.
func (m Mission) PlannedVolume() float64 {
	var volume, previous float64
	for _, p := range m.FlowTrajectory {
		volume += p.FlowRate * (p.Time - previous) / 60
		previous = p.Time
	}
	return volume
}

// Status is how a mission left the scheduler.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Completed records one mission that left the queue, whichever way it ended.
type Completed struct {
	Mission Mission   `json:"flow_control_mission"`
	StartTS time.Time `json:"start_ts"`
	EndTS   time.Time `json:"end_ts"`
	Status  Status    `json:"status"`
	Error   string    `json:"error,omitempty"`
}

// Elapsed is EndTS - StartTS.
func (c Completed) Elapsed() time.Duration {
	return c.EndTS.Sub(c.StartTS)
}

// Features summarise a completed mission's measured flow for the classifier.
type Features struct {
	Volume   float64 `json:"Volume"`
	Mean     float64 `json:"Mean"`
	Peak     float64 `json:"Peak"`
	Duration float64 `json:"Duration"`
	Hour     float64 `json:"Hour"`
}

// Classified is a completed mission labelled by an external classifier.
type Classified struct {
	Completed
	Features        Features `json:"features"`
	PredictedEndUse EndUse   `json:"predicted_end_use"`
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
