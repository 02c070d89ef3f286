package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/swncrew-core/internal/mission"
)

// fakeHardware implements ValvePort and SetpointPort and records every
// command in order.
type fakeHardware struct {
	mu     sync.Mutex
	events []string
	open   map[int]bool

	openErr    map[int]error // returned when opening the given valve
	setErr     error
	panicOnSet bool
	honourCtx  bool // return ctx.Err() when the context is done
}

func newFakeHardware() *fakeHardware {
	return &fakeHardware{open: make(map[int]bool), openErr: make(map[int]error)}
}

func (f *fakeHardware) SetValveOpen(ctx context.Context, valveID int, open bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.honourCtx && ctx.Err() != nil {
		return ctx.Err()
	}
	if open {
		f.events = append(f.events, fmt.Sprintf("open %d", valveID))
		if err := f.openErr[valveID]; err != nil {
			return err
		}
	} else {
		f.events = append(f.events, fmt.Sprintf("close %d", valveID))
	}
	f.open[valveID] = open
	return nil
}

func (f *fakeHardware) SetFlowSetpoint(ctx context.Context, sensorID int, value *float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.honourCtx && ctx.Err() != nil {
		return ctx.Err()
	}
	if value == nil {
		f.events = append(f.events, fmt.Sprintf("clear %d", sensorID))
		return nil
	}
	if f.panicOnSet {
		panic("setpoint driver exploded")
	}
	f.events = append(f.events, fmt.Sprintf("set %d %g", sensorID, *value))
	return f.setErr
}

func (f *fakeHardware) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func (f *fakeHardware) IsOpen(valveID int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open[valveID]
}

// trajectory builds points at the given times (seconds) with rates 1, 2, 3...
func trajectory(times ...float64) []mission.Point {
	points := make([]mission.Point, len(times))
	for i, ts := range times {
		points[i] = mission.Point{Time: ts, FlowRate: float64(i + 1)}
	}
	return points
}

func testMission(id string, valveID int, times ...float64) mission.Mission {
	return mission.Mission{ID: id, ValveID: valveID, FlowTrajectory: trajectory(times...)}
}

// fixedClock returns a clock that advances one millisecond per call.
func fixedClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2026, 10, 19, 7, 30, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Millisecond)
		return now
	}
}
