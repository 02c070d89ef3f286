package device

import "time"

// Command names understood by hardware bridges.
const (
	CommandOpen          = "open"
	CommandClose         = "close"
	CommandSetSetpoint   = "set_setpoint"
	CommandClearSetpoint = "clear_setpoint"
)

// CommandSource identifies the core as the originator of a command.
const CommandSource = "scheduler"

// CommandMessage is sent from the core to a hardware bridge.
// Topic: swncrew/command/{protocol}/{device}
type CommandMessage struct {
	// ID uniquely identifies this command for correlation in bridge logs.
	ID string `json:"id"`

	// Timestamp is when the command was issued (UTC).
	Timestamp time.Time `json:"timestamp"`

	// DeviceID is the device name, e.g. "valve-2" or "flowmeter-0".
	DeviceID string `json:"device_id"`

	// Command is one of the Command* constants.
	Command string `json:"command"`

	// Parameters carries command values, e.g. {"setpoint": 4.5}.
	Parameters map[string]any `json:"parameters,omitempty"`

	Source string `json:"source"`
}

// StateMessage is sent from a hardware bridge when a device reports state.
// Topic: swncrew/state/{protocol}/{device}
//
//	{"device_id": "flowmeter-0", "timestamp": "...", "state": {"flow_rate": 3.2}}
//	{"device_id": "valve-1", "timestamp": "...", "state": {"open": true}}
type StateMessage struct {
	DeviceID  string         `json:"device_id"`
	Timestamp time.Time      `json:"timestamp"`
	State     map[string]any `json:"state"`
	Protocol  string         `json:"protocol,omitempty"`
}
