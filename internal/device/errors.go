package device

import "errors"

// Domain errors for the device package.
var (
	// ErrValveNotFound is returned when a valve ID is outside the catalogue.
	ErrValveNotFound = errors.New("device: valve not found")

	// ErrFlowmeterNotFound is returned when a flowmeter ID is outside the catalogue.
	ErrFlowmeterNotFound = errors.New("device: flowmeter not found")

	// ErrInvalidReading is returned for non-finite or negative readings and
	// setpoints.
	ErrInvalidReading = errors.New("device: invalid reading")

	// ErrUnknownDevice is returned when a state message names a device
	// that is neither a valve nor a flowmeter.
	ErrUnknownDevice = errors.New("device: unknown device")

	// ErrInvalidMessage is returned when a state message cannot be decoded.
	ErrInvalidMessage = errors.New("device: invalid message")
)
