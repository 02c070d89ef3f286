package mission

import "errors"

var (
	// ErrInvalidMission is wrapped by every ValidationError.
	ErrInvalidMission = errors.New("mission: invalid")

	// ErrHistoryNotFound is returned when a history entry does not exist.
	ErrHistoryNotFound = errors.New("mission: history entry not found")
)
