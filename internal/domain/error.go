package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates that no alarm has the given ID.
	ErrNotFound = errors.New("alarm not found")

	// ErrInvalidTransition indicates that the alarm's lifecycle state does not allow the operation.
	ErrInvalidTransition = errors.New("invalid alarm state transition")

	// ErrAlarmDisabled indicates that the operation needs an enabled alarm.
	ErrAlarmDisabled = errors.New("alarm is disabled")

	// ErrInvalidTime indicates a missing or unusable alarm time.
	ErrInvalidTime = errors.New("invalid alarm time")

	// ErrInvalidDelay indicates a snooze delay that cannot be used.
	ErrInvalidDelay = errors.New("invalid snooze delay")
)

// CorruptStateError reports a durable payload that could not be understood.
type CorruptStateError struct {
	Source string
	Err    error
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("corrupt alarm state in %s: %v", e.Source, e.Err)
}

func (e *CorruptStateError) Unwrap() error { return e.Err }

// TimerUnavailableError reports that the timer gateway refused a registration.
type TimerUnavailableError struct {
	AlarmID string
	Err     error
}

func (e *TimerUnavailableError) Error() string {
	return fmt.Sprintf("cannot arm timer for alarm %s: %v", e.AlarmID, e.Err)
}

func (e *TimerUnavailableError) Unwrap() error { return e.Err }
