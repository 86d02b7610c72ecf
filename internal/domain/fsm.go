package domain

import (
	"fmt"

	"github.com/qmuntal/stateless"
)

// AlarmState is the lifecycle state of one alarm.
type AlarmState string

const (
	StateScheduled AlarmState = "scheduled"
	StateFiring    AlarmState = "firing"
	StateSnoozed   AlarmState = "snoozed"
	StateStopped   AlarmState = "stopped"
	StateDisabled  AlarmState = "disabled"
	StateDeleted   AlarmState = "deleted"

	// stateActive groups every non-terminal state.
	stateActive AlarmState = "active"
)

// Trigger drives an AlarmMachine.
type Trigger string

const (
	TriggerFire      Trigger = "fire"
	TriggerSnooze    Trigger = "snooze"
	TriggerStop      Trigger = "stop"
	TriggerAutoStop  Trigger = "auto-stop"
	TriggerRearm     Trigger = "rearm"
	TriggerToggleOff Trigger = "toggle-off"
	TriggerToggleOn  Trigger = "toggle-on"
	TriggerDelete    Trigger = "delete"
)

// AlarmMachine tracks the lifecycle of a single alarm.
// It is not safe for concurrent use; the scheduler serializes access.
type AlarmMachine struct {
	sm *stateless.StateMachine
}

// NewAlarmMachine returns a machine in the given initial state.
func NewAlarmMachine(initial AlarmState) *AlarmMachine {
	sm := stateless.NewStateMachine(initial)

	sm.Configure(stateActive).
		Permit(TriggerDelete, StateDeleted)

	sm.Configure(StateScheduled).
		SubstateOf(stateActive).
		Permit(TriggerFire, StateFiring).
		Permit(TriggerSnooze, StateSnoozed).
		Permit(TriggerToggleOff, StateDisabled).
		Ignore(TriggerStop).
		Ignore(TriggerAutoStop)

	sm.Configure(StateFiring).
		SubstateOf(stateActive).
		Permit(TriggerSnooze, StateSnoozed).
		Permit(TriggerStop, StateStopped).
		Permit(TriggerAutoStop, StateStopped).
		Permit(TriggerToggleOff, StateDisabled)

	sm.Configure(StateSnoozed).
		SubstateOf(stateActive).
		Permit(TriggerRearm, StateScheduled)

	sm.Configure(StateStopped).
		SubstateOf(stateActive).
		Permit(TriggerRearm, StateScheduled)

	sm.Configure(StateDisabled).
		SubstateOf(stateActive).
		Permit(TriggerToggleOn, StateScheduled).
		Ignore(TriggerStop).
		Ignore(TriggerAutoStop)

	sm.Configure(StateDeleted)

	return &AlarmMachine{sm: sm}
}

// InitialState is the state an alarm loaded from the store starts in.
func InitialState(a Alarm) AlarmState {
	if a.Enabled {
		return StateScheduled
	}
	return StateDisabled
}

// State returns the current state.
func (m *AlarmMachine) State() AlarmState {
	return m.sm.MustState().(AlarmState)
}

// Fire applies a trigger. Triggers the current state does not accept yield ErrInvalidTransition.
func (m *AlarmMachine) Fire(t Trigger) error {
	from := m.State()
	if err := m.sm.Fire(t); err != nil {
		return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, t, from)
	}
	return nil
}

// Settle moves a transient Snoozed or Stopped machine back to Scheduled.
func (m *AlarmMachine) Settle() {
	switch m.State() {
	case StateSnoozed, StateStopped:
		_ = m.Fire(TriggerRearm)
	}
}
