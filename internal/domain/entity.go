package domain

import (
	"fmt"
	"sort"
	"time"
)

// DefaultRingtone is the ringtone reference used when none is given.
const DefaultRingtone = "default"

// Alarm represents a single alarm clock entry.
// This is a pure domain model with no dependencies on external concerns.
type Alarm struct {
	ID            string
	ScheduledTime time.Time
	RingtoneRef   string
	Enabled       bool
	// SnoozeUntil is set only while a snoozed re-fire is pending or ringing.
	SnoozeUntil *time.Time
	CreatedAt   time.Time
}

// Snoozed reports whether the alarm is waiting for (or ringing from) a snooze.
func (a Alarm) Snoozed() bool {
	return a.SnoozeUntil != nil
}

// Clone returns a copy that shares no pointers with a.
func (a Alarm) Clone() Alarm {
	if a.SnoozeUntil != nil {
		t := *a.SnoozeUntil
		a.SnoozeUntil = &t
	}
	return a
}

// Clock renders the scheduled time as 24h HH:MM in its own location.
func (a Alarm) Clock() string {
	return a.ScheduledTime.Format("15:04")
}

// Label is the text shown while the alarm rings.
func (a Alarm) Label() string {
	if a.Snoozed() {
		return "Your snoozed alarm is ringing"
	}
	return fmt.Sprintf("Your %s alarm is ringing", a.Clock())
}

// SortForDisplay orders alarms by scheduled time, then creation time, then ID.
func SortForDisplay(alarms []Alarm) {
	sort.SliceStable(alarms, func(i, j int) bool {
		a, b := alarms[i], alarms[j]
		if !a.ScheduledTime.Equal(b.ScheduledTime) {
			return a.ScheduledTime.Before(b.ScheduledTime)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// ActionKind is a user response to a ringing alarm.
type ActionKind string

const (
	ActionSnooze ActionKind = "snooze"
	ActionStop   ActionKind = "stop"
)

// ParseActionKind converts a wire string into an ActionKind.
func ParseActionKind(s string) (ActionKind, error) {
	switch ActionKind(s) {
	case ActionSnooze, ActionStop:
		return ActionKind(s), nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}

// Action is delivered by an ActionSource when the user responds to a notification.
type Action struct {
	AlarmID string
	Kind    ActionKind
}

// Notification is what gets shown while an alarm rings.
type Notification struct {
	AlarmID string
	Title   string
	Label   string
	Time    time.Time
	Actions []ActionKind
}

// ChangeType classifies a Change.
type ChangeType string

const (
	ChangeCreated ChangeType = "created"
	ChangeUpdated ChangeType = "updated"
	ChangeDeleted ChangeType = "deleted"
	ChangeFired   ChangeType = "fired"
	ChangeSnoozed ChangeType = "snoozed"
	ChangeStopped ChangeType = "stopped"
)

// Change describes one observable mutation of the alarm set.
type Change struct {
	Type  ChangeType
	Alarm Alarm
	State AlarmState
	At    time.Time
}
