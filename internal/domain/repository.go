package domain

import (
	"context"
	"time"
)

// AlarmRepository is a secondary port that defines how to persist the alarm set.
// This interface is defined in the domain layer and implemented by adapters.
type AlarmRepository interface {
	// Load returns the stored alarms in insertion order. A missing document is an empty set.
	Load() ([]Alarm, error)
	// Save atomically replaces the stored alarm set.
	Save(alarms []Alarm) error
}

// Registration identifies one armed timer. The zero value is never issued.
type Registration uint64

// FireFunc is invoked by a TimerGateway when a registration comes due.
type FireFunc func(alarmID string, reg Registration)

// TimerGateway is a secondary port for wall-clock one-shot timers.
type TimerGateway interface {
	Start(ctx context.Context, fire FireFunc) error
	Arm(alarmID string, at time.Time) (Registration, error)
	// Cancel is idempotent; unknown registrations are ignored.
	Cancel(reg Registration)
}

// Notifier is a secondary port that shows and removes ringing notifications.
type Notifier interface {
	Raise(n Notification) error
	Dismiss(alarmID string) error
}

// ActionHandler receives user actions taken on notifications.
type ActionHandler func(a Action)

// ActionSource is a secondary port that delivers notification actions.
// Listen subscribes and returns; delivery stops when ctx is done.
type ActionSource interface {
	Listen(ctx context.Context, handle ActionHandler) error
}

// SoundPlayer is a secondary port that plays ringtones.
type SoundPlayer interface {
	Play(ringtoneRef string) (Playback, error)
}

// Playback is one running ringtone. Stop is idempotent.
type Playback interface {
	Stop()
}
