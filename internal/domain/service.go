package domain

import (
	"strings"
	"time"
)

// AlarmService provides pure domain logic for alarm times.
// This service has no side effects and no dependencies on external concerns.
type AlarmService struct {
	defaultRingtone string
}

// NewAlarmService creates a new alarm service. An empty default ringtone means DefaultRingtone.
func NewAlarmService(defaultRingtone string) *AlarmService {
	if strings.TrimSpace(defaultRingtone) == "" {
		defaultRingtone = DefaultRingtone
	}
	return &AlarmService{defaultRingtone: defaultRingtone}
}

// Normalize rolls at forward by whole calendar days until it is strictly after now.
// The result is truncated to millisecond precision, which is what the store keeps.
func (s *AlarmService) Normalize(at, now time.Time) time.Time {
	at = truncateMillis(at)
	if at.After(now) {
		return at
	}
	// Jump most of the distance at once; the loop settles DST edges.
	if days := int(now.Sub(at) / (24 * time.Hour)); days > 1 {
		at = at.AddDate(0, 0, days-1)
	}
	for !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}

// MaxSnoozeDelay is the longest accepted snooze.
const MaxSnoozeDelay = 24 * time.Hour

// SnoozeTime returns when a snoozed alarm rings again.
func (s *AlarmService) SnoozeTime(now time.Time, delay time.Duration) (time.Time, error) {
	if delay <= 0 || delay > MaxSnoozeDelay {
		return time.Time{}, ErrInvalidDelay
	}
	return truncateMillis(now.Add(delay)), nil
}

// Ringtone returns ref, or the default ringtone when ref is blank.
func (s *AlarmService) Ringtone(ref string) string {
	if ref = strings.TrimSpace(ref); ref != "" {
		return ref
	}
	return s.defaultRingtone
}

// ValidateTime rejects the zero time.
func (s *AlarmService) ValidateTime(at time.Time) error {
	if at.IsZero() {
		return ErrInvalidTime
	}
	return nil
}

// NotificationFor builds the ringing notification for an alarm.
func (s *AlarmService) NotificationFor(a Alarm) Notification {
	return Notification{
		AlarmID: a.ID,
		Title:   "Alarm",
		Label:   a.Label(),
		Time:    a.ScheduledTime,
		Actions: []ActionKind{ActionSnooze, ActionStop},
	}
}

func truncateMillis(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli()).In(t.Location())
}
