package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"alarm-manager/internal/domain"
	"alarm-manager/internal/usecase"
)

var clockLayouts = []string{"15:04", "15:04:05", "3:04pm", "3:04PM"}

var dateLayouts = []string{"2006-01-02 15:04", "2006-01-02T15:04", "2006-01-02 15:04:05"}

// parseAlarmTime accepts a wall-clock time (07:30, 7:30pm), a relative
// offset (+10m, +1h30m), a local date-time (2025-01-02 07:30) or RFC 3339.
// Clock times resolve to today in now's location; the scheduler rolls
// passed times forward.
func parseAlarmTime(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty time", domain.ErrInvalidTime)
	}

	if rest, ok := strings.CutPrefix(s, "+"); ok {
		d, err := time.ParseDuration(rest)
		if err != nil || d <= 0 {
			return time.Time{}, fmt.Errorf("%w: bad offset %q", domain.ErrInvalidTime, s)
		}
		return now.Add(d), nil
	}

	for _, layout := range clockLayouts {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			y, m, d := now.Date()
			return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), 0, now.Location()), nil
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: cannot parse %q (use HH:MM, +30m or RFC 3339)", domain.ErrInvalidTime, s)
}

var (
	// errAmbiguousID is returned when a prefix matches more than one alarm.
	errAmbiguousID = errors.New("ambiguous alarm id")
	errEmptyID     = errors.New("alarm id is empty")
)

// resolveID expands a unique ID prefix. Unknown IDs are returned unchanged so
// the backend decides between not-found and no-op.
func resolveID(b usecase.AlarmCommands, arg string) (string, error) {
	if strings.TrimSpace(arg) == "" {
		return "", errEmptyID
	}
	alarms, err := b.List()
	if err != nil {
		return "", err
	}
	var matches []string
	for _, a := range alarms {
		if a.ID == arg {
			return arg, nil
		}
		if strings.HasPrefix(a.ID, arg) {
			matches = append(matches, a.ID)
		}
	}
	switch len(matches) {
	case 0:
		return arg, nil
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w: %q matches %d alarms", errAmbiguousID, arg, len(matches))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
