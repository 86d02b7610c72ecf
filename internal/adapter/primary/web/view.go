package web

import (
	"errors"
	"net/http"
	"time"

	"alarm-manager/internal/domain"
)

// AlarmView is the JSON form of an alarm.
type AlarmView struct {
	ID          string     `json:"id"`
	Time        time.Time  `json:"time"`
	Clock       string     `json:"clock"`
	Ringtone    string     `json:"ringtone"`
	Enabled     bool       `json:"enabled"`
	SnoozeUntil *time.Time `json:"snoozeUntil,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	State       string     `json:"state,omitempty"`
}

func NewAlarmView(a domain.Alarm, state domain.AlarmState) AlarmView {
	v := AlarmView{
		ID:        a.ID,
		Time:      a.ScheduledTime,
		Clock:     a.Clock(),
		Ringtone:  a.RingtoneRef,
		Enabled:   a.Enabled,
		CreatedAt: a.CreatedAt,
		State:     string(state),
	}
	if a.SnoozeUntil != nil {
		t := *a.SnoozeUntil
		v.SnoozeUntil = &t
	}
	return v
}

// Alarm converts the view back into a domain record.
func (v AlarmView) Alarm() domain.Alarm {
	a := domain.Alarm{
		ID:            v.ID,
		ScheduledTime: v.Time,
		RingtoneRef:   v.Ringtone,
		Enabled:       v.Enabled,
		CreatedAt:     v.CreatedAt,
	}
	if v.SnoozeUntil != nil {
		t := *v.SnoozeUntil
		a.SnoozeUntil = &t
	}
	return a
}

// ChangeView is one server-sent event.
type ChangeView struct {
	Type  string    `json:"type"`
	Alarm AlarmView `json:"alarm"`
	State string    `json:"state"`
	At    time.Time `json:"at"`
}

func NewChangeView(c domain.Change) ChangeView {
	return ChangeView{
		Type:  string(c.Type),
		Alarm: NewAlarmView(c.Alarm, c.State),
		State: string(c.State),
		At:    c.At,
	}
}

func (v ChangeView) Change() domain.Change {
	return domain.Change{
		Type:  domain.ChangeType(v.Type),
		Alarm: v.Alarm.Alarm(),
		State: domain.AlarmState(v.State),
		At:    v.At,
	}
}

// CreateRequest is the body of POST /api/alarms.
type CreateRequest struct {
	Time     time.Time `json:"time"`
	Ringtone string    `json:"ringtone,omitempty"`
}

// UpdateRequest is the body of PUT /api/alarms/{id}. Absent fields are left alone.
type UpdateRequest struct {
	Time     *time.Time `json:"time,omitempty"`
	Ringtone *string    `json:"ringtone,omitempty"`
}

// SnoozeRequest is the optional body of POST /api/alarms/{id}/snooze.
// Zero seconds means the configured default.
type SnoozeRequest struct {
	DelaySeconds int `json:"delaySeconds,omitempty"`
}

// ErrorResponse is returned with every non-2xx status.
// Alarm is set when the record was stored but its timer could not be armed.
type ErrorResponse struct {
	Error string     `json:"error"`
	Code  string     `json:"code"`
	Alarm *AlarmView `json:"alarm,omitempty"`
}

// Error codes carried in ErrorResponse.Code.
const (
	CodeNotFound          = "not_found"
	CodeInvalidTime       = "invalid_time"
	CodeInvalidDelay      = "invalid_delay"
	CodeInvalidTransition = "invalid_transition"
	CodeAlarmDisabled     = "alarm_disabled"
	CodeTimerUnavailable  = "timer_unavailable"
	CodeBadRequest        = "bad_request"
	CodeInternal          = "internal"
)

var codeErrors = map[string]error{
	CodeNotFound:          domain.ErrNotFound,
	CodeInvalidTime:       domain.ErrInvalidTime,
	CodeInvalidDelay:      domain.ErrInvalidDelay,
	CodeInvalidTransition: domain.ErrInvalidTransition,
	CodeAlarmDisabled:     domain.ErrAlarmDisabled,
}

// ErrorForCode maps a response code back to its domain sentinel, or nil.
func ErrorForCode(code string) error {
	return codeErrors[code]
}

// classify picks the status and code for an operation error.
func classify(err error) (int, string) {
	var unavailable *domain.TimerUnavailableError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, domain.ErrInvalidTime):
		return http.StatusBadRequest, CodeInvalidTime
	case errors.Is(err, domain.ErrInvalidDelay):
		return http.StatusBadRequest, CodeInvalidDelay
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, CodeInvalidTransition
	case errors.Is(err, domain.ErrAlarmDisabled):
		return http.StatusConflict, CodeAlarmDisabled
	case errors.As(err, &unavailable):
		return http.StatusServiceUnavailable, CodeTimerUnavailable
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}
