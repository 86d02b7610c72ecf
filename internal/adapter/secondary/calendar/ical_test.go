package calendar

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alarm-manager/internal/domain"
)

func TestExport(t *testing.T) {
	stamp := time.Date(2025, 1, 2, 8, 0, 0, 0, time.UTC)
	snooze := time.Date(2025, 1, 2, 9, 5, 0, 0, time.UTC)
	alarms := []domain.Alarm{
		{ID: "late", ScheduledTime: time.Date(2025, 1, 2, 18, 0, 0, 0, time.UTC), Enabled: true, RingtoneRef: "file:///bell.wav"},
		{ID: "off", ScheduledTime: time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC), Enabled: false},
		{ID: "early", ScheduledTime: time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC), Enabled: true, SnoozeUntil: &snooze},
	}

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, alarms, stamp))
	assert.True(t, strings.HasPrefix(buf.String(), "BEGIN:VCALENDAR"))

	cal, err := ical.NewDecoder(&buf).Decode()
	require.NoError(t, err)

	events := cal.Events()
	require.Len(t, events, 2)

	uid, err := events[0].Props.Text(ical.PropUID)
	require.NoError(t, err)
	assert.Equal(t, "early@alarm-manager", uid)

	start, err := events[0].Props.DateTime(ical.PropDateTimeStart, time.UTC)
	require.NoError(t, err)
	assert.True(t, start.Equal(snooze), "snoozed alarm starts at the snooze time, got %v", start)

	require.Len(t, events[0].Children, 1)
	assert.Equal(t, ical.CompAlarm, events[0].Children[0].Name)

	desc, err := events[1].Props.Text(ical.PropDescription)
	require.NoError(t, err)
	assert.Equal(t, "Ringtone: file:///bell.wav", desc)
}

func TestExportNothing(t *testing.T) {
	var buf bytes.Buffer
	err := Export(&buf, []domain.Alarm{{ID: "off"}}, time.Now())
	assert.ErrorIs(t, err, ErrNothingToExport)
	assert.Zero(t, buf.Len())
}
