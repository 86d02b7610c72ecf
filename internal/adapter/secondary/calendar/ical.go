// Package calendar exports alarms as an iCalendar feed so they show up in
// calendar applications.
package calendar

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-ical"

	"alarm-manager/internal/domain"
)

const productID = "-//alarm-manager//alarm-manager//EN"

// ErrNothingToExport is returned when no enabled alarm exists.
var ErrNothingToExport = errors.New("no enabled alarms to export")

// Export writes every enabled alarm as a VEVENT carrying an AUDIO VALARM
// that triggers at the event start. stamp becomes each event's DTSTAMP.
func Export(w io.Writer, alarms []domain.Alarm, stamp time.Time) error {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Props.SetText(ical.PropVersion, "2.0")

	sorted := make([]domain.Alarm, 0, len(alarms))
	for _, a := range alarms {
		if a.Enabled {
			sorted = append(sorted, a)
		}
	}
	if len(sorted) == 0 {
		return ErrNothingToExport
	}
	domain.SortForDisplay(sorted)

	for _, a := range sorted {
		cal.Children = append(cal.Children, alarmEvent(a, stamp).Component)
	}

	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("encode calendar: %w", err)
	}
	return nil
}

func alarmEvent(a domain.Alarm, stamp time.Time) *ical.Event {
	start := a.ScheduledTime
	if a.Snoozed() {
		start = *a.SnoozeUntil
	}

	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, a.ID+"@alarm-manager")
	event.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
	event.Props.SetDateTime(ical.PropDateTimeStart, start.UTC())
	event.Props.SetDateTime(ical.PropDateTimeEnd, start.Add(time.Minute).UTC())
	event.Props.SetText(ical.PropSummary, fmt.Sprintf("Alarm %s", a.Clock()))
	if a.RingtoneRef != "" && a.RingtoneRef != domain.DefaultRingtone {
		event.Props.SetText(ical.PropDescription, "Ringtone: "+a.RingtoneRef)
	}

	valarm := ical.NewComponent(ical.CompAlarm)
	valarm.Props.SetText(ical.PropAction, "AUDIO")
	trigger := ical.NewProp(ical.PropTrigger)
	trigger.Value = "PT0S"
	valarm.Props.Set(trigger)
	event.Children = append(event.Children, valarm)

	return event
}
