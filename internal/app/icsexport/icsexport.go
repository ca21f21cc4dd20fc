package icsexport

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/calendar-1m/project/internal/calendar"
)

const productID = "-//calendar-1m//calendar-api//EN"

// Encode writes events as an iCalendar feed. Events with a reminder carry a
// display alarm ReminderDays before start.
func Encode(events []calendar.Event, stamp time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	for _, e := range events {
		ve := cal.AddEvent(e.ID + "@calendar-1m")
		ve.SetDtStampTime(stamp.UTC())
		ve.SetStartAt(e.Start.UTC())
		ve.SetEndAt(e.End.UTC())
		ve.SetSummary(e.Title)
		if e.Reminder {
			alarm := ve.AddAlarm()
			alarm.SetAction(ical.ActionDisplay)
			alarm.SetTrigger(trigger(e.ReminderDays))
			alarm.SetProperty(ical.ComponentPropertyDescription, e.Title)
		}
	}
	return cal.Serialize()
}

func trigger(days int) string {
	if days <= 0 {
		return "PT0M"
	}
	return fmt.Sprintf("-P%dD", days)
}
