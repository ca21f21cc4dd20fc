package calendar

import "time"

const defaultDuration = time.Hour

// EditStart moves the start. The end is pushed to start+1h only when it is
// unset or would no longer be after the new start.
func EditStart(e Event, start time.Time) Event {
	e.Start = start
	if e.End.IsZero() || !e.End.After(start) {
		e.End = start.Add(defaultDuration)
	}
	return e
}

// EditEnd moves the end and never touches the start.
func EditEnd(e Event, end time.Time) Event {
	e.End = end
	return e
}

const (
	DayClassToday = "today"
	DayClassPast  = "past-day"
)

// ClassifyDay returns the style class of a calendar day cell relative to now.
// Only earlier days of now's month are marked past.
func ClassifyDay(day, now time.Time) string {
	loc := now.Location()
	d := StartOfDay(day, loc)
	today := StartOfDay(now, loc)
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, loc)
	switch {
	case d.Equal(today):
		return DayClassToday
	case d.Before(today) && !d.Before(monthStart):
		return DayClassPast
	default:
		return ""
	}
}

// Day is one cell of a month grid.
type Day struct {
	Date   time.Time `json:"date"`
	Class  string    `json:"class,omitempty"`
	Events []Event   `json:"events"`
}

// MonthDays lays the events of month out per day. Events spanning several days
// appear on each of them.
func MonthDays(month time.Time, events []Event, now time.Time) []Day {
	loc := now.Location()
	first := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, loc)
	next := first.AddDate(0, 1, 0)

	days := make([]Day, 0, 31)
	for d := first; d.Before(next); d = d.AddDate(0, 0, 1) {
		dayEnd := d.AddDate(0, 0, 1)
		day := Day{Date: d, Class: ClassifyDay(d, now), Events: []Event{}}
		for _, e := range events {
			if e.Start.Before(dayEnd) && e.End.After(d) {
				day.Events = append(day.Events, e)
			}
		}
		days = append(days, day)
	}
	return days
}
