package frontend

import (
	"strconv"
	"time"

	"github.com/calendar-1m/project/internal/calendar"
)

const timeLayout = "Mon Jan 2, 15:04"

func timeRange(e calendar.Event, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return e.Start.In(loc).Format(timeLayout) + " – " + e.End.In(loc).Format(timeLayout)
}

func reminderLabel(days int) string {
	if days == 1 {
		return "reminder 1 day before"
	}
	return "reminder " + strconv.Itoa(days) + " days before"
}
