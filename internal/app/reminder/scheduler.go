package reminder

import (
	"cmp"
	"iter"
	"math"
	"slices"
	"time"

	"github.com/calendar-1m/project/internal/app/notify"
	"github.com/calendar-1m/project/internal/calendar"
)

// Scheduler derives the reminders that are due at a given instant.
type Scheduler struct {
	// SkipStarted drops reminders of events that already began.
	SkipStarted bool
}

// DueAt is when the reminder for e fires: ReminderDays calendar days before start.
func DueAt(e calendar.Event) time.Time {
	return e.Start.AddDate(0, 0, -e.ReminderDays)
}

// DaysRemaining rounds the distance from now to start up to whole days.
func DaysRemaining(e calendar.Event, now time.Time) int {
	return int(math.Ceil(e.Start.Sub(now).Hours() / 24))
}

// Due yields the due reminders ordered by due time, latest first. The
// sequence is computed afresh on every iteration.
func (s Scheduler) Due(events []calendar.Event, now time.Time) iter.Seq[notify.Notification] {
	return func(yield func(notify.Notification) bool) {
		for _, n := range s.collect(events, now) {
			if !yield(n) {
				return
			}
		}
	}
}

func (s Scheduler) Collect(events []calendar.Event, now time.Time) []notify.Notification {
	return slices.Collect(s.Due(events, now))
}

func (s Scheduler) collect(events []calendar.Event, now time.Time) []notify.Notification {
	type due struct {
		event calendar.Event
		at    time.Time
	}
	candidates := make([]due, 0, len(events))
	for _, e := range events {
		if !e.Reminder {
			continue
		}
		if s.SkipStarted && e.Start.Before(now) {
			continue
		}
		at := DueAt(e)
		if at.After(now) {
			continue
		}
		candidates = append(candidates, due{event: e, at: at})
	}
	slices.SortStableFunc(candidates, func(a, b due) int {
		if c := b.at.Compare(a.at); c != 0 {
			return c
		}
		return cmp.Compare(a.event.ID, b.event.ID)
	})

	out := make([]notify.Notification, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, notify.Notification{
			EventID:  c.event.ID,
			Message:  notify.ReminderMessage(c.event.Title, DaysRemaining(c.event, now)),
			Severity: notify.SeverityInfo,
			Kind:     notify.KindReminder,
			DueAt:    c.at,
		})
	}
	return out
}

// ComputeDueReminders is Due with the default scheduler.
func ComputeDueReminders(events []calendar.Event, now time.Time) iter.Seq[notify.Notification] {
	return Scheduler{}.Due(events, now)
}
