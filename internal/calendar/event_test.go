package calendar

import (
	"testing"
	"time"
)

func TestEditStart_AdvancesEndOnlyWhenInvalid(t *testing.T) {
	start := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	e := Event{Title: "Standup", Start: start, End: start.Add(30 * time.Minute)}

	moved := EditStart(e, start.Add(10*time.Minute))
	if !moved.End.Equal(e.End) {
		t.Fatalf("end changed although still valid: %v", moved.End)
	}

	moved = EditStart(e, start.Add(2*time.Hour))
	if want := start.Add(3 * time.Hour); !moved.End.Equal(want) {
		t.Fatalf("expected end %v, got %v", want, moved.End)
	}

	moved = EditStart(Event{Title: "x"}, start)
	if want := start.Add(time.Hour); !moved.End.Equal(want) {
		t.Fatalf("expected end %v for empty end, got %v", want, moved.End)
	}

	if !e.Start.Equal(start) {
		t.Fatalf("EditStart mutated its input")
	}
}

func TestPatch_Apply(t *testing.T) {
	start := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	e := Event{ID: "e1", Title: "Standup", Start: start, End: start.Add(30 * time.Minute)}

	title := "Retro"
	days := 2
	on := true
	newStart := start.Add(time.Hour)
	got := Patch{Title: &title, Start: &newStart, Reminder: &on, ReminderDays: &days}.Apply(e)

	if got.ID != "e1" || got.Title != "Retro" || !got.Reminder || got.ReminderDays != 2 {
		t.Fatalf("unexpected patched event: %+v", got)
	}
	if !got.End.Equal(newStart.Add(time.Hour)) {
		t.Fatalf("expected end to follow start, got %v", got.End)
	}
}

func TestSet_PutReplacesByID(t *testing.T) {
	s := NewSet(nil)
	s.Put(Event{ID: "a", Title: "one"})
	s.Put(Event{ID: "b", Title: "two"})
	s.Put(Event{ID: "a", Title: "uno"})
	s.Put(Event{Title: "draft"})

	events := s.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Title != "uno" || events[1].Title != "two" {
		t.Fatalf("unexpected order or content: %+v", events)
	}
	if !s.Remove("a") || s.Remove("a") {
		t.Fatalf("Remove should succeed once")
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 event after remove, got %d", s.Len())
	}
}

func TestSameAs(t *testing.T) {
	if (Event{}).SameAs(Event{}) {
		t.Fatalf("drafts must not be identical")
	}
	if !(Event{ID: "x", Title: "a"}).SameAs(Event{ID: "x", Title: "b"}) {
		t.Fatalf("identity is by id")
	}
}

func TestClassifyDay(t *testing.T) {
	now := time.Date(2025, 1, 6, 15, 0, 0, 0, time.UTC)
	tests := []struct {
		day  time.Time
		want string
	}{
		{time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC), DayClassToday},
		{time.Date(2025, 1, 6, 23, 59, 0, 0, time.UTC), DayClassToday},
		{time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC), DayClassPast},
		{time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), DayClassPast},
		{time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC), ""},
		{time.Date(2024, 12, 31, 12, 0, 0, 0, time.UTC), ""},
		{time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC), ""},
	}
	for _, tt := range tests {
		if got := ClassifyDay(tt.day, now); got != tt.want {
			t.Errorf("ClassifyDay(%v) = %q, want %q", tt.day, got, tt.want)
		}
	}
}

func TestMonthDays(t *testing.T) {
	now := time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC)
	events := []Event{
		{ID: "a", Title: "Trip", Start: time.Date(2025, 2, 3, 18, 0, 0, 0, time.UTC), End: time.Date(2025, 2, 5, 9, 0, 0, 0, time.UTC)},
		{ID: "b", Title: "March", Start: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC), End: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)},
	}
	days := MonthDays(now, events, now)
	if len(days) != 28 {
		t.Fatalf("expected 28 days in February 2025, got %d", len(days))
	}
	for i, want := range []int{0, 0, 1, 1, 1, 0} {
		if got := len(days[i].Events); got != want {
			t.Fatalf("day %d: expected %d events, got %d", i+1, want, got)
		}
	}
	if days[9].Class != DayClassToday || days[8].Class != DayClassPast || days[10].Class != "" {
		t.Fatalf("unexpected classes: %q %q %q", days[8].Class, days[9].Class, days[10].Class)
	}
}
