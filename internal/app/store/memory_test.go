package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/calendar-1m/project/internal/calendar"
)

func newTestGateway() *MemoryGateway {
	g := NewMemoryGateway()
	n := 0
	g.NewID = func() string {
		n++
		return fmt.Sprintf("evt-%d", n)
	}
	return g
}

func TestMemoryGateway_RoundTrip(t *testing.T) {
	ctx := context.Background()
	g := newTestGateway()
	start := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	draft := calendar.Event{Title: "Standup", Start: start, End: start.Add(30 * time.Minute), Reminder: true, ReminderDays: 1}

	id, err := g.CreateEvent(ctx, "u1", draft)
	if err != nil {
		t.Fatalf("CreateEvent error: %v", err)
	}
	if id == "" {
		t.Fatalf("expected id")
	}

	events, err := g.ListEvents(ctx, "u1")
	if err != nil {
		t.Fatalf("ListEvents error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if got := events[0]; got != draft.WithID(id) {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	others, _ := g.ListEvents(ctx, "u2")
	if len(others) != 0 {
		t.Fatalf("events leaked across owners: %+v", others)
	}
}

func TestMemoryGateway_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	g := newTestGateway()
	start := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	id, _ := g.CreateEvent(ctx, "u1", calendar.Event{Title: "A", Start: start, End: start.Add(time.Hour)})

	updated := calendar.Event{Title: "B", Start: start, End: start.Add(2 * time.Hour)}
	if err := g.UpdateEvent(ctx, "u1", id, updated); err != nil {
		t.Fatalf("UpdateEvent error: %v", err)
	}
	events, _ := g.ListEvents(ctx, "u1")
	if events[0].Title != "B" || events[0].ID != id {
		t.Fatalf("update not applied: %+v", events[0])
	}

	if err := g.DeleteEvent(ctx, "u1", id); err != nil {
		t.Fatalf("DeleteEvent error: %v", err)
	}
	err := g.DeleteEvent(ctx, "u1", id)
	var se *StoreError
	if !errors.As(err, &se) || se.Op != OpDelete || !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected StoreError wrapping ErrNotFound, got %v", err)
	}
	if err := g.UpdateEvent(ctx, "u1", "missing", updated); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update, got %v", err)
	}
}

func TestMemoryGateway_ListOrderedByStart(t *testing.T) {
	ctx := context.Background()
	g := newTestGateway()
	base := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	_, _ = g.CreateEvent(ctx, "u1", calendar.Event{Title: "late", Start: base.Add(3 * time.Hour), End: base.Add(4 * time.Hour)})
	_, _ = g.CreateEvent(ctx, "u1", calendar.Event{Title: "early", Start: base, End: base.Add(time.Hour)})

	events, _ := g.ListEvents(ctx, "u1")
	if events[0].Title != "early" || events[1].Title != "late" {
		t.Fatalf("unexpected order: %+v", events)
	}
}

func TestMemoryGateway_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestGateway().ListEvents(ctx, "u1")
	var se *StoreError
	if !errors.As(err, &se) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected StoreError wrapping context.Canceled, got %v", err)
	}
}

func TestWrap_KeepsExistingStoreError(t *testing.T) {
	inner := &StoreError{Op: OpCreate, Err: errors.New("x")}
	if got := wrap(OpUpdate, inner); got != error(inner) {
		t.Fatalf("wrap should not double wrap, got %v", got)
	}
	if wrap(OpList, nil) != nil {
		t.Fatalf("wrap(nil) should be nil")
	}
}
