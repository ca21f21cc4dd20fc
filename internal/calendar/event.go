package calendar

import (
	"strings"
	"time"
)

// Event is a single calendar entry. ID is empty until the store assigns one.
type Event struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Reminder     bool      `json:"reminder"`
	ReminderDays int       `json:"reminder_days"`
}

func (e Event) IsDraft() bool {
	return strings.TrimSpace(e.ID) == ""
}

// SameAs reports identity. Two drafts are never the same event.
func (e Event) SameAs(other Event) bool {
	if e.IsDraft() || other.IsDraft() {
		return false
	}
	return e.ID == other.ID
}

func (e Event) WithID(id string) Event {
	e.ID = id
	return e
}

// NewDraft returns a one-hour draft starting at start, or the given end when set.
func NewDraft(start, end time.Time) Event {
	if end.IsZero() {
		end = start.Add(time.Hour)
	}
	return Event{Start: start, End: end}
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Title        *string    `json:"title,omitempty"`
	Start        *time.Time `json:"start,omitempty"`
	End          *time.Time `json:"end,omitempty"`
	Reminder     *bool      `json:"reminder,omitempty"`
	ReminderDays *int       `json:"reminder_days,omitempty"`
}

// Apply returns a copy of e with the patch applied. A start-only change goes
// through EditStart so the end follows when it would become invalid.
func (p Patch) Apply(e Event) Event {
	if p.Title != nil {
		e.Title = *p.Title
	}
	switch {
	case p.Start != nil && p.End != nil:
		e.Start = *p.Start
		e.End = *p.End
	case p.Start != nil:
		e = EditStart(e, *p.Start)
	case p.End != nil:
		e = EditEnd(e, *p.End)
	}
	if p.Reminder != nil {
		e.Reminder = *p.Reminder
	}
	if p.ReminderDays != nil {
		e.ReminderDays = *p.ReminderDays
	}
	return e
}

// Set is an ordered collection of persisted events keyed by id.
type Set struct {
	order []string
	byID  map[string]Event
}

func NewSet(events []Event) *Set {
	s := &Set{byID: make(map[string]Event, len(events))}
	for _, e := range events {
		s.Put(e)
	}
	return s
}

// Put inserts or replaces the event with the same id. Drafts are ignored.
func (s *Set) Put(e Event) {
	if e.IsDraft() {
		return
	}
	if _, ok := s.byID[e.ID]; !ok {
		s.order = append(s.order, e.ID)
	}
	s.byID[e.ID] = e
}

func (s *Set) Get(id string) (Event, bool) {
	e, ok := s.byID[id]
	return e, ok
}

func (s *Set) Remove(id string) bool {
	if _, ok := s.byID[id]; !ok {
		return false
	}
	delete(s.byID, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *Set) Len() int {
	return len(s.order)
}

// Events returns a copy in insertion order.
func (s *Set) Events() []Event {
	out := make([]Event, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}
