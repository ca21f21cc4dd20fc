package calendar

import (
	"strings"
	"time"
)

type Kind string

const (
	KindEmptyTitle           Kind = "EmptyTitle"
	KindInvalidRange         Kind = "InvalidRange"
	KindPastDate             Kind = "PastDate"
	KindNegativeReminderDays Kind = "NegativeReminderDays"
	KindMissingID            Kind = "MissingID"
)

// ValidationError is a rejected candidate. Compare with errors.Is against the
// Err* values; any two errors of the same Kind match.
type ValidationError struct {
	Kind    Kind
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrEmptyTitle           = &ValidationError{Kind: KindEmptyTitle, Message: "title is required"}
	ErrInvalidRange         = &ValidationError{Kind: KindInvalidRange, Message: "end must be strictly after start"}
	ErrPastDate             = &ValidationError{Kind: KindPastDate, Message: "Cannot add events to past dates."}
	ErrNegativeReminderDays = &ValidationError{Kind: KindNegativeReminderDays, Message: "reminder days must not be negative"}
	ErrMissingID            = &ValidationError{Kind: KindMissingID, Message: "event id is required for update"}
)

type Mode int

const (
	ModeCreate Mode = iota
	ModeUpdate
)

func (m Mode) String() string {
	if m == ModeUpdate {
		return "update"
	}
	return "create"
}

type Validator struct {
	// RejectPast refuses new events that start before today.
	RejectPast bool
	Now        func() time.Time
	Location   *time.Location
}

func NewValidator(rejectPast bool, loc *time.Location) Validator {
	if loc == nil {
		loc = time.Local
	}
	return Validator{
		RejectPast: rejectPast,
		Now:        time.Now,
		Location:   loc,
	}
}

// Validate checks candidate and returns the normalized record (title trimmed).
// Rules run in order and the first failure wins.
func (v Validator) Validate(candidate Event, mode Mode) (Event, error) {
	candidate.Title = strings.TrimSpace(candidate.Title)
	if candidate.Title == "" {
		return Event{}, ErrEmptyTitle
	}
	if candidate.Start.IsZero() || candidate.End.IsZero() || !candidate.Start.Before(candidate.End) {
		return Event{}, ErrInvalidRange
	}
	if mode == ModeCreate && v.RejectPast && v.IsPast(candidate.Start) {
		return Event{}, ErrPastDate
	}
	if candidate.ReminderDays < 0 {
		return Event{}, ErrNegativeReminderDays
	}
	if mode == ModeUpdate && candidate.IsDraft() {
		return Event{}, ErrMissingID
	}
	return candidate, nil
}

// IsPast reports whether t falls before the start of the current day.
func (v Validator) IsPast(t time.Time) bool {
	return t.Before(StartOfDay(v.now(), v.location()))
}

// SelectSlot turns a picked calendar range into a draft.
func (v Validator) SelectSlot(start, end time.Time) (Event, error) {
	if v.RejectPast && v.IsPast(start) {
		return Event{}, ErrPastDate
	}
	return NewDraft(start, end), nil
}

func (v Validator) now() time.Time {
	if v.Now == nil {
		return time.Now()
	}
	return v.Now()
}

func (v Validator) location() *time.Location {
	if v.Location == nil {
		return time.Local
	}
	return v.Location
}

func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
