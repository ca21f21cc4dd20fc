package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/calendar-1m/project/internal/calendar"
)

var ErrNotFound = errors.New("event not found")

const (
	OpList   = "list"
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Gateway persists events per owner. Implementations keep no cache and
// report every failure as a *StoreError.
type Gateway interface {
	ListEvents(ctx context.Context, owner string) ([]calendar.Event, error)
	CreateEvent(ctx context.Context, owner string, draft calendar.Event) (string, error)
	UpdateEvent(ctx context.Context, owner, id string, record calendar.Event) error
	DeleteEvent(ctx context.Context, owner, id string) error
}

type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
