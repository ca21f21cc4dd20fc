package store

import (
	"context"
	"slices"
	"sync"

	"github.com/calendar-1m/project/internal/calendar"
	"github.com/google/uuid"
)

// MemoryGateway keeps events in process. Used for local runs and tests.
type MemoryGateway struct {
	NewID func() string

	mu      sync.Mutex
	byOwner map[string]*calendar.Set
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		NewID:   uuid.NewString,
		byOwner: map[string]*calendar.Set{},
	}
}

func (g *MemoryGateway) ListEvents(ctx context.Context, owner string) ([]calendar.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrap(OpList, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	set, ok := g.byOwner[owner]
	if !ok {
		return []calendar.Event{}, nil
	}
	events := set.Events()
	slices.SortStableFunc(events, func(a, b calendar.Event) int {
		return a.Start.Compare(b.Start)
	})
	return events, nil
}

func (g *MemoryGateway) CreateEvent(ctx context.Context, owner string, draft calendar.Event) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", wrap(OpCreate, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	set, ok := g.byOwner[owner]
	if !ok {
		set = calendar.NewSet(nil)
		g.byOwner[owner] = set
	}
	id := g.NewID()
	set.Put(draft.WithID(id))
	return id, nil
}

func (g *MemoryGateway) UpdateEvent(ctx context.Context, owner, id string, record calendar.Event) error {
	if err := ctx.Err(); err != nil {
		return wrap(OpUpdate, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	set, ok := g.byOwner[owner]
	if !ok {
		return wrap(OpUpdate, ErrNotFound)
	}
	if _, ok := set.Get(id); !ok {
		return wrap(OpUpdate, ErrNotFound)
	}
	set.Put(record.WithID(id))
	return nil
}

func (g *MemoryGateway) DeleteEvent(ctx context.Context, owner, id string) error {
	if err := ctx.Err(); err != nil {
		return wrap(OpDelete, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	set, ok := g.byOwner[owner]
	if !ok || !set.Remove(id) {
		return wrap(OpDelete, ErrNotFound)
	}
	return nil
}
