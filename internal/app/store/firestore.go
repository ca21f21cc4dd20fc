package store

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/calendar-1m/project/internal/calendar"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const DefaultFirestoreRoot = "calendars"

// eventDoc is the stored document shape. Field names match what the web
// client reads and writes.
type eventDoc struct {
	Title        string    `firestore:"title"`
	Start        time.Time `firestore:"start"`
	End          time.Time `firestore:"end"`
	Reminder     bool      `firestore:"reminder"`
	ReminderDays int       `firestore:"reminderDays"`
}

func toDoc(e calendar.Event) eventDoc {
	return eventDoc{
		Title:        e.Title,
		Start:        e.Start,
		End:          e.End,
		Reminder:     e.Reminder,
		ReminderDays: e.ReminderDays,
	}
}

func (d eventDoc) event(id string) calendar.Event {
	return calendar.Event{
		ID:           id,
		Title:        d.Title,
		Start:        d.Start,
		End:          d.End,
		Reminder:     d.Reminder,
		ReminderDays: d.ReminderDays,
	}
}

// FirestoreGateway stores events under <root>/<owner>/events.
type FirestoreGateway struct {
	Client *firestore.Client
	Root   string
}

func NewFirestoreGateway(client *firestore.Client, root string) *FirestoreGateway {
	if root == "" {
		root = DefaultFirestoreRoot
	}
	return &FirestoreGateway{Client: client, Root: root}
}

func (g *FirestoreGateway) events(owner string) *firestore.CollectionRef {
	return g.Client.Collection(g.Root).Doc(owner).Collection("events")
}

func (g *FirestoreGateway) ListEvents(ctx context.Context, owner string) ([]calendar.Event, error) {
	iter := g.events(owner).OrderBy("start", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	events := make([]calendar.Event, 0)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, wrap(OpList, err)
		}
		var doc eventDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, wrap(OpList, err)
		}
		events = append(events, doc.event(snap.Ref.ID))
	}
	return events, nil
}

func (g *FirestoreGateway) CreateEvent(ctx context.Context, owner string, draft calendar.Event) (string, error) {
	ref, _, err := g.events(owner).Add(ctx, toDoc(draft))
	if err != nil {
		return "", wrap(OpCreate, err)
	}
	return ref.ID, nil
}

func (g *FirestoreGateway) UpdateEvent(ctx context.Context, owner, id string, record calendar.Event) error {
	_, err := g.events(owner).Doc(id).Update(ctx, []firestore.Update{
		{Path: "title", Value: record.Title},
		{Path: "start", Value: record.Start},
		{Path: "end", Value: record.End},
		{Path: "reminder", Value: record.Reminder},
		{Path: "reminderDays", Value: record.ReminderDays},
	})
	return wrap(OpUpdate, notFound(err))
}

func (g *FirestoreGateway) DeleteEvent(ctx context.Context, owner, id string) error {
	_, err := g.events(owner).Doc(id).Delete(ctx, firestore.Exists)
	return wrap(OpDelete, notFound(err))
}

func notFound(err error) error {
	if err != nil && status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	return err
}
