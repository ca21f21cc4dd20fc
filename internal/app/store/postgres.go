package store

import (
	"context"

	"github.com/calendar-1m/project/internal/calendar"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresGateway struct {
	Pool  *pgxpool.Pool
	NewID func() string
}

func NewPostgresGateway(pool *pgxpool.Pool) *PostgresGateway {
	return &PostgresGateway{Pool: pool, NewID: uuid.NewString}
}

const createEventsSQL = `
CREATE TABLE IF NOT EXISTS events (
  id text PRIMARY KEY,
  owner_id text NOT NULL,
  title text NOT NULL,
  start_at timestamptz NOT NULL,
  end_at timestamptz NOT NULL,
  reminder boolean NOT NULL DEFAULT false,
  reminder_days integer NOT NULL DEFAULT 0,
  created_at timestamptz NOT NULL DEFAULT now(),
  updated_at timestamptz NOT NULL DEFAULT now(),
  CHECK (end_at > start_at),
  CHECK (reminder_days >= 0)
)`

const createEventsOwnerIndexSQL = `
CREATE INDEX IF NOT EXISTS events_owner_start_idx ON events (owner_id, start_at)`

func (g *PostgresGateway) EnsureSchema(ctx context.Context) error {
	if _, err := g.Pool.Exec(ctx, createEventsSQL); err != nil {
		return err
	}
	if _, err := g.Pool.Exec(ctx, createEventsOwnerIndexSQL); err != nil {
		return err
	}
	return nil
}

func (g *PostgresGateway) ListEvents(ctx context.Context, owner string) ([]calendar.Event, error) {
	rows, err := g.Pool.Query(ctx,
		`SELECT id, title, start_at, end_at, reminder, reminder_days
		 FROM events
		 WHERE owner_id = $1
		 ORDER BY start_at ASC, id ASC`,
		owner,
	)
	if err != nil {
		return nil, wrap(OpList, err)
	}
	defer rows.Close()

	events := make([]calendar.Event, 0)
	for rows.Next() {
		var e calendar.Event
		if err := rows.Scan(&e.ID, &e.Title, &e.Start, &e.End, &e.Reminder, &e.ReminderDays); err != nil {
			return nil, wrap(OpList, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(OpList, err)
	}
	return events, nil
}

func (g *PostgresGateway) CreateEvent(ctx context.Context, owner string, draft calendar.Event) (string, error) {
	id := g.NewID()
	_, err := g.Pool.Exec(ctx,
		`INSERT INTO events (id, owner_id, title, start_at, end_at, reminder, reminder_days)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, owner, draft.Title, draft.Start, draft.End, draft.Reminder, draft.ReminderDays,
	)
	if err != nil {
		return "", wrap(OpCreate, err)
	}
	return id, nil
}

func (g *PostgresGateway) UpdateEvent(ctx context.Context, owner, id string, record calendar.Event) error {
	res, err := g.Pool.Exec(ctx,
		`UPDATE events
		 SET title = $3, start_at = $4, end_at = $5, reminder = $6, reminder_days = $7, updated_at = now()
		 WHERE owner_id = $1 AND id = $2`,
		owner, id, record.Title, record.Start, record.End, record.Reminder, record.ReminderDays,
	)
	if err != nil {
		return wrap(OpUpdate, err)
	}
	if res.RowsAffected() == 0 {
		return wrap(OpUpdate, ErrNotFound)
	}
	return nil
}

func (g *PostgresGateway) DeleteEvent(ctx context.Context, owner, id string) error {
	res, err := g.Pool.Exec(ctx, `DELETE FROM events WHERE owner_id = $1 AND id = $2`, owner, id)
	if err != nil {
		return wrap(OpDelete, err)
	}
	if res.RowsAffected() == 0 {
		return wrap(OpDelete, ErrNotFound)
	}
	return nil
}
