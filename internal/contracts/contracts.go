package contracts

import (
	"time"

	"github.com/calendar-1m/project/internal/calendar"
)

const (
	ActionCreated = "event.created"
	ActionUpdated = "event.updated"
	ActionDeleted = "event.deleted"
)

// EventChange is published after a store write succeeded and consumed by
// every live session of the same owner.
type EventChange struct {
	ChangeID   string         `json:"change_id"`
	Origin     string         `json:"origin"`
	OwnerID    string         `json:"owner_id"`
	Action     string         `json:"action"`
	Event      calendar.Event `json:"event"`
	OccurredAt time.Time      `json:"occurred_at"`
	ShardID    int            `json:"shard_id"`
}
