package messaging

import (
	"errors"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	eventsStream   = "EVENTS"
	eventsSubjects = "app.event.>"
	eventsMaxAge   = 24 * time.Hour
)

// EnsureStreams creates the EVENTS stream (app.event.>) when missing.
// Calendar changes only matter to live sessions, so they age out after a day.
func EnsureStreams(js nats.JetStreamContext) error {
	if _, err := js.StreamInfo(eventsStream); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return err
		}
		if _, addErr := js.AddStream(&nats.StreamConfig{
			Name:      eventsStream,
			Subjects:  []string{eventsSubjects},
			Retention: nats.LimitsPolicy,
			Storage:   nats.FileStorage,
			MaxAge:    eventsMaxAge,
			Replicas:  1,
		}); addErr != nil {
			return addErr
		}
	}
	return nil
}
