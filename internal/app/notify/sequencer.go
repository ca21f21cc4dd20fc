package notify

import (
	"slices"
	"sync"
	"time"

	"github.com/nats-io/nuid"
)

const DefaultTimeout = 4 * time.Second

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

type Kind string

const (
	KindReminder Kind = "reminder"
	KindResult   Kind = "result"
)

type Notification struct {
	ID       string    `json:"id"`
	EventID  string    `json:"event_id,omitempty"`
	Message  string    `json:"message"`
	Severity Severity  `json:"severity"`
	Kind     Kind      `json:"kind"`
	DueAt    time.Time `json:"due_at"`
}

func (n Notification) reminderKey() string {
	return n.EventID + "@" + n.DueAt.UTC().Format(time.RFC3339Nano)
}

type State int

const (
	StateIdle State = iota
	StateShowing
)

func (s State) String() string {
	if s == StateShowing {
		return "showing"
	}
	return "idle"
}

// Sequencer shows at most one notification at a time. Callers pass the
// current time into every transition.
type Sequencer struct {
	Timeout time.Duration
	NewID   func() string
	// OnShow runs under the sequencer lock each time a notification is displayed.
	OnShow func(Notification)

	mu      sync.Mutex
	queue   []Notification
	current *Notification
	shownAt time.Time
	seen    map[string]struct{}
}

func NewSequencer(timeout time.Duration) *Sequencer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Sequencer{
		Timeout: timeout,
		NewID:   nuid.Next,
		seen:    map[string]struct{}{},
	}
}

// Enqueue appends n to the tail. It never preempts the current notification.
func (s *Sequencer) Enqueue(n Notification, now time.Time) Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == "" {
		n.ID = s.NewID()
	}
	if n.DueAt.IsZero() {
		n.DueAt = now
	}
	s.queue = append(s.queue, n)
	s.evaluateLocked(now)
	return n
}

// Close dismisses the current notification when id matches it and
// immediately shows the next one, if any.
func (s *Sequencer) Close(id string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || s.current.ID != id {
		return false
	}
	s.current = nil
	s.evaluateLocked(now)
	return true
}

// Evaluate expires the current notification once its timeout passed and
// promotes the queue head when idle.
func (s *Sequencer) Evaluate(now time.Time) (Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evaluateLocked(now)
	if s.current == nil {
		return Notification{}, false
	}
	return *s.current, true
}

func (s *Sequencer) evaluateLocked(now time.Time) {
	if s.current != nil && !now.Before(s.shownAt.Add(s.Timeout)) {
		s.current = nil
	}
	if s.current != nil || len(s.queue) == 0 {
		return
	}
	next := s.queue[0]
	s.queue = s.queue[1:]
	s.current = &next
	s.shownAt = now
	if next.Kind == KindReminder {
		s.seen[next.reminderKey()] = struct{}{}
	}
	if s.OnShow != nil {
		s.OnShow(next)
	}
}

// ReplaceReminders swaps every pending reminder for the fresh set. Result
// notifications stay queued ahead of reminders in their original order, and
// reminders already displayed are not shown again.
func (s *Sequencer) ReplaceReminders(reminders []Notification, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := make(map[string]struct{}, len(reminders))
	for _, r := range reminders {
		live[r.reminderKey()] = struct{}{}
	}
	for key := range s.seen {
		if _, ok := live[key]; !ok {
			delete(s.seen, key)
		}
	}

	kept := make([]Notification, 0, len(s.queue)+len(reminders))
	for _, n := range s.queue {
		if n.Kind != KindReminder {
			kept = append(kept, n)
		}
	}

	fresh := make([]Notification, 0, len(reminders))
	for _, r := range reminders {
		if _, shown := s.seen[r.reminderKey()]; shown {
			continue
		}
		if r.ID == "" {
			r.ID = s.NewID()
		}
		r.Kind = KindReminder
		fresh = append(fresh, r)
	}
	slices.SortStableFunc(fresh, func(a, b Notification) int {
		return b.DueAt.Compare(a.DueAt)
	})

	s.queue = append(kept, fresh...)
	s.evaluateLocked(now)
}

func (s *Sequencer) Current() (Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Notification{}, false
	}
	return *s.current, true
}

func (s *Sequencer) Pending() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.queue)
}

func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return StateIdle
	}
	return StateShowing
}

// Deadline is when the current notification expires.
func (s *Sequencer) Deadline() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return time.Time{}, false
	}
	return s.shownAt.Add(s.Timeout), true
}
