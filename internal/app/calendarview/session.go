package calendarview

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/calendar-1m/project/internal/app/notify"
	"github.com/calendar-1m/project/internal/app/reminder"
	"github.com/calendar-1m/project/internal/app/store"
	"github.com/calendar-1m/project/internal/calendar"
	"github.com/calendar-1m/project/internal/contracts"
	"github.com/calendar-1m/project/internal/platform/logging"
	"github.com/calendar-1m/project/internal/platform/metrics"
	"github.com/nats-io/nuid"
)

var (
	ErrSessionClosed = errors.New("calendar session closed")
	ErrUnknownEvent  = errors.New("event is not loaded")
)

type Options struct {
	Validator calendar.Validator
	Scheduler reminder.Scheduler
	// Timeout is how long one notification stays on screen.
	Timeout time.Duration
	Now     func() time.Time
	NewID   func() string
	Logger  *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = notify.DefaultTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = nuid.Next
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	if o.Validator.Now == nil {
		o.Validator.Now = o.Now
	}
	return o
}

// Session owns one user's view state: the loaded events and the notification
// sequence derived from them. Store calls run outside the lock; a call that
// completes after Close leaves the state untouched.
type Session struct {
	ID    string
	Owner string

	gateway   store.Gateway
	validator calendar.Validator
	scheduler reminder.Scheduler
	seq       *notify.Sequencer
	now       func() time.Time
	logger    *slog.Logger
	publish   func(contracts.EventChange)

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	events  *calendar.Set
	loaded  bool
	updates chan struct{}
}

func NewSession(owner string, gateway store.Gateway, opts Options) *Session {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	seq := notify.NewSequencer(opts.Timeout)
	seq.NewID = opts.NewID

	id := opts.NewID()
	return &Session{
		ID:        id,
		Owner:     owner,
		gateway:   gateway,
		validator: opts.Validator,
		scheduler: opts.Scheduler,
		seq:       seq,
		now:       opts.Now,
		logger:    opts.Logger.With("session_id", id, "user_id", owner),
		ctx:       ctx,
		cancel:    cancel,
		events:    calendar.NewSet(nil),
		updates:   make(chan struct{}, 1),
	}
}

// countShown records every notification the session displays. Only sessions
// backing a stream count; detached ones have no viewer.
func (s *Session) countShown() {
	s.seq.OnShow = func(n notify.Notification) {
		metrics.NotificationsShown.WithLabelValues(string(n.Severity)).Inc()
	}
}

// Close ends the session. Pending store calls are canceled and their
// results discarded.
func (s *Session) Close() {
	s.cancel()
}

func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

func (s *Session) closed() bool {
	return s.ctx.Err() != nil
}

// Updates signals (coalesced) whenever events or the current notification change.
func (s *Session) Updates() <-chan struct{} {
	return s.updates
}

func (s *Session) notifyUpdate() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

func (s *Session) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	callCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return callCtx, func() {
		stop()
		cancel()
	}
}

func (s *Session) Load(ctx context.Context) error {
	callCtx, done := s.callContext(ctx)
	events, err := s.gateway.ListEvents(callCtx, s.Owner)
	done()
	metrics.ObserveStore(store.OpList, err)

	if s.closed() {
		return ErrSessionClosed
	}
	if err != nil {
		s.logger.Error("load events failed", "err", err)
		s.seq.Enqueue(notify.LoadFailed(), s.now())
		s.notifyUpdate()
		return err
	}

	s.mu.Lock()
	s.events = calendar.NewSet(events)
	s.loaded = true
	s.mu.Unlock()

	s.Refresh(s.now())
	return nil
}

func (s *Session) ensureLoaded(ctx context.Context) error {
	s.mu.Lock()
	loaded := s.loaded
	s.mu.Unlock()
	if loaded {
		return nil
	}
	return s.Load(ctx)
}

func (s *Session) Create(ctx context.Context, candidate calendar.Event) (calendar.Event, error) {
	record, err := s.validator.Validate(candidate, calendar.ModeCreate)
	if err != nil {
		return calendar.Event{}, err
	}

	callCtx, done := s.callContext(ctx)
	id, err := s.gateway.CreateEvent(callCtx, s.Owner, record)
	done()
	metrics.ObserveStore(store.OpCreate, err)

	if s.closed() {
		return calendar.Event{}, ErrSessionClosed
	}
	if err != nil {
		s.fail(notify.OpCreate, "", err)
		return calendar.Event{}, err
	}

	record = record.WithID(id)
	s.mu.Lock()
	s.events.Put(record)
	s.mu.Unlock()

	s.succeed(notify.OpCreate, contracts.ActionCreated, record)
	return record, nil
}

func (s *Session) Update(ctx context.Context, id string, candidate calendar.Event) (calendar.Event, error) {
	candidate.ID = id
	record, err := s.validator.Validate(candidate, calendar.ModeUpdate)
	if err != nil {
		return calendar.Event{}, err
	}

	callCtx, done := s.callContext(ctx)
	err = s.gateway.UpdateEvent(callCtx, s.Owner, id, record)
	done()
	metrics.ObserveStore(store.OpUpdate, err)

	if s.closed() {
		return calendar.Event{}, ErrSessionClosed
	}
	if err != nil {
		s.fail(notify.OpUpdate, id, err)
		return calendar.Event{}, err
	}

	s.mu.Lock()
	s.events.Put(record)
	s.mu.Unlock()

	s.succeed(notify.OpUpdate, contracts.ActionUpdated, record)
	return record, nil
}

// Patch applies a partial edit on top of the loaded event.
func (s *Session) Patch(ctx context.Context, id string, patch calendar.Patch) (calendar.Event, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return calendar.Event{}, err
	}
	existing, ok := s.SelectEvent(id)
	if !ok {
		return calendar.Event{}, ErrUnknownEvent
	}
	return s.Update(ctx, id, patch.Apply(existing))
}

func (s *Session) Delete(ctx context.Context, id string) error {
	callCtx, done := s.callContext(ctx)
	err := s.gateway.DeleteEvent(callCtx, s.Owner, id)
	done()
	metrics.ObserveStore(store.OpDelete, err)

	if s.closed() {
		return ErrSessionClosed
	}
	if err != nil {
		s.fail(notify.OpDelete, id, err)
		return err
	}

	s.mu.Lock()
	s.events.Remove(id)
	s.mu.Unlock()

	s.succeed(notify.OpDelete, contracts.ActionDeleted, calendar.Event{ID: id})
	return nil
}

func (s *Session) fail(op notify.Op, eventID string, err error) {
	now := s.now()
	s.logger.Error("store call failed", "op", op, "event_id", eventID, "err", err)
	s.seq.Enqueue(notify.Result(op, eventID, err), now)
	s.Refresh(now)
}

func (s *Session) succeed(op notify.Op, action string, e calendar.Event) {
	now := s.now()
	s.logger.Info("event stored", "op", op, "event_id", e.ID)
	s.seq.Enqueue(notify.Result(op, e.ID, nil), now)
	s.Refresh(now)

	if s.publish != nil {
		s.publish(contracts.EventChange{
			ChangeID:   nuid.Next(),
			Origin:     s.ID,
			OwnerID:    s.Owner,
			Action:     action,
			Event:      e,
			OccurredAt: now,
		})
	}
}

// Apply folds a change made by another session into the local set.
func (s *Session) Apply(change contracts.EventChange) bool {
	if change.Origin == s.ID || change.OwnerID != s.Owner || s.closed() {
		return false
	}
	s.mu.Lock()
	switch change.Action {
	case contracts.ActionCreated, contracts.ActionUpdated:
		s.events.Put(change.Event)
	case contracts.ActionDeleted:
		s.events.Remove(change.Event.ID)
	default:
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	s.Refresh(s.now())
	return true
}

// SelectSlot turns a picked range into a draft for the edit form.
func (s *Session) SelectSlot(start, end time.Time) (calendar.Event, error) {
	return s.validator.SelectSlot(start, end)
}

func (s *Session) SelectEvent(id string) (calendar.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events.Get(id)
}

func (s *Session) Events() []calendar.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events.Events()
}

// Refresh recomputes due reminders at now and re-evaluates the sequencer.
func (s *Session) Refresh(now time.Time) {
	events := s.Events()
	s.seq.ReplaceReminders(s.scheduler.Collect(events, now), now)
	s.notifyUpdate()
}

// Tick expires the current notification when its time is up.
func (s *Session) Tick(now time.Time) {
	before, hadBefore := s.seq.Current()
	after, hasAfter := s.seq.Evaluate(now)
	if hadBefore != hasAfter || before.ID != after.ID {
		s.notifyUpdate()
	}
}

func (s *Session) Current() (notify.Notification, bool) {
	return s.seq.Current()
}

func (s *Session) Pending() []notify.Notification {
	return s.seq.Pending()
}

// Deadline is when the displayed notification auto-closes.
func (s *Session) Deadline() (time.Time, bool) {
	return s.seq.Deadline()
}

// Dismiss closes the displayed notification if id still refers to it.
func (s *Session) Dismiss(id string) bool {
	if !s.seq.Close(id, s.now()) {
		return false
	}
	s.notifyUpdate()
	return true
}
