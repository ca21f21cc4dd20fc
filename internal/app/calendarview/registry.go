package calendarview

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/calendar-1m/project/internal/app/identity"
	"github.com/calendar-1m/project/internal/app/store"
	"github.com/calendar-1m/project/internal/contracts"
	"github.com/calendar-1m/project/internal/platform/metrics"
	"github.com/calendar-1m/project/internal/sharding"
)

const ownerEntity = "user"

// Bus carries EventChange payloads between instances. natsutil.JetStreamBus
// implements it; a nil Bus keeps changes local.
type Bus interface {
	Publish(subject string, payload []byte) error
	Subscribe(subject string, handle func(payload []byte)) (func() error, error)
}

type lease struct {
	session     *Session
	unsubscribe func() error
}

// Registry keeps at most one live session per owner. Opening a new stream
// replaces the previous one.
type Registry struct {
	Gateway store.Gateway
	Bus     Bus
	Options Options

	logger *slog.Logger

	mu      sync.Mutex
	byOwner map[string]lease
}

func NewRegistry(gateway store.Gateway, bus Bus, opts Options) *Registry {
	opts = opts.withDefaults()
	return &Registry{
		Gateway: gateway,
		Bus:     bus,
		Options: opts,
		logger:  opts.Logger,
		byOwner: map[string]lease{},
	}
}

func (r *Registry) newSession(owner string) *Session {
	s := NewSession(owner, r.Gateway, r.Options)
	s.publish = r.publish
	return s
}

// Open starts a live session for owner, closing any session it replaces.
func (r *Registry) Open(ctx context.Context, owner string) (*Session, error) {
	s := r.newSession(owner)
	s.countShown()

	var unsubscribe func() error
	if r.Bus != nil {
		unsub, err := r.Bus.Subscribe(sharding.SubscriptionSubject(ownerEntity, owner), func(payload []byte) {
			var change contracts.EventChange
			if err := json.Unmarshal(payload, &change); err != nil {
				r.logger.Warn("drop malformed event change", "err", err)
				return
			}
			s.Apply(change)
		})
		if err != nil {
			s.Close()
			return nil, err
		}
		unsubscribe = unsub
	}

	r.mu.Lock()
	prev, replaced := r.byOwner[owner]
	r.byOwner[owner] = lease{session: s, unsubscribe: unsubscribe}
	r.mu.Unlock()

	if replaced {
		r.closeLease(prev)
	} else {
		metrics.ActiveSessions.Inc()
	}

	// Load failures are already surfaced as a notification on the session.
	_ = s.Load(ctx)
	return s, nil
}

// Release closes s if it is still the live session for its owner.
func (r *Registry) Release(s *Session) {
	r.mu.Lock()
	current, ok := r.byOwner[s.Owner]
	if !ok || current.session != s {
		r.mu.Unlock()
		s.Close()
		return
	}
	delete(r.byOwner, s.Owner)
	r.mu.Unlock()

	metrics.ActiveSessions.Dec()
	r.closeLease(current)
}

// Cancel closes the live session of owner, if any.
func (r *Registry) Cancel(owner string) {
	r.mu.Lock()
	current, ok := r.byOwner[owner]
	if ok {
		delete(r.byOwner, owner)
	}
	r.mu.Unlock()

	if ok {
		metrics.ActiveSessions.Dec()
		r.closeLease(current)
	}
}

func (r *Registry) closeLease(l lease) {
	if l.unsubscribe != nil {
		if err := l.unsubscribe(); err != nil {
			r.logger.Warn("unsubscribe failed", "user_id", l.session.Owner, "err", err)
		}
	}
	l.session.Close()
}

// Live returns the open session of owner.
func (r *Registry) Live(owner string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.byOwner[owner]
	return l.session, ok
}

// Acquire returns the live session of owner so that results of API calls show
// up in the open stream. Without one, a detached session serves the call;
// release closes it.
func (r *Registry) Acquire(owner string) (*Session, func()) {
	if s, ok := r.Live(owner); ok {
		return s, func() {}
	}
	s := r.newSession(owner)
	return s, s.Close
}

// RefreshAll recomputes reminders of every live session.
func (r *Registry) RefreshAll(now time.Time) {
	for _, s := range r.sessions() {
		s.Refresh(now)
	}
}

// TickAll expires displayed notifications whose timeout passed.
func (r *Registry) TickAll(now time.Time) {
	for _, s := range r.sessions() {
		s.Tick(now)
	}
}

func (r *Registry) sessions() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.byOwner))
	for _, l := range r.byOwner {
		out = append(out, l.session)
	}
	return out
}

// HandleAuthState closes the session of a user who signed out.
func (r *Registry) HandleAuthState(state identity.AuthState) {
	if state.SignedIn {
		return
	}
	r.Cancel(state.UserID)
}

func (r *Registry) CloseAll() {
	r.mu.Lock()
	leases := make([]lease, 0, len(r.byOwner))
	for owner, l := range r.byOwner {
		leases = append(leases, l)
		delete(r.byOwner, owner)
	}
	r.mu.Unlock()

	for _, l := range leases {
		metrics.ActiveSessions.Dec()
		r.closeLease(l)
	}
}

func (r *Registry) publish(change contracts.EventChange) {
	if r.Bus == nil {
		return
	}
	change.ShardID = sharding.GetShardID(change.OwnerID)
	payload, err := json.Marshal(change)
	if err != nil {
		r.logger.Error("marshal event change failed", "err", err)
		return
	}
	if err := r.Bus.Publish(sharding.GetSubject(ownerEntity, change.OwnerID), payload); err != nil {
		r.logger.Warn("publish event change failed", "user_id", change.OwnerID, "err", err)
	}
}
