// Package session holds the client's authoritative session snapshot.
//
// A Store is created once at application bootstrap and shared by every
// consumer. It has exactly two mutation entry points: SetUser for optimistic
// updates right after login or signup, and Refresh which asks the
// authentication checker and commits its answer.
//
// Every mutation takes a new sequence number. A check resolution is committed
// only when its sequence number is still the latest one issued, so a slow
// check never overwrites a newer optimistic or resolved state.
package session

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/bizmarket/marketplace/internal/metrics"
	"github.com/bizmarket/marketplace/internal/model"
)

const refreshKey = "refresh"

// Checker resolves whether the client currently holds a valid session.
// Implementations must not return errors; failures are reported as an
// unauthenticated result.
type Checker interface {
	CheckAuthentication(ctx context.Context) model.AuthResult
}

// Store is the single source of truth for "who is logged in".
type Store struct {
	checker Checker
	logger  *slog.Logger
	flight  singleflight.Group

	mu      sync.RWMutex
	session model.Session
	seq     uint64
	subs    map[int]chan model.Session
	nextSub int
}

// NewStore creates a store in the initial state: no user, loading.
func NewStore(checker Checker, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		checker: checker,
		logger:  logger,
		session: model.Session{IsLoading: true},
		subs:    make(map[int]chan model.Session),
	}
}

// GetSession returns a snapshot of the current session.
func (s *Store) GetSession() model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSession(s.session)
}

// SetUser replaces the user without a server round trip. A nil user resets
// the session to the anonymous state. Any check still in flight becomes stale.
func (s *Store) SetUser(u *model.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.session = resolved(u)
	s.broadcastLocked()
}

// Refresh runs an authentication check and commits its result. Calls made
// while a check is in flight join that check instead of starting another.
// The shared check is not cancelled when ctx is; Refresh then returns
// ctx.Err() and the check still commits when it lands.
func (s *Store) Refresh(ctx context.Context) error {
	// Shared is reported to the caller that started the flight too, so only
	// callers whose function never ran count as coalesced.
	var led bool
	ch := s.flight.DoChan(refreshKey, func() (any, error) {
		led = true
		s.check(context.WithoutCancel(ctx))
		return nil, nil
	})
	select {
	case res := <-ch:
		if res.Shared && !led {
			metrics.RefreshCoalescedTotal.Inc()
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) check(ctx context.Context) {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	// The previous user stays visible while revalidating.
	s.session.IsLoading = true
	s.broadcastLocked()
	s.mu.Unlock()

	res := s.checker.CheckAuthentication(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.seq {
		metrics.StaleResolutionsTotal.Inc()
		s.logger.DebugContext(ctx, "discarding stale session resolution", "seq", seq, "latest", s.seq)
		return
	}
	var user *model.Identity
	if res.IsAuthenticated && res.User != nil {
		user = res.User
	}
	s.session = resolved(user)
	s.broadcastLocked()
}

// Subscribe returns a channel that receives the latest session snapshot after
// each change. Only the newest snapshot is kept for a slow reader. The
// returned function unsubscribes and closes the channel.
func (s *Store) Subscribe() (<-chan model.Session, func()) {
	ch := make(chan model.Session, 1)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			close(ch)
			s.mu.Unlock()
		})
	}
}

// broadcastLocked must be called with s.mu held for writing.
func (s *Store) broadcastLocked() {
	for _, ch := range s.subs {
		snap := cloneSession(s.session)
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func resolved(u *model.Identity) model.Session {
	if u == nil {
		return model.Session{}
	}
	c := *u
	return model.Session{User: &c, IsAuthenticated: true}
}

func cloneSession(in model.Session) model.Session {
	out := in
	if in.User != nil {
		u := *in.User
		out.User = &u
	}
	out.IsAuthenticated = out.User != nil
	return out
}
