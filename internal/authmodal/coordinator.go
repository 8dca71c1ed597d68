// Package authmodal tracks which authentication modal is open and the single
// pending redirect intent, and resumes navigation once the session becomes
// authenticated.
//
// Gated actions do not touch the coordinator's state directly: they Emit an
// AuthRequired event. Run owns both the event stream and the session
// subscription and performs every state change and resume navigation.
package authmodal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bizmarket/marketplace/internal/model"
	"github.com/bizmarket/marketplace/internal/navigation"
)

// Kind identifies an authentication modal.
type Kind int

const (
	KindNone Kind = iota
	KindLogin
	KindSignup
)

func (k Kind) String() string {
	switch k {
	case KindLogin:
		return "login"
	case KindSignup:
		return "signup"
	case KindNone:
		return "none"
	}
	return "invalid"
}

// AuthRequired is emitted by a gated action that needs an authenticated user.
type AuthRequired struct {
	Kind   Kind
	Intent *model.RedirectIntent
}

const eventBuffer = 16

// ResumeFunc carries an authenticated user on to intent.
type ResumeFunc func(ctx context.Context, intent model.RedirectIntent)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithResumer sends resumes through fn instead of navigating straight to the
// intent target. Clients with route guards use it to re-run the target's
// policy for the user who just signed in.
func WithResumer(fn ResumeFunc) Option {
	return func(c *Coordinator) { c.resume = fn }
}

// Coordinator owns the active modal and the pending intent.
type Coordinator struct {
	nav    navigation.Navigator
	resume ResumeFunc
	logger *slog.Logger
	events chan AuthRequired

	mu     sync.Mutex
	active Kind
	intent *model.RedirectIntent
}

// New creates a coordinator with no modal open.
func New(nav navigation.Navigator, logger *slog.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{nav: nav, logger: logger, events: make(chan AuthRequired, eventBuffer)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OpenModal makes kind the only active modal. A non-nil intent replaces the
// stored one.
func (c *Coordinator) OpenModal(kind Kind, intent *model.RedirectIntent) {
	if kind != KindLogin && kind != KindSignup {
		c.logger.Warn("ignoring open of unknown modal kind", "kind", int(kind))
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = kind
	if intent != nil {
		in := *intent
		if in.ID == "" {
			in.ID = uuid.NewString()
		}
		if in.CreatedAt.IsZero() {
			in.CreatedAt = time.Now().UTC()
		}
		c.intent = &in
	}
}

// CloseModal closes the active modal. The stored intent is kept so that a
// reopened modal still resumes.
func (c *Coordinator) CloseModal() {
	c.mu.Lock()
	c.active = KindNone
	c.mu.Unlock()
}

// ClearIntent discards the stored intent.
func (c *Coordinator) ClearIntent() {
	c.mu.Lock()
	c.intent = nil
	c.mu.Unlock()
}

// Dismiss is the user cancelling the auth flow: the modal closes and the
// intent is discarded.
func (c *Coordinator) Dismiss() {
	c.mu.Lock()
	c.active = KindNone
	c.intent = nil
	c.mu.Unlock()
}

// Active returns the open modal kind.
func (c *Coordinator) Active() Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Intent returns a copy of the stored intent.
func (c *Coordinator) Intent() (model.RedirectIntent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.intent == nil {
		return model.RedirectIntent{}, false
	}
	return *c.intent, true
}

// Emit queues an AuthRequired event for Run.
func (c *Coordinator) Emit(ctx context.Context, ev AuthRequired) error {
	select {
	case c.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Resume closes the modal and continues to the stored intent once s is
// authenticated. It only acts while a modal is open. It reports whether the
// intent was handed on.
func (c *Coordinator) Resume(ctx context.Context, s model.Session) bool {
	if !s.IsAuthenticated {
		return false
	}
	c.mu.Lock()
	if c.active == KindNone {
		c.mu.Unlock()
		return false
	}
	c.active = KindNone
	intent := c.intent
	c.intent = nil
	c.mu.Unlock()

	if intent == nil || (c.resume == nil && c.nav == nil) {
		return false
	}
	c.logger.Info("resuming after authentication", "intent_id", intent.ID, "target", intent.TargetURL)
	if c.resume != nil {
		c.resume(ctx, *intent)
		return true
	}
	c.nav.Navigate(intent.TargetURL, navigation.Options{ResumeState: intent.ResumeState})
	return true
}

// Run processes events and session changes until ctx is done. Pending
// session updates are always applied before an event so that an event is
// judged against the newest session seen.
func (c *Coordinator) Run(ctx context.Context, sessions <-chan model.Session) error {
	var last model.Session
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-sessions:
			if !ok {
				sessions = nil
				continue
			}
			last = s
			c.Resume(ctx, s)
		case ev := <-c.events:
			last, sessions = drain(last, sessions)
			c.OpenModal(ev.Kind, ev.Intent)
			c.Resume(ctx, last)
		}
	}
}

func drain(last model.Session, sessions <-chan model.Session) (model.Session, <-chan model.Session) {
	for {
		select {
		case s, ok := <-sessions:
			if !ok {
				return last, nil
			}
			last = s
		default:
			return last, sessions
		}
	}
}
