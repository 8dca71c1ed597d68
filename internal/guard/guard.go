package guard

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bizmarket/marketplace/internal/metrics"
	"github.com/bizmarket/marketplace/internal/model"
	"github.com/bizmarket/marketplace/internal/navigation"
)

// State of a guarded route instance.
type State int

const (
	StateUnknown State = iota
	StateChecking
	StateGranted
	StateDenied
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateChecking:
		return "checking"
	case StateGranted:
		return "granted"
	case StateDenied:
		return "denied"
	}
	return "invalid"
}

// View is what a guarded route shows for its current state.
type View int

const (
	// ViewNone renders nothing observable.
	ViewNone View = iota
	ViewProtected
	ViewRedirect
)

// Reason explains a denial.
type Reason int

const (
	ReasonUnauthenticated Reason = iota + 1
	ReasonForbidden
)

func (r Reason) String() string {
	switch r {
	case ReasonUnauthenticated:
		return "unauthenticated"
	case ReasonForbidden:
		return "forbidden"
	}
	return ""
}

// Denial describes a DENIED transition.
type Denial struct {
	Path     string
	Fallback string
	Reason   Reason
}

// SessionSource is the part of session.Store a guard needs.
type SessionSource interface {
	GetSession() model.Session
	Refresh(ctx context.Context) error
}

// Config configures one guarded route instance.
type Config struct {
	Path   string
	Policy Policy
	// Fallback receives anonymous subjects.
	Fallback string
	// ForbiddenFallback receives authenticated subjects failing the policy.
	// Fallback is used when empty.
	ForbiddenFallback string
	// ResumeState is passed along with the fallback navigation.
	ResumeState any
	// OnDenied, if set, is called after each DENIED transition.
	OnDenied func(Denial)
}

// Guard is the per-route state machine UNKNOWN -> CHECKING -> GRANTED|DENIED.
type Guard struct {
	cfg      Config
	sessions SessionSource
	nav      navigation.Navigator
	logger   *slog.Logger

	mountOnce sync.Once
	// evalMu serializes evaluations so a transition and its navigation
	// complete before the next evaluation starts.
	evalMu sync.Mutex
	mu     sync.RWMutex
	state  State
	reason Reason
	// mounting is set while Mount waits on its own check.
	mounting bool
}

// New creates a guard in StateUnknown.
func New(cfg Config, sessions SessionSource, nav navigation.Navigator, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{cfg: cfg, sessions: sessions, nav: nav, logger: logger}
}

// Mount runs the check for this route. Only the first call has an effect; it
// always goes through a real session refresh before reaching a terminal
// state. Mount returns the caller's ctx.Err() if it stopped waiting, leaving
// the guard in StateChecking until Observe sees the committed session.
func (g *Guard) Mount(ctx context.Context) error {
	var err error
	g.mountOnce.Do(func() {
		g.mu.Lock()
		g.state, g.reason, g.mounting = StateChecking, 0, true
		g.mu.Unlock()
		err = g.sessions.Refresh(ctx)
		g.mu.Lock()
		g.mounting = false
		g.mu.Unlock()
		if err != nil {
			return
		}
		g.evaluate(g.sessions.GetSession())
	})
	return err
}

// Observe re-evaluates the guard against a changed session. Before Mount and
// while Mount waits on its check it has no effect. In StateChecking it skips
// loading snapshots, which may still carry the previous user, and in any state
// it skips a loading snapshot without a user.
func (g *Guard) Observe(s model.Session) {
	g.mu.RLock()
	state, mounting := g.state, g.mounting
	g.mu.RUnlock()

	switch {
	case state == StateUnknown || mounting:
		return
	case state == StateChecking && s.IsLoading:
		return
	case s.IsLoading && s.User == nil:
		return
	}
	g.evaluate(s)
}

// State returns the current state.
func (g *Guard) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Render maps the state onto what the route shows. Protected content is only
// ever shown in StateGranted.
func (g *Guard) Render() View {
	switch g.State() {
	case StateGranted:
		return ViewProtected
	case StateDenied:
		return ViewRedirect
	default:
		return ViewNone
	}
}

func (g *Guard) evaluate(s model.Session) {
	g.evalMu.Lock()
	defer g.evalMu.Unlock()

	var reason Reason
	switch {
	case !s.IsAuthenticated || s.User == nil:
		reason = ReasonUnauthenticated
	case !g.cfg.Policy.Allows(s.User.Role):
		reason = ReasonForbidden
	}

	if reason == 0 {
		if g.transition(StateGranted, 0) {
			metrics.GuardDecisionsTotal.WithLabelValues("client", "granted").Inc()
			g.logger.Debug("route granted", "path", g.cfg.Path, "role", s.User.Role.String())
		}
		return
	}

	// A denial is re-handled when its reason changes, so an anonymous
	// subject that signs in with the wrong role lands on ForbiddenFallback.
	if !g.transition(StateDenied, reason) {
		return
	}
	metrics.GuardDecisionsTotal.WithLabelValues("client", reason.String()).Inc()
	g.logger.Info("route denied", "path", g.cfg.Path, "reason", reason.String(), "policy", g.cfg.Policy.String())
	dest := g.cfg.Fallback
	if reason == ReasonForbidden && g.cfg.ForbiddenFallback != "" {
		dest = g.cfg.ForbiddenFallback
	}
	if g.nav != nil && dest != "" {
		g.nav.Navigate(dest, navigation.Options{ResumeState: g.cfg.ResumeState})
	}
	if g.cfg.OnDenied != nil {
		g.cfg.OnDenied(Denial{Path: g.cfg.Path, Fallback: dest, Reason: reason})
	}
}

// transition reports whether the state or denial reason changed.
func (g *Guard) transition(s State, reason Reason) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == s && g.reason == reason {
		return false
	}
	g.state = s
	g.reason = reason
	return true
}
