package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bizmarket/marketplace/internal/authcheck"
	"github.com/bizmarket/marketplace/internal/authmodal"
	"github.com/bizmarket/marketplace/internal/config"
	"github.com/bizmarket/marketplace/internal/guard"
	"github.com/bizmarket/marketplace/internal/model"
	"github.com/bizmarket/marketplace/internal/navigation"
	"github.com/bizmarket/marketplace/internal/session"
)

// ErrPasswordLoginUnsupported is returned by Login and Signup when sessions
// are verified against Kratos, whose self-service flows own credentials.
var ErrPasswordLoginUnsupported = errors.New("password login not available with the kratos identity backend")

// App is one running client: a shared session store, its checker, the route
// table and the auth modal coordinator.
type App struct {
	cfg    config.ClientConfig
	api    *API
	tokens *Tokens
	store  *session.Store
	table  *guard.Table
	modals *authmodal.Coordinator
	nav    navigation.Navigator
	logger *slog.Logger

	mu      sync.Mutex
	current *guard.Guard
}

// NewApp builds the client from cfg. Navigations go to nav.
func NewApp(cfg config.ClientConfig, nav navigation.Navigator, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	table, err := cfg.LoadGuardTable()
	if err != nil {
		return nil, err
	}

	tokens := &Tokens{}
	var verifier authcheck.Verifier
	switch cfg.IdentityBackend {
	case config.IdentityBackendKratos:
		verifier = authcheck.NewKratosVerifier(cfg.KratosURL, tokens, cfg.RequestTimeout)
	default:
		verifier = authcheck.NewHTTPVerifier(cfg.APIURL, tokens, cfg.RequestTimeout)
	}
	checker := authcheck.NewChecker(verifier, logger)

	a := &App{
		cfg:    cfg,
		api:    NewAPI(cfg.APIURL, cfg.RequestTimeout),
		tokens: tokens,
		store:  session.NewStore(checker, logger),
		table:  table,
		nav:    nav,
		logger: logger,
	}
	a.modals = authmodal.New(nav, logger, authmodal.WithResumer(a.resume))
	return a, nil
}

func (a *App) Session() model.Session         { return a.store.GetSession() }
func (a *App) Modals() *authmodal.Coordinator { return a.modals }
func (a *App) Tokens() *Tokens                { return a.tokens }

// Mounted returns the guard of the last guarded Visit, or nil.
func (a *App) Mounted() *guard.Guard { return a.mounted() }

// Start runs the modal coordinator and feeds session changes to the mounted
// guard until ctx is done.
func (a *App) Start(ctx context.Context) {
	modalSessions, cancelModal := a.store.Subscribe()
	guardSessions, cancelGuard := a.store.Subscribe()

	go func() {
		defer cancelModal()
		if err := a.modals.Run(ctx, modalSessions); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("modal coordinator stopped", "error", err)
		}
	}()
	go func() {
		defer cancelGuard()
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-guardSessions:
				if g := a.mounted(); g != nil {
					g.Observe(s)
				}
			}
		}
	}()
}

// Visit navigates to path. Guarded paths mount a route guard first: the
// navigation happens only once it is GRANTED. An anonymous denial also
// opens the login modal with path as the redirect intent.
func (a *App) Visit(ctx context.Context, path string, resumeState any) (guard.State, error) {
	route, ok := a.table.Match(path)
	if !ok {
		a.setMounted(nil)
		a.nav.Navigate(path, navigation.Options{ResumeState: resumeState})
		return guard.StateGranted, nil
	}

	g := guard.New(guard.Config{
		Path:              path,
		Policy:            route.Policy,
		Fallback:          route.Fallback,
		ForbiddenFallback: route.ForbiddenFallback,
		ResumeState:       resumeState,
		OnDenied: func(d guard.Denial) {
			if d.Reason != guard.ReasonUnauthenticated {
				return
			}
			ev := authmodal.AuthRequired{
				Kind:   authmodal.KindLogin,
				Intent: &model.RedirectIntent{TargetURL: path, ResumeState: resumeState},
			}
			if err := a.modals.Emit(ctx, ev); err != nil {
				a.logger.Warn("auth required event dropped", "path", path, "error", err)
			}
		},
	}, a.store, a.nav, a.logger)
	a.setMounted(g)

	if err := g.Mount(ctx); err != nil {
		return g.State(), err
	}
	st := g.State()
	if st == guard.StateGranted {
		a.nav.Navigate(path, navigation.Options{ResumeState: resumeState})
	}
	return st, nil
}

// Login signs in with email and password and publishes the user to the
// session store right away.
func (a *App) Login(ctx context.Context, email, password string) (model.Identity, error) {
	if a.cfg.IdentityBackend == config.IdentityBackendKratos {
		return model.Identity{}, ErrPasswordLoginUnsupported
	}
	resp, err := a.api.Login(ctx, email, password)
	if err != nil {
		return model.Identity{}, err
	}
	return a.adopt(resp), nil
}

// Signup creates an account and signs it in.
func (a *App) Signup(ctx context.Context, req SignupRequest) (model.Identity, error) {
	if a.cfg.IdentityBackend == config.IdentityBackendKratos {
		return model.Identity{}, ErrPasswordLoginUnsupported
	}
	resp, err := a.api.Signup(ctx, req)
	if err != nil {
		return model.Identity{}, err
	}
	return a.adopt(resp), nil
}

// UseSessionToken installs an externally obtained session token, such as a
// Kratos session token, and re-checks the session.
func (a *App) UseSessionToken(ctx context.Context, token string) error {
	a.tokens.Set(token, "")
	return a.store.Refresh(ctx)
}

// Logout revokes the refresh token server side, best effort, and clears the
// local session.
func (a *App) Logout(ctx context.Context) {
	access, refresh := a.tokens.AccessToken(), a.tokens.RefreshToken()
	if a.cfg.IdentityBackend != config.IdentityBackendKratos && (access != "" || refresh != "") {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.api.Logout(ctx, access, refresh); err != nil {
			a.logger.Warn("server logout failed", "error", err)
		}
	}
	a.tokens.Clear()
	a.store.SetUser(nil)
}

// resume revisits the intent target so its route policy is checked against
// the user who just signed in.
func (a *App) resume(ctx context.Context, intent model.RedirectIntent) {
	st, err := a.Visit(ctx, intent.TargetURL, intent.ResumeState)
	if err != nil {
		a.logger.Warn("resume interrupted", "target", intent.TargetURL, "error", err)
		return
	}
	a.logger.Debug("resumed", "target", intent.TargetURL, "state", st.String())
}

func (a *App) adopt(resp AuthResponse) model.Identity {
	a.tokens.Set(resp.Access.Token, resp.Refresh.Token)
	u := resp.User
	a.store.SetUser(&u)
	a.logger.Info("signed in", "user_id", u.ID, "role", u.Role.String())
	return u
}

func (a *App) mounted() *guard.Guard {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *App) setMounted(g *guard.Guard) {
	a.mu.Lock()
	a.current = g
	a.mu.Unlock()
}
