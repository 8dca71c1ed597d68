// Package authcheck asks an identity-verification collaborator whether the
// client holds a valid session and normalizes the answer.
//
// The policy is fail-closed: any error, panic or malformed answer from the
// collaborator is reported as "not authenticated". No retries are made here.
package authcheck

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bizmarket/marketplace/internal/metrics"
	"github.com/bizmarket/marketplace/internal/model"
)

// ErrIdentityUnavailable wraps transport and server failures of a verifier.
var ErrIdentityUnavailable = errors.New("identity backend unavailable")

// Verifier is an identity-verification collaborator. A definitive "no
// session" is a nil error with an unauthenticated result; errors are
// reserved for indeterminate outcomes.
type Verifier interface {
	Verify(ctx context.Context) (model.AuthResult, error)
}

// TokenSource yields the credential presented to the identity backend.
type TokenSource interface {
	AccessToken() string
}

// Checker implements session.Checker on top of a Verifier.
type Checker struct {
	verifier Verifier
	logger   *slog.Logger
}

// NewChecker creates a fail-closed checker.
func NewChecker(v Verifier, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{verifier: v, logger: logger}
}

// CheckAuthentication never returns an error to the caller.
func (c *Checker) CheckAuthentication(ctx context.Context) (res model.AuthResult) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.ErrorContext(ctx, "identity verifier panicked", "panic", r)
			metrics.AuthChecksTotal.WithLabelValues("failed").Inc()
			res = model.Unauthenticated()
		}
	}()

	got, err := c.verifier.Verify(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "authentication check failed", "error", err)
		metrics.AuthChecksTotal.WithLabelValues("failed").Inc()
		return model.Unauthenticated()
	}
	return c.normalize(ctx, got)
}

func (c *Checker) normalize(ctx context.Context, got model.AuthResult) model.AuthResult {
	if !got.IsAuthenticated {
		metrics.AuthChecksTotal.WithLabelValues("unauthenticated").Inc()
		return model.Unauthenticated()
	}
	if got.User == nil || got.User.ID == "" || !got.User.Role.Valid() {
		c.logger.WarnContext(ctx, "discarding malformed authenticated result")
		metrics.AuthChecksTotal.WithLabelValues("failed").Inc()
		return model.Unauthenticated()
	}
	metrics.AuthChecksTotal.WithLabelValues("authenticated").Inc()
	return model.Authenticated(*got.User)
}
