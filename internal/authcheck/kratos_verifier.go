package authcheck

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	kratos "github.com/ory/kratos-client-go"

	"github.com/bizmarket/marketplace/internal/model"
)

// ErrMissingIdentity is returned when Kratos reports a session without an identity.
var ErrMissingIdentity = errors.New("missing identity in session")

// KratosVerifier checks a Kratos session token against the Kratos public API.
// The identity schema is expected to carry email, name and role traits.
type KratosVerifier struct {
	client *kratos.APIClient
	tokens TokenSource
}

// NewKratosVerifier creates a verifier for the Kratos public API at baseURL.
func NewKratosVerifier(baseURL string, tokens TokenSource, timeout time.Duration) *KratosVerifier {
	configuration := kratos.NewConfiguration()
	configuration.Servers = []kratos.ServerConfiguration{{URL: baseURL}}
	configuration.HTTPClient = &http.Client{Timeout: timeout}
	return &KratosVerifier{client: kratos.NewAPIClient(configuration), tokens: tokens}
}

// Verify implements Verifier.
func (v *KratosVerifier) Verify(ctx context.Context) (model.AuthResult, error) {
	tok := v.tokens.AccessToken()
	if tok == "" {
		return model.Unauthenticated(), nil
	}

	session, resp, err := v.client.FrontendAPI.ToSession(ctx).XSessionToken(tok).Execute()
	if err != nil {
		if resp != nil {
			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				return model.Unauthenticated(), nil
			}
			return model.AuthResult{}, fmt.Errorf("%w: kratos returned status %d", ErrIdentityUnavailable, resp.StatusCode)
		}
		return model.AuthResult{}, fmt.Errorf("%w: %w", ErrIdentityUnavailable, err)
	}

	if session.Active != nil && !*session.Active {
		return model.Unauthenticated(), nil
	}
	if session.Identity == nil {
		return model.AuthResult{}, ErrMissingIdentity
	}

	traits, _ := session.Identity.Traits.(map[string]interface{})
	role, err := model.ParseRole(traitString(traits, "role"))
	if err != nil {
		return model.AuthResult{}, err
	}
	return model.Authenticated(model.Identity{
		ID:          session.Identity.Id,
		Email:       traitString(traits, "email"),
		DisplayName: traitString(traits, "name"),
		Role:        role,
	}), nil
}

func traitString(traits map[string]interface{}, key string) string {
	if v, ok := traits[key].(string); ok {
		return v
	}
	return ""
}
