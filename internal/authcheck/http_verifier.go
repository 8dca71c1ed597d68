package authcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bizmarket/marketplace/internal/model"
)

// SessionPath is the backend endpoint answering session checks.
const SessionPath = "/v1/auth/session"

// HTTPVerifier asks the marketplace backend about the bearer token held by
// the client.
type HTTPVerifier struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
}

// NewHTTPVerifier creates a verifier for the backend at baseURL. The timeout
// bounds a whole request.
func NewHTTPVerifier(baseURL string, tokens TokenSource, timeout time.Duration) *HTTPVerifier {
	return &HTTPVerifier{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type sessionResponse struct {
	IsAuthenticated bool            `json:"is_authenticated"`
	User            *model.Identity `json:"user"`
}

// Verify implements Verifier. Without a token there is nothing to verify and
// the answer is a definitive "not authenticated".
func (v *HTTPVerifier) Verify(ctx context.Context) (model.AuthResult, error) {
	tok := v.tokens.AccessToken()
	if tok == "" {
		return model.Unauthenticated(), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+SessionPath, nil)
	if err != nil {
		return model.AuthResult{}, fmt.Errorf("%w: %w", ErrIdentityUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Accept", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return model.AuthResult{}, fmt.Errorf("%w: %w", ErrIdentityUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return model.Unauthenticated(), nil
	default:
		return model.AuthResult{}, fmt.Errorf("%w: backend returned status %d", ErrIdentityUnavailable, resp.StatusCode)
	}

	var body sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return model.AuthResult{}, fmt.Errorf("%w: decode session: %w", ErrIdentityUnavailable, err)
	}
	return model.AuthResult{IsAuthenticated: body.IsAuthenticated, User: body.User}, nil
}
