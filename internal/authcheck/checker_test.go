package authcheck

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bizmarket/marketplace/internal/model"
)

type fakeVerifier struct {
	result model.AuthResult
	err    error
	panic  bool
}

func (f fakeVerifier) Verify(context.Context) (model.AuthResult, error) {
	if f.panic {
		panic("boom")
	}
	return f.result, f.err
}

func TestChecker_Authenticated(t *testing.T) {
	user := model.Identity{ID: "9", Email: "s@example.com", Role: model.RoleSeller}
	c := NewChecker(fakeVerifier{result: model.Authenticated(user)}, nil)

	got := c.CheckAuthentication(context.Background())
	assert.True(t, got.IsAuthenticated)
	assert.Equal(t, user, *got.User)
}

func TestChecker_FailsClosed(t *testing.T) {
	tests := []struct {
		name     string
		verifier fakeVerifier
	}{
		{"transport error", fakeVerifier{err: ErrIdentityUnavailable}},
		{"error with positive result", fakeVerifier{result: model.Authenticated(model.Identity{ID: "1", Role: model.RoleAdmin}), err: errors.New("late")}},
		{"panic", fakeVerifier{panic: true}},
		{"authenticated without user", fakeVerifier{result: model.AuthResult{IsAuthenticated: true}}},
		{"authenticated without role", fakeVerifier{result: model.Authenticated(model.Identity{ID: "1"})}},
		{"authenticated without id", fakeVerifier{result: model.Authenticated(model.Identity{Role: model.RoleBuyer})}},
		{"unauthenticated with user", fakeVerifier{result: model.AuthResult{User: &model.Identity{ID: "1", Role: model.RoleBuyer}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker(tt.verifier, nil)
			var got model.AuthResult
			assert.NotPanics(t, func() { got = c.CheckAuthentication(context.Background()) })
			assert.False(t, got.IsAuthenticated)
			assert.Nil(t, got.User)
		})
	}
}
