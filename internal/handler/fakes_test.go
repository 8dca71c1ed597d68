package handler

import (
	"context"
	"sync"
	"time"

	"github.com/bizmarket/marketplace/internal/model"
	"github.com/bizmarket/marketplace/internal/queue"
	"github.com/bizmarket/marketplace/internal/repository"
	"github.com/bizmarket/marketplace/internal/utils"
)

type fakeUsers struct {
	mu     sync.Mutex
	nextID uint64
	byID   map[uint64]model.User
	err    error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{nextID: 1, byID: map[uint64]model.User{}}
}

func (f *fakeUsers) Create(_ context.Context, email, displayName, password string, role model.Role, cost int) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	email = repository.NormalizeEmail(email)
	for _, u := range f.byID {
		if u.Email == email {
			return 0, repository.ErrEmailExists
		}
	}
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	id := f.nextID
	f.nextID++
	f.byID[id] = model.User{ID: id, Email: email, DisplayName: displayName, PasswordHash: hash, Role: role, IsActive: true}
	return id, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return model.User{}, f.err
	}
	email = repository.NormalizeEmail(email)
	for _, u := range f.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (f *fakeUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return model.User{}, f.err
	}
	u, ok := f.byID[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) set(u model.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[u.ID] = u
}

// Get and Invalidate let fakeUsers stand in for the identity cache.
func (f *fakeUsers) Get(ctx context.Context, id uint64) (model.User, error) {
	return f.GetByID(ctx, id)
}
func (f *fakeUsers) Invalidate(context.Context, uint64) {}

type tokenRow struct {
	userID  uint64
	exp     time.Time
	revoked bool
}

type fakeTokens struct {
	mu    sync.Mutex
	rows  map[string]*tokenRow
	users *fakeUsers
}

func newFakeTokens(users *fakeUsers) *fakeTokens {
	return &fakeTokens{rows: map[string]*tokenRow{}, users: users}
}

func (f *fakeTokens) Issue(_ context.Context, t model.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[t.TokenHash] = &tokenRow{userID: t.UserID, exp: t.ExpiresAt}
	return nil
}

func (f *fakeTokens) Rotate(ctx context.Context, oldHash string, next model.RefreshToken) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[oldHash]
	if !ok || r.revoked || !time.Now().Before(r.exp) {
		return model.User{}, repository.ErrTokenInvalid
	}
	owner, err := f.users.GetByID(ctx, r.userID)
	if err != nil {
		return model.User{}, err
	}
	if !owner.IsActive {
		return owner, repository.ErrAccountDisabled
	}
	r.revoked = true
	f.rows[next.TokenHash] = &tokenRow{userID: owner.ID, exp: next.ExpiresAt}
	return owner, nil
}

func (f *fakeTokens) Revoke(_ context.Context, hash string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[hash]
	if !ok || r.revoked || !time.Now().Before(r.exp) {
		return 0, repository.ErrTokenInvalid
	}
	r.revoked = true
	return r.userID, nil
}

func (f *fakeTokens) RevokeAll(_ context.Context, userID uint64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, r := range f.rows {
		if r.userID == userID && !r.revoked {
			r.revoked = true
			n++
		}
	}
	return n, nil
}

func (f *fakeTokens) active(userID uint64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.rows {
		if r.userID == userID && !r.revoked {
			n++
		}
	}
	return n
}

type fakeEvents struct {
	mu     sync.Mutex
	events []queue.AuthEvent
}

func (f *fakeEvents) Publish(_ context.Context, ev queue.AuthEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeEvents) types() []queue.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]queue.EventType, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev.Type)
	}
	return out
}
