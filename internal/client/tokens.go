package client

import "sync"

// Tokens holds the credentials of the signed-in user. It is the
// authcheck.TokenSource of the App's verifier.
type Tokens struct {
	mu      sync.RWMutex
	access  string
	refresh string
}

// Set replaces both tokens.
func (t *Tokens) Set(access, refresh string) {
	t.mu.Lock()
	t.access, t.refresh = access, refresh
	t.mu.Unlock()
}

// Clear drops both tokens.
func (t *Tokens) Clear() { t.Set("", "") }

// AccessToken implements authcheck.TokenSource.
func (t *Tokens) AccessToken() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.access
}

func (t *Tokens) RefreshToken() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.refresh
}
