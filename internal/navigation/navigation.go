// Package navigation defines the navigation collaborator used by the
// session core to redirect and resume.
package navigation

import "sync"

// Options carries optional navigation state.
type Options struct {
	ResumeState any
}

// Navigator performs a navigation to path.
type Navigator interface {
	Navigate(path string, opts Options)
}

// Entry is one recorded navigation.
type Entry struct {
	Path        string
	ResumeState any
}

// History is an in-memory Navigator that records every navigation.
type History struct {
	mu      sync.RWMutex
	entries []Entry
	onNav   func(Entry)
}

// NewHistory returns an empty history. onNav, if non-nil, is called after
// each navigation is recorded.
func NewHistory(onNav func(Entry)) *History {
	return &History{onNav: onNav}
}

// Navigate implements Navigator.
func (h *History) Navigate(path string, opts Options) {
	e := Entry{Path: path, ResumeState: opts.ResumeState}
	h.mu.Lock()
	h.entries = append(h.entries, e)
	h.mu.Unlock()
	if h.onNav != nil {
		h.onNav(e)
	}
}

// Current returns the latest entry, if any.
func (h *History) Current() (Entry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.entries) == 0 {
		return Entry{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// Entries returns a copy of all recorded navigations.
func (h *History) Entries() []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}
