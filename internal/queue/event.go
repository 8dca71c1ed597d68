// Package queue defines the auth audit events exchanged over the broker and
// the consumer that appends them to the audit log.
package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/bizmarket/marketplace/internal/model"
)

// AuthEventsQueue is the durable queue carrying AuthEvent payloads.
const AuthEventsQueue = "auth.events"

// EventType names what happened to an account.
type EventType string

const (
	EventSignup EventType = "signup"
	EventLogin  EventType = "login"
	EventLogout EventType = "logout"
	EventDenied EventType = "denied"
)

// AuthEvent is published for signups, logins, logouts and server-side
// role denials. It carries enough context to audit without querying MySQL.
type AuthEvent struct {
	ID         string     `json:"id"`
	Type       EventType  `json:"type"`
	UserID     uint64     `json:"user_id,omitempty"`
	Email      string     `json:"email,omitempty"`
	Role       model.Role `json:"role,omitempty"`
	Path       string     `json:"path,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// NewAuthEvent stamps an event with a fresh id and the current time.
func NewAuthEvent(typ EventType, userID uint64, email string, role model.Role) AuthEvent {
	return AuthEvent{
		ID:         uuid.NewString(),
		Type:       typ,
		UserID:     userID,
		Email:      email,
		Role:       role,
		OccurredAt: time.Now().UTC(),
	}
}
