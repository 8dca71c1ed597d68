// Package repository holds the MySQL-backed stores for accounts and
// refresh tokens. Sentinel errors let handlers map storage failures to
// HTTP statuses without inspecting driver errors.
package repository

import "errors"

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned by Create when the email is already registered.
var ErrEmailExists = errors.New("email already exists")

// ErrTokenInvalid is returned for refresh tokens that are unknown, revoked or expired.
var ErrTokenInvalid = errors.New("refresh token invalid")

// ErrAccountDisabled is returned when a refresh token belongs to a deactivated account.
var ErrAccountDisabled = errors.New("account disabled")
