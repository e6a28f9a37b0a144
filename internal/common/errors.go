// Package common defines sentinel errors and small helpers shared by the
// MedTrace client packages. Callers should use errors.Is to match the errors.
package common

import "errors"

var (
	// Backend-level errors.
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnavailable  = errors.New("backend unavailable")

	// Access errors raised by the client before any backend call.
	ErrGuestRestricted = errors.New("not available in guest mode")
	ErrForbidden       = errors.New("forbidden")
	ErrNoProfile       = errors.New("profile not loaded")

	// Local storage errors.
	ErrLocalDataNotAvailable = errors.New("local data unavailable")
)
