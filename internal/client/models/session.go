// Package models defines the client-side data models of MedTrace: the auth
// session, the user profile with its preference records, and the medicine,
// alert and report rows read from the hosted backend.
package models

import "time"

// User is the identity carried by a Session, as issued by the auth service.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Phone        string         `json:"phone,omitempty"`
	ConfirmedAt  *time.Time     `json:"email_confirmed_at,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// Session is the opaque credential bound to a user. The wire shape follows
// the auth service token response.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	User         *User  `json:"user,omitempty"`
}

// UserID returns the id of the session user, or "" when there is none.
func (s *Session) UserID() string {
	if s == nil || s.User == nil {
		return ""
	}
	return s.User.ID
}

// Expired reports whether the access token is past its expiry, treating
// tokens that expire within leeway as already expired. A session without a
// known expiry never expires on the client side.
func (s *Session) Expired(now time.Time, leeway time.Duration) bool {
	if s == nil {
		return true
	}
	if s.ExpiresAt == 0 {
		return false
	}
	return !now.Add(leeway).Before(time.Unix(s.ExpiresAt, 0))
}
