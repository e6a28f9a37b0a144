// Package backend is the client side of the hosted MedTrace backend: the
// auth/session API, the PostgREST-style data API and serverless functions.
package backend

import (
	"context"

	"github.com/santinotanus/medtrace/internal/client/models"
)

// AuthEvent names a session transition emitted to auth listeners.
type AuthEvent string

const (
	EventInitialSession   AuthEvent = "INITIAL_SESSION"
	EventSignedIn         AuthEvent = "SIGNED_IN"
	EventSignedOut        AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed   AuthEvent = "TOKEN_REFRESHED"
	EventUserUpdated      AuthEvent = "USER_UPDATED"
	EventPasswordRecovery AuthEvent = "PASSWORD_RECOVERY"
)

// AuthListener receives every session change. The session is nil after
// sign-out or when the refresh token was rejected.
type AuthListener func(event AuthEvent, session *models.Session)

// OTPType selects what a one-time code is exchanged for.
type OTPType string

const (
	OTPEmail    OTPType = "email"
	OTPSignup   OTPType = "signup"
	OTPRecovery OTPType = "recovery"
)

// UserAttributes are the mutable fields of the signed-in user.
type UserAttributes struct {
	Email    string         `json:"email,omitempty"`
	Password string         `json:"password,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

type Auth interface {
	GetSession(ctx context.Context) (*models.Session, error)
	OnAuthStateChange(fn AuthListener) (unsubscribe func())
	SignInWithPassword(ctx context.Context, email, password string) (*models.Session, error)
	SignInWithOTP(ctx context.Context, email string, shouldCreateUser bool) error
	VerifyOTP(ctx context.Context, email, token string, kind OTPType) (*models.Session, error)
	// ResetPasswordForEmail mails a recovery code to be checked with
	// VerifyOTP(OTPRecovery).
	ResetPasswordForEmail(ctx context.Context, email string) error
	// SignUp returns a nil session when the address still has to be confirmed.
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*models.Session, error)
	UpdateUser(ctx context.Context, attrs UserAttributes) (*models.User, error)
	SignOut(ctx context.Context) error
}

type Data interface {
	From(table string) *Query
}

type Functions interface {
	Invoke(ctx context.Context, name string, body, out any) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// SessionStorage persists the session between runs.
type SessionStorage interface {
	Load(ctx context.Context) (*models.Session, error)
	Save(ctx context.Context, session *models.Session) error
	Clear(ctx context.Context) error
}
