package session

import (
	"context"

	"github.com/santinotanus/medtrace/internal/client/backend"
)

// Sign-in forms go through the Manager. Failures are returned to the form
// and leave the state untouched; successes arrive as auth events.

type SignUpResult struct {
	// NeedsConfirmation is set when no session was issued yet: the user
	// has to confirm the address first.
	NeedsConfirmation bool
}

func (m *Manager) SignInWithPassword(ctx context.Context, email, password string) error {
	_, err := m.auth.SignInWithPassword(ctx, email, password)
	return err
}

func (m *Manager) SignUp(ctx context.Context, email, password string, metadata map[string]any) (SignUpResult, error) {
	s, err := m.auth.SignUp(ctx, email, password, metadata)
	if err != nil {
		return SignUpResult{}, err
	}
	return SignUpResult{NeedsConfirmation: s == nil}, nil
}

func (m *Manager) SendOTP(ctx context.Context, email string, shouldCreateUser bool) error {
	return m.auth.SignInWithOTP(ctx, email, shouldCreateUser)
}

func (m *Manager) VerifyOTP(ctx context.Context, email, code string) error {
	_, err := m.auth.VerifyOTP(ctx, email, code, backend.OTPEmail)
	return err
}

func (m *Manager) RequestPasswordReset(ctx context.Context, email string) error {
	return m.auth.ResetPasswordForEmail(ctx, email)
}

// VerifyRecoveryCode exchanges a password-reset code for a recovery
// session. The recovery flag is dropped again when the code is rejected.
func (m *Manager) VerifyRecoveryCode(ctx context.Context, email, code string) error {
	m.BeginPasswordRecovery()
	if _, err := m.auth.VerifyOTP(ctx, email, code, backend.OTPRecovery); err != nil {
		m.update(func(st *State) { st.PasswordRecovery = false })
		return err
	}
	return nil
}

// CompletePasswordReset sets the new password and signs out.
func (m *Manager) CompletePasswordReset(ctx context.Context, newPassword string) error {
	if _, err := m.auth.UpdateUser(ctx, backend.UserAttributes{Password: newPassword}); err != nil {
		return err
	}
	m.FinishPasswordRecovery(ctx)
	return nil
}
