package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/santinotanus/medtrace/internal/common"
)

const passwordResetAttempts = 3

func (a *App) prompt(text string) (string, error) {
	return getSimpleText(a.reader, text, a.out)
}

func (a *App) password(prompt string) (string, error) {
	b, err := getSecret(a.out, prompt)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(b)
	return string(b), nil
}

// Register prompts for name, email and password and creates an account.
// When the address still has to be confirmed the user stays signed out.
func (a *App) Register(ctx context.Context) error {
	name, err := a.prompt("Enter your name")
	if err != nil {
		return err
	}
	email, err := a.prompt("Enter email")
	if err != nil {
		return err
	}
	password, err := a.password("Enter password: ")
	if err != nil {
		return err
	}

	res, err := a.session.SignUp(ctx, email, password, map[string]any{"name": name})
	if err != nil {
		return err
	}
	if res.NeedsConfirmation {
		fmt.Fprintf(a.out, "Account created. Check your inbox at %s to confirm it, then log in.\n", email)
		return nil
	}

	a.session.Wait()
	a.greet()
	return nil
}

// Login authenticates with email and password.
func (a *App) Login(ctx context.Context) error {
	email, err := a.prompt("Enter email")
	if err != nil {
		return err
	}
	password, err := a.password("Enter password: ")
	if err != nil {
		return err
	}

	if err := a.session.SignInWithPassword(ctx, email, password); err != nil {
		return err
	}
	a.session.Wait()
	a.greet()
	return nil
}

// LoginWithCode signs in with a one-time code mailed to an existing account.
func (a *App) LoginWithCode(ctx context.Context) error {
	email, err := a.prompt("Enter email")
	if err != nil {
		return err
	}
	if err := a.session.SendOTP(ctx, email, false); err != nil {
		return err
	}
	code, err := a.prompt("Enter the code we sent to " + email)
	if err != nil {
		return err
	}

	if err := a.session.VerifyOTP(ctx, email, code); err != nil {
		return err
	}
	a.session.Wait()
	a.greet()
	return nil
}

// Recover resets a forgotten password: a code is mailed, exchanged for a
// recovery session, and the new password is set. The user has to log in
// again afterwards.
func (a *App) Recover(ctx context.Context) error {
	email, err := a.prompt("Enter the email of your account")
	if err != nil {
		return err
	}
	if err := a.session.RequestPasswordReset(ctx, email); err != nil {
		return err
	}
	code, err := a.prompt("Enter the recovery code we sent to " + email)
	if err != nil {
		return err
	}
	if err := a.session.VerifyRecoveryCode(ctx, email, code); err != nil {
		return err
	}

	for i := 0; ; i++ {
		password, err := a.password("Enter new password: ")
		if err == nil {
			err = a.session.CompletePasswordReset(ctx, password)
		}
		if err == nil {
			fmt.Fprintln(a.out, "Password updated. Log in with your new password.")
			return nil
		}
		if i+1 >= passwordResetAttempts || errors.Is(err, common.ErrUnavailable) {
			a.session.FinishPasswordRecovery(ctx)
			return fmt.Errorf("password was not changed: %w", err)
		}
		fmt.Fprintln(a.out, "Error:", describe(err))
	}
}

// EnterGuest lets the user browse without an account. It signs out any
// current session.
func (a *App) EnterGuest(ctx context.Context) error {
	a.session.EnterGuestMode(ctx)
	fmt.Fprintln(a.out, "Browsing as guest. Scans and alerts are available; register to file reports.")
	return nil
}

func (a *App) ExitGuest(context.Context) error {
	if !a.isGuest() {
		fmt.Fprintln(a.out, "Not in guest mode.")
		return nil
	}
	a.session.ExitGuestMode()
	fmt.Fprintln(a.out, "Left guest mode.")
	return nil
}

// Logout clears the session locally even when the server call fails.
func (a *App) Logout(ctx context.Context) error {
	if !a.isSignedIn() {
		return errNotSignedIn
	}
	err := a.session.SignOut(ctx)
	fmt.Fprintln(a.out, "Signed out.")
	if err != nil {
		return fmt.Errorf("server sign-out did not complete: %w", err)
	}
	return nil
}

func (a *App) greet() {
	st := a.session.Snapshot()
	switch {
	case st.Profile != nil && st.Profile.Name != "":
		fmt.Fprintf(a.out, "Welcome, %s!\n", st.Profile.Name)
	case st.Session != nil && st.Session.User != nil:
		fmt.Fprintf(a.out, "Signed in as %s.\n", st.Session.User.Email)
	default:
		fmt.Fprintln(a.out, "Signed in.")
	}
	if st.SignedIn() && st.Profile == nil {
		fmt.Fprintln(a.out, "Your profile could not be loaded; some features are unavailable. Try 'refresh'.")
	}
}
