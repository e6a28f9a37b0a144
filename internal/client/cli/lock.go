package cli

import (
	"context"
	"fmt"

	"github.com/santinotanus/medtrace/internal/client/applock"
	"github.com/santinotanus/medtrace/internal/client/lifecycle"
)

// Background simulates the app leaving the foreground.
func (a *App) Background(context.Context) error {
	if a.lifecycle.Set(lifecycle.Background) {
		fmt.Fprintln(a.out, "MedTrace is in the background.")
	}
	return nil
}

// Resume brings the app back and waits for the unlock challenge, if any.
func (a *App) Resume(ctx context.Context) error {
	a.lifecycle.Set(lifecycle.Active)
	return a.awaitUnlock(ctx)
}

// Unlock retries the challenge from the lock screen. The lock screen is
// only reachable in the foreground.
func (a *App) Unlock(ctx context.Context) error {
	if a.guard.Status() == applock.Unlocked {
		fmt.Fprintln(a.out, "MedTrace is not locked.")
		return nil
	}
	if a.lifecycle.State() != lifecycle.Active {
		fmt.Fprintln(a.out, "MedTrace is in the background. Type 'resume' to bring it back.")
		return nil
	}
	return a.awaitUnlock(ctx)
}

func (a *App) awaitUnlock(ctx context.Context) error {
	switch a.guard.Status() {
	case applock.Unlocked:
		return nil
	case applock.Locked:
		a.guard.RequestUnlock()
	}
	if err := a.waitUnlocked(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Unlocked.")
	return nil
}
