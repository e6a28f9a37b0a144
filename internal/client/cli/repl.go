package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// execIface defines the command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isSignedIn() bool
	isGuest() bool
	// guarded renders a screen through the app lock.
	guarded(fn func())

	Register(ctx context.Context) error
	Login(ctx context.Context) error
	LoginWithCode(ctx context.Context) error
	Recover(ctx context.Context) error
	EnterGuest(ctx context.Context) error
	ExitGuest(ctx context.Context) error
	Logout(ctx context.Context) error

	Profile(ctx context.Context) error
	Refresh(ctx context.Context) error
	Settings(ctx context.Context) error
	Set(ctx context.Context, args []string) error
	Notify(ctx context.Context, args []string) error
	Enroll(ctx context.Context) error
	Unenroll(ctx context.Context) error

	Scan(ctx context.Context, args []string) error
	Alerts(ctx context.Context, args []string) error
	PublishAlert(ctx context.Context) error
	Report(ctx context.Context) error
	Reports(ctx context.Context) error
	Stats(ctx context.Context) error

	Background(ctx context.Context) error
	Resume(ctx context.Context) error
	Unlock(ctx context.Context) error
}

const (
	helpSignedOut = "Available commands: register, login, otp, recover, guest, scan, alerts, resume, exit"
	helpGuest     = "Available commands: scan, alerts, exitguest, background, resume, unlock, exit"
	helpSignedIn  = "Available commands: profile, refresh, settings, set, notify, enroll, unenroll, scan, alerts, alert, report, reports, stats, background, resume, unlock, logout, exit"
)

// runREPL starts a simple read–eval–print loop for the MedTrace CLI.
//
// It reads a line from reader, parses the first token as the command, and
// dispatches to methods on 'a'. Screen commands run through a.guarded, so
// a locked app shows only the lock screen. The lifecycle commands
// (background, resume, unlock), help and exit are always available. The
// loop exits on EOF or when the user types "exit" or "quit".
//
// Errors returned by command handlers are printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader, w io.Writer) {
	report := func(err error) {
		if err != nil {
			fmt.Fprintln(w, "Error:", describe(err))
		}
	}
	screen := func(fn func() error) {
		a.guarded(func() { report(fn()) })
	}

	for {
		if ctx.Err() != nil {
			return
		}
		fmt.Fprintf(w, "medtrace %s> ", statusFn())
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			if !errors.Is(err, io.EOF) {
				fmt.Fprintln(w, "Error:", err)
			}
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			switch {
			case a.isGuest():
				fmt.Fprintln(w, helpGuest)
			case a.isSignedIn():
				fmt.Fprintln(w, helpSignedIn)
			default:
				fmt.Fprintln(w, helpSignedOut)
			}

		case "register":
			screen(func() error { return a.Register(ctx) })
		case "login":
			screen(func() error { return a.Login(ctx) })
		case "otp":
			screen(func() error { return a.LoginWithCode(ctx) })
		case "recover":
			screen(func() error { return a.Recover(ctx) })
		case "guest":
			screen(func() error { return a.EnterGuest(ctx) })
		case "exitguest":
			screen(func() error { return a.ExitGuest(ctx) })
		case "logout":
			screen(func() error { return a.Logout(ctx) })

		case "profile":
			screen(func() error { return a.Profile(ctx) })
		case "refresh":
			screen(func() error { return a.Refresh(ctx) })
		case "settings":
			screen(func() error { return a.Settings(ctx) })
		case "set":
			screen(func() error { return a.Set(ctx, args) })
		case "notify":
			screen(func() error { return a.Notify(ctx, args) })
		case "enroll":
			screen(func() error { return a.Enroll(ctx) })
		case "unenroll":
			screen(func() error { return a.Unenroll(ctx) })

		case "scan":
			screen(func() error { return a.Scan(ctx, args) })
		case "alerts":
			screen(func() error { return a.Alerts(ctx, args) })
		case "alert":
			screen(func() error { return a.PublishAlert(ctx) })
		case "report":
			screen(func() error { return a.Report(ctx) })
		case "reports":
			screen(func() error { return a.Reports(ctx) })
		case "stats":
			screen(func() error { return a.Stats(ctx) })

		case "background":
			report(a.Background(ctx))
		case "resume":
			report(a.Resume(ctx))
		case "unlock":
			report(a.Unlock(ctx))

		case "exit", "quit":
			fmt.Fprintln(w, "Bye!")
			return

		default:
			fmt.Fprintln(w, "Unknown command:", cmd)
		}
	}
}
