package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/santinotanus/medtrace/internal/client/applock"
	"github.com/santinotanus/medtrace/internal/client/backend"
	"github.com/santinotanus/medtrace/internal/client/biometric"
	"github.com/santinotanus/medtrace/internal/client/config"
	"github.com/santinotanus/medtrace/internal/client/lifecycle"
	"github.com/santinotanus/medtrace/internal/client/models"
	"github.com/santinotanus/medtrace/internal/client/services"
	"github.com/santinotanus/medtrace/internal/client/session"
	"github.com/santinotanus/medtrace/internal/logging"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// SessionManager is the part of *session.Manager the client drives.
type SessionManager interface {
	Snapshot() session.State
	Subscribe(fn func(session.State)) (unsubscribe func())
	Wait()

	SignInWithPassword(ctx context.Context, email, password string) error
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (session.SignUpResult, error)
	SendOTP(ctx context.Context, email string, shouldCreateUser bool) error
	VerifyOTP(ctx context.Context, email, code string) error
	RequestPasswordReset(ctx context.Context, email string) error
	VerifyRecoveryCode(ctx context.Context, email, code string) error
	CompletePasswordReset(ctx context.Context, newPassword string) error
	FinishPasswordRecovery(ctx context.Context)
	EnterGuestMode(ctx context.Context)
	ExitGuestMode()
	SignOut(ctx context.Context) error

	RefreshProfile(ctx context.Context)
	UpdateUserSettings(ctx context.Context, patch models.UserSettingsPatch) error
	UpdateNotificationSettings(ctx context.Context, patch models.NotificationSettingsPatch) error
}

// LockGuard is the part of *applock.Guard the client drives.
type LockGuard interface {
	Status() applock.Status
	Subscribe(fn func(applock.Status)) (unsubscribe func())
	Render(content func(), lockScreen func(applock.Status))
	Update(in applock.Inputs)
	OnLifecycle(next lifecycle.State)
	RequestUnlock()
}

// Unlocker is an unlock capability the user can enroll in from the client,
// such as *biometric.Passcode.
type Unlocker interface {
	biometric.Capability
	Enroll(ctx context.Context, passcode string) error
	Unenroll(ctx context.Context) error
}

// Deps are the collaborators of an App. Pinger may be nil, which disables
// the online watcher. In and Out default to the process stdio.
type Deps struct {
	Config    *config.Config
	Session   SessionManager
	Guard     LockGuard
	Lifecycle *lifecycle.Signal
	Unlocker  Unlocker
	Pinger    backend.Pinger
	Medicines services.MedicineService
	Alerts    services.AlertService
	Reports   services.ReportService
	Stats     services.StatsService
	Log       logging.Logger

	In  io.Reader
	Out io.Writer
}

var (
	_ SessionManager = (*session.Manager)(nil)
	_ LockGuard      = (*applock.Guard)(nil)
	_ Unlocker       = (*biometric.Passcode)(nil)
)

type App struct {
	config    *config.Config
	session   SessionManager
	guard     LockGuard
	lifecycle *lifecycle.Signal
	unlocker  Unlocker
	pinger    backend.Pinger
	medicines services.MedicineService
	alerts    services.AlertService
	reports   services.ReportService
	stats     services.StatsService
	log       logging.Logger

	reader *bufio.Reader
	out    io.Writer

	mu        sync.Mutex
	mode      Mode
	available biometric.Availability
	unbind    []func()
}

func NewApp(d Deps) *App {
	in, out := d.In, d.Out
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	lc := d.Lifecycle
	if lc == nil {
		lc = lifecycle.NewSignal()
	}
	log := d.Log
	if log == nil {
		log = logging.Discard()
	}
	return &App{
		config:    d.Config,
		session:   d.Session,
		guard:     d.Guard,
		lifecycle: lc,
		unlocker:  d.Unlocker,
		pinger:    d.Pinger,
		medicines: d.Medicines,
		alerts:    d.Alerts,
		reports:   d.Reports,
		stats:     d.Stats,
		log:       log,
		reader:    bufio.NewReader(in),
		out:       out,
	}
}

// Run starts the online watcher and the REPL and blocks until the user
// exits or ctx is done. The session manager must already be initialised.
func (a *App) Run(ctx context.Context) {
	a.bind(ctx)
	defer a.release()

	fmt.Fprintln(a.out, "Welcome to MedTrace (type 'help' for commands)")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if a.pinger != nil {
		interval := 3 * time.Second
		if a.config != nil && a.config.OnlineCheckInterval > 0 {
			interval = a.config.OnlineCheckInterval
		}
		go a.StartOnlineStatusWatcher(ctx, interval)
	}

	runREPL(ctx, a, a.getStatus, a.reader, a.out)
}

// bind feeds the guard from the session state, the unlock capability and
// the lifecycle signal.
func (a *App) bind(ctx context.Context) {
	a.probe(ctx)
	a.unbind = append(a.unbind,
		a.session.Subscribe(a.syncLock),
		a.lifecycle.Subscribe(a.guard.OnLifecycle),
	)
}

func (a *App) release() {
	for _, fn := range a.unbind {
		fn()
	}
	a.unbind = nil
}

func (a *App) probe(ctx context.Context) {
	var av biometric.Availability
	if a.unlocker != nil {
		av = biometric.Probe(ctx, a.unlocker, a.log)
	}
	a.mu.Lock()
	a.available = av
	a.mu.Unlock()
}

// reprobe re-reads the capability after an enrollment change.
func (a *App) reprobe(ctx context.Context) {
	a.probe(ctx)
	a.syncLock(a.session.Snapshot())
}

func (a *App) syncLock(st session.State) {
	a.mu.Lock()
	available := a.available.Available
	a.mu.Unlock()

	a.guard.Update(applock.Inputs{
		BiometricsEnabled: st.BiometricsEnabled(),
		Available:         available,
		Guest:             st.IsGuest,
	})
}

func (a *App) setMode(ctx context.Context, mode Mode) {
	a.mu.Lock()
	changed := a.mode != mode
	a.mode = mode
	a.mu.Unlock()

	if changed {
		a.log.Info(ctx, "connectivity changed", "mode", mode)
	}
}

func (a *App) currentMode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// StartOnlineStatusWatcher pings the backend every interval and updates
// the displayed mode until ctx is done.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	check := func() {
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := a.pinger.Ping(pctx)
		cancel()

		if err != nil {
			a.setMode(ctx, ModeOffline)
		} else {
			a.setMode(ctx, ModeOnline)
		}
	}

	check()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			check()
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) isSignedIn() bool { return a.session.Snapshot().SignedIn() }
func (a *App) isGuest() bool    { return a.session.Snapshot().IsGuest }

func (a *App) getStatus() string {
	st := a.session.Snapshot()
	s := ""
	switch {
	case st.IsGuest:
		s = "guest "
	case st.Profile != nil && st.Profile.Email != "":
		s = st.Profile.Email + " "
	case st.Session != nil && st.Session.User != nil:
		s = st.Session.User.Email + " "
	}
	s += string(a.currentMode())
	if lock := a.guard.Status(); lock != applock.Unlocked {
		s += " " + lock.String()
	}
	if s = strings.TrimSpace(s); s != "" {
		s = fmt.Sprintf("(%s) ", s)
	}
	return s
}

// guarded renders fn through the lock guard.
func (a *App) guarded(fn func()) {
	a.guard.Render(fn, a.lockScreen)
}

func (a *App) lockScreen(st applock.Status) {
	if st == applock.Authenticating {
		fmt.Fprintln(a.out, "MedTrace is locked. Unlock in progress...")
		return
	}
	fmt.Fprintln(a.out, "MedTrace is locked. Type 'resume' or 'unlock' to continue.")
}

// waitUnlocked blocks until the guard is unlocked or ctx is done.
func (a *App) waitUnlocked(ctx context.Context) error {
	wake := make(chan struct{}, 1)
	unsubscribe := a.guard.Subscribe(func(applock.Status) {
		select {
		case wake <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	for a.guard.Status() != applock.Unlocked {
		select {
		case <-wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
