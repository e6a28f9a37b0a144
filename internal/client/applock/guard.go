// Package applock hides the app behind an unlock challenge after it leaves
// the foreground, when the user turned biometrics on.
package applock

import (
	"context"
	"sync"
	"time"

	"github.com/santinotanus/medtrace/internal/client/biometric"
	"github.com/santinotanus/medtrace/internal/client/lifecycle"
	"github.com/santinotanus/medtrace/internal/logging"
)

type Status int

const (
	Unlocked Status = iota
	Locked
	Authenticating
)

func (s Status) String() string {
	switch s {
	case Unlocked:
		return "unlocked"
	case Locked:
		return "locked"
	case Authenticating:
		return "authenticating"
	default:
		return "unknown"
	}
}

// Policy holds the guard timings.
type Policy struct {
	// LockDebounce delays locking so that short lifecycle flaps, such as a
	// system overlay, do not lock the app.
	LockDebounce time.Duration
	// RetryDelay spaces automatic re-prompts after a failed challenge.
	RetryDelay time.Duration
	// Reason is shown by the challenge prompt.
	Reason string
}

func DefaultPolicy() Policy {
	return Policy{
		LockDebounce: 100 * time.Millisecond,
		RetryDelay:   time.Second,
		Reason:       "Unlock MedTrace",
	}
}

type Timer interface {
	Stop() bool
}

// Scheduler runs fn once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

type clockScheduler struct{}

func (clockScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// RealScheduler uses the wall clock.
func RealScheduler() Scheduler { return clockScheduler{} }

type Authenticator interface {
	Authenticate(ctx context.Context, reason string) (biometric.Result, error)
}

// Inputs decide whether the guard is armed.
type Inputs struct {
	BiometricsEnabled bool
	Available         bool
	Guest             bool
}

func (in Inputs) shouldUseBiometrics() bool {
	return in.BiometricsEnabled && in.Available && !in.Guest
}

// Guard is the lock state machine. It never touches session state; it
// only decides what may be rendered.
type Guard struct {
	auth   Authenticator
	policy Policy
	sched  Scheduler
	log    logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	status    Status
	inputs    Inputs
	lifecycle lifecycle.State
	closed    bool

	pendingLock Timer
	lockToken   uint64
	retry       Timer
	// attempt identifies the current challenge loop; bumping it orphans
	// results and retries of earlier loops.
	attempt uint64

	notifyMu sync.Mutex
	subs     map[int]func(Status)
	nextSub  int
}

func NewGuard(auth Authenticator, policy Policy, sched Scheduler, log logging.Logger) *Guard {
	if sched == nil {
		sched = RealScheduler()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Guard{
		auth:      auth,
		policy:    policy,
		sched:     sched,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
		lifecycle: lifecycle.Active,
		subs:      make(map[int]func(Status)),
	}
}

func (g *Guard) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

// Subscribe calls fn after every status change.
func (g *Guard) Subscribe(fn func(Status)) (unsubscribe func()) {
	g.notifyMu.Lock()
	defer g.notifyMu.Unlock()
	id := g.nextSub
	g.nextSub++
	g.subs[id] = fn
	return func() {
		g.notifyMu.Lock()
		defer g.notifyMu.Unlock()
		delete(g.subs, id)
	}
}

func (g *Guard) publish() {
	g.notifyMu.Lock()
	defer g.notifyMu.Unlock()
	st := g.Status()
	for _, fn := range g.subs {
		fn(st)
	}
}

// Render calls content while unlocked and lockScreen otherwise. Locked
// content is not rendered at all.
func (g *Guard) Render(content func(), lockScreen func(Status)) {
	if st := g.Status(); st != Unlocked {
		lockScreen(st)
		return
	}
	content()
}

// Update feeds the guard new inputs. Disarming it unlocks immediately.
func (g *Guard) Update(in Inputs) {
	g.mu.Lock()
	g.inputs = in
	changed := false
	if !in.shouldUseBiometrics() {
		g.stopTimersLocked()
		g.attempt++
		changed = g.status != Unlocked
		g.status = Unlocked
	}
	g.mu.Unlock()

	if changed {
		g.publish()
	}
}

// OnLifecycle handles a lifecycle transition.
func (g *Guard) OnLifecycle(next lifecycle.State) {
	g.mu.Lock()
	prev := g.lifecycle
	g.lifecycle = next
	if g.closed || !g.inputs.shouldUseBiometrics() {
		g.mu.Unlock()
		return
	}

	changed := false
	if next == lifecycle.Active {
		g.cancelPendingLockLocked()
		if g.status == Locked {
			g.beginChallengeLocked()
			changed = true
		}
	} else if g.status == Authenticating && next == lifecycle.Background {
		// Backgrounding ends the retry loop; the next foreground starts a
		// fresh challenge. Inactive is ignored since prompts overlay the app.
		g.abandonChallengeLocked()
		g.status = Locked
		changed = true
	} else if g.status == Unlocked && (prev == lifecycle.Active || g.pendingLock != nil) {
		g.scheduleLockLocked()
	}
	g.mu.Unlock()

	if changed {
		g.publish()
	}
}

// RequestUnlock starts the challenge from the lock screen. It does nothing
// unless the app is in the foreground.
func (g *Guard) RequestUnlock() {
	g.mu.Lock()
	changed := false
	if !g.closed && g.inputs.shouldUseBiometrics() && g.status == Locked && g.lifecycle == lifecycle.Active {
		g.beginChallengeLocked()
		changed = true
	}
	g.mu.Unlock()

	if changed {
		g.publish()
	}
}

// Close cancels every timer and the challenge context. A prompt that is
// already reading input is not interrupted.
func (g *Guard) Close() {
	g.mu.Lock()
	g.closed = true
	g.stopTimersLocked()
	g.attempt++
	g.mu.Unlock()
	g.cancel()
}

func (g *Guard) scheduleLockLocked() {
	g.cancelPendingLockLocked()
	g.lockToken++
	token := g.lockToken
	g.pendingLock = g.sched.AfterFunc(g.policy.LockDebounce, func() { g.fireLock(token) })
}

func (g *Guard) cancelPendingLockLocked() {
	if g.pendingLock != nil {
		g.pendingLock.Stop()
		g.pendingLock = nil
	}
	g.lockToken++
}

func (g *Guard) stopTimersLocked() {
	g.cancelPendingLockLocked()
	g.stopRetryLocked()
}

func (g *Guard) stopRetryLocked() {
	if g.retry != nil {
		g.retry.Stop()
		g.retry = nil
	}
}

// abandonChallengeLocked orphans the running challenge and its pending retry.
func (g *Guard) abandonChallengeLocked() {
	g.stopRetryLocked()
	g.attempt++
}

func (g *Guard) fireLock(token uint64) {
	g.mu.Lock()
	if token != g.lockToken || g.closed {
		g.mu.Unlock()
		return
	}
	g.pendingLock = nil
	changed := false
	// A challenge already running keeps going.
	if g.inputs.shouldUseBiometrics() && g.status == Unlocked && g.lifecycle != lifecycle.Active {
		g.status = Locked
		changed = true
	}
	g.mu.Unlock()

	if changed {
		g.log.Debug(g.ctx, "app locked")
		g.publish()
	}
}

func (g *Guard) beginChallengeLocked() {
	g.status = Authenticating
	g.attempt++
	g.runChallengeLocked(g.attempt)
}

func (g *Guard) runChallengeLocked(attempt uint64) {
	go g.challenge(attempt)
}

func (g *Guard) challenge(attempt uint64) {
	res, err := g.auth.Authenticate(g.ctx, g.policy.Reason)

	g.mu.Lock()
	if attempt != g.attempt || g.closed || g.status != Authenticating {
		g.mu.Unlock()
		return
	}
	if err == nil && res.Success {
		g.status = Unlocked
		g.mu.Unlock()
		g.log.Debug(g.ctx, "app unlocked")
		g.publish()
		return
	}

	if err != nil {
		g.log.Warn(g.ctx, "unlock challenge failed", "error", err)
	} else {
		g.log.Debug(g.ctx, "unlock challenge rejected", "reason", res.Reason)
	}
	g.retry = g.sched.AfterFunc(g.policy.RetryDelay, func() { g.retryChallenge(attempt) })
	g.mu.Unlock()
}

func (g *Guard) retryChallenge(attempt uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if attempt != g.attempt || g.closed || g.status != Authenticating {
		return
	}
	g.retry = nil
	g.runChallengeLocked(attempt)
}
