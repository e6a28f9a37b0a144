package applock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/santinotanus/medtrace/internal/client/biometric"
	"github.com/santinotanus/medtrace/internal/client/lifecycle"
	"github.com/santinotanus/medtrace/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- fake scheduler ----

type fakeTimer struct {
	at      time.Duration
	fn      func()
	stopped bool
	fired   bool
}

type fakeScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{at: s.now + d, fn: fn}
	s.timers = append(s.timers, t)
	return &fakeHandle{s: s, t: t}
}

type fakeHandle struct {
	s *fakeScheduler
	t *fakeTimer
}

func (h *fakeHandle) Stop() bool {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	was := !h.t.stopped && !h.t.fired
	h.t.stopped = true
	return was
}

// Advance moves the clock and runs the timers that came due, in order.
func (s *fakeScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	s.now += d
	var due []*fakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired && t.at <= s.now {
			t.fired = true
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
}

func (s *fakeScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// ---- fake authenticator ----

type reply struct {
	res biometric.Result
	err error
}

type fakeAuth struct {
	calls   chan string
	replies chan reply
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{calls: make(chan string, 16), replies: make(chan reply)}
}

func (f *fakeAuth) Authenticate(ctx context.Context, reason string) (biometric.Result, error) {
	f.calls <- reason
	select {
	case r := <-f.replies:
		return r.res, r.err
	case <-ctx.Done():
		return biometric.Result{}, ctx.Err()
	}
}

func (f *fakeAuth) expectCall(t *testing.T) string {
	t.Helper()
	select {
	case reason := <-f.calls:
		return reason
	case <-time.After(time.Second):
		t.Fatal("expected an unlock challenge")
		return ""
	}
}

func (f *fakeAuth) expectNoCall(t *testing.T) {
	t.Helper()
	select {
	case <-f.calls:
		t.Fatal("unexpected unlock challenge")
	case <-time.After(20 * time.Millisecond):
	}
}

func (f *fakeAuth) reply(t *testing.T, r reply) {
	t.Helper()
	select {
	case f.replies <- r:
	case <-time.After(time.Second):
		t.Fatal("challenge is not waiting for a reply")
	}
}

// ---- helpers ----

var armed = Inputs{BiometricsEnabled: true, Available: true}

type statusLog struct {
	mu  sync.Mutex
	got []Status
}

func (l *statusLog) add(s Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.got = append(l.got, s)
}

func (l *statusLog) all() []Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Status(nil), l.got...)
}

func newGuard(t *testing.T) (*Guard, *fakeScheduler, *fakeAuth, *statusLog) {
	t.Helper()
	sched := &fakeScheduler{}
	auth := newFakeAuth()
	g := NewGuard(auth, DefaultPolicy(), sched, logging.Discard())
	log := &statusLog{}
	g.Subscribe(log.add)
	t.Cleanup(g.Close)
	return g, sched, auth, log
}

func waitStatus(t *testing.T, g *Guard, want Status) {
	t.Helper()
	require.Eventually(t, func() bool { return g.Status() == want }, time.Second, time.Millisecond)
}

func lock(t *testing.T, g *Guard, sched *fakeScheduler) {
	t.Helper()
	g.OnLifecycle(lifecycle.Background)
	sched.Advance(100 * time.Millisecond)
	require.Equal(t, Locked, g.Status())
}

// ---- tests ----

func TestInertWhileBiometricsUnused(t *testing.T) {
	inputs := []Inputs{
		{},
		{BiometricsEnabled: true},
		{Available: true},
		{BiometricsEnabled: true, Available: true, Guest: true},
	}
	sequences := [][]lifecycle.State{
		{lifecycle.Background, lifecycle.Active},
		{lifecycle.Inactive, lifecycle.Background},
		{lifecycle.Inactive, lifecycle.Active, lifecycle.Background, lifecycle.Active},
	}

	for _, in := range inputs {
		for _, seq := range sequences {
			g, sched, auth, log := newGuard(t)
			g.Update(in)
			for _, st := range seq {
				g.OnLifecycle(st)
				sched.Advance(time.Second)
				g.RequestUnlock()
			}
			assert.Equal(t, Unlocked, g.Status())
			assert.NotContains(t, log.all(), Locked)
			assert.Zero(t, sched.Pending())
			auth.expectNoCall(t)
		}
	}
}

func TestBackgroundThenActive_OneChallenge(t *testing.T) {
	g, sched, auth, log := newGuard(t)
	g.Update(armed)

	g.OnLifecycle(lifecycle.Background)
	assert.Equal(t, Unlocked, g.Status(), "locking is debounced")
	sched.Advance(99 * time.Millisecond)
	assert.Equal(t, Unlocked, g.Status())
	sched.Advance(time.Millisecond)
	assert.Equal(t, Locked, g.Status())

	g.OnLifecycle(lifecycle.Active)
	assert.Equal(t, Authenticating, g.Status())
	assert.Equal(t, "Unlock MedTrace", auth.expectCall(t))

	auth.reply(t, reply{res: biometric.Result{Success: true}})
	waitStatus(t, g, Unlocked)
	auth.expectNoCall(t)

	assert.Equal(t, []Status{Locked, Authenticating, Unlocked}, log.all())
}

func TestFailedChallengeRetriesAfterDelay(t *testing.T) {
	g, sched, auth, _ := newGuard(t)
	g.Update(armed)
	lock(t, g, sched)
	g.OnLifecycle(lifecycle.Active)

	for i := 0; i < 3; i++ {
		auth.expectCall(t)
		if i%2 == 0 {
			auth.reply(t, reply{res: biometric.Result{Reason: "mismatch"}})
		} else {
			auth.reply(t, reply{err: errors.New("sensor busy")})
		}
		require.Eventually(t, func() bool { return sched.Pending() == 1 }, time.Second, time.Millisecond)
		assert.Equal(t, Authenticating, g.Status())

		sched.Advance(999 * time.Millisecond)
		auth.expectNoCall(t)
		sched.Advance(time.Millisecond)
	}

	auth.expectCall(t)
	auth.reply(t, reply{res: biometric.Result{Success: true}})
	waitStatus(t, g, Unlocked)
	assert.Zero(t, sched.Pending())
}

func TestDebounceAbsorbsFlap(t *testing.T) {
	g, sched, auth, log := newGuard(t)
	g.Update(armed)

	g.OnLifecycle(lifecycle.Inactive)
	sched.Advance(50 * time.Millisecond)
	g.OnLifecycle(lifecycle.Active)
	sched.Advance(time.Second)

	assert.Equal(t, Unlocked, g.Status())
	assert.Empty(t, log.all())
	auth.expectNoCall(t)
}

func TestNewTransitionSupersedesPendingLock(t *testing.T) {
	g, sched, _, _ := newGuard(t)
	g.Update(armed)

	g.OnLifecycle(lifecycle.Inactive)
	sched.Advance(80 * time.Millisecond)
	g.OnLifecycle(lifecycle.Background)
	assert.Equal(t, 1, sched.Pending(), "the earlier task is cancelled, not stacked")

	sched.Advance(50 * time.Millisecond)
	assert.Equal(t, Unlocked, g.Status())
	sched.Advance(50 * time.Millisecond)
	assert.Equal(t, Locked, g.Status())
}

func TestReentryWhileAuthenticatingIsIgnored(t *testing.T) {
	g, sched, auth, _ := newGuard(t)
	g.Update(armed)
	lock(t, g, sched)

	g.OnLifecycle(lifecycle.Active)
	auth.expectCall(t)

	g.OnLifecycle(lifecycle.Inactive)
	g.OnLifecycle(lifecycle.Active)
	g.RequestUnlock()
	sched.Advance(time.Second)
	auth.expectNoCall(t)
	assert.Equal(t, Authenticating, g.Status())

	auth.reply(t, reply{res: biometric.Result{Success: true}})
	waitStatus(t, g, Unlocked)
}

func TestRequestUnlockNeedsForeground(t *testing.T) {
	g, sched, auth, _ := newGuard(t)
	g.Update(armed)

	lock(t, g, sched)
	g.RequestUnlock()
	assert.Equal(t, Locked, g.Status(), "no challenge while backgrounded")

	g.OnLifecycle(lifecycle.Inactive)
	g.RequestUnlock()
	assert.Equal(t, Locked, g.Status())
	auth.expectNoCall(t)

	g.OnLifecycle(lifecycle.Active)
	assert.Equal(t, Authenticating, g.Status())
	auth.expectCall(t)
	g.RequestUnlock()
	auth.expectNoCall(t)

	auth.reply(t, reply{res: biometric.Result{Success: true}})
	waitStatus(t, g, Unlocked)
}

func TestBackgroundDuringRetryRearmsLock(t *testing.T) {
	g, sched, auth, log := newGuard(t)
	g.Update(armed)
	lock(t, g, sched)

	g.OnLifecycle(lifecycle.Active)
	auth.expectCall(t)
	auth.reply(t, reply{res: biometric.Result{Reason: "mismatch"}})
	require.Eventually(t, func() bool { return sched.Pending() == 1 }, time.Second, time.Millisecond)

	g.OnLifecycle(lifecycle.Background)
	assert.Equal(t, Locked, g.Status())
	assert.Zero(t, sched.Pending(), "the retry is cancelled")
	sched.Advance(2 * time.Second)
	auth.expectNoCall(t)
	assert.Equal(t, Locked, g.Status())

	g.OnLifecycle(lifecycle.Active)
	assert.Equal(t, Authenticating, g.Status())
	auth.expectCall(t)
	auth.reply(t, reply{res: biometric.Result{Success: true}})
	waitStatus(t, g, Unlocked)
	auth.expectNoCall(t)

	assert.Equal(t, []Status{Locked, Authenticating, Locked, Authenticating, Unlocked}, log.all())
}

func TestBackgroundDuringPromptOrphansIt(t *testing.T) {
	g, sched, auth, _ := newGuard(t)
	g.Update(armed)
	lock(t, g, sched)

	g.OnLifecycle(lifecycle.Active)
	auth.expectCall(t)
	g.OnLifecycle(lifecycle.Background)
	require.Equal(t, Locked, g.Status())

	// the abandoned prompt fails late and schedules nothing
	auth.reply(t, reply{res: biometric.Result{Reason: "cancelled"}})
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, sched.Pending())
	assert.Equal(t, Locked, g.Status())

	g.OnLifecycle(lifecycle.Active)
	auth.expectCall(t)
	auth.reply(t, reply{res: biometric.Result{Success: true}})
	waitStatus(t, g, Unlocked)
}

func TestDisarmingUnlocks(t *testing.T) {
	for name, off := range map[string]Inputs{
		"disabled":    {Available: true},
		"unavailable": {BiometricsEnabled: true},
		"guest":       {BiometricsEnabled: true, Available: true, Guest: true},
	} {
		t.Run(name, func(t *testing.T) {
			g, sched, auth, _ := newGuard(t)
			g.Update(armed)
			lock(t, g, sched)
			g.OnLifecycle(lifecycle.Active)
			auth.expectCall(t)

			g.Update(off)
			assert.Equal(t, Unlocked, g.Status())

			// the orphaned challenge result changes nothing
			auth.reply(t, reply{res: biometric.Result{Reason: "mismatch"}})
			time.Sleep(10 * time.Millisecond)
			assert.Zero(t, sched.Pending())
			assert.Equal(t, Unlocked, g.Status())
		})
	}
}

func TestArmingDoesNotLockUntilBackgrounded(t *testing.T) {
	g, sched, _, _ := newGuard(t)
	g.Update(armed)
	sched.Advance(time.Second)
	assert.Equal(t, Unlocked, g.Status())
}

func TestRender(t *testing.T) {
	g, sched, auth, _ := newGuard(t)
	g.Update(armed)

	var rendered []string
	content := func() { rendered = append(rendered, "content") }
	lockScreen := func(s Status) { rendered = append(rendered, "lock:"+s.String()) }

	g.Render(content, lockScreen)
	lock(t, g, sched)
	g.Render(content, lockScreen)
	g.OnLifecycle(lifecycle.Active)
	auth.expectCall(t)
	g.Render(content, lockScreen)

	assert.Equal(t, []string{"content", "lock:locked", "lock:authenticating"}, rendered)
}

func TestCloseCancelsTimers(t *testing.T) {
	g, sched, auth, _ := newGuard(t)
	g.Update(armed)

	g.OnLifecycle(lifecycle.Background)
	require.Equal(t, 1, sched.Pending())
	g.Close()
	assert.Zero(t, sched.Pending())

	sched.Advance(time.Second)
	g.OnLifecycle(lifecycle.Active)
	assert.Equal(t, Unlocked, g.Status())
	auth.expectNoCall(t)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "unlocked", Unlocked.String())
	assert.Equal(t, "locked", Locked.String())
	assert.Equal(t, "authenticating", Authenticating.String())
	assert.Equal(t, "unknown", Status(9).String())
}
