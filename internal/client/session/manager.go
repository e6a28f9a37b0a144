// Package session owns who is signed in and with which profile and
// preferences. The Manager is the only component that talks to the auth API;
// everything else reads its State and asks it for changes.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/santinotanus/medtrace/internal/client/backend"
	"github.com/santinotanus/medtrace/internal/client/models"
	"github.com/santinotanus/medtrace/internal/logging"
)

// ProfileStore reads the joined profile and writes the preference records.
type ProfileStore interface {
	FetchProfile(ctx context.Context, userID string) (*models.ProfileRow, error)
	UpsertUserSettings(ctx context.Context, userID string, patch models.UserSettingsPatch, at time.Time) (*models.UserSettings, error)
	UpsertNotificationSettings(ctx context.Context, userID string, patch models.NotificationSettingsPatch, at time.Time) (*models.NotificationSettings, error)
}

type subscriber struct {
	id int
	fn func(State)
}

type Manager struct {
	auth  backend.Auth
	store ProfileStore
	log   logging.Logger
	now   func() time.Time

	mu    sync.Mutex
	state State
	// generation numbers every hydration; only the latest may write.
	generation uint64

	notifyMu    sync.Mutex
	subscribers []subscriber
	nextSub     int

	unsubscribe func()
	hydrations  sync.WaitGroup
}

func NewManager(auth backend.Auth, store ProfileStore, log logging.Logger) *Manager {
	return &Manager{
		auth:  auth,
		store: store,
		log:   log,
		now:   time.Now,
		state: State{Initializing: true},
	}
}

// Init restores the persisted session, hydrates its profile and starts
// following auth changes. It returns after the first hydration finished.
// On error the Manager is left initialized and signed out.
func (m *Manager) Init(ctx context.Context) error {
	s, err := m.auth.GetSession(ctx)
	m.unsubscribe = m.auth.OnAuthStateChange(m.onAuthChange)
	if err != nil {
		m.log.Error(ctx, "failed to get session", "error", err)
		m.update(func(st *State) {
			st.Session = nil
			st.clearProfile()
			st.Initializing = false
		})
		return fmt.Errorf("get session: %w", err)
	}

	if s == nil {
		m.update(func(st *State) { st.Initializing = false })
		return nil
	}

	m.mu.Lock()
	m.state.Session = s
	m.state.LoadingProfile = true
	m.generation++
	gen := m.generation
	m.mu.Unlock()
	m.publish()

	m.hydrate(ctx, gen, s)
	return nil
}

// Close stops following auth changes. Requests in flight are not aborted.
func (m *Manager) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// Wait blocks until background hydrations have finished.
func (m *Manager) Wait() {
	m.hydrations.Wait()
}

func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe calls fn with the current state and after every change. fn runs
// on the goroutine that made the change and must not call back into the
// Manager's mutators.
func (m *Manager) Subscribe(fn func(State)) (unsubscribe func()) {
	m.notifyMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subscribers = append(m.subscribers, subscriber{id: id, fn: fn})
	fn(m.Snapshot())
	m.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.notifyMu.Lock()
			defer m.notifyMu.Unlock()
			for i, s := range m.subscribers {
				if s.id == id {
					m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
					return
				}
			}
		})
	}
}

// publish delivers the latest snapshot. Taking it under notifyMu keeps
// deliveries from different goroutines in order.
func (m *Manager) publish() {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	snap := m.Snapshot()
	for _, s := range m.subscribers {
		s.fn(snap)
	}
}

func (m *Manager) update(fn func(*State)) {
	m.mu.Lock()
	fn(&m.state)
	m.mu.Unlock()
	m.publish()
}

// onAuthChange stores every emitted session. A new user, or a session
// whose profile is neither loaded nor loading, is hydrated in the
// background.
func (m *Manager) onAuthChange(event backend.AuthEvent, s *models.Session) {
	ctx := context.Background()

	m.mu.Lock()
	prev := m.state.Session.UserID()
	m.state.Session = s

	var gen uint64
	hydrate := false
	if s == nil {
		m.generation++
		m.state.clearProfile()
		m.state.LoadingProfile = false
		m.state.Initializing = false
	} else {
		m.state.IsGuest = false
		if event == backend.EventPasswordRecovery {
			m.state.PasswordRecovery = true
		}
		changed := s.UserID() != prev
		if changed {
			m.state.clearProfile()
		}
		if changed || (m.state.Profile == nil && !m.state.LoadingProfile) {
			m.generation++
			gen = m.generation
			m.state.LoadingProfile = true
			hydrate = true
			m.hydrations.Add(1)
		}
	}
	m.mu.Unlock()

	m.log.Debug(ctx, "auth state changed", "event", string(event), "user_id", s.UserID())
	m.publish()

	if hydrate {
		go func() {
			defer m.hydrations.Done()
			m.hydrate(ctx, gen, s)
		}()
	}
}

// hydrate loads the profile of s. Errors keep the previous profile. The
// result is dropped when a newer hydration or a sign-out happened since gen
// was issued.
func (m *Manager) hydrate(ctx context.Context, gen uint64, s *models.Session) {
	uid := s.UserID()
	if uid == "" {
		m.finishHydration(ctx, gen, func(st *State) { st.clearProfile() })
		return
	}

	row, err := m.store.FetchProfile(ctx, uid)
	if err != nil {
		m.log.Error(ctx, "failed to hydrate profile", "user_id", uid, "generation", gen, "error", err)
		m.finishHydration(ctx, gen, nil)
		return
	}
	m.finishHydration(ctx, gen, func(st *State) { st.applyRow(row) })
}

func (m *Manager) finishHydration(ctx context.Context, gen uint64, apply func(*State)) {
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		m.log.Debug(ctx, "discarding stale profile", "generation", gen)
		return
	}
	if apply != nil {
		apply(&m.state)
	}
	m.state.LoadingProfile = false
	m.state.Initializing = false
	m.mu.Unlock()
	m.publish()
}

// RefreshProfile re-reads the profile of the current session and returns
// when done. Without a session it only clears the profile.
func (m *Manager) RefreshProfile(ctx context.Context) {
	m.mu.Lock()
	s := m.state.Session
	m.generation++
	gen := m.generation
	m.state.LoadingProfile = s != nil
	m.mu.Unlock()

	if s == nil {
		m.finishHydration(ctx, gen, func(st *State) { st.clearProfile() })
		return
	}
	m.publish()
	m.hydrate(ctx, gen, s)
}

func (m *Manager) EnterGuestMode(ctx context.Context) {
	if err := m.performSignOut(ctx); err != nil {
		m.log.Warn(ctx, "sign-out before guest mode failed", "error", err)
	}
	m.update(func(st *State) {
		st.PasswordRecovery = false
		st.IsGuest = true
		st.Initializing = false
	})
}

func (m *Manager) ExitGuestMode() {
	m.update(func(st *State) { st.IsGuest = false })
}

func (m *Manager) BeginPasswordRecovery() {
	m.update(func(st *State) { st.PasswordRecovery = true })
}

// FinishPasswordRecovery ends the recovery flow signed out: the user signs
// in again with the new password.
func (m *Manager) FinishPasswordRecovery(ctx context.Context) {
	m.update(func(st *State) { st.PasswordRecovery = false })
	if err := m.performSignOut(ctx); err != nil {
		m.log.Warn(ctx, "sign-out after password recovery failed", "error", err)
	}
	m.update(func(st *State) { st.IsGuest = false })
}

// SignOut clears the local state even when the backend call fails, and
// then returns that failure.
func (m *Manager) SignOut(ctx context.Context) error {
	return m.performSignOut(ctx)
}

func (m *Manager) performSignOut(ctx context.Context) error {
	err := m.auth.SignOut(ctx)
	if err != nil {
		m.log.Error(ctx, "sign-out failed", "error", err)
	}

	m.mu.Lock()
	m.generation++
	m.state.Session = nil
	m.state.clearProfile()
	m.state.LoadingProfile = false
	m.state.Initializing = false
	m.state.PasswordRecovery = false
	m.state.IsGuest = false
	m.mu.Unlock()
	m.publish()

	return err
}

// UpdateUserSettings upserts patch and replaces the settings with the row
// the backend returned. Without a profile it does nothing.
func (m *Manager) UpdateUserSettings(ctx context.Context, patch models.UserSettingsPatch) error {
	p := m.Snapshot().Profile
	if p == nil {
		return nil
	}

	row, err := m.store.UpsertUserSettings(ctx, p.ID, patch, m.now())
	if err != nil {
		m.log.Error(ctx, "failed to update user settings", "user_id", p.ID, "error", err)
		return err
	}
	m.applyIfSameProfile(p.ID, func(st *State) { st.Settings = row })
	return nil
}

func (m *Manager) UpdateNotificationSettings(ctx context.Context, patch models.NotificationSettingsPatch) error {
	p := m.Snapshot().Profile
	if p == nil {
		return nil
	}

	row, err := m.store.UpsertNotificationSettings(ctx, p.ID, patch, m.now())
	if err != nil {
		m.log.Error(ctx, "failed to update notification settings", "user_id", p.ID, "error", err)
		return err
	}
	m.applyIfSameProfile(p.ID, func(st *State) { st.NotificationSettings = row })
	return nil
}

// applyIfSameProfile drops a write result that arrives after the user
// signed out or switched account.
func (m *Manager) applyIfSameProfile(id string, fn func(*State)) {
	m.mu.Lock()
	if m.state.Profile == nil || m.state.Profile.ID != id {
		m.mu.Unlock()
		return
	}
	fn(&m.state)
	m.mu.Unlock()
	m.publish()
}
