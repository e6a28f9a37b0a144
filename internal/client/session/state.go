package session

import "github.com/santinotanus/medtrace/internal/client/models"

// State is the snapshot handed to subscribers. Pointer fields are replaced,
// never mutated, so a snapshot stays valid after later changes.
type State struct {
	Session              *models.Session
	Profile              *models.Profile
	Settings             *models.UserSettings
	NotificationSettings *models.NotificationSettings

	Initializing     bool
	LoadingProfile   bool
	IsGuest          bool
	PasswordRecovery bool
}

func (s State) SignedIn() bool { return s.Session != nil }

func (s State) BiometricsEnabled() bool {
	return s.Settings != nil && s.Settings.BiometricsEnabled
}

func (s State) IsAdmin() bool {
	return s.Profile != nil && s.Profile.Role == models.RoleAdmin
}

func (s *State) clearProfile() {
	s.Profile = nil
	s.Settings = nil
	s.NotificationSettings = nil
}

func (s *State) applyRow(row *models.ProfileRow) {
	if row == nil {
		s.clearProfile()
		return
	}
	p := row.Profile
	s.Profile = &p
	s.Settings = first(row.UserSettings)
	s.NotificationSettings = first(row.NotificationSettings)
}

func first[T any](list []T) *T {
	if len(list) == 0 {
		return nil
	}
	v := list[0]
	return &v
}
