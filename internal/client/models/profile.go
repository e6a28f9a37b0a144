package models

import (
	"encoding/json"
	"time"
)

// Role of a profile.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Profile is the application-level projection of a user.
type Profile struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	Phone           *string    `json:"phone,omitempty"`
	Role            Role       `json:"role"`
	IsEmailVerified bool       `json:"is_email_verified"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// UserSettings is the per-user preference row, created lazily on first write.
type UserSettings struct {
	UserID            string    `json:"user_id"`
	DarkMode          bool      `json:"dark_mode"`
	Language          string    `json:"language"`
	BiometricsEnabled bool      `json:"biometrics_enabled"`
	AutoSync          bool      `json:"auto_sync"`
	DataUsageConsent  bool      `json:"data_usage_consent"`
	AnalyticsEnabled  bool      `json:"analytics_enabled"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// UserSettingsPatch is a partial update; nil fields are left out of the
// payload so the backend keeps their stored value.
type UserSettingsPatch struct {
	DarkMode          *bool   `json:"dark_mode,omitempty"`
	Language          *string `json:"language,omitempty"`
	BiometricsEnabled *bool   `json:"biometrics_enabled,omitempty"`
	AutoSync          *bool   `json:"auto_sync,omitempty"`
	DataUsageConsent  *bool   `json:"data_usage_consent,omitempty"`
	AnalyticsEnabled  *bool   `json:"analytics_enabled,omitempty"`
}

// NotificationSettings is the per-user notification preference row.
type NotificationSettings struct {
	UserID            string    `json:"user_id"`
	PushEnabled       bool      `json:"push_enabled"`
	EmailEnabled      bool      `json:"email_enabled"`
	RecallAlerts      bool      `json:"recall_alerts"`
	CounterfeitAlerts bool      `json:"counterfeit_alerts"`
	ExpiryReminders   bool      `json:"expiry_reminders"`
	ReportUpdates     bool      `json:"report_updates"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// NotificationSettingsPatch is a partial update of NotificationSettings.
type NotificationSettingsPatch struct {
	PushEnabled       *bool `json:"push_enabled,omitempty"`
	EmailEnabled      *bool `json:"email_enabled,omitempty"`
	RecallAlerts      *bool `json:"recall_alerts,omitempty"`
	CounterfeitAlerts *bool `json:"counterfeit_alerts,omitempty"`
	ExpiryReminders   *bool `json:"expiry_reminders,omitempty"`
	ReportUpdates     *bool `json:"report_updates,omitempty"`
}

// ProfileRow is the joined result of a profile with its two one-to-one
// relations. The backend may deliver each relation as an object, a 0-or-1
// element list or null; the relations are always decoded into lists.
type ProfileRow struct {
	Profile
	UserSettings         []UserSettings
	NotificationSettings []NotificationSettings
}

// UnmarshalJSON decodes the profile columns and the embedded relations.
func (r *ProfileRow) UnmarshalJSON(b []byte) error {
	var raw struct {
		UserSettings         json.RawMessage `json:"user_settings"`
		NotificationSettings json.RawMessage `json:"notification_settings"`
	}
	if err := json.Unmarshal(b, &r.Profile); err != nil {
		return err
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	var err error
	if r.UserSettings, err = decodeRelation[UserSettings](raw.UserSettings); err != nil {
		return err
	}
	r.NotificationSettings, err = decodeRelation[NotificationSettings](raw.NotificationSettings)
	return err
}

func decodeRelation[T any](raw json.RawMessage) ([]T, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '[' {
		var list []T
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var one T
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, err
	}
	return []T{one}, nil
}
