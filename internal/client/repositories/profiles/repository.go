// Package profiles reads and writes the user profile and its two preference
// records on the hosted backend.
package profiles

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/santinotanus/medtrace/internal/client/backend"
	"github.com/santinotanus/medtrace/internal/client/models"
)

const (
	profilesTable      = "profiles"
	userSettingsTable  = "user_settings"
	notificationsTable = "notification_settings"

	profileColumns = "*, user_settings(*), notification_settings(*)"
)

// Repository is backed by backend.Data.
type Repository struct {
	data backend.Data
}

func NewRepository(data backend.Data) *Repository {
	return &Repository{data: data}
}

// FetchProfile returns the profile of userID joined with its settings, or
// nil when the user has no profile row yet.
func (r *Repository) FetchProfile(ctx context.Context, userID string) (*models.ProfileRow, error) {
	var row *models.ProfileRow
	err := r.data.From(profilesTable).
		Select(profileColumns).
		Eq("id", userID).
		MaybeSingle().
		Execute(ctx, &row)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}
	return row, nil
}

// UpsertUserSettings writes patch for userID, creating the row on first
// write, and returns the stored row.
func (r *Repository) UpsertUserSettings(ctx context.Context, userID string, patch models.UserSettingsPatch, at time.Time) (*models.UserSettings, error) {
	var row *models.UserSettings
	if err := r.upsert(ctx, userSettingsTable, userID, patch, at, &row); err != nil {
		return nil, err
	}
	return row, nil
}

func (r *Repository) UpsertNotificationSettings(ctx context.Context, userID string, patch models.NotificationSettingsPatch, at time.Time) (*models.NotificationSettings, error) {
	var row *models.NotificationSettings
	if err := r.upsert(ctx, notificationsTable, userID, patch, at, &row); err != nil {
		return nil, err
	}
	return row, nil
}

func (r *Repository) upsert(ctx context.Context, table, userID string, patch any, at time.Time, out any) error {
	payload, err := withKey(patch, userID, at)
	if err != nil {
		return err
	}
	err = r.data.From(table).
		Upsert(payload, "user_id").
		Single().
		Execute(ctx, out)
	if err != nil {
		return fmt.Errorf("failed to upsert %s: %w", table, err)
	}
	return nil
}

// withKey flattens patch into a payload carrying only the set fields plus
// the conflict key and the update time.
func withKey(patch any, userID string, at time.Time) (map[string]any, error) {
	b, err := json.Marshal(patch)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{}
	if err := json.Unmarshal(b, &payload); err != nil {
		return nil, err
	}
	payload["user_id"] = userID
	payload["updated_at"] = at.UTC().Format(time.RFC3339Nano)
	return payload, nil
}
