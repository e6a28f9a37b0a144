package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSession_Expired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	var nilSession *Session
	require.True(t, nilSession.Expired(now, 0))

	require.False(t, (&Session{}).Expired(now, 0), "unknown expiry is treated as valid")
	require.False(t, (&Session{ExpiresAt: now.Unix() + 120}).Expired(now, time.Minute))
	require.True(t, (&Session{ExpiresAt: now.Unix() + 30}).Expired(now, time.Minute))
	require.True(t, (&Session{ExpiresAt: now.Unix() - 1}).Expired(now, 0))
}

func TestSession_UserID(t *testing.T) {
	var s *Session
	require.Equal(t, "", s.UserID())
	require.Equal(t, "", (&Session{}).UserID())
	require.Equal(t, "u1", (&Session{User: &User{ID: "u1"}}).UserID())
}

func TestProfileRow_UnmarshalRelations(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantUS    int
		wantNS    int
		wantError bool
	}{
		{
			name:   "relations as lists",
			body:   `{"id":"u1","role":"USER","user_settings":[{"user_id":"u1","language":"es"}],"notification_settings":[]}`,
			wantUS: 1, wantNS: 0,
		},
		{
			name:   "relations as objects",
			body:   `{"id":"u1","role":"ADMIN","user_settings":{"user_id":"u1"},"notification_settings":{"user_id":"u1","push_enabled":true}}`,
			wantUS: 1, wantNS: 1,
		},
		{
			name:   "relations null or missing",
			body:   `{"id":"u1","role":"USER","user_settings":null}`,
			wantUS: 0, wantNS: 0,
		},
		{
			name:      "relation of wrong type",
			body:      `{"id":"u1","user_settings":"yes"}`,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var row ProfileRow
			err := json.Unmarshal([]byte(tt.body), &row)
			if tt.wantError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, "u1", row.ID)
			require.Len(t, row.UserSettings, tt.wantUS)
			require.Len(t, row.NotificationSettings, tt.wantNS)
		})
	}
}

func TestUserSettingsPatch_OmitsUnsetFields(t *testing.T) {
	dark := true
	b, err := json.Marshal(UserSettingsPatch{DarkMode: &dark})
	require.NoError(t, err)
	require.JSONEq(t, `{"dark_mode":true}`, string(b))
}
