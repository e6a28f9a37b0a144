package cli

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/santinotanus/medtrace/internal/client/backend/backendtest"
	"github.com/santinotanus/medtrace/internal/client/models"
	"github.com/santinotanus/medtrace/internal/client/services"
	"github.com/santinotanus/medtrace/internal/client/session"
	"github.com/santinotanus/medtrace/internal/common"
	"github.com/santinotanus/medtrace/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withServices(ta *testApp, data *backendtest.Data, fn *backendtest.Functions) {
	ta.medicines = services.NewMedicineService(data, ta.sess, logging.Discard())
	ta.alerts = services.NewAlertService(data, ta.sess)
	ta.reports = services.NewReportService(data, ta.sess)
	ta.stats = services.NewStatsService(fn, ta.sess, logging.Discard())
}

func TestAccountCommands_RequireProfile(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		state session.State
		want  error
	}{
		{"signed out", session.State{}, errNotSignedIn},
		{"guest", session.State{IsGuest: true}, common.ErrGuestRestricted},
		{"profile not loaded", session.State{Session: &models.Session{}}, common.ErrNoProfile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := newTestApp(t, "")
			ta.sess.state = tt.state
			require.ErrorIs(t, ta.Profile(ctx), tt.want)
			require.ErrorIs(t, ta.Settings(ctx), tt.want)
			require.ErrorIs(t, ta.Set(ctx, []string{"dark_mode", "on"}), tt.want)
			require.ErrorIs(t, ta.Notify(ctx, []string{"push", "on"}), tt.want)
			assert.NotContains(t, ta.sess.calls, "settings")
			assert.NotContains(t, ta.sess.calls, "notifications")
		})
	}
}

func TestProfileAndSettings(t *testing.T) {
	ta := newTestApp(t, "")
	st := signedInState(models.RoleAdmin)
	st.Profile.CreatedAt = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	st.Settings = &models.UserSettings{Language: "es", DarkMode: true}
	ta.sess.state = st

	require.NoError(t, ta.Profile(context.Background()))
	require.NoError(t, ta.Settings(context.Background()))

	out := ta.out.String()
	assert.Contains(t, out, "Name:     Ana")
	assert.Contains(t, out, "Role:     ADMIN")
	assert.Contains(t, out, "Member since 2025-03-01")
	assert.Contains(t, out, "dark_mode   on")
	assert.Contains(t, out, "language    es")
	assert.Contains(t, out, "Notifications: defaults")
}

func TestRefresh(t *testing.T) {
	ta := newTestApp(t, "")
	ta.sess.state = session.State{Session: &models.Session{}}
	require.ErrorIs(t, ta.Refresh(context.Background()), common.ErrNoProfile)
	assert.Equal(t, []string{"refresh"}, ta.sess.calls)

	ta.sess.state = session.State{IsGuest: true}
	require.ErrorIs(t, ta.Refresh(context.Background()), common.ErrGuestRestricted)
	assert.Equal(t, []string{"refresh"}, ta.sess.calls)
}

func TestSet(t *testing.T) {
	ta := newTestApp(t, "")
	ta.sess.state = signedInState(models.RoleUser)
	ctx := context.Background()

	require.NoError(t, ta.Set(ctx, []string{"language", "pt"}))
	require.NoError(t, ta.Set(ctx, []string{"analytics", "off"}))
	require.Len(t, ta.sess.settings, 2)
	assert.Equal(t, models.UserSettingsPatch{Language: common.StringPtr("pt")}, ta.sess.settings[0])
	assert.Equal(t, models.UserSettingsPatch{AnalyticsEnabled: common.BoolPtr(false)}, ta.sess.settings[1])

	require.Error(t, ta.Set(ctx, []string{"language"}))
	require.Error(t, ta.Set(ctx, []string{"color", "red"}))
	require.Error(t, ta.Set(ctx, []string{"language", "fr"}))
	require.Error(t, ta.Set(ctx, []string{"dark_mode", "maybe"}))
	assert.Len(t, ta.sess.settings, 2)
}

func TestSet_BiometricsWithoutUnlockMethodWarns(t *testing.T) {
	ta := newTestApp(t, "")
	ta.sess.state = signedInState(models.RoleUser)

	require.NoError(t, ta.Set(context.Background(), []string{"biometrics", "on"}))
	assert.Equal(t, common.BoolPtr(true), ta.sess.settings[0].BiometricsEnabled)
	assert.Contains(t, ta.out.String(), "run 'enroll'")
}

func TestSet_ErrorFromBackend(t *testing.T) {
	ta := newTestApp(t, "")
	ta.sess.state = signedInState(models.RoleUser)
	ta.sess.settingsErr = common.ErrUnavailable

	require.ErrorIs(t, ta.Set(context.Background(), []string{"auto_sync", "on"}), common.ErrUnavailable)
	assert.NotContains(t, ta.out.String(), "Saved.")
}

func TestNotify(t *testing.T) {
	ta := newTestApp(t, "")
	ta.sess.state = signedInState(models.RoleUser)
	ctx := context.Background()

	require.NoError(t, ta.Notify(ctx, []string{"recalls", "on"}))
	assert.Equal(t, models.NotificationSettingsPatch{RecallAlerts: common.BoolPtr(true)}, ta.sess.notifications[0])

	require.Error(t, ta.Notify(ctx, []string{"sms", "on"}))
	require.Error(t, ta.Notify(ctx, []string{"push", "loud"}))
	assert.Len(t, ta.sess.notifications, 1)
}

func TestEnrollAndUnenroll(t *testing.T) {
	ta := newTestApp(t, "")
	u := &fakeUnlocker{hardware: true}
	ta.unlocker = u
	st := signedInState(models.RoleUser)
	st.Settings = &models.UserSettings{BiometricsEnabled: true}
	ta.sess.state = st
	ctx := context.Background()

	stubSecrets(t, "1234", "4321")
	require.EqualError(t, ta.Enroll(ctx), "passcodes do not match")
	assert.False(t, u.enrolled)

	stubSecrets(t, "1234", "1234")
	require.NoError(t, ta.Enroll(ctx))
	assert.Equal(t, "1234", u.passcode)
	assert.True(t, ta.lockAvailable())
	assert.True(t, ta.guard.lastInputs().Available, "the guard is re-armed after enrolling")

	require.NoError(t, ta.Unenroll(ctx))
	assert.False(t, ta.lockAvailable())
	assert.False(t, ta.guard.lastInputs().Available)
}

func TestEnroll_NoTerminal(t *testing.T) {
	ta := newTestApp(t, "")
	ta.unlocker = &fakeUnlocker{hardware: false}
	require.Error(t, ta.Enroll(context.Background()))

	ta.unlocker = nil
	require.Error(t, ta.Enroll(context.Background()))
	require.Error(t, ta.Unenroll(context.Background()))
}

const authenticBatch = `{"id":"b1","batch_code":"LOT1","medicine_id":"m1",
	"manufactured_at":"2025-01-10T00:00:00Z","expires_at":"2099-01-01T00:00:00Z","recalled":false,
	"ledger_hash":"%s","medicines":{"id":"m1","name":"Amoxicilina 500","manufacturer":"Lab Sur"}}`

func TestScan(t *testing.T) {
	hash := services.LedgerHash("LOT1", "m1", time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC))
	data := backendtest.NewData().On("batches", backendtest.Reply{Body: fmt.Sprintf(authenticBatch, hash)})
	ta := newTestApp(t, "")
	withServices(ta, data, &backendtest.Functions{})
	ta.sess.state = session.State{IsGuest: true}

	require.NoError(t, ta.Scan(context.Background(), []string{"medtrace://batch/LOT1"}))
	out := ta.out.String()
	assert.Contains(t, out, "Batch LOT1")
	assert.Contains(t, out, "AUTHENTIC")
	assert.Contains(t, out, "Amoxicilina 500 (Lab Sur)")
	assert.Contains(t, out, "Expires:      2099-01-01")
}

func TestScan_PromptsAndNotFound(t *testing.T) {
	data := backendtest.NewData().On("batches", backendtest.Reply{Body: `null`})
	ta := newTestApp(t, "LOT404\n")
	withServices(ta, data, &backendtest.Functions{})

	require.NoError(t, ta.Scan(context.Background(), nil))
	assert.Contains(t, ta.out.String(), "NOT FOUND")
	assert.Equal(t, "eq.LOT404", data.Last().Params().Get("batch_code"))

	require.ErrorIs(t, ta.Scan(context.Background(), []string{"http://x"}), services.ErrInvalidPayload)
}

func TestAlertsCommand(t *testing.T) {
	data := backendtest.NewData().On("alerts",
		backendtest.Reply{Body: `[{"id":"a1","title":"Lot 7 recalled","severity":"HIGH","batch_code":"LOT7","created_at":"2026-02-01T10:00:00Z"}]`},
		backendtest.Reply{Body: `[]`},
	)
	ta := newTestApp(t, "")
	withServices(ta, data, &backendtest.Functions{})

	require.NoError(t, ta.Alerts(context.Background(), []string{"high"}))
	assert.Equal(t, "eq.HIGH", data.Last().Params().Get("severity"))
	assert.Contains(t, ta.out.String(), "[HIGH]")
	assert.Contains(t, ta.out.String(), "Lot 7 recalled")
	assert.Contains(t, ta.out.String(), "batch LOT7")

	require.NoError(t, ta.Alerts(context.Background(), nil))
	assert.Contains(t, ta.out.String(), "No alerts.")
}

func TestPublishAlert(t *testing.T) {
	data := backendtest.NewData().On("alerts", backendtest.Reply{Body: `{"id":"a9"}`})
	ta := newTestApp(t, "Recall lot 7\nContaminated vials\n\ncritical\nLOT7\n")
	withServices(ta, data, &backendtest.Functions{})

	ta.sess.state = signedInState(models.RoleUser)
	require.ErrorIs(t, ta.PublishAlert(context.Background()), common.ErrForbidden)
	assert.Empty(t, data.Queries())

	ta.sess.state = signedInState(models.RoleAdmin)
	require.NoError(t, ta.PublishAlert(context.Background()))
	row := data.Last().Body().(map[string]any)
	assert.Equal(t, "Recall lot 7", row["title"])
	assert.Equal(t, "Contaminated vials", row["description"])
	assert.Equal(t, models.SeverityCritical, row["severity"])
	assert.Contains(t, ta.out.String(), "Alert a9 published.")
}

func TestReportCommands(t *testing.T) {
	data := backendtest.NewData().On("reports",
		backendtest.Reply{Body: `{"id":"r1","status":"PENDING"}`},
		backendtest.Reply{Body: `[{"id":"r1","kind":"COUNTERFEIT","status":"PENDING","batch_code":"LOT1","created_at":"2026-02-01T10:00:00Z"}]`},
	)
	ta := newTestApp(t, "counterfeit\nLOT1\nThe seal was broken and the label misspelt.\n\nFarmacia Central\n")
	withServices(ta, data, &backendtest.Functions{})
	ta.sess.state = signedInState(models.RoleUser)

	require.NoError(t, ta.Report(context.Background()))
	sent := data.Last().Body().(models.Report)
	assert.Equal(t, models.ReportCounterfeit, sent.Kind)
	assert.Equal(t, "Farmacia Central", sent.Location)
	assert.Contains(t, ta.out.String(), "Report r1 filed, status PENDING.")

	require.NoError(t, ta.Reports(context.Background()))
	assert.Contains(t, ta.out.String(), "COUNTERFEIT")
}

func TestReportCommands_Guest(t *testing.T) {
	data := backendtest.NewData()
	ta := newTestApp(t, "")
	withServices(ta, data, &backendtest.Functions{})
	ta.sess.state = session.State{IsGuest: true}

	require.ErrorIs(t, ta.Report(context.Background()), common.ErrGuestRestricted)
	require.ErrorIs(t, ta.Reports(context.Background()), common.ErrGuestRestricted)
	assert.Empty(t, data.Queries())
}

func TestStatsCommand(t *testing.T) {
	fn := &backendtest.Functions{Body: `{"scans":4,"authentic_scans":3,"reports":1,"open_reports":1}`}
	ta := newTestApp(t, "")
	withServices(ta, backendtest.NewData(), fn)
	ta.sess.state = signedInState(models.RoleUser)

	require.NoError(t, ta.Stats(context.Background()))
	assert.Contains(t, ta.out.String(), "Scans:        4 (3 authentic)")

	fn.Err = common.ErrUnavailable
	require.NoError(t, ta.Stats(context.Background()))
	assert.Contains(t, ta.out.String(), "Stats are not available right now.")
}
