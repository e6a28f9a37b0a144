package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santinotanus/medtrace/internal/client/models"
	"github.com/santinotanus/medtrace/internal/client/session"
	"github.com/santinotanus/medtrace/internal/common"
)

type settingsField func(patch *models.UserSettingsPatch, value string) error

type notifyField func(patch *models.NotificationSettingsPatch, on bool)

var settingsFields = map[string]settingsField{
	"dark_mode":  boolSetting(func(p *models.UserSettingsPatch, v *bool) { p.DarkMode = v }),
	"biometrics": boolSetting(func(p *models.UserSettingsPatch, v *bool) { p.BiometricsEnabled = v }),
	"auto_sync":  boolSetting(func(p *models.UserSettingsPatch, v *bool) { p.AutoSync = v }),
	"data_usage": boolSetting(func(p *models.UserSettingsPatch, v *bool) { p.DataUsageConsent = v }),
	"analytics":  boolSetting(func(p *models.UserSettingsPatch, v *bool) { p.AnalyticsEnabled = v }),
	"language": func(p *models.UserSettingsPatch, v string) error {
		switch v {
		case "es", "en", "pt":
			p.Language = common.StringPtr(v)
			return nil
		}
		return fmt.Errorf("unsupported language %q, use es, en or pt", v)
	},
}

var notifyFields = map[string]notifyField{
	"push":         func(p *models.NotificationSettingsPatch, on bool) { p.PushEnabled = &on },
	"email":        func(p *models.NotificationSettingsPatch, on bool) { p.EmailEnabled = &on },
	"recalls":      func(p *models.NotificationSettingsPatch, on bool) { p.RecallAlerts = &on },
	"counterfeits": func(p *models.NotificationSettingsPatch, on bool) { p.CounterfeitAlerts = &on },
	"expiry":       func(p *models.NotificationSettingsPatch, on bool) { p.ExpiryReminders = &on },
	"reports":      func(p *models.NotificationSettingsPatch, on bool) { p.ReportUpdates = &on },
}

func boolSetting(set func(*models.UserSettingsPatch, *bool)) settingsField {
	return func(p *models.UserSettingsPatch, v string) error {
		on, err := parseSwitch(v)
		if err != nil {
			return err
		}
		set(p, &on)
		return nil
	}
}

func parseSwitch(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", v)
}

func fieldNames[T any](m map[string]T) string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// account returns the state of a signed-in user with a loaded profile.
func (a *App) account() (session.State, error) {
	st := a.session.Snapshot()
	switch {
	case st.IsGuest:
		return st, common.ErrGuestRestricted
	case !st.SignedIn():
		return st, errNotSignedIn
	case st.Profile == nil:
		return st, common.ErrNoProfile
	}
	return st, nil
}

func (a *App) Profile(context.Context) error {
	st, err := a.account()
	if err != nil {
		return err
	}
	p := st.Profile
	fmt.Fprintf(a.out, "Name:     %s\n", p.Name)
	fmt.Fprintf(a.out, "Email:    %s\n", p.Email)
	if p.Phone != nil {
		fmt.Fprintf(a.out, "Phone:    %s\n", *p.Phone)
	}
	fmt.Fprintf(a.out, "Role:     %s\n", p.Role)
	fmt.Fprintf(a.out, "Verified: %t\n", p.IsEmailVerified)
	if !p.CreatedAt.IsZero() {
		fmt.Fprintf(a.out, "Member since %s\n", p.CreatedAt.Format("2006-01-02"))
	}
	return nil
}

// Refresh reloads the profile from the backend.
func (a *App) Refresh(ctx context.Context) error {
	if _, err := a.account(); err != nil && !errors.Is(err, common.ErrNoProfile) {
		return err
	}
	a.session.RefreshProfile(ctx)
	if a.session.Snapshot().Profile == nil {
		return common.ErrNoProfile
	}
	return a.Profile(ctx)
}

func (a *App) Settings(context.Context) error {
	st, err := a.account()
	if err != nil {
		return err
	}

	if s := st.Settings; s == nil {
		fmt.Fprintln(a.out, "Settings: defaults (nothing saved yet)")
	} else {
		fmt.Fprintln(a.out, "Settings:")
		fmt.Fprintf(a.out, "  dark_mode   %s\n", onOff(s.DarkMode))
		fmt.Fprintf(a.out, "  language    %s\n", s.Language)
		fmt.Fprintf(a.out, "  biometrics  %s\n", onOff(s.BiometricsEnabled))
		fmt.Fprintf(a.out, "  auto_sync   %s\n", onOff(s.AutoSync))
		fmt.Fprintf(a.out, "  data_usage  %s\n", onOff(s.DataUsageConsent))
		fmt.Fprintf(a.out, "  analytics   %s\n", onOff(s.AnalyticsEnabled))
	}

	if n := st.NotificationSettings; n == nil {
		fmt.Fprintln(a.out, "Notifications: defaults (nothing saved yet)")
	} else {
		fmt.Fprintln(a.out, "Notifications:")
		fmt.Fprintf(a.out, "  push          %s\n", onOff(n.PushEnabled))
		fmt.Fprintf(a.out, "  email         %s\n", onOff(n.EmailEnabled))
		fmt.Fprintf(a.out, "  recalls       %s\n", onOff(n.RecallAlerts))
		fmt.Fprintf(a.out, "  counterfeits  %s\n", onOff(n.CounterfeitAlerts))
		fmt.Fprintf(a.out, "  expiry        %s\n", onOff(n.ExpiryReminders))
		fmt.Fprintf(a.out, "  reports       %s\n", onOff(n.ReportUpdates))
	}
	return nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// Set updates one user setting: set <field> <value>.
func (a *App) Set(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: set <field> <value>, fields: %s", fieldNames(settingsFields))
	}
	apply, ok := settingsFields[args[0]]
	if !ok {
		return fmt.Errorf("unknown setting %q, fields: %s", args[0], fieldNames(settingsFields))
	}
	if _, err := a.account(); err != nil {
		return err
	}

	var patch models.UserSettingsPatch
	if err := apply(&patch, args[1]); err != nil {
		return err
	}
	if err := a.session.UpdateUserSettings(ctx, patch); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "Saved.")
	if patch.BiometricsEnabled != nil && *patch.BiometricsEnabled && !a.lockAvailable() {
		fmt.Fprintln(a.out, "No unlock method is set up on this device; run 'enroll' to lock the app with a passcode.")
	}
	return nil
}

// Notify toggles one notification preference: notify <field> <on|off>.
func (a *App) Notify(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: notify <field> <on|off>, fields: %s", fieldNames(notifyFields))
	}
	apply, ok := notifyFields[args[0]]
	if !ok {
		return fmt.Errorf("unknown notification %q, fields: %s", args[0], fieldNames(notifyFields))
	}
	on, err := parseSwitch(args[1])
	if err != nil {
		return err
	}
	if _, err := a.account(); err != nil {
		return err
	}

	var patch models.NotificationSettingsPatch
	apply(&patch, on)
	if err := a.session.UpdateNotificationSettings(ctx, patch); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Saved.")
	return nil
}

func (a *App) lockAvailable() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.available.Available
}

// Enroll sets up the device passcode used to unlock the app.
func (a *App) Enroll(ctx context.Context) error {
	if a.unlocker == nil {
		return errors.New("no unlock method on this device")
	}
	if hw, err := a.unlocker.HasHardware(ctx); err != nil || !hw {
		return errors.New("a passcode can only be set up from an interactive terminal")
	}

	first, err := a.password("Choose a passcode: ")
	if err != nil {
		return err
	}
	again, err := a.password("Repeat the passcode: ")
	if err != nil {
		return err
	}
	if first != again {
		return errors.New("passcodes do not match")
	}
	if err := a.unlocker.Enroll(ctx, first); err != nil {
		return err
	}

	a.reprobe(ctx)
	fmt.Fprintln(a.out, "Passcode saved. Turn the app lock on with 'set biometrics on'.")
	return nil
}

func (a *App) Unenroll(ctx context.Context) error {
	if a.unlocker == nil {
		return errors.New("no unlock method on this device")
	}
	if err := a.unlocker.Unenroll(ctx); err != nil {
		return err
	}
	a.reprobe(ctx)
	fmt.Fprintln(a.out, "Passcode removed.")
	return nil
}
