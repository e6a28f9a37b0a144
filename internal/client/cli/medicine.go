package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/santinotanus/medtrace/internal/client/models"
	"github.com/santinotanus/medtrace/internal/client/services"
	"github.com/santinotanus/medtrace/internal/common"
)

var statusText = map[models.VerificationStatus]string{
	models.StatusAuthentic:  "AUTHENTIC: this package matches the manufacturer's records.",
	models.StatusNotFound:   "NOT FOUND: this batch is not registered. Do not use it and file a report.",
	models.StatusExpired:    "EXPIRED: this batch is past its expiry date.",
	models.StatusRecalled:   "RECALLED: this batch has been recalled. Do not use it.",
	models.StatusSuspicious: "SUSPICIOUS: the batch fingerprint does not match. It may be counterfeit.",
}

// Scan verifies a scanned package: scan <payload>. Without an argument the
// payload is read from the prompt, standing in for the camera.
func (a *App) Scan(ctx context.Context, args []string) error {
	payload := strings.Join(args, " ")
	if payload == "" {
		var err error
		if payload, err = a.prompt("Scan or type the code printed on the package"); err != nil {
			return err
		}
	}

	v, err := a.medicines.Verify(ctx, payload)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Batch %s\n", v.Code)
	fmt.Fprintln(a.out, statusText[v.Status])
	if b := v.Batch; b != nil {
		if b.Medicine != nil {
			fmt.Fprintf(a.out, "  Medicine:     %s (%s)\n", b.Medicine.Name, b.Medicine.Manufacturer)
		}
		fmt.Fprintf(a.out, "  Manufactured: %s\n", b.ManufacturedAt.Format("2006-01-02"))
		if !b.ExpiresAt.IsZero() {
			fmt.Fprintf(a.out, "  Expires:      %s\n", b.ExpiresAt.Format("2006-01-02"))
		}
	}
	return nil
}

// Alerts lists safety alerts: alerts [severity].
func (a *App) Alerts(ctx context.Context, args []string) error {
	var filter services.AlertFilter
	if len(args) > 0 {
		filter.Severity = models.Severity(strings.ToUpper(args[0]))
	}

	alerts, err := a.alerts.List(ctx, filter)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(a.out, "No alerts.")
		return nil
	}
	for _, al := range alerts {
		fmt.Fprintf(a.out, "[%s] %s  %s\n", al.Severity, al.CreatedAt.Local().Format("2006-01-02"), al.Title)
		if al.BatchCode != nil {
			fmt.Fprintf(a.out, "    batch %s\n", *al.BatchCode)
		}
		if al.Description != "" {
			fmt.Fprintf(a.out, "    %s\n", al.Description)
		}
	}
	return nil
}

// PublishAlert lets an administrator publish an alert.
func (a *App) PublishAlert(ctx context.Context) error {
	st := a.session.Snapshot()
	if st.IsGuest {
		return common.ErrGuestRestricted
	}
	if !st.IsAdmin() {
		return common.ErrForbidden
	}

	title, err := a.prompt("Title")
	if err != nil {
		return err
	}
	desc, err := GetMultiline(a.reader, "Description", a.out)
	if err != nil {
		return err
	}
	severity, err := a.prompt("Severity (LOW, MEDIUM, HIGH, CRITICAL)")
	if err != nil {
		return err
	}
	batch, err := a.prompt("Batch code (optional)")
	if err != nil {
		return err
	}

	al, err := a.alerts.Create(ctx, models.AlertInput{
		Title:       title,
		Description: desc,
		Severity:    models.Severity(strings.ToUpper(severity)),
		BatchCode:   batch,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Alert %s published.\n", al.ID)
	return nil
}

// Report files a report about a suspect package.
func (a *App) Report(ctx context.Context) error {
	if _, err := a.account(); err != nil {
		return err
	}

	kind, err := a.prompt("Kind (COUNTERFEIT, ADVERSE_EVENT, PACKAGING, OTHER)")
	if err != nil {
		return err
	}
	batch, err := a.prompt("Batch code (optional)")
	if err != nil {
		return err
	}
	desc, err := GetMultiline(a.reader, "What happened?", a.out)
	if err != nil {
		return err
	}
	location, err := a.prompt("Where did you get it? (optional)")
	if err != nil {
		return err
	}

	r, err := a.reports.Create(ctx, models.ReportInput{
		Kind:        models.ReportKind(strings.ToUpper(kind)),
		BatchCode:   batch,
		Description: desc,
		Location:    location,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Report %s filed, status %s.\n", r.ID, r.Status)
	return nil
}

func (a *App) Reports(ctx context.Context) error {
	if _, err := a.account(); err != nil {
		return err
	}
	reports, err := a.reports.ListMine(ctx)
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		fmt.Fprintln(a.out, "You have not filed any reports.")
		return nil
	}
	for _, r := range reports {
		fmt.Fprintf(a.out, "%s  %-13s %-9s %s\n", r.CreatedAt.Local().Format(time.DateOnly), r.Kind, r.Status, r.BatchCode)
	}
	return nil
}

func (a *App) Stats(ctx context.Context) error {
	if _, err := a.account(); err != nil {
		return err
	}
	s := a.stats.Load(ctx)
	if s == nil {
		fmt.Fprintln(a.out, "Stats are not available right now.")
		return nil
	}
	fmt.Fprintf(a.out, "Scans:        %d (%d authentic)\n", s.Scans, s.AuthenticScans)
	fmt.Fprintf(a.out, "Reports:      %d (%d open)\n", s.Reports, s.OpenReports)
	fmt.Fprintf(a.out, "Alerts seen:  %d\n", s.AlertsSeen)
	return nil
}
