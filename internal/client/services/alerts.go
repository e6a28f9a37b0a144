package services

import (
	"context"
	"fmt"

	"github.com/santinotanus/medtrace/internal/client/backend"
	"github.com/santinotanus/medtrace/internal/client/models"
	"github.com/santinotanus/medtrace/internal/common"
	"github.com/santinotanus/medtrace/internal/validatex"
)

const defaultAlertLimit = 50

type AlertFilter struct {
	// Severity, when set, keeps only alerts of that severity.
	Severity models.Severity
	Limit    int
}

// AlertService lists safety alerts, newest first, and lets administrators
// publish new ones.
type AlertService interface {
	List(ctx context.Context, filter AlertFilter) ([]models.Alert, error)
	Create(ctx context.Context, in models.AlertInput) (*models.Alert, error)
}

type alertService struct {
	data   backend.Data
	viewer Viewer
}

func NewAlertService(data backend.Data, viewer Viewer) AlertService {
	return &alertService{data: data, viewer: viewer}
}

func (s *alertService) List(ctx context.Context, filter AlertFilter) ([]models.Alert, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultAlertLimit
	}

	q := s.data.From("alerts").Select("*")
	if filter.Severity != "" {
		q = q.Eq("severity", filter.Severity)
	}

	var alerts []models.Alert
	if err := q.Order("created_at", true).Limit(limit).Execute(ctx, &alerts); err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}

func (s *alertService) Create(ctx context.Context, in models.AlertInput) (*models.Alert, error) {
	st := s.viewer.Snapshot()
	if st.IsGuest {
		return nil, common.ErrGuestRestricted
	}
	if st.Profile == nil {
		return nil, common.ErrNoProfile
	}
	if !st.IsAdmin() {
		return nil, common.ErrForbidden
	}
	if err := validatex.Struct(in); err != nil {
		return nil, err
	}

	row := map[string]any{
		"title":       in.Title,
		"description": in.Description,
		"severity":    in.Severity,
		"created_by":  st.Profile.ID,
	}
	if in.BatchCode != "" {
		row["batch_code"] = in.BatchCode
	}

	var created *models.Alert
	if err := s.data.From("alerts").Insert(row).Single().Execute(ctx, &created); err != nil {
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}
	return created, nil
}
