package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/santinotanus/medtrace/internal/client/backend"
	"github.com/santinotanus/medtrace/internal/client/models"
	"github.com/santinotanus/medtrace/internal/common"
	"github.com/santinotanus/medtrace/internal/validatex"
)

// ReportService files and lists the reports of the signed-in user. Guests
// make no backend call: Create refuses them and ListMine returns nothing.
type ReportService interface {
	Create(ctx context.Context, in models.ReportInput) (*models.Report, error)
	ListMine(ctx context.Context) ([]models.Report, error)
}

type reportService struct {
	data   backend.Data
	viewer Viewer
	now    func() time.Time
}

func NewReportService(data backend.Data, viewer Viewer) ReportService {
	return &reportService{data: data, viewer: viewer, now: time.Now}
}

func (s *reportService) owner() (string, error) {
	st := s.viewer.Snapshot()
	if st.IsGuest {
		return "", common.ErrGuestRestricted
	}
	if st.Profile == nil {
		return "", common.ErrNoProfile
	}
	return st.Profile.ID, nil
}

func (s *reportService) Create(ctx context.Context, in models.ReportInput) (*models.Report, error) {
	uid, err := s.owner()
	if err != nil {
		return nil, err
	}
	if err := validatex.Struct(in); err != nil {
		return nil, err
	}

	r := models.Report{
		ID:          uuid.NewString(),
		UserID:      uid,
		Kind:        in.Kind,
		BatchCode:   in.BatchCode,
		Description: in.Description,
		Location:    in.Location,
		Status:      models.ReportPending,
		CreatedAt:   s.now().UTC(),
	}

	var stored *models.Report
	if err := s.data.From("reports").Insert(r).Single().Execute(ctx, &stored); err != nil {
		return nil, fmt.Errorf("failed to create report: %w", err)
	}
	return stored, nil
}

func (s *reportService) ListMine(ctx context.Context) ([]models.Report, error) {
	uid, err := s.owner()
	if errors.Is(err, common.ErrGuestRestricted) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var reports []models.Report
	err = s.data.From("reports").
		Select("*").
		Eq("user_id", uid).
		Order("created_at", true).
		Execute(ctx, &reports)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return reports, nil
}
