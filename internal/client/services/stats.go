package services

import (
	"context"

	"github.com/santinotanus/medtrace/internal/client/backend"
	"github.com/santinotanus/medtrace/internal/client/models"
	"github.com/santinotanus/medtrace/internal/logging"
)

const statsFunction = "user-stats"

// StatsService loads the usage summary. It is a passive read: failures are
// logged and give a nil result.
type StatsService interface {
	Load(ctx context.Context) *models.UserStats
}

type statsService struct {
	fn     backend.Functions
	viewer Viewer
	log    logging.Logger
}

func NewStatsService(fn backend.Functions, viewer Viewer, log logging.Logger) StatsService {
	return &statsService{fn: fn, viewer: viewer, log: log}
}

func (s *statsService) Load(ctx context.Context) *models.UserStats {
	st := s.viewer.Snapshot()
	if st.IsGuest || st.Profile == nil {
		return nil
	}

	var stats models.UserStats
	if err := s.fn.Invoke(ctx, statsFunction, map[string]string{"user_id": st.Profile.ID}, &stats); err != nil {
		s.log.Warn(ctx, "failed to load stats", "error", err)
		return nil
	}
	return &stats
}
