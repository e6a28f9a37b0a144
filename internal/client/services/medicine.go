package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santinotanus/medtrace/internal/client/backend"
	"github.com/santinotanus/medtrace/internal/client/models"
	"github.com/santinotanus/medtrace/internal/logging"
)

const batchURIPrefix = "medtrace://batch/"

var (
	ErrInvalidPayload = errors.New("not a MedTrace batch code")

	batchCodePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)
)

// MedicineService checks scanned packages. It is open to guests.
type MedicineService interface {
	Verify(ctx context.Context, payload string) (*models.Verification, error)
}

type medicineService struct {
	data   backend.Data
	viewer Viewer
	log    logging.Logger
	now    func() time.Time
}

func NewMedicineService(data backend.Data, viewer Viewer, log logging.Logger) MedicineService {
	return &medicineService{data: data, viewer: viewer, log: log, now: time.Now}
}

// ParsePayload extracts the batch code from a scanned payload, either a
// medtrace://batch/<code> URI or the bare code.
func ParsePayload(payload string) (string, error) {
	code := strings.TrimSpace(payload)
	if rest, ok := strings.CutPrefix(code, batchURIPrefix); ok {
		code = strings.TrimSuffix(rest, "/")
	}
	if !batchCodePattern.MatchString(code) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPayload, payload)
	}
	return code, nil
}

// LedgerHash is the fingerprint a genuine batch carries: the hex SHA-256 of
// code, medicine id and manufacture time joined with "|".
func LedgerHash(code, medicineID string, manufacturedAt time.Time) string {
	sum := sha256.Sum256([]byte(code + "|" + medicineID + "|" + manufacturedAt.UTC().Format(time.RFC3339)))
	return hex.EncodeToString(sum[:])
}

func (s *medicineService) Verify(ctx context.Context, payload string) (*models.Verification, error) {
	code, err := ParsePayload(payload)
	if err != nil {
		return nil, err
	}

	var batch *models.Batch
	err = s.data.From("batches").
		Select("*, medicines(*)").
		Eq("batch_code", code).
		MaybeSingle().
		Execute(ctx, &batch)
	if err != nil {
		return nil, fmt.Errorf("batch lookup failed: %w", err)
	}

	now := s.now()
	v := &models.Verification{Code: code, Batch: batch, CheckedAt: now}
	switch {
	case batch == nil:
		v.Status = models.StatusNotFound
	default:
		v.LedgerHash = LedgerHash(batch.BatchCode, batch.MedicineID, batch.ManufacturedAt)
		switch {
		case batch.LedgerHash == "" || batch.LedgerHash != v.LedgerHash:
			v.Status = models.StatusSuspicious
		case batch.Recalled:
			v.Status = models.StatusRecalled
		case !batch.ExpiresAt.IsZero() && now.After(batch.ExpiresAt):
			v.Status = models.StatusExpired
		default:
			v.Status = models.StatusAuthentic
		}
	}

	s.record(ctx, v)
	return v, nil
}

// record keeps the scan history of signed-in users. It is best effort.
func (s *medicineService) record(ctx context.Context, v *models.Verification) {
	p := s.viewer.Snapshot().Profile
	if p == nil {
		return
	}
	row := map[string]any{
		"id":         uuid.NewString(),
		"user_id":    p.ID,
		"batch_code": v.Code,
		"status":     v.Status,
		"scanned_at": v.CheckedAt.UTC().Format(time.RFC3339Nano),
	}
	if err := s.data.From("scans").Insert(row).Execute(ctx, nil); err != nil {
		s.log.Warn(ctx, "failed to record scan", "batch_code", v.Code, "error", err)
	}
}
