package models

import "time"

// Medicine is a registered product.
type Medicine struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ActiveAgent  string `json:"active_ingredient"`
	Manufacturer string `json:"manufacturer"`
	Presentation string `json:"presentation,omitempty"`
}

// Batch is a produced lot of a medicine, identified by the code printed in
// the package QR.
type Batch struct {
	ID             string    `json:"id"`
	BatchCode      string    `json:"batch_code"`
	MedicineID     string    `json:"medicine_id"`
	ManufacturedAt time.Time `json:"manufactured_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	Recalled       bool      `json:"recalled"`
	LedgerHash     string    `json:"ledger_hash,omitempty"`
	Medicine       *Medicine `json:"medicines,omitempty"`
}

// VerificationStatus is the outcome of checking a scanned package.
type VerificationStatus string

const (
	StatusAuthentic  VerificationStatus = "AUTHENTIC"
	StatusNotFound   VerificationStatus = "NOT_FOUND"
	StatusExpired    VerificationStatus = "EXPIRED"
	StatusRecalled   VerificationStatus = "RECALLED"
	StatusSuspicious VerificationStatus = "SUSPICIOUS"
)

// Verification is the result shown after a scan.
type Verification struct {
	Code       string
	Status     VerificationStatus
	Batch      *Batch
	CheckedAt  time.Time
	LedgerHash string
}
