package models

import "time"

// Severity of a safety alert.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Alert is a published safety notice about a medicine or batch.
type Alert struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Severity    Severity  `json:"severity"`
	MedicineID  *string   `json:"medicine_id,omitempty"`
	BatchCode   *string   `json:"batch_code,omitempty"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// AlertInput is the form an administrator fills in to publish an alert.
type AlertInput struct {
	Title       string   `json:"title" validate:"required,min=3,max=120"`
	Description string   `json:"description" validate:"required,max=2000"`
	Severity    Severity `json:"severity" validate:"required,oneof=LOW MEDIUM HIGH CRITICAL"`
	BatchCode   string   `json:"batch_code,omitempty" validate:"omitempty,max=64"`
}
