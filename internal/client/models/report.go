package models

import "time"

// ReportKind classifies a user report.
type ReportKind string

const (
	ReportCounterfeit  ReportKind = "COUNTERFEIT"
	ReportAdverseEvent ReportKind = "ADVERSE_EVENT"
	ReportPackaging    ReportKind = "PACKAGING"
	ReportOther        ReportKind = "OTHER"
)

// ReportStatus tracks a report through review.
type ReportStatus string

const (
	ReportPending   ReportStatus = "PENDING"
	ReportReviewing ReportStatus = "REVIEWING"
	ReportResolved  ReportStatus = "RESOLVED"
)

// Report is a suspected problem submitted by a signed-in user.
type Report struct {
	ID          string       `json:"id"`
	UserID      string       `json:"user_id"`
	Kind        ReportKind   `json:"kind"`
	BatchCode   string       `json:"batch_code,omitempty"`
	Description string       `json:"description"`
	Location    string       `json:"location,omitempty"`
	Status      ReportStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ReportInput is the report form.
type ReportInput struct {
	Kind        ReportKind `validate:"required,oneof=COUNTERFEIT ADVERSE_EVENT PACKAGING OTHER"`
	BatchCode   string     `validate:"omitempty,max=64"`
	Description string     `validate:"required,min=10,max=2000"`
	Location    string     `validate:"omitempty,max=200"`
}

// UserStats is the aggregate returned by the stats function.
type UserStats struct {
	Scans          int `json:"scans"`
	AuthenticScans int `json:"authentic_scans"`
	Reports        int `json:"reports"`
	OpenReports    int `json:"open_reports"`
	AlertsSeen     int `json:"alerts_seen"`
}
