package model

import "time"

// DailyClosureLog is the end-of-day reconciliation summary. Exactly one row
// exists per calendar date; the unique index on ClosureDate is the
// serialization point for concurrent closure runs.
type DailyClosureLog struct {
	ID          int64  `gorm:"primaryKey" json:"id"`
	ClosureDate string `gorm:"size:10;uniqueIndex;not null" json:"closure_date"`

	TotalCheckedIn  int `gorm:"default:0" json:"total_checked_in"`
	TotalCheckedOut int `gorm:"default:0" json:"total_checked_out"`
	ForcedCheckouts int `gorm:"default:0" json:"forced_checkouts"`
	ExceptionsCount int `gorm:"default:0" json:"exceptions_count"`

	ProcessedBySystem bool      `gorm:"default:true" json:"processed_by_system"`
	ProcessedAt       time.Time `gorm:"autoCreateTime" json:"processed_at"`
}

// ExceptionType enumerates the anomaly kinds raised by reconciliation or
// manual detection.
type ExceptionType string

const (
	ExceptionLateCheckIn       ExceptionType = "Late Check-In"
	ExceptionMissedCheckOut    ExceptionType = "Missed Check-Out"
	ExceptionAccessDenied      ExceptionType = "Access Denied"
	ExceptionOvertimeViolation ExceptionType = "Overtime Violation"
)

// Severity ranks an exception for triage.
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// ExceptionReport is a flagged anomaly awaiting supervisor resolution.
type ExceptionReport struct {
	ID            int64         `gorm:"primaryKey" json:"id"`
	LabourerID    int64         `gorm:"index;not null" json:"labourer_id"`
	ProjectID     int64         `gorm:"index" json:"project_id"`
	ExceptionDate string        `gorm:"size:10;index;not null" json:"exception_date"`
	ExceptionType ExceptionType `gorm:"size:50;not null" json:"exception_type"`
	Description   string        `json:"description"`
	Severity      Severity      `gorm:"size:20;not null" json:"severity"`

	Resolved        bool       `gorm:"default:false;index" json:"resolved"`
	ResolutionNotes string     `json:"resolution_notes,omitempty"`
	ResolvedBy      string     `gorm:"size:100" json:"resolved_by,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
