package model

import "time"

// LogType distinguishes the three timeline entry kinds.
type LogType string

const (
	LogCheckIn        LogType = "Check-In"
	LogCheckOut       LogType = "Check-Out"
	LogForcedCheckOut LogType = "Forced-Check-Out"
)

// VerificationMethod records how an attendance event was verified.
type VerificationMethod string

const (
	VerifyFaceLocation VerificationMethod = "Face+Location"
	VerifyLocation     VerificationMethod = "Location"
	VerifySystem       VerificationMethod = "System"
)

// AttendanceLog is one append-only timeline entry. Rows are never mutated or
// deleted; the current "checked in / checked out" state is a projection over
// the attempts, not over this log.
type AttendanceLog struct {
	ID             int64   `gorm:"primaryKey" json:"id"`
	LabourerID     int64   `gorm:"index:idx_attlog_labourer_ts;not null" json:"labourer_id"`
	ProjectID      int64   `gorm:"index" json:"project_id"`
	LogType        LogType `gorm:"size:20;index;not null" json:"log_type"`
	AttendanceDate string  `gorm:"size:10;index;not null" json:"attendance_date"`

	Timestamp          time.Time          `gorm:"index:idx_attlog_labourer_ts;not null" json:"timestamp"`
	VerificationMethod VerificationMethod `gorm:"size:20;not null" json:"verification_method"`

	Latitude         *float64 `json:"latitude,omitempty"`
	Longitude        *float64 `json:"longitude,omitempty"`
	LocationAccuracy *float64 `json:"location_accuracy,omitempty"`
	LocationVerified bool     `json:"location_verified"`

	SimilarityScore *float64 `json:"similarity_score,omitempty"`
	AccessGranted   bool     `gorm:"index" json:"access_granted"`
	Notes           string   `json:"notes,omitempty"`
}
