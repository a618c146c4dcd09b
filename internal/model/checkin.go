package model

import "time"

// CheckInStatus is the terminal status of a check-in attempt.
type CheckInStatus string

const (
	CheckInPending  CheckInStatus = "PENDING"
	CheckInSuccess  CheckInStatus = "SUCCESS"
	CheckInFailed   CheckInStatus = "FAILED"
	CheckInOverride CheckInStatus = "OVERRIDE"
)

// DenialReason is the fixed set of reasons a check-in can be denied.
type DenialReason string

const (
	DenialFaceMismatch    DenialReason = "FACE_MISMATCH"
	DenialNotWhitelisted  DenialReason = "NOT_WHITELISTED"
	DenialOutsideGeofence DenialReason = "OUTSIDE_GEOFENCE"
	DenialOutsideHours    DenialReason = "OUTSIDE_HOURS"
	DenialSystemError     DenialReason = "SYSTEM_ERROR"
)

// CheckInAttempt records one access decision at entry. It is immutable once
// terminal except for the override fields a supervisor resolution writes.
type CheckInAttempt struct {
	ID         int64 `gorm:"primaryKey" json:"id"`
	LabourerID int64 `gorm:"index:idx_checkin_labourer_date;not null" json:"labourer_id"`
	ProjectID  int64 `gorm:"index;not null" json:"project_id"`

	// AttendanceDate is the calendar date ("YYYY-MM-DD") the attempt belongs
	// to; the duplicate-day rule is keyed on it.
	AttendanceDate string    `gorm:"size:10;index:idx_checkin_labourer_date;not null" json:"attendance_date"`
	Timestamp      time.Time `gorm:"index;not null" json:"timestamp"`

	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`

	CapturedImage   []byte   `gorm:"type:bytes" json:"-"`
	SimilarityScore *float64 `json:"similarity_score,omitempty"`

	WithinGeofence       bool    `json:"within_geofence"`
	DistanceMeters       float64 `json:"distance_meters"`
	WhitelistValid       bool    `json:"whitelist_valid"`
	WithinOperatingHours bool    `json:"within_operating_hours"`

	Status        CheckInStatus `gorm:"size:20;index;not null" json:"status"`
	AccessGranted bool          `gorm:"index" json:"access_granted"`

	OverrideBy     string `gorm:"size:100" json:"override_by,omitempty"`
	OverrideReason string `json:"override_reason,omitempty"`
}

// CheckInDenial carries the failure detail and escalation state for a denied
// attempt. Exactly one exists per denied CheckInAttempt and it is never
// deleted; supervisor resolution only annotates it.
type CheckInDenial struct {
	ID               int64        `gorm:"primaryKey" json:"id"`
	CheckInAttemptID int64        `gorm:"uniqueIndex;not null" json:"check_in_attempt_id"`
	Reason           DenialReason `gorm:"size:100;not null" json:"reason"`
	Details          string       `json:"details,omitempty"`

	SupervisorNotified       bool       `gorm:"default:false" json:"supervisor_notified"`
	SupervisorNotifiedAt     *time.Time `json:"supervisor_notified_at,omitempty"`
	SupervisorAcknowledged   bool       `gorm:"default:false" json:"supervisor_acknowledged"`
	SupervisorAcknowledgedAt *time.Time `json:"supervisor_acknowledged_at,omitempty"`

	// SystemLockActive blocks further check-in attempts for the labourer
	// until a supervisor resolves the denial.
	SystemLockActive bool       `gorm:"default:true" json:"system_lock_active"`
	LockReleasedAt   *time.Time `json:"lock_released_at,omitempty"`
	LockReleasedBy   string     `gorm:"size:100" json:"lock_released_by,omitempty"`

	Resolved        bool       `gorm:"default:false;index" json:"resolved"`
	ResolutionNotes string     `json:"resolution_notes,omitempty"`
	ResolvedBy      string     `gorm:"size:100" json:"resolved_by,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
