package model

import "time"

// CheckoutType classifies how a check-out came about.
type CheckoutType string

const (
	CheckoutNormal   CheckoutType = "NORMAL"
	CheckoutOvertime CheckoutType = "OVERTIME"
	CheckoutEarly    CheckoutType = "EARLY"
	CheckoutForced   CheckoutType = "FORCED"
)

// StageStatus is the state of one approval stage of a check-out.
type StageStatus string

const (
	StagePending   StageStatus = "PENDING"
	StageApproved  StageStatus = "APPROVED"
	StageRejected  StageStatus = "REJECTED"
	StageEscalated StageStatus = "ESCALATED"
)

// CheckOutAttempt is the two-stage exit approval record. The supervisor stage
// gates the security stage; the attempt is terminal once both stages are
// resolved or the closure job forces it.
type CheckOutAttempt struct {
	ID         int64 `gorm:"primaryKey" json:"id"`
	LabourerID int64 `gorm:"index:idx_checkout_labourer_date;not null" json:"labourer_id"`
	ProjectID  int64 `gorm:"index;not null" json:"project_id"`

	// CheckInAttemptID pairs the exit with the day's granting check-in.
	CheckInAttemptID int64  `gorm:"index;not null" json:"check_in_attempt_id"`
	AttendanceDate   string `gorm:"size:10;index:idx_checkout_labourer_date;not null" json:"attendance_date"`

	InitiatedAt time.Time `gorm:"not null" json:"initiated_at"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`

	SimilarityScore *float64 `json:"similarity_score,omitempty"`

	// Stage 1: supervisor approval.
	SupervisorStatus StageStatus `gorm:"size:20;default:'PENDING'" json:"supervisor_status"`
	SupervisorBy     string      `gorm:"size:100" json:"supervisor_by,omitempty"`
	SupervisorTime   *time.Time  `json:"supervisor_time,omitempty"`
	SupervisorPhoto  []byte      `gorm:"type:bytes" json:"-"`
	SupervisorNotes  string      `json:"supervisor_notes,omitempty"`

	// Stage 2: security approval; unreachable until stage 1 is APPROVED.
	SecurityStatus StageStatus `gorm:"size:20;default:'PENDING'" json:"security_status"`
	SecurityBy     string      `gorm:"size:100" json:"security_by,omitempty"`
	SecurityTime   *time.Time  `json:"security_time,omitempty"`
	SecurityPhoto  []byte      `gorm:"type:bytes" json:"-"`
	SecurityNotes  string      `json:"security_notes,omitempty"`

	// Overtime detection is automatic; approval is an explicit approver
	// action, never implied by detection.
	HasOvertime          bool       `gorm:"default:false" json:"has_overtime"`
	OvertimeMinutes      int        `gorm:"default:0" json:"overtime_minutes"`
	OvertimeApproved     bool       `gorm:"default:false" json:"overtime_approved"`
	OvertimeApprover     string     `gorm:"size:100" json:"overtime_approver,omitempty"`
	OvertimeApprovalTime *time.Time `json:"overtime_approval_time,omitempty"`
	OvertimeRemarks      string     `json:"overtime_remarks,omitempty"`

	CheckoutType CheckoutType `gorm:"size:20;index;not null" json:"checkout_type"`
	TotalHours   float64      `json:"total_hours"`
	CompletedAt  *time.Time   `gorm:"index" json:"completed_at,omitempty"`
}

// Completed reports whether the attempt has reached a terminal state.
func (c *CheckOutAttempt) Completed() bool {
	return c.CompletedAt != nil
}

// stageTerminal reports whether a stage has been resolved one way or another.
func stageTerminal(s StageStatus) bool {
	return s == StageApproved || s == StageRejected
}

// StagesResolved reports whether both approval stages are terminal.
func (c *CheckOutAttempt) StagesResolved() bool {
	return stageTerminal(c.SupervisorStatus) && stageTerminal(c.SecurityStatus)
}
