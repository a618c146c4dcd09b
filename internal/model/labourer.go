package model

import (
	"time"

	"github.com/google/uuid"
)

// LabourerStatus is the lifecycle state of a worker identity. Transitions are
// performed by admin action only, never by the verification path.
type LabourerStatus string

const (
	LabourerPending    LabourerStatus = "PENDING"
	LabourerActive     LabourerStatus = "ACTIVE"
	LabourerInactive   LabourerStatus = "INACTIVE"
	LabourerSuspended  LabourerStatus = "SUSPENDED"
	LabourerTerminated LabourerStatus = "TERMINATED"
)

// Labourer is a worker identity enrolled for site access. The stored portrait
// is read-only for the verification path; only the enrollment flow writes it.
type Labourer struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	PublicID     uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"public_id"`
	SerialNumber string    `gorm:"uniqueIndex;size:50" json:"serial_number"`

	FullName    string `gorm:"size:200;not null" json:"full_name"`
	NationalID  string `gorm:"uniqueIndex;size:20;not null" json:"national_id"`
	PhoneNumber string `gorm:"uniqueIndex;size:13;not null" json:"phone_number"`
	Email       string `gorm:"size:254" json:"email,omitempty"`

	ProjectID *int64 `gorm:"index" json:"project_id,omitempty"`

	// Portrait is the stored reference image the similarity scorer compares
	// live captures against. PortraitHash is its content hash, computed at
	// enrollment.
	Portrait     []byte `gorm:"type:bytes" json:"-"`
	PortraitHash string `gorm:"size:64" json:"portrait_hash,omitempty"`

	Status      LabourerStatus `gorm:"size:20;index;default:'PENDING'" json:"status"`
	Whitelisted bool           `gorm:"default:false" json:"whitelisted"`

	CreatedAt  time.Time  `json:"created_at"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

// HasPortrait reports whether a reference portrait is registered.
func (l *Labourer) HasPortrait() bool {
	return len(l.Portrait) > 0
}
