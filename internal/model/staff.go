package model

import "time"

// Supervisor approves denied check-ins and the first check-out stage, and
// receives push alerts for denials on their project.
type Supervisor struct {
	ID        int64  `gorm:"primaryKey" json:"id"`
	Username  string `gorm:"uniqueIndex;size:100;not null" json:"username"`
	FullName  string `gorm:"size:200" json:"full_name"`
	Email     string `gorm:"size:254" json:"email"`
	Phone     string `gorm:"size:20" json:"phone"`
	ProjectID *int64 `gorm:"index" json:"project_id,omitempty"`
	IsActive  bool   `gorm:"default:true" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
}

// SecurityGuard performs the second check-out stage at the gate.
type SecurityGuard struct {
	ID          int64  `gorm:"primaryKey" json:"id"`
	Username    string `gorm:"uniqueIndex;size:100;not null" json:"username"`
	FullName    string `gorm:"size:200" json:"full_name"`
	BadgeNumber string `gorm:"uniqueIndex;size:50;not null" json:"badge_number"`
	ProjectID   *int64 `gorm:"index" json:"project_id,omitempty"`
	CanOverride bool   `gorm:"default:false" json:"can_override"`
	IsActive    bool   `gorm:"default:true" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
}
