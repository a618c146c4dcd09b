package model

import "time"

// PushSubscription holds a supervisor's browser push subscription, used to
// deliver check-in denial alerts.
type PushSubscription struct {
	Endpoint     string    `gorm:"primaryKey" json:"endpoint"`
	P256DH       string    `gorm:"column:p256dh;not null" json:"p256dh"`
	Auth         string    `gorm:"not null" json:"auth"`
	SupervisorID int64     `gorm:"index;not null" json:"supervisor_id"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
}
