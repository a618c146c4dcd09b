// Package bootstrap seeds the accounts a fresh deployment needs before any
// admin has logged in. Provisioning is idempotent; restarting the daemon never
// duplicates or overwrites records.
package bootstrap

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"site-attendance-backend/internal/model"
)

// EnsureDefaultAccounts creates the fallback supervisor and security guard
// accounts used until real staff records are provisioned. Existing rows with
// the same username are left untouched.
func EnsureDefaultAccounts(db *gorm.DB) error {
	supervisor := model.Supervisor{
		Username: "site.supervisor",
		FullName: "Default Site Supervisor",
		IsActive: true,
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoNothing: true,
	}).Create(&supervisor).Error; err != nil {
		return fmt.Errorf("failed to provision default supervisor: %w", err)
	}

	guard := model.SecurityGuard{
		Username:    "gate.security",
		FullName:    "Default Gate Security",
		BadgeNumber: "GATE-001",
		IsActive:    true,
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoNothing: true,
	}).Create(&guard).Error; err != nil {
		return fmt.Errorf("failed to provision default security guard: %w", err)
	}

	return nil
}
