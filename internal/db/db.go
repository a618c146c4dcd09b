package db

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"site-attendance-backend/config"
	"site-attendance-backend/internal/model"
)

// Init initializes the database connection and runs migrations.
// TranslateError is enabled so duplicate-key violations surface as
// gorm.ErrDuplicatedKey; the closure job relies on that for idempotent
// re-runs.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	log.Println("Running database migrations...")
	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("automigrate failed: %w", err)
	}

	log.Println("Database initialization complete.")
	return db, nil
}

// Migrate runs the schema migrations for every attendance entity. Split out
// of Init so tests can migrate an in-memory database.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Project{},
		&model.Labourer{},
		&model.Supervisor{},
		&model.SecurityGuard{},
		&model.CheckInAttempt{},
		&model.CheckInDenial{},
		&model.CheckOutAttempt{},
		&model.AttendanceLog{},
		&model.DailyClosureLog{},
		&model.ExceptionReport{},
		&model.PushSubscription{},
	)
}
