package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"site-attendance-backend/internal/model"
)

// Store defines the interface for all database operations the attendance
// engines need. The engines treat it as a transactional record store; the
// concrete engine behind it (postgres in production, sqlite in tests) is not
// their concern.
type Store interface {
	DB() *gorm.DB

	// Projects and labourers.
	GetProject(ctx context.Context, id int64) (*model.Project, error)
	UpdateProjectBoundary(ctx context.Context, id int64, boundary model.Boundary) (*model.Project, error)
	GetLabourer(ctx context.Context, id int64) (*model.Labourer, error)

	// Check-in decisions.
	GrantedCheckIn(ctx context.Context, labourerID int64, date string) (*model.CheckInAttempt, error)
	ActiveDenialLock(ctx context.Context, labourerID int64, date string) (*model.CheckInDenial, error)
	CreateDecision(ctx context.Context, attempt *model.CheckInAttempt, denial *model.CheckInDenial, logEntry *model.AttendanceLog) error
	GetCheckInAttempt(ctx context.Context, id int64) (*model.CheckInAttempt, error)
	GetDenialForAttempt(ctx context.Context, attemptID int64) (*model.CheckInDenial, error)
	SaveResolution(ctx context.Context, attempt *model.CheckInAttempt, denial *model.CheckInDenial) error

	// Check-out lifecycle.
	CheckOutForCheckIn(ctx context.Context, checkInAttemptID int64) (*model.CheckOutAttempt, error)
	CreateCheckOut(ctx context.Context, attempt *model.CheckOutAttempt, logEntry *model.AttendanceLog) error
	GetCheckOut(ctx context.Context, id int64) (*model.CheckOutAttempt, error)
	SaveCheckOut(ctx context.Context, attempt *model.CheckOutAttempt) error

	// Daily closure.
	ClosureExists(ctx context.Context, date string) (bool, error)
	UnresolvedCheckIns(ctx context.Context, date string) ([]model.CheckInAttempt, error)
	CreateForcedCheckOut(ctx context.Context, attempt *model.CheckOutAttempt, logEntry *model.AttendanceLog, report *model.ExceptionReport) error
	CountGrantedCheckIns(ctx context.Context, date string) (int64, error)
	CountCompletedCheckOuts(ctx context.Context, date string) (int64, error)
	CreateClosureLog(ctx context.Context, closure *model.DailyClosureLog) error

	// Audit timeline.
	AttendanceHistory(ctx context.Context, labourerID int64, limit int) ([]model.AttendanceLog, error)

	// Denial alerts.
	GetDenial(ctx context.Context, id int64) (*model.CheckInDenial, error)
	MarkSupervisorNotified(ctx context.Context, denialID int64, at time.Time) error
	SubscriptionsForProject(ctx context.Context, projectID int64) ([]model.PushSubscription, error)
	GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	UpsertSubscription(ctx context.Context, sub *model.PushSubscription) error
	DeleteSubscription(ctx context.Context, endpoint string) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) GetProject(ctx context.Context, id int64) (*model.Project, error) {
	var project model.Project
	if err := s.db.WithContext(ctx).First(&project, id).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

func (s *gormStore) UpdateProjectBoundary(ctx context.Context, id int64, boundary model.Boundary) (*model.Project, error) {
	var project model.Project
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&project, id).Error; err != nil {
			return err
		}
		project.BoundaryCoordinates = boundary
		return tx.Save(&project).Error
	})
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (s *gormStore) GetLabourer(ctx context.Context, id int64) (*model.Labourer, error) {
	var labourer model.Labourer
	if err := s.db.WithContext(ctx).First(&labourer, id).Error; err != nil {
		return nil, err
	}
	return &labourer, nil
}

// GrantedCheckIn returns the labourer's SUCCESS or OVERRIDE attempt for the
// date, or gorm.ErrRecordNotFound when the labourer has not been granted
// access that day.
func (s *gormStore) GrantedCheckIn(ctx context.Context, labourerID int64, date string) (*model.CheckInAttempt, error) {
	var attempt model.CheckInAttempt
	err := s.db.WithContext(ctx).
		Where("labourer_id = ? AND attendance_date = ? AND status IN ?",
			labourerID, date, []model.CheckInStatus{model.CheckInSuccess, model.CheckInOverride}).
		Order("timestamp DESC").
		First(&attempt).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

// ActiveDenialLock returns the unresolved, still-locked denial for the
// labourer's attempts on the date, if any.
func (s *gormStore) ActiveDenialLock(ctx context.Context, labourerID int64, date string) (*model.CheckInDenial, error) {
	var denial model.CheckInDenial
	err := s.db.WithContext(ctx).
		Joins("JOIN check_in_attempts ON check_in_attempts.id = check_in_denials.check_in_attempt_id").
		Where("check_in_attempts.labourer_id = ? AND check_in_attempts.attendance_date = ?", labourerID, date).
		Where("check_in_denials.resolved = ? AND check_in_denials.system_lock_active = ?", false, true).
		Order("check_in_denials.id DESC").
		First(&denial).Error
	if err != nil {
		return nil, err
	}
	return &denial, nil
}

// CreateDecision persists a check-in decision atomically: the attempt, its
// denial (when denied) and the audit log row commit together or not at all.
func (s *gormStore) CreateDecision(ctx context.Context, attempt *model.CheckInAttempt, denial *model.CheckInDenial, logEntry *model.AttendanceLog) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(attempt).Error; err != nil {
			return fmt.Errorf("failed to create check-in attempt: %w", err)
		}
		if denial != nil {
			denial.CheckInAttemptID = attempt.ID
			if err := tx.Create(denial).Error; err != nil {
				return fmt.Errorf("failed to create check-in denial: %w", err)
			}
		}
		if logEntry != nil {
			if err := tx.Create(logEntry).Error; err != nil {
				return fmt.Errorf("failed to create attendance log: %w", err)
			}
		}
		return nil
	})
}

func (s *gormStore) GetCheckInAttempt(ctx context.Context, id int64) (*model.CheckInAttempt, error) {
	var attempt model.CheckInAttempt
	if err := s.db.WithContext(ctx).First(&attempt, id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (s *gormStore) GetDenialForAttempt(ctx context.Context, attemptID int64) (*model.CheckInDenial, error) {
	var denial model.CheckInDenial
	if err := s.db.WithContext(ctx).Where("check_in_attempt_id = ?", attemptID).First(&denial).Error; err != nil {
		return nil, err
	}
	return &denial, nil
}

// SaveResolution persists a supervisor's denial resolution: the annotated
// attempt and the denial row update together.
func (s *gormStore) SaveResolution(ctx context.Context, attempt *model.CheckInAttempt, denial *model.CheckInDenial) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(attempt).Error; err != nil {
			return fmt.Errorf("failed to save resolved attempt: %w", err)
		}
		if err := tx.Save(denial).Error; err != nil {
			return fmt.Errorf("failed to save denial resolution: %w", err)
		}
		return nil
	})
}

func (s *gormStore) CheckOutForCheckIn(ctx context.Context, checkInAttemptID int64) (*model.CheckOutAttempt, error) {
	var attempt model.CheckOutAttempt
	err := s.db.WithContext(ctx).
		Where("check_in_attempt_id = ?", checkInAttemptID).
		Order("id DESC").
		First(&attempt).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

// CreateCheckOut persists a check-out attempt with its audit log entry. A
// nil attempt writes the log entry alone (denied exits leave only a timeline
// row).
func (s *gormStore) CreateCheckOut(ctx context.Context, attempt *model.CheckOutAttempt, logEntry *model.AttendanceLog) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if attempt != nil {
			if err := tx.Create(attempt).Error; err != nil {
				return fmt.Errorf("failed to create check-out attempt: %w", err)
			}
		}
		if logEntry != nil {
			if err := tx.Create(logEntry).Error; err != nil {
				return fmt.Errorf("failed to create attendance log: %w", err)
			}
		}
		return nil
	})
}

func (s *gormStore) GetCheckOut(ctx context.Context, id int64) (*model.CheckOutAttempt, error) {
	var attempt model.CheckOutAttempt
	if err := s.db.WithContext(ctx).First(&attempt, id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (s *gormStore) SaveCheckOut(ctx context.Context, attempt *model.CheckOutAttempt) error {
	return s.db.WithContext(ctx).Save(attempt).Error
}

func (s *gormStore) ClosureExists(ctx context.Context, date string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.DailyClosureLog{}).
		Where("closure_date = ?", date).
		Count(&count).Error
	return count > 0, err
}

// UnresolvedCheckIns returns the granted check-ins for the date that have no
// completed check-out attempt.
func (s *gormStore) UnresolvedCheckIns(ctx context.Context, date string) ([]model.CheckInAttempt, error) {
	completed := s.db.Model(&model.CheckOutAttempt{}).
		Select("check_in_attempt_id").
		Where("attendance_date = ? AND completed_at IS NOT NULL", date)

	var attempts []model.CheckInAttempt
	err := s.db.WithContext(ctx).
		Where("attendance_date = ? AND status IN ?",
			date, []model.CheckInStatus{model.CheckInSuccess, model.CheckInOverride}).
		Where("id NOT IN (?)", completed).
		Find(&attempts).Error
	if err != nil {
		return nil, err
	}
	return attempts, nil
}

// CreateForcedCheckOut persists a closure-initiated checkout with its audit
// log and exception report in one transaction.
func (s *gormStore) CreateForcedCheckOut(ctx context.Context, attempt *model.CheckOutAttempt, logEntry *model.AttendanceLog, report *model.ExceptionReport) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(attempt).Error; err != nil {
			return fmt.Errorf("failed to create forced check-out: %w", err)
		}
		if err := tx.Create(logEntry).Error; err != nil {
			return fmt.Errorf("failed to create attendance log: %w", err)
		}
		if err := tx.Create(report).Error; err != nil {
			return fmt.Errorf("failed to create exception report: %w", err)
		}
		return nil
	})
}

func (s *gormStore) CountGrantedCheckIns(ctx context.Context, date string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.CheckInAttempt{}).
		Where("attendance_date = ? AND status IN ?",
			date, []model.CheckInStatus{model.CheckInSuccess, model.CheckInOverride}).
		Count(&count).Error
	return count, err
}

func (s *gormStore) CountCompletedCheckOuts(ctx context.Context, date string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.CheckOutAttempt{}).
		Where("attendance_date = ? AND completed_at IS NOT NULL", date).
		Count(&count).Error
	return count, err
}

// CreateClosureLog inserts the closure summary. A duplicate-date insert
// surfaces as gorm.ErrDuplicatedKey, which the aggregator treats as "already
// closed", not an error.
func (s *gormStore) CreateClosureLog(ctx context.Context, closure *model.DailyClosureLog) error {
	return s.db.WithContext(ctx).Create(closure).Error
}

func (s *gormStore) AttendanceHistory(ctx context.Context, labourerID int64, limit int) ([]model.AttendanceLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var logs []model.AttendanceLog
	err := s.db.WithContext(ctx).
		Where("labourer_id = ?", labourerID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *gormStore) GetDenial(ctx context.Context, id int64) (*model.CheckInDenial, error) {
	var denial model.CheckInDenial
	if err := s.db.WithContext(ctx).First(&denial, id).Error; err != nil {
		return nil, err
	}
	return &denial, nil
}

func (s *gormStore) MarkSupervisorNotified(ctx context.Context, denialID int64, at time.Time) error {
	return s.db.WithContext(ctx).Model(&model.CheckInDenial{}).
		Where("id = ?", denialID).
		Updates(map[string]any{
			"supervisor_notified":    true,
			"supervisor_notified_at": at,
		}).Error
}

func (s *gormStore) SubscriptionsForProject(ctx context.Context, projectID int64) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	err := s.db.WithContext(ctx).
		Joins("JOIN supervisors ON supervisors.id = push_subscriptions.supervisor_id").
		Where("supervisors.project_id = ? AND supervisors.is_active = ?", projectID, true).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (s *gormStore) GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	if err := s.db.WithContext(ctx).Where("endpoint = ?", endpoint).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *gormStore) UpsertSubscription(ctx context.Context, sub *model.PushSubscription) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "supervisor_id"}),
	}).Create(sub).Error
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	return s.db.WithContext(ctx).Where("endpoint = ?", endpoint).Delete(&model.PushSubscription{}).Error
}
