// Package closure implements the end-of-day reconciliation job: it forces
// check-outs for anyone still on site past the auto-checkout deadline, raises
// exception reports and writes the single closure summary for the date.
package closure

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"gorm.io/gorm"

	"site-attendance-backend/internal/model"
	"site-attendance-backend/internal/store"
)

// systemActor is recorded as the approver on closure-forced stages.
const systemActor = "system"

// Aggregator runs the daily closure for a calendar date.
type Aggregator struct {
	store store.Store
	now   func() time.Time
}

// NewAggregator creates a closure aggregator.
func NewAggregator(s store.Store) *Aggregator {
	return &Aggregator{store: s, now: time.Now}
}

// Summary reports what one closure run did.
type Summary struct {
	Date            string `json:"date"`
	AlreadyClosed   bool   `json:"already_closed"`
	TotalCheckedIn  int    `json:"total_checked_in"`
	TotalCheckedOut int    `json:"total_checked_out"`
	ForcedCheckouts int    `json:"forced_checkouts"`
	Exceptions      int    `json:"exceptions"`
}

// RunForDate closes the given calendar date ("YYYY-MM-DD").
//
// Re-running for an already-closed date is a no-op. Two concurrent runs for
// the same date are serialized by the closure_date unique constraint: the
// loser's insert fails with a duplicate key, which is reported as "already
// closed", not an error.
func (a *Aggregator) RunForDate(ctx context.Context, date string) (*Summary, error) {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, fmt.Errorf("invalid closure date %q: %w", date, err)
	}

	exists, err := a.store.ClosureExists(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing closure: %w", err)
	}
	if exists {
		return &Summary{Date: date, AlreadyClosed: true}, nil
	}

	open, err := a.store.UnresolvedCheckIns(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list unresolved check-ins: %w", err)
	}

	now := a.now().UTC()
	projects := make(map[int64]*model.Project)
	forced := 0
	exceptions := 0

	for _, checkIn := range open {
		project, ok := projects[checkIn.ProjectID]
		if !ok {
			project, err = a.store.GetProject(ctx, checkIn.ProjectID)
			if err != nil {
				log.Printf("closure: skipping check-in %d, cannot load project %d: %v", checkIn.ID, checkIn.ProjectID, err)
				continue
			}
			projects[checkIn.ProjectID] = project
		}

		if err := a.forceCheckOut(ctx, &checkIn, project, date, now); err != nil {
			return nil, err
		}
		forced++
		exceptions++
	}

	checkedIn, err := a.store.CountGrantedCheckIns(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("failed to count check-ins: %w", err)
	}
	checkedOut, err := a.store.CountCompletedCheckOuts(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("failed to count check-outs: %w", err)
	}

	closureLog := &model.DailyClosureLog{
		ClosureDate:       date,
		TotalCheckedIn:    int(checkedIn),
		TotalCheckedOut:   int(checkedOut),
		ForcedCheckouts:   forced,
		ExceptionsCount:   exceptions,
		ProcessedBySystem: true,
	}
	if err := a.store.CreateClosureLog(ctx, closureLog); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// A concurrent run won the insert race; the date is closed.
			return &Summary{Date: date, AlreadyClosed: true}, nil
		}
		return nil, fmt.Errorf("failed to create closure log: %w", err)
	}

	return &Summary{
		Date:            date,
		TotalCheckedIn:  closureLog.TotalCheckedIn,
		TotalCheckedOut: closureLog.TotalCheckedOut,
		ForcedCheckouts: forced,
		Exceptions:      exceptions,
	}, nil
}

// forceCheckOut creates the FORCED check-out (both stages system-approved),
// the Forced-Check-Out timeline entry and the Missed Check-Out exception for
// one outstanding check-in.
func (a *Aggregator) forceCheckOut(ctx context.Context, checkIn *model.CheckInAttempt, project *model.Project, date string, now time.Time) error {
	totalHours := now.Sub(checkIn.Timestamp).Hours()
	hasOvertime := project.OvertimeThresholdHours > 0 && totalHours > float64(project.OvertimeThresholdHours)
	overtimeMinutes := 0
	if hasOvertime {
		overtimeMinutes = int(math.Round((totalHours - float64(project.OvertimeThresholdHours)) * 60))
	}

	attempt := &model.CheckOutAttempt{
		LabourerID:       checkIn.LabourerID,
		ProjectID:        checkIn.ProjectID,
		CheckInAttemptID: checkIn.ID,
		AttendanceDate:   date,
		InitiatedAt:      now,
		SupervisorStatus: model.StageApproved,
		SupervisorBy:     systemActor,
		SupervisorTime:   &now,
		SupervisorNotes:  "auto-approved by daily closure",
		SecurityStatus:   model.StageApproved,
		SecurityBy:       systemActor,
		SecurityTime:     &now,
		SecurityNotes:    "auto-approved by daily closure",
		HasOvertime:      hasOvertime,
		OvertimeMinutes:  overtimeMinutes,
		CheckoutType:     model.CheckoutForced,
		TotalHours:       math.Round(totalHours*100) / 100,
		CompletedAt:      &now,
	}

	logEntry := &model.AttendanceLog{
		LabourerID:         checkIn.LabourerID,
		ProjectID:          checkIn.ProjectID,
		LogType:            model.LogForcedCheckOut,
		AttendanceDate:     date,
		Timestamp:          now,
		VerificationMethod: model.VerifySystem,
		AccessGranted:      true,
		Notes:              "forced check-out by daily closure",
	}

	report := &model.ExceptionReport{
		LabourerID:    checkIn.LabourerID,
		ProjectID:     checkIn.ProjectID,
		ExceptionDate: date,
		ExceptionType: model.ExceptionMissedCheckOut,
		Description: fmt.Sprintf("labourer did not check out; forced at %s after %.1f hours on site",
			now.Format(time.RFC3339), totalHours),
		Severity: missedCheckOutSeverity(deadlineFor(project, date), now),
	}

	if err := a.store.CreateForcedCheckOut(ctx, attempt, logEntry, report); err != nil {
		return fmt.Errorf("failed to force check-out for labourer %d: %w", checkIn.LabourerID, err)
	}
	return nil
}

// deadlineFor resolves the project's auto-checkout deadline for the date in
// the project's timezone.
func deadlineFor(project *model.Project, date string) time.Time {
	loc, err := time.LoadLocation(project.Timezone)
	if err != nil {
		loc = time.UTC
	}
	deadline, err := time.ParseInLocation("2006-01-02 15:04", date+" "+project.AutoCheckoutTime, loc)
	if err != nil {
		deadline, _ = time.ParseInLocation("2006-01-02 15:04", date+" 20:00", loc)
	}
	return deadline
}

// missedCheckOutSeverity ranks how far past the auto-checkout deadline the
// labourer was caught.
func missedCheckOutSeverity(deadline, now time.Time) model.Severity {
	past := now.Sub(deadline)
	switch {
	case past >= 4*time.Hour:
		return model.SeverityHigh
	case past >= 2*time.Hour:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}
