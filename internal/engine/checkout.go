package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"gorm.io/gorm"

	"site-attendance-backend/internal/geo"
	"site-attendance-backend/internal/model"
	"site-attendance-backend/internal/store"
)

// CheckOutEngine orchestrates exit verification and the two-stage
// (supervisor then security) approval state machine.
type CheckOutEngine struct {
	store           store.Store
	gatingThreshold float64
	locks           *keyedMutex
	now             func() time.Time
}

// NewCheckOutEngine creates a check-out engine.
func NewCheckOutEngine(s store.Store, gatingThreshold float64) *CheckOutEngine {
	return &CheckOutEngine{
		store:           s,
		gatingThreshold: gatingThreshold,
		locks:           newKeyedMutex(),
		now:             time.Now,
	}
}

// CheckOutRequest is one inbound exit request.
type CheckOutRequest struct {
	LabourerID    int64
	ProjectID     int64
	Latitude      *float64
	Longitude     *float64
	Accuracy      *float64
	CapturedImage []byte
}

// CheckOutResult is the structured outcome of an exit request.
type CheckOutResult struct {
	Success         bool               `json:"success"`
	Message         string             `json:"message"`
	CheckOutID      int64              `json:"check_out_id,omitempty"`
	CheckoutType    model.CheckoutType `json:"checkout_type,omitempty"`
	SimilarityScore *float64           `json:"similarity,omitempty"`
	DistanceMeters  *float64           `json:"distance_meters,omitempty"`
	HasOvertime     bool               `json:"has_overtime"`
	OvertimeMinutes int                `json:"overtime_minutes,omitempty"`
	TotalHours      float64            `json:"total_hours"`
}

// CheckOut initiates the exit flow: it verifies location (and identity, per
// the project's policy), pairs the request with the day's granted check-in,
// computes overtime and creates the two-stage approval record with both
// stages PENDING.
func (e *CheckOutEngine) CheckOut(ctx context.Context, req CheckOutRequest) (*CheckOutResult, error) {
	subj, err := resolveSubjects(ctx, e.store, req.LabourerID, req.ProjectID, req.Latitude, req.Longitude, e.now().UTC())
	if err != nil {
		return nil, err
	}

	e.locks.Lock(req.LabourerID)
	defer e.locks.Unlock(req.LabourerID)

	checkIn, err := e.store.GrantedCheckIn(ctx, req.LabourerID, subj.date)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no active check-in for %s today", ErrNotFound, subj.labourer.FullName)
		}
		return nil, fmt.Errorf("failed to query check-in: %w", err)
	}

	if existing, err := e.store.CheckOutForCheckIn(ctx, checkIn.ID); err == nil {
		if existing.Completed() {
			return nil, fmt.Errorf("%w: already checked out today", ErrDuplicateCheckOut)
		}
		return nil, fmt.Errorf("%w: check-out already initiated, awaiting approvals", ErrDuplicateCheckOut)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to query existing check-out: %w", err)
	}

	// Location check, same fail-closed policy as check-in.
	point := geo.Point{Lat: *req.Latitude, Lng: *req.Longitude}
	fence := geo.ValidateFence(point, subj.project.BoundaryCoordinates.Points())
	if !fence.Granted {
		e.auditExitDenial(ctx, subj, req, model.VerifyLocation, nil, fence.Message)
		d := fence.DistanceMeters
		return &CheckOutResult{
			Success:        false,
			Message:        fmt.Sprintf("Check-out denied: %s", fence.Message),
			DistanceMeters: &d,
		}, nil
	}

	if subj.project.IdentityCheckRequired && len(req.CapturedImage) == 0 {
		return nil, fmt.Errorf("%w: this project requires a captured photo for check-out", ErrValidation)
	}
	identity := runIdentityCheck(subj.labourer, req.CapturedImage, e.gatingThreshold)
	if identity.reason != "" {
		e.auditExitDenial(ctx, subj, req, identity.method, identity.score, identity.details)
		return &CheckOutResult{
			Success:         false,
			Message:         fmt.Sprintf("Check-out denied: %s", identity.details),
			SimilarityScore: identity.score,
		}, nil
	}

	elapsed := subj.when.Sub(checkIn.Timestamp)
	totalHours := elapsed.Hours()
	hasOvertime, overtimeMinutes := overtime(totalHours, subj.project.OvertimeThresholdHours)

	attempt := &model.CheckOutAttempt{
		LabourerID:       subj.labourer.ID,
		ProjectID:        subj.project.ID,
		CheckInAttemptID: checkIn.ID,
		AttendanceDate:   subj.date,
		InitiatedAt:      subj.when,
		Latitude:         *req.Latitude,
		Longitude:        *req.Longitude,
		SimilarityScore:  identity.score,
		SupervisorStatus: model.StagePending,
		SecurityStatus:   model.StagePending,
		HasOvertime:      hasOvertime,
		OvertimeMinutes:  overtimeMinutes,
		CheckoutType:     resolveCheckoutType(false, hasOvertime, totalHours, subj.project.StandardShiftHours),
		TotalHours:       math.Round(totalHours*100) / 100,
	}

	logEntry := newLogEntry(subj, model.LogCheckOut, identity.method, CheckInRequest(req), true, identity.score)
	if err := e.store.CreateCheckOut(ctx, attempt, logEntry); err != nil {
		return nil, fmt.Errorf("failed to persist check-out: %w", err)
	}

	return &CheckOutResult{
		Success:         true,
		Message:         fmt.Sprintf("%s check-out initiated at %s, awaiting supervisor approval", subj.labourer.FullName, subj.project.Name),
		CheckOutID:      attempt.ID,
		CheckoutType:    attempt.CheckoutType,
		SimilarityScore: identity.score,
		HasOvertime:     hasOvertime,
		OvertimeMinutes: overtimeMinutes,
		TotalHours:      attempt.TotalHours,
	}, nil
}

// auditExitDenial appends the denied exit to the attendance timeline. Exit
// denials have no separate denial table; the append-only log is the audit
// record.
func (e *CheckOutEngine) auditExitDenial(ctx context.Context, subj *subjects, req CheckOutRequest, method model.VerificationMethod, score *float64, details string) {
	logEntry := newLogEntry(subj, model.LogCheckOut, method, CheckInRequest(req), false, score)
	logEntry.Notes = details
	if err := e.store.CreateCheckOut(ctx, nil, logEntry); err != nil {
		// The decision already stands; losing the audit row is logged, not fatal.
		log.Printf("failed to audit exit denial for labourer %d: %v", subj.labourer.ID, err)
	}
}

// overtime computes the overtime flag and minutes past the project threshold.
func overtime(totalHours float64, thresholdHours int) (bool, int) {
	if thresholdHours <= 0 || totalHours <= float64(thresholdHours) {
		return false, 0
	}
	return true, int(math.Round((totalHours - float64(thresholdHours)) * 60))
}

// resolveCheckoutType classifies the checkout. FORCED wins over everything:
// it marks closure-initiated checkouts, not live requests.
func resolveCheckoutType(forced, hasOvertime bool, totalHours float64, standardShiftHours int) model.CheckoutType {
	switch {
	case forced:
		return model.CheckoutForced
	case hasOvertime:
		return model.CheckoutOvertime
	case totalHours < float64(standardShiftHours):
		return model.CheckoutEarly
	default:
		return model.CheckoutNormal
	}
}

// Stage identifies one of the two approval stages.
type Stage string

const (
	StageSupervisor Stage = "supervisor"
	StageSecurity   Stage = "security"
)

// StageAction is one approver's update to their stage.
type StageAction struct {
	Status model.StageStatus
	Actor  string
	Notes  string
	Photo  []byte

	// ApproveOvertime marks the explicit overtime sign-off; only meaningful
	// on an approving security-stage action.
	ApproveOvertime bool
	OvertimeRemarks string
}

// StageResult reports the attempt's stage states after an update.
type StageResult struct {
	Success          bool              `json:"success"`
	Message          string            `json:"message"`
	SupervisorStatus model.StageStatus `json:"supervisor_status"`
	SecurityStatus   model.StageStatus `json:"security_status"`
	Completed        bool              `json:"completed"`
}

// ApplyStage applies an approver's action to one stage of a check-out.
//
// The security stage is unreachable until the supervisor stage is APPROVED.
// Re-applying a stage's current status is a no-op. Once both stages are
// resolved (or the attempt was forced) the attempt is terminal and further
// updates are rejected.
func (e *CheckOutEngine) ApplyStage(ctx context.Context, checkOutID int64, stage Stage, action StageAction) (*StageResult, error) {
	switch action.Status {
	case model.StageApproved, model.StageRejected, model.StageEscalated:
	default:
		return nil, fmt.Errorf("%w: invalid stage status %q", ErrValidation, action.Status)
	}

	attempt, err := e.store.GetCheckOut(ctx, checkOutID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: check-out %d", ErrNotFound, checkOutID)
		}
		return nil, fmt.Errorf("failed to load check-out %d: %w", checkOutID, err)
	}

	now := e.now().UTC()

	switch stage {
	case StageSupervisor:
		if attempt.SupervisorStatus == action.Status {
			return stageResult(attempt, "no change"), nil
		}
		if attempt.Completed() {
			return nil, fmt.Errorf("%w: check-out is already completed", ErrValidation)
		}
		attempt.SupervisorStatus = action.Status
		attempt.SupervisorBy = action.Actor
		attempt.SupervisorTime = &now
		attempt.SupervisorNotes = action.Notes
		if len(action.Photo) > 0 {
			attempt.SupervisorPhoto = action.Photo
		}

	case StageSecurity:
		if attempt.SupervisorStatus != model.StageApproved {
			return nil, fmt.Errorf("%w: security stage requires supervisor approval first", ErrValidation)
		}
		if attempt.SecurityStatus == action.Status {
			return stageResult(attempt, "no change"), nil
		}
		if attempt.Completed() {
			return nil, fmt.Errorf("%w: check-out is already completed", ErrValidation)
		}
		attempt.SecurityStatus = action.Status
		attempt.SecurityBy = action.Actor
		attempt.SecurityTime = &now
		attempt.SecurityNotes = action.Notes
		if len(action.Photo) > 0 {
			attempt.SecurityPhoto = action.Photo
		}
		if action.Status == model.StageApproved && action.ApproveOvertime && attempt.HasOvertime {
			attempt.OvertimeApproved = true
			attempt.OvertimeApprover = action.Actor
			attempt.OvertimeApprovalTime = &now
			attempt.OvertimeRemarks = action.OvertimeRemarks
		}

	default:
		return nil, fmt.Errorf("%w: unknown stage %q", ErrValidation, stage)
	}

	if attempt.StagesResolved() && attempt.CompletedAt == nil {
		attempt.CompletedAt = &now
	}

	if err := e.store.SaveCheckOut(ctx, attempt); err != nil {
		return nil, fmt.Errorf("failed to save stage update: %w", err)
	}

	msg := fmt.Sprintf("%s stage set to %s", stage, action.Status)
	if attempt.Completed() {
		msg = fmt.Sprintf("%s; check-out completed", msg)
	}
	return stageResult(attempt, msg), nil
}

func stageResult(attempt *model.CheckOutAttempt, msg string) *StageResult {
	return &StageResult{
		Success:          true,
		Message:          msg,
		SupervisorStatus: attempt.SupervisorStatus,
		SecurityStatus:   attempt.SecurityStatus,
		Completed:        attempt.Completed(),
	}
}
