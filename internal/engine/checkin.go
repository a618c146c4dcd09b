// Package engine implements the attendance access-control decisions: the
// check-in grant/deny state machine, the two-stage check-out approval flow
// and supervisor denial resolution.
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
	"site-attendance-backend/internal/imagesim"
	"site-attendance-backend/internal/model"
	"site-attendance-backend/internal/store"
)

// DenialNotifier dispatches a supervisor alert for a freshly created denial.
// Delivery is asynchronous and best-effort; the decision does not wait on it.
type DenialNotifier interface {
	NotifyDenial(denialID int64)
}

// CheckInEngine orchestrates the geofence and identity checks into a
// grant/deny decision and persists the attempt, denial and audit rows.
type CheckInEngine struct {
	store           store.Store
	gatingThreshold float64
	locks           *keyedMutex
	notifier        DenialNotifier
	now             func() time.Time
}

// NewCheckInEngine creates a check-in engine. notifier may be nil when denial
// alerts are disabled.
func NewCheckInEngine(s store.Store, gatingThreshold float64, notifier DenialNotifier) *CheckInEngine {
	if gatingThreshold <= 0 {
		gatingThreshold = imagesim.DefaultGatingThreshold
	}
	return &CheckInEngine{
		store:           s,
		gatingThreshold: gatingThreshold,
		locks:           newKeyedMutex(),
		notifier:        notifier,
		now:             time.Now,
	}
}

// CheckInRequest is one inbound access request at entry.
type CheckInRequest struct {
	LabourerID    int64
	ProjectID     int64
	Latitude      *float64
	Longitude     *float64
	Accuracy      *float64
	CapturedImage []byte
}

// CheckInResult is the structured outcome of a decision. Denials are results,
// not errors: they carry the reason, the distance for geofence denials and
// the rounded similarity score for identity denials.
type CheckInResult struct {
	Success         bool               `json:"success"`
	Message         string             `json:"message"`
	AttemptID       int64              `json:"attempt_id,omitempty"`
	Status          model.CheckInStatus `json:"status"`
	DenialReason    model.DenialReason `json:"denial_reason,omitempty"`
	SimilarityScore *float64           `json:"similarity,omitempty"`
	DistanceMeters  *float64           `json:"distance_meters,omitempty"`
}

// subjects bundles the two records every decision resolves first.
type subjects struct {
	labourer *model.Labourer
	project  *model.Project
	date     string
	when     time.Time
}

// resolveSubjects validates the request preconditions and loads the labourer
// and project. Every failure here is a caller mistake: no audit rows.
func resolveSubjects(ctx context.Context, s store.Store, labourerID, projectID int64, lat, lng *float64, now time.Time) (*subjects, error) {
	if projectID <= 0 {
		return nil, fmt.Errorf("%w: project selection is required", ErrValidation)
	}
	if lat == nil || lng == nil {
		return nil, fmt.Errorf("%w: GPS location is required, please enable location services", ErrValidation)
	}

	labourer, err := s.GetLabourer(ctx, labourerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: labourer %d", ErrNotFound, labourerID)
		}
		return nil, fmt.Errorf("failed to load labourer %d: %w", labourerID, err)
	}
	if labourer.Status == model.LabourerTerminated {
		return nil, fmt.Errorf("%w: labourer is terminated", ErrValidation)
	}

	project, err := s.GetProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: project %d", ErrNotFound, projectID)
		}
		return nil, fmt.Errorf("failed to load project %d: %w", projectID, err)
	}

	when := now
	if loc, err := time.LoadLocation(project.Timezone); err == nil {
		when = now.In(loc)
	}

	return &subjects{
		labourer: labourer,
		project:  project,
		date:     when.Format("2006-01-02"),
		when:     when,
	}, nil
}

// identityOutcome is the result of the optional identity check.
type identityOutcome struct {
	checked bool
	score   *float64
	method  model.VerificationMethod
	// reason is set when the check denies access.
	reason  model.DenialReason
	details string
}

// runIdentityCheck applies the project's identity policy. The check runs only
// when a captured image was supplied; whether one MUST be supplied is the
// project's identity_check_required flag, validated by the caller.
func runIdentityCheck(labourer *model.Labourer, captured []byte, threshold float64) identityOutcome {
	if len(captured) == 0 {
		return identityOutcome{method: model.VerifyLocation}
	}

	if !labourer.HasPortrait() {
		return identityOutcome{
			checked: true,
			method:  model.VerifyFaceLocation,
			reason:  model.DenialSystemError,
			details: "labourer has no registered portrait photo",
		}
	}

	res := imagesim.Compare(captured, labourer.Portrait)
	if res.Err != nil {
		return identityOutcome{
			checked: true,
			method:  model.VerifyFaceLocation,
			reason:  model.DenialSystemError,
			details: fmt.Sprintf("image comparison failed: %v", res.Err),
		}
	}

	score := math.Round(res.SimilarityScore*10) / 10
	out := identityOutcome{
		checked: true,
		score:   &score,
		method:  model.VerifyFaceLocation,
	}
	if !res.IsSimilar(threshold) {
		out.reason = model.DenialFaceMismatch
		out.details = fmt.Sprintf("similarity %.1f%% below the %.0f%% threshold", score, threshold)
	}
	return out
}

// CheckIn runs the full decision state machine for one entry request.
//
// The location check short-circuits the identity check: no similarity score
// is computed, or leaked, for a request outside the geofence. A granted
// decision and its audit rows commit atomically; a request for a labourer who
// already holds a granted check-in today is rejected before any side effect.
func (e *CheckInEngine) CheckIn(ctx context.Context, req CheckInRequest) (*CheckInResult, error) {
	subj, err := resolveSubjects(ctx, e.store, req.LabourerID, req.ProjectID, req.Latitude, req.Longitude, e.now().UTC())
	if err != nil {
		return nil, err
	}

	e.locks.Lock(req.LabourerID)
	defer e.locks.Unlock(req.LabourerID)

	// A still-locked denial blocks further attempts until a supervisor
	// resolves it.
	if _, err := e.store.ActiveDenialLock(ctx, req.LabourerID, subj.date); err == nil {
		return nil, ErrDenialLocked
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to query denial lock: %w", err)
	}

	// LOCATION_CHECK.
	point := geo.Point{Lat: *req.Latitude, Lng: *req.Longitude}
	fence := geo.ValidateFence(point, subj.project.BoundaryCoordinates.Points())
	if !fence.Granted {
		return e.deny(ctx, req, subj, fence, identityOutcome{method: model.VerifyLocation}, model.DenialOutsideGeofence, fence.Message)
	}

	// IDENTITY_CHECK, gated by the project's policy flag.
	if subj.project.IdentityCheckRequired && len(req.CapturedImage) == 0 {
		return nil, fmt.Errorf("%w: this project requires a captured photo for check-in", ErrValidation)
	}
	identity := runIdentityCheck(subj.labourer, req.CapturedImage, e.gatingThreshold)
	if identity.reason != "" {
		if identity.reason == model.DenialSystemError {
			log.Printf("check-in system error: labourer=%d project=%d stage=identity: %s",
				subj.labourer.ID, subj.project.ID, identity.details)
		}
		return e.deny(ctx, req, subj, fence, identity, identity.reason, identity.details)
	}

	// Duplicate-day rule: checked under the per-labourer lock, before any
	// side effect is persisted.
	if _, err := e.store.GrantedCheckIn(ctx, req.LabourerID, subj.date); err == nil {
		return nil, ErrDuplicateCheckIn
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to query existing check-in: %w", err)
	}

	attempt := e.newAttempt(req, subj, fence, identity)
	attempt.Status = model.CheckInSuccess
	attempt.AccessGranted = true

	logEntry := newLogEntry(subj, model.LogCheckIn, identity.method, req, true, identity.score)

	if err := e.store.CreateDecision(ctx, attempt, nil, logEntry); err != nil {
		return nil, fmt.Errorf("failed to persist check-in decision: %w", err)
	}

	msg := fmt.Sprintf("%s checked in successfully at %s", subj.labourer.FullName, subj.project.Name)
	if identity.score != nil {
		msg = fmt.Sprintf("%s (similarity %.1f%%)", msg, *identity.score)
	}
	return &CheckInResult{
		Success:         true,
		Message:         msg,
		AttemptID:       attempt.ID,
		Status:          attempt.Status,
		SimilarityScore: identity.score,
	}, nil
}

// deny persists the FAILED attempt, its denial row and the audit log entry,
// dispatches the supervisor alert and returns the structured denial.
func (e *CheckInEngine) deny(ctx context.Context, req CheckInRequest, subj *subjects, fence geo.FenceResult, identity identityOutcome, reason model.DenialReason, details string) (*CheckInResult, error) {
	attempt := e.newAttempt(req, subj, fence, identity)
	attempt.Status = model.CheckInFailed
	attempt.AccessGranted = false

	denial := &model.CheckInDenial{
		Reason:           reason,
		Details:          details,
		SystemLockActive: true,
	}
	logEntry := newLogEntry(subj, model.LogCheckIn, identity.method, req, false, identity.score)
	logEntry.Notes = details

	if err := e.store.CreateDecision(ctx, attempt, denial, logEntry); err != nil {
		return nil, fmt.Errorf("failed to persist denial: %w", err)
	}

	if e.notifier != nil {
		e.notifier.NotifyDenial(denial.ID)
	}

	result := &CheckInResult{
		Success:         false,
		Message:         fmt.Sprintf("Check-in denied: %s", details),
		AttemptID:       attempt.ID,
		Status:          attempt.Status,
		DenialReason:    reason,
		SimilarityScore: identity.score,
	}
	if reason == model.DenialOutsideGeofence {
		d := fence.DistanceMeters
		result.DistanceMeters = &d
	}
	return result, nil
}

func (e *CheckInEngine) newAttempt(req CheckInRequest, subj *subjects, fence geo.FenceResult, identity identityOutcome) *model.CheckInAttempt {
	return &model.CheckInAttempt{
		LabourerID:           subj.labourer.ID,
		ProjectID:            subj.project.ID,
		AttendanceDate:       subj.date,
		Timestamp:            subj.when,
		Latitude:             *req.Latitude,
		Longitude:            *req.Longitude,
		Accuracy:             req.Accuracy,
		CapturedImage:        req.CapturedImage,
		SimilarityScore:      identity.score,
		WithinGeofence:       fence.Granted,
		DistanceMeters:       fence.DistanceMeters,
		WhitelistValid:       subj.labourer.Whitelisted,
		WithinOperatingHours: true,
	}
}

func newLogEntry(subj *subjects, logType model.LogType, method model.VerificationMethod, req CheckInRequest, granted bool, score *float64) *model.AttendanceLog {
	return &model.AttendanceLog{
		LabourerID:         subj.labourer.ID,
		ProjectID:          subj.project.ID,
		LogType:            logType,
		AttendanceDate:     subj.date,
		Timestamp:          subj.when,
		VerificationMethod: method,
		Latitude:           req.Latitude,
		Longitude:          req.Longitude,
		LocationAccuracy:   req.Accuracy,
		LocationVerified:   granted,
		SimilarityScore:    score,
		AccessGranted:      granted,
	}
}

// ResolveAction is a supervisor's verdict on a denied attempt.
type ResolveAction string

const (
	ResolveApprove ResolveAction = "approve"
	ResolveReject  ResolveAction = "reject"
)

// ResolveResult reports the outcome of a denial resolution.
type ResolveResult struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Status  model.CheckInStatus `json:"status"`
}

// ResolveDenial applies a supervisor's verdict to a denied attempt.
//
// Approval moves the attempt to OVERRIDE and releases the denial lock;
// rejection keeps it FAILED and annotates the resolver. Re-applying the same
// action is a no-op, never an error. The attempt never re-enters the
// location or identity checks.
func (e *CheckInEngine) ResolveDenial(ctx context.Context, attemptID int64, action ResolveAction, resolver string) (*ResolveResult, error) {
	if action != ResolveApprove && action != ResolveReject {
		return nil, fmt.Errorf("%w: unknown action %q", ErrValidation, action)
	}

	attempt, err := e.store.GetCheckInAttempt(ctx, attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: check-in attempt %d", ErrNotFound, attemptID)
		}
		return nil, fmt.Errorf("failed to load attempt %d: %w", attemptID, err)
	}

	denial, err := e.store.GetDenialForAttempt(ctx, attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: attempt %d was not denied", ErrValidation, attemptID)
		}
		return nil, fmt.Errorf("failed to load denial for attempt %d: %w", attemptID, err)
	}

	now := e.now().UTC()

	if action == ResolveApprove {
		if attempt.Status == model.CheckInOverride {
			return &ResolveResult{Success: true, Message: "check-in already approved", Status: attempt.Status}, nil
		}
		attempt.Status = model.CheckInOverride
		attempt.AccessGranted = true
		attempt.OverrideBy = resolver
		attempt.OverrideReason = fmt.Sprintf("Approved by %s", resolver)

		denial.Resolved = true
		denial.ResolvedBy = resolver
		denial.ResolvedAt = &now
		denial.ResolutionNotes = attempt.OverrideReason
		denial.SystemLockActive = false
		denial.LockReleasedAt = &now
		denial.LockReleasedBy = resolver
	} else {
		if denial.Resolved && attempt.Status == model.CheckInFailed {
			return &ResolveResult{Success: true, Message: "check-in already rejected", Status: attempt.Status}, nil
		}
		attempt.Status = model.CheckInFailed
		attempt.AccessGranted = false
		attempt.OverrideBy = resolver
		attempt.OverrideReason = fmt.Sprintf("Rejected by %s", resolver)

		denial.Resolved = true
		denial.ResolvedBy = resolver
		denial.ResolvedAt = &now
		denial.ResolutionNotes = attempt.OverrideReason
		denial.SystemLockActive = false
		denial.LockReleasedAt = &now
		denial.LockReleasedBy = resolver
	}

	if err := e.store.SaveResolution(ctx, attempt, denial); err != nil {
		return nil, fmt.Errorf("failed to save resolution: %w", err)
	}

	verb := "approved"
	if action == ResolveReject {
		verb = "rejected"
	}
	return &ResolveResult{
		Success: true,
		Message: fmt.Sprintf("check-in %s for labourer %d", verb, attempt.LabourerID),
		Status:  attempt.Status,
	}, nil
}
