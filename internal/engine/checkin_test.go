package engine

import (
	"context"
	"errors"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"site-attendance-backend/internal/model"
)

func TestCheckIn_SuccessLocationOnly(t *testing.T) {
	s := newTestStore(t)
	project := seedProject(t, s, false)
	labourer := seedLabourer(t, s, project.ID, nil)

	e := NewCheckInEngine(s, 70, nil)
	e.now = func() time.Time { return testNow }

	result, err := e.CheckIn(context.Background(), CheckInRequest{
		LabourerID: labourer.ID,
		ProjectID:  project.ID,
		Latitude:   f64(insideLat),
		Longitude:  f64(insideLng),
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, model.CheckInSuccess, result.Status)
	assert.Nil(t, result.SimilarityScore)
	assert.NotZero(t, result.AttemptID)

	attempt, err := s.GetCheckInAttempt(context.Background(), result.AttemptID)
	require.NoError(t, err)
	assert.True(t, attempt.AccessGranted)
	assert.True(t, attempt.WithinGeofence)
	assert.Equal(t, "2025-03-10", attempt.AttendanceDate)

	logs, err := s.AttendanceHistory(context.Background(), labourer.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.LogCheckIn, logs[0].LogType)
	assert.Equal(t, model.VerifyLocation, logs[0].VerificationMethod)
	assert.True(t, logs[0].AccessGranted)
}

func TestCheckIn_ConcurrentSameDay(t *testing.T) {
	s := newTestStore(t)
	project := seedProject(t, s, false)
	labourer := seedLabourer(t, s, project.ID, nil)

	e := NewCheckInEngine(s, 70, nil)
	e.now = func() time.Time { return testNow }

	req := CheckInRequest{
		LabourerID: labourer.ID,
		ProjectID:  project.ID,
		Latitude:   f64(insideLat),
		Longitude:  f64(insideLng),
	}

	const attempts = 8
	results := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = e.CheckIn(context.Background(), req)
		}(i)
	}
	wg.Wait()

	var granted, duplicates int
	for _, err := range results {
		switch {
		case err == nil:
			granted++
		case errors.Is(err, ErrDuplicateCheckIn):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, granted)
	assert.Equal(t, attempts-1, duplicates)

	count, err := s.CountGrantedCheckIns(context.Background(), "2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestCheckIn_DuplicateSameDay(t *testing.T) {
	s := newTestStore(t)
	project := seedProject(t, s, false)
	labourer := seedLabourer(t, s, project.ID, nil)

	e := NewCheckInEngine(s, 70, nil)
	e.now = func() time.Time { return testNow }

	req := CheckInRequest{
		LabourerID: labourer.ID,
		ProjectID:  project.ID,
		Latitude:   f64(insideLat),
		Longitude:  f64(insideLng),
	}

	_, err := e.CheckIn(context.Background(), req)
	require.NoError(t, err)

	_, err = e.CheckIn(context.Background(), req)
	assert.ErrorIs(t, err, ErrDuplicateCheckIn)

	// The next day is a fresh slate.
	e.now = func() time.Time { return testNow.Add(24 * time.Hour) }
	result, err := e.CheckIn(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestCheckIn_OutsideGeofence(t *testing.T) {
	s := newTestStore(t)
	project := seedProject(t, s, false)
	labourer := seedLabourer(t, s, project.ID, nil)

	notifier := &recordingNotifier{}
	e := NewCheckInEngine(s, 70, notifier)
	e.now = func() time.Time { return testNow }

	req := CheckInRequest{
		LabourerID: labourer.ID,
		ProjectID:  project.ID,
		Latitude:   f64(outsideLat),
		Longitude:  f64(outsideLng),
	}

	result, err := e.CheckIn(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, model.CheckInFailed, result.Status)
	assert.Equal(t, model.DenialOutsideGeofence, result.DenialReason)
	require.NotNil(t, result.DistanceMeters)
	assert.Greater(t, *result.DistanceMeters, 0.0)
	assert.Contains(t, result.Message, "outside the project boundary")

	denial, err := s.GetDenialForAttempt(context.Background(), result.AttemptID)
	require.NoError(t, err)
	assert.True(t, denial.SystemLockActive)
	assert.False(t, denial.Resolved)
	assert.Equal(t, []int64{denial.ID}, notifier.ids)

	// The unresolved denial locks out further attempts, even from inside.
	_, err = e.CheckIn(context.Background(), CheckInRequest{
		LabourerID: labourer.ID,
		ProjectID:  project.ID,
		Latitude:   f64(insideLat),
		Longitude:  f64(insideLng),
	})
	assert.ErrorIs(t, err, ErrDenialLocked)
}

func TestCheckIn_IdentityMatch(t *testing.T) {
	s := newTestStore(t)
	project := seedProject(t, s, true)
	portrait := solidPNG(t, color.White)
	labourer := seedLabourer(t, s, project.ID, portrait)

	e := NewCheckInEngine(s, 70, nil)
	e.now = func() time.Time { return testNow }

	result, err := e.CheckIn(context.Background(), CheckInRequest{
		LabourerID:    labourer.ID,
		ProjectID:     project.ID,
		Latitude:      f64(insideLat),
		Longitude:     f64(insideLng),
		CapturedImage: solidPNG(t, color.White),
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	require.NotNil(t, result.SimilarityScore)
	assert.InDelta(t, 100.0, *result.SimilarityScore, 0.2)

	logs, err := s.AttendanceHistory(context.Background(), labourer.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.VerifyFaceLocation, logs[0].VerificationMethod)
}

func TestCheckIn_IdentityMismatch(t *testing.T) {
	s := newTestStore(t)
	project := seedProject(t, s, true)
	labourer := seedLabourer(t, s, project.ID, solidPNG(t, color.White))

	e := NewCheckInEngine(s, 70, nil)
	e.now = func() time.Time { return testNow }

	result, err := e.CheckIn(context.Background(), CheckInRequest{
		LabourerID:    labourer.ID,
		ProjectID:     project.ID,
		Latitude:      f64(insideLat),
		Longitude:     f64(insideLng),
		CapturedImage: solidPNG(t, color.Black),
	})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, model.DenialFaceMismatch, result.DenialReason)
	require.NotNil(t, result.SimilarityScore)
	assert.Less(t, *result.SimilarityScore, 70.0)
}

func TestCheckIn_RequiredImageMissing(t *testing.T) {
	s := newTestStore(t)
	project := seedProject(t, s, true)
	labourer := seedLabourer(t, s, project.ID, solidPNG(t, color.White))

	e := NewCheckInEngine(s, 70, nil)
	e.now = func() time.Time { return testNow }

	_, err := e.CheckIn(context.Background(), CheckInRequest{
		LabourerID: labourer.ID,
		ProjectID:  project.ID,
		Latitude:   f64(insideLat),
		Longitude:  f64(insideLng),
	})
	assert.ErrorIs(t, err, ErrValidation)

	// Validation failures leave no trail.
	logs, err := s.AttendanceHistory(context.Background(), labourer.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestCheckIn_MissingPortraitIsSystemError(t *testing.T) {
	s := newTestStore(t)
	project := seedProject(t, s, false)
	labourer := seedLabourer(t, s, project.ID, nil)

	e := NewCheckInEngine(s, 70, nil)
	e.now = func() time.Time { return testNow }

	result, err := e.CheckIn(context.Background(), CheckInRequest{
		LabourerID:    labourer.ID,
		ProjectID:     project.ID,
		Latitude:      f64(insideLat),
		Longitude:     f64(insideLng),
		CapturedImage: solidPNG(t, color.White),
	})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, model.DenialSystemError, result.DenialReason)
}

func TestCheckIn_Validation(t *testing.T) {
	s := newTestStore(t)
	project := seedProject(t, s, false)
	labourer := seedLabourer(t, s, project.ID, nil)

	terminated := seedLabourer(t, s, project.ID, nil)
	terminated.Status = model.LabourerTerminated
	require.NoError(t, s.DB().Save(terminated).Error)

	e := NewCheckInEngine(s, 70, nil)
	e.now = func() time.Time { return testNow }

	testCases := []struct {
		name    string
		req     CheckInRequest
		wantErr error
	}{
		{
			name: "missing project",
			req: CheckInRequest{
				LabourerID: labourer.ID,
				Latitude:   f64(insideLat),
				Longitude:  f64(insideLng),
			},
			wantErr: ErrValidation,
		},
		{
			name: "missing GPS",
			req: CheckInRequest{
				LabourerID: labourer.ID,
				ProjectID:  project.ID,
			},
			wantErr: ErrValidation,
		},
		{
			name: "unknown labourer",
			req: CheckInRequest{
				LabourerID: 999999,
				ProjectID:  project.ID,
				Latitude:   f64(insideLat),
				Longitude:  f64(insideLng),
			},
			wantErr: ErrNotFound,
		},
		{
			name: "unknown project",
			req: CheckInRequest{
				LabourerID: labourer.ID,
				ProjectID:  999999,
				Latitude:   f64(insideLat),
				Longitude:  f64(insideLng),
			},
			wantErr: ErrNotFound,
		},
		{
			name: "terminated labourer",
			req: CheckInRequest{
				LabourerID: terminated.ID,
				ProjectID:  project.ID,
				Latitude:   f64(insideLat),
				Longitude:  f64(insideLng),
			},
			wantErr: ErrValidation,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.CheckIn(context.Background(), tc.req)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestCheckIn_NoBoundaryFailsClosed(t *testing.T) {
	s := newTestStore(t)
	project := seedProject(t, s, false)
	project.BoundaryCoordinates = nil
	require.NoError(t, s.DB().Save(project).Error)

	labourer := seedLabourer(t, s, project.ID, nil)

	e := NewCheckInEngine(s, 70, nil)
	e.now = func() time.Time { return testNow }

	result, err := e.CheckIn(context.Background(), CheckInRequest{
		LabourerID: labourer.ID,
		ProjectID:  project.ID,
		Latitude:   f64(insideLat),
		Longitude:  f64(insideLng),
	})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, model.DenialOutsideGeofence, result.DenialReason)
	assert.Contains(t, result.Message, "No boundary configured")
}

func TestResolveDenial_Approve(t *testing.T) {
	s := newTestStore(t)
	project := seedProject(t, s, false)
	labourer := seedLabourer(t, s, project.ID, nil)

	e := NewCheckInEngine(s, 70, nil)
	e.now = func() time.Time { return testNow }

	denied, err := e.CheckIn(context.Background(), CheckInRequest{
		LabourerID: labourer.ID,
		ProjectID:  project.ID,
		Latitude:   f64(outsideLat),
		Longitude:  f64(outsideLng),
	})
	require.NoError(t, err)
	require.False(t, denied.Success)

	result, err := e.ResolveDenial(context.Background(), denied.AttemptID, ResolveApprove, "supervisor.jane")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, model.CheckInOverride, result.Status)

	attempt, err := s.GetCheckInAttempt(context.Background(), denied.AttemptID)
	require.NoError(t, err)
	assert.True(t, attempt.AccessGranted)
	assert.Equal(t, "supervisor.jane", attempt.OverrideBy)

	denial, err := s.GetDenialForAttempt(context.Background(), denied.AttemptID)
	require.NoError(t, err)
	assert.True(t, denial.Resolved)
	assert.False(t, denial.SystemLockActive)
	require.NotNil(t, denial.ResolvedAt)

	// Idempotent on repeat.
	again, err := e.ResolveDenial(context.Background(), denied.AttemptID, ResolveApprove, "supervisor.jane")
	require.NoError(t, err)
	assert.Equal(t, model.CheckInOverride, again.Status)

	// An OVERRIDE counts as the day's granted check-in.
	_, err = e.CheckIn(context.Background(), CheckInRequest{
		LabourerID: labourer.ID,
		ProjectID:  project.ID,
		Latitude:   f64(insideLat),
		Longitude:  f64(insideLng),
	})
	assert.ErrorIs(t, err, ErrDuplicateCheckIn)
}

func TestResolveDenial_Reject(t *testing.T) {
	s := newTestStore(t)
	project := seedProject(t, s, false)
	labourer := seedLabourer(t, s, project.ID, nil)

	e := NewCheckInEngine(s, 70, nil)
	e.now = func() time.Time { return testNow }

	denied, err := e.CheckIn(context.Background(), CheckInRequest{
		LabourerID: labourer.ID,
		ProjectID:  project.ID,
		Latitude:   f64(outsideLat),
		Longitude:  f64(outsideLng),
	})
	require.NoError(t, err)

	result, err := e.ResolveDenial(context.Background(), denied.AttemptID, ResolveReject, "supervisor.jane")
	require.NoError(t, err)
	assert.Equal(t, model.CheckInFailed, result.Status)

	// Rejection releases the lock; a fresh attempt from inside succeeds.
	retry, err := e.CheckIn(context.Background(), CheckInRequest{
		LabourerID: labourer.ID,
		ProjectID:  project.ID,
		Latitude:   f64(insideLat),
		Longitude:  f64(insideLng),
	})
	require.NoError(t, err)
	assert.True(t, retry.Success)
}

func TestResolveDenial_Validation(t *testing.T) {
	s := newTestStore(t)
	project := seedProject(t, s, false)
	labourer := seedLabourer(t, s, project.ID, nil)

	e := NewCheckInEngine(s, 70, nil)
	e.now = func() time.Time { return testNow }

	granted, err := e.CheckIn(context.Background(), CheckInRequest{
		LabourerID: labourer.ID,
		ProjectID:  project.ID,
		Latitude:   f64(insideLat),
		Longitude:  f64(insideLng),
	})
	require.NoError(t, err)

	_, err = e.ResolveDenial(context.Background(), granted.AttemptID, "promote", "supervisor.jane")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = e.ResolveDenial(context.Background(), 999999, ResolveApprove, "supervisor.jane")
	assert.ErrorIs(t, err, ErrNotFound)

	// A granted attempt has no denial to resolve.
	_, err = e.ResolveDenial(context.Background(), granted.AttemptID, ResolveApprove, "supervisor.jane")
	assert.ErrorIs(t, err, ErrValidation)
}
