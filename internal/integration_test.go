package internal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"site-attendance-backend/config"
	"site-attendance-backend/internal/api"
	"site-attendance-backend/internal/closure"
	"site-attendance-backend/internal/db"
	"site-attendance-backend/internal/engine"
	"site-attendance-backend/internal/model"
	"site-attendance-backend/internal/store"
)

// TestAttendanceLifecycle walks a labourer through the full day over HTTP:
// boundary setup, check-in, denial and override for a second labourer, the
// two-stage check-out and the end-of-day closure.
func TestAttendanceLifecycle(t *testing.T) {
	// --- Test Setup ---

	// 1. Setup an in-memory SQLite database for testing.
	testDB, err := gorm.Open(sqlite.Open("file:integration?mode=memory&cache=shared"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, _ := testDB.DB()
	defer sqlDB.Close()

	require.NoError(t, db.Migrate(testDB))

	appStore := store.NewGormStore(testDB)

	// 2. Seed a project and two labourers.
	project := &model.Project{
		Name:                   "Integration Site",
		SiteIdentifier:         "INT-001",
		Timezone:               "Africa/Nairobi",
		AutoCheckoutTime:       "20:00",
		OvertimeThresholdHours: 8,
		StandardShiftHours:     8,
		IsActive:               true,
	}
	require.NoError(t, testDB.Create(project).Error)

	worker := &model.Labourer{
		PublicID:     uuid.New(),
		SerialNumber: "EMP-2025-00001",
		FullName:     "Amos Kiprotich",
		NationalID:   "123456789",
		PhoneNumber:  "+254700000001",
		Status:       model.LabourerActive,
		Whitelisted:  true,
	}
	require.NoError(t, testDB.Create(worker).Error)

	straggler := &model.Labourer{
		PublicID:     uuid.New(),
		SerialNumber: "EMP-2025-00002",
		FullName:     "Grace Wanjiku",
		NationalID:   "987654321",
		PhoneNumber:  "+254700000002",
		Status:       model.LabourerActive,
		Whitelisted:  true,
	}
	require.NoError(t, testDB.Create(straggler).Error)

	// 3. Wire the engines and router the way main does.
	checkInEngine := engine.NewCheckInEngine(appStore, 70, nil)
	checkOutEngine := engine.NewCheckOutEngine(appStore, 70)
	aggregator := closure.NewAggregator(appStore)

	serverCfg := &config.ServerConfig{
		RateLimitPerSec: 1000,
		RateLimitBurst:  1000,
		CacheTTLSeconds: 1,
	}
	router := api.NewRouter(serverCfg, appStore, checkInEngine, checkOutEngine, aggregator,
		&webpush.Options{VAPIDPublicKey: "test-public-key"})

	do := func(method, path string, body any) *httptest.ResponseRecorder {
		t.Helper()
		var reader *bytes.Reader
		if body != nil {
			raw, err := json.Marshal(body)
			require.NoError(t, err)
			reader = bytes.NewReader(raw)
		} else {
			reader = bytes.NewReader(nil)
		}
		req, err := http.NewRequest(method, path, reader)
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	nairobi, err := time.LoadLocation("Africa/Nairobi")
	require.NoError(t, err)
	today := time.Now().In(nairobi).Format("2006-01-02")

	// --- Boundary setup ---

	w := do("PUT", fmt.Sprintf("/api/projects/%d/boundary", project.ID), jsonBody(
		"boundary_coordinates", [][2]float64{
			{-1.2850, 36.8150},
			{-1.2850, 36.8200},
			{-1.2900, 36.8200},
			{-1.2900, 36.8150},
		}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do("GET", fmt.Sprintf("/api/projects/%d/geofence", project.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var geofence map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &geofence))
	assert.Equal(t, true, geofence["has_boundary"])

	// --- Check-in ---

	checkInBody := jsonBody(
		"project_id", project.ID,
		"latitude", -1.2870,
		"longitude", 36.8175,
	)

	w = do("POST", fmt.Sprintf("/api/labourers/%d/checkin", worker.ID), checkInBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var checkInResult engine.CheckInResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &checkInResult))
	assert.True(t, checkInResult.Success)

	// A second check-in the same day conflicts.
	w = do("POST", fmt.Sprintf("/api/labourers/%d/checkin", worker.ID), checkInBody)
	assert.Equal(t, http.StatusConflict, w.Code)

	// --- Denial and supervisor override for the second labourer ---

	w = do("POST", fmt.Sprintf("/api/labourers/%d/checkin", straggler.ID), jsonBody(
		"project_id", project.ID,
		"latitude", -1.2000,
		"longitude", 36.9000,
	))
	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
	var denied engine.CheckInResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &denied))
	assert.Equal(t, model.DenialOutsideGeofence, denied.DenialReason)
	require.NotNil(t, denied.DistanceMeters)

	// Locked out until resolved.
	w = do("POST", fmt.Sprintf("/api/labourers/%d/checkin", straggler.ID), jsonBody(
		"project_id", project.ID,
		"latitude", -1.2870,
		"longitude", 36.8175,
	))
	assert.Equal(t, http.StatusLocked, w.Code)

	w = do("POST", fmt.Sprintf("/api/checkins/%d/resolve", denied.AttemptID), jsonBody(
		"action", "approve",
		"resolver", "supervisor.jane",
	))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resolved engine.ResolveResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resolved))
	assert.Equal(t, model.CheckInOverride, resolved.Status)

	// --- Two-stage check-out ---

	checkOutBody := jsonBody(
		"project_id", project.ID,
		"latitude", -1.2870,
		"longitude", 36.8175,
	)

	w = do("POST", fmt.Sprintf("/api/labourers/%d/checkout", worker.ID), checkOutBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var checkOutResult engine.CheckOutResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &checkOutResult))
	assert.True(t, checkOutResult.Success)
	assert.Equal(t, model.CheckoutEarly, checkOutResult.CheckoutType)

	// Security cannot act before the supervisor.
	w = do("POST", fmt.Sprintf("/api/checkouts/%d/stages/security", checkOutResult.CheckOutID), jsonBody(
		"status", "APPROVED",
		"actor", "gate.security",
	))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do("POST", fmt.Sprintf("/api/checkouts/%d/stages/supervisor", checkOutResult.CheckOutID), jsonBody(
		"status", "APPROVED",
		"actor", "supervisor.jane",
	))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do("POST", fmt.Sprintf("/api/checkouts/%d/stages/security", checkOutResult.CheckOutID), jsonBody(
		"status", "APPROVED",
		"actor", "gate.security",
	))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var stageResult engine.StageResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stageResult))
	assert.True(t, stageResult.Completed)

	// --- Audit timeline ---

	w = do("GET", fmt.Sprintf("/api/labourers/%d/attendance", worker.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history struct {
		Count int                   `json:"count"`
		Logs  []model.AttendanceLog `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	assert.Equal(t, 2, history.Count)

	// --- End-of-day closure ---

	w = do("POST", "/api/closure/run?date="+today, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var summary closure.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.False(t, summary.AlreadyClosed)
	assert.Equal(t, 2, summary.TotalCheckedIn)
	// The overridden straggler never checked out and gets forced.
	assert.Equal(t, 1, summary.ForcedCheckouts)

	w = do("POST", "/api/closure/run?date="+today, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.True(t, summary.AlreadyClosed)

	// --- Push subscriptions ---

	supervisor := &model.Supervisor{Username: "supervisor.jane", ProjectID: &project.ID, IsActive: true}
	require.NoError(t, testDB.Create(supervisor).Error)

	w = do("PUT", "/api/subscriptions", jsonBody(
		"endpoint", "https://push.example.com/integration",
		"p256dh", "key",
		"auth", "auth",
		"supervisor_id", supervisor.ID,
	))
	assert.Equal(t, http.StatusCreated, w.Code)

	w = do("GET", "/api/subscriptions?endpoint=https://push.example.com/integration", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do("DELETE", "/api/subscriptions", jsonBody("endpoint", "https://push.example.com/integration"))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do("GET", "/api/vapid_public_key", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test-public-key")
}

// jsonBody builds a map from alternating key/value pairs.
func jsonBody(pairs ...any) map[string]any {
	m := make(map[string]any, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		m[pairs[i].(string)] = pairs[i+1]
	}
	return m
}
