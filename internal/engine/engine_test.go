package engine

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"site-attendance-backend/internal/db"
	"site-attendance-backend/internal/model"
	"site-attendance-backend/internal/store"
)

// A small quadrilateral site in Nairobi, roughly 550m x 550m.
var siteBoundary = model.Boundary{
	{-1.2850, 36.8150},
	{-1.2850, 36.8200},
	{-1.2900, 36.8200},
	{-1.2900, 36.8150},
}

const (
	insideLat  = -1.2870
	insideLng  = 36.8175
	outsideLat = -1.2000
	outsideLng = 36.9000
)

// testNow is 09:00 in Africa/Nairobi (UTC+3) on a Monday.
var testNow = time.Date(2025, 3, 10, 6, 0, 0, 0, time.UTC)

var testDBSeq atomic.Int64

// newTestStore opens a uniquely named in-memory SQLite database so parallel
// tests never share state.
func newTestStore(t *testing.T) store.Store {
	t.Helper()

	dsn := fmt.Sprintf("file:engine_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(gormDB))
	return store.NewGormStore(gormDB)
}

func seedProject(t *testing.T, s store.Store, identityRequired bool) *model.Project {
	t.Helper()
	project := &model.Project{
		Name:                   fmt.Sprintf("Westlands Tower %d", testDBSeq.Load()),
		SiteIdentifier:         fmt.Sprintf("WT-%03d", testDBSeq.Load()),
		BoundaryCoordinates:    siteBoundary,
		OperatingStart:         "08:00",
		OperatingEnd:           "17:00",
		Timezone:               "Africa/Nairobi",
		AutoCheckoutTime:       "20:00",
		OvertimeThresholdHours: 8,
		OvertimeMultiplier:     1.5,
		StandardShiftHours:     8,
		IdentityCheckRequired:  identityRequired,
		IsActive:               true,
	}
	require.NoError(t, s.DB().Create(project).Error)
	return project
}

var labourerSeq atomic.Int64

func seedLabourer(t *testing.T, s store.Store, projectID int64, portrait []byte) *model.Labourer {
	t.Helper()
	n := labourerSeq.Add(1)
	labourer := &model.Labourer{
		PublicID:     uuid.New(),
		SerialNumber: fmt.Sprintf("EMP-2025-%05d", n),
		FullName:     fmt.Sprintf("Test Labourer %d", n),
		NationalID:   fmt.Sprintf("1234%05d", n),
		PhoneNumber:  fmt.Sprintf("+2547%08d", n),
		ProjectID:    &projectID,
		Portrait:     portrait,
		Status:       model.LabourerActive,
		Whitelisted:  true,
	}
	require.NoError(t, s.DB().Create(labourer).Error)
	return labourer
}

func solidPNG(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func f64(v float64) *float64 { return &v }

// recordingNotifier captures the denial IDs dispatched to it.
type recordingNotifier struct {
	ids []int64
}

func (r *recordingNotifier) NotifyDenial(id int64) {
	r.ids = append(r.ids, id)
}
