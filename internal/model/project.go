package model

import (
	"time"

	"site-attendance-backend/internal/geo"
)

// Boundary is the ordered geofence polygon, stored as [[lat,lng],...] pairs.
// The polygon is implicitly closed; at least 3 points are required for it to
// be usable.
type Boundary [][2]float64

// Points converts the raw coordinate pairs into geometry points.
func (b Boundary) Points() []geo.Point {
	pts := make([]geo.Point, len(b))
	for i, pair := range b {
		pts[i] = geo.Point{Lat: pair[0], Lng: pair[1]}
	}
	return pts
}

// Project represents a physical work site with its geofence and attendance
// policy. The boundary is mutated only through the boundary-update API and is
// treated as immutable during a shift.
type Project struct {
	ID             int64  `gorm:"primaryKey" json:"id"`
	Name           string `gorm:"uniqueIndex;size:200;not null" json:"name"`
	SiteIdentifier string `gorm:"uniqueIndex;size:50;not null" json:"site_identifier"`

	BoundaryCoordinates Boundary    `gorm:"serializer:json" json:"boundary_coordinates"`
	EntryPoints         [][2]float64 `gorm:"serializer:json" json:"entry_points"`

	// Operating window, local wall-clock "HH:MM" in Timezone.
	OperatingStart string `gorm:"size:5;default:'08:00'" json:"operating_start"`
	OperatingEnd   string `gorm:"size:5;default:'17:00'" json:"operating_end"`
	Timezone       string `gorm:"size:50;default:'Africa/Nairobi'" json:"timezone"`

	// AutoCheckoutTime is the local wall-clock time after which the daily
	// closure job force-checks-out anyone still on site.
	AutoCheckoutTime string `gorm:"size:5;default:'20:00'" json:"auto_checkout_time"`

	OvertimeThresholdHours int     `gorm:"default:8" json:"overtime_threshold_hours"`
	OvertimeMultiplier     float64 `gorm:"default:1.5" json:"overtime_multiplier"`
	StandardShiftHours     int     `gorm:"default:8" json:"standard_shift_hours"`

	// IdentityCheckRequired makes the portrait comparison mandatory for this
	// site. When false a request without a captured image performs a
	// location-only check-in, which is recorded as such in the audit trail.
	IdentityCheckRequired bool `gorm:"default:false" json:"identity_check_required"`

	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasBoundary reports whether the project has a usable geofence polygon.
func (p *Project) HasBoundary() bool {
	return len(p.BoundaryCoordinates) >= 3
}
