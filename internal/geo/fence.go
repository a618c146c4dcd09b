package geo

import (
	"fmt"
	"math"
)

// FenceResult is the outcome of a geofence membership check.
type FenceResult struct {
	Granted bool
	Message string
	// DistanceMeters is the distance from the query point to the nearest
	// boundary vertex when the point is outside the fence, 0 when inside.
	DistanceMeters float64
}

// ValidateFence checks whether the point lies within the boundary polygon and
// applies the access-control policy around the raw geometry.
//
// A project without a usable boundary (< 3 points) fails closed: nobody can
// check in until an admin configures the fence. For points outside the fence
// the reported distance is the minimum haversine distance to a boundary
// vertex, not to the nearest edge. That can overstate the true distance to the
// boundary for polygons with long edges; it only affects the message, never
// the grant decision.
func ValidateFence(p Point, boundary []Point) FenceResult {
	if len(boundary) < 3 {
		return FenceResult{
			Granted: false,
			Message: "No boundary configured for this project. Please contact admin to set up the geofence.",
		}
	}

	if PointInPolygon(p, boundary) {
		return FenceResult{
			Granted: true,
			Message: "Location verified: you are within the project boundary",
		}
	}

	minDistance := math.Inf(1)
	for _, vertex := range boundary {
		d := HaversineMeters(p.Lat, p.Lng, vertex.Lat, vertex.Lng)
		if d < minDistance {
			minDistance = d
		}
	}

	return FenceResult{
		Granted:        false,
		Message:        fmt.Sprintf("You are %.0f meters outside the project boundary. You must be inside the boundary to check in.", minDistance),
		DistanceMeters: minDistance,
	}
}
