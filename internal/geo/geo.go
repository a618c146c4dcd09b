package geo

import "math"

// earthRadiusMeters is the mean Earth radius used for haversine distances.
const earthRadiusMeters = 6371000.0

// Point is a GPS coordinate as (latitude, longitude) in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// PointInPolygon reports whether the point lies inside the polygon using the
// ray-casting algorithm. The polygon is an ordered vertex list and is
// implicitly closed (an edge runs from the last vertex back to the first).
//
// A polygon with fewer than 3 vertices is not a polygon; this function returns
// true in that case and leaves the policy decision to the caller. Degenerate
// or self-intersecting polygons are not normalized; the parity result for such
// input is whatever ray casting yields.
func PointInPolygon(p Point, polygon []Point) bool {
	if len(polygon) < 3 {
		return true
	}

	inside := false
	n := len(polygon)
	p1 := polygon[0]

	for i := 1; i <= n; i++ {
		p2 := polygon[i%n]

		if p.Lng > math.Min(p1.Lng, p2.Lng) &&
			p.Lng <= math.Max(p1.Lng, p2.Lng) &&
			p.Lat <= math.Max(p1.Lat, p2.Lat) {
			if p1.Lng != p2.Lng {
				xIntersection := (p.Lng-p1.Lng)*(p2.Lat-p1.Lat)/(p2.Lng-p1.Lng) + p1.Lat
				if p1.Lat == p2.Lat || p.Lat <= xIntersection {
					inside = !inside
				}
			} else {
				// Vertical edge: the latitude bound already matched, flip
				// without computing an intersection.
				inside = !inside
			}
		}

		p1 = p2
	}

	return inside
}

// HaversineMeters returns the great-circle distance in meters between two GPS
// coordinates. It is symmetric and returns 0 for identical points.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}
