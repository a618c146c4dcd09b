package parse

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Boundary parsing accepts the formats admins actually paste in:
//
//	JSON pairs:    [[-1.2850, 36.8150], [-1.2850, 36.8200], ...]
//	JSON objects:  [{"lat": -1.2850, "lng": 36.8150}, ...]
//	Plain text:    one "lat,lng" pair per line or separated by semicolons
//
// All forms normalize to [lat, lng] pairs.

type objectPoint struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

// ParseBoundary parses a raw boundary string into coordinate pairs and
// validates each coordinate's range. It does not enforce a minimum vertex
// count; callers decide whether a degenerate boundary is acceptable.
func ParseBoundary(raw string) ([][2]float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, fmt.Errorf("boundary is empty")
	}

	var points [][2]float64
	var err error
	if strings.HasPrefix(s, "[") {
		points, err = parseJSONBoundary(s)
	} else {
		points, err = parseTextBoundary(s)
	}
	if err != nil {
		return nil, err
	}

	for i, p := range points {
		if p[0] < -90 || p[0] > 90 {
			return nil, fmt.Errorf("point %d: latitude %g out of range [-90, 90]", i, p[0])
		}
		if p[1] < -180 || p[1] > 180 {
			return nil, fmt.Errorf("point %d: longitude %g out of range [-180, 180]", i, p[1])
		}
	}
	return points, nil
}

func parseJSONBoundary(s string) ([][2]float64, error) {
	// Try the pair form first; it is what the API documents.
	var pairs [][]float64
	if err := json.Unmarshal([]byte(s), &pairs); err == nil {
		points := make([][2]float64, 0, len(pairs))
		for i, pair := range pairs {
			if len(pair) != 2 {
				return nil, fmt.Errorf("point %d: expected [lat, lng], got %d values", i, len(pair))
			}
			points = append(points, [2]float64{pair[0], pair[1]})
		}
		return points, nil
	}

	var objects []objectPoint
	if err := json.Unmarshal([]byte(s), &objects); err != nil {
		return nil, fmt.Errorf("boundary is not valid JSON: %w", err)
	}
	points := make([][2]float64, 0, len(objects))
	for i, o := range objects {
		if o.Lat == nil || o.Lng == nil {
			return nil, fmt.Errorf("point %d: missing lat or lng", i)
		}
		points = append(points, [2]float64{*o.Lat, *o.Lng})
	}
	return points, nil
}

func parseTextBoundary(s string) ([][2]float64, error) {
	s = strings.ReplaceAll(s, ";", "\n")
	var points [][2]float64
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %q: expected \"lat,lng\"", line)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %q: bad latitude: %w", line, err)
		}
		lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %q: bad longitude: %w", line, err)
		}
		points = append(points, [2]float64{lat, lng})
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("boundary contains no points")
	}
	return points, nil
}
