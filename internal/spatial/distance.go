package spatial

import (
	"github.com/golang/geo/s2"

	"github.com/mr1hm/go-citymap/internal/models"
)

const EarthRadiusMeters = 6371008.8

// Distance is the great-circle distance between two coordinates in meters.
func Distance(a, b models.Coordinates) float64 {
	p1 := s2.LatLngFromDegrees(a.Latitude, a.Longitude)
	p2 := s2.LatLngFromDegrees(b.Latitude, b.Longitude)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// PolylineLength sums the great-circle length of consecutive segments.
func PolylineLength(coords []models.Coordinates) float64 {
	if len(coords) < 2 {
		return 0
	}
	points := make([]s2.Point, len(coords))
	for i, c := range coords {
		points[i] = s2.PointFromLatLng(s2.LatLngFromDegrees(c.Latitude, c.Longitude))
	}
	line := s2.Polyline(points)
	return line.Length().Radians() * EarthRadiusMeters
}
