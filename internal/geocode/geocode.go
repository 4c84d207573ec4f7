// Package geocode places entities that arrive without coordinates at a
// stable pseudo-random position inside a fixed box.
//
// The hash matches the one the browser client uses, so an id lands on the
// same spot whether it was placed here or in the front-end.
package geocode

import (
	"unicode/utf16"

	"github.com/mr1hm/go-citymap/internal/models"
)

const (
	fnvBasis = 2166136261

	latSalt = 1
	lonSalt = 2

	unitModulus = 100000
)

// Box is the area fallback coordinates are spread over.
type Box struct {
	LatMin  float64
	LatSpan float64
	LonMin  float64
	LonSpan float64
}

// Hyderabad covers roughly [17.30, 17.75] x [78.35, 78.80].
var Hyderabad = Box{
	LatMin:  17.30,
	LatSpan: 0.45,
	LonMin:  78.35,
	LonSpan: 0.45,
}

func (b Box) Contains(c models.Coordinates) bool {
	return c.Latitude >= b.LatMin && c.Latitude <= b.LatMin+b.LatSpan &&
		c.Longitude >= b.LonMin && c.Longitude <= b.LonMin+b.LonSpan
}

// CoordFromID maps id into the box. It never fails.
func (b Box) CoordFromID(id string) models.Coordinates {
	return models.Coordinates{
		Latitude:  b.LatMin + HashToUnit(id, latSalt)*b.LatSpan,
		Longitude: b.LonMin + HashToUnit(id, lonSalt)*b.LonSpan,
	}
}

// CoordFromID places id inside the Hyderabad box.
func CoordFromID(id string) models.Coordinates {
	return Hyderabad.CoordFromID(id)
}

// HashToUnit is an FNV-1a style hash folded to [0, 1) with 5 decimal digits of
// resolution. It walks UTF-16 code units, not bytes; the two agree for ASCII.
func HashToUnit(id string, salt uint32) float64 {
	h := uint32(fnvBasis) ^ salt
	for _, c := range utf16.Encode([]rune(id)) {
		h ^= uint32(c)
		h += (h << 1) + (h << 4) + (h << 7) + (h << 8) + (h << 24)
	}
	return float64(h%unitModulus) / unitModulus
}
