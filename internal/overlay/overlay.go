package overlay

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/mr1hm/go-citymap/internal/models"
	"github.com/mr1hm/go-citymap/internal/spatial"
)

// Route is a suggested path drawn over the map.
type Route struct {
	Key         string
	Coordinates []models.Coordinates
}

// Drawable reports whether the route has enough points for a polyline.
func (r Route) Drawable() bool {
	return len(r.Coordinates) >= 2
}

// Length of the route in meters.
func (r Route) Length() float64 {
	return spatial.PolylineLength(r.Coordinates)
}

type Destination struct {
	Coordinates models.Coordinates
	Label       string
	Category    string
	Address     string
}

func pt(lat, lng float64) models.Coordinates {
	return models.Coordinates{Latitude: lat, Longitude: lng}
}

var presets = map[string][]models.Coordinates{
	"necklace_road": {
		pt(17.423, 78.473), pt(17.427, 78.476), pt(17.432, 78.480), pt(17.437, 78.479),
		pt(17.439, 78.474), pt(17.436, 78.470), pt(17.430, 78.468),
	},
	"begumpet_avoid": {
		pt(17.437, 78.467), pt(17.448, 78.460), pt(17.457, 78.480), pt(17.442, 78.489),
	},
	"inner_ring_road": {
		pt(17.370, 78.450), pt(17.400, 78.500), pt(17.440, 78.540), pt(17.470, 78.500), pt(17.450, 78.450),
	},
}

// RouteKeys lists the preset names.
func RouteKeys() []string {
	return []string{"begumpet_avoid", "inner_ring_road", "necklace_road"}
}

// LookupRoute returns the preset for key. Unknown keys give an empty route.
func LookupRoute(key string) Route {
	coords, ok := presets[key]
	if !ok {
		return Route{Key: key}
	}
	out := make([]models.Coordinates, len(coords))
	copy(out, coords)
	return Route{Key: key, Coordinates: out}
}

// ParseDestination reads dest=lat,lng plus optional label, cat and addr.
// Anything that is not a finite in-range coordinate yields nil.
func ParseDestination(q url.Values) *Destination {
	raw := q.Get("dest")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	if len(parts) < 2 {
		return nil
	}
	lat, ok := parseNumber(parts[0])
	if !ok {
		return nil
	}
	lng, ok := parseNumber(parts[1])
	if !ok {
		return nil
	}
	coords := pt(lat, lng)
	if !coords.Valid() {
		return nil
	}
	return &Destination{
		Coordinates: coords,
		Label:       q.Get("label"),
		Category:    q.Get("cat"),
		Address:     q.Get("addr"),
	}
}

func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Query is the overlay state carried in a map URL.
type Query struct {
	Route       Route
	Destination *Destination
}

func ParseQuery(q url.Values) Query {
	var out Query
	if key := q.Get("route"); key != "" {
		out.Route = LookupRoute(key)
	}
	out.Destination = ParseDestination(q)
	return out
}
