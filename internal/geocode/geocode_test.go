package geocode

import (
	"fmt"
	"math"
	"testing"

	"github.com/mr1hm/go-citymap/internal/models"
)

func round5(f float64) float64 {
	return math.Round(f*1e5) / 1e5
}

func TestCoordFromID_Vectors(t *testing.T) {
	vectors := []struct {
		id       string
		lat, lon float64
	}{
		{"svc-1", 17.56636, 78.67499},
		{"svc-2", 17.71422, 78.52714},
		{"svc-6", 17.31136, 78.48000},
		{"", 17.46317, 78.51318},
		{"incident-42", 17.40672, 78.47324},
		{"3f2c9a7e-1b4d-4c1e-9a55-0d2b7f3e8c11", 17.44614, 78.59174},
		{"héllo", 17.61309, 78.55924},
	}

	for _, v := range vectors {
		got := CoordFromID(v.id)
		if round5(got.Latitude) != v.lat || round5(got.Longitude) != v.lon {
			t.Errorf("CoordFromID(%q) = (%.5f, %.5f), want (%.5f, %.5f)",
				v.id, got.Latitude, got.Longitude, v.lat, v.lon)
		}
	}
}

func TestHashToUnit_KnownValues(t *testing.T) {
	if got := HashToUnit("svc-1", 1); got != 0.59192 {
		t.Errorf("expected 0.59192, got %v", got)
	}
	if got := HashToUnit("svc-1", 2); got != 0.72221 {
		t.Errorf("expected 0.72221, got %v", got)
	}
}

func TestCoordFromID_StableAndInsideBox(t *testing.T) {
	for i := 0; i < 500; i++ {
		id := fmt.Sprintf("entity-%d", i)
		first := CoordFromID(id)
		second := CoordFromID(id)
		if first != second {
			t.Fatalf("expected stable coordinate for %s, got %v then %v", id, first, second)
		}
		if !Hyderabad.Contains(first) {
			t.Errorf("coordinate %v for %s outside box", first, id)
		}
	}
}

func TestCoordFromID_AxesUseDifferentSalts(t *testing.T) {
	c := CoordFromID("svc-1")
	latUnit := (c.Latitude - Hyderabad.LatMin) / Hyderabad.LatSpan
	lonUnit := (c.Longitude - Hyderabad.LonMin) / Hyderabad.LonSpan
	if round5(latUnit) == round5(lonUnit) {
		t.Errorf("expected latitude and longitude to differ in unit space, both %v", latUnit)
	}
}

func TestBox_CustomArea(t *testing.T) {
	box := Box{LatMin: -1, LatSpan: 2, LonMin: 10, LonSpan: 1}
	c := box.CoordFromID("svc-1")
	if !box.Contains(c) {
		t.Errorf("expected %v inside custom box", c)
	}
	if box.Contains(models.Coordinates{Latitude: 5, Longitude: 10.5}) {
		t.Error("expected point north of the box to be outside")
	}
}
