package projection

import (
	"testing"

	"github.com/mr1hm/go-citymap/internal/geocode"
	"github.com/mr1hm/go-citymap/internal/models"
)

func ptr[T any](v T) *T {
	return &v
}

func TestServices_DemoFallbackIsDeterministic(t *testing.T) {
	p := Default()

	first, dropped := p.Services(DemoServices())
	if dropped != 0 {
		t.Fatalf("expected no dropped services, got %d", dropped)
	}
	if len(first) != 8 {
		t.Fatalf("expected 8 features, got %d", len(first))
	}

	second, _ := p.Services(DemoServices())
	for i := range first {
		if !first[i].Fallback {
			t.Errorf("expected %s to use fallback coordinates", first[i].Ref.ID)
		}
		if !geocode.Hyderabad.Contains(first[i].Coordinates) {
			t.Errorf("expected %s inside Hyderabad box, got %v", first[i].Ref.ID, first[i].Coordinates)
		}
		if first[i].Coordinates != second[i].Coordinates {
			t.Errorf("expected identical coordinates for %s across runs", first[i].Ref.ID)
		}
	}

	if first[0].Category != models.CategoryHospital {
		t.Errorf("expected svc-1 to be a hospital, got %s", first[0].Category)
	}
	if first[0].Extra["name"] != "Aarogya Hospital" {
		t.Errorf("expected name attribute, got %v", first[0].Extra)
	}
}

func TestServices_ExplicitCoordinatesVerbatim(t *testing.T) {
	p := Default()
	features, _ := p.Services([]models.Service{
		{ID: "s1", Name: "Clinic", Category: "hospital", Lat: ptr(12.5), Lng: ptr(77.25)},
	})

	if len(features) != 1 {
		t.Fatalf("expected 1 feature, got %d", len(features))
	}
	want := models.Coordinates{Latitude: 12.5, Longitude: 77.25}
	if features[0].Coordinates != want {
		t.Errorf("expected %v, got %v", want, features[0].Coordinates)
	}
	if features[0].Fallback {
		t.Error("expected explicit coordinates not to be flagged as fallback")
	}
}

func TestServices_CategoryNormalisation(t *testing.T) {
	p := Default()
	features, _ := p.Services([]models.Service{
		{ID: "a", Category: ""},
		{ID: "b", Category: "Pharmacy"},
		{ID: "c", Category: "bus stop"},
	})

	want := []models.Category{models.CategoryCommunity, models.CategoryPharmacy, models.CategoryOther}
	for i, f := range features {
		if f.Category != want[i] {
			t.Errorf("feature %d: expected %s, got %s", i, want[i], f.Category)
		}
	}
}

func TestSensors_PartialCoordinatesFallBack(t *testing.T) {
	p := Default()
	features, dropped := p.Sensors([]models.Sensor{
		{ID: "sensor-1", Label: "AQ-1", Lat: ptr(17.4), Lon: ptr(78.5), Status: "online"},
		{ID: "sensor-2", Lat: ptr(17.4)},
		{ID: "sensor-3", Lat: ptr(120.0), Lon: ptr(78.5)},
	})

	if dropped != 0 {
		t.Errorf("expected 0 dropped, got %d", dropped)
	}
	if len(features) != 3 {
		t.Fatalf("expected 3 features, got %d", len(features))
	}
	if features[0].Fallback {
		t.Error("expected sensor-1 to keep its coordinates")
	}
	if !features[1].Fallback || !features[2].Fallback {
		t.Error("expected sensor-2 and sensor-3 to use fallback coordinates")
	}
	if features[0].Extra["label"] != "AQ-1" || features[0].Extra["status"] != "online" {
		t.Errorf("unexpected extra attributes: %v", features[0].Extra)
	}
}

func TestIncidents_LocationParsing(t *testing.T) {
	p := Default()
	features, dropped := p.Incidents([]models.Incident{
		{ID: "inc-1", Severity: "HIGH", Status: "OPEN", Location: ptr("17.41, 78.47")},
		{ID: "inc-2", Location: ptr("Banjara Hills")},
		{ID: "inc-3"},
		{ID: "", Location: ptr("near the lake")},
	})

	if dropped != 1 {
		t.Errorf("expected 1 dropped incident, got %d", dropped)
	}
	if len(features) != 3 {
		t.Fatalf("expected 3 features, got %d", len(features))
	}

	want := models.Coordinates{Latitude: 17.41, Longitude: 78.47}
	if features[0].Coordinates != want {
		t.Errorf("expected %v, got %v", want, features[0].Coordinates)
	}
	if features[0].Extra["severity"] != "HIGH" {
		t.Errorf("expected severity attribute, got %v", features[0].Extra)
	}
	if features[1].Coordinates != geocode.CoordFromID("inc-2") {
		t.Errorf("expected inc-2 at its fallback coordinate")
	}
	for _, f := range features {
		if f.Category != models.CategoryIncident {
			t.Errorf("expected incident category, got %s", f.Category)
		}
		if f.Ref.Layer != models.LayerIncidents {
			t.Errorf("expected incidents layer ref, got %s", f.Ref.Layer)
		}
	}
}

func TestProject_AllLayers(t *testing.T) {
	res := Default().Project(Sources{
		Incidents: []models.Incident{{ID: "inc-1"}},
		Sensors:   []models.Sensor{{ID: ""}},
		Services:  DemoServices(),
	})

	if len(res.Features[models.LayerIncidents]) != 1 {
		t.Errorf("expected 1 incident feature, got %d", len(res.Features[models.LayerIncidents]))
	}
	if len(res.Features[models.LayerSensors]) != 0 {
		t.Errorf("expected 0 sensor features, got %d", len(res.Features[models.LayerSensors]))
	}
	if res.Dropped[models.LayerSensors] != 1 {
		t.Errorf("expected 1 dropped sensor, got %d", res.Dropped[models.LayerSensors])
	}
	if len(res.Features[models.LayerServices]) != 8 {
		t.Errorf("expected 8 service features, got %d", len(res.Features[models.LayerServices]))
	}
}
