package projection

import (
	"log/slog"
	"strings"

	"github.com/mr1hm/go-citymap/internal/geocode"
	"github.com/mr1hm/go-citymap/internal/models"
)

// Sources is one snapshot of the three clustered source collections.
type Sources struct {
	Incidents []models.Incident
	Sensors   []models.Sensor
	Services  []models.Service
}

// Result holds the projected features per layer and how many entities were dropped.
type Result struct {
	Features map[models.Layer][]models.PointFeature
	Dropped  map[models.Layer]int
}

type Projector struct {
	fallback geocode.Box
}

func New(fallback geocode.Box) *Projector {
	return &Projector{fallback: fallback}
}

// Default projects with the Hyderabad fallback box.
func Default() *Projector {
	return New(geocode.Hyderabad)
}

func (p *Projector) Project(src Sources) Result {
	res := Result{
		Features: make(map[models.Layer][]models.PointFeature, len(models.ClusteredLayers)),
		Dropped:  make(map[models.Layer]int, len(models.ClusteredLayers)),
	}

	var dropped int
	res.Features[models.LayerIncidents], dropped = p.Incidents(src.Incidents)
	res.Dropped[models.LayerIncidents] = dropped
	res.Features[models.LayerSensors], dropped = p.Sensors(src.Sensors)
	res.Dropped[models.LayerSensors] = dropped
	res.Features[models.LayerServices], dropped = p.Services(src.Services)
	res.Dropped[models.LayerServices] = dropped

	return res
}

func (p *Projector) Incidents(incidents []models.Incident) ([]models.PointFeature, int) {
	features := make([]models.PointFeature, 0, len(incidents))
	dropped := 0
	for i := range incidents {
		inc := &incidents[i]
		coords, ok := inc.Coordinates()
		f, placed := p.place(models.LayerIncidents, inc.ID, coords, ok)
		if !placed {
			dropped++
			continue
		}
		f.Category = models.CategoryIncident
		f.Extra = compact(map[string]string{
			"title":    inc.Title,
			"type":     inc.Type,
			"severity": inc.Severity,
			"status":   inc.Status,
		})
		features = append(features, f)
	}
	return features, dropped
}

func (p *Projector) Sensors(sensors []models.Sensor) ([]models.PointFeature, int) {
	features := make([]models.PointFeature, 0, len(sensors))
	dropped := 0
	for i := range sensors {
		s := &sensors[i]
		coords, ok := s.Coordinates()
		f, placed := p.place(models.LayerSensors, s.ID, coords, ok)
		if !placed {
			dropped++
			continue
		}
		f.Category = models.CategorySensor
		f.Extra = compact(map[string]string{
			"type":   s.Type,
			"label":  s.Label,
			"zone":   s.Zone,
			"status": s.Status,
		})
		features = append(features, f)
	}
	return features, dropped
}

func (p *Projector) Services(services []models.Service) ([]models.PointFeature, int) {
	features := make([]models.PointFeature, 0, len(services))
	dropped := 0
	for i := range services {
		s := &services[i]
		coords, ok := s.Coordinates()
		f, placed := p.place(models.LayerServices, s.ID, coords, ok)
		if !placed {
			dropped++
			continue
		}
		f.Category = models.ParseServiceCategory(s.Category)
		f.Extra = compact(map[string]string{
			"name": s.Name,
		})
		features = append(features, f)
	}
	return features, dropped
}

// place resolves a feature position: explicit coordinates win, then the id
// hash. An entity with neither is dropped.
func (p *Projector) place(layer models.Layer, id string, coords models.Coordinates, hasCoords bool) (models.PointFeature, bool) {
	id = strings.TrimSpace(id)
	f := models.PointFeature{
		Ref: models.SourceRef{Layer: layer, ID: id},
	}
	switch {
	case hasCoords:
		f.Coordinates = coords
	case id != "":
		f.Coordinates = p.fallback.CoordFromID(id)
		f.Fallback = true
	default:
		slog.Warn("dropping entity without id or coordinates", "layer", layer)
		return f, false
	}
	return f, true
}

func compact(m map[string]string) map[string]string {
	for k, v := range m {
		if v == "" {
			delete(m, k)
		}
	}
	if len(m) == 0 {
		return nil
	}
	return m
}
