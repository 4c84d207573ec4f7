package render

import (
	"log/slog"

	"github.com/mr1hm/go-citymap/internal/cluster"
	"github.com/mr1hm/go-citymap/internal/models"
	"github.com/mr1hm/go-citymap/internal/projection"
)

// Dataset is an immutable snapshot of every layer. Updates return a new
// Dataset, so sessions can share one without locking.
type Dataset struct {
	projector   *projection.Projector
	clusterOpts cluster.Options

	indices   map[models.Layer]*cluster.Index
	incidents map[string]models.Incident
	aqi       []models.AQIReading
	seq       map[models.Layer]uint64
}

func NewDataset(projector *projection.Projector, opts cluster.Options) *Dataset {
	d := &Dataset{
		projector:   projector,
		clusterOpts: opts,
		indices:     make(map[models.Layer]*cluster.Index, len(models.ClusteredLayers)),
		incidents:   map[string]models.Incident{},
		seq:         map[models.Layer]uint64{},
	}
	for _, l := range models.ClusteredLayers {
		d.indices[l] = cluster.Build(nil, opts)
	}
	return d
}

func (d *Dataset) clone() *Dataset {
	c := &Dataset{
		projector:   d.projector,
		clusterOpts: d.clusterOpts,
		indices:     make(map[models.Layer]*cluster.Index, len(d.indices)),
		incidents:   d.incidents,
		aqi:         d.aqi,
		seq:         make(map[models.Layer]uint64, len(d.seq)),
	}
	for k, v := range d.indices {
		c.indices[k] = v
	}
	for k, v := range d.seq {
		c.seq[k] = v
	}
	return c
}

// stale reports whether a fetch numbered seq is older than what was applied.
func (d *Dataset) stale(layer models.Layer, seq uint64) bool {
	return seq < d.seq[layer]
}

func (d *Dataset) Index(layer models.Layer) *cluster.Index {
	return d.indices[layer]
}

func (d *Dataset) Incident(id string) (models.Incident, bool) {
	inc, ok := d.incidents[id]
	return inc, ok
}

func (d *Dataset) AQI() []models.AQIReading {
	return d.aqi
}

func (d *Dataset) Seq(layer models.Layer) uint64 {
	return d.seq[layer]
}

// WithIncidents returns a dataset with the incidents layer replaced. A fetch
// error empties the layer. The second result is false for stale fetches.
func (d *Dataset) WithIncidents(seq uint64, incidents []models.Incident, err error) (*Dataset, bool) {
	if d.stale(models.LayerIncidents, seq) {
		return d, false
	}
	next := d.clone()
	next.seq[models.LayerIncidents] = seq
	if err != nil {
		slog.Warn("incidents layer unavailable", "error", err)
		incidents = nil
	}

	features, dropped := d.projector.Incidents(incidents)
	next.indices[models.LayerIncidents] = cluster.Build(features, d.clusterOpts)
	next.incidents = make(map[string]models.Incident, len(incidents))
	for _, inc := range incidents {
		if inc.ID != "" {
			next.incidents[inc.ID] = inc
		}
	}
	logProjected(models.LayerIncidents, len(features), dropped)
	return next, true
}

func (d *Dataset) WithSensors(seq uint64, sensors []models.Sensor, err error) (*Dataset, bool) {
	if d.stale(models.LayerSensors, seq) {
		return d, false
	}
	next := d.clone()
	next.seq[models.LayerSensors] = seq
	if err != nil {
		slog.Warn("sensors layer unavailable", "error", err)
		sensors = nil
	}

	features, dropped := d.projector.Sensors(sensors)
	next.indices[models.LayerSensors] = cluster.Build(features, d.clusterOpts)
	logProjected(models.LayerSensors, len(features), dropped)
	return next, true
}

func (d *Dataset) WithServices(seq uint64, services []models.Service, err error) (*Dataset, bool) {
	if d.stale(models.LayerServices, seq) {
		return d, false
	}
	next := d.clone()
	next.seq[models.LayerServices] = seq
	if err != nil {
		slog.Warn("services layer unavailable", "error", err)
		services = nil
	}

	features, dropped := d.projector.Services(services)
	next.indices[models.LayerServices] = cluster.Build(features, d.clusterOpts)
	logProjected(models.LayerServices, len(features), dropped)
	return next, true
}

func (d *Dataset) WithAQI(seq uint64, readings []models.AQIReading, err error) (*Dataset, bool) {
	if d.stale(models.LayerAQI, seq) {
		return d, false
	}
	next := d.clone()
	next.seq[models.LayerAQI] = seq
	if err != nil {
		slog.Warn("aqi layer unavailable", "error", err)
		readings = nil
	}
	next.aqi = append([]models.AQIReading(nil), readings...)
	return next, true
}

func logProjected(layer models.Layer, count, dropped int) {
	if dropped > 0 {
		slog.Warn("entities dropped during projection", "layer", layer, "dropped", dropped)
	}
	slog.Debug("layer rebuilt", "layer", layer, "features", count)
}
