package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mr1hm/go-citymap/internal/config"
	"github.com/mr1hm/go-citymap/internal/models"
	"github.com/mr1hm/go-citymap/internal/projection"
	"github.com/mr1hm/go-citymap/internal/repository"
	"github.com/mr1hm/go-citymap/internal/worker"
)

type IncidentSource interface {
	FetchIncidents(ctx context.Context) ([]models.Incident, error)
}

type SensorSource interface {
	FetchSensors(ctx context.Context) ([]models.Sensor, error)
}

type ServiceSource interface {
	FetchServices(ctx context.Context) ([]models.Service, error)
}

type AQISource interface {
	FetchAQI(ctx context.Context, cities []string) ([]models.AQIReading, error)
}

// Sources groups the fetchers per layer. A nil fetcher disables its layer.
type Sources struct {
	Incidents IncidentSource
	Sensors   SensorSource
	Services  ServiceSource
	AQI       AQISource
}

// Applier receives fetch results. seq increases per layer with every
// submitted fetch, so a slow older fetch can be told apart from a newer one.
type Applier interface {
	ApplyIncidents(seq uint64, incidents []models.Incident, err error) bool
	ApplySensors(seq uint64, sensors []models.Sensor, err error) bool
	ApplyServices(seq uint64, services []models.Service, err error) bool
	ApplyAQI(seq uint64, readings []models.AQIReading, err error) bool
}

type fetchJob struct {
	layer models.Layer
	seq   uint64
}

func (j fetchJob) Name() string {
	return fmt.Sprintf("fetch-%s#%d", j.layer, j.seq)
}

type Manager struct {
	cfg     *config.Config
	sources Sources
	applier Applier
	repo    repository.SnapshotRepository
	pool    *worker.WorkerPool
	seq     map[models.Layer]*atomic.Uint64
	wg      sync.WaitGroup
}

func NewManager(cfg *config.Config, sources Sources, applier Applier, repo repository.SnapshotRepository) *Manager {
	m := &Manager{
		cfg:     cfg,
		sources: sources,
		applier: applier,
		repo:    repo,
		seq:     make(map[models.Layer]*atomic.Uint64, len(models.AllLayers)),
	}
	for _, l := range models.AllLayers {
		m.seq[l] = &atomic.Uint64{}
	}
	return m
}

// Restore applies the last stored snapshot of every layer. Snapshots go in
// with seq 0 so any live fetch replaces them.
func (m *Manager) Restore(ctx context.Context) {
	if m.repo == nil {
		return
	}
	for _, layer := range models.AllLayers {
		snap, err := m.repo.Latest(ctx, layer)
		if err != nil {
			if !errors.Is(err, repository.ErrNoSnapshot) {
				slog.Warn("error loading snapshot", "layer", layer, "error", err)
			}
			continue
		}
		if err := m.applySnapshot(snap); err != nil {
			slog.Warn("error restoring snapshot", "layer", layer, "error", err)
			continue
		}
		slog.Info("restored snapshot", "layer", layer, "count", snap.Count, "fetched_at", snap.FetchedAt)
	}
}

func (m *Manager) applySnapshot(snap *repository.Snapshot) error {
	switch snap.Layer {
	case models.LayerIncidents:
		var v []models.Incident
		if err := json.Unmarshal(snap.Payload, &v); err != nil {
			return fmt.Errorf("error decoding incidents: %w", err)
		}
		m.applier.ApplyIncidents(0, v, nil)
	case models.LayerSensors:
		var v []models.Sensor
		if err := json.Unmarshal(snap.Payload, &v); err != nil {
			return fmt.Errorf("error decoding sensors: %w", err)
		}
		m.applier.ApplySensors(0, v, nil)
	case models.LayerServices:
		var v []models.Service
		if err := json.Unmarshal(snap.Payload, &v); err != nil {
			return fmt.Errorf("error decoding services: %w", err)
		}
		m.applier.ApplyServices(0, v, nil)
	case models.LayerAQI:
		var v []models.AQIReading
		if err := json.Unmarshal(snap.Payload, &v); err != nil {
			return fmt.Errorf("error decoding aqi: %w", err)
		}
		m.applier.ApplyAQI(0, v, nil)
	}
	return nil
}

func (m *Manager) Start(ctx context.Context) {
	m.pool = worker.NewWorkerPool(m.cfg.Worker.Count, m.cfg.Worker.BufferSize, m.process)
	m.pool.Start(ctx)

	intervals := map[models.Layer]time.Duration{
		models.LayerIncidents: m.cfg.Sources.IncidentsPollInterval,
		models.LayerSensors:   m.cfg.Sources.SensorsPollInterval,
		models.LayerServices:  m.cfg.Sources.ServicesPollInterval,
		models.LayerAQI:       m.cfg.Sources.AQIPollInterval,
	}
	for _, layer := range models.AllLayers {
		if !m.enabled(layer) {
			slog.Info("source disabled", "layer", layer)
			continue
		}
		m.wg.Add(1)
		go m.runPoller(ctx, layer, intervals[layer])
	}
}

func (m *Manager) enabled(layer models.Layer) bool {
	switch layer {
	case models.LayerIncidents:
		return m.sources.Incidents != nil
	case models.LayerSensors:
		return m.sources.Sensors != nil
	case models.LayerServices:
		return m.sources.Services != nil
	case models.LayerAQI:
		return m.sources.AQI != nil
	}
	return false
}

func (m *Manager) runPoller(ctx context.Context, layer models.Layer, interval time.Duration) {
	defer m.wg.Done()
	slog.Info("starting poller", "layer", layer, "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial poll
	m.Poll(layer)

	for {
		select {
		case <-ctx.Done():
			slog.Info("poller shutting down", "layer", layer)
			return
		case <-ticker.C:
			m.Poll(layer)
		}
	}
}

// Poll queues one fetch of layer and returns its sequence number, or 0 when
// the fetch could not be queued.
func (m *Manager) Poll(layer models.Layer) uint64 {
	if m.pool == nil || !m.enabled(layer) {
		return 0
	}
	seq := m.seq[layer].Add(1)
	if !m.pool.TrySubmit(fetchJob{layer: layer, seq: seq}) {
		return 0
	}
	return seq
}

func (m *Manager) process(ctx context.Context, job worker.Job) error {
	j := job.(fetchJob)
	slog.Debug("fetching", "layer", j.layer, "seq", j.seq)

	var (
		data  any
		count int
		err   error
	)
	switch j.layer {
	case models.LayerIncidents:
		var v []models.Incident
		v, err = m.sources.Incidents.FetchIncidents(ctx)
		m.applier.ApplyIncidents(j.seq, v, err)
		data, count = v, len(v)
	case models.LayerSensors:
		var v []models.Sensor
		v, err = m.sources.Sensors.FetchSensors(ctx)
		m.applier.ApplySensors(j.seq, v, err)
		data, count = v, len(v)
	case models.LayerServices:
		var v []models.Service
		v, err = m.sources.Services.FetchServices(ctx)
		if err == nil && len(v) == 0 {
			slog.Info("no services stored, showing demo services")
			v = projection.DemoServices()
		}
		m.applier.ApplyServices(j.seq, v, err)
		data, count = v, len(v)
	case models.LayerAQI:
		var v []models.AQIReading
		v, err = m.sources.AQI.FetchAQI(ctx, m.cfg.Sources.AQICities)
		m.applier.ApplyAQI(j.seq, v, err)
		data, count = v, len(v)
	default:
		return fmt.Errorf("unknown layer %q", j.layer)
	}
	if err != nil {
		return fmt.Errorf("fetch %s: %w", j.layer, err)
	}

	slog.Debug("fetch complete", "layer", j.layer, "seq", j.seq, "count", count)
	m.persist(ctx, j.layer, data, count)
	return nil
}

func (m *Manager) persist(ctx context.Context, layer models.Layer, data any, count int) {
	if m.repo == nil {
		return
	}
	payload, err := json.Marshal(data)
	if err != nil {
		slog.Warn("error encoding snapshot", "layer", layer, "error", err)
		return
	}
	snap := &repository.Snapshot{Layer: layer, Payload: payload, Count: count, FetchedAt: time.Now()}
	if err := m.repo.Save(ctx, snap); err != nil {
		slog.Warn("error saving snapshot", "layer", layer, "error", err)
		return
	}
	if keep := m.cfg.DB.SnapshotsKept; keep > 0 {
		if _, err := m.repo.Prune(ctx, layer, keep); err != nil {
			slog.Warn("error pruning snapshots", "layer", layer, "error", err)
		}
	}
}

func (m *Manager) Stats() worker.Stats {
	if m.pool == nil {
		return worker.Stats{}
	}
	return m.pool.Stats()
}

func (m *Manager) Stop() {
	m.wg.Wait()
	if m.pool != nil {
		m.pool.Stop()
	}
	slog.Info("source manager stopped")
}
