package source

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/mr1hm/go-citymap/internal/config"
	"github.com/mr1hm/go-citymap/internal/models"
	"github.com/mr1hm/go-citymap/internal/repository"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type applied struct {
	layer models.Layer
	seq   uint64
	count int
	err   error
}

// mockApplier records every Apply call.
type mockApplier struct {
	mu    sync.Mutex
	calls []applied
}

func (a *mockApplier) record(layer models.Layer, seq uint64, count int, err error) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, applied{layer, seq, count, err})
	return true
}

func (a *mockApplier) ApplyIncidents(seq uint64, v []models.Incident, err error) bool {
	return a.record(models.LayerIncidents, seq, len(v), err)
}

func (a *mockApplier) ApplySensors(seq uint64, v []models.Sensor, err error) bool {
	return a.record(models.LayerSensors, seq, len(v), err)
}

func (a *mockApplier) ApplyServices(seq uint64, v []models.Service, err error) bool {
	return a.record(models.LayerServices, seq, len(v), err)
}

func (a *mockApplier) ApplyAQI(seq uint64, v []models.AQIReading, err error) bool {
	return a.record(models.LayerAQI, seq, len(v), err)
}

func (a *mockApplier) snapshot() []applied {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]applied(nil), a.calls...)
}

// mockRepo implements repository.SnapshotRepository in memory.
type mockRepo struct {
	mu    sync.Mutex
	saved map[models.Layer][]*repository.Snapshot
}

func newMockRepo() *mockRepo {
	return &mockRepo{saved: make(map[models.Layer][]*repository.Snapshot)}
}

func (r *mockRepo) Save(ctx context.Context, s *repository.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved[s.Layer] = append(r.saved[s.Layer], s)
	return nil
}

func (r *mockRepo) Latest(ctx context.Context, layer models.Layer) (*repository.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snaps := r.saved[layer]
	if len(snaps) == 0 {
		return nil, repository.ErrNoSnapshot
	}
	return snaps[len(snaps)-1], nil
}

func (r *mockRepo) Prune(ctx context.Context, layer models.Layer, keep int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snaps := r.saved[layer]
	if len(snaps) <= keep {
		return 0, nil
	}
	removed := len(snaps) - keep
	r.saved[layer] = snaps[removed:]
	return int64(removed), nil
}

func (r *mockRepo) count(layer models.Layer) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saved[layer])
}

type stubIncidents struct {
	incidents []models.Incident
	err       error
}

func (s stubIncidents) FetchIncidents(ctx context.Context) ([]models.Incident, error) {
	return s.incidents, s.err
}

type stubServices struct {
	services []models.Service
}

func (s stubServices) FetchServices(ctx context.Context) ([]models.Service, error) {
	return s.services, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Worker: config.WorkerConfig{
			Count:      2,
			BufferSize: 10,
		},
		Sources: config.SourcesConfig{
			IncidentsPollInterval: time.Hour,
			SensorsPollInterval:   time.Hour,
			ServicesPollInterval:  time.Hour,
			AQIPollInterval:       time.Hour,
		},
		DB: config.DatabaseConfig{SnapshotsKept: 2},
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestManager_StartStop(t *testing.T) {
	mgr := NewManager(testConfig(), Sources{}, &mockApplier{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)

	time.Sleep(20 * time.Millisecond)

	cancel()
	mgr.Stop()
}

func TestManager_InitialPollAppliesAndPersists(t *testing.T) {
	app := &mockApplier{}
	repo := newMockRepo()
	sources := Sources{
		Incidents: stubIncidents{incidents: []models.Incident{{ID: "inc-1"}, {ID: "inc-2"}}},
	}
	mgr := NewManager(testConfig(), sources, app, repo)

	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)

	waitFor(t, func() bool { return repo.count(models.LayerIncidents) == 1 })

	cancel()
	mgr.Stop()

	calls := app.snapshot()
	if len(calls) != 1 {
		t.Fatalf("expected 1 apply, got %+v", calls)
	}
	if calls[0] != (applied{models.LayerIncidents, 1, 2, nil}) {
		t.Errorf("unexpected apply %+v", calls[0])
	}
}

func TestManager_PollSequenceIncreases(t *testing.T) {
	sources := Sources{Incidents: stubIncidents{}}
	mgr := NewManager(testConfig(), sources, &mockApplier{}, nil)

	if seq := mgr.Poll(models.LayerIncidents); seq != 0 {
		t.Errorf("expected no poll before Start, got seq %d", seq)
	}

	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)

	// the poller's initial fetch took seq 1
	waitFor(t, func() bool { return mgr.Stats().Processed >= 1 })
	a := mgr.Poll(models.LayerIncidents)
	b := mgr.Poll(models.LayerIncidents)
	if a == 0 || b != a+1 {
		t.Errorf("expected consecutive sequence numbers, got %d and %d", a, b)
	}
	if seq := mgr.Poll(models.LayerSensors); seq != 0 {
		t.Errorf("expected disabled layer to be skipped, got %d", seq)
	}

	cancel()
	mgr.Stop()
}

func TestManager_EmptyServicesUseDemo(t *testing.T) {
	app := &mockApplier{}
	mgr := NewManager(testConfig(), Sources{Services: stubServices{}}, app, nil)

	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)
	waitFor(t, func() bool { return len(app.snapshot()) == 1 })
	cancel()
	mgr.Stop()

	call := app.snapshot()[0]
	if call.layer != models.LayerServices || call.count != 8 {
		t.Errorf("expected 8 demo services, got %+v", call)
	}
}

func TestManager_FetchErrorReachesApplier(t *testing.T) {
	app := &mockApplier{}
	repo := newMockRepo()
	fetchErr := errors.New("connection refused")
	mgr := NewManager(testConfig(), Sources{Incidents: stubIncidents{err: fetchErr}}, app, repo)

	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)
	waitFor(t, func() bool { return mgr.Stats().Failed == 1 })
	cancel()
	mgr.Stop()

	calls := app.snapshot()
	if len(calls) != 1 || !errors.Is(calls[0].err, fetchErr) {
		t.Fatalf("expected the fetch error to be applied, got %+v", calls)
	}
	if repo.count(models.LayerIncidents) != 0 {
		t.Error("expected no snapshot for a failed fetch")
	}
}

func TestManager_RestoreAppliesSnapshotsAtSeqZero(t *testing.T) {
	repo := newMockRepo()
	ctx := context.Background()
	repo.Save(ctx, &repository.Snapshot{
		Layer:   models.LayerServices,
		Payload: []byte(`[{"id":"svc-1","name":"Aarogya Hospital","category":"hospital"}]`),
		Count:   1,
	})
	repo.Save(ctx, &repository.Snapshot{Layer: models.LayerSensors, Payload: []byte(`not json`)})

	app := &mockApplier{}
	mgr := NewManager(testConfig(), Sources{}, app, repo)
	mgr.Restore(ctx)

	calls := app.snapshot()
	if len(calls) != 1 {
		t.Fatalf("expected only the valid snapshot applied, got %+v", calls)
	}
	if calls[0] != (applied{models.LayerServices, 0, 1, nil}) {
		t.Errorf("unexpected apply %+v", calls[0])
	}
}

func TestManager_PrunesSnapshots(t *testing.T) {
	repo := newMockRepo()
	sources := Sources{Incidents: stubIncidents{incidents: []models.Incident{{ID: "inc-1"}}}}
	mgr := NewManager(testConfig(), sources, &mockApplier{}, repo)

	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)
	waitFor(t, func() bool { return mgr.Stats().Processed == 1 })
	for i := 0; i < 3; i++ {
		mgr.Poll(models.LayerIncidents)
	}
	waitFor(t, func() bool { return mgr.Stats().Processed == 4 })
	cancel()
	mgr.Stop()

	if n := repo.count(models.LayerIncidents); n != 2 {
		t.Errorf("expected 2 snapshots kept, got %d", n)
	}
}
