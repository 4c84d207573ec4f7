package render

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mr1hm/go-citymap/internal/models"
	"github.com/mr1hm/go-citymap/internal/overlay"
)

// Store owns the live sessions and the latest dataset. Source updates go
// through the store so new sessions start from current data.
type Store struct {
	applyMu sync.Mutex // serialises dataset hand-off so sessions never go backwards

	mu       sync.RWMutex
	sessions map[string]*Session
	data     *Dataset
	opts     Options
	onScene  func(*Scene)
}

func NewStore(data *Dataset, opts Options) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		data:     data,
		opts:     opts,
	}
}

// OnScene registers the callback that receives every re-rendered scene.
// It must be set before sessions are created.
func (st *Store) OnScene(fn func(*Scene)) {
	st.mu.Lock()
	st.onScene = fn
	st.mu.Unlock()
}

func (st *Store) publish(scene *Scene) {
	st.mu.RLock()
	fn := st.onScene
	st.mu.RUnlock()
	if fn != nil {
		fn(scene)
	}
}

func (st *Store) Create(q overlay.Query) *Session {
	st.mu.Lock()
	id := uuid.NewString()
	s := NewSession(id, st.data, st.opts, st.publish)
	st.sessions[id] = s
	count := len(st.sessions)
	st.mu.Unlock()

	s.ApplyOverlay(q)
	slog.Info("session created", "session", id, "route", q.Route.Key, "destination", q.Destination != nil, "sessions", count)
	return s
}

func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.touch()
	return s, nil
}

func (st *Store) Delete(id string) error {
	st.mu.Lock()
	_, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	slog.Info("session deleted", "session", id)
	return nil
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Sweep drops sessions idle for longer than ttl and returns how many went.
func (st *Store) Sweep(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	st.mu.Lock()
	defer st.mu.Unlock()
	removed := 0
	for id, s := range st.sessions {
		if s.idleSince().Before(cutoff) {
			delete(st.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		slog.Info("idle sessions swept", "removed", removed, "remaining", len(st.sessions))
	}
	return removed
}

func (st *Store) Dataset() *Dataset {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.data
}

func (st *Store) ApplyIncidents(seq uint64, incidents []models.Incident, err error) bool {
	return st.apply(func(d *Dataset) (*Dataset, bool) { return d.WithIncidents(seq, incidents, err) })
}

func (st *Store) ApplySensors(seq uint64, sensors []models.Sensor, err error) bool {
	return st.apply(func(d *Dataset) (*Dataset, bool) { return d.WithSensors(seq, sensors, err) })
}

func (st *Store) ApplyServices(seq uint64, services []models.Service, err error) bool {
	return st.apply(func(d *Dataset) (*Dataset, bool) { return d.WithServices(seq, services, err) })
}

func (st *Store) ApplyAQI(seq uint64, readings []models.AQIReading, err error) bool {
	return st.apply(func(d *Dataset) (*Dataset, bool) { return d.WithAQI(seq, readings, err) })
}

// apply builds the next dataset once and hands it to every session.
func (st *Store) apply(update func(*Dataset) (*Dataset, bool)) bool {
	st.applyMu.Lock()
	defer st.applyMu.Unlock()

	st.mu.Lock()
	next, ok := update(st.data)
	if !ok {
		st.mu.Unlock()
		return false
	}
	st.data = next
	sessions := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		sessions = append(sessions, s)
	}
	st.mu.Unlock()

	for _, s := range sessions {
		s.UseDataset(next)
	}
	return true
}
