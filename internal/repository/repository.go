package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mr1hm/go-citymap/internal/models"
)

var ErrNoSnapshot = errors.New("no snapshot stored")

// Snapshot is the last good collection fetched for one layer, kept so a
// restart can render before the first poll completes.
type Snapshot struct {
	Layer     models.Layer
	Payload   []byte // JSON array of the layer's source entities
	Count     int
	FetchedAt time.Time
}

type SnapshotRepository interface {
	Save(ctx context.Context, s *Snapshot) error
	Latest(ctx context.Context, layer models.Layer) (*Snapshot, error)
	Prune(ctx context.Context, layer models.Layer, keep int) (int64, error)
}
