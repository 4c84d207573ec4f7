package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mr1hm/go-citymap/internal/models"
)

type SQLiteDB struct {
	db *sql.DB
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			layer TEXT NOT NULL,
			item_count INTEGER NOT NULL,
			payload BLOB NOT NULL,
			fetched_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_snapshots_layer_fetched ON snapshots(layer, fetched_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) Save(ctx context.Context, snap *Snapshot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (layer, item_count, payload, fetched_at) VALUES (?, ?, ?, ?)`,
		string(snap.Layer), snap.Count, compress(snap.Payload), snap.FetchedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("error saving %s snapshot: %w", snap.Layer, err)
	}
	return nil
}

func (s *SQLiteDB) Latest(ctx context.Context, layer models.Layer) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT item_count, payload, fetched_at FROM snapshots
		 WHERE layer = ? ORDER BY fetched_at DESC, id DESC LIMIT 1`,
		string(layer),
	)

	var (
		count     int
		blob      []byte
		fetchedAt time.Time
	)
	if err := row.Scan(&count, &blob, &fetchedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNoSnapshot, layer)
		}
		return nil, fmt.Errorf("error reading %s snapshot: %w", layer, err)
	}

	payload, err := decompress(blob)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Layer: layer, Payload: payload, Count: count, FetchedAt: fetchedAt}, nil
}

// Prune keeps the newest keep snapshots of layer and returns how many rows went.
func (s *SQLiteDB) Prune(ctx context.Context, layer models.Layer, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE layer = ? AND id NOT IN (
			SELECT id FROM snapshots WHERE layer = ? ORDER BY fetched_at DESC, id DESC LIMIT ?
		)`,
		string(layer), string(layer), keep,
	)
	if err != nil {
		return 0, fmt.Errorf("error pruning %s snapshots: %w", layer, err)
	}
	return res.RowsAffected()
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}
