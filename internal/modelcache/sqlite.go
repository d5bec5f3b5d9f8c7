package modelcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/jmcgover/ngrambot/internal/ngram"
	apperrors "github.com/jmcgover/ngrambot/pkg/errors"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS models (
	key TEXT PRIMARY KEY,
	low INTEGER NOT NULL,
	high INTEGER NOT NULL,
	built_at TEXT NOT NULL,
	entry BLOB NOT NULL
);`

// SQLiteStore keeps entries in a single sqlite table keyed by cache key.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) the database at path in WAL mode.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite model cache %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL on %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating sqlite model cache schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context, key string) (*ngram.Model, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT entry FROM models WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrCacheMiss, key)
	}
	if err != nil {
		return nil, fmt.Errorf("querying model cache %s: %w", key, err)
	}
	m, err := decodeEntry(data)
	if err != nil {
		return nil, fmt.Errorf("decoding model cache %s: %w", key, err)
	}
	return m, nil
}

func (s *SQLiteStore) Save(ctx context.Context, key string, m *ngram.Model) error {
	data, err := encodeEntry(m)
	if err != nil {
		return fmt.Errorf("encoding model cache entry: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO models (key, low, high, built_at, entry) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
	low = excluded.low,
	high = excluded.high,
	built_at = excluded.built_at,
	entry = excluded.entry`,
		key, m.Low, m.High, builtAt(m).Format("2006-01-02T15:04:05Z07:00"), data,
	)
	if err != nil {
		return fmt.Errorf("saving model cache %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM models WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting model cache %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
