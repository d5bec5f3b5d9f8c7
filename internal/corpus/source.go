package corpus

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"github.com/lib/pq"

	"github.com/jmcgover/ngrambot/pkg/config"
	apperrors "github.com/jmcgover/ngrambot/pkg/errors"
)

// Source yields the raw texts a model is trained on.
type Source interface {
	Texts(ctx context.Context) ([]string, error)
}

// JSONFileSource reads texts from a JSON file holding either an array of
// {"text": "..."} records or an object {"texts": ["...", ...]}.
type JSONFileSource struct {
	Path string
}

type textRecord struct {
	Text string `json:"text"`
}

type textList struct {
	Texts []string `json:"texts"`
}

// Texts reads and decodes the file.
func (s JSONFileSource) Texts(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("reading corpus %s: %w", s.Path, err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: corpus %s is empty", apperrors.ErrInvalidArgument, s.Path)
	}
	if trimmed[0] == '[' {
		var records []textRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("parsing corpus %s: %w", s.Path, err)
		}
		texts := make([]string, 0, len(records))
		for _, r := range records {
			texts = append(texts, r.Text)
		}
		return texts, nil
	}

	var list textList
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return nil, fmt.Errorf("parsing corpus %s: %w", s.Path, err)
	}
	return list.Texts, nil
}

// PostgresSource reads the text column of a table in insertion order.
//
// The table needs at least:
//
//	CREATE TABLE corpus_texts (
//	    id   BIGSERIAL PRIMARY KEY,
//	    text TEXT NOT NULL
//	);
type PostgresSource struct {
	db    *sql.DB
	table string
}

// NewPostgresSource creates a source over table.
func NewPostgresSource(db *sql.DB, table string) *PostgresSource {
	return &PostgresSource{db: db, table: table}
}

// Texts queries every row.
func (s *PostgresSource) Texts(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`SELECT text FROM %s ORDER BY id`, pq.QuoteIdentifier(s.table))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying corpus table %s: %w", s.table, err)
	}
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("scanning corpus row: %w", err)
		}
		texts = append(texts, text)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating corpus rows: %w", err)
	}
	return texts, nil
}

// NewSource picks the source named by cfg.Source. db is only used by the
// postgres source and may be nil otherwise.
func NewSource(cfg config.CorpusConfig, db *sql.DB) (Source, error) {
	switch cfg.Source {
	case "", "json":
		if cfg.Path == "" {
			return nil, fmt.Errorf("%w: corpus path is required for the json source", apperrors.ErrInvalidArgument)
		}
		return JSONFileSource{Path: cfg.Path}, nil
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("%w: postgres corpus source needs a database connection", apperrors.ErrInvalidArgument)
		}
		return NewPostgresSource(db, cfg.Table), nil
	default:
		return nil, fmt.Errorf("%w: unknown corpus source %q", apperrors.ErrInvalidArgument, cfg.Source)
	}
}
