package poster

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmcgover/ngrambot/internal/sink"
	"github.com/jmcgover/ngrambot/pkg/postgres"
)

const (
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
)

// Entry is one row of the post history.
type Entry struct {
	sink.Post
	Status      string     `json:"status"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

// History records post outcomes in PostgreSQL so a redelivered message is
// not posted twice.
//
// It uses a `posts` table and its created_at index, created by EnsureSchema:
//
//	CREATE TABLE posts (
//	    id           TEXT PRIMARY KEY,
//	    text         TEXT NOT NULL,
//	    kind         TEXT NOT NULL,
//	    gram_order   INT NOT NULL,
//	    link_mode    TEXT NOT NULL DEFAULT '',
//	    status       TEXT NOT NULL,
//	    created_at   TIMESTAMPTZ NOT NULL,
//	    delivered_at TIMESTAMPTZ
//	);
//	CREATE INDEX posts_created_at_idx ON posts (created_at DESC);
type History struct {
	client *postgres.Client
	db     *sql.DB
	logger *slog.Logger
}

func NewHistory(client *postgres.Client) *History {
	return &History{
		client: client,
		db:     client.DB,
		logger: slog.Default().With("component", "post-history"),
	}
}

// EnsureSchema creates the posts table and its index in one transaction if
// they do not exist.
func (h *History) EnsureSchema(ctx context.Context) error {
	return h.client.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, createPostsTable); err != nil {
			return fmt.Errorf("creating posts table: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS posts_created_at_idx ON posts (created_at DESC)`); err != nil {
			return fmt.Errorf("creating posts index: %w", err)
		}
		return nil
	})
}

const createPostsTable = `CREATE TABLE IF NOT EXISTS posts (
		id           TEXT PRIMARY KEY,
		text         TEXT NOT NULL,
		kind         TEXT NOT NULL,
		gram_order   INT NOT NULL,
		link_mode    TEXT NOT NULL DEFAULT '',
		status       TEXT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL,
		delivered_at TIMESTAMPTZ
	)`

// Status returns the recorded status of post id, or "" if it was never seen.
func (h *History) Status(ctx context.Context, id string) (string, error) {
	var status string
	err := h.db.QueryRowContext(ctx, `SELECT status FROM posts WHERE id = $1`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying post %s: %w", id, err)
	}
	return status, nil
}

// Record stores the outcome for p. A delivered post is never downgraded by a
// later failure.
func (h *History) Record(ctx context.Context, p sink.Post, status string) error {
	var deliveredAt sql.NullTime
	if status == StatusDelivered {
		deliveredAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	}
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO posts (id, text, kind, gram_order, link_mode, status, created_at, delivered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, delivered_at = EXCLUDED.delivered_at
		WHERE posts.status <> 'delivered'`,
		p.ID, p.Text, p.Kind, p.Order, p.Mode, status, p.CreatedAt, deliveredAt,
	)
	if err != nil {
		return fmt.Errorf("recording post %s: %w", p.ID, err)
	}
	h.logger.Debug("post recorded", "id", p.ID, "status", status)
	return nil
}

// Recent returns up to limit posts, newest first.
func (h *History) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT id, text, kind, gram_order, link_mode, status, created_at, delivered_at
		FROM posts ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing posts: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var deliveredAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.Text, &e.Kind, &e.Order, &e.Mode, &e.Status, &e.CreatedAt, &deliveredAt); err != nil {
			return nil, fmt.Errorf("scanning post row: %w", err)
		}
		if deliveredAt.Valid {
			e.DeliveredAt = &deliveredAt.Time
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
