package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcgover/ngrambot/pkg/config"
)

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	port, _ := strconv.Atoi(envOrDefault("TEST_POSTGRES_PORT", "5432"))
	client, err := New(config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            port,
		Database:        envOrDefault("TEST_POSTGRES_DB", "ngrambot_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "ngrambot"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	})
	if err != nil {
		t.Skipf("skipping: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestInTx(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	_, err := client.DB.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS intx_test_rows (n INT)`)
	require.NoError(t, err)
	t.Cleanup(func() { client.DB.Exec(`DROP TABLE IF EXISTS intx_test_rows`) })

	count := func() int {
		var n int
		require.NoError(t, client.DB.QueryRowContext(ctx, `SELECT count(*) FROM intx_test_rows`).Scan(&n))
		return n
	}

	boom := errors.New("boom")
	err = client.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO intx_test_rows (n) VALUES (1)`); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, count(), "failed fn must roll back")

	err = client.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO intx_test_rows (n) VALUES (2)`)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count())
}
