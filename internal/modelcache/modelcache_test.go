package modelcache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcgover/ngrambot/internal/ngram"
	"github.com/jmcgover/ngrambot/pkg/config"
	apperrors "github.com/jmcgover/ngrambot/pkg/errors"
	"github.com/jmcgover/ngrambot/pkg/metrics"
	pkgredis "github.com/jmcgover/ngrambot/pkg/redis"
)

var corpusTokens = []string{"I", "am", "here", ".", "He", "left", "early", "."}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func buildModel(t *testing.T, high int) *ngram.Model {
	t.Helper()
	m, err := ngram.NewModel(ngram.Input{Source: "I am here. He left early.", Tokens: corpusTokens}, 1, high, quietLogger())
	require.NoError(t, err)
	return m
}

func TestKeyFor(t *testing.T) {
	assert.Equal(t, "data/tweets-ngram.model", KeyFor("data/tweets.json"))
	assert.Equal(t, "corpus-ngram.model", KeyFor("corpus"))
}

func TestIsStale(t *testing.T) {
	m := buildModel(t, 3)
	assert.False(t, IsStale(m, 0))
	assert.False(t, IsStale(m, 3))
	assert.True(t, IsStale(m, 4))
}

func TestEntryRejectsTampering(t *testing.T) {
	data, err := encodeEntry(buildModel(t, 2))
	require.NoError(t, err)

	_, err = decodeEntry(data[:10])
	assert.ErrorIs(t, err, ErrCorrupt)

	flipped := append([]byte(nil), data...)
	flipped[len(flipped)-2] ^= 0xff
	_, err = decodeEntry(flipped)
	assert.ErrorIs(t, err, ErrCorrupt)

	badMagic := append([]byte(nil), data...)
	badMagic[0] = 0
	_, err = decodeEntry(badMagic)
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = decodeEntry(data[:len(data)-1])
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(t.TempDir())
	key := KeyFor("/corpora/tweets.json")

	_, err := store.Load(ctx, key)
	assert.ErrorIs(t, err, apperrors.ErrCacheMiss)

	m := buildModel(t, 3)
	require.NoError(t, store.Save(ctx, key, m))

	loaded, err := store.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, m, loaded)

	_, err = os.Stat(store.path(key) + ".tmp")
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Load(ctx, key)
	assert.ErrorIs(t, err, apperrors.ErrCacheMiss)
	assert.NoError(t, store.Delete(ctx, key))
}

func TestFileStoreRenameFailureRemovesTemp(t *testing.T) {
	store := NewFileStore(t.TempDir())
	store.rename = func(string, string) error { return errors.New("cross-device link") }

	err := store.Save(context.Background(), "k", buildModel(t, 2))
	assert.ErrorContains(t, err, "cross-device link")

	_, err = os.Stat(store.path("k") + ".tmp")
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(store.path("k"))
	assert.True(t, os.IsNotExist(err))
}

func TestFileStoreWithoutDirUsesKeyPath(t *testing.T) {
	ctx := context.Background()
	key := KeyFor(filepath.Join(t.TempDir(), "corpus.json"))

	require.NoError(t, NewFileStore("").Save(ctx, key, buildModel(t, 2)))
	_, err := os.Stat(key)
	assert.NoError(t, err)
}

func TestFileStoreCorruptFile(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad-ngram.model"), []byte("not a model"), 0o644))

	_, err := store.Load(context.Background(), "bad-ngram.model")
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.NotErrorIs(t, err, apperrors.ErrCacheMiss)
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLiteStore(ctx, filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Ping(ctx))

	_, err = store.Load(ctx, "k")
	assert.ErrorIs(t, err, apperrors.ErrCacheMiss)

	require.NoError(t, store.Save(ctx, "k", buildModel(t, 2)))
	bigger := buildModel(t, 4)
	require.NoError(t, store.Save(ctx, "k", bigger))

	loaded, err := store.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, bigger, loaded)

	require.NoError(t, store.Delete(ctx, "k"))
	_, err = store.Load(ctx, "k")
	assert.ErrorIs(t, err, apperrors.ErrCacheMiss)
}

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := pkgredis.NewClient(config.RedisConfig{Addr: mr.Addr(), PoolSize: 2})
	require.NoError(t, err)
	store := NewRedisStore(client, ttl)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t, time.Hour)
	require.NoError(t, store.Ping(ctx))

	_, err := store.Load(ctx, "tweets")
	assert.ErrorIs(t, err, apperrors.ErrCacheMiss)

	m := buildModel(t, 3)
	require.NoError(t, store.Save(ctx, "tweets", m))
	assert.Equal(t, time.Hour, mr.TTL(redisKeyPrefix+"tweets"))

	loaded, err := store.Load(ctx, "tweets")
	require.NoError(t, err)
	assert.Equal(t, m, loaded)

	require.NoError(t, mr.Set(redisKeyPrefix+"junk", "garbage"))
	_, err = store.Load(ctx, "junk")
	assert.ErrorIs(t, err, ErrCorrupt)

	require.NoError(t, mr.Set(redisKeyPrefix+"old", "stale"))
	require.NoError(t, store.Delete(ctx, "old"))
	assert.False(t, mr.Exists(redisKeyPrefix+"old"))

	deleted, err := store.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	assert.False(t, mr.Exists(redisKeyPrefix+"tweets"))
}

func TestOpenSelectsBackend(t *testing.T) {
	ctx := context.Background()
	cfg, err := config.Load("")
	require.NoError(t, err)

	cfg.Cache.Backend = "file"
	store, err := Open(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)

	cfg.Cache.Backend = "none"
	store, err = Open(ctx, cfg)
	require.NoError(t, err)
	_, err = store.Load(ctx, "x")
	assert.ErrorIs(t, err, apperrors.ErrCacheMiss)

	cfg.Cache.Backend = "sqlite"
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "c.db")
	store, err = Open(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)
	store.Close()

	cfg.Cache.Backend = "tape"
	_, err = Open(ctx, cfg)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	if out.Counter != nil {
		return out.Counter.GetValue()
	}
	return out.Gauge.GetValue()
}

type countingBuilder struct {
	t     *testing.T
	calls atomic.Int32
	highs []int
	err   error
}

func (b *countingBuilder) build(_ context.Context, high int) (*ngram.Model, error) {
	b.calls.Add(1)
	b.highs = append(b.highs, high)
	if b.err != nil {
		return nil, b.err
	}
	return buildModel(b.t, high), nil
}

// countingStore counts loads of the store it wraps.
type countingStore struct {
	Store
	loads atomic.Int32
}

func (s *countingStore) Load(ctx context.Context, key string) (*ngram.Model, error) {
	s.loads.Add(1)
	return s.Store.Load(ctx, key)
}

func newManager(t *testing.T, store Store, b *countingBuilder, high int) (*Manager, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	mg := NewManager(store, b.build, high, m, true)
	mg.logger = quietLogger()
	return mg, m
}

func TestManagerBuildsOnceThenServesResident(t *testing.T) {
	ctx := context.Background()
	b := &countingBuilder{t: t}
	store := &countingStore{Store: NewFileStore(t.TempDir())}
	mg, m := newManager(t, store, b, 3)

	first, err := mg.Get(ctx, "corpus-ngram.model", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, first.High)

	for i := 0; i < 10; i++ {
		again, err := mg.Get(ctx, "corpus-ngram.model", 2+i%2)
		require.NoError(t, err)
		assert.Same(t, first, again)
	}

	assert.Equal(t, int32(1), b.calls.Load())
	assert.Equal(t, int32(1), store.loads.Load())
	assert.Equal(t, 1.0, value(t, m.ModelCacheTotal.WithLabelValues("miss")))
	assert.Equal(t, 10.0, value(t, m.ModelCacheTotal.WithLabelValues("resident")))
	assert.Equal(t, 3.0, value(t, m.ModelMaxOrder))
}

func TestManagerLoadsStoredModelOnce(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Store: NewFileStore(t.TempDir())}
	require.NoError(t, store.Save(ctx, "k", buildModel(t, 3)))

	b := &countingBuilder{t: t}
	mg, m := newManager(t, store, b, 3)
	for i := 0; i < 5; i++ {
		_, err := mg.Get(ctx, "k", 3)
		require.NoError(t, err)
	}

	assert.Zero(t, b.calls.Load())
	assert.Equal(t, int32(1), store.loads.Load())
	assert.Equal(t, 1.0, value(t, m.ModelCacheTotal.WithLabelValues("hit")))
}

func TestManagerReplacesStaleResidentModel(t *testing.T) {
	ctx := context.Background()
	b := &countingBuilder{t: t}
	mg, _ := newManager(t, NewFileStore(t.TempDir()), b, 2)

	small, err := mg.Get(ctx, "k", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, small.High)

	big, err := mg.Get(ctx, "k", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, big.High)

	again, err := mg.Get(ctx, "k", 2)
	require.NoError(t, err)
	assert.Same(t, big, again)
	assert.Equal(t, []int{2, 4}, b.highs)
}

func TestManagerRebuildsStaleModel(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(t.TempDir())
	require.NoError(t, store.Save(ctx, "k", buildModel(t, 2)))

	b := &countingBuilder{t: t}
	mg, m := newManager(t, store, b, 3)

	got, err := mg.Get(ctx, "k", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, got.High)
	assert.Equal(t, []int{5}, b.highs)
	assert.Equal(t, 1.0, value(t, m.ModelCacheTotal.WithLabelValues("stale")))

	saved, err := store.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 5, saved.High)
}

func TestManagerRebuildsCorruptEntry(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "k"), []byte("garbage"), 0o644))

	b := &countingBuilder{t: t}
	mg, m := newManager(t, NewFileStore(dir), b, 2)

	got, err := mg.Get(context.Background(), "k", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, got.High)
	assert.Equal(t, 1.0, value(t, m.ModelCacheTotal.WithLabelValues("corrupt")))
}

func TestManagerDropsCorruptEntryWhenBuildFails(t *testing.T) {
	store, mr := newRedisStore(t, 0)
	require.NoError(t, mr.Set(redisKeyPrefix+"k", "garbage"))

	b := &countingBuilder{t: t, err: errors.New("corpus unreadable")}
	mg, _ := newManager(t, store, b, 2)

	_, err := mg.Get(context.Background(), "k", 0)
	assert.Error(t, err)
	assert.False(t, mr.Exists(redisKeyPrefix+"k"))
}

type failingStore struct{ NopStore }

func (failingStore) Save(context.Context, string, *ngram.Model) error {
	return errors.New("disk full")
}

func TestManagerIgnoresSaveFailure(t *testing.T) {
	b := &countingBuilder{t: t}
	mg, _ := newManager(t, failingStore{}, b, 2)

	got, err := mg.Get(context.Background(), "k", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, got.High)
}

func TestManagerBuildFailure(t *testing.T) {
	boom := errors.New("corpus unreadable")
	b := &countingBuilder{t: t, err: boom}
	mg, _ := newManager(t, NopStore{}, b, 2)

	_, err := mg.Get(context.Background(), "k", 0)
	assert.ErrorIs(t, err, boom)
}

func TestManagerRebuildForces(t *testing.T) {
	ctx := context.Background()
	b := &countingBuilder{t: t}
	mg, _ := newManager(t, NewFileStore(t.TempDir()), b, 2)

	_, err := mg.Get(ctx, "k", 0)
	require.NoError(t, err)
	rebuilt, err := mg.Rebuild(ctx, "k", 3)
	require.NoError(t, err)

	got, err := mg.Get(ctx, "k", 0)
	require.NoError(t, err)
	assert.Same(t, rebuilt, got)
	assert.Equal(t, []int{2, 3}, b.highs)
}
