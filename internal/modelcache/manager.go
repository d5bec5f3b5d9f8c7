package modelcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jmcgover/ngrambot/internal/ngram"
	apperrors "github.com/jmcgover/ngrambot/pkg/errors"
	"github.com/jmcgover/ngrambot/pkg/metrics"
	"github.com/jmcgover/ngrambot/pkg/tracing"
)

// BuildFunc builds a fresh model whose maximum order is high.
type BuildFunc func(ctx context.Context, high int) (*ngram.Model, error)

// Manager keeps one resident model per key. The Store is only consulted when
// no resident model exists or the resident one is too small for the requested
// order; a stored entry that is missing, unreadable or stale is rebuilt. A
// resident model is read-only and replaced, never modified, by Rebuild.
type Manager struct {
	store   Store
	build   BuildFunc
	high    int
	metrics *metrics.Metrics
	traced  bool
	group   singleflight.Group
	logger  *slog.Logger

	mu       sync.RWMutex
	resident map[string]*ngram.Model
}

// NewManager creates a Manager. high is the configured maximum order; a
// rebuild uses the larger of it and the requested order.
func NewManager(store Store, build BuildFunc, high int, m *metrics.Metrics, traced bool) *Manager {
	return &Manager{
		store:   store,
		build:   build,
		high:    high,
		metrics: m,
		traced:   traced,
		logger:   slog.Default().With("component", "model-cache"),
		resident: make(map[string]*ngram.Model),
	}
}

// Get returns the resident model for key, loading or rebuilding it when needed.
// A requested order of zero accepts any model. Concurrent calls for the same
// key and order share one load or build.
func (mg *Manager) Get(ctx context.Context, key string, requested int) (*ngram.Model, error) {
	if m := mg.lookup(key); m != nil && !IsStale(m, requested) {
		mg.metrics.ModelCacheTotal.WithLabelValues("resident").Inc()
		return m, nil
	}
	v, err, shared := mg.group.Do(fmt.Sprintf("get:%s@%d", key, requested), func() (any, error) {
		if m := mg.lookup(key); m != nil && !IsStale(m, requested) {
			return m, nil
		}
		m, err := mg.get(ctx, key, requested)
		if err != nil {
			return nil, err
		}
		mg.keep(key, m)
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		mg.logger.Debug("model load coalesced", "key", key, "requested", requested)
	}
	return v.(*ngram.Model), nil
}

// Rebuild builds a fresh model regardless of what is stored, overwrites the
// entry and makes the new model resident.
func (mg *Manager) Rebuild(ctx context.Context, key string, requested int) (*ngram.Model, error) {
	v, err, _ := mg.group.Do("rebuild:"+key, func() (any, error) {
		ctx, span := tracing.Start(ctx, "model.rebuild")
		defer mg.finish(span)
		m, err := mg.rebuild(ctx, key, requested)
		if err != nil {
			return nil, err
		}
		mg.keep(key, m)
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ngram.Model), nil
}

func (mg *Manager) get(ctx context.Context, key string, requested int) (*ngram.Model, error) {
	ctx, span := tracing.Start(ctx, "model.get")
	span.SetAttr("key", key)
	span.SetAttr("requested", requested)
	defer mg.finish(span)

	_, loadSpan := tracing.Start(ctx, "model.load")
	m, err := mg.store.Load(ctx, key)
	loadSpan.End()

	switch {
	case err == nil && !IsStale(m, requested):
		mg.metrics.ModelCacheTotal.WithLabelValues("hit").Inc()
		mg.metrics.ModelMaxOrder.Set(float64(m.High))
		mg.logger.Info("model loaded from cache", "key", key, "low", m.Low, "high", m.High)
		return m, nil
	case err == nil:
		mg.metrics.ModelCacheTotal.WithLabelValues("stale").Inc()
		mg.logger.Info("cached model is stale, rebuilding", "key", key, "high", m.High, "requested", requested)
	case errors.Is(err, apperrors.ErrCacheMiss):
		mg.metrics.ModelCacheTotal.WithLabelValues("miss").Inc()
		mg.logger.Info("model not cached, building", "key", key)
	default:
		mg.metrics.ModelCacheTotal.WithLabelValues("corrupt").Inc()
		mg.logger.Warn("model cache unreadable, rebuilding", "key", key, "error", err)
		if err := mg.store.Delete(ctx, key); err != nil {
			mg.logger.Error("deleting unreadable model cache entry failed", "key", key, "error", err)
		}
	}
	return mg.rebuild(ctx, key, requested)
}

func (mg *Manager) lookup(key string) *ngram.Model {
	mg.mu.RLock()
	defer mg.mu.RUnlock()
	return mg.resident[key]
}

func (mg *Manager) keep(key string, m *ngram.Model) {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	mg.resident[key] = m
}

func (mg *Manager) rebuild(ctx context.Context, key string, requested int) (*ngram.Model, error) {
	high := max(mg.high, requested)

	_, buildSpan := tracing.Start(ctx, "model.build")
	buildSpan.SetAttr("high", high)
	start := time.Now()
	m, err := mg.build(ctx, high)
	mg.metrics.ModelBuildDuration.Observe(time.Since(start).Seconds())
	buildSpan.End()
	if err != nil {
		return nil, fmt.Errorf("building model %s: %w", key, err)
	}

	_, saveSpan := tracing.Start(ctx, "model.save")
	if err := mg.store.Save(ctx, key, m); err != nil {
		mg.logger.Error("saving model cache failed", "key", key, "error", err)
	}
	saveSpan.End()

	mg.metrics.ModelMaxOrder.Set(float64(m.High))
	mg.logger.Info("model built", "key", key, "low", m.Low, "high", m.High, "duration", time.Since(start))
	return m, nil
}

func (mg *Manager) finish(span *tracing.Span) {
	span.End()
	if mg.traced {
		span.Log(mg.logger)
	}
}

// Close releases the underlying store.
func (mg *Manager) Close() error {
	return mg.store.Close()
}
