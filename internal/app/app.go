// Package app assembles the bot and its dependencies from configuration for
// the commands.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmcgover/ngrambot/internal/bot"
	"github.com/jmcgover/ngrambot/internal/corpus"
	"github.com/jmcgover/ngrambot/internal/generator"
	"github.com/jmcgover/ngrambot/internal/modelcache"
	"github.com/jmcgover/ngrambot/internal/nlp"
	"github.com/jmcgover/ngrambot/internal/poster"
	"github.com/jmcgover/ngrambot/internal/sink"
	"github.com/jmcgover/ngrambot/pkg/config"
	"github.com/jmcgover/ngrambot/pkg/health"
	"github.com/jmcgover/ngrambot/pkg/logger"
	"github.com/jmcgover/ngrambot/pkg/metrics"
	"github.com/jmcgover/ngrambot/pkg/postgres"
)

// App holds everything a command needs. Close releases it in reverse order.
type App struct {
	Bot     *bot.Bot
	Models  *modelcache.Manager
	Store   modelcache.Store
	Sink    sink.Sink
	DB      *postgres.Client
	History *poster.History
	Key     string

	closers []func() error
}

// Options select the optional parts of the wiring.
type Options struct {
	// History opens PostgreSQL for the post history even when the corpus
	// does not live there.
	History bool
	// Sink overrides the sink built from cfg.Sink.
	Sink sink.Sink
}

// New wires an App from cfg.
func New(ctx context.Context, cfg *config.Config, m *metrics.Metrics, opts Options) (*App, error) {
	a := &App{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	if cfg.Corpus.Source == "postgres" || opts.History {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			return nil, err
		}
		a.DB = db
		a.closers = append(a.closers, db.Close)
		if opts.History {
			a.History = poster.NewHistory(db)
			if err := a.History.EnsureSchema(ctx); err != nil {
				return nil, err
			}
		}
	}

	source, err := corpus.NewSource(cfg.Corpus, a.sqlDB())
	if err != nil {
		return nil, err
	}
	a.Key = cacheKey(cfg.Corpus)

	store, err := modelcache.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Store = store

	loader := corpus.NewLoader(source, cfg.Corpus.Separator, corpus.NewNormalizer(cfg.Corpus.Strip), nlp.NewTagger(nil))
	build := bot.NewBuilder(loader, cfg.Model.Low, logger.WithComponent("ngram-builder"))
	a.Models = modelcache.NewManager(store, build, cfg.Model.High, m, cfg.Tracing.Enabled)
	a.closers = append(a.closers, a.Models.Close)

	a.Sink = opts.Sink
	if a.Sink == nil {
		out, err := sink.New(cfg)
		if err != nil {
			return nil, err
		}
		a.Sink = out
	}
	a.closers = append(a.closers, a.Sink.Close)

	engine := generator.New(generator.WithMaxMisses(cfg.Model.MaxLookupMisses))
	a.Bot = bot.New(a.Models, a.Key, engine, a.Sink, cfg, m)

	ok = true
	return a, nil
}

func (a *App) sqlDB() *sql.DB {
	if a.DB == nil {
		return nil
	}
	return a.DB.DB
}

// cacheKey names the model entry after the corpus it was built from.
func cacheKey(cfg config.CorpusConfig) string {
	if cfg.Source == "postgres" {
		return modelcache.KeyFor("postgres-" + cfg.Table)
	}
	return modelcache.KeyFor(cfg.Path)
}

// RegisterChecks adds readiness checks for every dependency the App opened.
func (a *App) RegisterChecks(checker *health.Checker) {
	if a.DB != nil {
		checker.Register("postgres", health.PingCheck(a.DB.Ping, false))
	}
	if p, ok := a.Store.(interface{ Ping(context.Context) error }); ok {
		checker.Register("model_cache", health.PingCheck(p.Ping, true))
	}
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("closing app: %w", err)
	}
	return nil
}
