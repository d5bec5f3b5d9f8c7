// Command ngramd serves generated sentences over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jmcgover/ngrambot/internal/api"
	"github.com/jmcgover/ngrambot/internal/app"
	"github.com/jmcgover/ngrambot/pkg/config"
	"github.com/jmcgover/ngrambot/pkg/health"
	"github.com/jmcgover/ngrambot/pkg/logger"
	"github.com/jmcgover/ngrambot/pkg/metrics"
	"github.com/jmcgover/ngrambot/pkg/middleware"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	withHistory := flag.Bool("history", false, "serve the post history from postgres")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting ngramd", "port", cfg.Server.Port, "corpus", cfg.Corpus.Source, "cache", cfg.Cache.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	a, err := app.New(ctx, cfg, m, app.Options{History: *withHistory})
	if err != nil {
		slog.Error("failed to wire bot", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	warmStart := time.Now()
	if _, err := a.Models.Get(ctx, a.Key, cfg.Model.High); err != nil {
		slog.Error("failed to load model", "key", a.Key, "error", err)
		os.Exit(1)
	}
	slog.Info("model ready", "key", a.Key, "duration", time.Since(warmStart))

	checker := health.NewChecker()
	a.RegisterChecks(checker)

	var limiter *middleware.Limiter
	if cfg.Server.RateLimit > 0 {
		limiter = middleware.NewLimiter(cfg.Server.RateLimit, time.Minute)
		go limiter.Sweep(ctx)
	}

	var history api.PostLister
	if a.History != nil {
		history = a.History
	}
	defaultOrder := cfg.Model.High
	if len(cfg.Model.Orders) > 0 {
		defaultOrder = cfg.Model.Orders[0]
	}
	h := api.New(a.Bot, history, defaultOrder)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(h, checker, m, cfg.Server, limiter),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("ngramd listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("ngramd stopped")
}
