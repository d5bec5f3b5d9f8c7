// Command poster consumes queued posts from Kafka and delivers them to the
// webhook sink.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jmcgover/ngrambot/internal/poster"
	"github.com/jmcgover/ngrambot/internal/sink"
	"github.com/jmcgover/ngrambot/pkg/config"
	"github.com/jmcgover/ngrambot/pkg/kafka"
	"github.com/jmcgover/ngrambot/pkg/logger"
	"github.com/jmcgover/ngrambot/pkg/metrics"
	"github.com/jmcgover/ngrambot/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	withHistory := flag.Bool("history", true, "record delivered posts in postgres")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	// Posts on the topic were put there by a kafka sink; deliver them to the
	// endpoint instead of back onto the topic.
	if cfg.Sink.Type == "kafka" {
		cfg.Sink.Type = "webhook"
	}
	slog.Info("starting poster", "topic", cfg.Kafka.Topics.Posts, "group", cfg.Kafka.ConsumerGroup, "sink", cfg.Sink.Type)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	out, err := sink.New(cfg)
	if err != nil {
		slog.Error("failed to create sink", "error", err)
		os.Exit(1)
	}

	var ledger poster.Ledger
	if *withHistory {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		history := poster.NewHistory(db)
		if err := history.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare post history", "error", err)
			os.Exit(1)
		}
		ledger = history
	}

	ps := poster.New(out, ledger, cfg.Resilience, cfg.Sink.Timeout, m)
	defer ps.Close()

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.Posts, ps.Handler())
	defer consumer.Close()

	if err := consumer.Run(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}
	slog.Info("poster stopped")
}
