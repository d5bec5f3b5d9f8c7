// Command ngrambot prints or posts one generated sentence. Generated text goes
// to stdout and logs to stderr.
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

	"github.com/jmcgover/ngrambot/internal/app"
	"github.com/jmcgover/ngrambot/internal/generator"
	"github.com/jmcgover/ngrambot/pkg/config"
	"github.com/jmcgover/ngrambot/pkg/logger"
	"github.com/jmcgover/ngrambot/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	corpusPath := flag.String("corpus", "", "corpus JSON file, overrides the config")
	order := flag.Int("order", 0, "gram order; 0 composes a post from the configured orders and link modes")
	link := flag.String("link", "full", "link mode used with -order: full, last or random")
	pos := flag.Bool("pos", false, "generate a part-of-speech sentence instead")
	post := flag.Bool("post", false, "send the composed post to the configured sink")
	purge := flag.Bool("purge", false, "drop every model cached in redis before generating")
	debug := flag.Bool("d", false, "debug logging")
	info := flag.Bool("i", false, "info logging")
	quiet := flag.Bool("q", false, "only log errors")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *corpusPath != "" {
		cfg.Corpus.Source = "json"
		cfg.Corpus.Path = *corpusPath
	}
	level := cfg.Logging.Level
	switch {
	case *debug:
		level = "debug"
	case *info:
		level = "info"
	case *quiet:
		level = "error"
	}
	logger.SetupWriter(os.Stderr, level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *order, *link, *pos, *post, *purge); err != nil {
		slog.Error("ngrambot failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, order int, link string, pos, post, purge bool) error {
	a, err := app.New(ctx, cfg, metrics.New(prometheus.NewRegistry()), app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	if purge {
		p, ok := a.Store.(interface {
			Purge(context.Context) (int64, error)
		})
		if !ok {
			return fmt.Errorf("-purge needs the redis cache backend, have %q", cfg.Cache.Backend)
		}
		n, err := p.Purge(ctx)
		if err != nil {
			return err
		}
		slog.Info("purged cached models", "count", n)
	}

	switch {
	case post:
		p, err := a.Bot.Post(ctx)
		if err != nil {
			return err
		}
		slog.Info("posted", "id", p.ID, "sink", a.Sink.Name())
	case pos:
		s, err := a.Bot.PosSentence(ctx, order)
		if err != nil {
			return err
		}
		fmt.Println(s.Text)
	case order > 0:
		mode, err := generator.ParseLinkMode(link)
		if err != nil {
			return err
		}
		s, err := a.Bot.Sentence(ctx, order, mode)
		if err != nil {
			return err
		}
		if s.Stalled {
			slog.Warn("sentence stalled before a terminal token", "order", order)
		}
		fmt.Println(s.Text)
	default:
		p, err := a.Bot.Compose(ctx)
		if err != nil {
			return err
		}
		fmt.Println(p.Text)
	}
	return nil
}
