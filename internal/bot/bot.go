// Package bot is the caller-facing side of the generator: it fetches the model
// for the configured corpus, produces rendered sentences, and composes posts
// for a sink.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/jmcgover/ngrambot/internal/corpus"
	"github.com/jmcgover/ngrambot/internal/generator"
	"github.com/jmcgover/ngrambot/internal/modelcache"
	"github.com/jmcgover/ngrambot/internal/ngram"
	"github.com/jmcgover/ngrambot/internal/sink"
	"github.com/jmcgover/ngrambot/pkg/config"
	apperrors "github.com/jmcgover/ngrambot/pkg/errors"
	"github.com/jmcgover/ngrambot/pkg/metrics"
)

// Models is where the bot gets its model from; modelcache.Manager in
// production.
type Models interface {
	Get(ctx context.Context, key string, requested int) (*ngram.Model, error)
	Rebuild(ctx context.Context, key string, requested int) (*ngram.Model, error)
}

// Sentence is one rendered sentence and how it was made.
type Sentence struct {
	Text    string   `json:"text"`
	Tokens  []string `json:"tokens"`
	Kind    string   `json:"kind"`
	Order   int      `json:"order"`
	Mode    string   `json:"mode,omitempty"`
	Stalled bool     `json:"stalled,omitempty"`
	Misses  int      `json:"misses,omitempty"`
}

// Bot generates sentences and posts.
type Bot struct {
	models   Models
	key      string
	engine   *generator.Engine
	sink     sink.Sink
	model    config.ModelConfig
	post     config.PostConfig
	maxOrder int
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a Bot reading models stored under key.
func New(models Models, key string, engine *generator.Engine, out sink.Sink, cfg *config.Config, m *metrics.Metrics) *Bot {
	maxOrder := cfg.Model.High
	if len(cfg.Model.Orders) > 0 {
		maxOrder = max(maxOrder, slices.Max(cfg.Model.Orders))
	}
	return &Bot{
		models:   models,
		key:      key,
		engine:   engine,
		sink:     out,
		model:    cfg.Model,
		post:     cfg.Post,
		maxOrder: maxOrder,
		metrics:  m,
		logger:   slog.Default().With("component", "bot"),
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// NewBuilder returns the BuildFunc the model cache uses to build from the
// corpus. Tags are built alongside the words.
func NewBuilder(loader *corpus.Loader, low int, logger *slog.Logger) modelcache.BuildFunc {
	return func(ctx context.Context, high int) (*ngram.Model, error) {
		in, err := loader.Load(ctx)
		if err != nil {
			return nil, err
		}
		return ngram.NewModel(in, low, high, logger)
	}
}

func (b *Bot) checkOrder(order int) error {
	if order < 2 || order > b.maxOrder {
		return fmt.Errorf("%w: order %d outside [2, %d]", apperrors.ErrOrderOutOfRange, order, b.maxOrder)
	}
	return nil
}

// Sentence generates one n-gram sentence of the given order and link mode.
func (b *Bot) Sentence(ctx context.Context, order int, mode generator.LinkMode) (Sentence, error) {
	if err := b.checkOrder(order); err != nil {
		return Sentence{}, err
	}
	m, err := b.models.Get(ctx, b.key, order)
	if err != nil {
		return Sentence{}, fmt.Errorf("loading model: %w", err)
	}

	start := time.Now()
	res, err := b.engine.Generate(ctx, m.Words, order, mode)
	b.metrics.GenerationLatency.WithLabelValues("ngram").Observe(time.Since(start).Seconds())
	b.metrics.LookupMissesTotal.Add(float64(res.Misses))
	if err != nil {
		b.metrics.SentencesTotal.WithLabelValues("ngram", mode.String(), "error").Inc()
		return Sentence{}, fmt.Errorf("generating order-%d sentence: %w", order, err)
	}

	outcome := "ok"
	if res.Stalled {
		outcome = "stalled"
	}
	b.metrics.SentencesTotal.WithLabelValues("ngram", mode.String(), outcome).Inc()
	return Sentence{
		Text:    generator.Render(res.Tokens),
		Tokens:  res.Tokens,
		Kind:    "ngram",
		Order:   order,
		Mode:    mode.String(),
		Stalled: res.Stalled,
		Misses:  res.Misses,
	}, nil
}

// PosSentence generates a part-of-speech skeleton of the given order and fills
// it with words. An order of zero uses the configured default.
func (b *Bot) PosSentence(ctx context.Context, order int) (Sentence, error) {
	if order == 0 {
		order = b.model.PosOrder
	}
	if err := b.checkOrder(order); err != nil {
		return Sentence{}, err
	}
	m, err := b.models.Get(ctx, b.key, order)
	if err != nil {
		return Sentence{}, fmt.Errorf("loading model: %w", err)
	}
	if m.Tags == nil {
		return Sentence{}, fmt.Errorf("%w: model was built without part-of-speech tags", apperrors.ErrInvalidArgument)
	}

	start := time.Now()
	words, err := b.engine.FillFromTags(ctx, m.Tags, m.PosWords, order)
	b.metrics.GenerationLatency.WithLabelValues("pos").Observe(time.Since(start).Seconds())
	if err != nil {
		b.metrics.SentencesTotal.WithLabelValues("pos", "full", "error").Inc()
		return Sentence{}, fmt.Errorf("generating order-%d pos sentence: %w", order, err)
	}
	b.metrics.SentencesTotal.WithLabelValues("pos", "full", "ok").Inc()
	return Sentence{
		Text:   generator.Render(words),
		Tokens: words,
		Kind:   "pos",
		Order:  order,
	}, nil
}

// Compose picks a random order and link mode from the configured choices and
// generates sentences until one fits the configured length with the suffix.
func (b *Bot) Compose(ctx context.Context) (sink.Post, error) {
	order, mode, err := b.pick()
	if err != nil {
		return sink.Post{}, err
	}
	attempts := 0
	text, err := generator.Bounded(ctx, func() (string, error) {
		attempts++
		s, err := b.Sentence(ctx, order, mode)
		if err != nil {
			return "", err
		}
		return s.Text, nil
	}, b.post.Suffix, b.post.MaxLength, b.post.MaxAttempts)
	if err != nil {
		return sink.Post{}, fmt.Errorf("composing post: %w", err)
	}
	b.logger.Debug("post composed", "order", order, "mode", mode.String(), "attempts", attempts, "length", len([]rune(text)))
	return sink.NewPost(text, "ngram", order, mode.String()), nil
}

// Post composes a post and hands it to the sink. Sink errors are returned
// as is.
func (b *Bot) Post(ctx context.Context) (sink.Post, error) {
	p, err := b.Compose(ctx)
	if err != nil {
		return sink.Post{}, err
	}
	if err := b.sink.Send(ctx, p); err != nil {
		b.metrics.PostsTotal.WithLabelValues(b.sink.Name(), "error").Inc()
		return p, fmt.Errorf("sending post %s: %w", p.ID, err)
	}
	b.metrics.PostsTotal.WithLabelValues(b.sink.Name(), "ok").Inc()
	b.logger.Info("post sent", "id", p.ID, "sink", b.sink.Name(), "order", p.Order, "mode", p.Mode)
	return p, nil
}

// Rebuild forces a fresh model build at the configured maximum order.
func (b *Bot) Rebuild(ctx context.Context) (*ngram.Model, error) {
	return b.models.Rebuild(ctx, b.key, b.maxOrder)
}

func (b *Bot) pick() (int, generator.LinkMode, error) {
	if len(b.model.Orders) == 0 || len(b.model.LinkModes) == 0 {
		return 0, 0, fmt.Errorf("%w: no orders or link modes configured", apperrors.ErrInvalidArgument)
	}
	b.mu.Lock()
	order := b.model.Orders[b.rng.IntN(len(b.model.Orders))]
	modeName := b.model.LinkModes[b.rng.IntN(len(b.model.LinkModes))]
	b.mu.Unlock()

	mode, err := generator.ParseLinkMode(modeName)
	if err != nil {
		return 0, 0, err
	}
	return order, mode, nil
}
