// Package poster delivers posts queued on Kafka to the configured sink. Each
// delivery runs under a timeout, is retried with backoff and passes through
// a circuit breaker; outcomes are recorded so redelivered messages are
// skipped.
package poster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmcgover/ngrambot/internal/sink"
	"github.com/jmcgover/ngrambot/pkg/config"
	apperrors "github.com/jmcgover/ngrambot/pkg/errors"
	"github.com/jmcgover/ngrambot/pkg/kafka"
	"github.com/jmcgover/ngrambot/pkg/metrics"
	"github.com/jmcgover/ngrambot/pkg/resilience"
)

// Ledger is the part of History the poster needs.
type Ledger interface {
	Status(ctx context.Context, id string) (string, error)
	Record(ctx context.Context, p sink.Post, status string) error
}

type Poster struct {
	sink    sink.Sink
	ledger  Ledger
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Poster. ledger may be nil, in which case nothing is recorded
// and duplicates are not detected.
func New(out sink.Sink, ledger Ledger, cfg config.ResilienceConfig, timeout time.Duration, m *metrics.Metrics) *Poster {
	name := "sink-" + out.Name()
	breaker := resilience.NewCircuitBreaker(name, resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.FailureThreshold,
		ResetTimeout:     cfg.ResetTimeout,
		IsFailure:        func(err error) bool { return !permanent(err) },
		OnStateChange: func(name string, _, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(resilience.StateClosed))

	return &Poster{
		sink:    out,
		ledger:  ledger,
		breaker: breaker,
		retry: resilience.RetryConfig{
			MaxAttempts:    cfg.RetryAttempts,
			InitialDelay:   cfg.RetryDelay,
			JitterFraction: 0.1,
			Retryable: func(err error) bool {
				return !permanent(err) && !errors.Is(err, resilience.ErrCircuitOpen)
			},
		},
		timeout: timeout,
		metrics: m,
		logger:  slog.Default().With("component", "poster", "sink", out.Name()),
	}
}

// permanent errors will not go away by trying again.
func permanent(err error) bool {
	return errors.Is(err, apperrors.ErrInvalidCredentials) || errors.Is(err, apperrors.ErrInvalidArgument)
}

// Deliver sends p unless it was already delivered.
func (ps *Poster) Deliver(ctx context.Context, p sink.Post) error {
	if p.ID == "" || p.Text == "" {
		return fmt.Errorf("%w: post needs an id and text", apperrors.ErrInvalidArgument)
	}
	if ps.ledger != nil {
		status, err := ps.ledger.Status(ctx, p.ID)
		if err != nil {
			return err
		}
		if status == StatusDelivered {
			ps.logger.Info("post already delivered, skipping", "id", p.ID)
			return nil
		}
	}

	err := resilience.Retry(ctx, "deliver "+p.ID, ps.retry, func(ctx context.Context) error {
		return ps.breaker.Execute(func() error {
			return resilience.WithTimeout(ctx, ps.timeout, "sink send", func(ctx context.Context) error {
				return ps.sink.Send(ctx, p)
			})
		})
	})

	status := StatusDelivered
	if err != nil {
		status = StatusFailed
		ps.metrics.PostsTotal.WithLabelValues(ps.sink.Name(), "error").Inc()
		ps.logger.Error("delivery failed", "id", p.ID, "error", err)
	} else {
		ps.metrics.PostsTotal.WithLabelValues(ps.sink.Name(), "ok").Inc()
		ps.logger.Info("post delivered", "id", p.ID, "order", p.Order, "mode", p.Mode)
	}

	if ps.ledger != nil {
		if recErr := ps.ledger.Record(ctx, p, status); recErr != nil {
			ps.logger.Error("recording post outcome failed", "id", p.ID, "status", status, "error", recErr)
		}
	}
	return err
}

// Handler is the kafka.MessageHandler for the posts topic. Undecodable
// messages and permanent failures are committed; anything else is left for
// redelivery.
func (ps *Poster) Handler() kafka.MessageHandler {
	return func(ctx context.Context, key, value []byte) error {
		p, err := kafka.DecodeJSON[sink.Post](value)
		if err != nil {
			ps.logger.Error("failed to decode post", "key", string(key), "error", err)
			return nil
		}
		if err := ps.Deliver(ctx, p); err != nil {
			if permanent(err) {
				ps.logger.Warn("dropping undeliverable post", "id", p.ID, "error", err)
				return nil
			}
			return err
		}
		return nil
	}
}

// BreakerState reports the sink breaker's state for health checks.
func (ps *Poster) BreakerState() resilience.State {
	return ps.breaker.State()
}

func (ps *Poster) Close() error {
	return ps.sink.Close()
}
