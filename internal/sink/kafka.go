package sink

import (
	"context"
	"fmt"

	apperrors "github.com/jmcgover/ngrambot/pkg/errors"
)

// Publisher is the part of kafka.Producer the sink uses.
type Publisher interface {
	Publish(ctx context.Context, key string, value any) error
	Close() error
}

// KafkaSink publishes posts keyed by ID for the poster service to deliver.
type KafkaSink struct {
	producer Publisher
}

// NewKafkaSink creates a KafkaSink.
func NewKafkaSink(producer Publisher) *KafkaSink {
	return &KafkaSink{producer: producer}
}

func (s *KafkaSink) Send(ctx context.Context, p Post) error {
	if err := s.producer.Publish(ctx, p.ID, p); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrSinkFailed, err)
	}
	return nil
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Close() error {
	return s.producer.Close()
}
