// Package sink delivers finished posts: to a writer, onto a Kafka topic for
// the poster service, or straight to an HTTP webhook.
package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmcgover/ngrambot/pkg/config"
	apperrors "github.com/jmcgover/ngrambot/pkg/errors"
	"github.com/jmcgover/ngrambot/pkg/kafka"
)

// Post is one finished text with how it was generated.
type Post struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Kind      string    `json:"kind"`
	Order     int       `json:"order"`
	Mode      string    `json:"mode,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewPost stamps text with a fresh ULID and the current time.
func NewPost(text, kind string, order int, mode string) Post {
	return Post{
		ID:        ulid.Make().String(),
		Text:      text,
		Kind:      kind,
		Order:     order,
		Mode:      mode,
		CreatedAt: time.Now().UTC(),
	}
}

// Sink accepts finished posts. Errors wrap apperrors.ErrSinkFailed and are
// not retried here.
type Sink interface {
	Send(ctx context.Context, p Post) error
	Name() string
	Close() error
}

// WriterSink prints each post's text on its own line.
type WriterSink struct {
	w io.Writer
}

// NewWriterSink creates a WriterSink.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Send(_ context.Context, p Post) error {
	if _, err := fmt.Fprintln(s.w, p.Text); err != nil {
		return fmt.Errorf("%w: writing post: %v", apperrors.ErrSinkFailed, err)
	}
	return nil
}

func (s *WriterSink) Name() string { return "stdout" }

func (s *WriterSink) Close() error { return nil }

// New builds the sink selected by cfg.Sink.Type.
func New(cfg *config.Config) (Sink, error) {
	switch cfg.Sink.Type {
	case "", "stdout":
		return NewWriterSink(os.Stdout), nil
	case "kafka":
		return NewKafkaSink(kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Posts)), nil
	case "webhook":
		creds, err := LoadCredentials(cfg.Sink.CredentialsFile)
		if err != nil {
			return nil, err
		}
		return NewWebhookSink(cfg.Sink.WebhookURL, creds, cfg.Sink.Timeout)
	default:
		return nil, fmt.Errorf("%w: unknown sink type %q", apperrors.ErrInvalidArgument, cfg.Sink.Type)
	}
}
