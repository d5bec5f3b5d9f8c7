package corpus

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmcgover/ngrambot/internal/ngram"
	"github.com/jmcgover/ngrambot/internal/nlp"
	apperrors "github.com/jmcgover/ngrambot/pkg/errors"
)

// Loader joins a source's texts, normalizes them, and tokenizes the result.
// When a tagger is set the tokens are tagged as well.
type Loader struct {
	source     Source
	separator  string
	normalizer *Normalizer
	tokenizer  *nlp.Tokenizer
	tagger     *nlp.Tagger
	logger     *slog.Logger
}

// NewLoader creates a Loader. tagger may be nil.
func NewLoader(source Source, separator string, normalizer *Normalizer, tagger *nlp.Tagger) *Loader {
	return &Loader{
		source:     source,
		separator:  separator,
		normalizer: normalizer,
		tokenizer:  nlp.NewTokenizer(),
		tagger:     tagger,
		logger:     slog.Default().With("component", "corpus-loader"),
	}
}

// Load produces the input for ngram.NewModel.
func (l *Loader) Load(ctx context.Context) (ngram.Input, error) {
	texts, err := l.source.Texts(ctx)
	if err != nil {
		return ngram.Input{}, fmt.Errorf("loading corpus texts: %w", err)
	}

	text := l.normalizer.Normalize(strings.Join(texts, l.separator))
	tokens := l.tokenizer.Tokenize(text)
	if len(tokens) == 0 {
		return ngram.Input{}, fmt.Errorf("%w: corpus produced no tokens", apperrors.ErrInvalidArgument)
	}

	in := ngram.Input{Source: text, Tokens: tokens}
	if l.tagger != nil {
		in.Tagged = l.tagger.Tag(tokens)
	}

	l.logger.Info("corpus loaded",
		"texts", len(texts),
		"tokens", len(tokens),
		"tagged", len(in.Tagged) > 0,
	)
	return in, nil
}
