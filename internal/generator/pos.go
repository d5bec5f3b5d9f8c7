package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmcgover/ngrambot/internal/ngram"
	"github.com/jmcgover/ngrambot/internal/nlp"
	apperrors "github.com/jmcgover/ngrambot/pkg/errors"
)

// FillFromTags generates a tag sequence of order n from the tag chain with
// full-prefix linking, then draws one word per tag from words.
//
// A leading punctuation tag is dropped. The first word is a capitalized word
// from its tag's bucket when one exists, otherwise a random word title-cased.
// Later words are lowercased unless their tag is a noun class or the word is
// "I". A tag with no words means the model is inconsistent and is an error.
func (e *Engine) FillFromTags(ctx context.Context, tags Index, words ngram.PosWordIndex, n int) ([]string, error) {
	res, err := e.Generate(ctx, tags, n, FullPrefix)
	if err != nil {
		return nil, fmt.Errorf("generating tag sequence: %w", err)
	}
	seq := res.Tokens
	if len(seq) > 0 && nlp.IsPunctuation(seq[0]) {
		e.logger.Warn("dropping leading punctuation tag", "tag", seq[0])
		seq = seq[1:]
	}
	if len(seq) == 0 {
		return nil, fmt.Errorf("%w: tag sequence is empty", apperrors.ErrEmptyBucket)
	}

	out := make([]string, 0, len(seq))
	for i, tag := range seq {
		bucket := words[tag]
		if len(bucket) == 0 {
			return nil, fmt.Errorf("%w: no words recorded for tag %q", apperrors.ErrEmptyBucket, tag)
		}
		if i == 0 {
			out = append(out, e.openingWord(bucket))
			continue
		}
		word := bucket[e.rng.IntN(len(bucket))]
		if !strings.Contains(tag, "NN") && word != "I" {
			word = strings.ToLower(word)
		}
		out = append(out, word)
	}
	return out, nil
}

func (e *Engine) openingWord(bucket []string) string {
	capitalized := make([]string, 0, len(bucket))
	for _, w := range bucket {
		if nlp.IsCapitalized(w) {
			capitalized = append(capitalized, w)
		}
	}
	if len(capitalized) > 0 {
		return capitalized[e.rng.IntN(len(capitalized))]
	}
	return nlp.Title(bucket[e.rng.IntN(len(bucket))])
}
