// Package generator synthesizes sentences from an n-gram chain by weighted
// random walk, renders them as printable text, and fills part-of-speech
// skeletons with concrete words.
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/jmcgover/ngrambot/internal/ngram"
	"github.com/jmcgover/ngrambot/internal/nlp"
	apperrors "github.com/jmcgover/ngrambot/pkg/errors"
)

// LinkMode selects how many trailing tokens of the sentence so far form the
// key used to find the next gram.
type LinkMode int

const (
	// FullPrefix keys on the last n-1 tokens.
	FullPrefix LinkMode = iota
	// LastToken keys on the last token only.
	LastToken
	// RandomPrefix keys on the last r tokens, r drawn from [1, n-1] per step.
	RandomPrefix
)

func (m LinkMode) String() string {
	switch m {
	case FullPrefix:
		return "full"
	case LastToken:
		return "last"
	case RandomPrefix:
		return "random"
	default:
		return fmt.Sprintf("LinkMode(%d)", int(m))
	}
}

// ParseLinkMode accepts "", "full", "last" and "random".
func ParseLinkMode(s string) (LinkMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "full", "none":
		return FullPrefix, nil
	case "last":
		return LastToken, nil
	case "random":
		return RandomPrefix, nil
	default:
		return 0, fmt.Errorf("%w: unknown link mode %q", apperrors.ErrInvalidArgument, s)
	}
}

// Rand is the source of every random choice the engine makes. IntN returns a
// value in [0, n).
type Rand interface {
	IntN(n int) int
}

// Index is the read-only view of a chain the engine walks.
type Index interface {
	HasOrder(n int) bool
	StarterGrams(n int) []ngram.Gram
	Continuations(n int, prefix []string) ([]ngram.Gram, bool)
}

// Result is a generated token sequence. Stalled is set when a full-prefix walk
// hit a prefix with no continuation and stopped before a sentence end.
type Result struct {
	Tokens  []string
	Stalled bool
	Misses  int
}

// Engine generates token sequences. It holds no model state, so one Engine can
// serve any number of chains.
type Engine struct {
	rng       Rand
	logger    *slog.Logger
	maxMisses int
}

// Option configures an Engine.
type Option func(*Engine)

// WithRand replaces the default entropy-seeded source.
func WithRand(r Rand) Option {
	return func(e *Engine) { e.rng = r }
}

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMaxMisses caps consecutive lookup misses in the retrying link modes.
// Zero, the default, retries without limit: a chain whose walk can reach a
// token with no continuation at all will then never return.
func WithMaxMisses(k int) Option {
	return func(e *Engine) { e.maxMisses = k }
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		rng:    &lockedRand{r: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))},
		logger: slog.Default().With("component", "generator"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Generate walks chain with grams of order n until the last token is
// sentence-terminal.
//
// A missing prefix stops a FullPrefix walk and returns what was built with
// Stalled set. LastToken and RandomPrefix walks log the miss and retry the step
// with a key of random length in [1, n-1], until a key hits or the miss cap set
// by WithMaxMisses is reached. ctx is checked before every step, so an
// uncapped walk stops once its caller gives up.
func (e *Engine) Generate(ctx context.Context, chain Index, n int, mode LinkMode) (Result, error) {
	if n < 2 || !chain.HasOrder(n) {
		return Result{}, fmt.Errorf("%w: order %d is not available for generation", apperrors.ErrOrderOutOfRange, n)
	}
	switch mode {
	case FullPrefix, LastToken, RandomPrefix:
	default:
		return Result{}, fmt.Errorf("%w: unknown link mode %d", apperrors.ErrInvalidArgument, int(mode))
	}

	seeds := chain.StarterGrams(n)
	if len(seeds) == 0 {
		return Result{}, fmt.Errorf("%w: no starter grams of order %d", apperrors.ErrEmptyBucket, n)
	}
	seed := seeds[e.rng.IntN(len(seeds))]
	words := append(make([]string, 0, 4*n), seed...)
	e.logger.Debug("seeded sentence", "order", n, "mode", mode.String(), "seed", seed.String())

	var res Result
	retrying := false
	consecutive := 0
	for !nlp.IsTerminal(words[len(words)-1]) {
		if err := ctx.Err(); err != nil {
			res.Tokens = words
			return res, fmt.Errorf("generation stopped after %d tokens: %w", len(words), err)
		}
		keyLen := e.keyLength(n, mode, retrying)
		if keyLen > len(words) {
			keyLen = len(words)
		}
		key := words[len(words)-keyLen:]

		candidates, ok := chain.Continuations(n, key)
		if !ok || len(candidates) == 0 {
			if mode == FullPrefix {
				e.logger.Error("prefix not found, sentence stalled",
					"order", n,
					"prefix", ngram.Gram(key).String(),
					"tokens", len(words),
				)
				res.Tokens = words
				res.Stalled = true
				return res, nil
			}
			res.Misses++
			consecutive++
			e.logger.Warn("prefix not found, retrying with a new key",
				"order", n,
				"mode", mode.String(),
				"prefix", ngram.Gram(key).String(),
				"misses", consecutive,
			)
			if e.maxMisses > 0 && consecutive >= e.maxMisses {
				res.Tokens = words
				return res, fmt.Errorf("%w: %d consecutive misses at order %d", apperrors.ErrRetryLimit, consecutive, n)
			}
			retrying = true
			continue
		}

		next := candidates[e.rng.IntN(len(candidates))]
		words = append(words, next[keyLen:]...)
		retrying = false
		consecutive = 0
	}

	res.Tokens = words
	return res, nil
}

func (e *Engine) keyLength(n int, mode LinkMode, retrying bool) int {
	switch {
	case retrying, mode == RandomPrefix:
		return 1 + e.rng.IntN(n-1)
	case mode == LastToken:
		return 1
	default:
		return n - 1
	}
}

// lockedRand makes the default source safe for concurrent Generate calls.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}
