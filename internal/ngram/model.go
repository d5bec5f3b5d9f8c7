package ngram

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jmcgover/ngrambot/internal/nlp"
	apperrors "github.com/jmcgover/ngrambot/pkg/errors"
)

// Chain is the full set of tables built over one token stream: the gram
// table, its prefix index, and the starter data.
type Chain struct {
	Tokens     []string
	Low        int
	High       int
	Table      GramTable
	Prefix     PrefixIndex
	StarterSet StarterSet
	Starters   StarterTable
}

// NewChain builds every table for tokens over the order range [low, high].
// The range must include order 2, which starter detection reads.
func NewChain(tokens []string, low, high int) (*Chain, error) {
	table, err := Build(tokens, low, high)
	if err != nil {
		return nil, err
	}
	return newChainFromTable(tokens, table, low, high)
}

func newChainFromTable(tokens []string, table GramTable, low, high int) (*Chain, error) {
	if low > 2 || high < 2 {
		return nil, fmt.Errorf("%w: order range [%d, %d] must include 2", apperrors.ErrInvalidArgument, low, high)
	}
	set, starters, err := FindStarters(table)
	if err != nil {
		return nil, err
	}
	return &Chain{
		Tokens:     tokens,
		Low:        low,
		High:       high,
		Table:      table,
		Prefix:     Invert(table),
		StarterSet: set,
		Starters:   starters,
	}, nil
}

// HasOrder reports whether grams of order n were built.
func (c *Chain) HasOrder(n int) bool {
	_, ok := c.Table[n]
	return ok
}

// MaxOrder returns the highest order built.
func (c *Chain) MaxOrder() int {
	return c.High
}

// StarterGrams returns the starter grams of order n.
func (c *Chain) StarterGrams(n int) []Gram {
	return c.grams(n, c.Starters[n])
}

// Continuations returns every gram of order n whose leading tokens equal
// prefix, with duplicates, and whether the prefix was indexed at all.
func (c *Chain) Continuations(n int, prefix []string) ([]Gram, bool) {
	positions, ok := c.Prefix.Lookup(n, prefix)
	if !ok {
		return nil, false
	}
	return c.grams(n, positions), true
}

func (c *Chain) grams(n int, positions []int) []Gram {
	table := c.Table[n]
	out := make([]Gram, len(positions))
	for i, pos := range positions {
		out[i] = table[pos]
	}
	return out
}

// Input is what the model is built from: the normalized source text, its
// tokens, and optionally the tagged tokens for part-of-speech generation.
type Input struct {
	Source string
	Tokens []string
	Tagged []nlp.TaggedToken
}

// Model aggregates the word chain, the optional tag chain with its
// tag-to-words index, the order range and the source text. It is written once
// by NewModel and only read afterwards.
type Model struct {
	Source   string
	Low      int
	High     int
	Words    *Chain
	Tags     *Chain
	PosWords PosWordIndex
	BuiltAt  time.Time
}

// NewModel builds a complete model over [low, high]. Tag tables are built only
// when in.Tagged is non-empty.
func NewModel(in Input, low, high int, logger *slog.Logger) (*Model, error) {
	if logger == nil {
		logger = slog.Default().With("component", "ngram-builder")
	}
	if err := validateRange(low, high); err != nil {
		return nil, err
	}

	logger.Debug("building word grams", "low", low, "high", high, "tokens", len(in.Tokens))
	words, err := NewChain(in.Tokens, low, high)
	if err != nil {
		return nil, fmt.Errorf("building word chain: %w", err)
	}

	m := &Model{
		Source:  in.Source,
		Low:     low,
		High:    high,
		Words:   words,
		BuiltAt: time.Now().UTC(),
	}

	if len(in.Tagged) > 0 {
		logger.Debug("building tag grams", "low", low, "high", high, "tagged", len(in.Tagged))
		table, posWords, tags, err := BuildTagged(in.Tagged, low, high)
		if err != nil {
			return nil, fmt.Errorf("building tag grams: %w", err)
		}
		tagChain, err := newChainFromTable(tags, table, low, high)
		if err != nil {
			return nil, fmt.Errorf("building tag chain: %w", err)
		}
		m.Tags = tagChain
		m.PosWords = posWords
	}

	logger.Info("model built",
		"low", low,
		"high", high,
		"tokens", len(in.Tokens),
		"starters", len(words.StarterSet),
		"pos", m.Tags != nil,
	)
	return m, nil
}
