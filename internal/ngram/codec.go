package ngram

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	apperrors "github.com/jmcgover/ngrambot/pkg/errors"
)

// snapshotVersion changes whenever the persisted layout does.
const snapshotVersion = 1

type chainSnapshot struct {
	Tokens     []string                 `json:"tokens"`
	Low        int                      `json:"low"`
	High       int                      `json:"high"`
	Prefix     map[int]map[string][]int `json:"prefix"`
	StarterSet []string                 `json:"starter_set"`
	Starters   map[int][]int            `json:"starters"`
}

type modelSnapshot struct {
	Version  int                 `json:"version"`
	Source   string              `json:"source"`
	Low      int                 `json:"low"`
	High     int                 `json:"high"`
	Words    chainSnapshot       `json:"words"`
	Tags     *chainSnapshot      `json:"tags,omitempty"`
	PosWords map[string][]string `json:"pos_words,omitempty"`
	BuiltAt  time.Time           `json:"built_at"`
}

// MarshalBinary encodes the whole model. Gram tables are stored as their token
// stream; the prefix index and starter tables are stored as positions, so
// decoding reproduces them exactly without re-indexing.
func (m *Model) MarshalBinary() ([]byte, error) {
	snap := modelSnapshot{
		Version:  snapshotVersion,
		Source:   m.Source,
		Low:      m.Low,
		High:     m.High,
		Words:    snapshotChain(m.Words),
		PosWords: m.PosWords,
		BuiltAt:  m.BuiltAt,
	}
	if m.Tags != nil {
		tags := snapshotChain(m.Tags)
		snap.Tags = &tags
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encoding model: %w", err)
	}
	return data, nil
}

// UnmarshalBinary restores a model written by MarshalBinary.
func (m *Model) UnmarshalBinary(data []byte) error {
	var snap modelSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decoding model: %w", err)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("%w: model snapshot version %d, want %d", apperrors.ErrInvalidArgument, snap.Version, snapshotVersion)
	}
	words, err := restoreChain(snap.Words)
	if err != nil {
		return fmt.Errorf("restoring word chain: %w", err)
	}
	restored := Model{
		Source:   snap.Source,
		Low:      snap.Low,
		High:     snap.High,
		Words:    words,
		PosWords: snap.PosWords,
		BuiltAt:  snap.BuiltAt,
	}
	if snap.Tags != nil {
		tags, err := restoreChain(*snap.Tags)
		if err != nil {
			return fmt.Errorf("restoring tag chain: %w", err)
		}
		restored.Tags = tags
	}
	*m = restored
	return nil
}

func snapshotChain(c *Chain) chainSnapshot {
	set := make([]string, 0, len(c.StarterSet))
	for tok := range c.StarterSet {
		set = append(set, tok)
	}
	slices.Sort(set)
	return chainSnapshot{
		Tokens:     c.Tokens,
		Low:        c.Low,
		High:       c.High,
		Prefix:     c.Prefix,
		StarterSet: set,
		Starters:   c.Starters,
	}
}

func restoreChain(s chainSnapshot) (*Chain, error) {
	table, err := Build(s.Tokens, s.Low, s.High)
	if err != nil {
		return nil, err
	}
	if len(s.Prefix) != len(table) || len(s.Starters) != len(table) {
		return nil, fmt.Errorf("%w: snapshot orders do not match range [%d, %d]", apperrors.ErrInvalidArgument, s.Low, s.High)
	}
	prefix := PrefixIndex(s.Prefix)
	for n, buckets := range prefix {
		if err := checkPositions(table, n, buckets); err != nil {
			return nil, err
		}
	}
	starters := StarterTable(s.Starters)
	for n, positions := range starters {
		if err := checkPositions(table, n, map[string][]int{"": positions}); err != nil {
			return nil, err
		}
	}
	set := make(StarterSet, len(s.StarterSet))
	for _, tok := range s.StarterSet {
		set[tok] = struct{}{}
	}
	return &Chain{
		Tokens:     s.Tokens,
		Low:        s.Low,
		High:       s.High,
		Table:      table,
		Prefix:     prefix,
		StarterSet: set,
		Starters:   starters,
	}, nil
}

func checkPositions(table GramTable, n int, buckets map[string][]int) error {
	grams, ok := table[n]
	if !ok {
		return fmt.Errorf("%w: snapshot references order %d outside the built range", apperrors.ErrInvalidArgument, n)
	}
	for _, positions := range buckets {
		for _, pos := range positions {
			if pos < 0 || pos >= len(grams) {
				return fmt.Errorf("%w: position %d out of range for order %d", apperrors.ErrInvalidArgument, pos, n)
			}
		}
	}
	return nil
}
