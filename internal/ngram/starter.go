package ngram

import (
	"fmt"

	"github.com/jmcgover/ngrambot/internal/nlp"
	apperrors "github.com/jmcgover/ngrambot/pkg/errors"
)

// StarterSet holds the tokens allowed to open a generated sentence.
type StarterSet map[string]struct{}

// Has reports whether tok is a starter.
func (s StarterSet) Has(tok string) bool {
	_, ok := s[tok]
	return ok
}

// StarterTable maps an order to the positions, in GramTable[order], of grams
// whose first token is a starter.
type StarterTable map[int][]int

// FindStarters seeds the starter set with the corpus's first token, then makes
// one pass over the order-2 grams adding every capitalized token that follows
// sentence-terminal punctuation. Only order 2 is scanned, whatever orders the
// table holds. It then collects, for every order, the grams opening with a
// starter.
func FindStarters(table GramTable) (StarterSet, StarterTable, error) {
	bigrams := table[2]
	if len(bigrams) == 0 {
		return nil, nil, fmt.Errorf("%w: starter detection needs at least one order-2 gram", apperrors.ErrInvalidArgument)
	}

	starters := StarterSet{bigrams[0][0]: {}}
	for _, g := range bigrams {
		if nlp.IsTerminal(g[0]) && nlp.IsCapitalized(g[1]) {
			starters[g[1]] = struct{}{}
		}
	}

	starterGrams := make(StarterTable, len(table))
	for n, grams := range table {
		positions := make([]int, 0)
		for pos, g := range grams {
			if starters.Has(g[0]) {
				positions = append(positions, pos)
			}
		}
		starterGrams[n] = positions
	}
	return starters, starterGrams, nil
}
