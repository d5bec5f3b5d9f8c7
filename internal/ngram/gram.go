// Package ngram builds the tables behind the sentence generator: sliding-window
// n-gram tables for a range of orders, prefix indexes that map a leading
// sub-tuple to every gram sharing it, and the starter tables used to seed a
// sentence. Frequencies are never counted; a common continuation simply
// appears more often in its bucket.
package ngram

import (
	"fmt"
	"slices"
	"strings"

	"github.com/jmcgover/ngrambot/internal/nlp"
	apperrors "github.com/jmcgover/ngrambot/pkg/errors"
)

// keySep joins prefix tokens into a map key. The corpus normalizer drops
// control characters, so no token contains it.
const keySep = "\x1f"

// Gram is one window of consecutive tokens.
type Gram []string

// GramTable maps an order to every window of that order in corpus order.
type GramTable map[int][]Gram

// PosWordIndex maps a part-of-speech tag to every word seen under it.
type PosWordIndex map[string][]string

// Key returns the map key for a prefix.
func Key(prefix []string) string {
	return strings.Join(prefix, keySep)
}

func (g Gram) String() string {
	return "(" + strings.Join(g, ", ") + ")"
}

// Orders returns the orders present in the table in ascending order.
func (t GramTable) Orders() []int {
	orders := make([]int, 0, len(t))
	for n := range t {
		orders = append(orders, n)
	}
	slices.Sort(orders)
	return orders
}

func validateRange(low, high int) error {
	if low < 1 || low > high {
		return fmt.Errorf("%w: order range [%d, %d] requires 1 <= low <= high", apperrors.ErrInvalidArgument, low, high)
	}
	return nil
}

// Build slices tokens into every contiguous window of each order in
// [low, high]. Grams share the backing array of tokens.
func Build(tokens []string, low, high int) (GramTable, error) {
	if err := validateRange(low, high); err != nil {
		return nil, err
	}
	table := make(GramTable, high-low+1)
	for n := low; n <= high; n++ {
		count := len(tokens) - n + 1
		if count < 0 {
			count = 0
		}
		grams := make([]Gram, count)
		for i := 0; i < count; i++ {
			grams[i] = Gram(tokens[i : i+n : i+n])
		}
		table[n] = grams
	}
	return table, nil
}

// BuildTagged builds the gram table over the tag stream and collects the
// words observed under each tag. It also returns the tag stream itself.
func BuildTagged(tagged []nlp.TaggedToken, low, high int) (GramTable, PosWordIndex, []string, error) {
	if err := validateRange(low, high); err != nil {
		return nil, nil, nil, err
	}
	tags := make([]string, len(tagged))
	words := make(PosWordIndex)
	for i, tt := range tagged {
		tags[i] = tt.Tag
		words[tt.Tag] = append(words[tt.Tag], tt.Word)
	}
	table, err := Build(tags, low, high)
	if err != nil {
		return nil, nil, nil, err
	}
	return table, words, tags, nil
}
