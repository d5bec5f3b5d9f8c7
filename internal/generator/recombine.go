package generator

import (
	"strings"

	"github.com/jmcgover/ngrambot/internal/nlp"
)

// Recombine turns generated tokens into printable units in one pass from the
// second token. For each token, in order of precedence:
//
//   - a currency symbol is merged with the token after it, and that token is
//     not emitted again;
//   - a punctuation mark is merged onto the token before it, or onto the
//     currency unit when the token before it was consumed by one;
//   - after punctuation nothing is emitted;
//   - otherwise the token before it is emitted alone.
//
// The token following sentence-terminal punctuation mid-sequence is
// title-cased. The branches are exclusive, so a word just before a currency
// symbol is never emitted, a second punctuation mark pairs with the first
// ("!", "?" gives "!?"), and the last token survives only through a merge.
// The input slice is not modified.
func Recombine(tokens []string) []string {
	if len(tokens) == 0 {
		return nil
	}
	t := append([]string(nil), tokens...)
	units := make([]string, 0, len(t))
	consumed := -1

	for i := 1; i < len(t); i++ {
		prev, cur := t[i-1], t[i]
		if nlp.IsTerminal(cur) && i < len(t)-1 {
			t[i+1] = nlp.Title(t[i+1])
		}

		switch {
		case i == consumed:
		case nlp.IsCurrency(cur) && i < len(t)-1:
			units = append(units, cur+t[i+1])
			consumed = i + 1
		case nlp.IsPunctuation(cur):
			if i-1 == consumed {
				units[len(units)-1] += cur
			} else {
				units = append(units, prev+cur)
			}
		case nlp.IsPunctuation(prev), i-1 == consumed:
		default:
			units = append(units, prev)
		}
	}
	return units
}

// Render recombines tokens and joins the units with single spaces.
func Render(tokens []string) string {
	return strings.Join(Recombine(tokens), " ")
}
