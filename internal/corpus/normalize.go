// Package corpus loads training texts and turns them into the token streams
// the n-gram builder consumes.
package corpus

import (
	"strings"
	"unicode"
)

// Normalizer removes configured characters and control characters from raw
// text. Newlines and tabs survive; the tokenizer treats them as whitespace.
type Normalizer struct {
	strip *strings.Replacer
}

// NewNormalizer returns a Normalizer that deletes every string in strip.
func NewNormalizer(strip []string) *Normalizer {
	pairs := make([]string, 0, 2*len(strip))
	for _, s := range strip {
		if s == "" {
			continue
		}
		pairs = append(pairs, s, "")
	}
	return &Normalizer{strip: strings.NewReplacer(pairs...)}
}

// Normalize applies the replacements and drops control characters.
func (n *Normalizer) Normalize(text string) string {
	text = n.strip.Replace(text)
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
}
