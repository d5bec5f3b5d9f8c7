// Package nlp provides the tokenizer and part-of-speech tagger that feed the
// n-gram builder. Both are deterministic and keep punctuation and currency
// symbols as tokens of their own, since the generator relies on them to find
// sentence boundaries and to reassemble printable text.
package nlp

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	trailingPunct = ",;.!?:'"
	currency      = "$€£¥"
)

// Tokenizer splits raw text into word, punctuation and currency tokens.
type Tokenizer struct{}

// NewTokenizer returns a Tokenizer.
func NewTokenizer() *Tokenizer {
	return &Tokenizer{}
}

// Tokenize breaks text on whitespace, then peels leading currency symbols and
// trailing punctuation off each field. A run of periods stays one token
// ("..."), so only a lone "." closes a sentence.
func (t *Tokenizer) Tokenize(text string) []string {
	fields := strings.Fields(text)
	tokens := make([]string, 0, len(fields)+len(fields)/4)
	for _, field := range fields {
		tokens = appendField(tokens, field)
	}
	return tokens
}

func appendField(tokens []string, field string) []string {
	for field != "" {
		r, size := utf8.DecodeRuneInString(field)
		if !strings.ContainsRune(currency, r) || size == len(field) {
			break
		}
		tokens = append(tokens, field[:size])
		field = field[size:]
	}

	var tail []string
	for field != "" {
		if strings.HasSuffix(field, "...") {
			tail = append(tail, "...")
			field = strings.TrimRight(field, ".")
			continue
		}
		r, size := utf8.DecodeLastRuneInString(field)
		if !strings.ContainsRune(trailingPunct, r) || size == len(field) {
			break
		}
		tail = append(tail, field[len(field)-size:])
		field = field[:len(field)-size]
	}

	if field != "" {
		tokens = append(tokens, field)
	}
	for i := len(tail) - 1; i >= 0; i-- {
		tokens = append(tokens, tail[i])
	}
	return tokens
}

// IsCapitalized reports whether the token starts with an upper-case letter.
func IsCapitalized(token string) bool {
	r, _ := utf8.DecodeRuneInString(token)
	return unicode.IsUpper(r)
}

// Title upper-cases the first letter of every letter run in s and lower-cases
// the rest, so "hello" becomes "Hello" and "USA" becomes "Usa".
func Title(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		isLetter := unicode.IsLetter(r)
		switch {
		case isLetter && !prevLetter:
			b.WriteRune(unicode.ToUpper(r))
		case isLetter:
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
		prevLetter = isLetter
	}
	return b.String()
}
