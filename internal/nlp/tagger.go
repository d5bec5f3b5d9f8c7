package nlp

import (
	"strings"
	"unicode"
)

// TaggedToken pairs a token with its part-of-speech tag.
type TaggedToken struct {
	Word string
	Tag  string
}

var closedClass = map[string]string{
	"the": "DT", "a": "DT", "an": "DT", "this": "DT", "that": "DT", "these": "DT",
	"those": "DT", "every": "DT", "each": "DT", "some": "DT", "any": "DT", "no": "DT",
	"in": "IN", "on": "IN", "at": "IN", "of": "IN", "for": "IN", "with": "IN",
	"by": "IN", "from": "IN", "about": "IN", "into": "IN", "over": "IN", "under": "IN",
	"after": "IN", "before": "IN", "between": "IN", "through": "IN", "during": "IN",
	"without": "IN", "against": "IN", "because": "IN", "if": "IN", "than": "IN",
	"to":  "TO",
	"and": "CC", "or": "CC", "but": "CC", "nor": "CC", "yet": "CC",
	"i": "PRP", "you": "PRP", "he": "PRP", "she": "PRP", "it": "PRP", "we": "PRP",
	"they": "PRP", "me": "PRP", "him": "PRP", "us": "PRP", "them": "PRP",
	"my": "PRP$", "your": "PRP$", "his": "PRP$", "her": "PRP$", "its": "PRP$",
	"our": "PRP$", "their": "PRP$",
	"can": "MD", "could": "MD", "will": "MD", "would": "MD", "shall": "MD",
	"should": "MD", "may": "MD", "might": "MD", "must": "MD",
	"is": "VBZ", "are": "VBP", "am": "VBP", "was": "VBD", "were": "VBD",
	"be": "VB", "been": "VBN", "being": "VBG",
	"has": "VBZ", "have": "VBP", "had": "VBD",
	"does": "VBZ", "do": "VBP", "did": "VBD",
	"not": "RB", "never": "RB", "very": "RB", "also": "RB", "just": "RB",
	"really": "RB", "too": "RB", "so": "RB", "now": "RB", "again": "RB",
	"who": "WP", "what": "WP", "which": "WDT",
	"where": "WRB", "when": "WRB", "why": "WRB", "how": "WRB",
	"there": "EX",
}

var punctTags = map[string]string{
	".": ".", "!": ".", "?": ".",
	",": ",",
	";": ":", ":": ":", "...": ":",
	"'": "''",
}

// suffixRules are tried in order; the first suffix that leaves a stem of at
// least minStem bytes decides the tag.
var suffixRules = []struct {
	suffix  string
	tag     string
	minStem int
}{
	{"ness", "NN", 3},
	{"ment", "NN", 3},
	{"tion", "NN", 2},
	{"sion", "NN", 2},
	{"ship", "NN", 3},
	{"ity", "NN", 3},
	{"ous", "JJ", 3},
	{"ful", "JJ", 3},
	{"able", "JJ", 3},
	{"ible", "JJ", 3},
	{"less", "JJ", 3},
	{"ive", "JJ", 3},
	{"ic", "JJ", 3},
	{"al", "JJ", 3},
	{"est", "JJS", 3},
	{"ly", "RB", 3},
	{"ing", "VBG", 2},
	{"ed", "VBD", 3},
	{"ss", "NN", 2},
	{"s", "NNS", 3},
}

// Tagger assigns Penn-style tags from a closed-class lexicon, punctuation and
// capitalization cues, and suffix rules. Unknown words default to NN.
type Tagger struct {
	lexicon map[string]string
}

// NewTagger returns a Tagger. Extra entries override the built-in lexicon and
// are matched case-insensitively.
func NewTagger(extra map[string]string) *Tagger {
	lex := make(map[string]string, len(closedClass)+len(extra))
	for w, tag := range closedClass {
		lex[w] = tag
	}
	for w, tag := range extra {
		lex[strings.ToLower(w)] = tag
	}
	return &Tagger{lexicon: lex}
}

// Tag returns one TaggedToken per input token, in order.
func (t *Tagger) Tag(tokens []string) []TaggedToken {
	tagged := make([]TaggedToken, len(tokens))
	sentenceStart := true
	for i, tok := range tokens {
		tag := t.tagOne(tok, sentenceStart)
		tagged[i] = TaggedToken{Word: tok, Tag: tag}
		sentenceStart = tag == "."
	}
	return tagged
}

func (t *Tagger) tagOne(tok string, sentenceStart bool) string {
	if tag, ok := punctTags[tok]; ok {
		return tag
	}
	if len(tok) <= 3 && strings.ContainsAny(tok, currency) {
		return "$"
	}
	if isNumber(tok) {
		return "CD"
	}
	lower := strings.ToLower(tok)
	if tag, ok := t.lexicon[lower]; ok {
		return tag
	}
	if IsCapitalized(tok) && (!sentenceStart || isAllCaps(tok)) {
		return "NNP"
	}
	for _, rule := range suffixRules {
		if strings.HasSuffix(lower, rule.suffix) && len(lower)-len(rule.suffix) >= rule.minStem {
			return rule.tag
		}
	}
	return "NN"
}

func isNumber(tok string) bool {
	digits := 0
	for _, r := range tok {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '.' || r == ',' || r == '%':
		default:
			return false
		}
	}
	return digits > 0
}

func isAllCaps(tok string) bool {
	letters := 0
	for _, r := range tok {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		}
	}
	return letters > 1
}
