package nlp

// Punctuation classes shared by the tokenizer, the starter selector and the
// generator. Membership is exact token equality.
var (
	punctuation  = set(",", ";", ".", "!", "?", ":", "'")
	currencySyms = set("$", "€", "£", "¥")
	sentenceEnd  = set(".", "?", "!")
)

func set(items ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, it := range items {
		m[it] = struct{}{}
	}
	return m
}

// IsTerminal reports whether tok ends a sentence.
func IsTerminal(tok string) bool {
	_, ok := sentenceEnd[tok]
	return ok
}

// IsPunctuation reports whether tok is a punctuation mark that attaches to
// the preceding word when text is rendered.
func IsPunctuation(tok string) bool {
	_, ok := punctuation[tok]
	return ok
}

// IsCurrency reports whether tok is a currency symbol.
func IsCurrency(tok string) bool {
	_, ok := currencySyms[tok]
	return ok
}
