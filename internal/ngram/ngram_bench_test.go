package ngram

import (
	"fmt"
	"strings"
	"testing"

	"github.com/jmcgover/ngrambot/internal/nlp"
)

func benchTokens(sentences int) []string {
	var sb strings.Builder
	for i := 0; i < sentences; i++ {
		fmt.Fprintf(&sb, "The ship number %d sailed past the harbor wall. It did not come back. ", i%97)
	}
	return nlp.NewTokenizer().Tokenize(sb.String())
}

// BenchmarkNewChain measures gram table, prefix index and starter
// construction for corpora of increasing size.
func BenchmarkNewChain(b *testing.B) {
	for _, size := range []int{100, 1000, 10000} {
		tokens := benchTokens(size)
		b.Run(fmt.Sprintf("sentences_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := NewChain(tokens, 1, 4); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkContinuations(b *testing.B) {
	chain, err := NewChain(benchTokens(10000), 1, 4)
	if err != nil {
		b.Fatal(err)
	}
	prefix := []string{"sailed", "past", "the"}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		grams, ok := chain.Continuations(4, prefix)
		if !ok {
			b.Fatal("prefix missing")
		}
		_ = grams
	}
}

func BenchmarkModelCodec(b *testing.B) {
	tokens := benchTokens(1000)
	m, err := NewModel(Input{Source: "bench", Tokens: tokens, Tagged: nlp.NewTagger(nil).Tag(tokens)}, 1, 4, nil)
	if err != nil {
		b.Fatal(err)
	}
	data, err := m.MarshalBinary()
	if err != nil {
		b.Fatal(err)
	}

	b.Run("marshal", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			if _, err := m.MarshalBinary(); err != nil {
				b.Fatal(err)
			}
		}
	})
	b.Run("unmarshal", func(b *testing.B) {
		b.ReportAllocs()
		b.SetBytes(int64(len(data)))
		for i := 0; i < b.N; i++ {
			var out Model
			if err := out.UnmarshalBinary(data); err != nil {
				b.Fatal(err)
			}
		}
	})
}
