package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTerms(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"lowercases", "Hello World", []string{"hello", "world"}},
		{"drops stop words and single chars", "the cat is a x", []string{"cat"}},
		{"splits punctuation", "wiki:space.doc/file", []string{"wiki", "space", "doc", "file"}},
		{"keeps unicode words", "Größe über", []string{"größe", "über"}},
		{"empty", "", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Terms(tt.text))
		})
	}
}

func TestTokenize_Offsets(t *testing.T) {
	text := "Read the Manual"
	tokens := Tokenize(text)

	assert.Equal(t, []Token{
		{Term: "read", Start: 0, End: 4},
		{Term: "manual", Start: 9, End: 15},
	}, tokens)
	for _, tok := range tokens {
		assert.Equal(t, tok.Term, lower(text[tok.Start:tok.End]))
	}
}

func lower(s string) string {
	out := []rune(s)
	for i, r := range out {
		if r >= 'A' && r <= 'Z' {
			out[i] = r + ('a' - 'A')
		}
	}
	return string(out)
}
