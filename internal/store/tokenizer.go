package store

import (
	"regexp"
	"strings"
)

// wordRegex matches runs of letters, digits and underscores in any script.
var wordRegex = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// minTokenLen drops single characters, which only add noise to BM25.
const minTokenLen = 2

// DefaultStopWords are ignored when indexing and querying.
var DefaultStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "by", "for", "from", "in",
	"is", "it", "of", "on", "or", "that", "the", "this", "to", "was", "with",
}

var defaultStopWordMap = BuildStopWordMap(DefaultStopWords)

// Token is a term with its byte span in the source text.
type Token struct {
	Term  string
	Start int
	End   int
}

// Tokenize splits text into lowercased terms, dropping stop words and
// tokens shorter than two runes.
func Tokenize(text string) []Token {
	spans := wordRegex.FindAllStringIndex(text, -1)
	tokens := make([]Token, 0, len(spans))
	for _, span := range spans {
		term := strings.ToLower(text[span[0]:span[1]])
		if len([]rune(term)) < minTokenLen {
			continue
		}
		if _, stop := defaultStopWordMap[term]; stop {
			continue
		}
		tokens = append(tokens, Token{Term: term, Start: span[0], End: span[1]})
	}
	return tokens
}

// Terms returns just the terms of Tokenize.
func Terms(text string) []string {
	tokens := Tokenize(text)
	terms := make([]string, len(tokens))
	for i, t := range tokens {
		terms[i] = t.Term
	}
	return terms
}

// BuildStopWordMap converts a slice of stop words to a map for efficient lookup.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}
