// Package analyzer turns text into normalised search terms.
// It is shared by the lexical index and the hashing embedder so both see
// the same vocabulary.
package analyzer

import (
	"regexp"
	"strings"
)

var termPattern = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`)

var stopwords = func() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by",
		"with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "its", "this", "that", "these",
		"those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into",
		"about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own",
		"same", "too", "very", "can", "will", "just", "don", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()

// Terms returns the lower-cased letter/digit runs of text with stop words removed,
// in order of appearance. Repeated terms are kept.
func Terms(text string) []string {
	raw := termPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if IsStopword(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// TermFrequencies counts each term of text.
func TermFrequencies(text string) map[string]int {
	tf := make(map[string]int)
	for _, t := range Terms(text) {
		tf[t]++
	}
	return tf
}

// IsStopword reports whether a lower-cased term is ignored.
func IsStopword(term string) bool {
	_, ok := stopwords[term]
	return ok
}
