// Package textproc holds the text normalisation shared by the embedder, the
// area matcher and the duplicate detector.
package textproc

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"github.com/surgebase/porter2"
)

var reTag = regexp.MustCompile(`(?s)<[^>]*>`)

// stopWords are dropped before stemming. "step" and "expected" are the markers
// of the serialized steps format.
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true,
	"of": true, "to": true, "in": true, "on": true, "at": true, "by": true,
	"for": true, "with": true, "from": true, "into": true, "is": true,
	"are": true, "was": true, "were": true, "be": true, "been": true,
	"it": true, "its": true, "this": true, "that": true, "as": true,
	"if": true, "then": true, "when": true, "can": true, "cannot": true,
	"not": true, "no": true, "do": true, "does": true, "should": true,
	"will": true, "step": true, "expected": true,
}

// Words lowercases s and splits it on every non-alphanumeric rune.
func Words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Stem returns the porter2 stem of a lowercase word.
func Stem(word string) string {
	if len(word) < 3 {
		return word
	}
	return porter2.Stem(word)
}

// Terms returns the stemmed content words of s, in order, duplicates kept.
func Terms(s string) []string {
	words := Words(s)
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) < 2 || stopWords[w] {
			continue
		}
		terms = append(terms, Stem(w))
	}
	return terms
}

// IsStopWord reports whether w is ignored by Terms.
func IsStopWord(w string) bool {
	return stopWords[w]
}

// Truncate returns at most maxRunes characters of s.
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	if len(s) <= maxRunes {
		return s
	}
	n := 0
	for i := range s {
		if n == maxRunes {
			return s[:i]
		}
		n++
	}
	return s
}

// StripHTML removes tags, unescapes entities and collapses whitespace.
func StripHTML(s string) string {
	s = reTag.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}
