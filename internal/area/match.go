// Package area maps functional area paths and bug text onto area vocabulary.
package area

import (
	"strings"

	"github.com/kiranshivaraju/testscout/internal/textproc"
)

// minTokenLen drops articles and prepositions from area paths.
const minTokenLen = 3

// Tokens is the lowercase token set of an area path, in first-seen order.
type Tokens []string

// ExtractTokens splits a hierarchical area path on `\` and `/`, lowercases
// each segment and splits it further on non-alphanumeric boundaries. Tokens
// shorter than three characters are discarded.
func ExtractTokens(areaPath string) Tokens {
	segments := strings.FieldsFunc(areaPath, func(r rune) bool {
		return r == '\\' || r == '/'
	})

	seen := make(map[string]bool)
	var tokens Tokens
	for _, seg := range segments {
		for _, w := range textproc.Words(seg) {
			if len(w) < minTokenLen || seen[w] {
				continue
			}
			seen[w] = true
			tokens = append(tokens, w)
		}
	}
	return tokens
}

// Text is a pre-tokenised text blob for repeated whole-word lookups.
type Text struct {
	words map[string]bool
	stems map[string][]string
	seq   []string
}

// NewText tokenises s once.
func NewText(s string) *Text {
	seq := textproc.Words(s)
	t := &Text{
		words: make(map[string]bool, len(seq)),
		stems: make(map[string][]string, len(seq)),
		seq:   seq,
	}
	for _, w := range seq {
		if t.words[w] {
			continue
		}
		t.words[w] = true
		stem := textproc.Stem(w)
		t.stems[stem] = append(t.stems[stem], w)
	}
	return t
}

// HasWord reports whether w occurs as a whole word or as an inflected form
// of it. Words that only share a stem, such as "organ" and "organization",
// do not match.
func (t *Text) HasWord(w string) bool {
	w = strings.ToLower(w)
	if t.words[w] {
		return true
	}
	for _, cand := range t.stems[textproc.Stem(w)] {
		if sameWord(cand, w) {
			return true
		}
	}
	return false
}

// HasPhrase reports whether every word of phrase occurs consecutively.
// Single-word phrases reduce to HasWord.
func (t *Text) HasPhrase(phrase string) bool {
	parts := textproc.Words(phrase)
	switch len(parts) {
	case 0:
		return false
	case 1:
		return t.HasWord(parts[0])
	}

	for i := 0; i+len(parts) <= len(t.seq); i++ {
		match := true
		for j, p := range parts {
			if !sameWord(t.seq[i+j], p) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

var inflections = []string{"s", "es", "ed", "ing"}

// sameWord reports whether a and b are equal or one is the other plus a
// regular inflectional suffix. Both must be lowercase.
func sameWord(a, b string) bool {
	if a == b {
		return true
	}
	if len(a) < len(b) {
		a, b = b, a
	}
	if len(b) == 0 || !strings.HasPrefix(a, b[:len(b)-1]) {
		return false
	}

	last := b[len(b)-1]
	for _, suf := range inflections {
		switch a {
		case b + suf, b + string(last) + suf:
			return true
		}
		// release/released, code/coding
		if last == 'e' && suf != "s" && a == b[:len(b)-1]+suf {
			return true
		}
	}
	// policy/policies
	return last == 'y' && a == b[:len(b)-1]+"ies"
}

// Matches reports whether at least one token occurs in text as a whole word.
// An empty token set never matches.
func Matches(tokens Tokens, text string) bool {
	if len(tokens) == 0 {
		return false
	}
	return NewText(text).MatchesAny(tokens)
}

// MatchesAny is Matches against an already tokenised text.
func (t *Text) MatchesAny(tokens Tokens) bool {
	for _, tok := range tokens {
		if t.HasWord(tok) {
			return true
		}
	}
	return false
}
