// Package textmatch provides the lexical matching primitives used by the
// safety rule evaluator and the knowledge base router: Unicode-aware
// normalization, contiguous phrase search, and window-based negation
// suppression.
package textmatch

import (
	"strings"
	"unicode"
)

// DefaultNegationWindow is how many tokens before a match are scanned for a
// negation word. The window is a heuristic, not a parse: it cannot detect
// negation that follows the keyword ("the brakes work, not really").
const DefaultNegationWindow = 3

// DefaultNegationWords is the built-in negation set (Hebrew and English).
var DefaultNegationWords = []string{
	"לא", "אין", "בלי", "ללא", "מבלי",
	"no", "not", "without", "dont", "don", "doesnt", "never", "none",
}

// Normalize lower-cases the text, replaces every rune that is neither a
// letter nor a digit with a space so punctuation never merges adjacent words,
// and returns the whitespace-collapsed token list.
func Normalize(text string) []string {
	lowered := strings.ToLower(text)
	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Fields(b.String())
}

// PhraseIndex returns the token offset at which the phrase's own tokens occur
// contiguously in tokens, starting the search at from. Returns -1 when the
// phrase does not occur. An empty phrase never matches.
func PhraseIndex(tokens []string, phrase string, from int) int {
	want := Normalize(phrase)
	if len(want) == 0 {
		return -1
	}
	if from < 0 {
		from = 0
	}
	for i := from; i+len(want) <= len(tokens); i++ {
		match := true
		for j, w := range want {
			if tokens[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// HasPhrase reports whether the phrase occurs contiguously anywhere in tokens.
func HasPhrase(tokens []string, phrase string) bool {
	return PhraseIndex(tokens, phrase, 0) >= 0
}

// Matcher bundles a negation word set with a lookbehind window.
// It is immutable after construction and safe for concurrent use.
type Matcher struct {
	negations map[string]struct{}
	window    int
}

// NewMatcher creates a Matcher. Passing nil words or a non-positive window
// selects the defaults.
func NewMatcher(words []string, window int) *Matcher {
	if words == nil {
		words = DefaultNegationWords
	}
	if window <= 0 {
		window = DefaultNegationWindow
	}
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		for _, tok := range Normalize(w) {
			set[tok] = struct{}{}
		}
	}
	return &Matcher{negations: set, window: window}
}

// IsNegated reports whether any of the window tokens immediately preceding
// matchIndex is a negation word.
func (m *Matcher) IsNegated(tokens []string, matchIndex int) bool {
	start := matchIndex - m.window
	if start < 0 {
		start = 0
	}
	for i := start; i < matchIndex && i < len(tokens); i++ {
		if _, ok := m.negations[tokens[i]]; ok {
			return true
		}
	}
	return false
}

// ContainsNonNegated reports whether the phrase occurs in tokens at least
// once without a negation word in its preceding window. A negated occurrence
// does not suppress a later non-negated one.
func (m *Matcher) ContainsNonNegated(tokens []string, phrase string) bool {
	for from := 0; ; {
		idx := PhraseIndex(tokens, phrase, from)
		if idx < 0 {
			return false
		}
		if !m.IsNegated(tokens, idx) {
			return true
		}
		from = idx + 1
	}
}

// Window returns the configured negation lookbehind size.
func (m *Matcher) Window() int {
	return m.window
}
