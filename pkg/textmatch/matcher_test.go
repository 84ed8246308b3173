package textmatch

import (
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"lowercases and splits", "Check Engine LIGHT", []string{"check", "engine", "light"}},
		{"strips punctuation", "no-brakes!!!", []string{"no", "brakes"}},
		{"hebrew with punctuation", "אין בלמים, עצרתי.", []string{"אין", "בלמים", "עצרתי"}},
		{"keeps digits", "p0420 error", []string{"p0420", "error"}},
		{"collapses whitespace", "  a   b  ", []string{"a", "b"}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Normalize(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestPhraseIndex(t *testing.T) {
	tokens := Normalize("the check engine light came on today")

	if idx := PhraseIndex(tokens, "check engine", 0); idx != 1 {
		t.Errorf("expected index 1, got %d", idx)
	}
	if idx := PhraseIndex(tokens, "engine light", 0); idx != 2 {
		t.Errorf("expected index 2, got %d", idx)
	}
	if idx := PhraseIndex(tokens, "check engine", 2); idx != -1 {
		t.Errorf("expected -1 when searching past the match, got %d", idx)
	}
	if idx := PhraseIndex(tokens, "oil light", 0); idx != -1 {
		t.Errorf("expected -1 for absent phrase, got %d", idx)
	}
	if idx := PhraseIndex(tokens, "", 0); idx != -1 {
		t.Errorf("expected -1 for empty phrase, got %d", idx)
	}
}

func TestPhraseIndex_NoPartialTokenMatch(t *testing.T) {
	tokens := Normalize("the lightning was bright")
	if HasPhrase(tokens, "light") {
		t.Error("phrase matching must compare whole tokens, not substrings")
	}
}

func TestMatcher_IsNegated(t *testing.T) {
	m := NewMatcher(nil, 3)

	tokens := Normalize("there is no smoke from the engine")
	idx := PhraseIndex(tokens, "smoke", 0)
	if !m.IsNegated(tokens, idx) {
		t.Error("expected 'smoke' to be negated by preceding 'no'")
	}

	tokens = Normalize("smoke is coming from the engine")
	idx = PhraseIndex(tokens, "smoke", 0)
	if m.IsNegated(tokens, idx) {
		t.Error("expected 'smoke' at position 0 to be non-negated")
	}
}

func TestMatcher_NegationWindowBounds(t *testing.T) {
	m := NewMatcher(nil, 2)

	// Negation word three tokens back, window is two.
	tokens := Normalize("not the usual smoke")
	idx := PhraseIndex(tokens, "smoke", 0)
	if m.IsNegated(tokens, idx) {
		t.Error("negation outside the window must not suppress the match")
	}

	// Inside the window.
	tokens = Normalize("not usual smoke")
	idx = PhraseIndex(tokens, "smoke", 0)
	if !m.IsNegated(tokens, idx) {
		t.Error("negation inside the window must suppress the match")
	}
}

func TestMatcher_HebrewNegation(t *testing.T) {
	m := NewMatcher(nil, 3)

	tokens := Normalize("המנוע לא מתחמם בכלל")
	if m.ContainsNonNegated(tokens, "מתחמם") {
		t.Error("expected Hebrew negation to suppress the match")
	}

	tokens = Normalize("המנוע מתחמם מאוד")
	if !m.ContainsNonNegated(tokens, "מתחמם") {
		t.Error("expected non-negated Hebrew match")
	}
}

func TestMatcher_ContainsNonNegated_LaterOccurrenceWins(t *testing.T) {
	m := NewMatcher(nil, 3)

	// First occurrence negated, second one not.
	tokens := Normalize("no smoke at first but then smoke appeared")
	if !m.ContainsNonNegated(tokens, "smoke") {
		t.Error("a negated occurrence must not suppress a later non-negated one")
	}
}

func TestNewMatcher_Defaults(t *testing.T) {
	m := NewMatcher(nil, 0)
	if m.Window() != DefaultNegationWindow {
		t.Errorf("expected default window %d, got %d", DefaultNegationWindow, m.Window())
	}

	m = NewMatcher([]string{"זולת"}, 1)
	tokens := Normalize("זולת עשן")
	if !m.IsNegated(tokens, 1) {
		t.Error("expected custom negation word to be honored")
	}
	tokens = Normalize("לא עשן")
	if m.IsNegated(tokens, 1) {
		t.Error("custom word list must replace the defaults, not extend them")
	}
}
