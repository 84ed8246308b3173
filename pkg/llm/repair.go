package llm

import (
	"regexp"
	"strings"
)

// Best-effort textual normalization for almost-JSON model output. The three
// passes cover the malformations seen in practice: trailing commas, unquoted
// object keys, and unquoted scalar values. The output is untrusted and must
// be re-validated by the caller.

var (
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
	bareKeyPattern       = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_-]*)(\s*:)`)
	bareValuePattern     = regexp.MustCompile(`(:\s*)([^"\s{\[\]},][^,}\]]*)`)
	numberPattern        = regexp.MustCompile(`^-?\d+(\.\d+)?([eE][+-]?\d+)?$`)
)

// RepairJSON applies conservative repairs to a JSON candidate: drops trailing
// commas, quotes bare object keys, and quotes bare scalar values. Literals
// (true/false/null) and numbers are left untouched.
func RepairJSON(s string) string {
	s = trailingCommaPattern.ReplaceAllString(s, "$1")
	s = bareKeyPattern.ReplaceAllString(s, `$1"$2"$3`)

	s = bareValuePattern.ReplaceAllStringFunc(s, func(m string) string {
		sub := bareValuePattern.FindStringSubmatch(m)
		prefix, value := sub[1], strings.TrimSpace(sub[2])
		switch value {
		case "true", "false", "null":
			return m
		}
		if numberPattern.MatchString(value) {
			return m
		}
		value = strings.ReplaceAll(value, `"`, `\"`)
		return prefix + `"` + value + `"`
	})

	// Quoting bare values can leave a dangling trailing comma ahead of the
	// closer; run the comma pass once more.
	return trailingCommaPattern.ReplaceAllString(s, "$1")
}

// RepairCandidate narrows a raw reply down to the span most likely to be the
// intended JSON document before repairing: the fence content, then the first
// balanced object or array within it.
func RepairCandidate(response string) string {
	candidate := StripCodeFences(response)
	if span, ok := extractBalancedJSON(candidate, '{', '}'); ok {
		return span
	}
	if span, ok := extractBalancedJSON(candidate, '[', ']'); ok {
		return span
	}
	return strings.TrimSpace(candidate)
}
