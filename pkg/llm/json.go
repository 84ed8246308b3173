package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// codeFencePattern matches a markdown code fence (with or without a language
// tag) wrapping the whole reply or embedded in surrounding prose.
var codeFencePattern = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)\\s*```")

// StripCodeFences returns the content of the first markdown code fence in the
// response, or the response unchanged when no fence is present.
func StripCodeFences(response string) string {
	if m := codeFencePattern.FindStringSubmatch(response); len(m) >= 2 {
		return m[1]
	}
	return response
}

// ExtractJSON extracts JSON content from a model reply that may contain
// markdown code fences or surrounding prose. The repair pass is not applied
// here; callers fall back to RepairJSON only when extraction fails.
func ExtractJSON(response string) (string, error) {
	cleaned := StripCodeFences(response)

	trimmed := strings.TrimSpace(cleaned)
	if json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}

	// Find the first occurrence of { or [ to determine JSON type
	objStart := strings.IndexByte(cleaned, '{')
	arrStart := strings.IndexByte(cleaned, '[')

	if objStart >= 0 && (arrStart < 0 || objStart < arrStart) {
		if jsonStr, ok := extractBalancedJSON(cleaned, '{', '}'); ok {
			if json.Valid([]byte(jsonStr)) {
				return jsonStr, nil
			}
		}
	}

	if arrStart >= 0 {
		if jsonStr, ok := extractBalancedJSON(cleaned, '[', ']'); ok {
			if json.Valid([]byte(jsonStr)) {
				return jsonStr, nil
			}
		}
	}

	return "", fmt.Errorf("no valid JSON found in response")
}

// extractBalancedJSON finds the first balanced JSON structure starting with
// openChar. It handles nested structures by counting bracket depth.
func extractBalancedJSON(s string, openChar, closeChar byte) (string, bool) {
	start := strings.IndexByte(s, openChar)
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}

		if c == '\\' && inString {
			escaped = true
			continue
		}

		if c == '"' {
			inString = !inString
			continue
		}

		if inString {
			continue
		}

		if c == openChar {
			depth++
		} else if c == closeChar {
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	return "", false
}

// ParseJSONResponse extracts JSON from a reply and unmarshals it into the
// target. When direct extraction fails, one conservative repair pass is
// attempted. Repaired output is untrusted: callers must still validate
// required fields before using the result.
func ParseJSONResponse[T any](response string) (T, error) {
	var result T

	jsonStr, err := ExtractJSON(response)
	if err != nil {
		repaired := RepairJSON(RepairCandidate(response))
		if !json.Valid([]byte(repaired)) {
			return result, NewError(ErrorTypeFormat, "unparseable response", false, err)
		}
		jsonStr = repaired
	}

	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return result, NewError(ErrorTypeFormat, "unmarshal JSON", false, err)
	}

	return result, nil
}
