package llm

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/goccy/go-json"
)

// fencedBlockPattern matches a ```json ... ``` (or bare ```) fenced code
// block and captures its body.
var fencedBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ExtractJSON extracts the JSON object from an LLM response. The object may
// sit inside a fenced code block or appear as the first bare {...} span in
// the text.
func ExtractJSON(response string) (string, error) {
	candidate := response
	if matches := fencedBlockPattern.FindStringSubmatch(response); len(matches) >= 2 {
		candidate = matches[1]
	}

	if jsonStr, ok := extractBalancedJSON(candidate, '{', '}'); ok {
		if json.Valid([]byte(jsonStr)) {
			return jsonStr, nil
		}
	}

	// Last resort: the whole candidate may already be valid JSON.
	trimmed := strings.TrimSpace(candidate)
	if json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}

	return "", fmt.Errorf("no valid JSON found in response")
}

// extractBalancedJSON finds the first balanced JSON structure starting with
// openChar, handling nesting and quoted strings.
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
