package parsing

import (
	"encoding/json"
	"regexp"
)

// strayBracePattern matches `"field": "text"},` immediately followed by the
// next `"key":`, the shape left behind when a model closes an object one field
// too early.
var strayBracePattern = regexp.MustCompile(`("[A-Za-z0-9_]+"\s*:\s*"(?:[^"\\]|\\.)*")\s*\}\s*,(\s*"[A-Za-z0-9_]+"\s*:)`)

// maxStrayBraceAttempts bounds the candidate rewrites tried for one payload.
const maxStrayBraceAttempts = 256

// FixStrayBrace removes premature closing braces of the strayBracePattern
// shape. It only touches text whose extracted JSON is invalid and has more
// closing than opening braces, and removes exactly as many braces as are
// surplus. Well-formed nested objects share the shape, so every combination
// of matches is tried and the first one that yields valid JSON wins. When
// none does, the text is returned unchanged.
func FixStrayBrace(text string) string {
	extracted := ExtractJSON(text)
	if json.Valid([]byte(extracted)) {
		return text
	}
	surplus := -braceBalance(extracted)
	if surplus <= 0 {
		return text
	}

	matches := strayBracePattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) < surplus {
		return text
	}

	attempts := 0
	chosen := make([]int, 0, surplus)
	var search func(start int) (string, bool)
	search = func(start int) (string, bool) {
		if len(chosen) == surplus {
			attempts++
			candidate := rewriteMatches(text, matches, chosen)
			return candidate, repairedJSON(candidate)
		}
		for i := start; i < len(matches) && attempts < maxStrayBraceAttempts; i++ {
			chosen = append(chosen, i)
			if candidate, ok := search(i + 1); ok {
				return candidate, true
			}
			chosen = chosen[:len(chosen)-1]
		}
		return "", false
	}

	if fixed, ok := search(0); ok {
		return fixed
	}
	return text
}

// rewriteMatches replaces the selected matches, given in ascending order, with
// their field and next key joined by a comma.
func rewriteMatches(text string, matches [][]int, chosen []int) string {
	out := make([]byte, 0, len(text))
	last := 0
	for _, i := range chosen {
		m := matches[i]
		out = append(out, text[last:m[0]]...)
		out = append(out, text[m[2]:m[3]]...)
		out = append(out, ',')
		out = append(out, text[m[4]:m[5]]...)
		last = m[1]
	}
	out = append(out, text[last:]...)
	return string(out)
}

// repairedJSON reports whether text holds JSON that decodes, directly or
// after normalization.
func repairedJSON(text string) bool {
	extracted := ExtractJSON(text)
	return json.Valid([]byte(extracted)) || json.Valid([]byte(Normalize(extracted)))
}

// braceBalance counts '{' minus '}' outside of string literals
func braceBalance(text string) int {
	balance := 0
	inString := false
	escaped := false
	for _, r := range text {
		switch {
		case escaped:
			escaped = false
		case inString && r == '\\':
			escaped = true
		case r == '"':
			inString = !inString
		case inString:
		case r == '{':
			balance++
		case r == '}':
			balance--
		}
	}
	return balance
}
