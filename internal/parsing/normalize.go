// Package parsing turns unreliable model text into JSON objects.
package parsing

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"
)

var fencePattern = regexp.MustCompile("(?is)```(?:json)?\\s*(.*?)```")

// ExtractJSON picks the most likely JSON text out of a model response: the
// first fenced block, else the span from the first '{' to the last '}', else
// the trimmed text.
func ExtractJSON(raw string) string {
	stripped := strings.TrimSpace(raw)

	if m := fencePattern.FindStringSubmatch(stripped); m != nil {
		candidate := skipLanguageLine(strings.TrimSpace(m[1]))
		if candidate != "" {
			return candidate
		}
	}

	start := strings.Index(stripped, "{")
	end := strings.LastIndex(stripped, "}")
	if start != -1 && end > start {
		return strings.TrimSpace(stripped[start : end+1])
	}

	return stripped
}

// skipLanguageLine drops a leading language tag such as "javascript" that the
// fence pattern leaves behind for non-json fences.
func skipLanguageLine(text string) string {
	idx := strings.Index(text, "\n")
	if idx < 0 {
		return text
	}
	first := strings.TrimSpace(text[:idx])
	if first != "" && len(first) < 20 && !strings.ContainsAny(first, " {[\"") {
		return strings.TrimSpace(text[idx+1:])
	}
	return text
}

// Normalize repairs the recoverable defects models introduce into JSON: a
// byte order mark, carriage returns, curly quotes used as delimiters, raw
// control characters inside strings, and trailing commas. Text that is
// already valid JSON comes back unchanged.
func Normalize(text string) string {
	text = strings.TrimPrefix(text, "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "")

	var sb strings.Builder
	sb.Grow(len(text))

	inString := false
	curlyOpened := false
	escaped := false

	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])

		if inString {
			switch {
			case escaped:
				escaped = false
				sb.WriteRune(r)
			case r == '\\':
				escaped = true
				sb.WriteRune(r)
			case r == '"':
				inString = false
				sb.WriteRune(r)
			case curlyOpened && isCurlyDouble(r):
				inString = false
				sb.WriteByte('"')
			case r == '\n':
				sb.WriteString(`\n`)
			case r == '\t':
				sb.WriteString(`\t`)
			case r < 0x20:
				sb.WriteString(`\u00`)
				sb.WriteByte(hexDigit(byte(r) >> 4))
				sb.WriteByte(hexDigit(byte(r) & 0xf))
			default:
				sb.WriteRune(r)
			}
			i += size
			continue
		}

		switch {
		case r == '"':
			inString, curlyOpened = true, false
			sb.WriteRune(r)
		case isCurlyDouble(r):
			inString, curlyOpened = true, true
			sb.WriteByte('"')
		case r == ',' && closesNext(text[i+size:]):
			// trailing comma
		default:
			sb.WriteRune(r)
		}
		i += size
	}

	return sb.String()
}

func isCurlyDouble(r rune) bool {
	return r == '\u201c' || r == '\u201d' || r == '\u201e' || r == '\u201f'
}

// closesNext reports whether only whitespace separates the current position
// from a closing bracket.
func closesNext(rest string) bool {
	trimmed := strings.TrimLeft(rest, " \t\n")
	return strings.HasPrefix(trimmed, "}") || strings.HasPrefix(trimmed, "]")
}

func hexDigit(b byte) byte {
	const digits = "0123456789abcdef"
	return digits[b]
}

// ParseBestEffort tries, in order, the normalized extract, the raw extract and
// the trimmed raw text, returning the first that decodes to a JSON object
// together with the text that decoded. When nothing decodes it returns nil and
// the normalized extract.
func ParseBestEffort(raw string) (map[string]any, string) {
	extracted := ExtractJSON(raw)
	candidates := []string{
		Normalize(extracted),
		extracted,
		strings.TrimSpace(raw),
	}

	for i, candidate := range candidates {
		if i > 0 && candidate == candidates[i-1] {
			continue
		}
		if obj, ok := decodeObject(candidate); ok {
			return obj, candidate
		}
	}

	return nil, candidates[0]
}

func decodeObject(text string) (map[string]any, bool) {
	if !strings.HasPrefix(text, "{") {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, false
	}
	return obj, obj != nil
}
