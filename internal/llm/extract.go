package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	reJSONFence = regexp.MustCompile("(?is)```json[ \\t]*\\r?\\n?(.*?)```")
	reAnyFence  = regexp.MustCompile("(?s)```[a-zA-Z0-9_+-]*[ \\t]*\\r?\\n?(.*?)```")
)

// maxBraceStarts bounds how many '{' positions are tried when scanning prose.
const maxBraceStarts = 32

// candidates lists the substrings ExtractJSON tries, in priority order:
// ```json fences, any fences, balanced {...} spans, then the whole text.
func candidates(raw string) []string {
	var out []string
	for _, m := range reJSONFence.FindAllStringSubmatch(raw, -1) {
		out = append(out, m[1])
	}
	for _, m := range reAnyFence.FindAllStringSubmatch(raw, -1) {
		out = append(out, m[1])
	}
	starts := 0
	for i := 0; i < len(raw) && starts < maxBraceStarts; i++ {
		if raw[i] != '{' {
			continue
		}
		starts++
		if end := balancedEnd(raw, i); end > i {
			out = append(out, raw[i:end+1])
		}
	}
	if first, last := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); first >= 0 && last > first {
		out = append(out, raw[first:last+1])
	}
	out = append(out, raw)
	return out
}

// balancedEnd returns the index of the '}' closing the '{' at start, or -1.
// Braces inside JSON strings are ignored.
func balancedEnd(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// ExtractJSON returns the first candidate of raw that parses as JSON, decoded
// into a generic value. When nothing parses it returns fallback itself.
func ExtractJSON(raw string, fallback any) any {
	for _, c := range candidates(raw) {
		c = strings.TrimSpace(c)
		if c == "" || !json.Valid([]byte(c)) {
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(c), &v); err == nil {
			return v
		}
	}
	return fallback
}

// Extract is the typed form of ExtractJSON: the first candidate that decodes
// into T wins, otherwise fallback is returned unchanged.
func Extract[T any](raw string, fallback T) T {
	v, ok := TryExtract[T](raw)
	if !ok {
		return fallback
	}
	return v
}

// TryExtract reports whether any candidate of raw decodes into T.
func TryExtract[T any](raw string) (T, bool) {
	for _, c := range candidates(raw) {
		c = strings.TrimSpace(c)
		if c == "" || !json.Valid([]byte(c)) {
			continue
		}
		var v T
		if err := json.Unmarshal([]byte(c), &v); err == nil {
			return v, true
		}
	}
	var zero T
	return zero, false
}
