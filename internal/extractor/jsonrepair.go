package extractor

import (
	"encoding/json"
	"strings"
)

// LocateJSON finds the JSON payload in a model response. It tries, in order:
// a ```json fence, any ``` fence, the outermost {...} span, an unterminated
// object starting at the first '{', and finally the whole text. ok is false
// only when nothing is left to parse.
func LocateJSON(text string) (string, bool) {
	if body, ok := fenced(text, "```json"); ok {
		return body, true
	}
	if body, ok := fenced(text, "```"); ok {
		return body, true
	}

	first := strings.IndexByte(text, '{')
	if first >= 0 {
		if last := strings.LastIndexByte(text, '}'); last > first {
			return text[first : last+1], true
		}
		return strings.TrimSpace(text[first:]), true
	}

	trimmed := strings.TrimSpace(text)
	return trimmed, trimmed != ""
}

// fenced returns the non-empty content after marker up to the next ``` (or
// the end of text, since a stop sequence may have cut the closing fence).
func fenced(text, marker string) (string, bool) {
	i := strings.Index(text, marker)
	if i < 0 {
		return "", false
	}
	rest := text[i+len(marker):]
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	rest = strings.TrimSpace(rest)
	if !strings.HasPrefix(rest, "{") && !strings.HasPrefix(rest, "[") {
		return "", false
	}
	return rest, true
}

// RepairJSON applies a fixed rule set to almost-JSON:
//
//  1. drop commas directly before '}' or ']' or the end of input
//  2. append the missing '}' / ']' in nesting order
//  3. drop trailing commas again
//
// Characters inside strings are never altered and an unterminated string is
// left as is, so truncated values fail to parse instead of being invented.
// ok reports whether the result is valid JSON. RepairJSON does not panic on
// any input.
func RepairJSON(s string) (repaired string, ok bool) {
	out := stripTrailingCommas(strings.TrimSpace(s))
	out = closeOpen(out)
	out = stripTrailingCommas(out)
	return out, json.Valid([]byte(out))
}

// stripTrailingCommas removes commas that are followed only by whitespace
// and a closing bracket or the end of input.
func stripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
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
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j == len(s) || s[j] == '}' || s[j] == ']' {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// closeOpen appends closers for every bracket still open, innermost first.
// Input ending inside a string is returned unchanged.
func closeOpen(s string) string {
	var stack []byte
	inString, escaped := false, false

	for i := 0; i < len(s); i++ {
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
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if n := len(stack); n > 0 && stack[n-1] == c {
				stack = stack[:n-1]
			}
		}
	}

	if inString || len(stack) == 0 {
		return s
	}

	var b strings.Builder
	b.WriteString(s)
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
