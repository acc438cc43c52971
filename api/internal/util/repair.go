package util

import "strings"

// RepairTruncated closes what a truncated JSON document left open: an unterminated string and any
// unclosed arrays or objects, innermost first. It only appends; invalid tokens, trailing commas and
// unquoted keys are left for the parser to reject. Blank input yields "{}".
func RepairTruncated(text string) string {
	s := strings.TrimSpace(text)
	if s == "" {
		return "{}"
	}

	var (
		open     []byte // pending closers, innermost last
		inString bool
		escaped  bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' {
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
		switch c {
		case '{':
			open = append(open, '}')
		case '[':
			open = append(open, ']')
		case '}', ']':
			// surplus or mismatched closers are not ours to fix
			if n := len(open); n > 0 && open[n-1] == c {
				open = open[:n-1]
			}
		}
	}

	var b strings.Builder
	b.Grow(len(s) + len(open) + 2)
	b.WriteString(s)
	if inString {
		if escaped {
			b.WriteByte('\\')
		}
		b.WriteByte('"')
	}
	for i := len(open) - 1; i >= 0; i-- {
		b.WriteByte(open[i])
	}
	return b.String()
}
