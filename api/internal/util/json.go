package util

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Candidate is a slice of model output believed to hold one JSON value.
type Candidate struct {
	Text  string
	Start int  // byte offset in the cleaned text
	Kind  byte // '{' or '[' for scanned slices, 0 when the whole cleaned text parsed
	Valid bool // false for a balanced slice that still does not parse
}

// ExtractJSON finds a JSON value inside free-form model output.
//
// The cleaned text is returned as is when it already parses. Otherwise the text is walked from the first
// '{' or '[' and every slice that closes the opener's depth is tried; the first one that parses wins.
// When none parse, the last balanced slice is returned with Valid=false so a repair can still be attempted.
//
// Depth counting is not string-aware: a quoted '{' or '}' shifts the depth. Such slices fail to parse and
// the scan moves on.
func ExtractJSON(text string) (Candidate, bool) {
	t := StripCodeFences(text)
	if t == "" {
		return Candidate{}, false
	}
	if gjson.Valid(t) {
		return Candidate{Text: t, Valid: true}, true
	}

	start := FirstOpener(t)
	if start < 0 {
		return Candidate{}, false
	}
	open := t[start]
	closer := byte('}')
	if open == '[' {
		closer = ']'
	}

	var (
		best  Candidate
		found bool
		depth int
	)
	for i := start; i < len(t); i++ {
		switch t[i] {
		case open:
			depth++
		case closer:
			depth--
		}
		if depth != 0 || i == start {
			continue
		}
		slice := t[start : i+1]
		if gjson.Valid(slice) {
			return Candidate{Text: slice, Start: start, Kind: open, Valid: true}, true
		}
		best = Candidate{Text: slice, Start: start, Kind: open}
		found = true
	}
	return best, found
}

// FirstOpener returns the offset of the first '{' or '[' in s, or -1.
func FirstOpener(s string) int {
	return strings.IndexAny(s, "{[")
}
