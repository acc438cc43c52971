package util

import (
	"regexp"
	"strings"
)

var (
	fenceOpenRe  = regexp.MustCompile("^```[A-Za-z0-9_+-]*\\s*")
	fenceCloseRe = regexp.MustCompile("\\s*```$")
	jsonTokenRe  = regexp.MustCompile(`(?i)^json\s*`)
)

// StripCodeFences removes a markdown fence (with an optional language tag), stray backticks
// and a leading bare "json" token that models like to put in front of the payload.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = fenceOpenRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(fenceCloseRe.ReplaceAllString(s, ""))
	s = strings.TrimSpace(strings.Trim(s, "`"))
	s = jsonTokenRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Clip cuts s to at most n bytes without splitting a UTF-8 sequence.
func Clip(s string, n int) string {
	if n < 0 || len(s) <= n {
		return s
	}
	for n > 0 && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}
