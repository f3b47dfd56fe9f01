package tools

import "unicode/utf8"

// Truncate returns the longest prefix of s that fits in max bytes without
// splitting a UTF-8 sequence, and whether anything was cut.
func Truncate(s string, max int) (string, bool) {
	if len(s) <= max {
		return s, false
	}
	if max <= 0 {
		return "", true
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut], true
}
