package utils

import "unicode/utf8"

const ellipsis = "..."

// Truncate shortens s to at most maxLen runes, marking the cut with "...".
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}

	keep := maxLen
	suffix := ""
	if maxLen > len(ellipsis) {
		keep = maxLen - len(ellipsis)
		suffix = ellipsis
	}

	n := 0
	for i := range s {
		if n == keep {
			return s[:i] + suffix
		}
		n++
	}
	return s + suffix
}
