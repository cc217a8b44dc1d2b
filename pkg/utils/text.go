// Package utils provides shared helpers for text, numbers, and logging.
package utils

import "strings"

// TruncateMiddle shortens s to at most maxLen runes by replacing its middle
// with "...", keeping the tail (usually the file name) readable. If maxLen is
// too small to fit the ellipsis, s is cut from the left instead. A
// non-positive maxLen returns s unchanged.
func TruncateMiddle(s string, maxLen int) string {
	r := []rune(s)
	if maxLen <= 0 || len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[len(r)-maxLen:])
	}
	keep := maxLen - 3
	head := keep / 3
	tail := keep - head
	return string(r[:head]) + "..." + string(r[len(r)-tail:])
}

// SpaceWords turns separator-joined names like "dark_trap-beat" into
// space-separated words and collapses repeated whitespace.
func SpaceWords(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '_' || r == '-' || r == '.' {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
