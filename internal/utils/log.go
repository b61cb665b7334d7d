package utils

import (
	"strings"
	"unicode/utf8"
)

const ellipsis = "..."

// TruncateForLog puts s on a single line and keeps at most limit runes.
// A cut is marked with an ellipsis.
func TruncateForLog(s string, limit int) string {
	if limit <= 0 {
		return ""
	}

	flat := strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(flat) <= limit {
		return flat
	}
	return string([]rune(flat)[:limit]) + ellipsis
}
