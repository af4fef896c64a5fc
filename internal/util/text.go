package util

import (
	"strings"
	"unicode"
)

// SanitizeText drops invalid UTF-8 and NUL bytes, which some PDF producers
// leave behind in text runs.
func SanitizeText(value string) string {
	if value == "" {
		return value
	}

	sanitized := strings.ToValidUTF8(value, "")
	return strings.ReplaceAll(sanitized, "\x00", "")
}

// NormalizeExtractedText sanitizes value and collapses every whitespace run,
// newlines included, into a single space.
func NormalizeExtractedText(value string) string {
	value = SanitizeText(value)
	var b strings.Builder
	b.Grow(len(value))
	space := false
	for _, r := range value {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}
