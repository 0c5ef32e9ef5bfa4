// Package sanitize cleans free-text fields before they reach processor
// metadata or storage: HTML tags stripped, angle brackets removed, trimmed,
// capped.
package sanitize

import (
	"regexp"
	"strings"
)

const (
	MaxNoteLen    = 500
	MaxNameLen    = 100
	MaxAddressLen = 200
)

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// Text strips HTML tags and stray angle brackets, trims whitespace, and caps
// the result at maxLen runes. maxLen <= 0 means no cap.
func Text(input string, maxLen int) string {
	cleaned := tagPattern.ReplaceAllString(input, "")
	cleaned = strings.NewReplacer("<", "", ">", "").Replace(cleaned)
	cleaned = strings.TrimSpace(cleaned)
	if maxLen > 0 {
		runes := []rune(cleaned)
		if len(runes) > maxLen {
			cleaned = strings.TrimSpace(string(runes[:maxLen]))
		}
	}
	return cleaned
}

// Note sanitizes a buyer note.
func Note(input string) string {
	return Text(input, MaxNoteLen)
}

// Name sanitizes a display name or listing title.
func Name(input string) string {
	return Text(input, MaxNameLen)
}

// Address sanitizes a single-line shipping address.
func Address(input string) string {
	return Text(input, MaxAddressLen)
}
