// Package sanitize strips markup-like fragments from free-text input before it
// is stored or shown. It is a defense-in-depth layer, not an HTML sanitizer:
// consumers that render stored text must still escape it.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxMessageRunes is the cap applied to chat message bodies.
const MaxMessageRunes = 500

var (
	// unsafeCharsRE matches characters that could open a tag or an attribute value.
	unsafeCharsRE = regexp.MustCompile(`[<>"']`)
	// jsSchemeRE matches the javascript: URL scheme in any letter case.
	jsSchemeRE = regexp.MustCompile(`(?i)javascript:`)
	// eventAttrRE matches inline event-handler attributes such as onclick= or onerror=.
	eventAttrRE = regexp.MustCompile(`(?i)on\w+=`)
)

// Text returns s with angle brackets and quotes removed, javascript: schemes
// and on<word>= fragments removed, surrounding whitespace trimmed, and the
// result truncated to max runes. A max <= 0 disables truncation.
//
// Removal runs until the string is stable, so deleting one fragment can never
// join its neighbours into a new forbidden sequence.
func Text(s string, max int) string {
	out := strings.TrimSpace(s)
	out = unsafeCharsRE.ReplaceAllString(out, "")
	for {
		next := jsSchemeRE.ReplaceAllString(out, "")
		next = eventAttrRE.ReplaceAllString(next, "")
		if next == out {
			break
		}
		out = next
	}
	return truncate(strings.TrimSpace(out), max)
}

// Value sanitizes v when it is a string and returns "" for any other type,
// which is how JSON numbers, objects or nulls in a text field end up.
func Value(v any, max int) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return Text(s, max)
}

// truncate clips s to max runes without splitting a multi-byte character.
func truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
