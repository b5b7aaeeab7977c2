package relay

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Form is a recognized speech request shape.
type Form int

const (
	FormNone Form = iota
	// FormDirect says the text as is, in any conversation.
	FormDirect
	// FormAttributed says the text on behalf of the sender, in groups only.
	FormAttributed
)

func (f Form) String() string {
	switch f {
	case FormDirect:
		return "direct"
	case FormAttributed:
		return "attributed"
	}
	return "none"
}

// cutPrefixFold strips a case-insensitive prefix that must be followed by
// whitespace or the end of text, and returns the trimmed remainder.
func cutPrefixFold(text, prefix string) (string, bool) {
	if prefix == "" {
		return "", false
	}
	rest := text
	for _, want := range prefix {
		got, size := utf8.DecodeRuneInString(rest)
		if size == 0 || !equalFoldRune(got, want) {
			return "", false
		}
		rest = rest[size:]
	}
	if next, _ := utf8.DecodeRuneInString(rest); rest != "" && !unicode.IsSpace(next) {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

func equalFoldRune(a, b rune) bool {
	return a == b || unicode.ToLower(a) == unicode.ToLower(b)
}
