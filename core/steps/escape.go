package steps

import "strings"

// escapePhrases end the session immediately when they appear anywhere in a
// user message, spoken or typed.
var escapePhrases = []string{
	"end session",
	"stop everything",
	"cancel",
	"just stop",
	"shut up",
}

// IsEscapePhrase reports whether the text contains any escape phrase,
// case-insensitively.
func IsEscapePhrase(text string) bool {
	lowered := strings.ToLower(text)
	for _, phrase := range escapePhrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}
