package session

import (
	"unicode"
)

// mostlyUnexpectedScript reports whether more than half of the text's
// non-whitespace characters are letters outside the expected script. A
// transcription that trips this almost always means the recognizer latched
// onto the wrong language, so the pipeline asks for a retry instead of
// accepting it.
func mostlyUnexpectedScript(text string, expected *unicode.RangeTable) bool {
	if expected == nil {
		return false
	}

	total := 0
	unexpected := 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsLetter(r) && !unicode.Is(expected, r) {
			unexpected++
		}
	}

	if total == 0 {
		return false
	}
	return unexpected*2 > total
}
