package session

import (
	"regexp"
	"strings"
)

// Structural formatting markers read badly when spoken aloud, so they are
// stripped before synthesis.
var (
	markerChars     = regexp.MustCompile("[*_`>#]")
	dashRuns        = regexp.MustCompile(`-{2,}`)
	ellipsisRuns    = regexp.MustCompile(`\.{3,}`)
	leadingBullets  = regexp.MustCompile(`(?m)^\s*[-+]\s+`)
	leadingNumerals = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)
)

func stripFormatting(text string) string {
	text = markerChars.ReplaceAllString(text, "")
	text = dashRuns.ReplaceAllString(text, "-")
	text = ellipsisRuns.ReplaceAllString(text, ".")
	text = leadingBullets.ReplaceAllString(text, "")
	text = leadingNumerals.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// clipForSpeech bounds the text sent to the speech service, clipping at a
// rune boundary so multi-byte characters survive.
func clipForSpeech(text string, maxChars int) string {
	if maxChars <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars])
}
