package embedding

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Sanitize normalizes text before embedding: Unicode NFC composition,
// control characters removed, runs of whitespace collapsed to single
// spaces, and the result trimmed. Returns "" when nothing survives.
func Sanitize(text string) string {
	composed := norm.NFC.String(text)

	var sb strings.Builder
	sb.Grow(len(composed))
	for _, r := range composed {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			continue
		}
		sb.WriteRune(r)
	}

	return strings.Join(strings.Fields(sb.String()), " ")
}
