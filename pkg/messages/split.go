package messages

import (
	"fmt"
	"regexp"
	"strings"
)

// Tokens that must never be split on their embedded periods: URLs,
// www hosts, email addresses, quoted spans, "1. " style ordinals and
// word.word abbreviations.
var protectedPattern = regexp.MustCompile(
	`https?://\S+|www\.\S+|\S+@\S+\.\S+|"[^"]*"|'[^']*'|\b\d+\.\s|\w+\.\w+`,
)

// A sentence: a run without enders, closed by one or more enders and
// an optional closing quote, or by end of input.
var sentencePattern = regexp.MustCompile(`[^.?!]+(?:[.?!]+["']?|$)`)

const placeholderPrefix = "PLACEHOLDER_"

// Split breaks an AI reply into shorter chunks that read like the
// consecutive bubbles a person would type. Protected tokens are swapped
// for positional placeholders before sentence splitting, then restored,
// so no URL, email, quote, ordinal or abbreviation is ever cut in half.
func Split(text string) []string {
	protected := protectedPattern.FindAllString(text, -1)

	idx := 0
	withPlaceholders := protectedPattern.ReplaceAllStringFunc(text, func(string) string {
		placeholder := fmt.Sprintf("%s%d", placeholderPrefix, idx)
		idx++
		return placeholder
	})

	parts := sentencePattern.FindAllString(withPlaceholders, -1)
	if parts == nil {
		parts = []string{text}
	}

	if len(protected) > 0 {
		for i := range parts {
			// Restore in reverse so PLACEHOLDER_1 never clobbers the
			// prefix of PLACEHOLDER_10.
			for j := len(protected) - 1; j >= 0; j-- {
				parts[i] = strings.Replace(parts[i], fmt.Sprintf("%s%d", placeholderPrefix, j), protected[j], 1)
			}
		}
	}

	chunks := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimLeft(part, " \t\n")
		if part != "" {
			chunks = append(chunks, part)
		}
	}
	return chunks
}
