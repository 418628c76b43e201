// Package cloze turns captured words into blanked display forms for the
// front side of a card.
package cloze

import "strings"

// Format blanks a word or phrase token by token. Tokens up to three
// characters are fully blanked, tokens of four or five characters keep the
// first character, longer tokens keep the first and last characters.
func Format(text string) string {
	tokens := strings.Fields(text)
	blanked := make([]string, len(tokens))
	for i, token := range tokens {
		blanked[i] = formatToken(token)
	}
	return strings.Join(blanked, " ")
}

func formatToken(token string) string {
	runes := []rune(token)
	n := len(runes)

	switch {
	case n <= 3:
		return strings.Repeat("_", n)
	case n <= 5:
		return string(runes[0]) + strings.Repeat("_", n-1)
	default:
		return string(runes[0]) + strings.Repeat("_", n-2) + string(runes[n-1])
	}
}
