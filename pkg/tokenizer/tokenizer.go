// Package tokenizer estimates LLM token counts for prompt budgeting.
package tokenizer

import (
	"strings"
	"unicode/utf8"
)

// charsPerToken is the rough average for English text.
const charsPerToken = 4

// EstimateTokens returns a blended word/character estimate of the token count.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	chars := utf8.RuneCountInString(text)
	return (int(float64(words)*1.3) + chars/charsPerToken) / 2
}

// Truncate shortens text to roughly fit budget tokens, cutting at a word
// boundary when one is close. The second result reports whether text was cut.
func Truncate(text string, budget int) (string, bool) {
	if budget <= 0 {
		return "", text != ""
	}
	if EstimateTokens(text) <= budget {
		return text, false
	}
	runes := []rune(text)
	maxRunes := budget * charsPerToken
	if maxRunes >= len(runes) {
		return text, false
	}
	cut := string(runes[:maxRunes])
	if i := strings.LastIndexAny(cut, " \n\t"); i > len(cut)/2 {
		cut = cut[:i]
	}
	return cut, true
}
