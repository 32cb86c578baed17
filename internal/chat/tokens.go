package chat

import "unicode/utf8"

// EstimateTokens approximates the token count of a text as half its rune
// count, rounded up. English prose averages roughly four characters per
// token; halving runes overestimates on purpose so budget enforcement errs
// toward shorter prompts.
func EstimateTokens(s string) int {
	return (utf8.RuneCountInString(s) + 1) / 2
}
