package assistant

// EstimateTokens estimates the token count of text with a Unicode-aware heuristic.
// ASCII runes count for a quarter token each; any other rune counts as a full token,
// which keeps accented Portuguese text on the conservative side.
func EstimateTokens(text string) int {
	weight := 0
	for _, r := range text {
		if r <= 127 {
			weight++
			continue
		}
		weight += 4
	}
	return (weight + 3) / 4
}
