package router

// EstimateTokens approximates the token count of text as ceil(bytes/4).
// Deliberately coarse: it sits on the hot path and only feeds the coarse
// size buckets and cost estimates.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
