package provider

import "math"

// EstimateTokens approximates the upstream's token count at roughly 4
// characters per token — the same conservative estimate the admission
// chain uses pre-flight (spec §4.3's estimated_total formula). The
// upstream's own reported Usage is always authoritative for billing;
// this is only ever used before a call is made.
func EstimateTokens(s string) int {
	return EstimateTokensFromLength(len([]rune(s)))
}

// EstimateTokensFromLength is EstimateTokens for a caller that already
// has a rune count (e.g. a body-peeked message length) and would
// otherwise have to re-decode the string just to re-derive it.
func EstimateTokensFromLength(runeLen int) int {
	return int(math.Ceil(float64(runeLen) / 4.0))
}
