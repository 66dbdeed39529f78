// Package engine provides the tool plumbing shared by the cache transports.
// This file contains the token estimation heuristic.

package engine

import "unicode/utf8"

// EstimateTokens approximates how many model tokens text would cost.
// The heuristic is ceil(characters * 0.75). It only feeds savings
// reporting and never decides what a read returns.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	// ceil(3n/4) in integer arithmetic.
	return (3*n + 3) / 4
}

// TokensSaved is the estimated saving from sending replacement instead of
// full. Never negative.
func TokensSaved(full, replacement string) int {
	saved := EstimateTokens(full) - EstimateTokens(replacement)
	if saved < 0 {
		return 0
	}
	return saved
}
