package tools

import "fmt"

// DefaultMaxObservation caps observation text recorded into conversation
// history. Oversized tool output is trimmed head/tail so both the start and
// the end survive.
const DefaultMaxObservation = 20000

// TruncateObservation trims output to maxChars using a head/tail split.
// A maxChars of zero or less applies the default cap.
func TruncateObservation(output string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxObservation
	}
	if len(output) <= maxChars {
		return output
	}
	half := maxChars / 2
	removed := len(output) - maxChars
	return output[:half] +
		fmt.Sprintf("\n\n[observation truncated: %d characters removed from the middle; re-run the tool with narrower parameters to see more]\n\n", removed) +
		output[len(output)-half:]
}
