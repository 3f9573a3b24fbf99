// Package feedback talks to language models on behalf of the bookkeeping
// engine: advisory answers to user questions, optional categorization of
// ledger rows and model-derived anomaly thresholds. Nothing in here is on the
// report path; callers fall back to deterministic results on any error.
package feedback

import "bookkeeper/internal/core"

// Gate decides whether a request made in current gets the once-a-month
// summary feedback, given the last month that received it. It returns the
// month to record as last. A zero current never grants feedback.
func Gate(last, current core.Period) (include bool, next core.Period) {
	if current.IsZero() || last == current {
		return false, last
	}
	return true, current
}
