package analysis

import "bookkeeper/internal/core"

// Coverage tells whether a ledger spans a full contiguous year.
type Coverage string

const (
	FullYear Coverage = "FULL_YEAR"
	Partial  Coverage = "PARTIAL"
)

// CheckCoverage returns FullYear iff the ledger contains twelve consecutive
// calendar months. Twelve scattered months are Partial. A single unparseable
// date downgrades the result to Partial.
func CheckCoverage(l core.Ledger) Coverage {
	for _, t := range l {
		if !t.Date.Valid() {
			return Partial
		}
	}
	months := DistinctMonths(l)
	run := 0
	for i, p := range months {
		if i > 0 && p.Index() == months[i-1].Index()+1 {
			run++
		} else {
			run = 1
		}
		if run >= 12 {
			return FullYear
		}
	}
	return Partial
}
