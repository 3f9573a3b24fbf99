package core

import (
	"strconv"
	"strings"
	"unicode"
)

// MaxAmount is the largest amount a single ledger row may carry. Sums over
// realistic ledgers stay far below the int64 limit with this cap.
const MaxAmount int64 = 1_000_000_000_000_000

// ParseAmount converts a ledger amount field to whole currency units.
//
// Thousands separators, whitespace, and a trailing 원 or leading ₩ are
// stripped before conversion. The boolean is false when the field could not
// be read as a non-negative integer no larger than MaxAmount; the returned
// amount is then 0 and the caller is expected to count the row as repaired.
//
// Examples:
//   ParseAmount("1,200,000") -> 1200000, true
//   ParseAmount(" 35 000 ")  -> 35000, true
//   ParseAmount("abc")       -> 0, false
func ParseAmount(s string) (int64, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if r == ',' || r == '_' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	cleaned = strings.TrimPrefix(cleaned, "₩")
	cleaned = strings.TrimSuffix(cleaned, "원")
	if cleaned == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil || v < 0 || v > MaxAmount {
		return 0, false
	}
	return v, true
}
