package ledger

import (
	"strings"

	"bookkeeper/internal/core"
)

// Canonical column labels, Korean and English. Sources whose headers do not
// match are assigned these columns positionally.
var (
	koreanHeader  = [4]string{"날짜", "내용", "금액", "분류"}
	englishHeader = [4]string{"date", "description", "amount", "category"}
)

// FromRows converts tabular rows (CSV records, spreadsheet values) into a
// ledger. A leading row is skipped as a header when it repeats the canonical
// labels or when its amount cell is not a number while the next row's is.
func FromRows(rows [][]string) (core.Ledger, Stats) {
	var (
		l     core.Ledger
		stats Stats
	)
	start := 0
	if len(rows) > 0 && isHeader(rows[0], rows[1:]) {
		start = 1
	}
	for _, row := range rows[start:] {
		if blankRow(row) {
			continue
		}
		stats.Lines++
		if len(row) < 4 {
			stats.Dropped++
			continue
		}
		fields := make([]string, 4)
		copy(fields, row[:4])
		l = append(l, newTransaction(fields, &stats))
	}
	return l, stats
}

func isHeader(first []string, rest [][]string) bool {
	if len(first) < 4 {
		return false
	}
	if matchesHeader(first, koreanHeader) || matchesHeader(first, englishHeader) {
		return true
	}
	if _, ok := core.ParseAmount(first[2]); ok {
		return false
	}
	if core.ParseDate(first[0]).Valid() {
		return false
	}
	for _, row := range rest {
		if blankRow(row) || len(row) < 4 {
			continue
		}
		_, ok := core.ParseAmount(row[2])
		return ok
	}
	return false
}

func matchesHeader(row []string, header [4]string) bool {
	for i, label := range header {
		if !strings.EqualFold(strings.TrimSpace(row[i]), label) {
			return false
		}
	}
	return true
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
