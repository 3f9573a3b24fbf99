// Package ledger turns raw ledger sources into a core.Ledger.
//
// Parsing is lenient: records that do not carry exactly four fields are
// dropped, unreadable amounts become 0 and unreadable dates become the zero
// Date. Every adapter reports what it repaired through Stats.
package ledger

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strings"

	"bookkeeper/internal/core"
)

// Delimiter separates the four fields of a text ledger line.
const Delimiter = "|"

var (
	ErrUnsupportedFormat = errors.New("unsupported ledger format")
	ErrEmptyLedger       = errors.New("ledger contains no valid records")
)

// Stats counts what happened while parsing one source.
type Stats struct {
	Lines           int `json:"lines"`
	Accepted        int `json:"accepted"`
	Dropped         int `json:"dropped"`
	RepairedAmounts int `json:"repaired_amounts"`
	InvalidDates    int `json:"invalid_dates"`
}

// Parse reads pipe-delimited text, one `date|description|amount|category`
// record per line. Blank lines are ignored without being counted as dropped.
func Parse(data []byte) (core.Ledger, Stats, error) {
	var (
		l     core.Ledger
		stats Stats
	)
	data = bytes.TrimPrefix(data, utf8BOM)
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		stats.Lines++
		parts := strings.Split(line, Delimiter)
		if len(parts) != 4 {
			stats.Dropped++
			continue
		}
		l = append(l, newTransaction(parts, &stats))
	}
	if err := sc.Err(); err != nil {
		return nil, stats, fmt.Errorf("scan ledger: %w", err)
	}
	return l, stats, nil
}

// newTransaction builds a transaction from exactly four positional fields.
func newTransaction(fields []string, stats *Stats) core.Transaction {
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	amount, ok := core.ParseAmount(fields[2])
	if !ok {
		stats.RepairedAmounts++
	}
	date := core.ParseDate(fields[0])
	if !date.Valid() {
		stats.InvalidDates++
	}
	stats.Accepted++
	return core.Transaction{
		Date:        date,
		Description: fields[1],
		Amount:      amount,
		Category:    fields[3],
	}
}
