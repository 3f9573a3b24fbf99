package ledger

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"bookkeeper/internal/core"
)

var utf8BOM = []byte("\xef\xbb\xbf")

// ParseCSV reads a comma-separated ledger. Columns are taken positionally as
// date, description, amount, category regardless of the header names.
// Quotes are read leniently; a record the reader still cannot split is
// counted as dropped and reading continues with the next one.
func ParseCSV(data []byte) (core.Ledger, Stats, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.LazyQuotes = true

	var (
		records [][]string
		broken  int
	)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			broken++
			continue
		}
		if err != nil {
			return nil, Stats{}, fmt.Errorf("read csv: %w", err)
		}
		records = append(records, rec)
	}

	l, stats := FromRows(records)
	stats.Lines += broken
	stats.Dropped += broken
	return l, stats, nil
}
