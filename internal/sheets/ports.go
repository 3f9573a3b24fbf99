package sheets

import (
	"context"

	"bookkeeper/internal/core"
	"bookkeeper/internal/ledger"
)

// Ref locates a ledger inside a spreadsheet. An empty Range reads the first
// four columns of the first sheet.
type Ref struct {
	SpreadsheetID string `json:"spreadsheet_id"`
	Range         string `json:"range"`
}

// DefaultRange is used when Ref.Range is empty.
const DefaultRange = "A:D"

// RangeOrDefault returns r.Range or DefaultRange.
func (r Ref) RangeOrDefault() string {
	if r.Range == "" {
		return DefaultRange
	}
	return r.Range
}

// LedgerReader is the outbound port for spreadsheet ledger sources.
type LedgerReader interface {
	ReadLedger(ctx context.Context, ref Ref) (core.Ledger, ledger.Stats, error)
}
