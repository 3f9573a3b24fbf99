// Package analysis is the deterministic ledger analysis engine: category
// aggregation, coverage detection, tax estimation and spending-ratio warnings.
// Every function here is a pure computation over an in-memory ledger.
package analysis

import (
	"github.com/shopspring/decimal"

	"bookkeeper/internal/core"
)

// Rules groups every tunable constant of the engine.
type Rules struct {
	RevenueCategory string
	Tax             TaxRules
	Thresholds      ThresholdTable
}

// TaxRules holds the simplified, illustrative tax parameters. They are not
// the rules of any real jurisdiction.
type TaxRules struct {
	VATRate            decimal.Decimal
	SimpleIncomeRate   decimal.Decimal
	BasicDeduction     int64
	MedicalDeduction   int64
	PensionDeduction   int64
	DependentDeduction int64 // per dependent
	ChildCredit        int64 // per child
	ElderlyCredit      int64 // per elderly dependent
	NonDeductible      []string
	Brackets           []Bracket
}

// Bracket is one step of the progressive schedule. UpTo of 0 means no upper
// bound. Offset is the continuity subtraction for the bracket.
type Bracket struct {
	UpTo   int64
	Rate   decimal.Decimal
	Offset int64
}

// Household describes the taxpayer's personal situation for deductions and
// credits. The zero value claims nothing beyond the basic deduction.
type Household struct {
	Dependents int `json:"dependents"`
	Children   int `json:"children"`
	Elderly    int `json:"elderly"`
}

// Default category labels used by the built-in threshold table.
const (
	CategoryRawMaterials = "원재료비"
	CategoryLabor        = "인건비"
	CategoryAdvertising  = "광고선전비"
	CategorySupplies     = "소모품비"
	CategoryGifts        = "경조사비"
)

// DefaultTaxRules returns the canonical deduction and bracket constants.
func DefaultTaxRules() TaxRules {
	return TaxRules{
		VATRate:            decimal.RequireFromString("0.10"),
		SimpleIncomeRate:   decimal.RequireFromString("0.06"),
		BasicDeduction:     1_500_000,
		MedicalDeduction:   0,
		PensionDeduction:   0,
		DependentDeduction: 1_500_000,
		ChildCredit:        150_000,
		ElderlyCredit:      1_000_000,
		NonDeductible:      []string{CategoryGifts},
		Brackets: []Bracket{
			{UpTo: 12_000_000, Rate: decimal.RequireFromString("0.06")},
			{UpTo: 46_000_000, Rate: decimal.RequireFromString("0.15"), Offset: 1_080_000},
			{UpTo: 0, Rate: decimal.RequireFromString("0.24"), Offset: 5_220_000},
		},
	}
}

// DefaultThresholds returns the built-in spending-ratio table.
func DefaultThresholds() ThresholdTable {
	return ThresholdTable{
		BandRule(CategoryRawMaterials, 0.3, 0.5),
		CeilingRule(CategoryLabor, 0.3),
		CeilingRule(CategoryAdvertising, 0.1),
		CeilingRule(CategorySupplies, 0.05),
		CapRule(CategoryGifts, 200_000),
	}
}

// DefaultRules returns the engine defaults.
func DefaultRules() Rules {
	return Rules{
		RevenueCategory: core.DefaultRevenueCategory,
		Tax:             DefaultTaxRules(),
		Thresholds:      DefaultThresholds(),
	}
}
