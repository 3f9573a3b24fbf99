package analysis

import (
	"reflect"
	"testing"

	"bookkeeper/internal/core"
)

func TestBaseEstimate(t *testing.T) {
	e := NewEstimator(DefaultRules())
	cases := []struct {
		name          string
		basis         TaxBasis
		vat, incomeTx int64
	}{
		{"scenario from raw totals", FullYearBasis{Income: 1_000_000, Expense: 600_000}, 40_000, 0},
		{"above basic deduction", FullYearBasis{Income: 10_000_000, Expense: 2_000_000}, 800_000, 390_000},
		{"loss clamps to zero", FullYearBasis{Income: 100, Expense: 5_000}, 0, 0},
		{"fractions are floored", FullYearBasis{Income: 1_500_019, Expense: 0}, 150_001, 1},
		{"partial basis", PartialBasis{Income: 12_000_000, Expense: 1_200_000, Months: 3}, 1_080_000, 558_000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			vat, it := e.BaseEstimate(tc.basis)
			if vat != tc.vat || it != tc.incomeTx {
				t.Fatalf("got (%d, %d), want (%d, %d)", vat, it, tc.vat, tc.incomeTx)
			}
		})
	}
}

func TestProgressiveTaxBrackets(t *testing.T) {
	e := NewEstimator(DefaultRules())
	cases := []struct {
		taxable, want int64
	}{
		{0, 0},
		{-5, 0},
		{10_000_000, 600_000},
		{12_000_000, 720_000},
		{12_000_001, 720_000},
		{20_000_000, 1_920_000},
		{46_000_000, 5_820_000},
		{46_000_001, 5_820_000},
		{50_000_000, 6_780_000},
	}
	for _, tc := range cases {
		if got := e.ProgressiveTax(tc.taxable); got != tc.want {
			t.Errorf("ProgressiveTax(%d) = %d, want %d", tc.taxable, got, tc.want)
		}
	}
}

func TestBasisFollowsCoverage(t *testing.T) {
	e := NewEstimator(DefaultRules())
	l := monthlyLedger(core.Period{Year: 2024, Month: 1}, 3, 1_000_000, 100_000, CategorySupplies)

	b := e.Basis(l, CheckCoverage(l))
	partial, ok := b.(PartialBasis)
	if !ok {
		t.Fatalf("expected PartialBasis, got %T", b)
	}
	if partial.Months != 3 || partial.Income != 12_000_000 || partial.Expense != 1_200_000 {
		t.Fatalf("partial basis: %+v", partial)
	}

	full := monthlyLedger(core.Period{Year: 2024, Month: 1}, 12, 1_000_000, 100_000, CategorySupplies)
	if fb, ok := e.Basis(full, CheckCoverage(full)).(FullYearBasis); !ok || fb.Income != 12_000_000 || fb.Expense != 1_200_000 {
		t.Fatalf("full basis: %#v", e.Basis(full, CheckCoverage(full)))
	}
}

func TestEstimateFullYearWithAdjustments(t *testing.T) {
	e := NewEstimator(DefaultRules())
	l := monthlyLedger(core.Period{Year: 2024, Month: 1}, 12, 5_000_000, 1_500_000, CategoryRawMaterials)
	l = append(l, tx("2024-06-15", 300_000, CategoryGifts))
	before := l.Clone()

	got := e.Estimate(l, CheckCoverage(l), Household{Dependents: 1, Children: 2})

	want := TaxEstimate{
		VATEstimate:       4_170_000,
		IncomeTaxEstimate: 2_412_000,
		FinalTaxDue:       4_470_000,
		TotalDeductions:   3_000_000,
		TaxableIncome:     39_000_000,
		AdjustedProfit:    42_000_000,
		Credits:           300_000,
		Coverage:          FullYear,
		Extrapolated:      false,
		Adjustments: []string{
			"비용 불인정 항목 제외: 경조사비 300,000원",
			"기본공제: 1,500,000원",
			"부양가족공제: 1명 × 1,500,000원",
			"자녀 세액공제: 2명 × 150,000원",
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("estimate mismatch\n got: %+v\nwant: %+v", got, want)
	}
	if !reflect.DeepEqual(l, before) {
		t.Fatalf("Estimate modified its input ledger")
	}
}

func TestEstimatePartialIsExtrapolated(t *testing.T) {
	e := NewEstimator(DefaultRules())
	l := monthlyLedger(core.Period{Year: 2024, Month: 1}, 3, 1_000_000, 100_000, CategorySupplies)

	got := e.Estimate(l, CheckCoverage(l), Household{})
	if !got.Extrapolated || got.Coverage != Partial {
		t.Fatalf("expected extrapolated partial estimate: %+v", got)
	}
	if got.VATEstimate != 1_080_000 || got.IncomeTaxEstimate != 558_000 {
		t.Fatalf("base figures: vat=%d income=%d", got.VATEstimate, got.IncomeTaxEstimate)
	}
	if got.AdjustedProfit != 10_800_000 || got.TaxableIncome != 9_300_000 || got.FinalTaxDue != 558_000 {
		t.Fatalf("adjusted figures: %+v", got)
	}
	if len(got.Adjustments) == 0 || got.Adjustments[0] != "연환산 적용: 3개월 자료를 12개월 기준으로 환산" {
		t.Fatalf("missing extrapolation note: %v", got.Adjustments)
	}
}

func TestEstimateLargestAmountDoesNotWrap(t *testing.T) {
	e := NewEstimator(DefaultRules())
	l := core.Ledger{tx("2024-01-01", core.MaxAmount, "매출")}
	got := e.Estimate(l, CheckCoverage(l), Household{})
	if got.VATEstimate <= 0 || got.IncomeTaxEstimate <= 0 || got.FinalTaxDue <= 0 {
		t.Fatalf("estimate wrapped: %+v", got)
	}
	if got.TaxableIncome <= core.MaxAmount {
		t.Fatalf("one month must be annualized, taxable income %d", got.TaxableIncome)
	}
}

func TestEstimateNeverNegative(t *testing.T) {
	e := NewEstimator(DefaultRules())
	cases := []struct {
		name string
		l    core.Ledger
		h    Household
	}{
		{"expenses only", core.Ledger{tx("2024-01-01", 5_000_000, CategoryLabor)}, Household{}},
		{"deductions exceed income", core.Ledger{tx("2024-01-01", 100_000, "매출")}, Household{Dependents: 4}},
		{"credits exceed tax", monthlyLedger(core.Period{Year: 2024, Month: 1}, 12, 1_000_000, 0, CategorySupplies), Household{Children: 10, Elderly: 3}},
		{"negative household counts", core.Ledger{tx("2024-01-01", 3_000_000, "매출")}, Household{Dependents: -3, Children: -1}},
		{"empty ledger", nil, Household{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := e.Estimate(tc.l, CheckCoverage(tc.l), tc.h)
			if got.VATEstimate < 0 || got.IncomeTaxEstimate < 0 || got.FinalTaxDue < 0 ||
				got.TaxableIncome < 0 || got.TotalDeductions < 0 || got.Credits < 0 {
				t.Fatalf("negative figure in %+v", got)
			}
		})
	}
}
