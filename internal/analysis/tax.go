package analysis

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"bookkeeper/internal/core"
)

// TaxBasis is the income/expense pair fed to the estimator, tagged with how
// it was obtained. It is either FullYearBasis or PartialBasis.
type TaxBasis interface {
	Figures() (income, expense int64)
	Coverage() Coverage
	isTaxBasis()
}

// FullYearBasis carries raw ledger totals for a ledger covering a full year.
type FullYearBasis struct {
	Income  int64
	Expense int64
}

// PartialBasis carries figures annualized from Months months of data.
type PartialBasis struct {
	Income  int64
	Expense int64
	Months  int
}

func (b FullYearBasis) Figures() (int64, int64) { return b.Income, b.Expense }
func (b FullYearBasis) Coverage() Coverage      { return FullYear }
func (FullYearBasis) isTaxBasis() {}

func (b PartialBasis) Figures() (int64, int64) { return b.Income, b.Expense }
func (b PartialBasis) Coverage() Coverage      { return Partial }
func (PartialBasis) isTaxBasis() {}

// TaxEstimate is the output of the estimator. All amounts are non-negative
// except AdjustedProfit, which reports the signed profit after adjustments.
type TaxEstimate struct {
	VATEstimate       int64    `json:"vat_estimate"`
	IncomeTaxEstimate int64    `json:"income_tax_estimate"`
	FinalTaxDue       int64    `json:"final_tax_due"`
	TotalDeductions   int64    `json:"total_deductions"`
	TaxableIncome     int64    `json:"taxable_income"`
	AdjustedProfit    int64    `json:"adjusted_profit"`
	Credits           int64    `json:"credits"`
	Coverage          Coverage `json:"coverage"`
	Extrapolated      bool     `json:"extrapolated"`
	Adjustments       []string `json:"adjustments"`
}

// Estimator applies TaxRules to ledgers.
type Estimator struct {
	Rules      TaxRules
	Aggregator Aggregator
}

// NewEstimator builds an Estimator from the engine rules.
func NewEstimator(rules Rules) Estimator {
	return Estimator{Rules: rules.Tax, Aggregator: NewAggregator(rules.RevenueCategory)}
}

// Basis picks raw totals when cov is FullYear and annualized totals otherwise.
func (e Estimator) Basis(l core.Ledger, cov Coverage) TaxBasis {
	return e.basisFor(l, cov, len(DistinctMonths(l)))
}

func (e Estimator) basisFor(l core.Ledger, cov Coverage, months int) TaxBasis {
	income, expense := e.Aggregator.NetIncome(l), e.Aggregator.NetExpense(l)
	if cov == FullYear {
		return FullYearBasis{Income: income, Expense: expense}
	}
	income, expense = annualize(income, expense, months)
	return PartialBasis{Income: income, Expense: expense, Months: months}
}

// BaseEstimate computes the simple VAT and income-tax figures:
//
//	vat        = max(income - expense, 0) * VATRate
//	income tax = max(income - expense - BasicDeduction, 0) * SimpleIncomeRate
//
// Both results are floored to whole units.
func (e Estimator) BaseEstimate(b TaxBasis) (vat, incomeTax int64) {
	income, expense := b.Figures()
	profit := income - expense
	vat = applyRate(profit, e.Rules.VATRate)
	incomeTax = applyRate(profit-e.Rules.BasicDeduction, e.Rules.SimpleIncomeRate)
	return vat, incomeTax
}

// Deductions returns the total deduction stack for a household.
func (e Estimator) Deductions(h Household) int64 {
	total := e.Rules.BasicDeduction + e.Rules.MedicalDeduction + e.Rules.PensionDeduction +
		e.Rules.DependentDeduction*int64(nonNegative(h.Dependents))
	return max(total, 0)
}

// Credits returns the personal tax credits for a household.
func (e Estimator) Credits(h Household) int64 {
	total := e.Rules.ChildCredit*int64(nonNegative(h.Children)) +
		e.Rules.ElderlyCredit*int64(nonNegative(h.Elderly))
	return max(total, 0)
}

// ProgressiveTax applies the bracket schedule to taxableIncome.
func (e Estimator) ProgressiveTax(taxableIncome int64) int64 {
	if taxableIncome <= 0 || len(e.Rules.Brackets) == 0 {
		return 0
	}
	b := e.Rules.Brackets[len(e.Rules.Brackets)-1]
	for _, candidate := range e.Rules.Brackets {
		if candidate.UpTo == 0 || taxableIncome <= candidate.UpTo {
			b = candidate
			break
		}
	}
	return max(applyRate(taxableIncome, b.Rate)-b.Offset, 0)
}

// Estimate runs both stages. The base stage uses the ledger as-is; the
// adjusted stage works on a derived ledger without non-deductible
// categories, subtracts the deduction stack, applies the progressive
// schedule and finally the personal credits. The input ledger is not modified.
func (e Estimator) Estimate(l core.Ledger, cov Coverage, h Household) TaxEstimate {
	months := len(DistinctMonths(l))
	basis := e.basisFor(l, cov, months)
	vat, incomeTax := e.BaseEstimate(basis)

	est := TaxEstimate{
		VATEstimate:       vat,
		IncomeTaxEstimate: incomeTax,
		Coverage:          basis.Coverage(),
		Extrapolated:      basis.Coverage() == Partial,
		Adjustments:       []string{},
	}
	if est.Extrapolated {
		est.Adjustments = append(est.Adjustments,
			fmt.Sprintf("연환산 적용: %d개월 자료를 12개월 기준으로 환산", months))
	}

	totals := e.Aggregator.Summarize(l)
	for _, c := range e.Rules.NonDeductible {
		if amount := totals[c]; amount > 0 && c != e.Aggregator.RevenueCategory {
			est.Adjustments = append(est.Adjustments,
				fmt.Sprintf("비용 불인정 항목 제외: %s %s원", c, humanize.Comma(amount)))
		}
	}
	adjusted := l.Without(e.nonDeductibleExpenses()...)
	income, expense := e.basisFor(adjusted, cov, months).Figures()
	est.AdjustedProfit = income - expense

	est.TotalDeductions = e.Deductions(h)
	est.Adjustments = append(est.Adjustments, e.deductionNotes(h)...)
	est.TaxableIncome = max(est.AdjustedProfit-est.TotalDeductions, 0)

	tax := e.ProgressiveTax(est.TaxableIncome)
	est.Credits = e.Credits(h)
	if h.Children > 0 && e.Rules.ChildCredit > 0 {
		est.Adjustments = append(est.Adjustments,
			fmt.Sprintf("자녀 세액공제: %d명 × %s원", h.Children, humanize.Comma(e.Rules.ChildCredit)))
	}
	if h.Elderly > 0 && e.Rules.ElderlyCredit > 0 {
		est.Adjustments = append(est.Adjustments,
			fmt.Sprintf("경로우대 세액공제: %d명 × %s원", h.Elderly, humanize.Comma(e.Rules.ElderlyCredit)))
	}
	est.FinalTaxDue = max(tax-est.Credits, 0)
	return est
}

// nonDeductibleExpenses never lists the revenue label, so income is kept.
func (e Estimator) nonDeductibleExpenses() []string {
	out := make([]string, 0, len(e.Rules.NonDeductible))
	for _, c := range e.Rules.NonDeductible {
		if c != e.Aggregator.RevenueCategory {
			out = append(out, c)
		}
	}
	return out
}

func (e Estimator) deductionNotes(h Household) []string {
	var notes []string
	add := func(label string, amount int64) {
		if amount > 0 {
			notes = append(notes, fmt.Sprintf("%s: %s원", label, humanize.Comma(amount)))
		}
	}
	add("기본공제", e.Rules.BasicDeduction)
	add("의료비공제", e.Rules.MedicalDeduction)
	add("연금보험료공제", e.Rules.PensionDeduction)
	if h.Dependents > 0 && e.Rules.DependentDeduction > 0 {
		notes = append(notes, fmt.Sprintf("부양가족공제: %d명 × %s원", h.Dependents, humanize.Comma(e.Rules.DependentDeduction)))
	}
	return notes
}

// applyRate floors max(amount, 0) * rate to whole units.
func applyRate(amount int64, rate decimal.Decimal) int64 {
	if amount <= 0 || rate.Sign() <= 0 {
		return 0
	}
	return decimal.NewFromInt(amount).Mul(rate).Floor().IntPart()
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
