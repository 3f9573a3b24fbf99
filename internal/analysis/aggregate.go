package analysis

import (
	"sort"

	"bookkeeper/internal/core"
)

// CategorySummary maps a category label to its summed amount.
type CategorySummary map[string]int64

// CategoryTotal is one row of a sorted summary.
type CategoryTotal struct {
	Category string `json:"category"`
	Total    int64  `json:"total"`
}

// Sorted returns the summary rows ordered by category label.
func (s CategorySummary) Sorted() []CategoryTotal {
	out := make([]CategoryTotal, 0, len(s))
	for c, v := range s {
		out = append(out, CategoryTotal{Category: c, Total: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

// Sum returns the total across all categories.
func (s CategorySummary) Sum() int64 {
	var total int64
	for _, v := range s {
		total += v
	}
	return total
}

// Aggregator computes totals with a fixed revenue label.
type Aggregator struct {
	RevenueCategory string
}

// NewAggregator returns an Aggregator, defaulting the revenue label when empty.
func NewAggregator(revenueCategory string) Aggregator {
	if revenueCategory == "" {
		revenueCategory = core.DefaultRevenueCategory
	}
	return Aggregator{RevenueCategory: revenueCategory}
}

// Summarize sums amounts per category, one entry per distinct category.
func (a Aggregator) Summarize(l core.Ledger) CategorySummary {
	s := make(CategorySummary)
	for _, t := range l {
		s[t.Category] += t.Amount
	}
	return s
}

// Expenses is Summarize restricted to non-revenue categories.
func (a Aggregator) Expenses(l core.Ledger) CategorySummary {
	s := a.Summarize(l)
	delete(s, a.RevenueCategory)
	return s
}

// NetIncome sums revenue transactions.
func (a Aggregator) NetIncome(l core.Ledger) int64 {
	var total int64
	for _, t := range l {
		if t.IsRevenue(a.RevenueCategory) {
			total += t.Amount
		}
	}
	return total
}

// NetExpense sums every non-revenue transaction.
func (a Aggregator) NetExpense(l core.Ledger) int64 {
	var total int64
	for _, t := range l {
		if !t.IsRevenue(a.RevenueCategory) {
			total += t.Amount
		}
	}
	return total
}

// MonthlyAverageIncome divides NetIncome by the number of distinct months
// with a valid date, flooring the result. It is 0 when no month is present.
func (a Aggregator) MonthlyAverageIncome(l core.Ledger) int64 {
	months := len(DistinctMonths(l))
	if months == 0 {
		return 0
	}
	return a.NetIncome(l) / int64(months)
}

// Annualize scales income and expense to twelve months using the number of
// distinct months present. It returns (0, 0) when no month is present.
func (a Aggregator) Annualize(l core.Ledger) (income, expense int64) {
	return annualize(a.NetIncome(l), a.NetExpense(l), len(DistinctMonths(l)))
}

func annualize(income, expense int64, months int) (int64, int64) {
	if months <= 0 {
		return 0, 0
	}
	m := int64(months)
	return scaleToYear(income, m), scaleToYear(expense, m)
}

// scaleToYear returns floor(v*12/m) without forming v*12.
func scaleToYear(v, m int64) int64 {
	return v/m*12 + v%m*12/m
}

// DistinctMonths returns the sorted set of year-month buckets present.
// Transactions with the sentinel date are skipped.
func DistinctMonths(l core.Ledger) []core.Period {
	seen := make(map[core.Period]struct{})
	for _, t := range l {
		if p, ok := t.Date.Period(); ok {
			seen[p] = struct{}{}
		}
	}
	out := make([]core.Period, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
