package analysis

import (
	"context"

	"bookkeeper/internal/core"
)

// Report is everything the engine derives from one ledger.
type Report struct {
	Categories           []CategoryTotal `json:"categories"`
	Income               int64           `json:"income"`
	Expense              int64           `json:"expense"`
	NetProfit            int64           `json:"net_profit"`
	MonthlyAverageIncome int64           `json:"monthly_average_income"`
	Months               []string        `json:"months"`
	Coverage             Coverage        `json:"coverage"`
	Tax                  TaxEstimate     `json:"tax"`
	Warnings             []string        `json:"warnings"`
	// ThresholdsFallback is set when the configured ThresholdSource failed
	// and the static table from Rules was used instead.
	ThresholdsFallback bool `json:"thresholds_fallback,omitempty"`
}

// Analyzer runs Aggregator, Coverage Checker, Tax Estimator and Anomaly
// Detector over a ledger.
type Analyzer struct {
	rules      Rules
	thresholds ThresholdSource
	aggregator Aggregator
	estimator  Estimator
	detector   Detector
}

// Option customizes an Analyzer.
type Option func(*Analyzer)

// WithThresholdSource replaces the static threshold table.
func WithThresholdSource(src ThresholdSource) Option {
	return func(a *Analyzer) {
		if src != nil {
			a.thresholds = src
		}
	}
}

// NewAnalyzer creates an Analyzer for rules.
func NewAnalyzer(rules Rules, opts ...Option) *Analyzer {
	if rules.RevenueCategory == "" {
		rules.RevenueCategory = core.DefaultRevenueCategory
	}
	a := &Analyzer{
		rules:      rules,
		thresholds: StaticThresholds(rules.Thresholds),
		aggregator: NewAggregator(rules.RevenueCategory),
		estimator:  NewEstimator(rules),
		detector:   NewDetector(rules.RevenueCategory),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Rules returns the rules the analyzer was built with.
func (a *Analyzer) Rules() Rules {
	return a.rules
}

// Analyze computes the full report. The context is only consulted by the
// threshold source; with the default static table Analyze never blocks.
func (a *Analyzer) Analyze(ctx context.Context, l core.Ledger, h Household) Report {
	summary := a.aggregator.Summarize(l)
	cov := CheckCoverage(l)

	r := Report{
		Categories:           summary.Sorted(),
		Income:               a.aggregator.NetIncome(l),
		Expense:              a.aggregator.NetExpense(l),
		MonthlyAverageIncome: a.aggregator.MonthlyAverageIncome(l),
		Coverage:             cov,
		Tax:                  a.estimator.Estimate(l, cov, h),
	}
	r.NetProfit = r.Income - r.Expense
	r.Months = []string{}
	for _, p := range DistinctMonths(l) {
		r.Months = append(r.Months, p.String())
	}

	table, err := a.thresholds.Thresholds(ctx, a.aggregator.Expenses(l))
	if err != nil || (len(table) == 0 && len(a.rules.Thresholds) > 0) {
		table = a.rules.Thresholds
		r.ThresholdsFallback = true
	}
	r.Warnings = a.detector.Detect(l, table)
	return r
}
