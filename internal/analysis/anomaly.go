package analysis

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"bookkeeper/internal/core"
)

// ThresholdKind selects how a Threshold is evaluated.
type ThresholdKind string

const (
	// KindBand warns below Min and above Max.
	KindBand ThresholdKind = "band"
	// KindCeiling warns above Max.
	KindCeiling ThresholdKind = "ceiling"
	// KindCap warns when the category total exceeds Cap, regardless of revenue.
	KindCap ThresholdKind = "cap"
)

// Threshold is the rule for one expense category. Min and Max are ratios of
// total revenue; Cap is an absolute amount.
type Threshold struct {
	Category string
	Kind     ThresholdKind
	Min      decimal.Decimal
	Max      decimal.Decimal
	Cap      int64
}

// ThresholdTable is evaluated in order; warnings follow the same order.
type ThresholdTable []Threshold

func BandRule(category string, lo, hi float64) Threshold {
	return Threshold{Category: category, Kind: KindBand, Min: decimal.NewFromFloat(lo), Max: decimal.NewFromFloat(hi)}
}

func CeilingRule(category string, hi float64) Threshold {
	return Threshold{Category: category, Kind: KindCeiling, Max: decimal.NewFromFloat(hi)}
}

func CapRule(category string, limit int64) Threshold {
	return Threshold{Category: category, Kind: KindCap, Cap: limit}
}

// InferThreshold builds a Threshold from loosely specified bounds, as found in
// rule files and model output. An empty kind is inferred: a cap makes a cap
// rule, a min makes a band, anything else is a ceiling.
func InferThreshold(category string, kind ThresholdKind, lo, hi *float64, limit *int64) (Threshold, error) {
	if category == "" {
		return Threshold{}, fmt.Errorf("category is required")
	}
	if kind == "" {
		switch {
		case limit != nil:
			kind = KindCap
		case lo != nil:
			kind = KindBand
		default:
			kind = KindCeiling
		}
	}
	switch kind {
	case KindCap:
		if limit == nil || *limit < 0 {
			return Threshold{}, fmt.Errorf("%s: cap rule needs a non-negative cap", category)
		}
		return CapRule(category, *limit), nil
	case KindBand:
		if lo == nil || hi == nil || *lo < 0 || *lo > *hi {
			return Threshold{}, fmt.Errorf("%s: band rule needs min <= max", category)
		}
		return BandRule(category, *lo, *hi), nil
	case KindCeiling:
		if hi == nil || *hi < 0 {
			return Threshold{}, fmt.Errorf("%s: ceiling rule needs max", category)
		}
		return CeilingRule(category, *hi), nil
	default:
		return Threshold{}, fmt.Errorf("%s: unknown kind %q", category, kind)
	}
}

// ThresholdSource supplies the table used by the detector. The static table
// is the deterministic default; other sources may derive a table from the
// ledger summary.
type ThresholdSource interface {
	Thresholds(ctx context.Context, expenses CategorySummary) (ThresholdTable, error)
}

// StaticThresholds is a fixed ThresholdSource.
type StaticThresholds ThresholdTable

func (s StaticThresholds) Thresholds(context.Context, CategorySummary) (ThresholdTable, error) {
	return ThresholdTable(s), nil
}

// NoRevenueWarning is the only warning emitted for a ledger without revenue.
const NoRevenueWarning = "⚠ 매출 정보가 없습니다. 매출 데이터를 반드시 입력해주세요."

// Detector evaluates expense ratios against a ThresholdTable.
type Detector struct {
	Aggregator Aggregator
}

func NewDetector(revenueCategory string) Detector {
	return Detector{Aggregator: NewAggregator(revenueCategory)}
}

// Detect returns the warnings for l. A ledger with zero revenue yields only
// NoRevenueWarning. Categories missing from either the ledger or the table
// are not evaluated.
func (d Detector) Detect(l core.Ledger, table ThresholdTable) []string {
	revenue := d.Aggregator.NetIncome(l)
	if revenue == 0 {
		return []string{NoRevenueWarning}
	}
	return d.evaluate(revenue, d.Aggregator.Expenses(l), table)
}

func (d Detector) evaluate(revenue int64, expenses CategorySummary, table ThresholdTable) []string {
	warnings := []string{}
	rev := decimal.NewFromInt(revenue)
	for _, th := range table {
		amount, ok := expenses[th.Category]
		if !ok {
			continue
		}
		ratio := decimal.NewFromInt(amount).Div(rev)
		switch th.Kind {
		case KindBand:
			if ratio.LessThan(th.Min) {
				warnings = append(warnings, fmt.Sprintf("⚠ %s 비중이 %s로 너무 낮습니다. 매출 대비 비용 누락 가능성을 확인하세요.", th.Category, percent(ratio)))
			} else if ratio.GreaterThan(th.Max) {
				warnings = append(warnings, fmt.Sprintf("⚠ %s 비중이 %s로 높습니다. 원가 관리가 필요합니다.", th.Category, percent(ratio)))
			}
		case KindCeiling:
			if ratio.GreaterThan(th.Max) {
				warnings = append(warnings, fmt.Sprintf("⚠ %s 비중이 %s로 과다합니다. 기준은 %s 이하입니다.", th.Category, percent(ratio), percent(th.Max)))
			}
		case KindCap:
			if amount > th.Cap {
				warnings = append(warnings, fmt.Sprintf("⚠ %s가 %s원으로 한도 %s원을 초과했습니다.", th.Category, humanize.Comma(amount), humanize.Comma(th.Cap)))
			}
		}
	}
	return warnings
}

// percent renders a ratio as a percentage with one decimal place.
func percent(ratio decimal.Decimal) string {
	return ratio.Mul(decimal.NewFromInt(100)).StringFixed(1) + "%"
}
