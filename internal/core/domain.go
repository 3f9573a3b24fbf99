package core

import (
	"fmt"
	"strings"
	"time"
)

// DefaultRevenueCategory is the category label treated as income.
const DefaultRevenueCategory = "매출"

type (
	// Date wraps a calendar date. The zero value marks a date that could
	// not be parsed; such entries still count toward totals.
	Date struct {
		time.Time
	}

	// Transaction is a single ledger entry. Amounts are whole currency units.
	Transaction struct {
		Date        Date
		Description string
		Amount      int64
		Category    string
	}

	// Ledger is the set of transactions owned by one analysis run.
	Ledger []Transaction

	// Period is a calendar year-month bucket.
	Period struct {
		Year  int
		Month time.Month
	}
)

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"20060102",
	"2006-1-2",
	"2006/1/2",
	"2006.1.2",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// ParseDate tries the supported layouts and returns the zero Date when none match.
func ParseDate(s string) Date {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Date{Time: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
		}
	}
	return Date{}
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// Valid reports whether the date was parsed successfully.
func (d Date) Valid() bool {
	return !d.IsZero()
}

// Period returns the year-month bucket of the date.
func (d Date) Period() (Period, bool) {
	if !d.Valid() {
		return Period{}, false
	}
	return Period{Year: d.Year(), Month: d.Month()}, true
}

// String renders the date as YYYY-MM-DD, or an empty string for the sentinel.
func (d Date) String() string {
	if !d.Valid() {
		return ""
	}
	return d.Format("2006-01-02")
}

// IsRevenue reports whether the transaction is income under the given label.
func (t Transaction) IsRevenue(revenueCategory string) bool {
	return t.Category == revenueCategory
}

// Filter returns a new ledger with the transactions for which keep returns true.
// The receiver is never modified.
func (l Ledger) Filter(keep func(Transaction) bool) Ledger {
	out := make(Ledger, 0, len(l))
	for _, t := range l {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

// Without returns a derived ledger that excludes the named categories.
func (l Ledger) Without(categories ...string) Ledger {
	drop := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		drop[c] = struct{}{}
	}
	return l.Filter(func(t Transaction) bool {
		_, ok := drop[t.Category]
		return !ok
	})
}

// Clone returns an independent copy of the ledger.
func (l Ledger) Clone() Ledger {
	return append(Ledger(nil), l...)
}

// PeriodOf returns the bucket containing t.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// ParsePeriod parses a YYYY-MM string. An empty string yields the zero Period.
func ParsePeriod(s string) (Period, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Period{}, nil
	}
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, fmt.Errorf("parse period %q: %w", s, err)
	}
	return PeriodOf(t), nil
}

func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

// Index returns a monotonically increasing month number, handy for gap checks.
func (p Period) Index() int {
	return p.Year*12 + int(p.Month) - 1
}

// Next returns the following month.
func (p Period) Next() Period {
	if p.Month == time.December {
		return Period{Year: p.Year + 1, Month: time.January}
	}
	return Period{Year: p.Year, Month: p.Month + 1}
}

func (p Period) Before(o Period) bool {
	return p.Index() < o.Index()
}

func (p Period) String() string {
	if p.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}
