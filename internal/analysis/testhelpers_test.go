package analysis

import (
	"time"

	"bookkeeper/internal/core"
)

func tx(date string, amount int64, category string) core.Transaction {
	return core.Transaction{Date: core.ParseDate(date), Description: category, Amount: amount, Category: category}
}

// monthlyLedger emits one revenue and one expense row per month starting at start.
func monthlyLedger(start core.Period, months int, revenue, expense int64, expenseCategory string) core.Ledger {
	var l core.Ledger
	p := start
	for i := 0; i < months; i++ {
		d := core.Date{Time: time.Date(p.Year, p.Month, 10, 0, 0, 0, 0, time.UTC)}
		l = append(l,
			core.Transaction{Date: d, Description: "sales", Amount: revenue, Category: core.DefaultRevenueCategory},
			core.Transaction{Date: d, Description: "cost", Amount: expense, Category: expenseCategory},
		)
		p = p.Next()
	}
	return l
}
