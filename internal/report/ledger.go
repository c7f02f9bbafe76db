package report

import (
	"cmp"
	"slices"
	"time"

	"ispledger/internal/core"
)

// LedgerLine is a ledger entry with the running balance after it.
type LedgerLine struct {
	core.ExpenseTransaction
	Balance core.Money `json:"balance"`
}

// LedgerWithBalance orders entries by date, keeping insertion order for
// the same day, and computes the running balance. Credits add, debits
// subtract.
func LedgerWithBalance(expenses []core.ExpenseTransaction) []LedgerLine {
	sorted := slices.Clone(expenses)
	slices.SortStableFunc(sorted, func(a, b core.ExpenseTransaction) int {
		return cmp.Compare(a.Date, b.Date)
	})
	balance := core.Zero
	out := make([]LedgerLine, len(sorted))
	for i, e := range sorted {
		if e.Type == core.Credit {
			balance = balance.Add(e.Amount)
		} else {
			balance = balance.Sub(e.Amount)
		}
		out[i] = LedgerLine{ExpenseTransaction: e, Balance: balance}
	}
	return out
}

// MonthlyLedgerSummary totals credits and debits for monthKey and breaks
// the debits down by category, largest first.
func MonthlyLedgerSummary(expenses []core.ExpenseTransaction, monthKey string) core.MonthOverview {
	o := core.MonthOverview{
		MonthKey:    monthKey,
		TotalCredit: core.Zero,
		TotalDebit:  core.Zero,
	}
	byCat := make(map[string]core.Money)
	for _, e := range expenses {
		if core.MonthOf(e.Date) != monthKey {
			continue
		}
		if e.Type == core.Credit {
			o.TotalCredit = o.TotalCredit.Add(e.Amount)
			continue
		}
		o.TotalDebit = o.TotalDebit.Add(e.Amount)
		cat := e.Category
		if cat == "" {
			cat = Uncategorized
		}
		byCat[cat] = byCat[cat].Add(e.Amount)
	}
	o.Net = o.TotalCredit.Sub(o.TotalDebit)
	o.DebitByCategory = make([]core.CategoryAmount, 0, len(byCat))
	for name, amt := range byCat {
		o.DebitByCategory = append(o.DebitByCategory, core.CategoryAmount{Name: name, Amount: amt})
	}
	slices.SortFunc(o.DebitByCategory, func(a, b core.CategoryAmount) int {
		if c := b.Amount.Cmp(a.Amount); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return o
}

func timeOf(year, month int) time.Time {
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
}
