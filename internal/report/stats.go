// Package report derives dashboard figures, ledger views and spreadsheets
// from a state snapshot. Nothing here mutates state.
package report

import (
	"cmp"
	"math"
	"slices"
	"strings"

	"ispledger/internal/billing"
	"ispledger/internal/core"
)

// Uncategorized labels debits recorded without a category.
const Uncategorized = "Uncategorized"

type DashboardStats struct {
	MonthKey       string     `json:"monthKey"`
	TotalClients   int        `json:"totalClients"`
	ActiveClients  int        `json:"activeClients"`
	TotalPayable   core.Money `json:"totalPayable"`
	TotalPaid      core.Money `json:"totalPaid"`
	TotalUnpaid    core.Money `json:"totalUnpaid"`
	TotalExpense   core.Money `json:"totalExpense"`
	FinalBalance   core.Money `json:"finalBalance"`
	CollectionRate int        `json:"collectionRate"` // percent, rounded
	Defaulters     int        `json:"defaulters"`
	MarketDue      core.Money `json:"marketDue"`
	InventoryValue core.Money `json:"inventoryValue"`
}

// Dashboard computes the headline figures for monthKey. Archived clients
// are excluded from the client counts.
func Dashboard(st core.GlobalState, monthKey string) DashboardStats {
	s := DashboardStats{
		MonthKey:       monthKey,
		TotalPayable:   core.Zero,
		TotalPaid:      core.Zero,
		TotalExpense:   core.Zero,
		MarketDue:      core.Zero,
		InventoryValue: core.Zero,
	}
	for _, c := range st.Clients {
		if c.IsArchived {
			continue
		}
		s.TotalClients++
		if c.IsActive {
			s.ActiveClients++
		}
	}
	for _, r := range st.Records {
		s.MarketDue = s.MarketDue.Add(r.Due())
		if r.MonthKey != monthKey {
			continue
		}
		s.TotalPayable = s.TotalPayable.Add(r.PayableAmount)
		s.TotalPaid = s.TotalPaid.Add(r.PaidAmount)
		if r.OverdueMonths >= 1 && r.Due().IsPositive() {
			s.Defaulters++
		}
	}
	for _, e := range st.Expenses {
		if e.Type == core.Debit && core.MonthOf(e.Date) == monthKey {
			s.TotalExpense = s.TotalExpense.Add(e.Amount)
		}
	}
	for _, it := range st.Inventory {
		s.InventoryValue = s.InventoryValue.Add(it.BuyPrice.Mul(it.StockCount))
	}
	s.TotalUnpaid = s.TotalPayable.Sub(s.TotalPaid)
	s.FinalBalance = s.TotalPaid.Sub(s.TotalExpense)
	s.CollectionRate = int(math.Round(s.TotalPaid.Ratio(s.TotalPayable) * 100))
	return s
}

// FinancialStatement is the monthly cash flow view.
type FinancialStatement struct {
	MonthKey      string     `json:"monthKey"`
	TotalBillable core.Money `json:"totalBillable"`
	Collection    core.Money `json:"collection"`
	OtherIncome   core.Money `json:"otherIncome"`
	ExpenseDebit  core.Money `json:"expenseDebit"`
	CashInHand    core.Money `json:"cashInHand"`
}

// Statement computes billed, collected and spent amounts for monthKey.
// Other income is every credit that is not a daily collection entry.
func Statement(st core.GlobalState, monthKey string) FinancialStatement {
	f := FinancialStatement{
		MonthKey:      monthKey,
		TotalBillable: core.Zero,
		Collection:    core.Zero,
		OtherIncome:   core.Zero,
		ExpenseDebit:  core.Zero,
	}
	for _, r := range st.Records {
		if r.MonthKey == monthKey {
			f.TotalBillable = f.TotalBillable.Add(r.PayableAmount)
			f.Collection = f.Collection.Add(r.PaidAmount)
		}
	}
	for _, e := range st.Expenses {
		if core.MonthOf(e.Date) != monthKey {
			continue
		}
		switch {
		case e.Type == core.Debit:
			f.ExpenseDebit = f.ExpenseDebit.Add(e.Amount)
		case !isCollection(e):
			f.OtherIncome = f.OtherIncome.Add(e.Amount)
		}
	}
	f.CashInHand = f.Collection.Add(f.OtherIncome).Sub(f.ExpenseDebit)
	return f
}

func isCollection(e core.ExpenseTransaction) bool {
	return e.Type == core.Credit && e.Description == billing.CollectionDescription(e.Date)
}

// AreaTotals aggregates one month's bills by area.
type AreaTotals struct {
	Area    string     `json:"area"`
	Clients int        `json:"clients"`
	Payable core.Money `json:"payable"`
	Paid    core.Money `json:"paid"`
	Due     core.Money `json:"due"`
}

// AreaSummary groups the bills of monthKey by area, largest due first.
func AreaSummary(records []core.MonthlyRecord, monthKey string) []AreaTotals {
	byArea := make(map[string]*AreaTotals)
	for _, r := range records {
		if r.MonthKey != monthKey {
			continue
		}
		area := strings.TrimSpace(r.Area)
		if area == "" {
			area = core.DefaultArea
		}
		a, ok := byArea[area]
		if !ok {
			a = &AreaTotals{Area: area, Payable: core.Zero, Paid: core.Zero, Due: core.Zero}
			byArea[area] = a
		}
		a.Clients++
		a.Payable = a.Payable.Add(r.PayableAmount)
		a.Paid = a.Paid.Add(r.PaidAmount)
		a.Due = a.Due.Add(r.Due())
	}
	out := make([]AreaTotals, 0, len(byArea))
	for _, a := range byArea {
		out = append(out, *a)
	}
	slices.SortFunc(out, func(a, b AreaTotals) int {
		if c := b.Due.Cmp(a.Due); c != 0 {
			return c
		}
		return cmp.Compare(a.Area, b.Area)
	})
	return out
}

// GrowthPoint counts client movement in one month.
type GrowthPoint struct {
	MonthKey string `json:"monthKey"`
	Active   int    `json:"active"`
	New      int    `json:"new"`
	Left     int    `json:"left"`
}

// Growth returns the twelve months of year: active bills, joins and
// departures.
func Growth(st core.GlobalState, year int) []GrowthPoint {
	out := make([]GrowthPoint, 12)
	for m := range 12 {
		key := monthKey(year, m+1)
		p := GrowthPoint{MonthKey: key}
		for _, r := range st.Records {
			if r.MonthKey == key && r.IsActive {
				p.Active++
			}
		}
		for _, c := range st.Clients {
			if core.MonthOf(c.JoiningDate) == key {
				p.New++
			}
			if c.IsArchived && core.MonthOf(c.LeftDate) == key {
				p.Left++
			}
		}
		out[m] = p
	}
	return out
}

func monthKey(year, month int) string {
	return core.MonthKeyOf(timeOf(year, month))
}
