package report

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"ispledger/internal/billing"
	"ispledger/internal/cache"
	"ispledger/internal/core"
)

func money(v int64) core.Money { return core.NewMoney(v) }

func sampleState() core.GlobalState {
	st := core.InitialState(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	st.Clients = []core.Client{
		{ID: "c1", IsActive: true, JoiningDate: "2025-01-05"},
		{ID: "c2", IsActive: false, JoiningDate: "2025-02-02"},
		{ID: "c3", IsArchived: true, LeftDate: "2025-02-10"},
	}
	st.Records = []core.MonthlyRecord{
		{ID: "r1", ClientID: "c1", MonthKey: "2025-02", Area: "North", PayableAmount: money(1000), PaidAmount: money(400), OverdueMonths: 2, IsActive: true},
		{ID: "r2", ClientID: "c2", MonthKey: "2025-02", Area: "South", PayableAmount: money(500), PaidAmount: money(500)},
		{ID: "r3", ClientID: "c1", MonthKey: "2025-01", Area: "North", PayableAmount: money(500), PaidAmount: money(0), IsActive: true},
	}
	st.Expenses = []core.ExpenseTransaction{
		{ID: "e1", Date: "2025-02-03", Amount: money(900), Type: core.Credit, Description: billing.CollectionDescription("2025-02-03")},
		{ID: "e2", Date: "2025-02-04", Amount: money(200), Type: core.Debit, Category: "Salary", Description: "Tech"},
		{ID: "e3", Date: "2025-02-01", Amount: money(50), Type: core.Debit, Description: "Tea"},
		{ID: "e4", Date: "2025-02-05", Amount: money(100), Type: core.Credit, Category: core.CategoryHardwareSales, Description: "Sold ONU"},
		{ID: "e5", Date: "2025-01-20", Amount: money(300), Type: core.Debit, Category: "Salary", Description: "Jan"},
	}
	st.Inventory = []core.InventoryItem{{ID: "i1", Name: "ONU", BuyPrice: money(1000), StockCount: 2}}
	return st
}

func TestDashboard(t *testing.T) {
	s := Dashboard(sampleState(), "2025-02")

	assert.Equal(t, 2, s.TotalClients)
	assert.Equal(t, 1, s.ActiveClients)
	assert.Equal(t, "1500", s.TotalPayable.String())
	assert.Equal(t, "900", s.TotalPaid.String())
	assert.Equal(t, "600", s.TotalUnpaid.String())
	assert.Equal(t, "250", s.TotalExpense.String())
	assert.Equal(t, "650", s.FinalBalance.String())
	assert.Equal(t, 60, s.CollectionRate)
	assert.Equal(t, 1, s.Defaulters)
	assert.Equal(t, "1100", s.MarketDue.String())
	assert.Equal(t, "2000", s.InventoryValue.String())
}

func TestDashboard_EmptyMonth(t *testing.T) {
	s := Dashboard(sampleState(), "2030-01")
	assert.Equal(t, 0, s.CollectionRate)
	assert.True(t, s.TotalPayable.IsZero())
}

func TestStatement(t *testing.T) {
	f := Statement(sampleState(), "2025-02")
	assert.Equal(t, "1500", f.TotalBillable.String())
	assert.Equal(t, "900", f.Collection.String())
	assert.Equal(t, "100", f.OtherIncome.String())
	assert.Equal(t, "250", f.ExpenseDebit.String())
	assert.Equal(t, "750", f.CashInHand.String())
}

func TestLedgerWithBalance(t *testing.T) {
	lines := LedgerWithBalance(sampleState().Expenses)
	require.Len(t, lines, 5)

	assert.Equal(t, "e5", lines[0].ID)
	assert.Equal(t, "-300", lines[0].Balance.String())
	assert.Equal(t, "e3", lines[1].ID)
	assert.Equal(t, "-350", lines[1].Balance.String())
	assert.Equal(t, "e4", lines[4].ID)
	assert.Equal(t, "450", lines[4].Balance.String())
}

func TestMonthlyLedgerSummary(t *testing.T) {
	o := MonthlyLedgerSummary(sampleState().Expenses, "2025-02")
	assert.Equal(t, "1000", o.TotalCredit.String())
	assert.Equal(t, "250", o.TotalDebit.String())
	assert.Equal(t, "750", o.Net.String())
	require.Len(t, o.DebitByCategory, 2)
	assert.Equal(t, "Salary", o.DebitByCategory[0].Name)
	assert.Equal(t, Uncategorized, o.DebitByCategory[1].Name)
}

func TestAreaSummary(t *testing.T) {
	areas := AreaSummary(sampleState().Records, "2025-02")
	require.Len(t, areas, 2)
	assert.Equal(t, "North", areas[0].Area)
	assert.Equal(t, "600", areas[0].Due.String())
	assert.Equal(t, "South", areas[1].Area)
	assert.True(t, areas[1].Due.IsZero())
}

func TestGrowth(t *testing.T) {
	g := Growth(sampleState(), 2025)
	require.Len(t, g, 12)
	assert.Equal(t, GrowthPoint{MonthKey: "2025-01", Active: 1, New: 1}, g[0])
	assert.Equal(t, GrowthPoint{MonthKey: "2025-02", Active: 1, New: 1, Left: 1}, g[1])
}

func TestWriteBillingSheet(t *testing.T) {
	var buf bytes.Buffer
	recs := []core.MonthlyRecord{
		{DisplayClientID: "1001", ClientName: "Rahim", Username: "rahim", Area: "North", ClientType: "Home User", Contact: "017", PayableAmount: money(500), PaidAmount: money(200), Status: core.StatusPartial},
	}
	require.NoError(t, WriteBillingSheet(&buf, recs))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(BillingSheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, billingColumns, rows[0])
	assert.Equal(t, []string{"1001", "Rahim", "rahim", "North", "Home User", "017", "500", "200", "Partial"}, rows[1])
}

func TestParseClientSheet(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"Client Name", "User ID", "Monthly Fee", "Phone", "Zone", "Package"},
		{"Rahim", "rahim", "৳500", "017", "North", "20 Mbps"},
		{nil, nil, nil, nil, nil, nil},
		{"Karim", "karim", "n/a", "", "", ""},
	}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, f.SetSheetRow(sheet, cell, &r))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	got, err := ParseClientSheet(&buf)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Rahim", got[0].Name)
	assert.Equal(t, "rahim", got[0].Username)
	assert.Equal(t, "500", got[0].BaseMonthlyFee.String())
	assert.Equal(t, "017", got[0].ContactNumber)
	assert.Equal(t, "North", got[0].Area)
	assert.Equal(t, "20 Mbps", got[0].BandwidthPackage)
	assert.True(t, got[1].BaseMonthlyFee.IsZero())
}

func TestParseClientSheet_Garbage(t *testing.T) {
	_, err := ParseClientSheet(bytes.NewReader([]byte("not a workbook")))
	assert.Error(t, err)
}

func TestServiceCachesUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	svc := NewService(cache.NewLRUCache[DashboardStats](8, time.Minute), nil)
	var hits, misses int
	svc.OnLookup = func(hit bool) {
		if hit {
			hits++
		} else {
			misses++
		}
	}

	st := sampleState()
	first := svc.Dashboard(ctx, st, "2025-02")
	st.Clients = nil
	cached := svc.Dashboard(ctx, st, "2025-02")
	assert.Equal(t, first.TotalClients, cached.TotalClients)

	svc.Invalidate(ctx, "update", st)
	fresh := svc.Dashboard(ctx, st, "2025-02")
	assert.Equal(t, 0, fresh.TotalClients)
	assert.Equal(t, 1, hits)
	assert.Equal(t, 2, misses)
}
