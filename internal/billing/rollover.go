// Package billing implements the monthly bill rollover and the rules that
// keep the cash ledger in step with collected payments.
package billing

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"ispledger/internal/core"
)

// OpeningBalanceDescription is the description of the cash brought forward line.
const OpeningBalanceDescription = "B/F from Previous Month (Cash in Hand)"

// IDFunc generates entity ids. Tests replace it for deterministic output.
type IDFunc func() string

// NewID returns a random UUID string.
func NewID() string {
	return uuid.NewString()
}

// Engine generates the bills of a new month.
type Engine struct {
	newID IDFunc
}

// NewEngine returns an engine that names new records with newID, or with
// random UUIDs when newID is nil.
func NewEngine(newID IDFunc) *Engine {
	if newID == nil {
		newID = NewID
	}
	return &Engine{newID: newID}
}

// GenerateNextMonth is a convenience wrapper around the default engine.
func GenerateNextMonth(state core.GlobalState, monthKey string, now time.Time) (core.GlobalState, error) {
	return NewEngine(nil).GenerateNextMonth(state, monthKey, now)
}

// GenerateNextMonth builds the records of monthKey for every non-archived
// client and returns a new state. The input state is never modified.
//
// Dues carry forward: every earlier record of the client with a positive
// remainder adds that remainder to the new bill and one month to the
// overdue counter. Net cash before the first of the month is restated as an
// "Opening Balance" credit when positive.
func (e *Engine) GenerateNextMonth(state core.GlobalState, monthKey string, now time.Time) (core.GlobalState, error) {
	if _, err := core.ParseMonthKey(monthKey); err != nil {
		return state, err
	}
	if state.HasMonth(monthKey) {
		return state, fmt.Errorf("%w: %s", core.ErrDuplicateMonth, monthKey)
	}

	next := state.Clone()

	if cash := CashInHand(state.Expenses, core.FirstOfMonth(monthKey)); cash.IsPositive() {
		next.Expenses = append(next.Expenses, core.ExpenseTransaction{
			ID:          e.newID(),
			Date:        core.FirstOfMonth(monthKey),
			Amount:      cash,
			Type:        core.Credit,
			Category:    core.CategoryOpeningBalance,
			Description: OpeningBalanceDescription,
		})
	}

	billDate := now.UTC().Format(time.RFC3339)
	for _, client := range state.Clients {
		if client.IsArchived {
			continue
		}
		previousDue, unpaidMonths := CarriedDue(state.Records, client.ID, monthKey)
		next.Records = append(next.Records, e.newRecord(client, monthKey, billDate, previousDue, unpaidMonths))
	}

	next.CurrentViewMonth = monthKey
	return next, nil
}

func (e *Engine) newRecord(client core.Client, monthKey, billDate string, previousDue core.Money, unpaidMonths int) core.MonthlyRecord {
	remarks := ""
	if previousDue.IsPositive() {
		remarks = "Prev Due: " + previousDue.String()
	}
	return core.MonthlyRecord{
		ID:               e.newID(),
		ClientID:         client.ID,
		DisplayClientID:  client.ClientID,
		MonthKey:         monthKey,
		ClientName:       client.Name,
		Username:         client.Username,
		Area:             client.Area,
		ClientType:       orDefault(client.ClientType, core.DefaultClientType),
		LineType:         orDefault(client.LineType, core.DefaultLineType),
		BandwidthPackage: orDefault(client.BandwidthPackage, core.DefaultBandwidthPackage),
		Contact:          client.ContactNumber,
		Address:          client.FullAddress,
		IsActive:         client.IsActive,
		BillDate:         billDate,
		PayableAmount:    client.BaseMonthlyFee.Add(previousDue),
		PaidAmount:       core.Zero,
		Status:           core.StatusUnpaid,
		OverdueMonths:    unpaidMonths + 1,
		Remarks:          remarks,
		CustomFields:     copyFields(client.CustomFields),
	}
}

// CashInHand is total credits minus total debits dated strictly before
// the given YYYY-MM-DD date.
func CashInHand(expenses []core.ExpenseTransaction, before string) core.Money {
	cash := core.Zero
	for _, e := range expenses {
		if e.Date >= before {
			continue
		}
		switch e.Type {
		case core.Credit:
			cash = cash.Add(e.Amount)
		case core.Debit:
			cash = cash.Sub(e.Amount)
		}
	}
	return cash
}

// CarriedDue sums the positive remainders of a client's records before
// monthKey and counts how many records had one.
func CarriedDue(records []core.MonthlyRecord, clientID, monthKey string) (core.Money, int) {
	due := core.Zero
	count := 0
	for _, r := range records {
		if r.ClientID != clientID || r.MonthKey >= monthKey {
			continue
		}
		if d := r.Due(); d.IsPositive() {
			due = due.Add(d)
			count++
		}
	}
	return due, count
}

// NextMonthKey returns the key of the month after monthKey.
func NextMonthKey(monthKey string) (string, error) {
	return core.AddMonths(monthKey, 1)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func copyFields(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
