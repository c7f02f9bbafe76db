package billing

import (
	"ispledger/internal/core"
)

// CollectionDescription is the ledger description that aggregates all
// payments collected on one day.
func CollectionDescription(date string) string {
	return "Daily Collection - " + date
}

// StatusFor derives a bill's payment status from its amounts.
func StatusFor(payable, paid core.Money) core.PaymentStatus {
	switch {
	case paid.Cmp(payable) >= 0:
		return core.StatusPaid
	case paid.IsPositive():
		return core.StatusPartial
	default:
		return core.StatusUnpaid
	}
}

// PostCollection adds diff to the day's collection credit, creating the
// entry when the day has none yet. A zero diff leaves the ledger untouched.
// The returned slice is a copy.
func PostCollection(expenses []core.ExpenseTransaction, date string, diff core.Money, newID IDFunc) []core.ExpenseTransaction {
	out := append([]core.ExpenseTransaction{}, expenses...)
	if diff.IsZero() {
		return out
	}
	if newID == nil {
		newID = NewID
	}
	desc := CollectionDescription(date)
	for i := range out {
		if out[i].Type == core.Credit && out[i].Description == desc {
			out[i].Amount = out[i].Amount.Add(diff)
			return out
		}
	}
	return append(out, core.ExpenseTransaction{
		ID:          newID(),
		Date:        date,
		Amount:      diff,
		Type:        core.Credit,
		Description: desc,
	})
}

// ReverseCollection removes a deleted bill's payment from the collection
// entry of its payment date. Missing entries are ignored.
func ReverseCollection(expenses []core.ExpenseTransaction, r core.MonthlyRecord, today string) []core.ExpenseTransaction {
	out := append([]core.ExpenseTransaction{}, expenses...)
	if !r.PaidAmount.IsPositive() {
		return out
	}
	desc := CollectionDescription(paymentDay(r.PaymentDate, today))
	for i := range out {
		if out[i].Type == core.Credit && out[i].Description == desc {
			out[i].Amount = out[i].Amount.Sub(r.PaidAmount)
			break
		}
	}
	return out
}

// PaymentUpdate is an edit of a bill's payment fields.
type PaymentUpdate struct {
	PaidAmount  core.Money
	PaymentDate string
	ReceiptNo   string
	Remarks     *string
	IsActive    *bool
}

// ApplyPayment returns the updated record and ledger. The change in paid
// amount, positive or negative, is posted to the collection entry of the
// payment date (today when none is given).
func ApplyPayment(r core.MonthlyRecord, expenses []core.ExpenseTransaction, u PaymentUpdate, today string, newID IDFunc) (core.MonthlyRecord, []core.ExpenseTransaction, error) {
	if u.PaidAmount.IsNegative() {
		return r, expenses, core.ErrInvalidAmount
	}
	if u.PaymentDate != "" {
		if _, err := core.ParseDate(u.PaymentDate); err != nil {
			return r, expenses, err
		}
	}

	diff := u.PaidAmount.Sub(r.PaidAmount)
	day := paymentDay(u.PaymentDate, today)

	updated := r
	updated.PaidAmount = u.PaidAmount
	updated.PaymentDate = u.PaymentDate
	if updated.PaymentDate == "" && u.PaidAmount.IsPositive() {
		updated.PaymentDate = day
	}
	updated.ReceiptNo = u.ReceiptNo
	if u.Remarks != nil {
		updated.Remarks = *u.Remarks
	}
	if u.IsActive != nil {
		updated.IsActive = *u.IsActive
	}
	updated.Status = StatusFor(updated.PayableAmount, updated.PaidAmount)

	return updated, PostCollection(expenses, day, diff, newID), nil
}

// MarkPaid settles a bill in full on the given day.
func MarkPaid(r core.MonthlyRecord, expenses []core.ExpenseTransaction, day string, newID IDFunc) (core.MonthlyRecord, []core.ExpenseTransaction) {
	diff := r.Due()
	updated := r
	updated.PaidAmount = r.PayableAmount
	updated.Status = core.StatusPaid
	updated.PaymentDate = day
	if !diff.IsPositive() {
		return updated, expenses
	}
	return updated, PostCollection(expenses, day, diff, newID)
}

func paymentDay(date, today string) string {
	if date != "" {
		return date
	}
	return today
}
