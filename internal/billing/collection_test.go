package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ispledger/internal/core"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		payable, paid int64
		want          core.PaymentStatus
	}{
		{500, 0, core.StatusUnpaid},
		{500, 200, core.StatusPartial},
		{500, 500, core.StatusPaid},
		{500, 700, core.StatusPaid},
		{0, 0, core.StatusPaid},
	}
	for _, tc := range cases {
		got := StatusFor(core.NewMoney(tc.payable), core.NewMoney(tc.paid))
		assert.Equal(t, tc.want, got, "payable=%d paid=%d", tc.payable, tc.paid)
	}
}

func TestPostCollection_AggregatesByDay(t *testing.T) {
	ids := seqIDs()
	ledger := PostCollection(nil, "2025-02-03", core.NewMoney(500), ids)
	ledger = PostCollection(ledger, "2025-02-03", core.NewMoney(300), ids)
	ledger = PostCollection(ledger, "2025-02-04", core.NewMoney(100), ids)
	ledger = PostCollection(ledger, "2025-02-04", core.Zero, ids)

	require.Len(t, ledger, 2)
	assert.Equal(t, "Daily Collection - 2025-02-03", ledger[0].Description)
	assert.Equal(t, "800", ledger[0].Amount.String())
	assert.Equal(t, core.Credit, ledger[0].Type)
	assert.Equal(t, "100", ledger[1].Amount.String())
}

func TestApplyPayment(t *testing.T) {
	r := core.MonthlyRecord{ID: "r1", MonthKey: "2025-02", PayableAmount: core.NewMoney(1000), Status: core.StatusUnpaid}

	r, ledger, err := ApplyPayment(r, nil, PaymentUpdate{PaidAmount: core.NewMoney(400), PaymentDate: "2025-02-05"}, "2025-02-06", seqIDs())
	require.NoError(t, err)
	assert.Equal(t, core.StatusPartial, r.Status)
	require.Len(t, ledger, 1)
	assert.Equal(t, "400", ledger[0].Amount.String())

	// Correcting the amount down posts a negative diff to the same day.
	r, ledger, err = ApplyPayment(r, ledger, PaymentUpdate{PaidAmount: core.NewMoney(300), PaymentDate: "2025-02-05"}, "2025-02-06", seqIDs())
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, "300", ledger[0].Amount.String())

	// No payment date falls back to today.
	r, ledger, err = ApplyPayment(r, ledger, PaymentUpdate{PaidAmount: core.NewMoney(1000)}, "2025-02-06", seqIDs())
	require.NoError(t, err)
	assert.Equal(t, core.StatusPaid, r.Status)
	assert.Equal(t, "2025-02-06", r.PaymentDate)
	require.Len(t, ledger, 2)
	assert.Equal(t, "Daily Collection - 2025-02-06", ledger[1].Description)
	assert.Equal(t, "700", ledger[1].Amount.String())
}

func TestApplyPayment_RejectsBadInput(t *testing.T) {
	r := core.MonthlyRecord{PayableAmount: core.NewMoney(100)}
	_, _, err := ApplyPayment(r, nil, PaymentUpdate{PaidAmount: core.NewMoney(-1)}, "2025-02-06", nil)
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	_, _, err = ApplyPayment(r, nil, PaymentUpdate{PaidAmount: core.NewMoney(1), PaymentDate: "06/02/2025"}, "2025-02-06", nil)
	assert.ErrorIs(t, err, core.ErrInvalidDate)
}

func TestMarkPaidAndReverse(t *testing.T) {
	r := core.MonthlyRecord{ID: "r1", PayableAmount: core.NewMoney(800), PaidAmount: core.NewMoney(300)}
	r, ledger := MarkPaid(r, nil, "2025-02-10", seqIDs())
	assert.Equal(t, core.StatusPaid, r.Status)
	assert.Equal(t, "800", r.PaidAmount.String())
	require.Len(t, ledger, 1)
	assert.Equal(t, "500", ledger[0].Amount.String())

	ledger = ReverseCollection(ledger, r, "2025-02-11")
	assert.Equal(t, "-300", ledger[0].Amount.String())
}
