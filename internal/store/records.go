package store

import (
	"context"
	"fmt"

	"ispledger/internal/billing"
	"ispledger/internal/core"
	"ispledger/internal/log"
)

// RolloverMonth generates the bills of monthKey. It fails with
// core.ErrDuplicateMonth when the month already has records.
func (s *Store) RolloverMonth(ctx context.Context, monthKey string) (core.GlobalState, error) {
	var created int
	next, err := s.update(ctx, log.OpRollover, func(st *core.GlobalState) error {
		before := len(st.Records)
		out, err := s.engine.GenerateNextMonth(*st, monthKey, s.now())
		if err != nil {
			return err
		}
		created = len(out.Records) - before
		*st = out
		return nil
	})
	if err != nil {
		return core.GlobalState{}, err
	}
	s.logger.InfoContext(ctx, "Month generated",
		log.FieldMonthKey, monthKey,
		log.FieldCount, created)
	return next, nil
}

// RolloverNext generates the month after the current view month.
func (s *Store) RolloverNext(ctx context.Context) (core.GlobalState, error) {
	current := s.Snapshot().CurrentViewMonth
	next, err := billing.NextMonthKey(current)
	if err != nil {
		return core.GlobalState{}, err
	}
	return s.RolloverMonth(ctx, next)
}

// SetViewMonth changes the month shown by default.
func (s *Store) SetViewMonth(ctx context.Context, monthKey string) error {
	if _, err := core.ParseMonthKey(monthKey); err != nil {
		return err
	}
	_, err := s.update(ctx, "view_month", func(st *core.GlobalState) error {
		st.CurrentViewMonth = monthKey
		return nil
	})
	return err
}

// ApplyPayment records a payment edit on a bill and posts the difference to
// the day's collection entry. An isActive change is mirrored to the client.
func (s *Store) ApplyPayment(ctx context.Context, recordID string, u billing.PaymentUpdate) (core.MonthlyRecord, error) {
	var updated core.MonthlyRecord
	_, err := s.update(ctx, log.OpPayment, func(st *core.GlobalState) error {
		i := st.RecordIndex(recordID)
		if i < 0 {
			return fmt.Errorf("record %s: %w", recordID, core.ErrNotFound)
		}
		rec, expenses, err := billing.ApplyPayment(st.Records[i], st.Expenses, u, core.DateOf(s.now()), s.newID)
		if err != nil {
			return err
		}
		st.Records[i] = rec
		st.Expenses = expenses
		if u.IsActive != nil {
			if ci := st.ClientIndex(rec.ClientID); ci >= 0 {
				st.Clients[ci].IsActive = *u.IsActive
			}
		}
		updated = rec
		return nil
	})
	if err != nil {
		return core.MonthlyRecord{}, err
	}
	s.logger.InfoContext(ctx, "Payment applied", log.NewFields().
		WithBill(updated.ID, updated.ClientID, updated.MonthKey).
		WithOperation(log.OpPayment).ToSlice()...)
	return updated, nil
}

// RecordAdjustment edits the billing terms of a single bill.
type RecordAdjustment struct {
	PayableAmount *core.Money
	OverdueMonths *int
	Remarks       *string
}

// AdjustRecord changes a bill's payable amount, overdue counter or remarks
// and recomputes its status.
func (s *Store) AdjustRecord(ctx context.Context, recordID string, adj RecordAdjustment) (core.MonthlyRecord, error) {
	var updated core.MonthlyRecord
	_, err := s.update(ctx, log.OpUpdate, func(st *core.GlobalState) error {
		i := st.RecordIndex(recordID)
		if i < 0 {
			return fmt.Errorf("record %s: %w", recordID, core.ErrNotFound)
		}
		r := st.Records[i]
		if adj.PayableAmount != nil {
			if adj.PayableAmount.IsNegative() {
				return core.ErrInvalidAmount
			}
			r.PayableAmount = *adj.PayableAmount
		}
		if adj.OverdueMonths != nil {
			if *adj.OverdueMonths < 0 {
				return fmt.Errorf("%w: overdue months cannot be negative", core.ErrValidation)
			}
			r.OverdueMonths = *adj.OverdueMonths
		}
		if adj.Remarks != nil {
			r.Remarks = *adj.Remarks
		}
		r.Status = billing.StatusFor(r.PayableAmount, r.PaidAmount)
		st.Records[i] = r
		updated = r
		return nil
	})
	return updated, err
}

// BulkMarkPaid settles the selected bills in full today. Unknown ids are
// ignored; the number of settled bills is returned.
func (s *Store) BulkMarkPaid(ctx context.Context, recordIDs []string) (int, error) {
	want := toSet(recordIDs)
	var count int
	_, err := s.update(ctx, log.OpPayment, func(st *core.GlobalState) error {
		count = 0
		today := core.DateOf(s.now())
		for i, r := range st.Records {
			if _, ok := want[r.ID]; !ok {
				continue
			}
			st.Records[i], st.Expenses = billing.MarkPaid(r, st.Expenses, today, s.newID)
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "Bills marked paid", log.FieldCount, count)
	return count, nil
}

// DeleteRecords removes bills and takes their payments back out of the
// collection ledger.
func (s *Store) DeleteRecords(ctx context.Context, recordIDs []string) (int, error) {
	want := toSet(recordIDs)
	var count int
	_, err := s.update(ctx, log.OpDelete, func(st *core.GlobalState) error {
		count = 0
		today := core.DateOf(s.now())
		kept := st.Records[:0:0]
		for _, r := range st.Records {
			if _, ok := want[r.ID]; ok {
				st.Expenses = billing.ReverseCollection(st.Expenses, r, today)
				count++
				continue
			}
			kept = append(kept, r)
		}
		st.Records = kept
		return nil
	})
	return count, err
}

func toSet(ids []string) map[string]struct{} {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}
