package store

import (
	"context"
	"fmt"

	"ispledger/internal/core"
	"ispledger/internal/log"
)

// ExpenseInput is a manual ledger entry.
type ExpenseInput struct {
	Date        string           `json:"date" validate:"required,datetime=2006-01-02"`
	Amount      core.Money       `json:"amount"`
	Type        core.ExpenseType `json:"type" validate:"required,oneof=Credit Debit"`
	Category    string           `json:"category" validate:"max=64"`
	Description string           `json:"description" validate:"required,max=200"`
}

func (in ExpenseInput) toTransaction(id string) core.ExpenseTransaction {
	return core.ExpenseTransaction{
		ID:          id,
		Date:        in.Date,
		Amount:      in.Amount,
		Type:        in.Type,
		Category:    in.Category,
		Description: in.Description,
	}
}

func (s *Store) AddExpense(ctx context.Context, in ExpenseInput) (core.ExpenseTransaction, error) {
	e := in.toTransaction(s.newID())
	if err := e.Validate(); err != nil {
		return core.ExpenseTransaction{}, err
	}
	_, err := s.update(ctx, log.OpCreate, func(st *core.GlobalState) error {
		st.Expenses = append(st.Expenses, e)
		return nil
	})
	if err != nil {
		return core.ExpenseTransaction{}, err
	}
	s.logger.InfoContext(ctx, "Ledger entry added", "type", e.Type, log.FieldAmount, e.Amount.String(), "category", e.Category)
	return e, nil
}

func (s *Store) UpdateExpense(ctx context.Context, id string, in ExpenseInput) (core.ExpenseTransaction, error) {
	e := in.toTransaction(id)
	if err := e.Validate(); err != nil {
		return core.ExpenseTransaction{}, err
	}
	_, err := s.update(ctx, log.OpUpdate, func(st *core.GlobalState) error {
		i := st.ExpenseIndex(id)
		if i < 0 {
			return fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
		}
		e.RecordID = st.Expenses[i].RecordID
		st.Expenses[i] = e
		return nil
	})
	if err != nil {
		return core.ExpenseTransaction{}, err
	}
	return e, nil
}

func (s *Store) DeleteExpense(ctx context.Context, id string) error {
	_, err := s.update(ctx, log.OpDelete, func(st *core.GlobalState) error {
		i := st.ExpenseIndex(id)
		if i < 0 {
			return fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
		}
		st.Expenses = append(st.Expenses[:i:i], st.Expenses[i+1:]...)
		return nil
	})
	return err
}
