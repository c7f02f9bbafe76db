package http

import (
	"net/http"
	"sort"
	"time"

	"ispledger/internal/core"
	"ispledger/internal/report"
	"ispledger/internal/store"
)

// handleListExpenses lists ledger entries, newest first, optionally
// limited to one month with ?month=.
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	month := r.URL.Query().Get("month")
	if month != "" {
		if _, err := core.ParseMonthKey(month); err != nil {
			FromError(err).Write(w)
			return
		}
	}
	expenses := s.store.Snapshot().Expenses
	out := make([]core.ExpenseTransaction, 0, len(expenses))
	for _, e := range expenses {
		if month == "" || len(e.Date) >= 7 && e.Date[:7] == month {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	OK(out).Write(w)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var in store.ExpenseInput
	if err := s.decode(w, r, &in); err != nil {
		FromError(err).Write(w)
		return
	}
	e, err := s.store.AddExpense(r.Context(), in)
	if err != nil {
		s.fail(w, r, "Expense create failed", err)
		return
	}
	Created(e).Write(w)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	var in store.ExpenseInput
	if err := s.decode(w, r, &in); err != nil {
		FromError(err).Write(w)
		return
	}
	e, err := s.store.UpdateExpense(r.Context(), r.PathValue("id"), in)
	if err != nil {
		s.fail(w, r, "Expense update failed", err)
		return
	}
	OK(e).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteExpense(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, "Expense delete failed", err)
		return
	}
	NoContent().Write(w)
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	OK(report.LedgerWithBalance(s.store.Snapshot().Expenses)).Write(w)
}

func (s *Server) handleLedgerSummary(w http.ResponseWriter, r *http.Request) {
	month, err := s.monthParam(r)
	if err != nil {
		FromError(err).Write(w)
		return
	}
	OK(report.MonthlyLedgerSummary(s.store.Snapshot().Expenses, month)).Write(w)
}

func (s *Server) handleStatement(w http.ResponseWriter, r *http.Request) {
	month, err := s.monthParam(r)
	if err != nil {
		FromError(err).Write(w)
		return
	}
	OK(report.Statement(s.store.Snapshot(), month)).Write(w)
}

func (s *Server) handleAreas(w http.ResponseWriter, r *http.Request) {
	month, err := s.monthParam(r)
	if err != nil {
		FromError(err).Write(w)
		return
	}
	OK(report.AreaSummary(s.store.Snapshot().Records, month)).Write(w)
}

func (s *Server) handleGrowth(w http.ResponseWriter, r *http.Request) {
	year, err := intParam(r, "year", time.Now().Year())
	if err != nil {
		FromError(err).Write(w)
		return
	}
	OK(report.Growth(s.store.Snapshot(), year)).Write(w)
}
