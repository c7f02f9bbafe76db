package http

import (
	"net/http"
	"strings"

	"ispledger/internal/billing"
	"ispledger/internal/core"
	"ispledger/internal/log"
	"ispledger/internal/report"
	"ispledger/internal/store"
)

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	OK(s.store.Snapshot()).Write(w)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	month, err := s.monthParam(r)
	if err != nil {
		FromError(err).Write(w)
		return
	}
	OK(s.reports.Dashboard(r.Context(), s.store.Snapshot(), month)).Write(w)
}

type monthRequest struct {
	Month string `json:"month" validate:"omitempty,datetime=2006-01"`
}

type viewMonthRequest struct {
	Month string `json:"month" validate:"required,datetime=2006-01"`
}

func (s *Server) handleViewMonth(w http.ResponseWriter, r *http.Request) {
	var req viewMonthRequest
	if err := s.decode(w, r, &req); err != nil {
		FromError(err).Write(w)
		return
	}
	if err := s.store.SetViewMonth(r.Context(), req.Month); err != nil {
		s.fail(w, r, "Set view month failed", err)
		return
	}
	NoContent().Write(w)
}

type rolloverResponse struct {
	Month   string `json:"month"`
	Records int    `json:"records"`
}

// handleRollover generates the bills of the requested month, or of the
// month after the latest one when no month is given.
func (s *Server) handleRollover(w http.ResponseWriter, r *http.Request) {
	var req monthRequest
	if r.ContentLength != 0 {
		if err := s.decode(w, r, &req); err != nil {
			FromError(err).Write(w)
			return
		}
	}
	var (
		st  core.GlobalState
		err error
	)
	if req.Month == "" {
		st, err = s.store.RolloverNext(r.Context())
	} else {
		st, err = s.store.RolloverMonth(r.Context(), req.Month)
	}
	if err != nil {
		s.fail(w, r, "Rollover failed", err)
		return
	}
	Created(rolloverResponse{
		Month:   st.CurrentViewMonth,
		Records: len(st.RecordsFor(st.CurrentViewMonth)),
	}).Write(w)
}

// filterRecords narrows a month's bills by status, area and a free-text
// search over name, username and display id.
func filterRecords(records []core.MonthlyRecord, status, area, q string) []core.MonthlyRecord {
	q = strings.ToLower(strings.TrimSpace(q))
	out := make([]core.MonthlyRecord, 0, len(records))
	for _, rec := range records {
		if status != "" && !strings.EqualFold(string(rec.Status), status) {
			continue
		}
		if area != "" && !strings.EqualFold(rec.Area, area) {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(rec.ClientName), q) &&
			!strings.Contains(strings.ToLower(rec.Username), q) &&
			!strings.Contains(strings.ToLower(rec.DisplayClientID), q) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func (s *Server) monthRecords(r *http.Request) ([]core.MonthlyRecord, error) {
	month, err := s.monthParam(r)
	if err != nil {
		return nil, err
	}
	query := r.URL.Query()
	return filterRecords(s.store.Snapshot().RecordsFor(month),
		query.Get("status"), query.Get("area"), query.Get("q")), nil
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.monthRecords(r)
	if err != nil {
		FromError(err).Write(w)
		return
	}
	OK(records).Write(w)
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleExportRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.monthRecords(r)
	if err != nil {
		FromError(err).Write(w)
		return
	}
	month, _ := s.monthParam(r)
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="billing-`+month+`.xlsx"`)
	if err := report.WriteBillingSheet(w, records); err != nil {
		s.logger.Failure(r.Context(), "Billing export failed", err, log.FieldMonthKey, month)
		return
	}
	s.logger.InfoContext(r.Context(), "Billing sheet exported",
		log.FieldOperation, log.OpExport,
		log.FieldMonthKey, month,
		log.FieldCount, len(records))
}

type paymentRequest struct {
	PaidAmount  core.Money `json:"paidAmount"`
	PaymentDate string     `json:"paymentDate" validate:"omitempty,datetime=2006-01-02"`
	ReceiptNo   string     `json:"receiptNo" validate:"max=64"`
	Remarks     *string    `json:"remarks,omitempty" validate:"omitempty,max=255"`
	IsActive    *bool      `json:"isActive,omitempty"`
}

func (s *Server) handlePayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := s.decode(w, r, &req); err != nil {
		FromError(err).Write(w)
		return
	}
	rec, err := s.store.ApplyPayment(r.Context(), r.PathValue("id"), billing.PaymentUpdate{
		PaidAmount:  req.PaidAmount,
		PaymentDate: req.PaymentDate,
		ReceiptNo:   req.ReceiptNo,
		Remarks:     req.Remarks,
		IsActive:    req.IsActive,
	})
	if err != nil {
		s.fail(w, r, "Payment failed", err)
		return
	}
	OK(rec).Write(w)
}

type adjustRequest struct {
	PayableAmount *core.Money `json:"payableAmount,omitempty"`
	OverdueMonths *int        `json:"overdueMonths,omitempty" validate:"omitempty,gte=0"`
	Remarks       *string     `json:"remarks,omitempty" validate:"omitempty,max=255"`
}

func (s *Server) handleAdjustRecord(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := s.decode(w, r, &req); err != nil {
		FromError(err).Write(w)
		return
	}
	rec, err := s.store.AdjustRecord(r.Context(), r.PathValue("id"), store.RecordAdjustment{
		PayableAmount: req.PayableAmount,
		OverdueMonths: req.OverdueMonths,
		Remarks:       req.Remarks,
	})
	if err != nil {
		s.fail(w, r, "Record adjustment failed", err)
		return
	}
	OK(rec).Write(w)
}

type idsRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required"`
}

type countResponse struct {
	Count int `json:"count"`
}

func (s *Server) handleBulkPaid(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if err := s.decode(w, r, &req); err != nil {
		FromError(err).Write(w)
		return
	}
	n, err := s.store.BulkMarkPaid(r.Context(), req.IDs)
	if err != nil {
		s.fail(w, r, "Bulk payment failed", err)
		return
	}
	OK(countResponse{Count: n}).Write(w)
}

func (s *Server) handleDeleteRecords(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if err := s.decode(w, r, &req); err != nil {
		FromError(err).Write(w)
		return
	}
	n, err := s.store.DeleteRecords(r.Context(), req.IDs)
	if err != nil {
		s.fail(w, r, "Record delete failed", err)
		return
	}
	OK(countResponse{Count: n}).Write(w)
}
