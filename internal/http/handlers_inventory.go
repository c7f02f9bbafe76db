package http

import (
	"net/http"

	"ispledger/internal/core"
	"ispledger/internal/store"
)

type inventoryResponse struct {
	Items      []core.InventoryItem `json:"items"`
	StockValue core.Money           `json:"stockValue"`
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	items := s.store.Snapshot().Inventory
	OK(inventoryResponse{Items: items, StockValue: store.StockValue(items)}).Write(w)
}

func (s *Server) handleInventoryHistory(w http.ResponseWriter, r *http.Request) {
	OK(s.store.Snapshot().InventoryHistory).Write(w)
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var in store.ItemInput
	if err := s.decode(w, r, &in); err != nil {
		FromError(err).Write(w)
		return
	}
	item, err := s.store.CreateItem(r.Context(), in)
	if err != nil {
		s.fail(w, r, "Item create failed", err)
		return
	}
	Created(item).Write(w)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var in store.ItemInput
	if err := s.decode(w, r, &in); err != nil {
		FromError(err).Write(w)
		return
	}
	item, err := s.store.UpdateItem(r.Context(), r.PathValue("id"), in)
	if err != nil {
		s.fail(w, r, "Item update failed", err)
		return
	}
	OK(item).Write(w)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteItem(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, "Item delete failed", err)
		return
	}
	NoContent().Write(w)
}

type restockRequest struct {
	Quantity int    `json:"quantity" validate:"gt=0"`
	Date     string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

func (s *Server) handleRestock(w http.ResponseWriter, r *http.Request) {
	var req restockRequest
	if err := s.decode(w, r, &req); err != nil {
		FromError(err).Write(w)
		return
	}
	item, err := s.store.Restock(r.Context(), r.PathValue("id"), req.Quantity, req.Date)
	if err != nil {
		s.fail(w, r, "Restock failed", err)
		return
	}
	OK(item).Write(w)
}

func (s *Server) handleStockOut(w http.ResponseWriter, r *http.Request) {
	var in store.StockOutInput
	if err := s.decode(w, r, &in); err != nil {
		FromError(err).Write(w)
		return
	}
	item, err := s.store.StockOut(r.Context(), r.PathValue("id"), in)
	if err != nil {
		s.fail(w, r, "Stock out failed", err)
		return
	}
	OK(item).Write(w)
}
