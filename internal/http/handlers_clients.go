package http

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"ispledger/internal/core"
	"ispledger/internal/log"
	"ispledger/internal/report"
	"ispledger/internal/store"
)

// handleListClients lists clients. Archived clients are included only
// with ?archived=true.
func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	archived := boolParam(r, "archived")
	clients := s.store.Snapshot().Clients
	out := make([]core.Client, 0, len(clients))
	for _, c := range clients {
		if c.IsArchived == archived {
			out = append(out, c)
		}
	}
	OK(out).Write(w)
}

func (s *Server) handleGetClient(w http.ResponseWriter, r *http.Request) {
	st := s.store.Snapshot()
	i := st.ClientIndex(r.PathValue("id"))
	if i < 0 {
		NotFound("client not found").Write(w)
		return
	}
	OK(st.Clients[i]).Write(w)
}

func (s *Server) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var in store.ClientInput
	if err := s.decode(w, r, &in); err != nil {
		FromError(err).Write(w)
		return
	}
	c, err := s.store.AddClient(r.Context(), in)
	if err != nil {
		s.fail(w, r, "Client create failed", err)
		return
	}
	Created(c).Write(w)
}

func (s *Server) handleUpdateClient(w http.ResponseWriter, r *http.Request) {
	var in store.ClientInput
	if err := s.decode(w, r, &in); err != nil {
		FromError(err).Write(w)
		return
	}
	c, err := s.store.UpdateClient(r.Context(), r.PathValue("id"), in)
	if err != nil {
		s.fail(w, r, "Client update failed", err)
		return
	}
	OK(c).Write(w)
}

func (s *Server) handleDeleteClient(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteClientPermanently(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, "Client delete failed", err)
		return
	}
	NoContent().Write(w)
}

func (s *Server) handleClientLeft(w http.ResponseWriter, r *http.Request) {
	if err := s.store.MarkLeft(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, "Client archive failed", err)
		return
	}
	NoContent().Write(w)
}

func (s *Server) handleClientRestore(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Restore(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, "Client restore failed", err)
		return
	}
	NoContent().Write(w)
}

// handleImportClients accepts a JSON array of clients or a spreadsheet,
// either as the raw body or as the "file" field of a multipart form.
func (s *Server) handleImportClients(w http.ResponseWriter, r *http.Request) {
	rows, err := s.importRows(w, r)
	if err != nil {
		FromError(err).Write(w)
		return
	}
	res, err := s.store.ImportClients(r.Context(), rows)
	if err != nil {
		s.fail(w, r, "Client import failed", err)
		return
	}
	s.logger.InfoContext(r.Context(), "Clients imported",
		log.FieldOperation, log.OpImport,
		log.FieldCount, res.Imported,
		"skipped", res.Skipped)
	OK(res).Write(w)
}

func (s *Server) importRows(w http.ResponseWriter, r *http.Request) ([]store.ClientInput, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch {
	case mediaType == "application/json":
		var rows []store.ClientInput
		if err := s.decodeLimit(w, r, &rows, maxDocumentBytes); err != nil {
			return nil, err
		}
		for i, row := range rows {
			if err := s.validate.Struct(row); err != nil {
				return nil, fmt.Errorf("%w: row %d: %v", core.ErrValidation, i+1, err)
			}
		}
		return rows, nil
	case strings.HasPrefix(mediaType, "multipart/"):
		r.Body = http.MaxBytesReader(w, r.Body, maxDocumentBytes)
		f, _, err := r.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("%w: missing file: %v", core.ErrValidation, err)
		}
		defer f.Close()
		return parseSheet(f)
	default:
		return parseSheet(http.MaxBytesReader(w, r.Body, maxDocumentBytes))
	}
}

func parseSheet(r io.Reader) ([]store.ClientInput, error) {
	rows, err := report.ParseClientSheet(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrValidation, err)
	}
	return rows, nil
}

func (s *Server) handleAssignAsset(w http.ResponseWriter, r *http.Request) {
	var in store.AssetInput
	if err := s.decode(w, r, &in); err != nil {
		FromError(err).Write(w)
		return
	}
	asset, err := s.store.AssignAsset(r.Context(), r.PathValue("id"), in)
	if err != nil {
		s.fail(w, r, "Asset assignment failed", err)
		return
	}
	Created(asset).Write(w)
}

func (s *Server) handleReturnAsset(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ReturnAsset(r.Context(), r.PathValue("id"), r.PathValue("assetID")); err != nil {
		s.fail(w, r, "Asset return failed", err)
		return
	}
	NoContent().Write(w)
}
