package http

import (
	"net/http"
	"slices"

	"ispledger/internal/core"
	"ispledger/internal/diagram"
)

type diagramResponse struct {
	Diagram core.DiagramState `json:"diagram"`
	CanUndo bool              `json:"canUndo"`
	CanRedo bool              `json:"canRedo"`
	Result  any               `json:"result,omitempty"`
}

// editDiagram runs fn against the shared editor and persists the result.
// A failed save drops the editor so the next edit starts from the stored
// diagram. So does a stored diagram that another process changed.
func (s *Server) editDiagram(w http.ResponseWriter, r *http.Request, fn func(e *diagram.Editor) (any, error)) {
	s.editorMu.Lock()
	defer s.editorMu.Unlock()

	current := s.store.Snapshot().NetworkDiagram
	if s.editor != nil && !sameDiagram(current, s.editorBase) {
		s.editor = nil
	}
	if s.editor == nil {
		s.editor, s.editorBase = diagram.NewEditor(current), current
	}
	result, err := fn(s.editor)
	if err != nil {
		FromError(err).Write(w)
		return
	}
	saved, err := s.store.SaveDiagram(r.Context(), s.editor.State())
	if err != nil {
		s.editor = nil
		s.fail(w, r, "Diagram save failed", err)
		return
	}
	s.editorBase = saved
	OK(diagramResponse{
		Diagram: saved,
		CanUndo: s.editor.CanUndo(),
		CanRedo: s.editor.CanRedo(),
		Result:  result,
	}).Write(w)
}

// resetEditor discards undo history after the diagram changed outside the
// editor.
func (s *Server) resetEditor() {
	s.editorMu.Lock()
	s.editor = nil
	s.editorMu.Unlock()
}

func sameDiagram(a, b core.DiagramState) bool {
	return a.Zoom == b.Zoom && a.Pan == b.Pan && a.Rotation == b.Rotation &&
		slices.Equal(a.Nodes, b.Nodes) && slices.Equal(a.Links, b.Links)
}

func (s *Server) handleGetDiagram(w http.ResponseWriter, r *http.Request) {
	s.editorMu.Lock()
	resp := diagramResponse{Diagram: s.store.Snapshot().NetworkDiagram}
	if s.editor != nil {
		resp.CanUndo = s.editor.CanUndo()
		resp.CanRedo = s.editor.CanRedo()
	}
	s.editorMu.Unlock()
	OK(resp).Write(w)
}

func (s *Server) handlePutDiagram(w http.ResponseWriter, r *http.Request) {
	var d core.DiagramState
	if err := s.decodeLimit(w, r, &d, maxDocumentBytes); err != nil {
		FromError(err).Write(w)
		return
	}
	saved, err := s.store.SaveDiagram(r.Context(), d)
	if err != nil {
		s.fail(w, r, "Diagram save failed", err)
		return
	}
	s.resetEditor()
	OK(diagramResponse{Diagram: saved}).Write(w)
}

type addNodeRequest struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	ClientID string  `json:"clientId"`
}

// handleAddNode adds a plain node, or a client node when clientId names a
// known client.
func (s *Server) handleAddNode(w http.ResponseWriter, r *http.Request) {
	var req addNodeRequest
	if err := s.decode(w, r, &req); err != nil {
		FromError(err).Write(w)
		return
	}
	p := core.Point{X: req.X, Y: req.Y}
	var client *core.Client
	if req.ClientID != "" {
		st := s.store.Snapshot()
		i := st.ClientIndex(req.ClientID)
		if i < 0 {
			NotFound("client not found").Write(w)
			return
		}
		client = &st.Clients[i]
	}
	s.editDiagram(w, r, func(e *diagram.Editor) (any, error) {
		if client != nil {
			return e.AddClientNode(*client, p), nil
		}
		return e.AddNode(p), nil
	})
}

type updateNodeRequest struct {
	diagram.NodePatch
	X *float64 `json:"x,omitempty"`
	Y *float64 `json:"y,omitempty"`
}

func (s *Server) handleUpdateNode(w http.ResponseWriter, r *http.Request) {
	var req updateNodeRequest
	if err := s.decode(w, r, &req); err != nil {
		FromError(err).Write(w)
		return
	}
	id := r.PathValue("id")
	s.editDiagram(w, r, func(e *diagram.Editor) (any, error) {
		if req.X != nil && req.Y != nil {
			if err := e.MoveNode(id, core.Point{X: *req.X, Y: *req.Y}); err != nil {
				return nil, err
			}
		}
		if req.NodePatch != (diagram.NodePatch{}) {
			if err := e.UpdateNode(id, req.NodePatch); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
}

func (s *Server) handleRemoveNode(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.editDiagram(w, r, func(e *diagram.Editor) (any, error) {
		return nil, e.RemoveNode(id)
	})
}

type fanOutRequest struct {
	Count int `json:"count" validate:"gt=0,lte=64"`
}

func (s *Server) handleFanOut(w http.ResponseWriter, r *http.Request) {
	var req fanOutRequest
	if err := s.decode(w, r, &req); err != nil {
		FromError(err).Write(w)
		return
	}
	id := r.PathValue("id")
	s.editDiagram(w, r, func(e *diagram.Editor) (any, error) {
		return e.FanOut(id, req.Count)
	})
}

type assignNodeRequest struct {
	ItemID string `json:"itemId" validate:"required"`
}

func (s *Server) handleAssignToNode(w http.ResponseWriter, r *http.Request) {
	var req assignNodeRequest
	if err := s.decode(w, r, &req); err != nil {
		FromError(err).Write(w)
		return
	}
	node, err := s.store.AssignToNode(r.Context(), r.PathValue("id"), req.ItemID)
	if err != nil {
		s.fail(w, r, "Node assignment failed", err)
		return
	}
	s.resetEditor()
	OK(node).Write(w)
}

type linkRequest struct {
	From string `json:"from" validate:"required"`
	To   string `json:"to" validate:"required"`
}

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := s.decode(w, r, &req); err != nil {
		FromError(err).Write(w)
		return
	}
	s.editDiagram(w, r, func(e *diagram.Editor) (any, error) {
		return e.Link(req.From, req.To)
	})
}

func (s *Server) handleUpdateLink(w http.ResponseWriter, r *http.Request) {
	var patch diagram.LinkPatch
	if err := s.decode(w, r, &patch); err != nil {
		FromError(err).Write(w)
		return
	}
	id := r.PathValue("id")
	s.editDiagram(w, r, func(e *diagram.Editor) (any, error) {
		return nil, e.UpdateLink(id, patch)
	})
}

func (s *Server) handleUnlink(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.editDiagram(w, r, func(e *diagram.Editor) (any, error) {
		return nil, e.Unlink(id)
	})
}

type viewRequest struct {
	Zoom     float64    `json:"zoom" validate:"gt=0"`
	Pan      core.Point `json:"pan"`
	Rotation float64    `json:"rotation"`
}

func (s *Server) handleSetView(w http.ResponseWriter, r *http.Request) {
	var req viewRequest
	if err := s.decode(w, r, &req); err != nil {
		FromError(err).Write(w)
		return
	}
	s.editDiagram(w, r, func(e *diagram.Editor) (any, error) {
		e.SetView(req.Zoom, req.Pan, req.Rotation)
		return nil, nil
	})
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	s.editDiagram(w, r, func(e *diagram.Editor) (any, error) {
		return nil, e.Undo()
	})
}

func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	s.editDiagram(w, r, func(e *diagram.Editor) (any, error) {
		return nil, e.Redo()
	})
}
