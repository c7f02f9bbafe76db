// Package diagram edits the network topology canvas. Every edit records a
// snapshot so it can be undone.
package diagram

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"ispledger/internal/core"
)

// HistoryLimit is the number of snapshots kept for undo.
const HistoryLimit = 50

// Node types offered by the editor.
const (
	TypeRouter = "Router"
	TypeSwitch = "Switch"
	TypeOLT    = "OLT"
	TypeONU    = "ONU"
	TypeClient = "Client"
	TypeServer = "Server"
)

const (
	colorDefault = "#60a5fa"
	colorRoot    = "#3b82f6"
	colorClient  = "#10b981"
	colorLink    = "#9ca3af"

	fanOutDX      = 200
	fanOutSpacing = 60

	minZoom = 0.1
	maxZoom = 5
)

var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
	ErrSelfLink      = errors.New("cannot link a node to itself")
	ErrDuplicateLink = errors.New("nodes are already linked")
)

// Editor applies edits to a diagram. It is not safe for concurrent use.
type Editor struct {
	state core.DiagramState
	past  []core.DiagramState
	next  []core.DiagramState
	newID func() string
}

// NewEditor starts editing d. An empty diagram gets a root core switch.
func NewEditor(d core.DiagramState) *Editor {
	e := &Editor{state: d.Clone(), newID: uuid.NewString}
	if e.state.Zoom <= 0 {
		e.state.Zoom = 1
	}
	if len(e.state.Nodes) == 0 {
		e.state.Nodes = append(e.state.Nodes, core.DiagramNode{
			ID:    "root",
			X:     400,
			Y:     300,
			Label: "Core Switch",
			Type:  TypeSwitch,
			Color: colorRoot,
		})
	}
	return e
}

// WithIDs overrides id generation.
func (e *Editor) WithIDs(newID func() string) *Editor {
	e.newID = newID
	return e
}

// State returns a copy of the current diagram.
func (e *Editor) State() core.DiagramState { return e.state.Clone() }

func (e *Editor) CanUndo() bool { return len(e.past) > 0 }
func (e *Editor) CanRedo() bool { return len(e.next) > 0 }

// commit records the current state and switches to next.
func (e *Editor) commit(next core.DiagramState) {
	e.past = append(e.past, e.state)
	if len(e.past) > HistoryLimit {
		e.past = e.past[len(e.past)-HistoryLimit:]
	}
	e.next = nil
	e.state = next
}

func (e *Editor) Undo() error {
	if len(e.past) == 0 {
		return ErrNothingToUndo
	}
	prev := e.past[len(e.past)-1]
	e.past = e.past[:len(e.past)-1]
	e.next = append(e.next, e.state)
	e.state = prev
	return nil
}

func (e *Editor) Redo() error {
	if len(e.next) == 0 {
		return ErrNothingToRedo
	}
	n := e.next[len(e.next)-1]
	e.next = e.next[:len(e.next)-1]
	e.past = append(e.past, e.state)
	e.state = n
	return nil
}

// AddNode places a new switch node at p.
func (e *Editor) AddNode(p core.Point) core.DiagramNode {
	n := core.DiagramNode{
		ID:    e.newID(),
		X:     p.X,
		Y:     p.Y,
		Label: "New Node",
		Type:  TypeSwitch,
		Color: colorDefault,
	}
	next := e.state.Clone()
	next.Nodes = append(next.Nodes, n)
	e.commit(next)
	return n
}

// AddClientNode places a node representing a subscriber.
func (e *Editor) AddClientNode(c core.Client, p core.Point) core.DiagramNode {
	label := c.Username
	if label == "" {
		label = c.Name
	}
	n := core.DiagramNode{
		ID:       e.newID(),
		X:        p.X,
		Y:        p.Y,
		Label:    label,
		Type:     TypeClient,
		Color:    colorClient,
		ClientID: c.ID,
	}
	next := e.state.Clone()
	next.Nodes = append(next.Nodes, n)
	e.commit(next)
	return n
}

// FanOut adds count client nodes to the right of parentID, spread
// vertically around it and linked to it.
func (e *Editor) FanOut(parentID string, count int) ([]core.DiagramNode, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: fan-out count must be positive", core.ErrValidation)
	}
	parent, _, ok := e.state.Node(parentID)
	if !ok {
		return nil, fmt.Errorf("node %s: %w", parentID, core.ErrNotFound)
	}
	next := e.state.Clone()
	startY := parent.Y - float64(count-1)*fanOutSpacing/2
	added := make([]core.DiagramNode, 0, count)
	for i := range count {
		n := core.DiagramNode{
			ID:    e.newID(),
			X:     parent.X + fanOutDX,
			Y:     startY + float64(i)*fanOutSpacing,
			Label: fmt.Sprintf("Node-%d", i+1),
			Type:  TypeClient,
			Color: colorDefault,
		}
		next.Nodes = append(next.Nodes, n)
		next.Links = append(next.Links, core.DiagramLink{
			ID:    e.newID(),
			From:  parent.ID,
			To:    n.ID,
			Color: colorLink,
		})
		added = append(added, n)
	}
	e.commit(next)
	return added, nil
}

func (e *Editor) MoveNode(id string, p core.Point) error {
	return e.editNode(id, func(n *core.DiagramNode) error {
		n.X, n.Y = p.X, p.Y
		return nil
	})
}

// NodePatch changes the presentation of a node. Empty fields are kept.
type NodePatch struct {
	Label    string `json:"label,omitempty"`
	Type     string `json:"type,omitempty"`
	Color    string `json:"color,omitempty"`
	ClientID string `json:"clientId,omitempty"`
}

func (e *Editor) UpdateNode(id string, p NodePatch) error {
	return e.editNode(id, func(n *core.DiagramNode) error {
		if p.Label != "" {
			n.Label = p.Label
		}
		if p.Type != "" {
			n.Type = p.Type
		}
		if p.Color != "" {
			n.Color = p.Color
		}
		if p.ClientID != "" {
			n.ClientID = p.ClientID
		}
		return nil
	})
}

func (e *Editor) editNode(id string, fn func(n *core.DiagramNode) error) error {
	_, i, ok := e.state.Node(id)
	if !ok {
		return fmt.Errorf("node %s: %w", id, core.ErrNotFound)
	}
	next := e.state.Clone()
	if err := fn(&next.Nodes[i]); err != nil {
		return err
	}
	e.commit(next)
	return nil
}

// RemoveNode deletes a node and every link attached to it.
func (e *Editor) RemoveNode(id string) error {
	_, i, ok := e.state.Node(id)
	if !ok {
		return fmt.Errorf("node %s: %w", id, core.ErrNotFound)
	}
	next := e.state.Clone()
	next.Nodes = append(next.Nodes[:i:i], next.Nodes[i+1:]...)
	links := next.Links[:0]
	for _, l := range next.Links {
		if l.From != id && l.To != id {
			links = append(links, l)
		}
	}
	next.Links = links
	e.commit(next)
	return nil
}

// Link connects two nodes. Links are undirected for duplicate detection.
func (e *Editor) Link(from, to string) (core.DiagramLink, error) {
	if from == to {
		return core.DiagramLink{}, ErrSelfLink
	}
	for _, id := range []string{from, to} {
		if _, _, ok := e.state.Node(id); !ok {
			return core.DiagramLink{}, fmt.Errorf("node %s: %w", id, core.ErrNotFound)
		}
	}
	for _, l := range e.state.Links {
		if (l.From == from && l.To == to) || (l.From == to && l.To == from) {
			return core.DiagramLink{}, ErrDuplicateLink
		}
	}
	l := core.DiagramLink{ID: e.newID(), From: from, To: to, Color: colorLink}
	next := e.state.Clone()
	next.Links = append(next.Links, l)
	e.commit(next)
	return l, nil
}

// LinkPatch annotates a cable.
type LinkPatch struct {
	Label  string `json:"label,omitempty"`
	Color  string `json:"color,omitempty"`
	Length string `json:"length,omitempty"`
}

func (e *Editor) UpdateLink(id string, p LinkPatch) error {
	i := e.linkIndex(id)
	if i < 0 {
		return fmt.Errorf("link %s: %w", id, core.ErrNotFound)
	}
	next := e.state.Clone()
	l := &next.Links[i]
	if p.Label != "" {
		l.Label = p.Label
	}
	if p.Color != "" {
		l.Color = p.Color
	}
	if p.Length != "" {
		l.Length = p.Length
	}
	e.commit(next)
	return nil
}

func (e *Editor) Unlink(id string) error {
	i := e.linkIndex(id)
	if i < 0 {
		return fmt.Errorf("link %s: %w", id, core.ErrNotFound)
	}
	next := e.state.Clone()
	next.Links = append(next.Links[:i:i], next.Links[i+1:]...)
	e.commit(next)
	return nil
}

func (e *Editor) linkIndex(id string) int {
	for i, l := range e.state.Links {
		if l.ID == id {
			return i
		}
	}
	return -1
}

// SetView changes zoom, pan and rotation. Zoom is clamped and rotation is
// normalized to [0, 360).
func (e *Editor) SetView(zoom float64, pan core.Point, rotation float64) {
	next := e.state.Clone()
	next.Zoom = math.Min(maxZoom, math.Max(minZoom, zoom))
	next.Pan = pan
	next.Rotation = math.Mod(math.Mod(rotation, 360)+360, 360)
	e.commit(next)
}
