package core

type (
	Point struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}

	DiagramNode struct {
		ID                    string  `json:"id"`
		X                     float64 `json:"x"`
		Y                     float64 `json:"y"`
		Label                 string  `json:"label"`
		Type                  string  `json:"type"`
		Color                 string  `json:"color,omitempty"`
		ClientID              string  `json:"clientId,omitempty"`
		AssignedInventoryID   string  `json:"assignedInventoryId,omitempty"`
		AssignedInventoryName string  `json:"assignedInventoryName,omitempty"`
		AssignedDate          string  `json:"assignedDate,omitempty"`
	}

	// DiagramLink is a cable between two nodes.
	DiagramLink struct {
		ID     string `json:"id"`
		From   string `json:"from"`
		To     string `json:"to"`
		Color  string `json:"color,omitempty"`
		Label  string `json:"label,omitempty"`
		Length string `json:"length,omitempty"`
	}

	// DiagramState is the topology canvas document.
	DiagramState struct {
		Nodes    []DiagramNode `json:"nodes"`
		Links    []DiagramLink `json:"links"`
		Zoom     float64       `json:"zoom"`
		Pan      Point         `json:"pan"`
		Rotation float64       `json:"rotation"`
	}
)

func DefaultDiagram() DiagramState {
	return DiagramState{
		Nodes: []DiagramNode{},
		Links: []DiagramLink{},
		Zoom:  1,
	}
}

// Clone returns a deep copy.
func (d DiagramState) Clone() DiagramState {
	out := d
	out.Nodes = append([]DiagramNode{}, d.Nodes...)
	out.Links = append([]DiagramLink{}, d.Links...)
	return out
}

// Node finds a node by id.
func (d DiagramState) Node(id string) (DiagramNode, int, bool) {
	for i, n := range d.Nodes {
		if n.ID == id {
			return n, i, true
		}
	}
	return DiagramNode{}, -1, false
}
