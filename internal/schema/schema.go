// Package schema loads persisted state documents of any known version and
// upgrades them to the current layout through discrete, ordered steps.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ispledger/internal/core"
)

// CurrentVersion is the layout written by Encode.
const CurrentVersion = 5

// ErrUnsupportedVersion is returned for documents written by a newer build.
var ErrUnsupportedVersion = errors.New("unsupported schema version")

// Document is a decoded but untyped state document.
type Document map[string]any

// Step upgrades a document from Version-1 to Version.
type Step struct {
	Version int
	Name    string
	Apply   func(doc Document, env Env) error
}

// Env carries the non-deterministic inputs a step may need.
type Env struct {
	NewID func() string
	Now   func() time.Time
}

func defaultEnv() Env {
	return Env{NewID: uuid.NewString, Now: time.Now}
}

// Loader decodes and upgrades documents.
type Loader struct {
	steps []Step
	env   Env
}

// NewLoader returns a loader with the built-in steps. Zero-valued env
// fields fall back to uuid and wall-clock time.
func NewLoader(env Env) *Loader {
	d := defaultEnv()
	if env.NewID == nil {
		env.NewID = d.NewID
	}
	if env.Now == nil {
		env.Now = d.Now
	}
	return &Loader{steps: Steps(), env: env}
}

// Load is NewLoader(Env{}).Load.
func Load(data []byte) (core.GlobalState, error) {
	return NewLoader(Env{}).Load(data)
}

// Load decodes a document of any version up to CurrentVersion. Empty input
// yields the initial state of a fresh installation.
func (l *Loader) Load(data []byte) (core.GlobalState, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return core.InitialState(l.env.Now()), nil
	}

	doc, err := Decode(data)
	if err != nil {
		return core.GlobalState{}, err
	}
	if err := l.Upgrade(doc); err != nil {
		return core.GlobalState{}, err
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return core.GlobalState{}, fmt.Errorf("re-encode upgraded document: %w", err)
	}
	var state core.GlobalState
	if err := json.Unmarshal(raw, &state); err != nil {
		return core.GlobalState{}, fmt.Errorf("decode state: %w", err)
	}
	normalize(&state)
	return state, nil
}

// Decode parses a document keeping numbers exact.
func Decode(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if doc == nil {
		return nil, errors.New("decode document: not an object")
	}
	return doc, nil
}

// Version reports a document's schema version; unversioned documents are 0.
func Version(doc Document) (int, error) {
	v, ok := doc["schemaVersion"]
	if !ok || v == nil {
		return 0, nil
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, fmt.Errorf("schemaVersion is %T, not a number", v)
	}
	i, err := n.Int64()
	if err != nil {
		return 0, fmt.Errorf("schemaVersion: %w", err)
	}
	return int(i), nil
}

// Upgrade applies every step newer than the document's version in order.
func (l *Loader) Upgrade(doc Document) error {
	from, err := Version(doc)
	if err != nil {
		return err
	}
	if from > CurrentVersion {
		return fmt.Errorf("%w: %d (this build understands up to %d)", ErrUnsupportedVersion, from, CurrentVersion)
	}
	for _, s := range l.steps {
		if s.Version <= from {
			continue
		}
		if err := s.Apply(doc, l.env); err != nil {
			return fmt.Errorf("migration %d (%s): %w", s.Version, s.Name, err)
		}
		doc["schemaVersion"] = json.Number(fmt.Sprint(s.Version))
	}
	return nil
}

// Encode serializes state at the current schema version.
func Encode(state core.GlobalState) ([]byte, error) {
	state.SchemaVersion = CurrentVersion
	normalize(&state)
	return json.Marshal(state)
}

// normalize replaces nil collections with empty ones so that documents
// always serialize arrays, never null.
func normalize(s *core.GlobalState) {
	if s.Clients == nil {
		s.Clients = []core.Client{}
	}
	if s.Records == nil {
		s.Records = []core.MonthlyRecord{}
	}
	if s.Expenses == nil {
		s.Expenses = []core.ExpenseTransaction{}
	}
	if s.Inventory == nil {
		s.Inventory = []core.InventoryItem{}
	}
	if s.InventoryHistory == nil {
		s.InventoryHistory = []core.InventoryTransaction{}
	}
	if s.NetworkDiagram.Nodes == nil {
		s.NetworkDiagram.Nodes = []core.DiagramNode{}
	}
	if s.NetworkDiagram.Links == nil {
		s.NetworkDiagram.Links = []core.DiagramLink{}
	}
	if s.Settings.DynamicFields == nil {
		s.Settings.DynamicFields = []string{}
	}
	if s.Settings.BandwidthPackages == nil {
		s.Settings.BandwidthPackages = []core.BandwidthPackage{}
	}
}
