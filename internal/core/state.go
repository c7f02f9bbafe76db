package core

import (
	"maps"
	"time"
)

// GlobalState is the whole persisted document.
type GlobalState struct {
	SchemaVersion    int                    `json:"schemaVersion"`
	Clients          []Client               `json:"clients"`
	Records          []MonthlyRecord        `json:"records"`
	Expenses         []ExpenseTransaction   `json:"expenses"`
	Inventory        []InventoryItem        `json:"inventory"`
	InventoryHistory []InventoryTransaction `json:"inventoryHistory"`
	Settings         Settings               `json:"settings"`
	CurrentViewMonth string                 `json:"currentViewMonth"`
	NetworkDiagram   DiagramState           `json:"networkDiagram"`
}

// InitialState is the state of a fresh installation.
func InitialState(now time.Time) GlobalState {
	return GlobalState{
		Clients:          []Client{},
		Records:          []MonthlyRecord{},
		Expenses:         []ExpenseTransaction{},
		Inventory:        []InventoryItem{},
		InventoryHistory: []InventoryTransaction{},
		Settings:         DefaultSettings(),
		CurrentViewMonth: MonthKeyOf(now),
		NetworkDiagram:   DefaultDiagram(),
	}
}

// Clone returns a deep copy so a snapshot can be mutated without touching
// the original.
func (s GlobalState) Clone() GlobalState {
	out := s
	out.Clients = make([]Client, len(s.Clients))
	for i, c := range s.Clients {
		c.CustomFields = maps.Clone(c.CustomFields)
		c.AssignedAssets = append([]ClientAsset(nil), c.AssignedAssets...)
		out.Clients[i] = c
	}
	out.Records = make([]MonthlyRecord, len(s.Records))
	for i, r := range s.Records {
		r.CustomFields = maps.Clone(r.CustomFields)
		out.Records[i] = r
	}
	out.Expenses = append([]ExpenseTransaction{}, s.Expenses...)
	out.Inventory = append([]InventoryItem{}, s.Inventory...)
	out.InventoryHistory = append([]InventoryTransaction{}, s.InventoryHistory...)
	out.Settings.CustomHeaders = maps.Clone(s.Settings.CustomHeaders)
	out.Settings.ColumnOrder = append([]string{}, s.Settings.ColumnOrder...)
	out.Settings.DynamicFields = append([]string{}, s.Settings.DynamicFields...)
	out.Settings.BandwidthPackages = append([]BandwidthPackage{}, s.Settings.BandwidthPackages...)
	out.NetworkDiagram = s.NetworkDiagram.Clone()
	return out
}

func (s GlobalState) ClientIndex(id string) int {
	for i := range s.Clients {
		if s.Clients[i].ID == id {
			return i
		}
	}
	return -1
}

func (s GlobalState) RecordIndex(id string) int {
	for i := range s.Records {
		if s.Records[i].ID == id {
			return i
		}
	}
	return -1
}

func (s GlobalState) ExpenseIndex(id string) int {
	for i := range s.Expenses {
		if s.Expenses[i].ID == id {
			return i
		}
	}
	return -1
}

func (s GlobalState) ItemIndex(id string) int {
	for i := range s.Inventory {
		if s.Inventory[i].ID == id {
			return i
		}
	}
	return -1
}

// HasMonth reports whether any record exists for the month key.
func (s GlobalState) HasMonth(key string) bool {
	for _, r := range s.Records {
		if r.MonthKey == key {
			return true
		}
	}
	return false
}

// RecordsFor returns the records of a month in document order.
func (s GlobalState) RecordsFor(key string) []MonthlyRecord {
	var out []MonthlyRecord
	for _, r := range s.Records {
		if r.MonthKey == key {
			out = append(out, r)
		}
	}
	return out
}

// UsernameTaken reports whether a client other than exceptID uses username.
func (s GlobalState) UsernameTaken(username, exceptID string) bool {
	for _, c := range s.Clients {
		if c.ID != exceptID && SameUsername(c.Username, username) {
			return true
		}
	}
	return false
}
