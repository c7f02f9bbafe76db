package schema

import (
	"encoding/json"
	"fmt"

	"ispledger/internal/core"
)

// Steps returns the ordered migration steps.
func Steps() []Step {
	return []Step{
		{Version: 1, Name: "settings presentation defaults", Apply: settingsPresentation},
		{Version: 2, Name: "backup and billing defaults", Apply: backupDefaults},
		{Version: 3, Name: "inventory collections", Apply: inventoryCollections},
		{Version: 4, Name: "bandwidth package objects", Apply: bandwidthPackages},
		{Version: 5, Name: "network diagram", Apply: networkDiagram},
	}
}

// settings returns the settings object, creating it from defaults when the
// document has none.
func settings(doc Document) (map[string]any, error) {
	switch s := doc["settings"].(type) {
	case map[string]any:
		return s, nil
	case nil:
		m, err := toMap(core.DefaultSettings())
		if err != nil {
			return nil, err
		}
		doc["settings"] = m
		return m, nil
	default:
		return nil, fmt.Errorf("settings is %T, not an object", s)
	}
}

func settingsPresentation(doc Document, _ Env) error {
	s, err := settings(doc)
	if err != nil {
		return err
	}
	if order, ok := s["columnOrder"].([]any); !ok || len(order) == 0 {
		s["columnOrder"] = stringsToAny(core.DefaultColumnOrder())
	}
	if _, ok := s["dynamicFields"].([]any); !ok {
		s["dynamicFields"] = []any{}
	}

	headers := map[string]any{}
	for k, v := range core.DefaultHeaders() {
		headers[k] = v
	}
	if existing, ok := s["customHeaders"].(map[string]any); ok {
		for k, v := range existing {
			headers[k] = v
		}
	}
	if v, _ := headers["clientType"].(string); v == "" {
		headers["clientType"] = "Client Type"
	}
	s["customHeaders"] = headers
	return nil
}

func backupDefaults(doc Document, _ Env) error {
	s, err := settings(doc)
	if err != nil {
		return err
	}
	if _, ok := s["autoBackupEnabled"]; !ok {
		s["autoBackupEnabled"] = true
		s["lastBackupDate"] = ""
	}
	if _, ok := s["maxDueDate"]; !ok {
		s["maxDueDate"] = json.Number("10")
	}
	if v, _ := s["brandColor"].(string); v == "" {
		s["brandColor"] = "blue"
	}
	return nil
}

func inventoryCollections(doc Document, _ Env) error {
	for _, key := range []string{"clients", "records", "expenses", "inventory", "inventoryHistory"} {
		if _, ok := doc[key].([]any); !ok {
			doc[key] = []any{}
		}
	}
	return nil
}

// bandwidthPackages converts the first-generation list of package names
// into package objects.
func bandwidthPackages(doc Document, env Env) error {
	s, err := settings(doc)
	if err != nil {
		return err
	}
	list, ok := s["bandwidthPackages"].([]any)
	if !ok || len(list) == 0 {
		return nil
	}
	if _, legacy := list[0].(string); !legacy {
		return nil
	}
	out := make([]any, 0, len(list))
	for _, p := range list {
		name, _ := p.(string)
		out = append(out, map[string]any{
			"id":        env.NewID(),
			"name":      name,
			"bandwidth": name,
			"price":     json.Number("0"),
			"remark":    "",
		})
	}
	s["bandwidthPackages"] = out
	return nil
}

func networkDiagram(doc Document, _ Env) error {
	d, ok := doc["networkDiagram"].(map[string]any)
	if !ok {
		m, err := toMap(core.DefaultDiagram())
		if err != nil {
			return err
		}
		doc["networkDiagram"] = m
		return nil
	}
	if _, ok := d["rotation"]; !ok {
		d["rotation"] = json.Number("0")
	}
	return nil
}

func toMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	doc, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func stringsToAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
