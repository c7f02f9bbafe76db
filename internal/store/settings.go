package store

import (
	"context"
	"fmt"
	"strings"

	"ispledger/internal/core"
	"ispledger/internal/log"
)

// SettingsPatch holds the settings fields that can be changed from the
// settings screen. Nil fields are left unchanged.
type SettingsPatch struct {
	CompanyName        *string                 `json:"companyName,omitempty"`
	CompanyTagline     *string                 `json:"companyTagline,omitempty"`
	CompanyAddress     *string                 `json:"companyAddress,omitempty"`
	UserName           *string                 `json:"userName,omitempty"`
	CurrencySymbol     *string                 `json:"currencySymbol,omitempty"`
	Theme              *string                 `json:"theme,omitempty"`
	BrandColor         *string                 `json:"brandColor,omitempty"`
	CustomHeaders      map[string]string       `json:"customHeaders,omitempty"`
	ColumnOrder        []string                `json:"columnOrder,omitempty"`
	DynamicFields      []string                `json:"dynamicFields,omitempty"`
	AutoBackupEnabled  *bool                   `json:"autoBackupEnabled,omitempty"`
	LocalBackupEnabled *bool                   `json:"localBackupEnabled,omitempty"`
	CloudBackupEnabled *bool                   `json:"cloudBackupEnabled,omitempty"`
	AutoUpdateEnabled  *bool                   `json:"autoUpdateEnabled,omitempty"`
	MaxDueDate         *int                    `json:"maxDueDate,omitempty"`
	GoogleConnected    *bool                   `json:"googleCloudConnected,omitempty"`
	BandwidthPackages  []core.BandwidthPackage `json:"bandwidthPackages,omitempty"`
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// UpdateSettings merges a patch into the settings.
func (s *Store) UpdateSettings(ctx context.Context, p SettingsPatch) (core.Settings, error) {
	var out core.Settings
	_, err := s.update(ctx, log.OpUpdate, func(st *core.GlobalState) error {
		cfg := st.Settings
		setIf(&cfg.CompanyName, p.CompanyName)
		setIf(&cfg.CompanyTagline, p.CompanyTagline)
		setIf(&cfg.CompanyAddress, p.CompanyAddress)
		setIf(&cfg.UserName, p.UserName)
		setIf(&cfg.CurrencySymbol, p.CurrencySymbol)
		setIf(&cfg.Theme, p.Theme)
		setIf(&cfg.BrandColor, p.BrandColor)
		setIf(&cfg.AutoBackupEnabled, p.AutoBackupEnabled)
		setIf(&cfg.LocalBackupEnabled, p.LocalBackupEnabled)
		setIf(&cfg.CloudBackupEnabled, p.CloudBackupEnabled)
		setIf(&cfg.AutoUpdateEnabled, p.AutoUpdateEnabled)
		setIf(&cfg.GoogleConnected, p.GoogleConnected)
		if p.MaxDueDate != nil {
			if *p.MaxDueDate < 1 || *p.MaxDueDate > 31 {
				return fmt.Errorf("%w: max due date must be between 1 and 31", core.ErrValidation)
			}
			cfg.MaxDueDate = *p.MaxDueDate
		}
		for k, v := range p.CustomHeaders {
			if cfg.CustomHeaders == nil {
				cfg.CustomHeaders = make(map[string]string)
			}
			cfg.CustomHeaders[k] = v
		}
		if p.ColumnOrder != nil {
			cfg.ColumnOrder = p.ColumnOrder
		}
		if p.DynamicFields != nil {
			cfg.DynamicFields = dedupe(p.DynamicFields)
		}
		if p.BandwidthPackages != nil {
			for i, pkg := range p.BandwidthPackages {
				if strings.TrimSpace(pkg.Name) == "" {
					return fmt.Errorf("%w: package %d has no name", core.ErrValidation, i+1)
				}
				if pkg.Price.IsNegative() {
					return core.ErrInvalidAmount
				}
				if pkg.ID == "" {
					p.BandwidthPackages[i].ID = s.newID()
				}
			}
			cfg.BandwidthPackages = p.BandwidthPackages
		}
		st.Settings = cfg
		out = cfg
		return nil
	})
	return out, err
}

// SetCredentials replaces the stored access key and security answer
// hashes. Hashing is the caller's concern.
func (s *Store) SetCredentials(ctx context.Context, passwordHash, question, answerHash string) error {
	_, err := s.update(ctx, "credentials", func(st *core.GlobalState) error {
		if passwordHash != "" {
			st.Settings.PasswordHash = passwordHash
		}
		if question != "" {
			st.Settings.SecurityQuestion = question
		}
		if answerHash != "" {
			st.Settings.SecurityAnswerHash = answerHash
		}
		return nil
	})
	if err == nil {
		s.logger.InfoContext(ctx, "Credentials updated")
	}
	return err
}

// MarkBackedUp records the date of the last daily backup.
func (s *Store) MarkBackedUp(ctx context.Context, date string) error {
	if _, err := core.ParseDate(date); err != nil {
		return err
	}
	_, err := s.update(ctx, log.OpBackup, func(st *core.GlobalState) error {
		st.Settings.LastBackupDate = date
		return nil
	})
	return err
}

// SaveDiagram replaces the network diagram. Links pointing at missing
// nodes are dropped.
func (s *Store) SaveDiagram(ctx context.Context, d core.DiagramState) (core.DiagramState, error) {
	var out core.DiagramState
	_, err := s.update(ctx, log.OpUpdate, func(st *core.GlobalState) error {
		d = d.Clone()
		if d.Zoom <= 0 {
			d.Zoom = 1
		}
		nodes := make(map[string]struct{}, len(d.Nodes))
		for _, n := range d.Nodes {
			if n.ID == "" {
				return fmt.Errorf("%w: node without id", core.ErrValidation)
			}
			nodes[n.ID] = struct{}{}
		}
		links := d.Links[:0]
		for _, l := range d.Links {
			_, okFrom := nodes[l.From]
			_, okTo := nodes[l.To]
			if okFrom && okTo {
				links = append(links, l)
			}
		}
		d.Links = links
		st.NetworkDiagram = d
		out = d.Clone()
		return nil
	})
	return out, err
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
