package store

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"ispledger/internal/core"
	"ispledger/internal/log"
)

// ClientInput carries the editable fields of a client.
type ClientInput struct {
	ClientID         string            `json:"clientId"`
	Username         string            `json:"username" validate:"required,max=64"`
	Name             string            `json:"name" validate:"required,max=120"`
	ContactNumber    string            `json:"contactNumber" validate:"max=32"`
	FullAddress      string            `json:"fullAddress" validate:"max=255"`
	Area             string            `json:"area" validate:"max=64"`
	LineType         string            `json:"lineType"`
	BandwidthPackage string            `json:"bandwidthPackage"`
	ClientType       string            `json:"clientType"`
	BaseMonthlyFee   core.Money        `json:"baseMonthlyFee"`
	JoiningDate      string            `json:"joiningDate" validate:"omitempty,datetime=2006-01-02"`
	IsActive         *bool             `json:"isActive,omitempty"`
	CustomFields     map[string]string `json:"customFields,omitempty"`
}

// ImportResult summarizes a bulk client import.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// Bill remarks written by client lifecycle operations.
const (
	RemarkNewClient = "New Client"
	RemarkImported  = "Imported from Excel"
	RemarkRestored  = "Restored"
	RemarkLeft      = "Left"
)

// AddClient registers a subscriber and opens their bill for the current
// view month.
func (s *Store) AddClient(ctx context.Context, in ClientInput) (core.Client, error) {
	var client core.Client
	_, err := s.update(ctx, log.OpCreate, func(st *core.GlobalState) error {
		if st.UsernameTaken(in.Username, "") {
			return fmt.Errorf("%w: %s", core.ErrDuplicateUsername, in.Username)
		}
		c := s.newClient(in, st)
		if err := c.Validate(); err != nil {
			return err
		}
		st.Clients = append(st.Clients, c)
		st.Records = append(st.Records, s.openingRecord(c, st.CurrentViewMonth, RemarkNewClient))
		client = c
		return nil
	})
	if err != nil {
		return core.Client{}, err
	}
	s.logger.InfoContext(ctx, "Client added", log.FieldClientID, client.ID, "username", client.Username)
	return client, nil
}

// ImportClients adds clients in bulk. Rows missing a name or username, and
// rows whose username already exists (case-insensitive), are skipped.
func (s *Store) ImportClients(ctx context.Context, rows []ClientInput) (ImportResult, error) {
	var res ImportResult
	_, err := s.update(ctx, log.OpImport, func(st *core.GlobalState) error {
		res = ImportResult{}
		for _, in := range rows {
			in.Name = strings.TrimSpace(in.Name)
			in.Username = strings.TrimSpace(in.Username)
			if in.Name == "" || in.Username == "" || st.UsernameTaken(in.Username, "") {
				res.Skipped++
				continue
			}
			in.ClientID = ""
			c := s.newClient(in, st)
			if err := c.Validate(); err != nil {
				res.Skipped++
				continue
			}
			st.Clients = append(st.Clients, c)
			st.Records = append(st.Records, s.openingRecord(c, st.CurrentViewMonth, RemarkImported))
			res.Imported++
		}
		if res.Imported == 0 {
			return errNothingImported
		}
		return nil
	})
	if errors.Is(err, errNothingImported) {
		return res, nil
	}
	if err != nil {
		return ImportResult{}, err
	}
	s.logger.InfoContext(ctx, "Clients imported", "imported", res.Imported, "skipped", res.Skipped)
	return res, nil
}

// errNothingImported aborts the update without saving.
var errNothingImported = errors.New("no clients imported")

// UpdateClient edits a client's profile. The current view month's bill is
// refreshed with the new display details; older bills keep theirs.
func (s *Store) UpdateClient(ctx context.Context, id string, in ClientInput) (core.Client, error) {
	var client core.Client
	_, err := s.update(ctx, log.OpUpdate, func(st *core.GlobalState) error {
		i := st.ClientIndex(id)
		if i < 0 {
			return fmt.Errorf("client %s: %w", id, core.ErrNotFound)
		}
		if st.UsernameTaken(in.Username, id) {
			return fmt.Errorf("%w: %s", core.ErrDuplicateUsername, in.Username)
		}
		c := st.Clients[i]
		c.Name = in.Name
		c.Username = in.Username
		c.ContactNumber = in.ContactNumber
		c.FullAddress = in.FullAddress
		c.Area = orDefault(in.Area, c.Area)
		c.LineType = orDefault(in.LineType, c.LineType)
		c.BandwidthPackage = orDefault(in.BandwidthPackage, c.BandwidthPackage)
		c.ClientType = orDefault(in.ClientType, c.ClientType)
		c.BaseMonthlyFee = in.BaseMonthlyFee
		if in.ClientID != "" {
			c.ClientID = in.ClientID
		}
		if in.JoiningDate != "" {
			c.JoiningDate = in.JoiningDate
		}
		if in.IsActive != nil {
			c.IsActive = *in.IsActive
		}
		if in.CustomFields != nil {
			c.CustomFields = in.CustomFields
		}
		if err := c.Validate(); err != nil {
			return err
		}
		st.Clients[i] = c

		for j, r := range st.Records {
			if r.ClientID != c.ID || r.MonthKey != st.CurrentViewMonth {
				continue
			}
			r.ClientName = c.Name
			r.Username = c.Username
			r.DisplayClientID = c.ClientID
			r.Contact = c.ContactNumber
			r.Address = c.FullAddress
			r.Area = c.Area
			r.LineType = c.LineType
			r.BandwidthPackage = c.BandwidthPackage
			r.ClientType = c.ClientType
			r.IsActive = c.IsActive
			st.Records[j] = r
		}
		client = c
		return nil
	})
	return client, err
}

// MarkLeft archives a client. Bills from the view month onwards are
// flagged inactive and annotated.
func (s *Store) MarkLeft(ctx context.Context, id string) error {
	_, err := s.update(ctx, log.OpUpdate, func(st *core.GlobalState) error {
		i := st.ClientIndex(id)
		if i < 0 {
			return fmt.Errorf("client %s: %w", id, core.ErrNotFound)
		}
		st.Clients[i].IsActive = false
		st.Clients[i].IsArchived = true
		st.Clients[i].LeftDate = core.DateOf(s.now())

		for j, r := range st.Records {
			if r.ClientID != id || r.MonthKey < st.CurrentViewMonth {
				continue
			}
			r.IsActive = false
			if r.Remarks != "" {
				r.Remarks += " (" + RemarkLeft + ")"
			} else {
				r.Remarks = RemarkLeft
			}
			st.Records[j] = r
		}
		return nil
	})
	if err == nil {
		s.logger.InfoContext(ctx, "Client marked as left", log.FieldClientID, id)
	}
	return err
}

// Restore brings an archived client back into billing.
func (s *Store) Restore(ctx context.Context, id string) error {
	_, err := s.update(ctx, log.OpUpdate, func(st *core.GlobalState) error {
		i := st.ClientIndex(id)
		if i < 0 {
			return fmt.Errorf("client %s: %w", id, core.ErrNotFound)
		}
		st.Clients[i].IsArchived = false
		st.Clients[i].IsActive = true
		st.Clients[i].LeftDate = ""

		for j, r := range st.Records {
			if r.ClientID == id && r.MonthKey == st.CurrentViewMonth {
				st.Records[j].IsActive = true
				st.Records[j].Remarks = RemarkRestored
			}
		}
		return nil
	})
	return err
}

// DeleteClientPermanently removes a client together with all their bills.
func (s *Store) DeleteClientPermanently(ctx context.Context, id string) error {
	var removed int
	_, err := s.update(ctx, log.OpDelete, func(st *core.GlobalState) error {
		removed = 0
		i := st.ClientIndex(id)
		if i < 0 {
			return fmt.Errorf("client %s: %w", id, core.ErrNotFound)
		}
		st.Clients = append(st.Clients[:i:i], st.Clients[i+1:]...)
		kept := st.Records[:0:0]
		for _, r := range st.Records {
			if r.ClientID == id {
				removed++
				continue
			}
			kept = append(kept, r)
		}
		st.Records = kept
		return nil
	})
	if err == nil {
		s.logger.WarnContext(ctx, "Client deleted permanently", log.FieldClientID, id, "records_removed", removed)
	}
	return err
}

func (s *Store) newClient(in ClientInput, st *core.GlobalState) core.Client {
	fee := in.BaseMonthlyFee
	pkg := orDefault(in.BandwidthPackage, core.DefaultBandwidthPackage)
	if fee.IsZero() {
		if price, ok := st.Settings.PackagePrice(pkg); ok {
			fee = price
		}
	}
	displayID := strings.TrimSpace(in.ClientID)
	if displayID == "" {
		displayID = shortID(st)
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	return core.Client{
		ID:               s.newID(),
		ClientID:         displayID,
		Username:         strings.TrimSpace(in.Username),
		Name:             strings.TrimSpace(in.Name),
		ContactNumber:    in.ContactNumber,
		FullAddress:      in.FullAddress,
		Area:             orDefault(in.Area, core.DefaultArea),
		LineType:         orDefault(in.LineType, core.DefaultLineType),
		BandwidthPackage: pkg,
		ClientType:       orDefault(in.ClientType, core.DefaultClientType),
		BaseMonthlyFee:   fee,
		IsActive:         active,
		JoiningDate:      orDefault(in.JoiningDate, core.DateOf(s.now())),
		CustomFields:     in.CustomFields,
		AssignedAssets:   []core.ClientAsset{},
	}
}

func (s *Store) openingRecord(c core.Client, monthKey, remarks string) core.MonthlyRecord {
	return core.MonthlyRecord{
		ID:               s.newID(),
		ClientID:         c.ID,
		DisplayClientID:  c.ClientID,
		MonthKey:         monthKey,
		ClientName:       c.Name,
		Username:         c.Username,
		Area:             c.Area,
		ClientType:       c.ClientType,
		LineType:         c.LineType,
		BandwidthPackage: c.BandwidthPackage,
		Contact:          c.ContactNumber,
		Address:          c.FullAddress,
		IsActive:         c.IsActive,
		BillDate:         s.now().UTC().Format(time.RFC3339),
		PayableAmount:    c.BaseMonthlyFee,
		PaidAmount:       core.Zero,
		Status:           core.StatusUnpaid,
		OverdueMonths:    0,
		Remarks:          remarks,
		CustomFields:     maps.Clone(c.CustomFields),
	}
}

// shortID picks a random unused 4-digit display id.
func shortID(st *core.GlobalState) string {
	used := make(map[string]struct{}, len(st.Clients))
	for _, c := range st.Clients {
		used[c.ClientID] = struct{}{}
	}
	for range 50 {
		id := strconv.Itoa(1000 + rand.IntN(9000))
		if _, taken := used[id]; !taken {
			return id
		}
	}
	return strconv.Itoa(1000 + rand.IntN(9000))
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
