package core

import (
	"errors"
	"strings"
)

type (
	PaymentStatus string
	ExpenseType   string
)

const (
	StatusUnpaid  PaymentStatus = "Unpaid"
	StatusPartial PaymentStatus = "Partial"
	StatusPaid    PaymentStatus = "Paid"

	Credit ExpenseType = "Credit"
	Debit  ExpenseType = "Debit"
)

// Defaults applied when a client is missing plan details.
const (
	DefaultClientType       = "Home User"
	DefaultLineType         = "Cat5"
	DefaultBandwidthPackage = "10 Mbps"
	DefaultArea             = "General"
)

type (
	// Client is a subscriber. Clients are archived when they leave and only
	// removed by an explicit permanent delete.
	Client struct {
		ID               string            `json:"id"`
		ClientID         string            `json:"clientId"` // display id shown on bills
		Username         string            `json:"username"`
		Name             string            `json:"name"`
		ContactNumber    string            `json:"contactNumber"`
		FullAddress      string            `json:"fullAddress"`
		Area             string            `json:"area"`
		LineType         string            `json:"lineType,omitempty"`
		BandwidthPackage string            `json:"bandwidthPackage,omitempty"`
		ClientType       string            `json:"clientType,omitempty"`
		BaseMonthlyFee   Money             `json:"baseMonthlyFee"`
		IsActive         bool              `json:"isActive"`
		IsArchived       bool              `json:"isArchived"`
		JoiningDate      string            `json:"joiningDate,omitempty"`
		LeftDate         string            `json:"leftDate,omitempty"`
		CustomFields     map[string]string `json:"customFields,omitempty"`
		AssignedAssets   []ClientAsset     `json:"assignedAssets,omitempty"`
	}

	// MonthlyRecord is one client's bill for one month. Client display fields
	// are copied at creation so old bills keep their original details.
	MonthlyRecord struct {
		ID               string            `json:"id"`
		ClientID         string            `json:"clientId"`
		DisplayClientID  string            `json:"displayClientId"`
		MonthKey         string            `json:"monthKey"`
		ClientName       string            `json:"clientName"`
		Username         string            `json:"username"`
		Area             string            `json:"area"`
		ClientType       string            `json:"clientType"`
		LineType         string            `json:"lineType"`
		BandwidthPackage string            `json:"bandwidthPackage"`
		Contact          string            `json:"contact"`
		Address          string            `json:"address"`
		IsActive         bool              `json:"isActive"`
		BillDate         string            `json:"billDate"`
		PayableAmount    Money             `json:"payableAmount"`
		PaidAmount       Money             `json:"paidAmount"`
		Status           PaymentStatus     `json:"status"`
		OverdueMonths    int               `json:"overdueMonths"`
		Remarks          string            `json:"remarks"`
		PaymentDate      string            `json:"paymentDate"`
		ReceiptNo        string            `json:"receiptNo"`
		CustomFields     map[string]string `json:"customFields,omitempty"`
	}

	// ExpenseTransaction is a cash ledger line.
	ExpenseTransaction struct {
		ID          string      `json:"id"`
		Date        string      `json:"date"`
		Amount      Money       `json:"amount"`
		Type        ExpenseType `json:"type"`
		Category    string      `json:"category,omitempty"`
		Description string      `json:"description"`
		RecordID    string      `json:"recordId,omitempty"`
	}
)

var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation failed")
	ErrDuplicateMonth     = errors.New("records for this month already exist")
	ErrInvalidMonthKey    = errors.New("invalid month key")
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrEmptyName          = errors.New("empty name")
	ErrEmptyUsername      = errors.New("empty username")
	ErrDuplicateUsername  = errors.New("username already exists")
	ErrEmptyDescription   = errors.New("empty description")
	ErrInvalidExpenseType = errors.New("invalid expense type")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidQuantity    = errors.New("invalid quantity")
	ErrClientArchived     = errors.New("client is archived")
	ErrStale              = errors.New("state was changed by another writer")
)

// Due is the unpaid remainder, which may be negative for overpayments.
func (r MonthlyRecord) Due() Money {
	return r.PayableAmount.Sub(r.PaidAmount)
}

func (c Client) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if strings.TrimSpace(c.Username) == "" {
		return ErrEmptyUsername
	}
	if c.BaseMonthlyFee.IsNegative() {
		return ErrInvalidAmount
	}
	if c.JoiningDate != "" {
		if _, err := ParseDate(c.JoiningDate); err != nil {
			return err
		}
	}
	return nil
}

func (r MonthlyRecord) Validate() error {
	if _, err := ParseMonthKey(r.MonthKey); err != nil {
		return err
	}
	if r.PayableAmount.IsNegative() || r.PaidAmount.IsNegative() {
		return ErrInvalidAmount
	}
	if r.PaymentDate != "" {
		if _, err := ParseDate(r.PaymentDate); err != nil {
			return err
		}
	}
	return nil
}

func (e ExpenseTransaction) Validate() error {
	if _, err := ParseDate(e.Date); err != nil {
		return err
	}
	if e.Type != Credit && e.Type != Debit {
		return ErrInvalidExpenseType
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(e.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	return e.Amount.Validate()
}

// SameUsername compares usernames the way duplicates are detected on import.
func SameUsername(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
