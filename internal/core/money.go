// Package core provides money parsing and handling utilities.
//
// Amounts are stored in the state document as plain JSON numbers (the
// currency has no fixed minor unit in the field data), so Money wraps a
// decimal and marshals without quotes.
package core

import (
	"bytes"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an exact decimal amount in the company currency.
type Money struct {
	d decimal.Decimal
}

// Zero is the zero amount.
var Zero = Money{}

// NewMoney returns a Money from an integer number of currency units.
func NewMoney(units int64) Money {
	return Money{d: decimal.NewFromInt(units)}
}

// MoneyFromFloat converts a float, used only for values read from spreadsheets.
func MoneyFromFloat(f float64) Money {
	return Money{d: decimal.NewFromFloat(f)}
}

// ParseMoney parses a decimal string.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators, as well as
// a leading currency symbol and thousands separators written with spaces.
// Negative values are rejected.
//
// Examples:
//
//	ParseMoney("500")    -> 500, nil
//	ParseMoney("12,50")  -> 12.5, nil
//	ParseMoney("৳ 800")  -> 800, nil
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "৳$€ ")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return Zero, ErrInvalidAmount
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, ErrInvalidAmount
	}
	if d.IsNegative() {
		return Zero, ErrInvalidAmount
	}
	return Money{d: d}, nil
}

func (m Money) Add(o Money) Money { return Money{d: m.d.Add(o.d)} }
func (m Money) Sub(o Money) Money { return Money{d: m.d.Sub(o.d)} }

// Mul multiplies by an integer quantity.
func (m Money) Mul(qty int) Money { return Money{d: m.d.Mul(decimal.NewFromInt(int64(qty)))} }

func (m Money) Neg() Money               { return Money{d: m.d.Neg()} }
func (m Money) IsZero() bool             { return m.d.IsZero() }
func (m Money) IsPositive() bool         { return m.d.IsPositive() }
func (m Money) IsNegative() bool         { return m.d.IsNegative() }
func (m Money) Cmp(o Money) int          { return m.d.Cmp(o.d) }
func (m Money) Equal(o Money) bool       { return m.d.Equal(o.d) }
func (m Money) GreaterThan(o Money) bool { return m.d.GreaterThan(o.d) }

// Float64 returns the value as a float for display and charting only.
func (m Money) Float64() float64 {
	f, _ := m.d.Float64()
	return f
}

// Ratio returns m/o, or zero when o is zero.
func (m Money) Ratio(o Money) float64 {
	if o.d.IsZero() {
		return 0
	}
	f, _ := m.d.Div(o.d).Float64()
	return f
}

// String renders the shortest exact representation ("500", "500.5").
func (m Money) String() string {
	return m.d.String()
}

// Format renders the amount with a currency symbol and two decimals.
func (m Money) Format(symbol string) string {
	return symbol + " " + m.d.StringFixed(2)
}

func (m Money) Validate() error {
	if !m.d.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.d.String()), nil
}

func (m *Money) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		m.d = decimal.Zero
		return nil
	}
	// Older documents written by form inputs sometimes quote numbers.
	b = bytes.Trim(b, `"`)
	if len(b) == 0 {
		m.d = decimal.Zero
		return nil
	}
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return err
	}
	m.d = d
	return nil
}

// SumMoney adds up a list of amounts.
func SumMoney(ms ...Money) Money {
	total := Zero
	for _, m := range ms {
		total = total.Add(m)
	}
	return total
}
