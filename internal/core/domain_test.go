package core

import (
	"errors"
	"testing"
	"time"
)

func TestParseMonthKey(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"2025-01", true},
		{"2025-12", true},
		{"2025-13", false},
		{"2025-1", false},
		{"25-01", false},
		{"", false},
	}
	for _, tc := range cases {
		_, err := ParseMonthKey(tc.in)
		if tc.ok && err != nil {
			t.Fatalf("%q expected ok, got %v", tc.in, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidMonthKey) {
			t.Fatalf("%q expected ErrInvalidMonthKey, got %v", tc.in, err)
		}
	}
}

func TestAddMonths(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"2025-01", 1, "2025-02"},
		{"2025-12", 1, "2026-01"},
		{"2025-01", -1, "2024-12"},
	}
	for _, tc := range cases {
		got, err := AddMonths(tc.in, tc.n)
		if err != nil || got != tc.want {
			t.Fatalf("AddMonths(%q,%d) = %q, %v; want %q", tc.in, tc.n, got, err, tc.want)
		}
	}
}

func TestClientValidate(t *testing.T) {
	good := Client{Name: "Rahim", Username: "rahim01", BaseMonthlyFee: NewMoney(500)}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Client{
		{Name: "", Username: "u"},
		{Name: "n", Username: "  "},
		{Name: "n", Username: "u", BaseMonthlyFee: NewMoney(-1)},
		{Name: "n", Username: "u", JoiningDate: "yesterday"},
	}
	for i, c := range bads {
		if err := c.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestExpenseValidate(t *testing.T) {
	good := ExpenseTransaction{Date: "2025-01-05", Amount: NewMoney(100), Type: Debit, Description: "Rent"}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []ExpenseTransaction{
		{Date: "2025/01/05", Amount: NewMoney(1), Type: Debit, Description: "a"},
		{Date: "2025-01-05", Amount: NewMoney(1), Type: "Other", Description: "a"},
		{Date: "2025-01-05", Amount: NewMoney(1), Type: Credit, Description: ""},
		{Date: "2025-01-05", Amount: Zero, Type: Credit, Description: "a"},
	}
	for i, e := range bads {
		if err := e.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	s := InitialState(time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC))
	s.Clients = append(s.Clients, Client{ID: "c1", Name: "A", Username: "a", CustomFields: map[string]string{"onu": "x"}})
	s.Records = append(s.Records, MonthlyRecord{ID: "r1", ClientID: "c1", MonthKey: "2025-01"})

	c := s.Clone()
	c.Clients[0].CustomFields["onu"] = "y"
	c.Records[0].Remarks = "changed"
	c.Settings.CustomHeaders["name"] = "Subscriber"

	if s.Clients[0].CustomFields["onu"] != "x" {
		t.Fatalf("clone shares client custom fields")
	}
	if s.Records[0].Remarks != "" {
		t.Fatalf("clone shares records")
	}
	if s.Settings.CustomHeaders["name"] != "Client Name" {
		t.Fatalf("clone shares settings headers")
	}
}

func TestUsernameTaken(t *testing.T) {
	s := GlobalState{Clients: []Client{{ID: "c1", Username: "Karim"}}}
	if !s.UsernameTaken(" karim ", "") {
		t.Fatalf("expected case-insensitive match")
	}
	if s.UsernameTaken("karim", "c1") {
		t.Fatalf("expected own username to be ignored")
	}
}
