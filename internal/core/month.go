package core

import (
	"fmt"
	"time"
)

const (
	monthKeyLayout = "2006-01"
	dateLayout     = "2006-01-02"
)

// ParseMonthKey parses a YYYY-MM key.
func ParseMonthKey(key string) (time.Time, error) {
	t, err := time.Parse(monthKeyLayout, key)
	if err != nil || len(key) != len(monthKeyLayout) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidMonthKey, key)
	}
	return t, nil
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// MonthKeyOf formats t as YYYY-MM.
func MonthKeyOf(t time.Time) string {
	return t.Format(monthKeyLayout)
}

// DateOf formats t as YYYY-MM-DD.
func DateOf(t time.Time) string {
	return t.Format(dateLayout)
}

// FirstOfMonth returns the YYYY-MM-01 date string for a month key.
func FirstOfMonth(key string) string {
	return key + "-01"
}

// AddMonths shifts a month key by n months.
func AddMonths(key string, n int) (string, error) {
	t, err := ParseMonthKey(key)
	if err != nil {
		return "", err
	}
	return MonthKeyOf(t.AddDate(0, n, 0)), nil
}

// MonthOf returns the month key of a YYYY-MM-DD date, or "" if malformed.
func MonthOf(date string) string {
	if len(date) < len(monthKeyLayout) {
		return ""
	}
	return date[:len(monthKeyLayout)]
}
