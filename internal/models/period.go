package models

import (
	"fmt"
	"strings"
	"time"
)

const periodLayout = "2006-01"

// Period is a calendar month, the unit every payroll computation is keyed by.
type Period struct {
	Year  int
	Month time.Month
}

// ParsePeriod parses a YYYY-MM string.
func ParsePeriod(raw string) (Period, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) != len(periodLayout) {
		return Period{}, fmt.Errorf("invalid period %q", raw)
	}
	t, err := time.Parse(periodLayout, raw)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q: %w", raw, err)
	}
	return Period{Year: t.Year(), Month: t.Month()}, nil
}

// Start returns the first day of the month in UTC.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the first day of the following month, exclusive.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

func (p Period) String() string {
	return p.Start().Format(periodLayout)
}
