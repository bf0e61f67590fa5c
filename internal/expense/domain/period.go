package domain

import (
	"errors"
	"time"
)

// Period is a calendar month in "YYYY-MM" form. All billing state keys
// on it.
type Period string

var ErrInvalidPeriod = errors.New("invalid_period")

const periodLayout = "2006-01"

// ParsePeriod validates and normalizes a "YYYY-MM" string.
func ParsePeriod(raw string) (Period, error) {
	t, err := time.Parse(periodLayout, raw)
	if err != nil {
		return "", ErrInvalidPeriod
	}
	return Period(t.Format(periodLayout)), nil
}

// PeriodOf returns the period containing the given instant.
func PeriodOf(t time.Time) Period {
	return Period(t.UTC().Format(periodLayout))
}

func (p Period) String() string { return string(p) }

// Valid reports whether the period parses.
func (p Period) Valid() bool {
	_, err := ParsePeriod(string(p))
	return err == nil
}

// Start is the first instant of the period, UTC.
func (p Period) Start() time.Time {
	t, _ := time.Parse(periodLayout, string(p))
	return t
}

// End is the first instant of the next period, so [Start, End) covers
// the month.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

// Next returns the following calendar month.
func (p Period) Next() Period {
	return PeriodOf(p.End())
}

// Compact is the period without the separator, used in invoice numbers.
func (p Period) Compact() string {
	return p.Start().Format("200601")
}
