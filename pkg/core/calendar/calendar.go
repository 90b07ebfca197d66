package calendar

import (
	"fmt"
	"time"
)

// ISOLayout is the zero-padded Y-M-D layout used for every date key in an event record
const ISOLayout = "2006-01-02"

// ISO formats t as a local calendar date. The wall-clock fields of t are used
// directly so no timezone conversion can shift the day.
func ISO(t time.Time) string {
	return fmt.Sprintf("%04d-%02d-%02d", t.Year(), int(t.Month()), t.Day())
}

// Parse parses an ISO date into local midnight of that calendar day
func Parse(iso string) (time.Time, error) {
	t, err := time.ParseInLocation(ISOLayout, iso, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid ISO date %q: %w", iso, err)
	}
	return t, nil
}

// Midnight returns local midnight of the calendar day containing t
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// AddDays moves t by n calendar days. time.AddDate normalises through the
// calendar rather than adding 24h multiples, so DST transitions never skip
// or repeat a day.
func AddDays(t time.Time, n int) time.Time {
	return Midnight(t).AddDate(0, 0, n)
}

// NextDay returns the ISO date one calendar day after iso
func NextDay(iso string) (string, error) {
	t, err := Parse(iso)
	if err != nil {
		return "", err
	}
	return ISO(AddDays(t, 1)), nil
}

// Horizon returns days consecutive ISO dates starting at local midnight of from (inclusive)
func Horizon(from time.Time, days int) []string {
	if days <= 0 {
		return nil
	}
	start := Midnight(from)
	dates := make([]string, days)
	for i := 0; i < days; i++ {
		dates[i] = ISO(start.AddDate(0, 0, i))
	}
	return dates
}

// DaysInMonth returns the number of days in the given month
func DaysInMonth(year int, month time.Month) int {
	// Day 0 of the following month is the last day of this one
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// MonthDates returns every ISO date of the given month in order
func MonthDates(year int, month time.Month) []string {
	n := DaysInMonth(year, month)
	dates := make([]string, n)
	for d := 1; d <= n; d++ {
		dates[d-1] = ISO(time.Date(year, month, d, 0, 0, 0, 0, time.Local))
	}
	return dates
}

// ParseMonth parses a "YYYY-MM" string
func ParseMonth(s string) (int, time.Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid month %q (expected YYYY-MM): %w", s, err)
	}
	return t.Year(), t.Month(), nil
}
