package domain

import "time"

// DateOf truncates t to its calendar date, expressed as midnight UTC.
// Bill, due and reading dates are all compared as calendar dates.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole number of calendar days from a to b, never negative.
func DaysBetween(a, b time.Time) int {
	days := int(DateOf(b).Sub(DateOf(a)).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
