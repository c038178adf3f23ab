package main

import (
	"time"
)

const dateLayout = "2006-01-02"

// parseDate parses a YYYY-MM-DD string as midnight UTC.
func parseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

// today returns the current date at midnight UTC.
func today() time.Time {
	return time.Now().UTC().Truncate(24 * time.Hour)
}

// mondayOf returns the Monday of the week containing t, at midnight UTC.
// AddDate keeps month and year boundaries correct.
func mondayOf(t time.Time) time.Time {
	weekday := int(t.Weekday()) // 0=Sun
	if weekday == 0 {
		weekday = 7 // treat Sunday as day 7 so Mon=1..Sun=7
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return d.AddDate(0, 0, -(weekday - 1))
}

// currentMonday returns the Monday of the current week at midnight UTC.
func currentMonday() time.Time {
	return mondayOf(time.Now().UTC())
}

// daysInclusive counts calendar days in [start, end].
func daysInclusive(start, end time.Time) int {
	return int(end.Sub(start).Hours()/24) + 1
}

// parseOptionalDate parses s, returning def when s is empty. field names the
// query parameter in the error message.
func parseOptionalDate(s, field string, def time.Time) (time.Time, error) {
	if s == "" {
		return def, nil
	}
	t, err := parseDate(s)
	if err != nil {
		return time.Time{}, invalidf("invalid %s, expected YYYY-MM-DD", field)
	}
	return t, nil
}

// parseDateRange validates a required start/end pair. maxDays of 0 disables
// the length check.
func parseDateRange(start, end string, maxDays int) (time.Time, time.Time, error) {
	if start == "" || end == "" {
		return time.Time{}, time.Time{}, invalidf("start and end query params are required")
	}
	s, err := parseDate(start)
	if err != nil {
		return time.Time{}, time.Time{}, invalidf("invalid start, expected YYYY-MM-DD")
	}
	e, err := parseDate(end)
	if err != nil {
		return time.Time{}, time.Time{}, invalidf("invalid end, expected YYYY-MM-DD")
	}
	if s.After(e) {
		return time.Time{}, time.Time{}, invalidf("start must not be after end")
	}
	if maxDays > 0 && daysInclusive(s, e) > maxDays {
		return time.Time{}, time.Time{}, invalidf("date range must not exceed %d days", maxDays)
	}
	return s, e, nil
}
