// Package feed holds the normalized shape of inbound call-outcome feed rows.
// Upstream delivery formats (CSV exports, spreadsheet dumps) are parsed before
// they reach this package; everything here works on already-extracted fields.
package feed

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrDateParse indicates a reported_date value that could not be interpreted.
var ErrDateParse = errors.New("feed: unparseable reported date")

// Row is a single call-outcome record from the external dialer feed.
type Row struct {
	ReportedDate     string            `json:"reported_date"`
	MobileNumber     string            `json:"mobile_number"`
	FullName         string            `json:"full_name"`
	OutcomeCode      string            `json:"outcome_code"`
	AttendanceMarker string            `json:"attendance_marker"`
	Remarks          []string          `json:"remarks,omitempty"`
	Extra            map[string]string `json:"extra,omitempty"`
}

// Batch groups the rows of one feed delivery.
type Batch struct {
	BatchID    string    `json:"batch_id"`
	Source     string    `json:"source"`
	Rows       []Row     `json:"rows"`
	ReceivedAt time.Time `json:"received_at"`
}

// ParseReportedDate interprets the dialer's day-first date strings: day,
// month and a two- or four-digit year, separated by "/" or "-". A trailing
// time fragment ("2/3/25 14:05") is ignored. The result is midnight in loc.
func ParseReportedDate(s string, loc *time.Location) (time.Time, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrDateParse)
	}

	datePart := raw
	if i := strings.IndexAny(raw, " \t"); i >= 0 {
		datePart = raw[:i]
	}

	sep := "/"
	if !strings.Contains(datePart, "/") {
		sep = "-"
	}
	parts := strings.Split(datePart, sep)
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrDateParse, s)
	}

	day, err1 := strconv.Atoi(parts[0])
	month, err2 := strconv.Atoi(parts[1])
	year, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrDateParse, s)
	}
	if year < 100 {
		year += 2000
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrDateParse, s)
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	// time.Date normalizes out-of-range days (31/4 becomes 1/5); treat that
	// as a bad value rather than silently shifting the appointment date.
	if t.Day() != day || t.Month() != time.Month(month) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrDateParse, s)
	}
	return t, nil
}

// HasAttendance reports whether the marker column indicates the customer
// actually showed up. The feed uses "n/a" (in assorted casings) for blanks.
func HasAttendance(marker string) bool {
	m := strings.TrimSpace(marker)
	if m == "" {
		return false
	}
	return !strings.EqualFold(m, "n/a")
}
