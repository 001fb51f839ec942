// Package window computes the UTC bounds of a civil day in a fixed-offset zone.
package window

import (
	"fmt"
	"regexp"
	"time"
)

// Window is the half-open interval [Start, End) in UTC.
type Window struct {
	Start time.Time
	End   time.Time
	loc   *time.Location
}

// Yesterday returns the window covering the civil day before now in loc.
func Yesterday(now time.Time, loc *time.Location) Window {
	local := now.In(loc)
	startToday := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return Window{
		Start: startToday.AddDate(0, 0, -1).UTC(),
		End:   startToday.UTC(),
		loc:   loc,
	}
}

// ForDate returns the window of the civil day d (YYYY-MM-DD) in loc.
func ForDate(d string, loc *time.Location) (Window, error) {
	day, err := time.ParseInLocation("2006-01-02", d, loc)
	if err != nil {
		return Window{}, fmt.Errorf("parse date %q: %w", d, err)
	}
	return Window{
		Start: day.UTC(),
		End:   day.AddDate(0, 0, 1).UTC(),
		loc:   loc,
	}, nil
}

// Contains reports whether t falls inside [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Day returns the local civil date the window covers.
func (w Window) Day() time.Time {
	loc := w.loc
	if loc == nil {
		loc = time.UTC
	}
	s := w.Start.In(loc)
	return time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, time.UTC)
}

// DateLabel is the ISO date of the covered day, e.g. 2024-01-15.
func (w Window) DateLabel() string {
	return w.Day().Format("2006-01-02")
}

// FileLabel is the compact date used in dataset file names, e.g. 20240115.
func (w Window) FileLabel() string {
	return w.Day().Format("20060102")
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

var eightDigits = regexp.MustCompile(`(\d{8})`)

// LabelFromFileName extracts the first 8-digit group of name as YYYY-MM-DD.
// Returns false if the name carries no such group.
func LabelFromFileName(name string) (string, bool) {
	m := eightDigits.FindString(name)
	if m == "" {
		return "", false
	}
	return m[:4] + "-" + m[4:6] + "-" + m[6:], true
}

// FileLabelFromDate converts YYYY-MM-DD into YYYYMMDD.
func FileLabelFromDate(d string) (string, error) {
	t, err := time.Parse("2006-01-02", d)
	if err != nil {
		return "", fmt.Errorf("parse date %q: %w", d, err)
	}
	return t.Format("20060102"), nil
}
