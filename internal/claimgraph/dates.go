package claimgraph

import (
	"strings"
	"time"
)

// Precision records how much of a genealogical date is known.
type Precision int

const (
	PrecisionYear Precision = iota + 1
	PrecisionMonth
	PrecisionDay
)

// Date is a parsed genealogical date. Unknown month/day components are set to
// January / the 1st so comparisons stay total.
type Date struct {
	Time      time.Time
	Precision Precision
}

var dayLayouts = []string{
	"2006-01-02",
	"2006-1-2",
	"2006/01/02",
	"2 Jan 2006",
	"02 Jan 2006",
	"2 January 2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

var monthLayouts = []string{
	"2006-01",
	"Jan 2006",
	"January 2006",
}

// gedcomQualifiers prefix approximate dates in GEDCOM exports. The date that
// follows is used as-is.
var gedcomQualifiers = map[string]bool{
	"abt": true, "about": true, "bef": true, "before": true, "aft": true,
	"after": true, "est": true, "cal": true, "circa": true, "c": true,
	"ca": true, "bet": true, "from": true, "int": true,
}

// ParseDate parses the date formats found in GEDCOM and WikiTree ingestion.
// It returns false for values it cannot read; callers treat that as missing.
func ParseDate(raw string) (Date, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Date{}, false
	}

	fields := strings.Fields(s)
	for len(fields) > 0 && gedcomQualifiers[strings.ToLower(strings.TrimSuffix(fields[0], "."))] {
		fields = fields[1:]
	}
	// "BET 1900 AND 1910" and "FROM 1900 TO 1910" keep the lower bound.
	for i, f := range fields {
		if l := strings.ToLower(f); l == "and" || l == "to" {
			fields = fields[:i]
			break
		}
	}
	s = strings.Join(fields, " ")
	if s == "" {
		return Date{}, false
	}

	for _, layout := range dayLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Date{Time: t, Precision: PrecisionDay}, true
		}
	}
	for _, layout := range monthLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Date{Time: t, Precision: PrecisionMonth}, true
		}
	}
	if t, err := time.Parse("2006", s); err == nil {
		return Date{Time: t, Precision: PrecisionYear}, true
	}
	return Date{}, false
}

// Canonical renders the date at its own precision.
func (d Date) Canonical() string {
	switch d.Precision {
	case PrecisionYear:
		return d.Time.Format("2006")
	case PrecisionMonth:
		return d.Time.Format("2006-01")
	default:
		return d.Time.Format("2006-01-02")
	}
}

func (d Date) Before(other Date) bool { return d.Time.Before(other.Time) }

func (d Date) Year() int { return d.Time.Year() }

// CompletedYears returns the number of full calendar years from one date to
// another, the way an age is counted. It is negative when to precedes from.
func CompletedYears(from, to time.Time) int {
	if to.Before(from) {
		return -CompletedYears(to, from)
	}
	years := to.Year() - from.Year()
	if to.Month() < from.Month() || (to.Month() == from.Month() && to.Day() < from.Day()) {
		years--
	}
	return years
}

// DayDistance returns the absolute number of days between two dates.
func DayDistance(a, b time.Time) int {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return int(d.Hours() / 24)
}
