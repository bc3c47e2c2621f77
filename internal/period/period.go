// Package period implements calendar-safe rolling-period arithmetic for
// membership billing.
//
// All arithmetic is performed in the organization's civil calendar (a fixed
// timezone, Brussels by default) so that "day of month" stays stable across
// DST transitions and leap years. Instants are converted to the civil
// calendar at the boundary of every operation and returned on an absolute
// timeline.
//
// Periods are half-open intervals [start, end): for a fixed anchor and term,
// consecutive periods are contiguous, period(n).end == period(n+1).start.
package period

import (
	"fmt"
	"time"
)

// DefaultTimezone is the civil calendar used when no location is supplied.
const DefaultTimezone = "Europe/Brussels"

// TermUnit represents the calendar unit of a billing term.
type TermUnit string

const (
	// UnitMonth bills in whole months.
	UnitMonth TermUnit = "MONTH"
	// UnitYear bills in whole years.
	UnitYear TermUnit = "YEAR"
)

// IsValid checks if the term unit is a known value.
func (u TermUnit) IsValid() bool {
	return u == UnitMonth || u == UnitYear
}

// Term represents a billing term length, e.g. one month or one year.
type Term struct {
	Unit  TermUnit `json:"unit"`
	Count int      `json:"count"`
}

// Common terms.
var (
	Monthly   = Term{Unit: UnitMonth, Count: 1}
	Quarterly = Term{Unit: UnitMonth, Count: 3}
	Yearly    = Term{Unit: UnitYear, Count: 1}
)

// Months returns the term length in whole months.
func (t Term) Months() int {
	if t.Unit == UnitYear {
		return t.Count * 12
	}
	return t.Count
}

// Validate checks that the term can produce non-degenerate periods.
// Degenerate lengths (count <= 0) are the caller's error, not a state this
// package tolerates.
func (t Term) Validate() error {
	if !t.Unit.IsValid() {
		return fmt.Errorf("invalid term unit: %s", t.Unit)
	}
	if t.Count <= 0 {
		return fmt.Errorf("term count must be positive, got %d", t.Count)
	}
	return nil
}

// String returns a string representation of the Term.
func (t Term) String() string {
	return fmt.Sprintf("%d %s", t.Count, t.Unit)
}

// ParseTerm parses a term from its unit name, e.g. "MONTH" or "YEAR" with a
// count, accepting the common aliases used in member settings.
func ParseTerm(s string) (Term, error) {
	switch s {
	case "MONTHLY", "MONTH", "month", "monthly":
		return Monthly, nil
	case "QUARTERLY", "QUARTER", "quarterly":
		return Quarterly, nil
	case "YEARLY", "YEAR", "year", "yearly", "ANNUAL":
		return Yearly, nil
	default:
		return Term{}, fmt.Errorf("unknown term %q: must be MONTHLY, QUARTERLY or YEARLY", s)
	}
}

// Period is a half-open billing interval [Start, End).
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether the instant falls within [Start, End).
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// String returns a string representation of the Period.
func (p Period) String() string {
	return fmt.Sprintf("[%s, %s)", p.Start.Format("2006-01-02"), p.End.Format("2006-01-02"))
}

// Calculator performs rolling-period arithmetic in a fixed civil calendar.
type Calculator struct {
	loc *time.Location
}

// NewCalculator creates a calculator operating in the given location.
// A nil location selects the default Brussels calendar.
func NewCalculator(loc *time.Location) *Calculator {
	if loc == nil {
		loc, _ = time.LoadLocation(DefaultTimezone)
		if loc == nil {
			loc = time.UTC
		}
	}
	return &Calculator{loc: loc}
}

// Location returns the civil calendar the calculator operates in.
func (c *Calculator) Location() *time.Location {
	return c.loc
}

// AddMonthsClamped adds n calendar months to t. When the source day of
// month exceeds the length of the target month, the day clamps to the last
// valid day of the target month (Jan 31 + 1 month = Feb 28/29). The clock
// time is preserved.
func (c *Calculator) AddMonthsClamped(t time.Time, n int) time.Time {
	local := t.In(c.loc)
	year, month, day := local.Date()
	hour, minute, sec := local.Clock()

	// Walk to the first of the target month, then clamp the day. Using
	// time.Date with day 1 avoids the stdlib's overflow normalization
	// (Jan 31 AddDate(0,1,0) = Mar 2/3).
	firstOfTarget := time.Date(year, month+time.Month(n), 1, 0, 0, 0, 0, c.loc)
	clamped := day
	if last := daysInMonth(firstOfTarget.Year(), firstOfTarget.Month()); clamped > last {
		clamped = last
	}

	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), clamped,
		hour, minute, sec, local.Nanosecond(), c.loc)
}

// AddYearsClamped adds n calendar years to t, clamping Feb 29 to Feb 28 in
// non-leap target years.
func (c *Calculator) AddYearsClamped(t time.Time, n int) time.Time {
	return c.AddMonthsClamped(t, n*12)
}

// NextPeriod returns the period that follows the one starting at start: its
// start equals the current period's exclusive end, so consecutive periods
// tile the timeline without gap or overlap.
func (c *Calculator) NextPeriod(start time.Time, term Term) Period {
	return c.periodAt(start, 1, term.Months())
}

// RollingPeriod returns the half-open period containing asOf for the given
// anchor and term. When the anchor lies in the future relative to asOf, the
// anchor itself starts the first period.
//
// The number of elapsed terms is approximated from the civil month delta
// and then corrected by at most one step in either direction; every period
// boundary is re-derived from the anchor so day-of-month clamping never
// accumulates drift.
func (c *Calculator) RollingPeriod(anchor, asOf time.Time, term Term) Period {
	months := term.Months()

	if anchor.After(asOf) {
		return c.periodAt(anchor, 0, months)
	}

	a := anchor.In(c.loc)
	b := asOf.In(c.loc)
	monthDelta := (b.Year()-a.Year())*12 + int(b.Month()-a.Month())
	n := monthDelta / months
	if n < 0 {
		n = 0
	}

	for n > 0 && c.AddMonthsClamped(anchor, n*months).After(asOf) {
		n--
	}
	for !asOf.Before(c.AddMonthsClamped(anchor, (n+1)*months)) {
		n++
	}

	return c.periodAt(anchor, n, months)
}

// PeriodsBetween returns every period boundary from the anchor up to and
// including the period containing asOf, in chronological order. Used by
// catch-up fee generation.
func (c *Calculator) PeriodsBetween(anchor, asOf time.Time, term Term) []Period {
	months := term.Months()

	if anchor.After(asOf) {
		return []Period{c.periodAt(anchor, 0, months)}
	}

	last := c.RollingPeriod(anchor, asOf, term)
	var periods []Period
	for n := 0; ; n++ {
		p := c.periodAt(anchor, n, months)
		periods = append(periods, p)
		if p.Start.Equal(last.Start) {
			break
		}
	}
	return periods
}

// periodAt derives the n-th period boundary pair directly from the anchor.
func (c *Calculator) periodAt(anchor time.Time, n, months int) Period {
	return Period{
		Start: c.AddMonthsClamped(anchor, n*months),
		End:   c.AddMonthsClamped(anchor, (n+1)*months),
	}
}

// daysInMonth returns the number of days in the given month.
func daysInMonth(year int, month time.Month) int {
	// Day zero of the next month normalizes to the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
