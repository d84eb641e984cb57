package generic

import "fmt"

// =============================================================================
// PERIOD - Inclusive date bounds of a renewal
// =============================================================================

// Period is an inclusive [Start, End] date range.
//
// Examples:
//   - Calendar year 2025: Jan 1 - Dec 31
//   - Leave year starting June: Jun 1 - May 31
type Period struct {
	Start TimePoint
	End   TimePoint
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// Validate rejects periods with missing bounds or an end before the start.
func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return fmt.Errorf("%w: missing bound %s", ErrInvalidPeriod, p)
	}
	if p.End.Before(p.Start) {
		return fmt.Errorf("%w: %s", ErrInvalidPeriod, p)
	}
	return nil
}

// Days returns the number of days in the period, both bounds included.
func (p Period) Days() int {
	return DaysBetween(p.Start, p.End) + 1
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// NextPeriod returns the period following this one, same length.
func (p Period) NextPeriod() Period {
	// A period running on whole years or months keeps its calendar alignment.
	if next := p.Start.AddYears(1); next.Equal(p.End.AddDays(1)) {
		return Period{Start: next, End: next.AddYears(1).AddDays(-1)}
	}
	if next := p.Start.AddMonths(1); next.Equal(p.End.AddDays(1)) {
		return Period{Start: next, End: next.AddMonths(1).AddDays(-1)}
	}
	newStart := p.End.AddDays(1)
	newEnd := newStart.AddDays(DaysBetween(p.Start, p.End))
	return Period{Start: newStart, End: newEnd}
}
