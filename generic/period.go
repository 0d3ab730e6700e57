package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// INTERVAL - A rental window, possibly open-ended
// =============================================================================

// Interval is a time window with a required start. When Open is true the
// interval has no end and End is ignored.
//
// Examples:
//   - Closed contract: [pickup, drop-off]
//   - Open contract:   [pickup, +inf)
type Interval struct {
	Start time.Time
	End   time.Time
	Open  bool
}

// Contains returns true if at lies within the interval, bounds inclusive.
func (i Interval) Contains(at time.Time) bool {
	if at.Before(i.Start) {
		return false
	}
	return i.Open || !at.After(i.End)
}

// Overlaps returns true if the interval intersects the range [from, to],
// bounds inclusive. An open interval overlaps whenever it starts by to.
func (i Interval) Overlaps(from, to time.Time) bool {
	if i.Start.After(to) {
		return false
	}
	return i.Open || !i.End.Before(from)
}

// String returns a string representation of the interval.
func (i Interval) String() string {
	if i.Open {
		return "[" + FormatInstant(i.Start) + ", open)"
	}
	return "[" + FormatInstant(i.Start) + ", " + FormatInstant(i.End) + "]"
}

// =============================================================================
// DATE RANGE - The user's active filter window
// =============================================================================

// DateRange is an inclusive calendar window. Start is midnight of the first
// day, End is 23:59:59.999 of the last day.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange builds a range from two calendar dates. Any time of day on the
// inputs is discarded.
func NewDateRange(start, end time.Time) (DateRange, error) {
	r := DateRange{Start: StartOfDay(start), End: EndOfDay(end)}
	if r.End.Before(r.Start) {
		return DateRange{}, fmt.Errorf("%w: %s after %s", ErrInvalidRange,
			start.Format(DateOnlyLayout), end.Format(DateOnlyLayout))
	}
	return r, nil
}

// ParseDateRange resolves two date cells (strings in any supported format)
// into a range.
func (r TemporalResolver) ParseDateRange(start, end any) (DateRange, error) {
	s, ok := r.ParseInstant(start)
	if !ok {
		return DateRange{}, fmt.Errorf("%w: unreadable start %q", ErrInvalidRange, Text(start))
	}
	e, ok := r.ParseInstant(end)
	if !ok {
		return DateRange{}, fmt.Errorf("%w: unreadable end %q", ErrInvalidRange, Text(end))
	}
	return NewDateRange(s, e)
}

// IsZero reports whether the range was never set.
func (d DateRange) IsZero() bool { return d.Start.IsZero() && d.End.IsZero() }

// Contains returns true if t is within [Start, End].
func (d DateRange) Contains(t time.Time) bool {
	return !t.Before(d.Start) && !t.After(d.End)
}

// String returns a string representation of the range.
func (d DateRange) String() string {
	return "[" + d.Start.Format(DateOnlyLayout) + ", " + d.End.Format(DateOnlyLayout) + "]"
}
