package rental

import (
	"strings"
	"time"

	"github.com/warp/contract-recon/generic"
)

// =============================================================================
// CONTRACT INTERVAL CLASSIFIER
// =============================================================================

// Status values that mark a contract as still running.
const (
	StatusOpen   = "open"
	StatusActive = "active"
)

// IsOpen reports whether the contract has no fixed end: its status reads
// "open" or "active", case-insensitively. Anything else, including a blank
// status, is closed.
func IsOpen(c *Contract) bool {
	s := strings.ToLower(strings.TrimSpace(c.Status))
	return s == StatusOpen || s == StatusActive
}

// Interval returns the contract's rental window. ok is false when the
// contract cannot take part in matching: no pickup, or closed without a
// drop-off.
func Interval(c *Contract) (iv generic.Interval, ok bool) {
	if c.Pickup.IsZero() {
		return generic.Interval{}, false
	}
	if IsOpen(c) {
		return generic.Interval{Start: c.Pickup, Open: true}, true
	}
	if c.Dropoff.IsZero() {
		return generic.Interval{}, false
	}
	return generic.Interval{Start: c.Pickup, End: c.Dropoff}, true
}

// Overlaps reports whether the contract's window intersects the range.
// Open: pickup <= range end. Closed: pickup <= range end and drop-off >=
// range start.
func Overlaps(c *Contract, r generic.DateRange) bool {
	iv, ok := Interval(c)
	if !ok {
		return false
	}
	return iv.Overlaps(r.Start, r.End)
}

// Contains reports whether at falls inside the contract's window.
func Contains(c *Contract, at time.Time) bool {
	iv, ok := Interval(c)
	if !ok {
		return false
	}
	return iv.Contains(at)
}
