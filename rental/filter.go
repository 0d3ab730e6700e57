/*
filter.go - Active contract selection and fleet-level aggregates

PURPOSE:
  Given the user's date window, select the contracts that were running at
  any point inside it, annotate each with fleet membership, and derive the
  views the presentation layer renders: fleet vs non-fleet counts, fleet
  plates nobody rented, and plates rented more than once.

OVERLAP SEMANTICS:
  Range bounds are inclusive, the end is 23:59:59.999 of the last day.
    Open contract:   pickup <= range end
    Closed contract: pickup <= range end AND drop-off >= range start
  Contracts without a readable pickup never appear. Closed contracts
  without a readable drop-off never appear.

CONFIGURATION ERRORS:
  A dataset without a pickup or drop-off column cannot be filtered at all.
  FilterActive returns a MissingHeaderError instead of an empty result, so
  the caller keeps its previous view.

ANNOTATION:
  InvygoListed is written onto the same *Contract values that are returned,
  so every aggregate computed from one pass sees the same flags.

SEE ALSO:
  - classifier.go: IsOpen, Interval, Overlaps
  - charges/resolver.go: Uses the unfiltered set for charge matching
*/
package rental

import (
	"github.com/warp/contract-recon/generic"
)

// Summary counts filtered contracts by fleet membership.
type Summary struct {
	InvygoCount    int `json:"invygo_count"`
	NonInvygoCount int `json:"non_invygo_count"`
}

// RepeatedGroup is a plate rented more than once inside the window, with
// its contracts in filtered order.
type RepeatedGroup struct {
	Plate     string      `json:"plate"`
	Contracts []*Contract `json:"contracts"`
}

// FilterResult is everything derived from one filter pass.
type FilterResult struct {
	Range     generic.DateRange
	Contracts []*Contract
	Summary   Summary
	Unrented  []string
	Repeated  []RepeatedGroup
}

// =============================================================================
// FILTER
// =============================================================================

// RequireFilterable checks that the dataset has the columns filtering needs.
func (s *ContractSet) RequireFilterable() error {
	if s == nil {
		return nil
	}
	return s.Schema.Require(FieldPickup, FieldDropoff)
}

// SelectActive returns the contracts overlapping r, in input order.
func SelectActive(contracts []*Contract, r generic.DateRange) []*Contract {
	out := make([]*Contract, 0, len(contracts))
	for _, c := range contracts {
		if Overlaps(c, r) {
			out = append(out, c)
		}
	}
	return out
}

// FilterActive runs one full filter pass. A nil set is treated as an empty
// dataset: every fleet plate is unrented.
func FilterActive(set *ContractSet, fleet FleetSet, r generic.DateRange) (FilterResult, error) {
	if err := set.RequireFilterable(); err != nil {
		return FilterResult{}, err
	}

	var all []*Contract
	if set != nil {
		all = set.Contracts
	}
	for _, c := range all {
		c.InvygoListed = fleet.Has(c.PlateKey)
	}

	active := SelectActive(all, r)
	return FilterResult{
		Range:     r,
		Contracts: active,
		Summary:   Summarize(active),
		Unrented:  UnrentedPlates(fleet, active),
		Repeated:  RepeatedGroups(active),
	}, nil
}

// =============================================================================
// AGGREGATES
// =============================================================================

// Summarize counts fleet-listed and other contracts.
func Summarize(filtered []*Contract) Summary {
	var s Summary
	for _, c := range filtered {
		if c.InvygoListed {
			s.InvygoCount++
		} else {
			s.NonInvygoCount++
		}
	}
	return s
}

// UnrentedPlates returns fleet plates with no filtered contract, in fleet
// upload order.
func UnrentedPlates(fleet FleetSet, filtered []*Contract) []string {
	rented := make(map[string]bool, len(filtered))
	for _, c := range filtered {
		rented[c.PlateKey] = true
	}
	out := []string{}
	for _, p := range fleet.plates {
		if !rented[p] {
			out = append(out, p)
		}
	}
	return out
}

// RepeatedGroups groups filtered contracts by normalized plate and keeps the
// groups with more than one contract, ordered by each plate's first
// appearance.
func RepeatedGroups(filtered []*Contract) []RepeatedGroup {
	var order []string
	groups := make(map[string][]*Contract)
	for _, c := range filtered {
		if c.PlateKey == "" {
			continue
		}
		if _, seen := groups[c.PlateKey]; !seen {
			order = append(order, c.PlateKey)
		}
		groups[c.PlateKey] = append(groups[c.PlateKey], c)
	}

	out := []RepeatedGroup{}
	for _, plate := range order {
		if len(groups[plate]) > 1 {
			out = append(out, RepeatedGroup{Plate: plate, Contracts: groups[plate]})
		}
	}
	return out
}
