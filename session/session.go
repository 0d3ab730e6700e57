/*
Package session holds the reconciliation state of one user session.

PURPOSE:
  Owns the four primary collections (contracts, fleet plates, dealer
  bookings, charges) plus the active date range, and keeps the derived
  views (filtered contracts, unrented plates, repeated groups, charge
  buckets) consistent with them.

ENTRY POINTS:
  Every mutation goes through one of three recompute paths:

    OnContractsChanged  re-resolve charges, re-filter, re-bucket
                        (contracts, fleet, bookings, charges, tie-break)
    OnDateRangeChanged  re-filter only
    OnChargesEdited     re-bucket only (manual match, ignore, fleet type)

  The Replace* / Set* helpers swap one collection and run the matching path.

ALL OR NOTHING:
  A recompute builds the next state and its views off to the side and
  swaps both in only when nothing failed. A configuration error leaves
  the previous data and views untouched. Charges are cloned before
  resolution for the same reason.

CONCURRENCY:
  One mutex serializes every operation, so a recompute never observes a
  collection mid-replacement. Accessors return copies.

SEE ALSO:
  - store.go: Snapshot persistence and audit log
  - rental/filter.go, charges/resolver.go, charges/buckets.go
*/
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/warp/contract-recon/charges"
	"github.com/warp/contract-recon/generic"
	"github.com/warp/contract-recon/rental"
)

// Options configure a new session.
type Options struct {
	TieBreak  charges.TieBreak  // nil = OpenThenLatest
	FleetType charges.FleetType // blank = invygo
}

// state is the primary data. Values are replaced, never edited in place,
// except for contract annotation during filtering.
type state struct {
	contracts *rental.ContractSet
	fleet     rental.FleetSet
	bookings  rental.Bookings
	charges   *charges.Set
	rng       generic.DateRange
	fleetType charges.FleetType
	tieBreak  charges.TieBreak
}

// view is everything derived from state.
type view struct {
	filter  *rental.FilterResult // nil while no range is set
	buckets charges.Buckets
}

// Session is safe for concurrent use.
type Session struct {
	mu sync.Mutex
	st state
	vw view
}

// New creates an empty session.
func New(opts Options) *Session {
	tb := opts.TieBreak
	if tb == nil {
		tb = charges.OpenThenLatest{}
	}
	ft := opts.FleetType
	if ft == "" {
		ft = charges.FleetInvygo
	}
	s := &Session{st: state{fleetType: ft, tieBreak: tb}}
	s.vw, _ = derive(s.st)
	return s
}

// =============================================================================
// RECOMPUTE
// =============================================================================

func resolverFor(st state) charges.Resolver {
	return charges.Resolver{
		Contracts: st.contracts,
		Fleet:     st.fleet,
		Bookings:  st.bookings,
		TieBreak:  st.tieBreak,
	}
}

func derive(st state) (view, error) {
	var v view
	if st.rng.IsZero() {
		for _, c := range contractList(st.contracts) {
			c.InvygoListed = st.fleet.Has(c.PlateKey)
		}
	} else {
		res, err := rental.FilterActive(st.contracts, st.fleet, st.rng)
		if err != nil {
			return view{}, err
		}
		v.filter = &res
	}
	v.buckets = charges.Bucketize(chargeList(st.charges), st.fleetType, st.fleet)
	return v, nil
}

// commit derives views for next and swaps it in. With resolve set, charges
// are cloned and re-resolved first. Caller holds mu.
func (s *Session) commit(next state, resolve bool) error {
	if resolve && next.charges != nil {
		next.charges = next.charges.Clone()
		resolverFor(next).ResolveAll(next.charges.Charges)
	}
	v, err := derive(next)
	if err != nil {
		return err
	}
	s.st, s.vw = next, v
	return nil
}

// OnContractsChanged re-resolves every automatic charge and rebuilds all
// views.
func (s *Session) OnContractsChanged() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(s.st, true)
}

// OnDateRangeChanged rebuilds the filtered contract views.
func (s *Session) OnDateRangeChanged() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(s.st, false)
}

// OnChargesEdited rebuilds the charge buckets.
func (s *Session) OnChargesEdited() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(s.st, false)
}

// =============================================================================
// MUTATIONS
// =============================================================================

// ReplaceContracts swaps the contract dataset. A dataset that cannot be
// filtered (no pickup or drop-off column) is rejected whole.
func (s *Session) ReplaceContracts(set *rental.ContractSet) error {
	if err := set.RequireFilterable(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.st
	next.contracts = set
	return s.commit(next, true)
}

// ReplaceFleet swaps the fleet plate list.
func (s *Session) ReplaceFleet(fleet rental.FleetSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.st
	next.fleet = fleet
	return s.commit(next, true)
}

// ReplaceBookings swaps the dealer bookings.
func (s *Session) ReplaceBookings(b rental.Bookings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.st
	next.bookings = b
	return s.commit(next, true)
}

// ReplaceCharges swaps the charge collection. Manual matches and ignores on
// the previous collection are discarded with it.
func (s *Session) ReplaceCharges(set *charges.Set) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.st
	next.charges = set
	return s.commit(next, true)
}

// SetRange sets the active date window.
func (s *Session) SetRange(r generic.DateRange) error {
	if r.IsZero() {
		return fmt.Errorf("%w: empty range", generic.ErrInvalidRange)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.st
	next.rng = r
	return s.commit(next, false)
}

// SetFleetType switches the bucket predicate table.
func (s *Session) SetFleetType(ft charges.FleetType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.st
	next.fleetType = ft
	return s.commit(next, false)
}

// SetTieBreak switches the candidate ordering and re-resolves.
func (s *Session) SetTieBreak(tb charges.TieBreak) error {
	if tb == nil {
		tb = charges.OpenThenLatest{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.st
	next.tieBreak = tb
	return s.commit(next, true)
}

// ManualMatch binds a charge to a contract number typed by the user. The
// charge is unchanged on error.
func (s *Session) ManualMatch(chargeID, contractNumber string) (charges.Charge, error) {
	return s.editCharge(chargeID, func(r charges.Resolver, c *charges.Charge) error {
		return r.ApplyManualMatch(c, contractNumber)
	})
}

// IgnoreCharge marks a charge as company use.
func (s *Session) IgnoreCharge(chargeID string) (charges.Charge, error) {
	return s.editCharge(chargeID, func(_ charges.Resolver, c *charges.Charge) error {
		charges.Ignore(c)
		return nil
	})
}

func (s *Session) editCharge(id string, edit func(charges.Resolver, *charges.Charge) error) (charges.Charge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.charges.ByID(id); !ok {
		return charges.Charge{}, fmt.Errorf("%w: %s", generic.ErrChargeNotFound, id)
	}
	next := s.st
	next.charges = s.st.charges.Clone()
	target, _ := next.charges.ByID(id)
	if err := edit(resolverFor(next), target); err != nil {
		return charges.Charge{}, err
	}
	if err := s.commit(next, false); err != nil {
		return charges.Charge{}, err
	}
	return *target.Clone(), nil
}

// Reset drops every collection and the range. Options are kept.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := state{fleetType: s.st.fleetType, tieBreak: s.st.tieBreak}
	s.st = next
	s.vw, _ = derive(next)
}

// =============================================================================
// VIEWS - Copies, safe to hold after the call returns
// =============================================================================

// FilterView is the date-filtered contract side.
type FilterView struct {
	HasRange  bool                `json:"has_range"`
	Range     generic.DateRange   `json:"range"`
	Contracts []rental.Contract   `json:"contracts"`
	Summary   rental.Summary      `json:"summary"`
	Unrented  []string            `json:"unrented"`
	Repeated  []RepeatedGroupView `json:"repeated"`
}

// RepeatedGroupView is a plate rented more than once in the window.
type RepeatedGroupView struct {
	Plate     string            `json:"plate"`
	Contracts []rental.Contract `json:"contracts"`
}

// Stats summarizes what is loaded.
type Stats struct {
	Contracts  int               `json:"contracts"`
	Fleet      int               `json:"fleet"`
	Bookings   int               `json:"bookings"`
	Charges    int               `json:"charges"`
	ChargeKind charges.Kind      `json:"charge_kind,omitempty"`
	FleetType  charges.FleetType `json:"fleet_type"`
	TieBreak   string            `json:"tie_break"`
	HasRange   bool              `json:"has_range"`
}

// Filter returns the filtered contract views. Without a range every list
// is empty and HasRange is false.
func (s *Session) Filter() FilterView {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := FilterView{Contracts: []rental.Contract{}, Unrented: []string{}, Repeated: []RepeatedGroupView{}}
	f := s.vw.filter
	if f == nil {
		return out
	}
	out.HasRange = true
	out.Range = f.Range
	out.Contracts = copyContracts(f.Contracts)
	out.Summary = f.Summary
	out.Unrented = append(out.Unrented, f.Unrented...)
	for _, g := range f.Repeated {
		out.Repeated = append(out.Repeated, RepeatedGroupView{Plate: g.Plate, Contracts: copyContracts(g.Contracts)})
	}
	return out
}

// Range returns the active window.
func (s *Session) Range() (generic.DateRange, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.rng, !s.st.rng.IsZero()
}

// Charges returns every charge in upload order.
func (s *Session) Charges() []charges.Charge {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]charges.Charge, 0, s.st.charges.Len())
	for _, c := range chargeList(s.st.charges) {
		out = append(out, *c.Clone())
	}
	return out
}

// Charge returns one charge by id.
func (s *Session) Charge(id string) (charges.Charge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.st.charges.ByID(id)
	if !ok {
		return charges.Charge{}, fmt.Errorf("%w: %s", generic.ErrChargeNotFound, id)
	}
	return *c.Clone(), nil
}

// Buckets returns the charge buckets for the current fleet type.
func (s *Session) Buckets() charges.Buckets {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.vw.buckets
	for _, bucket := range []*charges.Bucket{&b.Matched, &b.Unmatched, &b.Replacement, &b.Edited, &b.Ignored} {
		cloned := make([]*charges.Charge, len(bucket.Charges))
		for i, c := range bucket.Charges {
			cloned[i] = c.Clone()
		}
		bucket.Charges = cloned
	}
	return b
}

// Stats reports collection sizes and options.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		Contracts: s.st.contracts.Len(),
		Fleet:     s.st.fleet.Len(),
		Bookings:  s.st.bookings.Len(),
		Charges:   s.st.charges.Len(),
		FleetType: s.st.fleetType,
		TieBreak:  s.st.tieBreak.Name(),
		HasRange:  !s.st.rng.IsZero(),
	}
	if s.st.charges != nil {
		st.ChargeKind = s.st.charges.Kind
	}
	return st
}

// =============================================================================
// SNAPSHOT / RESTORE
// =============================================================================

// Snapshot copies the primary state for persistence.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		SavedAt:   time.Now().UTC(),
		Fleet:     s.st.fleet.Plates(),
		Bookings:  s.st.bookings.All(),
		FleetType: s.st.fleetType,
	}
	if s.st.contracts != nil {
		schema := s.st.contracts.Schema
		snap.ContractSchema = &schema
		for _, c := range s.st.contracts.Contracts {
			cp := *c
			snap.Contracts = append(snap.Contracts, &cp)
		}
	}
	if s.st.charges != nil {
		snap.ChargeKind = s.st.charges.Kind
		for _, c := range s.st.charges.Charges {
			snap.Charges = append(snap.Charges, c.Clone())
		}
	}
	if !s.st.rng.IsZero() {
		r := s.st.rng
		snap.Range = &r
	}
	return snap
}

// Restore replaces the whole state with a snapshot. Charges keep their
// stored resolution; nothing is re-resolved.
func (s *Session) Restore(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := state{
		fleet:     rental.NewFleetSet(snap.Fleet...),
		bookings:  rental.NewBookings(snap.Bookings),
		fleetType: snap.FleetType,
		tieBreak:  s.st.tieBreak,
	}
	if next.fleetType == "" {
		next.fleetType = charges.FleetInvygo
	}
	if snap.ContractSchema != nil {
		next.contracts = rental.NewContractSet(*snap.ContractSchema, snap.Contracts)
	}
	if snap.ChargeKind != "" {
		next.charges = charges.NewSet(snap.ChargeKind, snap.Charges)
	}
	if snap.Range != nil {
		next.rng = *snap.Range
	}
	return s.commit(next, false)
}

// =============================================================================
// HELPERS
// =============================================================================

func contractList(set *rental.ContractSet) []*rental.Contract {
	if set == nil {
		return nil
	}
	return set.Contracts
}

func chargeList(set *charges.Set) []*charges.Charge {
	if set == nil {
		return nil
	}
	return set.Charges
}

func copyContracts(list []*rental.Contract) []rental.Contract {
	out := make([]rental.Contract, len(list))
	for i, c := range list {
		out[i] = *c
	}
	return out
}
