/*
resolver.go - Charge-to-contract resolution

ALGORITHM (per charge):
  1. Normalize the charge plate.
  2. Primary candidates: every contract with the same normalized plate.
  3. Fallback, only when step 2 found nothing: a dealer booking whose
     replacement plate equals the charge plate points at an agreement
     number; the contract with that exact number becomes the only candidate.
  4. Keep candidates whose interval contains the charge instant.
  5. Several left: the TieBreak policy picks one.
  6. Enrich from the chosen contract (see enrich), or clear every derived
     field when nothing is left.

Resolution runs against the full contract dataset, not the date-filtered
view: a charge outside the user's window still belongs to a contract.

ENRICHMENT:
  Fleet-managed (contract plate fleet-listed, or a dealer booking exists for
  the contract number): customer, booking id and model come from the
  booking. Otherwise they come from the contract's own columns.

SEE ALSO:
  - tiebreak.go: Ordering of competing candidates
  - rental/classifier.go: Contains
*/
package charges

import (
	"strings"

	"github.com/warp/contract-recon/generic"
	"github.com/warp/contract-recon/rental"
)

// Resolver joins charges to contracts. The zero TieBreak means
// OpenThenLatest.
type Resolver struct {
	Contracts *rental.ContractSet
	Fleet     rental.FleetSet
	Bookings  rental.Bookings
	TieBreak  TieBreak
}

func (r Resolver) tieBreak() TieBreak {
	if r.TieBreak == nil {
		return OpenThenLatest{}
	}
	return r.TieBreak
}

// =============================================================================
// CANDIDATES
// =============================================================================

// Candidates returns the contracts whose plate matches the charge (or whose
// agreement a dealer booking links to the charge plate) and whose interval
// contains the charge instant, in upload order.
func (r Resolver) Candidates(c *Charge) ([]*rental.Contract, Via) {
	plate := generic.NormalizePlate(c.Plate)
	if plate == "" || c.At.IsZero() {
		return nil, ""
	}

	pool, via := r.Contracts.ByPlate(plate), ViaDirect
	if len(pool) == 0 {
		pool, via = nil, ViaReplacement
		if bk, ok := r.Bookings.ByPlate(plate); ok {
			if k, ok := r.Contracts.ByNumber(bk.Agreement); ok {
				pool = []*rental.Contract{k}
			}
		}
	}

	var out []*rental.Contract
	for _, k := range pool {
		if rental.Contains(k, c.At) {
			out = append(out, k)
		}
	}
	if len(out) == 0 {
		return nil, ""
	}
	return out, via
}

// =============================================================================
// RESOLUTION
// =============================================================================

// Resolve runs automatic resolution on one charge in place. Manually matched
// and ignored charges are left untouched.
func (r Resolver) Resolve(c *Charge) {
	if c.ManuallyUpdated || c.Ignored {
		return
	}
	c.PlateKey = generic.NormalizePlate(c.Plate)

	candidates, via := r.Candidates(c)
	best := pick(r.tieBreak(), candidates)
	if best == nil {
		c.clearMatch()
		return
	}
	r.enrich(c, best, via)
}

// ResolveAll resolves every charge in order.
func (r Resolver) ResolveAll(list []*Charge) {
	for _, c := range list {
		r.Resolve(c)
	}
}

// ApplyManualMatch binds a charge to the contract with the exact number the
// user typed. An unknown number returns a ContractNotFoundError and leaves
// the charge unchanged.
func (r Resolver) ApplyManualMatch(c *Charge, number string) error {
	if c.Ignored {
		return generic.ErrChargeIgnored
	}
	number = strings.TrimSpace(number)
	k, ok := r.Contracts.ByNumber(number)
	if !ok {
		return &generic.ContractNotFoundError{Number: number}
	}
	r.enrich(c, k, ViaManual)
	c.ManuallyUpdated = true
	c.Flagged = true
	return nil
}

// Ignore marks a charge as company use. Terminal.
func Ignore(c *Charge) {
	c.clearMatch()
	c.Ignored = true
	c.Contract = IgnoredContract
	c.CustomerName = CompanyUseCustomer
}

func (r Resolver) enrich(c *Charge, k *rental.Contract, via Via) {
	c.clearMatch()
	c.Via = via
	c.Contract = k.Number
	c.ContractStart = generic.FormatInstant(k.Pickup)
	if rental.IsOpen(k) {
		c.ContractEnd = OpenEnd
	} else {
		c.ContractEnd = generic.FormatInstant(k.Dropoff)
	}
	c.Branch = k.PickupBranch

	bk, hasBooking := r.Bookings.ByAgreement(k.Number)
	if r.Fleet.Has(k.PlateKey) || hasBooking {
		c.CustomerName = bk.Customer
		c.BookingNumber = bk.BookingID
		c.Model = bk.Model()
		return
	}
	c.CustomerName = k.Customer
	c.BookingNumber = k.BookingNumber
	c.Model = k.Model
}
