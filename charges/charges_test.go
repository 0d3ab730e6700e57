package charges_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/contract-recon/charges"
	"github.com/warp/contract-recon/generic"
	"github.com/warp/contract-recon/rental"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func contract(number, plate, status string, pickup, dropoff time.Time) *rental.Contract {
	return &rental.Contract{
		ID:       "k-" + number,
		Number:   number,
		Plate:    plate,
		PlateKey: generic.NormalizePlate(plate),
		Pickup:   pickup,
		Dropoff:  dropoff,
		Status:   status,
		Customer: "Customer " + number,
	}
}

func charge(id, plate string, at time.Time, amount string) *charges.Charge {
	return &charges.Charge{
		ID:     id,
		Kind:   charges.KindParking,
		Plate:  plate,
		At:     at,
		Amount: decimal.RequireFromString(amount),
	}
}

func contractSet(list ...*rental.Contract) *rental.ContractSet {
	schema := generic.ResolveSchema("contracts",
		[]string{"Contract No.", "Customer", "Plate No.", "Pick-up Date", "Drop-off Date", "Status"},
		rental.ContractFields)
	return rental.NewContractSet(schema, list)
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestResolve_ClosedContract(t *testing.T) {
	// GIVEN: C1 on A12345 from 01/01 to 10/01, closed
	r := charges.Resolver{Contracts: contractSet(
		contract("C1", "A12345", "closed", day(2024, 1, 1), day(2024, 1, 10)),
	)}
	c := charge("p1", "A 12345", day(2024, 1, 5), "10")

	// WHEN: Resolving a charge on 05/01 with a spaced plate
	r.Resolve(c)

	// THEN: C1 matches with a date-only end
	assert.Equal(t, "C1", c.Contract)
	assert.Equal(t, "01/01/2024", c.ContractStart)
	assert.Equal(t, "10/01/2024", c.ContractEnd)
	assert.Equal(t, "Customer C1", c.CustomerName)
	assert.Equal(t, charges.ViaDirect, c.Via)
}

func TestResolve_OpenContract(t *testing.T) {
	// GIVEN: C2 on B999 open since 01/02
	r := charges.Resolver{Contracts: contractSet(
		contract("C2", "B999", "Open", day(2024, 2, 1), time.Time{}),
	)}
	c := charge("p1", "b999", day(2024, 3, 1), "10")

	// WHEN
	r.Resolve(c)

	// THEN: End reads "Open"
	assert.Equal(t, "C2", c.Contract)
	assert.Equal(t, charges.OpenEnd, c.ContractEnd)
}

func TestResolve_MostRecentPickupWins(t *testing.T) {
	// GIVEN: Two closed contracts on D1, both covering 16/01
	early := contract("D-EARLY", "D1", "closed", day(2024, 1, 1), day(2024, 1, 31))
	late := contract("D-LATE", "D1", "closed", day(2024, 1, 15), day(2024, 2, 15))
	r := charges.Resolver{Contracts: contractSet(early, late)}
	c := charge("p1", "D1", day(2024, 1, 16), "5")

	// WHEN
	r.Resolve(c)

	// THEN: The later pickup is chosen
	assert.Equal(t, "D-LATE", c.Contract)
}

func TestResolve_TightestIntervalPolicy(t *testing.T) {
	// GIVEN: Same overlapping contracts, with the alternative policy
	early := contract("D-EARLY", "D1", "closed", day(2024, 1, 1), day(2024, 1, 31))
	late := contract("D-LATE", "D1", "closed", day(2024, 1, 15), day(2024, 2, 15))
	tb, err := charges.PolicyByName("tightest-interval")
	require.NoError(t, err)
	r := charges.Resolver{Contracts: contractSet(early, late), TieBreak: tb}
	c := charge("p1", "D1", day(2024, 1, 16), "5")

	// WHEN
	r.Resolve(c)

	// THEN: The contract ending first is chosen
	assert.Equal(t, "D-EARLY", c.Contract)
}

func TestResolve_ReplacementFallback(t *testing.T) {
	// GIVEN: K500 runs on X9; dealer booking puts replacement E1 on K500
	k500 := contract("K500", "X9", "closed", day(2024, 1, 1), day(2024, 1, 20))
	bookings := rental.NewBookings([]rental.DealerBooking{{
		Agreement: "K500", BookingID: "BK-77", Customer: "Dana", Brand: "Kia",
		CarName: "Pegas", CarYear: "2024", Plate: "E1", PlateKey: "E1",
	}})
	fleet := rental.NewFleetSet("X9")
	r := charges.Resolver{Contracts: contractSet(k500), Fleet: fleet, Bookings: bookings}
	c := charge("t1", "E1", day(2024, 1, 10).Add(9*time.Hour), "4")

	// WHEN
	r.Resolve(c)

	// THEN: Matched through the booking, enriched from it, bucketed as replacement
	assert.Equal(t, "K500", c.Contract)
	assert.Equal(t, charges.ViaReplacement, c.Via)
	assert.Equal(t, "Dana", c.CustomerName)
	assert.Equal(t, "BK-77", c.BookingNumber)
	assert.Equal(t, "Kia Pegas 2024", c.Model)

	b := charges.Bucketize([]*charges.Charge{c}, charges.FleetInvygo, fleet)
	assert.Equal(t, 1, b.Replacement.Count)
	assert.Equal(t, 0, b.Matched.Count)
	assert.Equal(t, 0, b.Unmatched.Count)
}

func TestResolve_FallbackOnlyWhenNoPlateCandidates(t *testing.T) {
	// GIVEN: E1 has its own contract that does NOT cover the charge, and a
	// booking linking E1 to K500 which does
	own := contract("OWN", "E1", "closed", day(2023, 6, 1), day(2023, 6, 5))
	k500 := contract("K500", "X9", "closed", day(2024, 1, 1), day(2024, 1, 20))
	bookings := rental.NewBookings([]rental.DealerBooking{{Agreement: "K500", Plate: "E1"}})
	r := charges.Resolver{Contracts: contractSet(own, k500), Bookings: bookings}
	c := charge("t1", "E1", day(2024, 1, 10), "4")

	// WHEN
	r.Resolve(c)

	// THEN: The primary set was non-empty, so no fallback and no match
	assert.Empty(t, c.Contract)
	assert.Empty(t, c.Via)
}

func TestIgnore_MatchedCharge(t *testing.T) {
	// GIVEN: A matched charge
	fleet := rental.NewFleetSet("A12345")
	r := charges.Resolver{Contracts: contractSet(
		contract("C1", "A12345", "closed", day(2024, 1, 1), day(2024, 1, 10)),
	), Fleet: fleet}
	c := charge("p1", "A12345", day(2024, 1, 5), "10")
	r.Resolve(c)
	require.Equal(t, "C1", c.Contract)

	// WHEN: The user ignores it
	charges.Ignore(c)

	// THEN: Sentinels are set and it leaves matched/unmatched
	assert.True(t, c.Ignored)
	assert.Equal(t, "IGNORED", c.Contract)
	assert.Equal(t, "Company Use", c.CustomerName)

	b := charges.Bucketize([]*charges.Charge{c}, charges.FleetInvygo, fleet)
	assert.Equal(t, 0, b.Matched.Count)
	assert.Equal(t, 0, b.Unmatched.Count)
	assert.Equal(t, 1, b.Ignored.Count)

	// AND: Automatic resolution no longer touches it
	r.Resolve(c)
	assert.Equal(t, "IGNORED", c.Contract)
}

// =============================================================================
// RESOLVER PROPERTIES
// =============================================================================

func TestResolve_DeterministicAcrossInputOrder(t *testing.T) {
	at := day(2024, 3, 10)
	list := []*rental.Contract{
		contract("A", "P1", "closed", day(2024, 3, 1), day(2024, 3, 20)),
		contract("B", "P1", "open", day(2024, 2, 1), time.Time{}),
		contract("C", "P1", "active", day(2024, 3, 5), time.Time{}),
		contract("D", "P1", "closed", day(2024, 3, 9), day(2024, 3, 11)),
		contract("E", "P1", "open", day(2024, 3, 5), time.Time{}),
	}
	orders := [][]int{{0, 1, 2, 3, 4}, {4, 3, 2, 1, 0}, {2, 0, 4, 1, 3}, {3, 4, 0, 2, 1}}

	for _, tb := range []charges.TieBreak{charges.OpenThenLatest{}, charges.TightestInterval{}} {
		var first string
		for i, order := range orders {
			perm := make([]*rental.Contract, len(order))
			for j, idx := range order {
				perm[j] = list[idx]
			}
			c := charge("x", "P1", at, "1")
			charges.Resolver{Contracts: contractSet(perm...), TieBreak: tb}.Resolve(c)
			if i == 0 {
				first = c.Contract
				continue
			}
			assert.Equal(t, first, c.Contract, "%s order %v", tb.Name(), order)
		}
	}
}

func TestOpenThenLatest_OrdersOpenFirstThenPickupThenNumber(t *testing.T) {
	tb := charges.OpenThenLatest{}
	open := contract("Z", "P", "open", day(2024, 1, 1), time.Time{})
	closedLate := contract("A", "P", "closed", day(2024, 2, 1), day(2024, 3, 1))
	assert.Negative(t, tb.Compare(open, closedLate))

	same1 := contract("K1", "P", "open", day(2024, 1, 1), time.Time{})
	same2 := contract("K2", "P", "open", day(2024, 1, 1), time.Time{})
	assert.Negative(t, tb.Compare(same1, same2))
	assert.Positive(t, tb.Compare(same2, same1))
}

func TestPolicyByName(t *testing.T) {
	tb, err := charges.PolicyByName("")
	require.NoError(t, err)
	assert.Equal(t, charges.PolicyOpenThenLatest, tb.Name())

	_, err = charges.PolicyByName("newest")
	assert.Error(t, err)
	assert.Equal(t, []string{"open-then-latest", "tightest-interval"}, charges.PolicyNames())
}

func TestResolve_UnmatchedClearsDerivedFields(t *testing.T) {
	// GIVEN: A charge that was matched before the contracts changed
	c := charge("p1", "A1", day(2024, 1, 5), "1")
	c.Contract, c.CustomerName, c.BookingNumber, c.Via = "OLD", "Old", "B", charges.ViaDirect

	// WHEN: Resolving against a set without A1
	charges.Resolver{Contracts: contractSet()}.Resolve(c)

	// THEN
	assert.Empty(t, c.Contract)
	assert.Empty(t, c.CustomerName)
	assert.Empty(t, c.BookingNumber)
	assert.Empty(t, c.ContractEnd)
	assert.Empty(t, c.Via)
}

func TestResolve_UnreadableDateNeverMatches(t *testing.T) {
	r := charges.Resolver{Contracts: contractSet(
		contract("C1", "A1", "open", day(2024, 1, 1), time.Time{}),
	)}
	c := charge("p1", "A1", time.Time{}, "1")
	r.Resolve(c)
	assert.Empty(t, c.Contract)
}

func TestResolve_FleetListedWithoutBookingLeavesCustomerEmpty(t *testing.T) {
	// GIVEN: A fleet-listed contract and no dealer booking
	fleet := rental.NewFleetSet("A1")
	r := charges.Resolver{Contracts: contractSet(
		contract("C1", "A1", "open", day(2024, 1, 1), time.Time{}),
	), Fleet: fleet}
	c := charge("p1", "A1", day(2024, 1, 2), "1")

	// WHEN
	r.Resolve(c)

	// THEN: Matched by contract, but enrichment comes from the absent booking
	assert.Equal(t, "C1", c.Contract)
	assert.Empty(t, c.CustomerName)
	b := charges.Bucketize([]*charges.Charge{c}, charges.FleetInvygo, fleet)
	assert.Equal(t, 1, b.Unmatched.Count)
}

// =============================================================================
// MANUAL MATCH
// =============================================================================

func TestApplyManualMatch_UnknownNumberLeavesChargeUnchanged(t *testing.T) {
	r := charges.Resolver{Contracts: contractSet(
		contract("C1", "A1", "open", day(2024, 1, 1), time.Time{}),
	)}
	c := charge("p1", "ZZ", day(2024, 1, 2), "1")
	before := *c

	err := r.ApplyManualMatch(c, "NOPE")

	var nf *generic.ContractNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "NOPE", nf.Number)
	assert.True(t, generic.IsClientError(err))
	assert.Equal(t, before, *c)
}

func TestApplyManualMatch_SticksAcrossResolution(t *testing.T) {
	// GIVEN: An unmatched charge the user binds to C1 by hand
	r := charges.Resolver{Contracts: contractSet(
		contract("C1", "A1", "closed", day(2024, 1, 1), day(2024, 1, 3)),
	)}
	c := charge("p1", "OTHER", day(2024, 5, 1), "1")
	r.Resolve(c)
	require.Empty(t, c.Contract)

	// WHEN
	require.NoError(t, r.ApplyManualMatch(c, " C1 "))
	r.Resolve(c)

	// THEN: The manual match survives re-resolution
	assert.Equal(t, "C1", c.Contract)
	assert.True(t, c.ManuallyUpdated)
	assert.True(t, c.Flagged)
	assert.Equal(t, charges.ViaManual, c.Via)
	assert.Equal(t, "03/01/2024", c.ContractEnd)
}

func TestApplyManualMatch_IgnoredIsTerminal(t *testing.T) {
	r := charges.Resolver{Contracts: contractSet(
		contract("C1", "A1", "open", day(2024, 1, 1), time.Time{}),
	)}
	c := charge("p1", "A1", day(2024, 1, 2), "1")
	charges.Ignore(c)

	err := r.ApplyManualMatch(c, "C1")

	assert.ErrorIs(t, err, generic.ErrChargeIgnored)
	assert.Equal(t, "IGNORED", c.Contract)
}

// =============================================================================
// BUCKETS
// =============================================================================

func TestBucketize_InvygoTable(t *testing.T) {
	fleet := rental.NewFleetSet("F1", "F2")
	complete := func(id, plate string) *charges.Charge {
		c := charge(id, plate, day(2024, 1, 1), "10.50")
		c.Contract, c.BookingNumber, c.CustomerName = "K", "BK", "Cust"
		return c
	}

	listedMatched := complete("1", "F1")
	listedMissing := charge("2", "F2", day(2024, 1, 1), "3")
	replacement := complete("3", "R1")
	strayUnlisted := charge("4", "R2", day(2024, 1, 1), "1")
	flagged := complete("5", "R3")
	flagged.Flagged, flagged.ManuallyUpdated = true, true

	b := charges.Bucketize(
		[]*charges.Charge{listedMatched, listedMissing, replacement, strayUnlisted, flagged},
		charges.FleetInvygo, fleet)

	assert.Equal(t, []*charges.Charge{listedMatched, flagged}, b.Matched.Charges)
	assert.Equal(t, []*charges.Charge{listedMissing}, b.Unmatched.Charges)
	assert.Equal(t, []*charges.Charge{replacement, flagged}, b.Replacement.Charges)
	assert.Equal(t, []*charges.Charge{flagged}, b.Edited.Charges)
	assert.Empty(t, b.Ignored.Charges)
	assert.True(t, decimal.RequireFromString("21").Equal(b.Matched.Total))
}

func TestBucketize_OtherFleetType(t *testing.T) {
	a := charge("1", "X", day(2024, 1, 1), "2")
	a.Contract, a.CustomerName = "K1", "Cust"
	b := charge("2", "Y", day(2024, 1, 1), "3")
	b.Contract = "K2"

	out := charges.Bucketize([]*charges.Charge{a, b}, charges.FleetOther, rental.FleetSet{})

	assert.Equal(t, []*charges.Charge{a}, out.Matched.Charges)
	assert.Equal(t, []*charges.Charge{b}, out.Unmatched.Charges)
	assert.Equal(t, 0, out.Replacement.Count)
	assert.True(t, decimal.NewFromInt(3).Equal(out.Unmatched.Total))

	got, ok := out.ByName("unmatched")
	require.True(t, ok)
	assert.Equal(t, 1, got.Count)
	_, ok = out.ByName("bogus")
	assert.False(t, ok)
}

func TestParseFleetType(t *testing.T) {
	assert.Equal(t, charges.FleetInvygo, charges.ParseFleetType(""))
	assert.Equal(t, charges.FleetInvygo, charges.ParseFleetType("Invygo"))
	assert.Equal(t, charges.FleetOther, charges.ParseFleetType("dealer"))
}

func TestSet_CloneIsIndependent(t *testing.T) {
	orig := charges.NewSet(charges.KindToll, []*charges.Charge{charge("a", "P", day(2024, 1, 1), "1")})
	cp := orig.Clone()
	got, ok := cp.ByID("a")
	require.True(t, ok)
	got.Contract = "CHANGED"

	o, _ := orig.ByID("a")
	assert.Empty(t, o.Contract)
	assert.Equal(t, 1, cp.Len())
}
