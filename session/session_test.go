package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/contract-recon/charges"
	"github.com/warp/contract-recon/generic"
	"github.com/warp/contract-recon/rental"
	"github.com/warp/contract-recon/session"
	"github.com/warp/contract-recon/session/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var contractHeaders = []string{"Contract No.", "Customer", "Plate No.", "Pick-up Date", "Drop-off Date", "Status"}

func contracts(list ...*rental.Contract) *rental.ContractSet {
	return rental.NewContractSet(generic.ResolveSchema("contracts", contractHeaders, rental.ContractFields), list)
}

func contract(number, plate, status string, pickup, dropoff time.Time) *rental.Contract {
	return &rental.Contract{
		ID: "k-" + number, Number: number, Plate: plate, PlateKey: generic.NormalizePlate(plate),
		Pickup: pickup, Dropoff: dropoff, Status: status, Customer: "Cust " + number,
	}
}

func chargeSet(list ...*charges.Charge) *charges.Set {
	return charges.NewSet(charges.KindParking, list)
}

func charge(id, plate string, at time.Time) *charges.Charge {
	return &charges.Charge{ID: id, Kind: charges.KindParking, Plate: plate, At: at, Amount: decimal.NewFromInt(5)}
}

func january(t *testing.T) generic.DateRange {
	t.Helper()
	r, err := generic.NewDateRange(day(2024, 1, 1), day(2024, 1, 31))
	require.NoError(t, err)
	return r
}

// loaded returns a session with scenario-style data: A12345 matched, B999
// open, C777 fleet-listed and unrented.
func loaded(t *testing.T) *session.Session {
	t.Helper()
	s := session.New(session.Options{})
	require.NoError(t, s.ReplaceFleet(rental.NewFleetSet("A12345", "B999", "C777")))
	require.NoError(t, s.ReplaceBookings(rental.NewBookings([]rental.DealerBooking{
		{Agreement: "C1", BookingID: "BK1", Customer: "Alice", Plate: "R1"},
		{Agreement: "C2", BookingID: "BK2", Customer: "Bob", Plate: "R2"},
	})))
	require.NoError(t, s.ReplaceContracts(contracts(
		contract("C1", "A12345", "closed", day(2024, 1, 1), day(2024, 1, 10)),
		contract("C2", "B999", "open", day(2024, 1, 3), time.Time{}),
	)))
	require.NoError(t, s.ReplaceCharges(chargeSet(
		charge("p1", "A 12345", day(2024, 1, 5)),
		charge("p2", "ZZZ", day(2024, 1, 5)),
	)))
	require.NoError(t, s.SetRange(january(t)))
	return s
}

// =============================================================================
// RECOMPUTE PATHS
// =============================================================================

func TestSession_FullFlow(t *testing.T) {
	s := loaded(t)

	f := s.Filter()
	require.True(t, f.HasRange)
	assert.Len(t, f.Contracts, 2)
	assert.Equal(t, rental.Summary{InvygoCount: 2}, f.Summary)
	assert.Equal(t, []string{"C777"}, f.Unrented)
	assert.Empty(t, f.Repeated)

	p1, err := s.Charge("p1")
	require.NoError(t, err)
	assert.Equal(t, "C1", p1.Contract)
	assert.Equal(t, "Alice", p1.CustomerName)

	b := s.Buckets()
	assert.Equal(t, 1, b.Matched.Count)
	assert.Equal(t, 0, b.Unmatched.Count)
}

func TestSession_NoRangeSkipsFilter(t *testing.T) {
	s := session.New(session.Options{})
	require.NoError(t, s.ReplaceContracts(contracts(contract("C1", "A1", "open", day(2024, 1, 1), time.Time{}))))

	f := s.Filter()
	assert.False(t, f.HasRange)
	assert.Empty(t, f.Contracts)
	_, ok := s.Range()
	assert.False(t, ok)
}

func TestSession_ConfigurationErrorKeepsPreviousState(t *testing.T) {
	// GIVEN: A session with a valid contract dataset
	s := loaded(t)
	before := s.Filter()

	// WHEN: Uploading contracts without a drop-off column
	bad := rental.NewContractSet(
		generic.ResolveSchema("contracts", []string{"Contract No.", "Plate", "Pickup Date"}, rental.ContractFields),
		[]*rental.Contract{contract("X", "A12345", "closed", day(2024, 1, 1), day(2024, 1, 2))},
	)
	err := s.ReplaceContracts(bad)

	// THEN: Rejected, nothing changed
	require.Error(t, err)
	assert.True(t, generic.IsConfigurationError(err))
	assert.Equal(t, before, s.Filter())
	assert.Equal(t, 2, s.Stats().Contracts)
}

func TestSession_RangeChangeRefilters(t *testing.T) {
	s := loaded(t)

	feb, err := generic.NewDateRange(day(2024, 2, 1), day(2024, 2, 29))
	require.NoError(t, err)
	require.NoError(t, s.SetRange(feb))

	f := s.Filter()
	require.Len(t, f.Contracts, 1)
	assert.Equal(t, "C2", f.Contracts[0].Number)
	assert.Equal(t, []string{"A12345", "C777"}, f.Unrented)

	assert.ErrorIs(t, s.SetRange(generic.DateRange{}), generic.ErrInvalidRange)
}

func TestSession_ViewsAreCopies(t *testing.T) {
	s := loaded(t)

	f := s.Filter()
	f.Contracts[0].Number = "MUTATED"
	all := s.Charges()
	all[0].Contract = "MUTATED"

	assert.Equal(t, "C1", s.Filter().Contracts[0].Number)
	p1, _ := s.Charge("p1")
	assert.Equal(t, "C1", p1.Contract)
}

// =============================================================================
// CHARGE EDITS
// =============================================================================

func TestSession_ManualMatchSurvivesContractReupload(t *testing.T) {
	// GIVEN: p2 unmatched, manually bound to C2
	s := loaded(t)
	got, err := s.ManualMatch("p2", "C2")
	require.NoError(t, err)
	assert.Equal(t, "C2", got.Contract)
	assert.True(t, got.ManuallyUpdated)
	assert.Equal(t, 1, s.Buckets().Edited.Count)

	// WHEN: Contracts are re-uploaded and everything is re-resolved
	require.NoError(t, s.OnContractsChanged())

	// THEN: The manual match stands
	p2, err := s.Charge("p2")
	require.NoError(t, err)
	assert.Equal(t, "C2", p2.Contract)
	assert.Equal(t, charges.ViaManual, p2.Via)
}

func TestSession_ManualMatchUnknownContract(t *testing.T) {
	s := loaded(t)
	before, _ := s.Charge("p2")

	_, err := s.ManualMatch("p2", "NOPE")

	assert.ErrorIs(t, err, generic.ErrContractNotFound)
	after, _ := s.Charge("p2")
	assert.Equal(t, before, after)
}

func TestSession_EditUnknownCharge(t *testing.T) {
	s := loaded(t)
	_, err := s.IgnoreCharge("missing")
	assert.True(t, generic.IsNotFound(err))
}

func TestSession_IgnoreThenReuploadStartsOver(t *testing.T) {
	s := loaded(t)
	got, err := s.IgnoreCharge("p1")
	require.NoError(t, err)
	assert.Equal(t, charges.IgnoredContract, got.Contract)
	assert.Equal(t, 1, s.Buckets().Ignored.Count)
	assert.Equal(t, 0, s.Buckets().Matched.Count)

	require.NoError(t, s.ReplaceCharges(chargeSet(charge("p1", "A12345", day(2024, 1, 5)))))

	p1, _ := s.Charge("p1")
	assert.False(t, p1.Ignored)
	assert.Equal(t, "C1", p1.Contract)
}

func TestSession_FleetTypeSwitchRebuckets(t *testing.T) {
	s := loaded(t)
	require.NoError(t, s.SetFleetType(charges.FleetOther))

	b := s.Buckets()
	assert.Equal(t, charges.FleetOther, b.FleetType)
	assert.Equal(t, 1, b.Matched.Count)
	assert.Equal(t, 1, b.Unmatched.Count)
}

func TestSession_ConcurrentReadsDuringEdits(t *testing.T) {
	s := loaded(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.Filter()
			_ = s.Buckets()
		}()
		go func() {
			defer wg.Done()
			_ = s.OnContractsChanged()
		}()
	}
	wg.Wait()
	p1, _ := s.Charge("p1")
	assert.Equal(t, "C1", p1.Contract)
}

// =============================================================================
// SNAPSHOT
// =============================================================================

func TestSession_SnapshotRoundTripThroughStore(t *testing.T) {
	// GIVEN: A session with a manual edit, saved to a store
	ctx := context.Background()
	s := loaded(t)
	_, err := s.ManualMatch("p2", "C2")
	require.NoError(t, err)
	mem := store.NewMemory()
	require.NoError(t, mem.SaveSnapshot(ctx, s.Snapshot()))

	// WHEN: A fresh session restores it
	snap, ok, err := mem.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	restored := session.New(session.Options{})
	require.NoError(t, restored.Restore(snap))

	// THEN: Views and edits match the original
	assert.Equal(t, s.Filter().Unrented, restored.Filter().Unrented)
	assert.Equal(t, s.Stats(), restored.Stats())
	p2, err := restored.Charge("p2")
	require.NoError(t, err)
	assert.Equal(t, "C2", p2.Contract)
	assert.True(t, p2.ManuallyUpdated)
	assert.Equal(t, s.Buckets().Edited.Count, restored.Buckets().Edited.Count)
}

func TestSession_Reset(t *testing.T) {
	s := loaded(t)
	s.Reset()
	st := s.Stats()
	assert.Zero(t, st.Contracts)
	assert.Zero(t, st.Charges)
	assert.False(t, st.HasRange)
	assert.Equal(t, charges.PolicyOpenThenLatest, st.TieBreak)
}
