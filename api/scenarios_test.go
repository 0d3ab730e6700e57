/*
scenarios_test.go - Unit tests for demo scenarios

PURPOSE:
	Tests that each scenario loads through the record factory and ends in
	the reconciliation state it describes. They double as end-to-end
	checks of upload -> resolve -> filter -> bucket.
*/
package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/contract-recon/charges"
	"github.com/warp/contract-recon/session"
)

func loadTestScenario(t *testing.T, id string) *testServer {
	t.Helper()
	ts := setupTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: id})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return ts
}

func TestScenario_ClosedContract(t *testing.T) {
	// GIVEN/WHEN: closed-contract is loaded
	ts := loadTestScenario(t, "closed-contract")

	// THEN: The spaced plate resolves to C1 with a date-only end
	list := ts.h.Session.Charges()
	require.Len(t, list, 1)
	assert.Equal(t, "C1", list[0].Contract)
	assert.Equal(t, "10/01/2024", list[0].ContractEnd)
	assert.Equal(t, "10:30", list[0].TimeRaw)
	assert.Equal(t, 1, ts.h.Session.Buckets().Matched.Count)
}

func TestScenario_OpenContract(t *testing.T) {
	ts := loadTestScenario(t, "open-contract")

	list := ts.h.Session.Charges()
	require.Len(t, list, 1)
	assert.Equal(t, "C2", list[0].Contract)
	assert.Equal(t, charges.OpenEnd, list[0].ContractEnd)
}

func TestScenario_UnrentedFleet(t *testing.T) {
	ts := loadTestScenario(t, "unrented-fleet")

	f := ts.h.Session.Filter()
	assert.Len(t, f.Contracts, 2)
	assert.Equal(t, []string{"C777"}, f.Unrented)
}

func TestScenario_Overlapping(t *testing.T) {
	// GIVEN/WHEN: Two January contracts on D1
	ts := loadTestScenario(t, "overlapping")

	// THEN: The later pickup wins and D1 is a repeated rental
	list := ts.h.Session.Charges()
	require.Len(t, list, 1)
	assert.Equal(t, "D-LATE", list[0].Contract)
	assert.Equal(t, "Dev", list[0].CustomerName)

	f := ts.h.Session.Filter()
	require.Len(t, f.Repeated, 1)
	assert.Equal(t, "D1", f.Repeated[0].Plate)
	assert.Equal(t, charges.FleetOther, ts.h.Session.Buckets().FleetType)
	assert.Equal(t, 1, ts.h.Session.Buckets().Matched.Count)
}

func TestScenario_Replacement(t *testing.T) {
	// GIVEN/WHEN: A toll on a plate only the dealer booking knows
	ts := loadTestScenario(t, "replacement")

	// THEN: It resolves through the booking and lands in replacement
	list := ts.h.Session.Charges()
	require.Len(t, list, 1)
	c := list[0]
	assert.Equal(t, charges.KindToll, c.Kind)
	assert.Equal(t, "K500", c.Contract)
	assert.Equal(t, charges.ViaReplacement, c.Via)
	assert.Equal(t, "BK500", c.BookingNumber)
	assert.Equal(t, "Nissan Sunny 2023", c.Model)

	b := ts.h.Session.Buckets()
	assert.Equal(t, 1, b.Replacement.Count)
	assert.Equal(t, 0, b.Matched.Count)
}

func TestScenario_IgnoredCharge(t *testing.T) {
	ts := loadTestScenario(t, "ignored-charge")

	b := ts.h.Session.Buckets()
	assert.Equal(t, 1, b.Matched.Count)
	require.Equal(t, 1, b.Ignored.Count)
	assert.Equal(t, charges.IgnoredContract, b.Ignored.Charges[0].Contract)
	assert.Equal(t, "6.00", b.Ignored.Total.StringFixed(2))
}

func TestScenarios_AllLoad(t *testing.T) {
	for _, s := range scenarios {
		t.Run(s.ID, func(t *testing.T) {
			h := NewHandler(session.New(session.Options{}), nil, nil, nil)
			require.NoError(t, h.loadScenario(s))
			_, hasRange := h.Session.Range()
			assert.True(t, hasRange)
		})
	}
}

func TestScenario_UnknownAndCurrent(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "replacement"}).Code)
	current := decode[ScenarioDTO](t, ts.do(t, http.MethodGet, "/api/scenarios/current", nil))
	assert.Equal(t, "replacement", current.ID)

	listed := decode[[]ScenarioDTO](t, ts.do(t, http.MethodGet, "/api/scenarios", nil))
	assert.Len(t, listed, len(scenarios))
}

func TestResetSession(t *testing.T) {
	// GIVEN: A loaded scenario, saved to the store
	ts := loadTestScenario(t, "closed-contract")

	// WHEN: Resetting
	rec := ts.do(t, http.MethodPost, "/api/scenarios/reset", nil)

	// THEN: Nothing is loaded or saved, and the reset is audited
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[session.Stats](t, ts.do(t, http.MethodGet, "/api/session", nil))
	assert.Zero(t, stats.Contracts)
	assert.Zero(t, stats.Charges)
	assert.False(t, stats.HasRange)

	ok, err := ts.h.Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	entries := decode[[]session.AuditEntry](t, ts.do(t, http.MethodGet, "/api/audit", nil))
	require.Len(t, entries, 2)
	assert.Equal(t, session.AuditScenarioLoaded, entries[0].Action)
	assert.Equal(t, session.AuditSessionReset, entries[1].Action)
}
