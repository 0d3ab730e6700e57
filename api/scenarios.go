/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built datasets that populate the session with small,
	readable examples. Each scenario reproduces one reconciliation rule so
	it can be inspected end to end through the API.

AVAILABLE SCENARIOS:

	closed-contract:  Charge inside a closed contract, spaced plate
	open-contract:    Charge on an open contract, end reads "Open"
	unrented-fleet:   Fleet plate with no contract in the window
	overlapping:      Two contracts cover the charge, latest pickup wins
	replacement:      Charge on a replacement car, matched via the booking
	ignored-charge:   Matched charge marked as company use

HOW SCENARIOS WORK:
 1. Reset the session
 2. Set the fleet type
 3. Upload fleet, bookings, contracts, charges as rows (same factory path
    as real uploads)
 4. Set the date range
 5. Apply follow-up edits (ignore)

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "replacement"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description and rows
 2. Nothing else: loadScenario handles every dataset generically

NOTE:

	Scenarios reset the session. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Upload handlers share the record factory
  - factory/records.go: Header aliases used in the rows below
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/warp/contract-recon/charges"
	"github.com/warp/contract-recon/generic"
	"github.com/warp/contract-recon/session"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO
	FleetType  charges.FleetType
	Fleet      []generic.Row
	Bookings   []generic.Row
	Contracts  []generic.Row
	Charges    []generic.Row
	ChargeKind charges.Kind
	Start, End string
	Ignore     []int // charge positions to ignore after loading
}

func contractRow(number, customer, plate, pickup, dropoff, status string) generic.Row {
	return generic.Row{
		"Contract No.":  number,
		"Customer":      customer,
		"Plate No.":     plate,
		"Pick-up Date":  pickup,
		"Drop-off Date": dropoff,
		"Status":        status,
	}
}

func bookingRow(agreement, bookingID, customer, plate string) generic.Row {
	return generic.Row{"Agreement": agreement, "Booking ID": bookingID, "Customer": customer, "Plate": plate}
}

func parkingRow(plate, date, timeIn, amount, description string) generic.Row {
	return generic.Row{"Plate_Number": plate, "Date": date, "Time_In": timeIn, "Amount": amount, "Description": description}
}

func plates(list ...string) []generic.Row {
	rows := make([]generic.Row, len(list))
	for i, p := range list {
		rows[i] = generic.Row{"Plate": p}
	}
	return rows
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "closed-contract",
			Name:        "Closed Contract",
			Description: "Parking charge on A 12345 falls inside closed contract C1 (01/01 - 10/01)",
			Category:    "charges",
		},
		Fleet:      plates("A12345"),
		Bookings:   []generic.Row{bookingRow("C1", "BK1", "Alice", "A12345")},
		Contracts:  []generic.Row{contractRow("C1", "Alice", "A12345", "01/01/2024", "10/01/2024", "Closed")},
		Charges:    []generic.Row{parkingRow("A 12345", "05/01/2024", "10:30 AM", "12.50", "Mall parking")},
		ChargeKind: charges.KindParking,
		Start:      "01/01/2024",
		End:        "31/01/2024",
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "open-contract",
			Name:        "Open Contract",
			Description: "Charge on b999 resolves to open contract C2; its end reads Open",
			Category:    "charges",
		},
		Fleet:      plates("B999"),
		Bookings:   []generic.Row{bookingRow("C2", "BK2", "Bob", "B999")},
		Contracts:  []generic.Row{contractRow("C2", "Bob", "B999", "01/02/2024", "", "Open")},
		Charges:    []generic.Row{parkingRow("b999", "01/03/2024", "18:05", "8", "Street parking")},
		ChargeKind: charges.KindParking,
		Start:      "01/02/2024",
		End:        "31/03/2024",
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "unrented-fleet",
			Name:        "Unrented Fleet",
			Description: "Fleet of three plates, contracts on two; C777 is unrented in January",
			Category:    "contracts",
		},
		Fleet: plates("A12345", "B999", "C777"),
		Contracts: []generic.Row{
			contractRow("C1", "Alice", "A12345", "01/01/2024", "10/01/2024", "Closed"),
			contractRow("C2", "Bob", "B999", "03/01/2024", "", "Open"),
		},
		Start: "01/01/2024",
		End:   "31/01/2024",
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "overlapping",
			Name:        "Overlapping Contracts",
			Description: "Two contracts on D1 both cover 16/01; the one picked up on 15/01 wins",
			Category:    "charges",
		},
		FleetType: charges.FleetOther,
		Contracts: []generic.Row{
			contractRow("D-EARLY", "Dana", "D1", "01/01/2024", "31/01/2024", "Closed"),
			contractRow("D-LATE", "Dev", "D1", "15/01/2024", "15/02/2024", "Closed"),
		},
		Charges:    []generic.Row{parkingRow("D1", "16/01/2024", "09:00", "15", "Airport")},
		ChargeKind: charges.KindParking,
		Start:      "01/01/2024",
		End:        "31/01/2024",
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "replacement",
			Name:        "Replacement Vehicle",
			Description: "Toll on E1 (not in fleet) resolves via dealer booking to contract K500",
			Category:    "charges",
		},
		Fleet: plates("X500"),
		Bookings: []generic.Row{{
			"Agreement": "K500", "Booking ID": "BK500", "Customer": "Eve", "Plate": "E1",
			"Brand Name": "Nissan", "Car Name": "Sunny", "Car Year": "2023",
		}},
		Contracts: []generic.Row{contractRow("K500", "Eve", "X500", "01/01/2024", "20/01/2024", "Closed")},
		Charges: []generic.Row{{
			"Plate_Number": "E1", "Trip_Date": "10/01/2024", "Trip_Time": "07:45", "Amount": "4", "Toll_Gate": "Al Garhoud",
		}},
		ChargeKind: charges.KindToll,
		Start:      "01/01/2024",
		End:        "31/01/2024",
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "ignored-charge",
			Name:        "Ignored Charge",
			Description: "A matched charge is marked as company use and leaves the matched bucket",
			Category:    "charges",
		},
		Fleet:    plates("A12345"),
		Bookings: []generic.Row{bookingRow("C1", "BK1", "Alice", "A12345")},
		Contracts: []generic.Row{
			contractRow("C1", "Alice", "A12345", "01/01/2024", "10/01/2024", "Closed"),
		},
		Charges: []generic.Row{
			parkingRow("A12345", "05/01/2024", "10:30", "12.50", "Mall parking"),
			parkingRow("A12345", "06/01/2024", "14:00", "6", "Office parking"),
		},
		ChargeKind: charges.KindParking,
		Start:      "01/01/2024",
		End:        "31/01/2024",
		Ignore:     []int{1},
	},
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	out := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		out[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, out)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	id := h.currentScenario
	h.mu.Unlock()

	if s, ok := findScenario(id); ok {
		writeJSON(w, http.StatusOK, s.ScenarioDTO)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the session and loads a scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	s, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("no scenario %q", req.ScenarioID))
		return
	}

	if err := h.loadScenario(s); err != nil {
		h.Logger.Error("scenario load failed", "scenario", s.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = s.ID
	h.mu.Unlock()

	h.Logger.Info("scenario loaded", "scenario", s.ID)
	if err := h.persist(r, session.AuditScenarioLoaded, "", map[string]any{"scenario_id": s.ID}); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save session", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scenario": s.ScenarioDTO,
		"session":  h.Session.Stats(),
	})
}

// resetter is implemented by stores that can drop the saved snapshot.
type resetter interface {
	Reset(ctx context.Context) error
}

// ResetSession clears every dataset and the range.
func (h *Handler) ResetSession(w http.ResponseWriter, r *http.Request) {
	h.Session.Reset()
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()

	var err error
	if rs, ok := h.Store.(resetter); ok {
		if err = rs.Reset(r.Context()); err == nil {
			err = h.Store.AppendAudit(r.Context(), session.NewAuditEntry(actor(r), session.AuditSessionReset, "", nil))
		}
	} else {
		err = h.persist(r, session.AuditSessionReset, "", nil)
	}
	if err != nil {
		h.Logger.Error("session reset not persisted", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to reset session", err)
		return
	}

	h.Logger.Info("session reset")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// SCENARIO LOADER
// =============================================================================

func (h *Handler) loadScenario(s scenario) error {
	h.Session.Reset()

	ft := s.FleetType
	if ft == "" {
		ft = charges.FleetInvygo
	}
	if err := h.Session.SetFleetType(ft); err != nil {
		return err
	}

	if len(s.Fleet) > 0 {
		fleet, err := h.Records.Fleet(s.Fleet)
		if err != nil {
			return fmt.Errorf("fleet: %w", err)
		}
		if err := h.Session.ReplaceFleet(fleet); err != nil {
			return err
		}
	}
	if len(s.Bookings) > 0 {
		b, err := h.Records.Bookings(s.Bookings)
		if err != nil {
			return fmt.Errorf("bookings: %w", err)
		}
		if err := h.Session.ReplaceBookings(b); err != nil {
			return err
		}
	}
	if len(s.Contracts) > 0 {
		set, err := h.Records.Contracts(s.Contracts)
		if err != nil {
			return fmt.Errorf("contracts: %w", err)
		}
		if err := h.Session.ReplaceContracts(set); err != nil {
			return err
		}
	}
	if len(s.Charges) > 0 {
		set, err := h.Records.Charges(s.Charges, s.ChargeKind)
		if err != nil {
			return fmt.Errorf("charges: %w", err)
		}
		if err := h.Session.ReplaceCharges(set); err != nil {
			return err
		}
	}

	rng, err := h.Records.Time.ParseDateRange(s.Start, s.End)
	if err != nil {
		return err
	}
	if err := h.Session.SetRange(rng); err != nil {
		return err
	}

	loaded := h.Session.Charges()
	for _, i := range s.Ignore {
		if _, err := h.Session.IgnoreCharge(loaded[i].ID); err != nil {
			return err
		}
	}
	return nil
}
