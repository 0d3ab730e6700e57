// Package rental implements the contract side of reconciliation.
// It classifies rental contracts as open or closed, filters them by the
// user's date window and derives fleet-level views from the result.
package rental

import (
	"strings"
	"time"

	"github.com/warp/contract-recon/generic"
)

// =============================================================================
// CONTRACT FIELDS - Canonical names and accepted header aliases
// =============================================================================

const (
	FieldContractNumber = "contract_number"
	FieldCustomer       = "customer"
	FieldPlate          = "plate"
	FieldPickup         = "pickup"
	FieldDropoff        = "dropoff"
	FieldStatus         = "status"
	FieldBookingNumber  = "booking_number"
	FieldPickupBranch   = "pickup_branch"
	FieldModel          = "model"
)

// ContractFields lists the accepted headers per field, first match wins.
var ContractFields = []generic.FieldSpec{
	{Field: FieldContractNumber, Candidates: []string{"Contract No."}},
	{Field: FieldCustomer, Candidates: []string{"Customer", "Customer Name"}},
	{Field: FieldPlate, Candidates: []string{"Plate No.", "Plate"}},
	{Field: FieldPickup, Candidates: []string{"Pick-up Date", "Pickup Date"}},
	{Field: FieldDropoff, Candidates: []string{"Drop-off Date", "Dropoff Date", "Drop off Date"}},
	{Field: FieldStatus, Candidates: []string{"Status"}},
	{Field: FieldBookingNumber, Candidates: []string{"Booking Number", "Booking No", "Booking ID"}},
	{Field: FieldPickupBranch, Candidates: []string{"Pick-up Branch", "Pickup Branch", "Branch"}},
	{Field: FieldModel, Candidates: []string{"Model", "Car Model", "Vehicle Model"}},
}

// =============================================================================
// CONTRACT
// =============================================================================

// Contract is one rental agreement with its headers already resolved into
// typed fields. Pickup and Dropoff are zero when absent or unparseable; the
// raw text is kept for display.
type Contract struct {
	ID            string         `json:"id"`
	Number        string         `json:"number"`
	Customer      string         `json:"customer"`
	Plate         string         `json:"plate"`
	PlateKey      string         `json:"plate_key"`
	Pickup        time.Time      `json:"pickup"`
	Dropoff       time.Time      `json:"dropoff"`
	PickupRaw     string         `json:"pickup_raw,omitempty"`
	DropoffRaw    string         `json:"dropoff_raw,omitempty"`
	Status        string         `json:"status"`
	BookingNumber string         `json:"booking_number,omitempty"`
	PickupBranch  string         `json:"pickup_branch,omitempty"`
	Model         string         `json:"model,omitempty"`
	Extra         map[string]any `json:"extra,omitempty"`

	// InvygoListed is set by FilterActive: the plate is in the fleet list.
	InvygoListed bool `json:"invygo_listed"`
}

// ContractSet is one uploaded contract dataset: the resolved schema plus
// the records, indexed by contract number and plate.
type ContractSet struct {
	Schema    generic.Schema
	Contracts []*Contract

	byNumber map[string]*Contract
	byPlate  map[string][]*Contract
}

// NewContractSet indexes contracts. Duplicate contract numbers keep the
// first occurrence for number lookups.
func NewContractSet(schema generic.Schema, contracts []*Contract) *ContractSet {
	s := &ContractSet{
		Schema:    schema,
		Contracts: contracts,
		byNumber:  make(map[string]*Contract, len(contracts)),
		byPlate:   make(map[string][]*Contract),
	}
	for _, c := range contracts {
		if c.Number != "" {
			if _, exists := s.byNumber[c.Number]; !exists {
				s.byNumber[c.Number] = c
			}
		}
		if c.PlateKey != "" {
			s.byPlate[c.PlateKey] = append(s.byPlate[c.PlateKey], c)
		}
	}
	return s
}

// ByNumber finds a contract by exact (trimmed) contract number.
func (s *ContractSet) ByNumber(number string) (*Contract, bool) {
	if s == nil {
		return nil, false
	}
	c, ok := s.byNumber[strings.TrimSpace(number)]
	return c, ok
}

// ByPlate returns every contract for a plate, in upload order. The plate is
// normalized before lookup.
func (s *ContractSet) ByPlate(plate string) []*Contract {
	if s == nil {
		return nil
	}
	return s.byPlate[generic.NormalizePlate(plate)]
}

// Len returns the number of contracts.
func (s *ContractSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Contracts)
}
