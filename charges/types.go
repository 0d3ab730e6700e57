/*
Package charges reconciles toll and parking charges against rental contracts.

PURPOSE:
  A charge is one billable event: a plate passed a toll gate or parked at a
  given time. Reconciliation answers "which contract (and so which customer)
  was driving this car at that moment?" and sorts the results into buckets
  the operations team works through.

LIFECYCLE:
  Unresolved -> Matched | Unmatched        automatic, Resolver.Resolve
  Matched | Unmatched -> ManuallyMatched   user edit, Resolver.ApplyManualMatch
  any -> Ignored                           user edit, Ignore

  ManuallyMatched and Ignored are terminal until the charge collection is
  replaced by a fresh upload. Automatic passes skip them.

DERIVED FIELDS:
  Contract, ContractStart, ContractEnd, CustomerName, BookingNumber, Model,
  Branch and Via are written by resolution and cleared together when no
  unique contract is found.

SEE ALSO:
  - resolver.go: Candidate search, tie-break, enrichment
  - buckets.go: matched / unmatched / replacement / edited / ignored
  - rental/: Contract intervals and the fleet list
*/
package charges

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/contract-recon/generic"
)

// =============================================================================
// ENUMS
// =============================================================================

// Kind distinguishes the two charge feeds. They share a record shape but use
// different column names.
type Kind string

const (
	KindParking Kind = "parking"
	KindToll    Kind = "toll"
)

// Via records how a charge reached its contract.
type Via string

const (
	ViaDirect      Via = "direct"      // contract plate equals charge plate
	ViaReplacement Via = "replacement" // dealer booking plate -> agreement
	ViaManual      Via = "manual"      // typed in by the user
)

// FleetType selects the bucket predicate table.
type FleetType string

const (
	FleetInvygo FleetType = "invygo"
	FleetOther  FleetType = "other"
)

// ParseFleetType maps user input to a FleetType. Blank means invygo.
func ParseFleetType(s string) FleetType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(FleetInvygo):
		return FleetInvygo
	default:
		return FleetOther
	}
}

// Sentinel display values.
const (
	IgnoredContract    = "IGNORED"
	CompanyUseCustomer = "Company Use"
	OpenEnd            = "Open"
)

// =============================================================================
// CHARGE FIELDS - Canonical names and accepted header keys
// =============================================================================

const (
	FieldPlate       = "plate"
	FieldDate        = "date"
	FieldTime        = "time"
	FieldAmount      = "amount"
	FieldDescription = "description"
	FieldDirection   = "direction"
)

// ParkingFields and TollFields list the accepted headers per kind. The
// parking feed never uses the Trip_ prefix; tolls accept both spellings.
var (
	ParkingFields = []generic.FieldSpec{
		{Field: FieldPlate, Candidates: []string{"Plate_Number"}},
		{Field: FieldDate, Candidates: []string{"Date"}},
		{Field: FieldTime, Candidates: []string{"Time_In"}},
		{Field: FieldAmount, Candidates: []string{"Amount"}},
		{Field: FieldDescription, Candidates: []string{"Description"}},
		{Field: FieldDirection, Candidates: []string{"Direction"}},
	}
	TollFields = []generic.FieldSpec{
		{Field: FieldPlate, Candidates: []string{"Plate_Number"}},
		{Field: FieldDate, Candidates: []string{"Trip_Date", "Date"}},
		{Field: FieldTime, Candidates: []string{"Trip_Time", "Time_In"}},
		{Field: FieldAmount, Candidates: []string{"Amount"}},
		{Field: FieldDescription, Candidates: []string{"Toll_Gate", "Description"}},
		{Field: FieldDirection, Candidates: []string{"Direction"}},
	}
)

// FieldsFor returns the header table for a kind.
func FieldsFor(k Kind) []generic.FieldSpec {
	if k == KindToll {
		return TollFields
	}
	return ParkingFields
}

// =============================================================================
// CHARGE
// =============================================================================

// Charge is one toll or parking event. At is the date combined with the
// time-in cell; zero when the date is unreadable, in which case the charge
// can never match.
type Charge struct {
	ID          string          `json:"id"`
	Kind        Kind            `json:"kind"`
	Plate       string          `json:"plate"`
	PlateKey    string          `json:"plate_key"`
	DateRaw     string          `json:"date_raw"`
	TimeRaw     string          `json:"time_raw,omitempty"`
	At          time.Time       `json:"at"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	Direction   string          `json:"direction,omitempty"`
	Extra       map[string]any  `json:"extra,omitempty"`

	// Derived by resolution.
	Contract      string `json:"contract"`
	ContractStart string `json:"contract_start"`
	ContractEnd   string `json:"contract_end"`
	CustomerName  string `json:"customer_name"`
	BookingNumber string `json:"booking_number"`
	Model         string `json:"model"`
	Branch        string `json:"branch"`
	Via           Via    `json:"via,omitempty"`

	ManuallyUpdated bool `json:"manually_updated"`
	Ignored         bool `json:"ignored"`
	// Flagged marks a charge the user confirmed as matched even though its
	// plate is not fleet-listed.
	Flagged bool `json:"flagged"`
}

// Clone returns a deep copy. Extra is copied shallowly per key.
func (c *Charge) Clone() *Charge {
	out := *c
	if c.Extra != nil {
		out.Extra = make(map[string]any, len(c.Extra))
		for k, v := range c.Extra {
			out.Extra[k] = v
		}
	}
	return &out
}

// Matched reports whether resolution found a contract.
func (c *Charge) Matched() bool {
	return c.Contract != "" && !c.Ignored
}

func (c *Charge) clearMatch() {
	c.Contract = ""
	c.ContractStart = ""
	c.ContractEnd = ""
	c.CustomerName = ""
	c.BookingNumber = ""
	c.Model = ""
	c.Branch = ""
	c.Via = ""
}

// =============================================================================
// SET - One uploaded charge collection
// =============================================================================

// Set is an ordered charge collection indexed by id.
type Set struct {
	Kind    Kind
	Charges []*Charge
	byID    map[string]int
}

// NewSet indexes charges by id.
func NewSet(kind Kind, list []*Charge) *Set {
	s := &Set{Kind: kind, Charges: list, byID: make(map[string]int, len(list))}
	for i, c := range list {
		s.byID[c.ID] = i
	}
	return s
}

// ByID finds a charge.
func (s *Set) ByID(id string) (*Charge, bool) {
	if s == nil {
		return nil, false
	}
	i, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return s.Charges[i], true
}

// Clone deep-copies every charge so a pass can work without touching the
// published collection.
func (s *Set) Clone() *Set {
	if s == nil {
		return nil
	}
	list := make([]*Charge, len(s.Charges))
	for i, c := range s.Charges {
		list[i] = c.Clone()
	}
	return NewSet(s.Kind, list)
}

// Len returns the number of charges.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Charges)
}
