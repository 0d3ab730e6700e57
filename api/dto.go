/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Domain records
  (rental.Contract, charges.Charge) already carry JSON tags and are
  returned as-is; the types here wrap them with counts, ranges and
  formatted amounts.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Datasets:
    DatasetResponse

  Range:
    RangeRequest, RangeDTO

  Contracts:
    ActiveContractsResponse, RepeatedResponse, UnrentedResponse

  Charges:
    ChargesResponse, BucketDTO, BucketsResponse, MatchRequest

  Session:
    SettingsRequest, HealthResponse

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - session/session.go: FilterView, Stats
*/
package api

import (
	"github.com/warp/contract-recon/charges"
	"github.com/warp/contract-recon/generic"
	"github.com/warp/contract-recon/rental"
	"github.com/warp/contract-recon/session"
)

// =============================================================================
// DATASETS
// =============================================================================

// DatasetResponse is returned after a dataset replacement.
type DatasetResponse struct {
	Dataset string        `json:"dataset"`
	Count   int           `json:"count"`
	Kind    charges.Kind  `json:"kind,omitempty"`
	Session session.Stats `json:"session"`
}

// =============================================================================
// RANGE
// =============================================================================

// RangeRequest sets the active window. Dates accept every format the
// upload parser does ("31/01/2024", "2024-01-31", ...).
type RangeRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// RangeDTO is an inclusive window rendered as dd/mm/yyyy dates.
type RangeDTO struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func toRangeDTO(r generic.DateRange) *RangeDTO {
	if r.IsZero() {
		return nil
	}
	return &RangeDTO{
		Start: r.Start.Format(generic.DateOnlyLayout),
		End:   r.End.Format(generic.DateOnlyLayout),
	}
}

// =============================================================================
// CONTRACTS
// =============================================================================

// ActiveContractsResponse lists the contracts overlapping the window.
type ActiveContractsResponse struct {
	Range     *RangeDTO         `json:"range"`
	Contracts []rental.Contract `json:"contracts"`
	Summary   rental.Summary    `json:"summary"`
}

// RepeatedResponse lists plates rented more than once in the window.
type RepeatedResponse struct {
	Range  *RangeDTO                   `json:"range"`
	Groups []session.RepeatedGroupView `json:"groups"`
}

// UnrentedResponse lists fleet plates with no contract in the window.
type UnrentedResponse struct {
	Range  *RangeDTO `json:"range"`
	Plates []string  `json:"plates"`
	Count  int       `json:"count"`
}

// =============================================================================
// CHARGES
// =============================================================================

// ChargesResponse is a charge listing, optionally restricted to a bucket.
type ChargesResponse struct {
	Bucket  string           `json:"bucket,omitempty"`
	Charges []charges.Charge `json:"charges"`
	Count   int              `json:"count"`
	Total   string           `json:"total"`
}

// BucketDTO is one bucket without its members.
type BucketDTO struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
	Total string `json:"total"`
}

// BucketsResponse summarizes every bucket for the active fleet type.
type BucketsResponse struct {
	FleetType charges.FleetType `json:"fleet_type"`
	Buckets   []BucketDTO       `json:"buckets"`
}

var bucketOrder = []string{
	charges.BucketMatched,
	charges.BucketUnmatched,
	charges.BucketReplacement,
	charges.BucketEdited,
	charges.BucketIgnored,
}

func toBucketsResponse(b charges.Buckets) BucketsResponse {
	resp := BucketsResponse{FleetType: b.FleetType, Buckets: make([]BucketDTO, 0, len(bucketOrder))}
	for _, name := range bucketOrder {
		bucket, _ := b.ByName(name)
		resp.Buckets = append(resp.Buckets, BucketDTO{
			Name:  name,
			Count: bucket.Count,
			Total: bucket.Total.StringFixed(2),
		})
	}
	return resp
}

// MatchRequest assigns a contract number to a charge by hand.
type MatchRequest struct {
	ContractNumber string `json:"contract_number"`
}

// =============================================================================
// SESSION
// =============================================================================

// SettingsRequest changes session options. Blank fields are left alone.
type SettingsRequest struct {
	FleetType string `json:"fleet_type"`
	TieBreak  string `json:"tie_break"`
}

// HealthResponse reports liveness and store reachability.
type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// LoadScenarioRequest selects a demo scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// IndexResponse is served at the root path.
type IndexResponse struct {
	Name      string            `json:"name"`
	Endpoints map[string]string `json:"endpoints"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
