/*
store.go - Persistence interface for session snapshots and the audit log

PURPOSE:
  The session engine is pure computation. Durability lives behind this
  interface: the surrounding application saves a Snapshot after each
  successful mutation and restores the latest one on startup.

SNAPSHOT CONTRACT:
  SaveSnapshot replaces the stored snapshot as a whole. Implementations
  must make it atomic: a reader never sees contracts from one upload and
  charges from another.

AUDIT LOG:
  Append-only record of user actions (uploads, range changes, manual
  matches, ignores). There is no Update and no Delete.

IMPLEMENTATIONS:
  - session/store/memory.go: In-memory for tests and dev
  - store/sqlite/sqlite.go: SQLite

SEE ALSO:
  - session.go: Snapshot() / Restore()
*/
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/warp/contract-recon/charges"
	"github.com/warp/contract-recon/generic"
	"github.com/warp/contract-recon/rental"
)

// =============================================================================
// STORE
// =============================================================================

// Store persists the latest session snapshot and the audit log.
type Store interface {
	// SaveSnapshot atomically replaces the stored snapshot.
	SaveSnapshot(ctx context.Context, snap Snapshot) error

	// LoadSnapshot returns the stored snapshot; ok is false when none exists.
	LoadSnapshot(ctx context.Context) (snap Snapshot, ok bool, err error)

	// AppendAudit records one user action.
	AppendAudit(ctx context.Context, entry AuditEntry) error

	// QueryAudit returns matching entries, oldest first.
	QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is the full primary state of a session. Derived views are not
// part of it; Restore recomputes them.
type Snapshot struct {
	SavedAt        time.Time              `json:"saved_at"`
	ContractSchema *generic.Schema        `json:"contract_schema,omitempty"` // nil = no contracts uploaded
	Contracts      []*rental.Contract     `json:"contracts"`
	Fleet          []string               `json:"fleet"`
	Bookings       []rental.DealerBooking `json:"bookings"`
	ChargeKind     charges.Kind           `json:"charge_kind,omitempty"` // blank = no charges uploaded
	Charges        []*charges.Charge      `json:"charges"`
	Range          *generic.DateRange     `json:"range,omitempty"`
	FleetType      charges.FleetType      `json:"fleet_type"`
}

// =============================================================================
// AUDIT LOG
// =============================================================================

// AuditEntry records who did what when.
type AuditEntry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Actor     string         `json:"actor"`
	Action    AuditAction    `json:"action"`
	ChargeID  string         `json:"charge_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

type AuditAction string

const (
	AuditDatasetReplaced AuditAction = "dataset_replaced"
	AuditRangeChanged    AuditAction = "range_changed"
	AuditManualMatch     AuditAction = "manual_match"
	AuditChargeIgnored   AuditAction = "charge_ignored"
	AuditScenarioLoaded  AuditAction = "scenario_loaded"
	AuditSessionReset    AuditAction = "session_reset"
)

// NewAuditEntry stamps an entry with a fresh id and the current time.
func NewAuditEntry(actor string, action AuditAction, chargeID string, payload map[string]any) AuditEntry {
	return AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Actor:     actor,
		Action:    action,
		ChargeID:  chargeID,
		Payload:   payload,
	}
}

// AuditFilter narrows QueryAudit. Zero fields match everything; Limit 0
// means no limit.
type AuditFilter struct {
	Actions  []AuditAction
	ChargeID *string
	From     *time.Time
	To       *time.Time
	Limit    int
}

// Matches reports whether e passes the filter (Limit is not considered).
func (f AuditFilter) Matches(e AuditEntry) bool {
	if f.ChargeID != nil && e.ChargeID != *f.ChargeID {
		return false
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Timestamp.After(*f.To) {
		return false
	}
	if len(f.Actions) == 0 {
		return true
	}
	for _, a := range f.Actions {
		if a == e.Action {
			return true
		}
	}
	return false
}
