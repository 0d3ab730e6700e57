/*
Package sqlite provides a SQLite-backed session.Store.

PURPOSE:
  Persists the latest reconciliation session so a restart picks up where
  the user left off, and keeps an append-only audit log of user actions.

KEY TABLES:
  session_meta:    Key/value: saved_at, contract schema, charge kind,
                   date range, fleet type
  contracts:       One row per contract, upload order in position
  fleet_plates:    Normalized fleet plates, upload order
  dealer_bookings: One row per booking
  charges:         One row per charge, including derived match fields
  audit_log:       Append-only user actions

  Record tables keep their lookup keys as columns and the full record as
  payload_json. Reads always go through the payload.

SNAPSHOT WRITES:
  SaveSnapshot deletes and rewrites every snapshot table inside one
  transaction. A crash mid-save leaves the previous snapshot intact.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. ":memory:" databases are pinned to
  one connection, since every new connection would open a fresh database.

USAGE:
  store, err := sqlite.New("./recon.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - session/store.go: Interface definitions
  - session/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/contract-recon/charges"
	"github.com/warp/contract-recon/generic"
	"github.com/warp/contract-recon/rental"
	"github.com/warp/contract-recon/session"
)

// Timestamps are stored in UTC with a fixed-width fraction so they sort
// lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements session.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ session.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS session_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS contracts (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		number TEXT NOT NULL,
		plate_key TEXT NOT NULL,
		payload_json TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_contracts_number ON contracts(number);
	CREATE INDEX IF NOT EXISTS idx_contracts_plate ON contracts(plate_key);

	CREATE TABLE IF NOT EXISTS fleet_plates (
		position INTEGER PRIMARY KEY,
		plate TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS dealer_bookings (
		position INTEGER PRIMARY KEY,
		agreement TEXT NOT NULL,
		plate_key TEXT NOT NULL,
		payload_json TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_dealer_bookings_agreement ON dealer_bookings(agreement);

	CREATE TABLE IF NOT EXISTS charges (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		plate_key TEXT NOT NULL,
		contract TEXT NOT NULL,
		manually_updated INTEGER NOT NULL DEFAULT 0,
		ignored INTEGER NOT NULL DEFAULT 0,
		payload_json TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_charges_contract ON charges(contract);

	-- Audit log (append-only)
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		ts TEXT NOT NULL,
		actor TEXT NOT NULL,
		action TEXT NOT NULL,
		charge_id TEXT,
		payload_json TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_audit_log_ts ON audit_log(ts);
	CREATE INDEX IF NOT EXISTS idx_audit_log_charge ON audit_log(charge_id) WHERE charge_id IS NOT NULL;
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SNAPSHOT (session.Store interface)
// =============================================================================

const (
	metaSavedAt        = "saved_at"
	metaContractSchema = "contract_schema"
	metaChargeKind     = "charge_kind"
	metaRangeStart     = "range_start"
	metaRangeEnd       = "range_end"
	metaFleetType      = "fleet_type"
)

var snapshotTables = []string{"session_meta", "contracts", "fleet_plates", "dealer_bookings", "charges"}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SaveSnapshot atomically replaces the stored snapshot.
func (s *Store) SaveSnapshot(ctx context.Context, snap session.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, table := range snapshotTables {
		if _, err := sqlTx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if err := saveMeta(ctx, sqlTx, snap); err != nil {
		return err
	}
	for i, c := range snap.Contracts {
		payload, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to encode contract %s: %w", c.ID, err)
		}
		if _, err := sqlTx.ExecContext(ctx,
			`INSERT INTO contracts (id, position, number, plate_key, payload_json) VALUES (?, ?, ?, ?, ?)`,
			c.ID, i, c.Number, c.PlateKey, string(payload)); err != nil {
			return fmt.Errorf("failed to save contract: %w", err)
		}
	}
	for i, p := range snap.Fleet {
		if _, err := sqlTx.ExecContext(ctx,
			`INSERT INTO fleet_plates (position, plate) VALUES (?, ?)`, i, p); err != nil {
			return fmt.Errorf("failed to save fleet plate: %w", err)
		}
	}
	for i, b := range snap.Bookings {
		payload, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("failed to encode booking: %w", err)
		}
		if _, err := sqlTx.ExecContext(ctx,
			`INSERT INTO dealer_bookings (position, agreement, plate_key, payload_json) VALUES (?, ?, ?, ?)`,
			i, b.Agreement, b.PlateKey, string(payload)); err != nil {
			return fmt.Errorf("failed to save booking: %w", err)
		}
	}
	for i, c := range snap.Charges {
		payload, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to encode charge %s: %w", c.ID, err)
		}
		if _, err := sqlTx.ExecContext(ctx, `
			INSERT INTO charges (id, position, plate_key, contract, manually_updated, ignored, payload_json)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.ID, i, c.PlateKey, c.Contract, c.ManuallyUpdated, c.Ignored, string(payload)); err != nil {
			return fmt.Errorf("failed to save charge: %w", err)
		}
	}

	return sqlTx.Commit()
}

func saveMeta(ctx context.Context, db execer, snap session.Snapshot) error {
	meta := map[string]string{
		metaSavedAt:   snap.SavedAt.UTC().Format(tsLayout),
		metaFleetType: string(snap.FleetType),
	}
	if snap.ContractSchema != nil {
		data, err := json.Marshal(snap.ContractSchema)
		if err != nil {
			return fmt.Errorf("failed to encode contract schema: %w", err)
		}
		meta[metaContractSchema] = string(data)
	}
	if snap.ChargeKind != "" {
		meta[metaChargeKind] = string(snap.ChargeKind)
	}
	if snap.Range != nil {
		meta[metaRangeStart] = snap.Range.Start.Format(tsLayout)
		meta[metaRangeEnd] = snap.Range.End.Format(tsLayout)
	}
	for k, v := range meta {
		if _, err := db.ExecContext(ctx, `INSERT INTO session_meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("failed to save %s: %w", k, err)
		}
	}
	return nil
}

// LoadSnapshot returns the stored snapshot; ok is false on an empty database.
func (s *Store) LoadSnapshot(ctx context.Context) (session.Snapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, err := s.loadMeta(ctx)
	if err != nil {
		return session.Snapshot{}, false, err
	}
	savedAt, ok := meta[metaSavedAt]
	if !ok {
		return session.Snapshot{}, false, nil
	}

	var snap session.Snapshot
	snap.SavedAt, _ = time.Parse(tsLayout, savedAt)
	snap.FleetType = charges.FleetType(meta[metaFleetType])
	snap.ChargeKind = charges.Kind(meta[metaChargeKind])
	if raw, ok := meta[metaContractSchema]; ok {
		var schema generic.Schema
		if err := json.Unmarshal([]byte(raw), &schema); err != nil {
			return session.Snapshot{}, false, fmt.Errorf("failed to decode contract schema: %w", err)
		}
		snap.ContractSchema = &schema
	}
	if start, ok := meta[metaRangeStart]; ok {
		r, err := parseRange(start, meta[metaRangeEnd])
		if err != nil {
			return session.Snapshot{}, false, err
		}
		snap.Range = &r
	}

	if err := queryPayloads(ctx, s.db, `SELECT payload_json FROM contracts ORDER BY position`, func(data []byte) error {
		var c rental.Contract
		if err := json.Unmarshal(data, &c); err != nil {
			return err
		}
		snap.Contracts = append(snap.Contracts, &c)
		return nil
	}); err != nil {
		return session.Snapshot{}, false, fmt.Errorf("failed to load contracts: %w", err)
	}

	if err := queryPayloads(ctx, s.db, `SELECT plate FROM fleet_plates ORDER BY position`, func(data []byte) error {
		snap.Fleet = append(snap.Fleet, string(data))
		return nil
	}); err != nil {
		return session.Snapshot{}, false, fmt.Errorf("failed to load fleet: %w", err)
	}

	if err := queryPayloads(ctx, s.db, `SELECT payload_json FROM dealer_bookings ORDER BY position`, func(data []byte) error {
		var b rental.DealerBooking
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		snap.Bookings = append(snap.Bookings, b)
		return nil
	}); err != nil {
		return session.Snapshot{}, false, fmt.Errorf("failed to load bookings: %w", err)
	}

	if err := queryPayloads(ctx, s.db, `SELECT payload_json FROM charges ORDER BY position`, func(data []byte) error {
		var c charges.Charge
		if err := json.Unmarshal(data, &c); err != nil {
			return err
		}
		snap.Charges = append(snap.Charges, &c)
		return nil
	}); err != nil {
		return session.Snapshot{}, false, fmt.Errorf("failed to load charges: %w", err)
	}

	return snap, true, nil
}

func (s *Store) loadMeta(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM session_meta`)
	if err != nil {
		return nil, fmt.Errorf("failed to load session meta: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

func parseRange(start, end string) (generic.DateRange, error) {
	s, err := time.Parse(tsLayout, start)
	if err != nil {
		return generic.DateRange{}, fmt.Errorf("failed to decode range start: %w", err)
	}
	e, err := time.Parse(tsLayout, end)
	if err != nil {
		return generic.DateRange{}, fmt.Errorf("failed to decode range end: %w", err)
	}
	return generic.DateRange{Start: s, End: e}, nil
}

func queryPayloads(ctx context.Context, db *sql.DB, query string, fn func([]byte) error) error {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return err
		}
		if err := fn(data); err != nil {
			return err
		}
	}
	return rows.Err()
}

// =============================================================================
// AUDIT LOG (session.Store interface)
// =============================================================================

// AppendAudit records an entry. Append-only.
func (s *Store) AppendAudit(ctx context.Context, entry session.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var payload sql.NullString
	if len(entry.Payload) > 0 {
		data, err := json.Marshal(entry.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode audit payload: %w", err)
		}
		payload = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, ts, actor, action, charge_id, payload_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.Timestamp.UTC().Format(tsLayout),
		entry.Actor,
		entry.Action,
		nullString(entry.ChargeID),
		payload,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// QueryAudit returns matching entries, oldest first.
func (s *Store) QueryAudit(ctx context.Context, filter session.AuditFilter) ([]session.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where []string
	var args []any
	if filter.ChargeID != nil {
		where = append(where, "charge_id = ?")
		args = append(args, *filter.ChargeID)
	}
	if filter.From != nil {
		where = append(where, "ts >= ?")
		args = append(args, filter.From.UTC().Format(tsLayout))
	}
	if filter.To != nil {
		where = append(where, "ts <= ?")
		args = append(args, filter.To.UTC().Format(tsLayout))
	}
	if len(filter.Actions) > 0 {
		marks := make([]string, len(filter.Actions))
		for i, a := range filter.Actions {
			marks[i] = "?"
			args = append(args, string(a))
		}
		where = append(where, "action IN ("+strings.Join(marks, ", ")+")")
	}

	query := `SELECT id, ts, actor, action, charge_id, payload_json FROM audit_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts, rowid"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	result := []session.AuditEntry{}
	for rows.Next() {
		e, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func scanAudit(rows *sql.Rows) (session.AuditEntry, error) {
	var (
		e        session.AuditEntry
		ts       string
		action   string
		chargeID sql.NullString
		payload  sql.NullString
	)
	if err := rows.Scan(&e.ID, &ts, &e.Actor, &action, &chargeID, &payload); err != nil {
		return session.AuditEntry{}, err
	}
	e.Timestamp, _ = time.Parse(tsLayout, ts)
	e.Action = session.AuditAction(action)
	e.ChargeID = chargeID.String
	if payload.Valid {
		if err := json.Unmarshal([]byte(payload.String), &e.Payload); err != nil {
			return session.AuditEntry{}, fmt.Errorf("failed to decode audit payload: %w", err)
		}
	}
	return e, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears the snapshot tables. The audit log is kept.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range snapshotTables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errors.Join(errors.New("sqlite unavailable"), err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
