/*
handlers.go - HTTP API handlers for contract and charge reconciliation

PURPOSE:
  Exposes the reconciliation session via REST API. Handles HTTP
  request/response, uploads and JSON serialization, and delegates to the
  session for every computation.

ENDPOINTS:
  Datasets (JSON array of rows, or multipart "file" .csv/.xlsx):
    POST   /api/datasets/contracts     Replace rental contracts
    POST   /api/datasets/fleet         Replace fleet plate list
    POST   /api/datasets/bookings      Replace dealer bookings
    POST   /api/datasets/charges       Replace charges (?kind=parking|toll&fleet_type=)

  Range:
    GET    /api/range                  Current window
    PUT    /api/range                  Set window {"start","end"}

  Contracts:
    GET    /api/contracts/active       Contracts overlapping the window
    GET    /api/contracts/repeated     Plates rented more than once
    GET    /api/fleet/unrented         Fleet plates with no contract

  Charges:
    GET    /api/charges                All charges (?bucket=matched|...)
    GET    /api/charges/buckets        Bucket counts and totals
    GET    /api/charges/{id}           One charge
    POST   /api/charges/{id}/match     Manual match {"contract_number"}
    POST   /api/charges/{id}/ignore    Mark as company use

  Session:
    GET    /api/session                Loaded collections and options
    PUT    /api/session/settings       Fleet type / tie-break policy
    GET    /api/audit                  Audit log (?action=&charge_id=&limit=)
    GET    /api/health                 Liveness and store ping

  Scenarios:
    GET    /api/scenarios              List demo scenarios
    POST   /api/scenarios/load         Load a demo scenario
    POST   /api/scenarios/reset        Clear the session

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Session: The reconciliation state (owns all computation)
  - Store: Snapshot + audit persistence (nil = nothing persisted)
  - Records: Rows to typed records
  - Logger: Structured logging of every mutation and failure

REQUEST FLOW:
  1. Parse HTTP request (rows, JSON body, query)
  2. Build typed records via the record factory
  3. Apply to the session (one recompute path per mutation)
  4. Save snapshot + append audit entry
  5. Serialize response

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed upload or body, unknown contract number, bad range
  - 404: Unknown charge id
  - 422: Dataset lacks a required column
  - 500: Internal errors (store failures)

SECURITY NOTE:
  No authentication. The actor recorded in the audit log is taken from the
  X-Actor header as given.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/contract-recon/charges"
	"github.com/warp/contract-recon/factory"
	"github.com/warp/contract-recon/generic"
	"github.com/warp/contract-recon/session"
)

const maxUploadBytes = 32 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Session *session.Session
	Store   session.Store
	Records *factory.RecordFactory
	Logger  *slog.Logger

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler. store may be nil; logger nil discards.
func NewHandler(sess *session.Session, store session.Store, records *factory.RecordFactory, logger *slog.Logger) *Handler {
	if records == nil {
		records = factory.NewRecordFactory(generic.UTC)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{
		Session: sess,
		Store:   store,
		Records: records,
		Logger:  logger,
	}
}

// Restore loads the stored snapshot into the session, if there is one.
func (h *Handler) Restore(ctx context.Context) (bool, error) {
	if h.Store == nil {
		return false, nil
	}
	snap, ok, err := h.Store.LoadSnapshot(ctx)
	if err != nil || !ok {
		return false, err
	}
	if err := h.Session.Restore(snap); err != nil {
		return false, fmt.Errorf("restore snapshot: %w", err)
	}
	h.Logger.Info("session restored",
		"saved_at", snap.SavedAt,
		"contracts", len(snap.Contracts),
		"charges", len(snap.Charges))
	return true, nil
}

// =============================================================================
// DATASET HANDLERS
// =============================================================================

// UploadContracts replaces the contract dataset.
func (h *Handler) UploadContracts(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, factory.DatasetContracts, func(rows []generic.Row) (DatasetResponse, error) {
		set, err := h.Records.Contracts(rows)
		if err != nil {
			return DatasetResponse{}, err
		}
		if err := h.Session.ReplaceContracts(set); err != nil {
			return DatasetResponse{}, err
		}
		return DatasetResponse{Count: set.Len()}, nil
	})
}

// UploadFleet replaces the fleet plate list.
func (h *Handler) UploadFleet(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, factory.DatasetFleet, func(rows []generic.Row) (DatasetResponse, error) {
		fleet, err := h.Records.Fleet(rows)
		if err != nil {
			return DatasetResponse{}, err
		}
		if err := h.Session.ReplaceFleet(fleet); err != nil {
			return DatasetResponse{}, err
		}
		return DatasetResponse{Count: fleet.Len()}, nil
	})
}

// UploadBookings replaces the dealer bookings.
func (h *Handler) UploadBookings(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, factory.DatasetBookings, func(rows []generic.Row) (DatasetResponse, error) {
		b, err := h.Records.Bookings(rows)
		if err != nil {
			return DatasetResponse{}, err
		}
		if err := h.Session.ReplaceBookings(b); err != nil {
			return DatasetResponse{}, err
		}
		return DatasetResponse{Count: b.Len()}, nil
	})
}

// UploadCharges replaces the charge collection. Manual edits on the
// previous collection are dropped.
func (h *Handler) UploadCharges(w http.ResponseWriter, r *http.Request) {
	kind, err := parseKind(r.URL.Query().Get("kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid charge kind", err)
		return
	}
	fleetType := r.URL.Query().Get("fleet_type")

	h.upload(w, r, factory.DatasetCharges, func(rows []generic.Row) (DatasetResponse, error) {
		set, err := h.Records.Charges(rows, kind)
		if err != nil {
			return DatasetResponse{}, err
		}
		if err := h.Session.ReplaceCharges(set); err != nil {
			return DatasetResponse{}, err
		}
		if fleetType != "" {
			if err := h.Session.SetFleetType(charges.ParseFleetType(fleetType)); err != nil {
				return DatasetResponse{}, err
			}
		}
		return DatasetResponse{Count: set.Len(), Kind: set.Kind}, nil
	})
}

// upload reads rows, applies them and records the replacement.
func (h *Handler) upload(w http.ResponseWriter, r *http.Request, dataset string, apply func([]generic.Row) (DatasetResponse, error)) {
	rows, err := readRows(r)
	if err != nil {
		status := http.StatusBadRequest
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			status = http.StatusRequestEntityTooLarge
		}
		h.Logger.Warn("unreadable upload", "dataset", dataset, "error", err)
		writeError(w, status, "Invalid upload", err)
		return
	}

	resp, err := apply(rows)
	if err != nil {
		h.fail(w, fmt.Sprintf("Failed to load %s", dataset), err)
		return
	}
	resp.Dataset = dataset

	h.Logger.Info("dataset replaced", "dataset", dataset, "rows", len(rows), "records", resp.Count)
	payload := map[string]any{"dataset": dataset, "count": resp.Count}
	if resp.Kind != "" {
		payload["kind"] = string(resp.Kind)
	}
	if err := h.persist(r, session.AuditDatasetReplaced, "", payload); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save session", err)
		return
	}

	resp.Session = h.Session.Stats()
	writeJSON(w, http.StatusOK, resp)
}

// readRows accepts a multipart "file" field or a JSON array body.
func readRows(r *http.Request) ([]generic.Row, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return factory.DecodeRows(http.MaxBytesReader(nil, r.Body, maxUploadBytes))
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, fmt.Errorf("parse form: %w", err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("form field \"file\": %w", err)
	}
	defer file.Close()
	return factory.ReadFile(file, header.Filename)
}

func parseKind(s string) (charges.Kind, error) {
	switch k := charges.Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "", charges.KindParking, charges.KindToll:
		return k, nil
	}
	return "", fmt.Errorf("%q is not parking or toll", s)
}

// =============================================================================
// RANGE HANDLERS
// =============================================================================

// GetRange returns the active window, or null.
func (h *Handler) GetRange(w http.ResponseWriter, r *http.Request) {
	rng, _ := h.Session.Range()
	writeJSON(w, http.StatusOK, toRangeDTO(rng))
}

// SetRange sets the active window and re-filters contracts.
func (h *Handler) SetRange(w http.ResponseWriter, r *http.Request) {
	var req RangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rng, err := h.Records.Time.ParseDateRange(req.Start, req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range", err)
		return
	}
	if err := h.Session.SetRange(rng); err != nil {
		h.fail(w, "Failed to apply date range", err)
		return
	}

	dto := toRangeDTO(rng)
	h.Logger.Info("date range changed", "start", dto.Start, "end", dto.End)
	if err := h.persist(r, session.AuditRangeChanged, "", map[string]any{"start": dto.Start, "end": dto.End}); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save session", err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// CONTRACT HANDLERS
// =============================================================================

// GetActiveContracts returns the filtered contracts and the fleet summary.
func (h *Handler) GetActiveContracts(w http.ResponseWriter, r *http.Request) {
	f := h.Session.Filter()
	writeJSON(w, http.StatusOK, ActiveContractsResponse{
		Range:     filterRange(f),
		Contracts: f.Contracts,
		Summary:   f.Summary,
	})
}

// GetRepeatedRentals returns plates rented more than once in the window.
func (h *Handler) GetRepeatedRentals(w http.ResponseWriter, r *http.Request) {
	f := h.Session.Filter()
	writeJSON(w, http.StatusOK, RepeatedResponse{Range: filterRange(f), Groups: f.Repeated})
}

// GetUnrentedPlates returns fleet plates with no contract in the window.
func (h *Handler) GetUnrentedPlates(w http.ResponseWriter, r *http.Request) {
	f := h.Session.Filter()
	writeJSON(w, http.StatusOK, UnrentedResponse{Range: filterRange(f), Plates: f.Unrented, Count: len(f.Unrented)})
}

func filterRange(f session.FilterView) *RangeDTO {
	if !f.HasRange {
		return nil
	}
	return toRangeDTO(f.Range)
}

// =============================================================================
// CHARGE HANDLERS
// =============================================================================

// ListCharges returns every charge, or one bucket's members.
func (h *Handler) ListCharges(w http.ResponseWriter, r *http.Request) {
	name := strings.ToLower(r.URL.Query().Get("bucket"))
	if name == "" {
		list := h.Session.Charges()
		total := decimal.Zero
		for _, c := range list {
			total = total.Add(c.Amount)
		}
		writeJSON(w, http.StatusOK, ChargesResponse{Charges: list, Count: len(list), Total: total.StringFixed(2)})
		return
	}

	bucket, ok := h.Session.Buckets().ByName(name)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown bucket",
			fmt.Errorf("%q is not one of %s", name, strings.Join(bucketOrder, ", ")))
		return
	}
	list := make([]charges.Charge, len(bucket.Charges))
	for i, c := range bucket.Charges {
		list[i] = *c
	}
	writeJSON(w, http.StatusOK, ChargesResponse{
		Bucket:  name,
		Charges: list,
		Count:   bucket.Count,
		Total:   bucket.Total.StringFixed(2),
	})
}

// GetBuckets returns bucket counts and totals.
func (h *Handler) GetBuckets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toBucketsResponse(h.Session.Buckets()))
}

// GetCharge returns one charge.
func (h *Handler) GetCharge(w http.ResponseWriter, r *http.Request) {
	c, err := h.Session.Charge(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "Charge not found", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// MatchCharge binds a charge to a contract number typed by the user.
func (h *Handler) MatchCharge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req MatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.ContractNumber) == "" {
		writeError(w, http.StatusBadRequest, "contract_number is required", nil)
		return
	}

	c, err := h.Session.ManualMatch(id, req.ContractNumber)
	if err != nil {
		h.fail(w, "Failed to match charge", err)
		return
	}

	h.Logger.Info("charge matched manually", "charge_id", id, "contract", c.Contract)
	if err := h.persist(r, session.AuditManualMatch, id, map[string]any{"contract_number": c.Contract}); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save session", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// IgnoreCharge marks a charge as company use.
func (h *Handler) IgnoreCharge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	c, err := h.Session.IgnoreCharge(id)
	if err != nil {
		h.fail(w, "Failed to ignore charge", err)
		return
	}

	h.Logger.Info("charge ignored", "charge_id", id)
	if err := h.persist(r, session.AuditChargeIgnored, id, nil); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save session", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// =============================================================================
// SESSION HANDLERS
// =============================================================================

// GetSession returns what is loaded.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Session.Stats())
}

// UpdateSettings switches fleet type and/or tie-break policy.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.TieBreak != "" {
		tb, err := charges.PolicyByName(req.TieBreak)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Unknown tie-break policy", err)
			return
		}
		if err := h.Session.SetTieBreak(tb); err != nil {
			h.fail(w, "Failed to apply tie-break policy", err)
			return
		}
	}
	if req.FleetType != "" {
		if err := h.Session.SetFleetType(charges.ParseFleetType(req.FleetType)); err != nil {
			h.fail(w, "Failed to apply fleet type", err)
			return
		}
	}

	stats := h.Session.Stats()
	h.Logger.Info("settings changed", "fleet_type", stats.FleetType, "tie_break", stats.TieBreak)
	if err := h.saveSnapshot(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save session", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ListAudit returns audit entries, oldest first.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeJSON(w, http.StatusOK, []session.AuditEntry{})
		return
	}

	filter, err := parseAuditFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid audit filter", err)
		return
	}
	entries, err := h.Store.QueryAudit(r.Context(), filter)
	if err != nil {
		h.Logger.Error("audit query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to query audit log", err)
		return
	}
	if entries == nil {
		entries = []session.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func parseAuditFilter(r *http.Request) (session.AuditFilter, error) {
	q := r.URL.Query()
	var f session.AuditFilter
	for _, a := range q["action"] {
		f.Actions = append(f.Actions, session.AuditAction(a))
	}
	if id := q.Get("charge_id"); id != "" {
		f.ChargeID = &id
	}
	if s := q.Get("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return f, fmt.Errorf("from: %w", err)
		}
		f.From = &t
	}
	if s := q.Get("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return f, fmt.Errorf("to: %w", err)
		}
		f.To = &t
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return f, fmt.Errorf("limit: %q is not a non-negative integer", s)
		}
		f.Limit = n
	}
	return f, nil
}

// pinger is implemented by stores backed by a database.
type pinger interface {
	Ping(ctx context.Context) error
}

// Health reports liveness. The store is pinged when it supports it.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Store: "none"}
	if h.Store != nil {
		resp.Store = "ok"
	}
	if p, ok := h.Store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			h.Logger.Error("store ping failed", "error", err)
			resp.Status, resp.Store = "degraded", err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Index lists the main read endpoints.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, IndexResponse{
		Name: "Contract Reconciliation API",
		Endpoints: map[string]string{
			"/api/session":          "Loaded datasets",
			"/api/contracts/active": "Contracts in range",
			"/api/charges/buckets":  "Charge buckets",
			"/api/scenarios":        "Demo scenarios",
		},
	})
}

// NotFound answers unknown routes with a JSON error.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "route not found", nil)
}

// =============================================================================
// HELPERS
// =============================================================================

// persist saves the snapshot and appends one audit entry.
func (h *Handler) persist(r *http.Request, action session.AuditAction, chargeID string, payload map[string]any) error {
	if h.Store == nil {
		return nil
	}
	ctx := r.Context()
	if err := h.saveSnapshot(ctx); err != nil {
		return err
	}
	entry := session.NewAuditEntry(actor(r), action, chargeID, payload)
	if err := h.Store.AppendAudit(ctx, entry); err != nil {
		h.Logger.Error("audit append failed", "action", action, "error", err)
		return err
	}
	return nil
}

func (h *Handler) saveSnapshot(ctx context.Context) error {
	if h.Store == nil {
		return nil
	}
	if err := h.Store.SaveSnapshot(ctx, h.Session.Snapshot()); err != nil {
		h.Logger.Error("snapshot save failed", "error", err)
		return err
	}
	return nil
}

func actor(r *http.Request) string {
	if a := strings.TrimSpace(r.Header.Get("X-Actor")); a != "" {
		return a
	}
	return "anonymous"
}

// fail maps a domain error to its status code and logs it.
func (h *Handler) fail(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error(message, "error", err)
	} else {
		h.Logger.Warn(message, "status", status, "error", err)
	}
	writeError(w, status, message, err)
}

func statusFor(err error) int {
	switch {
	case generic.IsConfigurationError(err):
		return http.StatusUnprocessableEntity
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case generic.IsClientError(err):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
