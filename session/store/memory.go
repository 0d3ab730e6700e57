// Package store provides in-memory session.Store implementations.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/warp/contract-recon/session"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps the snapshot JSON-encoded so callers can never alias stored
// records, mirroring what a database round trip gives them.
type Memory struct {
	mu       sync.RWMutex
	snapshot []byte
	audit    []session.AuditEntry
}

func NewMemory() *Memory {
	return &Memory{}
}

// SaveSnapshot replaces the stored snapshot.
func (m *Memory) SaveSnapshot(_ context.Context, snap session.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = data
	return nil
}

func (m *Memory) LoadSnapshot(_ context.Context) (session.Snapshot, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.snapshot == nil {
		return session.Snapshot{}, false, nil
	}
	var snap session.Snapshot
	if err := json.Unmarshal(m.snapshot, &snap); err != nil {
		return session.Snapshot{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, true, nil
}

// AppendAudit adds an entry. Append-only.
func (m *Memory) AppendAudit(_ context.Context, entry session.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, entry)
	return nil
}

func (m *Memory) QueryAudit(_ context.Context, filter session.AuditFilter) ([]session.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []session.AuditEntry{}
	for _, e := range m.audit {
		if !filter.Matches(e) {
			continue
		}
		result = append(result, e)
		if filter.Limit > 0 && len(result) == filter.Limit {
			break
		}
	}
	return result, nil
}

var _ session.Store = (*Memory)(nil)
