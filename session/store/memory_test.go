package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/contract-recon/rental"
	"github.com/warp/contract-recon/session"
	"github.com/warp/contract-recon/session/store"
)

func TestMemory_SnapshotIsNotAliased(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	_, ok, err := m.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	c := &rental.Contract{ID: "k1", Number: "C1"}
	require.NoError(t, m.SaveSnapshot(ctx, session.Snapshot{Contracts: []*rental.Contract{c}}))
	c.Number = "CHANGED"

	got, ok, err := m.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "C1", got.Contracts[0].Number)
}

func TestMemory_AuditFilterAndLimit(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, a := range []session.AuditAction{session.AuditRangeChanged, session.AuditManualMatch, session.AuditManualMatch} {
		require.NoError(t, m.AppendAudit(ctx, session.AuditEntry{
			ID: string(rune('a' + i)), Timestamp: base.Add(time.Duration(i) * time.Hour), Action: a,
		}))
	}

	got, err := m.QueryAudit(ctx, session.AuditFilter{Actions: []session.AuditAction{session.AuditManualMatch}, Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)

	to := base.Add(30 * time.Minute)
	early, err := m.QueryAudit(ctx, session.AuditFilter{To: &to})
	require.NoError(t, err)
	require.Len(t, early, 1)
	assert.Equal(t, "a", early[0].ID)
}
