package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop-analytics/internal/domain"
	"shop-analytics/internal/storage"
)

func TestCheckpointStore(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCheckpointStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Mark(ctx, domain.Checkpoint{Stage: domain.ScopeProduct, EntityKey: "widget", RunID: "r1"}))
	require.NoError(t, store.Mark(ctx, domain.Checkpoint{Stage: domain.ScopeProduct, EntityKey: "widget", RunID: "r2"}))
	require.NoError(t, store.Mark(ctx, domain.Checkpoint{Stage: domain.ScopeListing, EntityKey: "100", RunID: "r2"}))

	done, err := store.Completed(ctx, domain.ScopeProduct)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"widget": true}, done)

	var runID string
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT run_id FROM report_checkpoints WHERE stage = 'product' AND entity_key = 'widget'`,
	).Scan(&runID))
	assert.Equal(t, "r2", runID)

	require.NoError(t, store.Clear(ctx, domain.ScopeProduct))
	done, err = store.Completed(ctx, domain.ScopeProduct)
	require.NoError(t, err)
	assert.Empty(t, done)

	listings, err := store.Completed(ctx, domain.ScopeListing)
	require.NoError(t, err)
	assert.Len(t, listings, 1)
}

func TestCheckpointStore_RejectsInvalid(t *testing.T) {
	store := NewCheckpointStore(nil)
	err := store.Mark(context.Background(), domain.Checkpoint{Stage: domain.ScopeProduct})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
