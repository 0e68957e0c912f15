package postgres

import (
	"context"
	"fmt"

	"shop-analytics/internal/domain"
	"shop-analytics/internal/storage"
)

// CheckpointStore implements storage.CheckpointStore using PostgreSQL.
type CheckpointStore struct {
	pool *Pool
}

// NewCheckpointStore creates a new CheckpointStore.
func NewCheckpointStore(pool *Pool) *CheckpointStore {
	return &CheckpointStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CheckpointStore = (*CheckpointStore)(nil)

// Mark records a completed entity, overwriting the run id on conflict.
func (s *CheckpointStore) Mark(ctx context.Context, cp domain.Checkpoint) error {
	if cp.Stage == "" || cp.EntityKey == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO report_checkpoints (stage, entity_key, run_id, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (stage, entity_key) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			updated_at = NOW()
	`, string(cp.Stage), cp.EntityKey, cp.RunID)
	if err != nil {
		return fmt.Errorf("mark checkpoint %s/%s: %w", cp.Stage, cp.EntityKey, err)
	}
	return nil
}

// Completed returns entity keys already marked for the stage.
func (s *CheckpointStore) Completed(ctx context.Context, stage domain.ScopeKind) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT entity_key FROM report_checkpoints WHERE stage = $1
	`, string(stage))
	if err != nil {
		return nil, fmt.Errorf("query checkpoints: %w", err)
	}
	defer rows.Close()

	result := make(map[string]bool)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		result[key] = true
	}
	return result, rows.Err()
}

// Clear removes every checkpoint of the stage.
func (s *CheckpointStore) Clear(ctx context.Context, stage domain.ScopeKind) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM report_checkpoints WHERE stage = $1`, string(stage))
	if err != nil {
		return fmt.Errorf("clear checkpoints: %w", err)
	}
	return nil
}
