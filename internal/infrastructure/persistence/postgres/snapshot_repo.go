package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alem-hub/studygroup-stats/internal/domain/stats"
)

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT REPOSITORY
// The whole snapshot is stored as one JSONB payload so a save replaces it
// atomically. Implements stats.SnapshotRepository.
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotRepository stores the latest snapshot per (group, period).
type SnapshotRepository struct {
	conn *Connection
}

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(conn *Connection) *SnapshotRepository {
	return &SnapshotRepository{conn: conn}
}

// Get returns the snapshot or stats.ErrSnapshotNotFound.
func (r *SnapshotRepository) Get(ctx context.Context, key stats.Key) (*stats.Snapshot, error) {
	var payload []byte
	err := r.conn.QueryRow(ctx,
		`SELECT payload FROM group_stats_snapshots WHERE group_id = $1 AND period_type = $2`,
		key.GroupID, string(key.Period),
	).Scan(&payload)
	if err != nil {
		if IsNoRows(err) {
			return nil, stats.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var snap stats.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Save upserts the snapshot for its (group, period).
func (r *SnapshotRepository) Save(ctx context.Context, snapshot *stats.Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	query := `
		INSERT INTO group_stats_snapshots (group_id, period_type, id, payload, last_computed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (group_id, period_type) DO UPDATE SET
			id = EXCLUDED.id,
			payload = EXCLUDED.payload,
			last_computed_at = EXCLUDED.last_computed_at
	`
	_, err = r.conn.Exec(ctx, query,
		snapshot.GroupID, string(snapshot.Period), snapshot.ID, payload, snapshot.LastComputedAt)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}
