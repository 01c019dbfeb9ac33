package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tsanders-rh/kubecostd/pkg/types"
)

// RollupLedgerStore records which rollup windows have been claimed so that each
// window is aggregated at most once, across restarts and replicas
type RollupLedgerStore struct {
	pool *pgxpool.Pool
}

// Claim marks the window as running for owner. It returns false when the window was
// already claimed by anyone, in which case it must not be aggregated again.
func (s *RollupLedgerStore) Claim(ctx context.Context, entry types.RollupEntry, owner string) (bool, error) {
	query := `
		INSERT INTO rollup_ledger (
			kind, resource_key, granularity, window_end, status, claimed_by
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
		ON CONFLICT (kind, resource_key, granularity, window_end) DO NOTHING
	`

	result, err := s.pool.Exec(ctx, query,
		entry.Kind,
		entry.Key,
		entry.Granularity,
		entry.WindowEnd.UTC(),
		types.TaskStatusRunning,
		owner,
	)
	if err != nil {
		return false, fmt.Errorf("claim rollup window: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// Complete records the outcome of a claimed window
func (s *RollupLedgerStore) Complete(ctx context.Context, entry types.RollupEntry, status types.TaskStatus) error {
	query := `
		UPDATE rollup_ledger
		SET status = $5, updated_at = NOW()
		WHERE kind = $1 AND resource_key = $2 AND granularity = $3 AND window_end = $4
	`

	result, err := s.pool.Exec(ctx, query,
		entry.Kind,
		entry.Key,
		entry.Granularity,
		entry.WindowEnd.UTC(),
		status,
	)
	if err != nil {
		return fmt.Errorf("complete rollup window: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// Status returns the recorded status of a window
func (s *RollupLedgerStore) Status(ctx context.Context, entry types.RollupEntry) (types.TaskStatus, error) {
	query := `
		SELECT status FROM rollup_ledger
		WHERE kind = $1 AND resource_key = $2 AND granularity = $3 AND window_end = $4
	`

	var status types.TaskStatus
	err := s.pool.QueryRow(ctx, query, entry.Kind, entry.Key, entry.Granularity, entry.WindowEnd.UTC()).Scan(&status)
	if err == pgx.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get rollup status: %w", err)
	}

	return status, nil
}

// CleanupBefore removes ledger entries for windows that ended before cutoff
func (s *RollupLedgerStore) CleanupBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM rollup_ledger WHERE window_end < $1`

	result, err := s.pool.Exec(ctx, query, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup rollup ledger: %w", err)
	}

	return result.RowsAffected(), nil
}
