package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tsanders-rh/kubecostd/pkg/types"
)

// SweepStore keeps an immutable history of retention sweeps
type SweepStore struct {
	pool *pgxpool.Pool
}

// RecordSweep stores one sweep report
func (s *SweepStore) RecordSweep(ctx context.Context, report *types.SweepReport) error {
	query := `
		INSERT INTO sweep_runs (
			id, started_at, finished_at, deleted, ledger_deleted, errors
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
	`

	_, err := s.pool.Exec(ctx, query,
		report.ID,
		report.StartedAt,
		report.FinishedAt,
		report.Deleted,
		report.LedgerDeleted,
		report.Errors,
	)

	if err != nil {
		return fmt.Errorf("insert sweep run: %w", err)
	}

	return nil
}

// List retrieves the most recent sweeps, newest first
func (s *SweepStore) List(ctx context.Context, limit, offset int) ([]*types.SweepReport, error) {
	query := `
		SELECT id, started_at, finished_at, deleted, ledger_deleted, errors
		FROM sweep_runs
		ORDER BY started_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query sweep runs: %w", err)
	}
	defer rows.Close()

	reports := []*types.SweepReport{}
	for rows.Next() {
		var report types.SweepReport
		err := rows.Scan(
			&report.ID,
			&report.StartedAt,
			&report.FinishedAt,
			&report.Deleted,
			&report.LedgerDeleted,
			&report.Errors,
		)
		if err != nil {
			return nil, fmt.Errorf("scan sweep run: %w", err)
		}
		reports = append(reports, &report)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sweep runs: %w", err)
	}

	return reports, nil
}
