package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tsanders-rh/kubecostd/pkg/types"
)

// LeaseStore hands out expiring named leases so that only one replica
// performs a role, such as collection, at a time
type LeaseStore struct {
	pool *pgxpool.Pool
}

// Acquire takes or renews the lease for holder. It returns false while another
// holder's lease is unexpired.
func (s *LeaseStore) Acquire(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	query := `
		INSERT INTO leases (name, holder, acquired_at, expires_at)
		VALUES ($1, $2, NOW(), NOW() + make_interval(secs => $3))
		ON CONFLICT (name) DO UPDATE
		SET holder = EXCLUDED.holder,
			acquired_at = CASE WHEN leases.holder = EXCLUDED.holder THEN leases.acquired_at ELSE NOW() END,
			expires_at = EXCLUDED.expires_at
		WHERE leases.holder = EXCLUDED.holder OR leases.expires_at < NOW()
		RETURNING holder
	`

	var returned string
	err := s.pool.QueryRow(ctx, query, name, holder, ttl.Seconds()).Scan(&returned)
	if errors.Is(err, pgx.ErrNoRows) {
		// Held by someone else
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("acquire lease: %w", err)
	}

	return true, nil
}

// Release gives up the lease if holder still owns it
func (s *LeaseStore) Release(ctx context.Context, name, holder string) error {
	query := `
		DELETE FROM leases
		WHERE name = $1 AND holder = $2
	`

	_, err := s.pool.Exec(ctx, query, name, holder)
	if err != nil {
		return fmt.Errorf("release lease: %w", err)
	}

	return nil
}

// Get retrieves the current lease for name, expired or not
func (s *LeaseStore) Get(ctx context.Context, name string) (*types.Lease, error) {
	query := `
		SELECT name, holder, acquired_at, expires_at
		FROM leases
		WHERE name = $1
	`

	var lease types.Lease
	err := s.pool.QueryRow(ctx, query, name).Scan(
		&lease.Name,
		&lease.Holder,
		&lease.AcquiredAt,
		&lease.ExpiresAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lease: %w", err)
	}

	return &lease, nil
}
