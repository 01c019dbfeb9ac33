package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides database operations
type Store struct {
	pool *pgxpool.Pool

	Prices  *UnitPriceStore
	Rollups *RollupLedgerStore
	Leases  *LeaseStore
	Sweeps  *SweepStore
}

// New creates a new Store with all sub-stores initialized
func New(pool *pgxpool.Pool) *Store {
	s := &Store{
		pool: pool,
	}

	s.Prices = &UnitPriceStore{pool: pool}
	s.Rollups = &RollupLedgerStore{pool: pool}
	s.Leases = &LeaseStore{pool: pool}
	s.Sweeps = &SweepStore{pool: pool}

	return s
}

// WithTx executes a function within a transaction
// If the function returns an error, the transaction is rolled back
// Otherwise, the transaction is committed
func (s *Store) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	err = fn(tx)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Close closes the database connection pool
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies the database connection is alive
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Stats returns database pool statistics
func (s *Store) Stats() *pgxpool.Stat {
	return s.pool.Stat()
}

const schema = `
CREATE TABLE IF NOT EXISTS unit_prices (
	name            TEXT PRIMARY KEY,
	cpu_core_hour   DOUBLE PRECISION NOT NULL DEFAULT 0,
	memory_gb_hour  DOUBLE PRECISION NOT NULL DEFAULT 0,
	storage_gb_hour DOUBLE PRECISION NOT NULL DEFAULT 0,
	network_gb      DOUBLE PRECISION NOT NULL DEFAULT 0,
	currency        TEXT NOT NULL DEFAULT 'USD',
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS rollup_ledger (
	kind         TEXT NOT NULL,
	resource_key TEXT NOT NULL,
	granularity  TEXT NOT NULL,
	window_end   TIMESTAMPTZ NOT NULL,
	status       TEXT NOT NULL,
	claimed_by   TEXT NOT NULL DEFAULT '',
	claimed_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (kind, resource_key, granularity, window_end)
);

CREATE INDEX IF NOT EXISTS rollup_ledger_window_end_idx ON rollup_ledger (window_end);

CREATE TABLE IF NOT EXISTS leases (
	name        TEXT PRIMARY KEY,
	holder      TEXT NOT NULL,
	acquired_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	expires_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS sweep_runs (
	id             TEXT PRIMARY KEY,
	started_at     TIMESTAMPTZ NOT NULL,
	finished_at    TIMESTAMPTZ NOT NULL,
	deleted        JSONB NOT NULL DEFAULT '{}',
	ledger_deleted BIGINT NOT NULL DEFAULT 0,
	errors         INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS sweep_runs_started_at_idx ON sweep_runs (started_at DESC);
`

// Migrate creates the tables the store needs. It is safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// NewStore creates a new Store from a database URL
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := NewPool(ctx, DefaultConfig(databaseURL))
	if err != nil {
		return nil, err
	}
	return New(pool), nil
}
