package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tsanders-rh/kubecostd/pkg/types"
)

// UnitPriceStore handles unit price table operations
type UnitPriceStore struct {
	pool *pgxpool.Pool
}

// Get retrieves the prices stored under name
func (s *UnitPriceStore) Get(ctx context.Context, name string) (*types.UnitPrice, error) {
	query := `
		SELECT cpu_core_hour, memory_gb_hour, storage_gb_hour, network_gb, currency, updated_at
		FROM unit_prices
		WHERE name = $1
	`

	var p types.UnitPrice
	err := s.pool.QueryRow(ctx, query, name).Scan(
		&p.CPUCoreHour,
		&p.MemoryGBHour,
		&p.StorageGBHour,
		&p.NetworkGB,
		&p.Currency,
		&p.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get unit prices: %w", err)
	}

	return &p, nil
}

// Upsert replaces the prices stored under name
func (s *UnitPriceStore) Upsert(ctx context.Context, name string, p types.UnitPrice) error {
	query := `
		INSERT INTO unit_prices (
			name, cpu_core_hour, memory_gb_hour, storage_gb_hour, network_gb, currency, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, NOW()
		)
		ON CONFLICT (name) DO UPDATE
		SET cpu_core_hour = EXCLUDED.cpu_core_hour,
			memory_gb_hour = EXCLUDED.memory_gb_hour,
			storage_gb_hour = EXCLUDED.storage_gb_hour,
			network_gb = EXCLUDED.network_gb,
			currency = EXCLUDED.currency,
			updated_at = NOW()
	`

	currency := p.Currency
	if currency == "" {
		currency = "USD"
	}

	_, err := s.pool.Exec(ctx, query,
		name,
		p.CPUCoreHour,
		p.MemoryGBHour,
		p.StorageGBHour,
		p.NetworkGB,
		currency,
	)

	if err != nil {
		return fmt.Errorf("upsert unit prices: %w", err)
	}

	return nil
}

// List returns every stored price table name
func (s *UnitPriceStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT name FROM unit_prices ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list unit prices: %w", err)
	}
	defer rows.Close()

	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan unit prices: %w", err)
	}

	return names, nil
}

// Named serves the prices stored under one name
type Named struct {
	store *UnitPriceStore
	name  string
}

// Source returns a price source reading the table stored under name
func (s *UnitPriceStore) Source(name string) *Named {
	return &Named{store: s, name: name}
}

// Current returns the stored prices
func (n *Named) Current(ctx context.Context) (types.UnitPrice, error) {
	p, err := n.store.Get(ctx, n.name)
	if err != nil {
		return types.UnitPrice{}, fmt.Errorf("price table %s: %w", n.name, err)
	}
	return *p, nil
}
