package pricing

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tsanders-rh/kubecostd/pkg/types"
)

// Registry keeps price tables in memory and serves the active one
type Registry struct {
	mu     sync.RWMutex
	tables map[string]*Table // keyed by table name
	active string
	loader *Loader
}

// NewRegistry creates a registry, loads every table and activates one by name
func NewRegistry(loader *Loader, active string) (*Registry, error) {
	r := &Registry{
		tables: make(map[string]*Table),
		loader: loader,
	}

	if err := r.Reload(); err != nil {
		return nil, fmt.Errorf("initial price load: %w", err)
	}
	if err := r.Activate(active); err != nil {
		return nil, err
	}

	return r, nil
}

// Get retrieves an enabled price table by name
func (r *Registry) Get(name string) (*Table, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.get(name)
}

func (r *Registry) get(name string) (*Table, error) {
	table, exists := r.tables[name]
	if !exists {
		return nil, fmt.Errorf("price table not found: %s", name)
	}
	if !table.Enabled {
		return nil, fmt.Errorf("price table disabled: %s", name)
	}
	return table, nil
}

// Activate selects the table Current serves
func (r *Registry) Activate(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.get(name); err != nil {
		return err
	}
	r.active = name
	return nil
}

// Active returns the name of the active table
func (r *Registry) Active() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.active
}

// Current returns the prices of the active table
func (r *Registry) Current(context.Context) (types.UnitPrice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	table, err := r.get(r.active)
	if err != nil {
		return types.UnitPrice{}, err
	}
	return table.Prices, nil
}

// List returns all enabled tables sorted by name
func (r *Registry) List() []*Table {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tables := make([]*Table, 0, len(r.tables))
	for _, table := range r.tables {
		if table.Enabled {
			tables = append(tables, table)
		}
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })

	return tables
}

// Reload reloads all tables from disk. The active table must survive the reload.
func (r *Registry) Reload() error {
	tables, err := r.loader.LoadAll()
	if err != nil {
		return fmt.Errorf("load price tables: %w", err)
	}

	loaded := make(map[string]*Table, len(tables))
	for _, table := range tables {
		loaded[table.Name] = table
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != "" {
		if t, ok := loaded[r.active]; !ok || !t.Enabled {
			return fmt.Errorf("active price table %s missing or disabled after reload", r.active)
		}
	}
	r.tables = loaded

	return nil
}

// Chain returns prices from the first source that has them
type Chain []Source

// Current asks each source in order and returns the first success
func (c Chain) Current(ctx context.Context) (types.UnitPrice, error) {
	var lastErr error
	for _, src := range c {
		if src == nil {
			continue
		}
		prices, err := src.Current(ctx)
		if err == nil {
			return prices, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no price source configured")
	}
	return types.UnitPrice{}, fmt.Errorf("get unit prices: %w", lastErr)
}
