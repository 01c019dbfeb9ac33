package tsdb

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tsanders-rh/kubecostd/pkg/types"
)

type storeID struct {
	kind        types.ResourceKind
	granularity types.Granularity
}

// DB holds one Store per resource kind and granularity under a common root.
// Partitions live at <root>/<kind>/<granularity>/<key>/<bucket>.psv.
type DB struct {
	root   string
	stores map[storeID]*Store
}

// Open creates the root directory if needed and builds every store
func Open(root string, opts ...Option) (*DB, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db := &DB{root: root, stores: make(map[storeID]*Store)}
	for _, kind := range types.ResourceKinds {
		for _, g := range types.Granularities {
			s, err := NewStore(filepath.Join(root, string(kind), string(g)), kind, g, opts...)
			if err != nil {
				return nil, fmt.Errorf("create %s/%s store: %w", kind, g, err)
			}
			db.stores[storeID{kind, g}] = s
		}
	}
	return db, nil
}

// Root returns the data directory
func (db *DB) Root() string {
	return db.root
}

// Store returns the store of one kind and granularity
func (db *DB) Store(kind types.ResourceKind, granularity types.Granularity) (*Store, error) {
	s, ok := db.stores[storeID{kind, granularity}]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownStore, kind, granularity)
	}
	return s, nil
}

// Stores returns every store, kinds in order and finest granularity first
func (db *DB) Stores() []*Store {
	out := make([]*Store, 0, len(db.stores))
	for _, kind := range types.ResourceKinds {
		for _, g := range types.Granularities {
			out = append(out, db.stores[storeID{kind, g}])
		}
	}
	return out
}

// Writable reports whether the data directory accepts new files
func (db *DB) Writable() error {
	f, err := os.CreateTemp(db.root, ".ready-*")
	if err != nil {
		return fmt.Errorf("data directory not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
