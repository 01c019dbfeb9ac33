package worker

import (
	"context"
	"sync"
	"time"

	"github.com/tsanders-rh/kubecostd/pkg/types"
)

// Ledger records which rollup windows have been claimed so a window is never
// aggregated twice. store.RollupLedgerStore is the durable implementation.
type Ledger interface {
	Claim(ctx context.Context, entry types.RollupEntry, owner string) (bool, error)
	Complete(ctx context.Context, entry types.RollupEntry, status types.TaskStatus) error
}

type ledgerState struct {
	owner  string
	status types.TaskStatus
}

// MemoryLedger is a process-local ledger. Claims are lost on restart, which is
// why catch-up is only enabled with a durable ledger.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[types.RollupEntry]ledgerState
}

// NewMemoryLedger creates an empty in-memory ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[types.RollupEntry]ledgerState)}
}

func normalize(entry types.RollupEntry) types.RollupEntry {
	entry.WindowEnd = entry.WindowEnd.UTC()
	return entry
}

// Claim records the entry as running. It returns false when the entry was already claimed.
func (l *MemoryLedger) Claim(_ context.Context, entry types.RollupEntry, owner string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry = normalize(entry)
	if _, ok := l.entries[entry]; ok {
		return false, nil
	}
	l.entries[entry] = ledgerState{owner: owner, status: types.TaskStatusRunning}
	return true, nil
}

// Complete records the final status of a claimed entry
func (l *MemoryLedger) Complete(_ context.Context, entry types.RollupEntry, status types.TaskStatus) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry = normalize(entry)
	state := l.entries[entry]
	state.status = status
	l.entries[entry] = state
	return nil
}

// Status returns the recorded status of an entry
func (l *MemoryLedger) Status(entry types.RollupEntry) (types.TaskStatus, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.entries[normalize(entry)]
	return state.status, ok
}

// CleanupBefore forgets entries whose window ended before cutoff
func (l *MemoryLedger) CleanupBefore(_ context.Context, cutoff time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var n int64
	for entry := range l.entries {
		if entry.WindowEnd.Before(cutoff) {
			delete(l.entries, entry)
			n++
		}
	}
	return n, nil
}
