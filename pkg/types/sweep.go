package types

import "time"

// SweepReport summarizes one retention pass
type SweepReport struct {
	ID            string         `db:"id" json:"id"`
	StartedAt     time.Time      `db:"started_at" json:"started_at"`
	FinishedAt    time.Time      `db:"finished_at" json:"finished_at"`
	Deleted       map[string]int `db:"deleted" json:"deleted"` // keyed by kind/granularity
	LedgerDeleted int64          `db:"ledger_deleted" json:"ledger_deleted"`
	Errors        int            `db:"errors" json:"errors"`
}

// TotalDeleted returns the number of partition files removed across stores
func (r *SweepReport) TotalDeleted() int {
	total := 0
	for _, n := range r.Deleted {
		total += n
	}
	return total
}

// Lease is an expiring claim on a named role held by one process
type Lease struct {
	Name       string    `db:"name" json:"name"`
	Holder     string    `db:"holder" json:"holder"`
	AcquiredAt time.Time `db:"acquired_at" json:"acquired_at"`
	ExpiresAt  time.Time `db:"expires_at" json:"expires_at"`
}
