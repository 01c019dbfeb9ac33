package types

import (
	"sort"
	"time"
)

// Record is one resource's sample at one instant. A field missing from
// Values is absent, which is distinct from a zero reading.
type Record struct {
	Time   time.Time         `json:"time"`
	Values map[string]uint64 `json:"values"`
}

// NewRecord creates an empty record at t
func NewRecord(t time.Time) Record {
	return Record{Time: t, Values: make(map[string]uint64)}
}

// Get returns the value of a field and whether it is present
func (r Record) Get(field string) (uint64, bool) {
	v, ok := r.Values[field]
	return v, ok
}

// Has reports whether the field is present
func (r Record) Has(field string) bool {
	_, ok := r.Values[field]
	return ok
}

// Set stores a value, allocating the map on first use
func (r *Record) Set(field string, v uint64) {
	if r.Values == nil {
		r.Values = make(map[string]uint64)
	}
	r.Values[field] = v
}

// SetOpt stores a value only when ok is true
func (r *Record) SetOpt(field string, v uint64, ok bool) {
	if ok {
		r.Set(field, v)
	}
}

// Clone returns a deep copy
func (r Record) Clone() Record {
	out := Record{Time: r.Time, Values: make(map[string]uint64, len(r.Values))}
	for k, v := range r.Values {
		out.Values[k] = v
	}
	return out
}

// IsEmpty reports whether no field is present
func (r Record) IsEmpty() bool {
	return len(r.Values) == 0
}

// Overlay merges two records of the same resource. Fields of old are kept
// unless next provides a value. The time of next wins when it is set.
func Overlay(old, next Record) Record {
	out := old.Clone()
	if !next.Time.IsZero() {
		out.Time = next.Time
	}
	for k, v := range next.Values {
		out.Values[k] = v
	}
	return out
}

// SortRecords orders records by time, keeping the input order of equal timestamps
func SortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Time.Before(records[j].Time)
	})
}
