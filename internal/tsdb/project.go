package tsdb

import "github.com/tsanders-rh/kubecostd/pkg/types"

// Project returns a new record holding only field. The input is never modified.
func Project(rec types.Record, field string) types.Record {
	out := types.Record{Time: rec.Time, Values: make(map[string]uint64, 1)}
	if v, ok := rec.Values[field]; ok {
		out.Values[field] = v
	}
	return out
}
