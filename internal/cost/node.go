package cost

import (
	"time"

	"github.com/tsanders-rh/kubecostd/internal/rollup"
	"github.com/tsanders-rh/kubecostd/internal/tsdb"
	"github.com/tsanders-rh/kubecostd/pkg/types"
)

// ApplyNodeCosts prices each node's whole capacity for the hours it was observed
// running, since idle capacity is billed as well. Capacity comes from the inventory;
// a node without an inventory storage figure falls back to the largest filesystem
// capacity its series reported. Runtimes are only consulted for day series.
func ApplyNodeCosts(series []Series, capacities map[string]types.Capacity, runtimes map[string]types.Runtime, prices types.UnitPrice) []types.NodeCost {
	out := make([]types.NodeCost, 0, len(series))
	for _, s := range series {
		capacity := capacities[s.Key]
		if capacity.StorageBytes == 0 {
			capacity.StorageBytes = maxField(s.Records, tsdb.FieldFsCapacityBytes)
		}

		var hours float64
		switch s.Granularity {
		case types.GranularityMinute:
			hours = float64(len(s.Records)) / 60
		case types.GranularityHour:
			hours = float64(len(s.Records))
		default:
			rt, ok := runtimes[s.Key]
			hours = dayRunningHours(s.Records, rt, ok)
		}

		nc := types.NodeCost{
			Key:            s.Key,
			RunningHours:   hours,
			CPUCostUSD:     capacity.CPUCores * hours * prices.CPUCoreHour,
			MemoryCostUSD:  gb(capacity.MemoryBytes) * hours * prices.MemoryGBHour,
			StorageCostUSD: gb(capacity.StorageBytes) * hours * prices.StorageGBHour,
		}
		nc.TotalCostUSD = nc.CPUCostUSD + nc.MemoryCostUSD + nc.StorageCostUSD
		out = append(out, nc)
	}
	return out
}

// dayRunningHours adds, for every day record, the hours of that day the node ran.
// A day record is stamped at the end of the day it covers. Without a runtime hint
// every recorded day counts in full.
func dayRunningHours(records []types.Record, rt types.Runtime, hasRuntime bool) float64 {
	var hours float64
	for _, rec := range records {
		if !hasRuntime {
			hours += 24
			continue
		}
		hours += overlap(rec.Time.Add(-24*time.Hour), rec.Time, rt.Start, rt.End).Hours()
	}
	return hours
}

// overlap is the length of [aStart, aEnd] ∩ [bStart, bEnd]. A zero bEnd is open-ended.
func overlap(aStart, aEnd, bStart, bEnd time.Time) time.Duration {
	from := aStart
	if bStart.After(from) {
		from = bStart
	}
	to := aEnd
	if !bEnd.IsZero() && bEnd.Before(to) {
		to = bEnd
	}
	if !to.After(from) {
		return 0
	}
	return to.Sub(from)
}

func maxField(records []types.Record, field string) uint64 {
	values := make([]uint64, 0, len(records))
	for _, r := range records {
		if v, ok := r.Get(field); ok {
			values = append(values, v)
		}
	}
	return rollup.Max(values)
}
