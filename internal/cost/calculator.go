package cost

import (
	"slices"
	"time"

	"github.com/tsanders-rh/kubecostd/internal/tsdb"
	"github.com/tsanders-rh/kubecostd/pkg/types"
)

const (
	// BytesPerGB is the size of one billed gigabyte (GiB)
	BytesPerGB = 1 << 30

	nanosPerCoreHour = 1e9 * 3600
)

// Series is one resource's records at one granularity, sorted by time
type Series struct {
	Kind        types.ResourceKind
	Key         string
	Granularity types.Granularity
	Records     []types.Record
}

// ApplyCosts prices every point of every series. Fields a record lacks contribute
// nothing to their cost component.
func ApplyCosts(series []Series, prices types.UnitPrice) []types.SeriesCost {
	out := make([]types.SeriesCost, 0, len(series))
	for _, s := range series {
		out = append(out, seriesCost(s, prices))
	}
	return out
}

func seriesCost(s Series, prices types.UnitPrice) types.SeriesCost {
	records := sortedCopy(s.Records)
	// Minute records carry cumulative counters; coarser records carry interval usage.
	cumulative := s.Granularity == types.GranularityMinute

	sc := types.SeriesCost{
		Kind:        s.Kind,
		Key:         s.Key,
		Granularity: s.Granularity,
		Points:      make([]types.CostPoint, 0, len(records)),
	}
	for i, rec := range records {
		var prev *types.Record
		if i > 0 {
			prev = &records[i-1]
		}

		hours := intervalHours(records, i, s.Granularity)
		coreHours := float64(usage(rec, prev, tsdb.FieldCPUUsageCoreNanoSeconds, cumulative)) / nanosPerCoreHour
		memoryGBHours := gb(memoryBytes(rec)) * hours
		ephemeralGBHours := gb(ephemeralBytes(s.Kind, rec)) * hours
		persistentGBHours := gb(value(rec, tsdb.FieldPersistentUsedBytes)) * hours
		networkGB := gb(usage(rec, prev, tsdb.FieldNetworkRxBytes, cumulative) +
			usage(rec, prev, tsdb.FieldNetworkTxBytes, cumulative))

		p := types.CostPoint{
			Time:                     rec.Time,
			IntervalHours:            hours,
			CPUCoreHours:             coreHours,
			MemoryGBHours:            memoryGBHours,
			StorageGBHours:           ephemeralGBHours + persistentGBHours,
			NetworkGB:                networkGB,
			CPUCostUSD:               coreHours * prices.CPUCoreHour,
			MemoryCostUSD:            memoryGBHours * prices.MemoryGBHour,
			EphemeralStorageCostUSD:  ephemeralGBHours * prices.StorageGBHour,
			PersistentStorageCostUSD: persistentGBHours * prices.StorageGBHour,
			NetworkCostUSD:           networkGB * prices.NetworkGB,
		}
		p.StorageCostUSD = p.EphemeralStorageCostUSD + p.PersistentStorageCostUSD
		p.TotalCostUSD = p.CPUCostUSD + p.MemoryCostUSD + p.StorageCostUSD + p.NetworkCostUSD
		sc.Points = append(sc.Points, p)
	}
	return sc
}

// DefaultIntervalHours is the nominal spacing of a granularity in hours
func DefaultIntervalHours(g types.Granularity) float64 {
	if d := g.Interval(); d > 0 {
		return d.Hours()
	}
	return 1
}

// intervalHours is the time from record i to the next one, or the granularity
// default for the last record and for non-positive gaps
func intervalHours(records []types.Record, i int, g types.Granularity) float64 {
	if i+1 < len(records) {
		if d := records[i+1].Time.Sub(records[i].Time); d > 0 {
			return d.Hours()
		}
	}
	return DefaultIntervalHours(g)
}

// usage returns the amount of a counter consumed at this point. Cumulative counters
// are turned into a reset-aware delta from the previous point; the first point and
// points without a previous reading consume nothing.
func usage(rec types.Record, prev *types.Record, field string, cumulative bool) uint64 {
	cur, ok := rec.Get(field)
	if !ok {
		return 0
	}
	if !cumulative {
		return cur
	}
	if prev == nil {
		return 0
	}
	before, ok := prev.Get(field)
	if !ok {
		return 0
	}
	if cur >= before {
		return cur - before
	}
	return cur
}

func value(rec types.Record, field string) uint64 {
	v, _ := rec.Get(field)
	return v
}

// memoryBytes prefers the working set and falls back to raw usage
func memoryBytes(rec types.Record) uint64 {
	if v, ok := rec.Get(tsdb.FieldMemoryWorkingSetBytes); ok {
		return v
	}
	return value(rec, tsdb.FieldMemoryUsageBytes)
}

// ephemeralBytes is pod ephemeral storage, or the root filesystem for nodes and containers
func ephemeralBytes(kind types.ResourceKind, rec types.Record) uint64 {
	if kind == types.ResourceKindPod {
		return value(rec, tsdb.FieldEphemeralUsedBytes)
	}
	return value(rec, tsdb.FieldFsUsedBytes)
}

// storageBytes is every used byte that is billed as storage
func storageBytes(kind types.ResourceKind, rec types.Record) uint64 {
	return ephemeralBytes(kind, rec) + value(rec, tsdb.FieldPersistentUsedBytes)
}

func gb(bytes uint64) float64 {
	return float64(bytes) / BytesPerGB
}

func sortedCopy(records []types.Record) []types.Record {
	out := slices.Clone(records)
	types.SortRecords(out)
	return out
}

// window returns the earliest and latest time among points
func window(points []types.CostPoint) (start, end time.Time) {
	for i, p := range points {
		if i == 0 || p.Time.Before(start) {
			start = p.Time
		}
		if i == 0 || p.Time.After(end) {
			end = p.Time
		}
	}
	return start, end
}
