package cost

import (
	"github.com/tsanders-rh/kubecostd/internal/rollup"
	"github.com/tsanders-rh/kubecostd/internal/tsdb"
	"github.com/tsanders-rh/kubecostd/pkg/types"
)

// RawUsage is average resource consumption over a window
type RawUsage struct {
	CPUCores     float64 `json:"cpu_cores"`
	MemoryBytes  float64 `json:"memory_bytes"`
	StorageBytes float64 `json:"storage_bytes"`
}

// RawUsageOf averages each series' CPU cores, memory and used storage over its own
// records and adds the averages across series
func RawUsageOf(series []Series) RawUsage {
	var raw RawUsage
	for _, s := range series {
		records := sortedCopy(s.Records)
		if len(records) == 0 {
			continue
		}
		start, end := records[0].Time, records[len(records)-1].Time.Add(s.Granularity.Interval())

		hold := rollup.HoldForward
		if s.Granularity != types.GranularityMinute {
			hold = rollup.HoldBackward
			start = records[0].Time.Add(-s.Granularity.Interval())
			end = records[len(records)-1].Time
		}

		var cpu, mem, storage []rollup.Point
		for _, r := range records {
			if v, ok := r.Get(tsdb.FieldCPUUsageNanoCores); ok {
				cpu = append(cpu, rollup.Point{Time: r.Time, Value: v})
			}
			if r.Has(tsdb.FieldMemoryWorkingSetBytes) || r.Has(tsdb.FieldMemoryUsageBytes) {
				mem = append(mem, rollup.Point{Time: r.Time, Value: memoryBytes(r)})
			}
			if r.Has(tsdb.FieldFsUsedBytes) || r.Has(tsdb.FieldEphemeralUsedBytes) || r.Has(tsdb.FieldPersistentUsedBytes) {
				storage = append(storage, rollup.Point{Time: r.Time, Value: storageBytes(s.Kind, r)})
			}
		}

		if avg, ok := rollup.TimeWeightedAverage(cpu, start, end, hold); ok {
			raw.CPUCores += avg / 1e9
		}
		if avg, ok := rollup.TimeWeightedAverage(mem, start, end, hold); ok {
			raw.MemoryBytes += avg
		}
		if avg, ok := rollup.TimeWeightedAverage(storage, start, end, hold); ok {
			raw.StorageBytes += avg
		}
	}
	return raw
}

// EfficiencyOverWindow compares average usage with allocatable capacity. Each ratio is
// clamped to [0, 1]; the overall score is the mean of the ratios that have capacity.
func EfficiencyOverWindow(raw RawUsage, alloc types.Capacity) types.Efficiency {
	var (
		eff   types.Efficiency
		sum   float64
		count int
	)

	if alloc.CPUCores > 0 {
		eff.CPU = clamp(raw.CPUCores / alloc.CPUCores)
		sum += eff.CPU
		count++
	}
	if alloc.MemoryBytes > 0 {
		eff.Memory = clamp(raw.MemoryBytes / float64(alloc.MemoryBytes))
		sum += eff.Memory
		count++
	}
	if alloc.StorageBytes > 0 {
		eff.Storage = clamp(raw.StorageBytes / float64(alloc.StorageBytes))
		sum += eff.Storage
		count++
	}

	if count > 0 {
		eff.Overall = sum / float64(count)
	}
	return eff
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
