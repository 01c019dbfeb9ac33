package rollup

import (
	"math"
	"time"

	"github.com/tsanders-rh/kubecostd/internal/tsdb"
	"github.com/tsanders-rh/kubecostd/pkg/types"
)

// Hold describes which span of time a gauge sample stands for
type Hold int

const (
	// HoldForward means a sample holds its value until the next sample.
	// Minute samples are instantaneous readings taken at their timestamp.
	HoldForward Hold = iota

	// HoldBackward means a sample covers the span since the previous sample.
	// Hour rows are stamped at the end of the hour they summarize.
	HoldBackward
)

// Point is one reading of a single field
type Point struct {
	Time  time.Time
	Value uint64
}

// TimeWeightedAverage integrates value over time across [windowStart, windowEnd] and
// divides by the window duration, so time no sample covers counts as zero. Points must
// be sorted by time. A zero-length window returns the last value. ok is false for an
// empty input.
func TimeWeightedAverage(points []Point, windowStart, windowEnd time.Time, hold Hold) (avg float64, ok bool) {
	if len(points) == 0 {
		return 0, false
	}

	window := windowEnd.Sub(windowStart).Seconds()
	if window <= 0 {
		return float64(points[len(points)-1].Value), true
	}

	var weighted float64
	for i, p := range points {
		var from, to time.Time
		switch hold {
		case HoldBackward:
			from = windowStart
			if i > 0 {
				from = points[i-1].Time
			}
			to = p.Time
		default:
			from = p.Time
			to = windowEnd
			if i+1 < len(points) {
				to = points[i+1].Time
			}
		}
		if from.Before(windowStart) {
			from = windowStart
		}
		if to.After(windowEnd) {
			to = windowEnd
		}

		d := to.Sub(from).Seconds()
		if d <= 0 {
			continue
		}
		weighted += float64(p.Value) * d
	}
	return weighted / window, true
}

// Increase sums the growth of a monotonic counter. A decrease is a counter reset,
// so the new value itself is counted as growth since the reset.
func Increase(values []uint64) uint64 {
	var total uint64
	for i := 1; i < len(values); i++ {
		prev, next := values[i-1], values[i]
		if next >= prev {
			total += next - prev
		} else {
			total += next
		}
	}
	return total
}

// Sum adds interval usage values
func Sum(values []uint64) uint64 {
	var total uint64
	for _, v := range values {
		total += v
	}
	return total
}

// Max returns the largest value, or 0 for an empty input
func Max(values []uint64) uint64 {
	var m uint64
	for _, v := range values {
		if v > m {
			m = v
		}
	}
	return m
}

// Aggregate folds rows of one source granularity into a single record stamped windowEnd.
// Rows must be sorted by time. Every field is aggregated by its schema kind; a field
// that no row reports stays absent.
func Aggregate(schema *tsdb.Schema, source types.Granularity, rows []types.Record, windowStart, windowEnd time.Time) types.Record {
	out := types.NewRecord(windowEnd)

	hold := HoldForward
	if source != types.GranularityMinute {
		hold = HoldBackward
	}

	for _, f := range schema.Fields {
		points := column(rows, f.Name)
		if len(points) == 0 {
			continue
		}

		switch f.Kind {
		case types.FieldKindGauge:
			avg, _ := TimeWeightedAverage(points, windowStart, windowEnd, hold)
			out.Set(f.Name, uint64(math.Round(avg)))

		case types.FieldKindCounter:
			values := pointValues(points)
			if source == types.GranularityMinute {
				out.Set(f.Name, Increase(values))
			} else {
				// Coarser rows already hold usage within their own interval.
				out.Set(f.Name, Sum(values))
			}

		case types.FieldKindCapacity:
			out.Set(f.Name, Max(pointValues(points)))
		}
	}
	return out
}

func column(rows []types.Record, field string) []Point {
	var points []Point
	for _, r := range rows {
		if v, ok := r.Values[field]; ok {
			points = append(points, Point{Time: r.Time, Value: v})
		}
	}
	return points
}

func pointValues(points []Point) []uint64 {
	values := make([]uint64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	return values
}
