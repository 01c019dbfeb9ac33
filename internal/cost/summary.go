package cost

import (
	"sort"
	"time"

	"github.com/tsanders-rh/kubecostd/pkg/types"
)

// SummaryOverWindow adds up every point of every series by category. Each point
// already carries its own interval, so no global interval is applied.
func SummaryOverWindow(costs []types.SeriesCost) types.CostSummary {
	var (
		summary types.CostSummary
		all     []types.CostPoint
	)
	for _, sc := range costs {
		for _, p := range sc.Points {
			summary.CPUCostUSD += p.CPUCostUSD
			summary.MemoryCostUSD += p.MemoryCostUSD
			summary.EphemeralStorageCostUSD += p.EphemeralStorageCostUSD
			summary.PersistentStorageCostUSD += p.PersistentStorageCostUSD
			summary.NetworkCostUSD += p.NetworkCostUSD
			summary.TotalCostUSD += p.TotalCostUSD
			all = append(all, p)
		}
	}
	summary.Points = len(all)
	summary.Start, summary.End = window(all)
	return summary
}

// TrendOverWindow fits total cost against time. Points of different series sharing a
// timestamp are added together first, so the trend follows the combined cost. The
// forecast is one granularity step past the last point.
func TrendOverWindow(costs []types.SeriesCost, granularity types.Granularity) types.CostTrend {
	totals := make(map[time.Time]float64)
	for _, sc := range costs {
		for _, p := range sc.Points {
			totals[p.Time.UTC()] += p.TotalCostUSD
		}
	}

	times := make([]time.Time, 0, len(totals))
	for t := range totals {
		times = append(times, t)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	var trend types.CostTrend
	trend.Points = len(times)
	if len(times) == 0 {
		return trend
	}

	first, last := times[0], times[len(times)-1]
	trend.Start, trend.End = first, last
	trend.StartCostUSD = totals[first]
	trend.EndCostUSD = totals[last]
	trend.ChangeUSD = trend.EndCostUSD - trend.StartCostUSD
	if trend.StartCostUSD != 0 {
		trend.ChangePercent = trend.ChangeUSD / trend.StartCostUSD * 100
	}

	xs := make([]float64, len(times))
	ys := make([]float64, len(times))
	for i, t := range times {
		xs[i] = float64(t.Unix())
		ys[i] = totals[t]
	}
	trend.SlopePerSecond, trend.Intercept = LinearRegression(xs, ys)

	step := granularity.Interval()
	if step <= 0 {
		step = time.Second
	}
	trend.NextTime = last.Add(step)
	trend.ForecastUSD = trend.Intercept + trend.SlopePerSecond*float64(trend.NextTime.Unix())
	return trend
}

// LinearRegression returns the ordinary least squares fit y = slope*x + intercept.
// With fewer than two distinct x values the slope is 0 and the intercept is the mean.
func LinearRegression(xs, ys []float64) (slope, intercept float64) {
	n := len(xs)
	if n == 0 || n != len(ys) {
		return 0, 0
	}

	var meanX, meanY float64
	for i := range xs {
		meanX += xs[i]
		meanY += ys[i]
	}
	meanX /= float64(n)
	meanY /= float64(n)

	// Centered sums keep Unix-second magnitudes from swamping the fit.
	var sxy, sxx float64
	for i := range xs {
		dx := xs[i] - meanX
		sxy += dx * (ys[i] - meanY)
		sxx += dx * dx
	}
	if sxx == 0 {
		return 0, meanY
	}
	slope = sxy / sxx
	return slope, meanY - slope*meanX
}
