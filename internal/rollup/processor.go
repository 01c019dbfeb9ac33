package rollup

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/tsanders-rh/kubecostd/internal/logging"
	"github.com/tsanders-rh/kubecostd/internal/metrics"
	"github.com/tsanders-rh/kubecostd/internal/tsdb"
	"github.com/tsanders-rh/kubecostd/pkg/types"
)

// ErrNoData is returned when a window has no source rows
var ErrNoData = errors.New("no data for aggregation")

// Processor rolls one store up into the next coarser store of the same kind
type Processor struct {
	source *tsdb.Store
	target *tsdb.Store
	logger *zap.Logger
}

// NewProcessor creates a processor from a fine store into its coarser neighbour
func NewProcessor(source, target *tsdb.Store, logger *zap.Logger) (*Processor, error) {
	if source.Kind() != target.Kind() {
		return nil, fmt.Errorf("rollup from %s into %s: resource kinds differ", source.Kind(), target.Kind())
	}
	coarser, ok := source.Granularity().Coarser()
	if !ok || coarser != target.Granularity() {
		return nil, fmt.Errorf("cannot roll %s up into %s", source.Granularity(), target.Granularity())
	}

	return &Processor{
		source: source,
		target: target,
		logger: logging.OrNop(logger).With(
			zap.String("kind", string(source.Kind())),
			zap.String("granularity", string(target.Granularity())),
		),
	}, nil
}

// Source returns the store rows are read from
func (p *Processor) Source() *tsdb.Store { return p.source }

// Target returns the store aggregated rows are appended to
func (p *Processor) Target() *tsdb.Store { return p.target }

// Compute aggregates the source rows of key in the window without writing anything
func (p *Processor) Compute(key string, windowStart, windowEnd time.Time) (types.Record, error) {
	rows, err := p.source.GetRowsBetween(key, windowStart, windowEnd, tsdb.Page{})
	if err != nil {
		return types.Record{}, fmt.Errorf("read %s rows: %w", p.source.Granularity(), err)
	}

	if p.source.Granularity() != types.GranularityMinute {
		// A row stamped at windowStart closes the previous window.
		kept := rows[:0]
		for _, r := range rows {
			if r.Time.After(windowStart) {
				kept = append(kept, r)
			}
		}
		rows = kept
	}

	if len(rows) == 0 {
		return types.Record{}, fmt.Errorf("%w: %s %s in [%s, %s]", ErrNoData, p.source.Kind(), key,
			windowStart.Format(time.RFC3339), windowEnd.Format(time.RFC3339))
	}

	types.SortRecords(rows)
	return Aggregate(p.source.Schema(), p.source.Granularity(), rows, windowStart, windowEnd), nil
}

// AppendRowAggregated aggregates the window and appends the result, stamped windowEnd,
// to the coarser store. It does not deduplicate: each window must be rolled up at most once.
// A window that ends before the latest row of its target partition is refused with
// tsdb.ErrOutOfOrder, since partitions are read in time order.
func (p *Processor) AppendRowAggregated(key string, windowStart, windowEnd time.Time) (types.Record, error) {
	last, ok, err := p.target.LastTime(key, windowEnd)
	if err != nil {
		metrics.RollupsTotal.WithLabelValues(string(p.source.Kind()), string(p.target.Granularity()), "error").Inc()
		return types.Record{}, fmt.Errorf("read %s partition: %w", p.target.Granularity(), err)
	}
	if ok && last.After(windowEnd) {
		metrics.RollupsTotal.WithLabelValues(string(p.source.Kind()), string(p.target.Granularity()), "out_of_order").Inc()
		return types.Record{}, fmt.Errorf("%w: %s %s already has a %s row at %s, after %s", tsdb.ErrOutOfOrder,
			p.source.Kind(), key, p.target.Granularity(), last.Format(time.RFC3339), windowEnd.Format(time.RFC3339))
	}

	rec, err := p.Compute(key, windowStart, windowEnd)
	if err != nil {
		result := "error"
		if errors.Is(err, ErrNoData) {
			result = "no_data"
		}
		metrics.RollupsTotal.WithLabelValues(string(p.source.Kind()), string(p.target.Granularity()), result).Inc()
		return types.Record{}, err
	}

	if err := p.target.Append(key, rec); err != nil {
		metrics.RollupsTotal.WithLabelValues(string(p.source.Kind()), string(p.target.Granularity()), "error").Inc()
		return types.Record{}, fmt.Errorf("append %s rollup: %w", p.target.Granularity(), err)
	}

	metrics.RollupsTotal.WithLabelValues(string(p.source.Kind()), string(p.target.Granularity()), "appended").Inc()
	p.logger.Debug("appended rollup", zap.String("key", key), zap.Time("window_end", windowEnd))
	return rec, nil
}

// CompletedWindow returns the last window of the target granularity that ended at or
// before now. Hour windows end on the hour and day windows at UTC midnight.
func CompletedWindow(target types.Granularity, now time.Time) (start, end time.Time) {
	now = now.UTC()
	switch target {
	case types.GranularityDay:
		end = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return end.AddDate(0, 0, -1), end
	default:
		end = now.Truncate(time.Hour)
		return end.Add(-time.Hour), end
	}
}

// Window is one rollup window
type Window struct {
	Start time.Time
	End   time.Time
}

// CompletedWindows lists every complete window of the target granularity whose end
// falls in (from, to], oldest first.
func CompletedWindows(target types.Granularity, from, to time.Time) []Window {
	var windows []Window
	_, end := CompletedWindow(target, to)
	for end.After(from) {
		start, _ := CompletedWindow(target, end)
		windows = append(windows, Window{Start: start, End: end})
		end = start
	}
	slices.Reverse(windows)
	return windows
}
