package query

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/tsanders-rh/kubecostd/internal/cost"
	"github.com/tsanders-rh/kubecostd/internal/logging"
	"github.com/tsanders-rh/kubecostd/internal/metrics"
	"github.com/tsanders-rh/kubecostd/internal/tsdb"
	"github.com/tsanders-rh/kubecostd/pkg/types"
)

var (
	// ErrInvalidQuery is returned for malformed range queries
	ErrInvalidQuery = errors.New("invalid query")
	// ErrNoInventory is returned by operations that need node inventory when none is configured
	ErrNoInventory = errors.New("node inventory not available")
)

// PriceSource supplies the unit prices applied at query time
type PriceSource interface {
	Current(ctx context.Context) (types.UnitPrice, error)
}

// InventorySource supplies node capacity and allocatable resources
type InventorySource interface {
	Nodes(ctx context.Context) ([]types.NodeInventory, error)
}

// SeriesRows is the rows of one resource
type SeriesRows struct {
	Kind        types.ResourceKind `json:"kind"`
	Key         string             `json:"key"`
	Granularity types.Granularity  `json:"granularity"`
	Rows        []types.Record     `json:"rows"`
}

// Service answers range, cost and efficiency queries over the store
type Service struct {
	db        *tsdb.DB
	prices    PriceSource
	inventory InventorySource
	logger    *zap.Logger
}

// NewService creates a query service. inventory may be nil.
func NewService(db *tsdb.DB, prices PriceSource, inventory InventorySource, logger *zap.Logger) *Service {
	return &Service{
		db:        db,
		prices:    prices,
		inventory: inventory,
		logger:    logging.OrNop(logger).Named("query"),
	}
}

// Rows returns the rows of each selected key. With a field set, each row
// carries only that field. Limit and offset apply per key.
func (s *Service) Rows(ctx context.Context, q types.RangeQuery) ([]SeriesRows, error) {
	defer observe("rows", time.Now())

	store, keys, err := s.resolve(q)
	if err != nil {
		return nil, err
	}

	page := tsdb.Page{Limit: q.Limit, Offset: q.Offset}
	out := make([]SeriesRows, 0, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var rows []types.Record
		if q.Field != "" {
			rows, err = store.GetColumnBetween(key, q.Field, q.Start, q.End, page)
		} else {
			rows, err = store.GetRowsBetween(key, q.Start, q.End, page)
		}
		if err != nil {
			return nil, fmt.Errorf("read %s %s: %w", q.Kind, key, err)
		}
		out = append(out, SeriesRows{Kind: q.Kind, Key: key, Granularity: store.Granularity(), Rows: rows})
	}
	return out, nil
}

// Costs prices every point of each selected series
func (s *Service) Costs(ctx context.Context, q types.RangeQuery) ([]types.SeriesCost, error) {
	defer observe("costs", time.Now())
	return s.costs(ctx, q)
}

// Summary totals cost by category over the window
func (s *Service) Summary(ctx context.Context, q types.RangeQuery) (types.CostSummary, error) {
	defer observe("summary", time.Now())

	costs, err := s.costs(ctx, q)
	if err != nil {
		return types.CostSummary{}, err
	}
	return cost.SummaryOverWindow(costs), nil
}

// Trend fits total cost over the window and forecasts one step ahead
func (s *Service) Trend(ctx context.Context, q types.RangeQuery) (types.CostTrend, error) {
	defer observe("trend", time.Now())

	costs, err := s.costs(ctx, q)
	if err != nil {
		return types.CostTrend{}, err
	}
	g := ResolveGranularity(q.Granularity, q.Start, q.End).Granularity
	return cost.TrendOverWindow(costs, g), nil
}

// Efficiency compares the average usage of the selected nodes with their
// combined allocatable capacity
func (s *Service) Efficiency(ctx context.Context, q types.RangeQuery) (types.Efficiency, error) {
	defer observe("efficiency", time.Now())

	q.Kind = types.ResourceKindNode
	nodes, err := s.nodes(ctx)
	if err != nil {
		return types.Efficiency{}, err
	}
	series, err := s.series(ctx, q)
	if err != nil {
		return types.Efficiency{}, err
	}

	selected := make(map[string]bool, len(series))
	for _, sr := range series {
		selected[sr.Key] = true
	}
	var alloc types.Capacity
	for _, n := range nodes {
		if selected[n.Name] {
			alloc = alloc.Add(n.Allocatable)
		}
	}
	return cost.EfficiencyOverWindow(cost.RawUsageOf(series), alloc), nil
}

// NodeCosts prices the full capacity of the selected nodes for the time they ran
func (s *Service) NodeCosts(ctx context.Context, q types.RangeQuery) ([]types.NodeCost, error) {
	defer observe("node_costs", time.Now())

	q.Kind = types.ResourceKindNode
	prices, err := s.Prices(ctx)
	if err != nil {
		return nil, err
	}
	series, err := s.series(ctx, q)
	if err != nil {
		return nil, err
	}

	capacities := make(map[string]types.Capacity)
	runtimes := make(map[string]types.Runtime)
	if s.inventory != nil {
		nodes, err := s.nodes(ctx)
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			capacities[n.Name] = n.Capacity
			if !n.CreatedAt.IsZero() {
				runtimes[n.Name] = types.Runtime{Start: n.CreatedAt}
			}
		}
	}
	return cost.ApplyNodeCosts(series, capacities, runtimes, prices), nil
}

// Prices returns the unit prices currently in effect
func (s *Service) Prices(ctx context.Context) (types.UnitPrice, error) {
	if s.prices == nil {
		return types.UnitPrice{}, errors.New("no price source configured")
	}
	p, err := s.prices.Current(ctx)
	if err != nil {
		return types.UnitPrice{}, fmt.Errorf("get unit prices: %w", err)
	}
	return p, nil
}

func (s *Service) costs(ctx context.Context, q types.RangeQuery) ([]types.SeriesCost, error) {
	prices, err := s.Prices(ctx)
	if err != nil {
		return nil, err
	}
	series, err := s.series(ctx, q)
	if err != nil {
		return nil, err
	}
	return cost.ApplyCosts(series, prices), nil
}

// series reads the full rows of each selected key
func (s *Service) series(ctx context.Context, q types.RangeQuery) ([]cost.Series, error) {
	store, keys, err := s.resolve(q)
	if err != nil {
		return nil, err
	}

	out := make([]cost.Series, 0, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := store.GetRowsBetween(key, q.Start, q.End, tsdb.Page{})
		if err != nil {
			return nil, fmt.Errorf("read %s %s: %w", q.Kind, key, err)
		}
		out = append(out, cost.Series{Kind: q.Kind, Key: key, Granularity: store.Granularity(), Records: rows})
	}
	return out, nil
}

// resolve validates the query, picks the store and expands an empty key list
func (s *Service) resolve(q types.RangeQuery) (*tsdb.Store, []string, error) {
	if _, err := types.ParseResourceKind(string(q.Kind)); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	if q.Start.IsZero() || q.End.IsZero() {
		return nil, nil, fmt.Errorf("%w: start and end are required", ErrInvalidQuery)
	}
	if q.Limit < 0 || q.Offset < 0 {
		return nil, nil, fmt.Errorf("%w: limit and offset must not be negative", ErrInvalidQuery)
	}

	res := ResolveGranularity(q.Granularity, q.Start, q.End)
	if !res.Honored {
		s.logger.Info("granularity replaced",
			zap.String("requested", string(res.Requested)),
			zap.String("served", string(res.Granularity)),
			zap.String("reason", res.Reason))
		metrics.GranularityFallbacksTotal.WithLabelValues(string(res.Requested), string(res.Granularity)).Inc()
	}

	store, err := s.db.Store(q.Kind, res.Granularity)
	if err != nil {
		return nil, nil, err
	}

	keys := q.Keys
	if len(keys) == 0 {
		keys, err = store.Keys()
		if err != nil {
			return nil, nil, err
		}
	} else {
		keys = slices.Compact(slices.Sorted(slices.Values(keys)))
	}
	return store, keys, nil
}

func (s *Service) nodes(ctx context.Context) ([]types.NodeInventory, error) {
	if s.inventory == nil {
		return nil, ErrNoInventory
	}
	nodes, err := s.inventory.Nodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list node inventory: %w", err)
	}
	return nodes, nil
}

func observe(operation string, start time.Time) {
	metrics.QueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
