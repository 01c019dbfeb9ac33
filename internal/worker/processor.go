package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tsanders-rh/kubecostd/internal/metrics"
	"github.com/tsanders-rh/kubecostd/internal/rollup"
	"github.com/tsanders-rh/kubecostd/internal/tsdb"
	"github.com/tsanders-rh/kubecostd/pkg/types"
)

// SampleSource produces the samples of one collection tick
type SampleSource interface {
	Collect(ctx context.Context, at time.Time) ([]types.Sample, error)
}

// RollupResult counts what happened to each key of a rollup window
type RollupResult struct {
	Appended   int `json:"appended"`
	NoData     int `json:"no_data"`
	Skipped    int `json:"skipped"`      // already claimed
	OutOfOrder int `json:"out_of_order"` // older than rows already in the target partition
	Failed     int `json:"failed"`
}

func (r *RollupResult) add(o RollupResult) {
	r.Appended += o.Appended
	r.NoData += o.NoData
	r.Skipped += o.Skipped
	r.OutOfOrder += o.OutOfOrder
	r.Failed += o.Failed
}

// TaskProcessor processes tasks by type
type TaskProcessor struct {
	config *Config
	db     *tsdb.DB
	source SampleSource
	ledger Ledger
	logger *zap.Logger
}

// NewTaskProcessor creates a new task processor
func NewTaskProcessor(config *Config, db *tsdb.DB, source SampleSource, ledger Ledger, logger *zap.Logger) *TaskProcessor {
	return &TaskProcessor{
		config: config,
		db:     db,
		source: source,
		ledger: ledger,
		logger: logger,
	}
}

// Process processes a task based on its type
func (p *TaskProcessor) Process(ctx context.Context, task *types.Task) error {
	switch task.Type {
	case types.TaskTypeCollect:
		_, err := p.Collect(ctx, task.WindowEnd)
		return err

	case types.TaskTypeRollupHour, types.TaskTypeRollupDay:
		target, _ := targetGranularity(task.Type)
		result, err := p.Rollup(ctx, target, rollup.Window{Start: task.WindowStart, End: task.WindowEnd})
		if err != nil {
			return err
		}
		if result.Failed > 0 {
			return fmt.Errorf("%d %s rollups failed", result.Failed, target)
		}
		return nil

	default:
		return fmt.Errorf("unknown task type: %s", task.Type)
	}
}

type sampleID struct {
	kind types.ResourceKind
	key  string
}

// Collect samples the source once and appends one record per resource.
// Duplicate samples of a resource are merged before the append.
func (p *TaskProcessor) Collect(ctx context.Context, at time.Time) (int, error) {
	if p.source == nil {
		return 0, errors.New("no sample source configured")
	}

	start := time.Now()
	defer func() { metrics.CollectionDuration.Observe(time.Since(start).Seconds()) }()

	samples, err := p.source.Collect(ctx, at)
	if err != nil {
		metrics.CollectionErrorsTotal.Inc()
		return 0, fmt.Errorf("collect samples: %w", err)
	}

	merged := make(map[sampleID]types.Record, len(samples))
	order := make([]sampleID, 0, len(samples))
	for _, s := range samples {
		id := sampleID{s.Kind, s.Key}
		if prev, ok := merged[id]; ok {
			merged[id] = types.Overlay(prev, s.Record)
			continue
		}
		merged[id] = s.Record
		order = append(order, id)
	}

	var (
		mu     sync.Mutex
		failed int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.MaxConcurrent)
	for _, id := range order {
		rec := merged[id]
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			store, err := p.db.Store(id.kind, types.GranularityMinute)
			if err == nil {
				err = store.Append(id.key, rec)
			}
			if err != nil {
				p.logger.Warn("failed to append sample",
					zap.String("kind", string(id.kind)), zap.String("key", id.key), zap.Error(err))
				metrics.CollectionErrorsTotal.Inc()
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			metrics.SamplesCollectedTotal.WithLabelValues(string(id.kind)).Inc()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	appended := len(order) - failed
	p.logger.Debug("collected samples", zap.Int("appended", appended), zap.Int("failed", failed))
	if failed > 0 {
		return appended, fmt.Errorf("%d of %d appends failed", failed, len(order))
	}
	return appended, nil
}

// Rollup aggregates one window into the target granularity for every kind and key
func (p *TaskProcessor) Rollup(ctx context.Context, target types.Granularity, w rollup.Window) (RollupResult, error) {
	var total RollupResult
	for _, kind := range types.ResourceKinds {
		proc, err := p.processor(kind, target)
		if err != nil {
			return total, err
		}
		result, err := p.rollupKind(ctx, proc, w)
		total.add(result)
		if err != nil {
			return total, err
		}
	}

	p.logger.Info("rollup window completed",
		zap.String("granularity", string(target)),
		zap.Time("window_end", w.End),
		zap.Int("appended", total.Appended),
		zap.Int("no_data", total.NoData),
		zap.Int("skipped", total.Skipped),
		zap.Int("failed", total.Failed))
	return total, nil
}

func (p *TaskProcessor) processor(kind types.ResourceKind, target types.Granularity) (*rollup.Processor, error) {
	var source types.Granularity
	switch target {
	case types.GranularityHour:
		source = types.GranularityMinute
	case types.GranularityDay:
		source = types.GranularityHour
	default:
		return nil, fmt.Errorf("cannot roll up into %s", target)
	}

	src, err := p.db.Store(kind, source)
	if err != nil {
		return nil, err
	}
	dst, err := p.db.Store(kind, target)
	if err != nil {
		return nil, err
	}
	return rollup.NewProcessor(src, dst, p.logger)
}

func (p *TaskProcessor) rollupKind(ctx context.Context, proc *rollup.Processor, w rollup.Window) (RollupResult, error) {
	keys, err := proc.Source().Keys()
	if err != nil {
		return RollupResult{}, fmt.Errorf("list %s keys: %w", proc.Source().Kind(), err)
	}

	var (
		mu     sync.Mutex
		result RollupResult
	)
	record := func(f func(r *RollupResult)) {
		mu.Lock()
		f(&result)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.MaxConcurrent)
	for _, key := range keys {
		g.Go(func() error {
			entry := types.RollupEntry{
				Kind:        proc.Target().Kind(),
				Key:         key,
				Granularity: proc.Target().Granularity(),
				WindowEnd:   w.End.UTC(),
			}

			claimed, err := p.ledger.Claim(gctx, entry, p.config.InstanceID)
			if err != nil {
				return fmt.Errorf("claim rollup window: %w", err)
			}
			if !claimed {
				record(func(r *RollupResult) { r.Skipped++ })
				return nil
			}

			status := types.TaskStatusSucceeded
			_, err = proc.AppendRowAggregated(key, w.Start, w.End)
			switch {
			case err == nil:
				record(func(r *RollupResult) { r.Appended++ })
			case errors.Is(err, rollup.ErrNoData):
				status = types.TaskStatusFailed
				record(func(r *RollupResult) { r.NoData++ })
			case errors.Is(err, tsdb.ErrOutOfOrder):
				status = types.TaskStatusFailed
				p.logger.Warn("rollup window is behind its partition",
					zap.String("kind", string(entry.Kind)), zap.String("key", key), zap.Error(err))
				record(func(r *RollupResult) { r.OutOfOrder++ })
			default:
				status = types.TaskStatusFailed
				p.logger.Warn("rollup failed",
					zap.String("kind", string(entry.Kind)), zap.String("key", key), zap.Error(err))
				record(func(r *RollupResult) { r.Failed++ })
			}

			if err := p.ledger.Complete(gctx, entry, status); err != nil {
				p.logger.Warn("failed to complete rollup entry", zap.String("key", key), zap.Error(err))
			}
			return nil
		})
	}
	err = g.Wait()
	return result, err
}
