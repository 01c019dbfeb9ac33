package janitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tsanders-rh/kubecostd/internal/logging"
	"github.com/tsanders-rh/kubecostd/internal/tsdb"
	"github.com/tsanders-rh/kubecostd/pkg/types"
)

// Config holds retention configuration
type Config struct {
	CheckInterval time.Duration `mapstructure:"check_interval" validate:"gt=0"`

	// Horizons per granularity, compared at the partition's bucket unit
	MinuteDays int `mapstructure:"minute_days" validate:"gte=1"`
	HourMonths int `mapstructure:"hour_months" validate:"gte=1"`
	DayYears   int `mapstructure:"day_years" validate:"gte=1"`

	BatchSize     int  `mapstructure:"batch_size" validate:"gte=1"`
	LedgerCleanup bool `mapstructure:"ledger_cleanup"`
}

// DefaultConfig returns default retention configuration
func DefaultConfig() *Config {
	return &Config{
		CheckInterval: time.Hour,
		MinuteDays:    7,
		HourMonths:    3,
		DayYears:      5,
		BatchSize:     tsdb.DefaultDeleteBatchSize,
		LedgerCleanup: true,
	}
}

// Cutoffs returns, per granularity, the instant before whose bucket partitions expire
func (c *Config) Cutoffs(now time.Time) map[types.Granularity]time.Time {
	now = now.UTC()
	return map[types.Granularity]time.Time{
		types.GranularityMinute: now.AddDate(0, 0, -c.MinuteDays),
		types.GranularityHour:   now.AddDate(0, -c.HourMonths, 0),
		types.GranularityDay:    now.AddDate(-c.DayYears, 0, 0),
	}
}

// LedgerCleaner forgets rollup claims for windows whose source data has expired
type LedgerCleaner interface {
	CleanupBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SweepRecorder keeps the history of retention passes
type SweepRecorder interface {
	RecordSweep(ctx context.Context, report *types.SweepReport) error
}

// Janitor periodically deletes expired partitions
type Janitor struct {
	config   *Config
	db       *tsdb.DB
	archiver tsdb.Archiver
	ledger   LedgerCleaner
	recorder SweepRecorder
	logger   *zap.Logger
	now      func() time.Time
	running  bool
	ctx      context.Context
	cancel   context.CancelFunc
}

// Option customizes a Janitor
type Option func(*Janitor)

// WithArchiver uploads expired partitions before they are deleted
func WithArchiver(a tsdb.Archiver) Option {
	return func(j *Janitor) { j.archiver = a }
}

// WithLedger also prunes the rollup ledger on each sweep
func WithLedger(l LedgerCleaner) Option {
	return func(j *Janitor) { j.ledger = l }
}

// WithRecorder stores a report of every sweep
func WithRecorder(r SweepRecorder) Option {
	return func(j *Janitor) { j.recorder = r }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(j *Janitor) { j.now = now }
}

// NewJanitor creates a new janitor instance
func NewJanitor(config *Config, db *tsdb.DB, logger *zap.Logger, opts ...Option) *Janitor {
	if config == nil {
		config = DefaultConfig()
	}

	j := &Janitor{
		config:  config,
		db:      db,
		logger:  logging.OrNop(logger).Named("janitor"),
		now:     time.Now,
		running: false,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Start starts the janitor loop
func (j *Janitor) Start(ctx context.Context) error {
	j.ctx, j.cancel = context.WithCancel(ctx)
	j.running = true

	j.logger.Info("janitor starting",
		zap.Duration("check_interval", j.config.CheckInterval),
		zap.Int("minute_days", j.config.MinuteDays),
		zap.Int("hour_months", j.config.HourMonths),
		zap.Int("day_years", j.config.DayYears),
		zap.Bool("archive", j.archiver != nil))

	// Run immediately on start
	j.RunOnce(j.ctx)

	ticker := time.NewTicker(j.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-j.ctx.Done():
			j.logger.Info("janitor shutting down")
			return j.ctx.Err()

		case <-ticker.C:
			j.RunOnce(j.ctx)
		}
	}
}

// Stop stops the janitor gracefully
func (j *Janitor) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
	j.running = false
}

// RunOnce sweeps every store once. Failures are logged and counted; they never
// stop the sweep.
func (j *Janitor) RunOnce(ctx context.Context) *types.SweepReport {
	report := &types.SweepReport{
		ID:        types.GenerateSweepID(),
		StartedAt: j.now().UTC(),
		Deleted:   make(map[string]int),
	}
	logger := j.logger.With(zap.String("sweep_id", report.ID))
	cutoffs := j.config.Cutoffs(report.StartedAt)

	logger.Debug("janitor running retention sweep")

	for _, s := range j.db.Stores() {
		if ctx.Err() != nil {
			break
		}
		deleted, errs := j.sweepStore(ctx, logger, s, cutoffs[s.Granularity()])
		report.Deleted[string(s.Kind())+"/"+string(s.Granularity())] = deleted
		report.Errors += errs
	}

	if j.ledger != nil && j.config.LedgerCleanup {
		n, err := j.ledger.CleanupBefore(ctx, cutoffs[types.GranularityMinute])
		if err != nil {
			logger.Warn("error cleaning up rollup ledger", zap.Error(err))
			report.Errors++
		}
		report.LedgerDeleted = n
	}

	report.FinishedAt = j.now().UTC()
	if total := report.TotalDeleted(); total > 0 || report.Errors > 0 {
		logger.Info("retention sweep completed",
			zap.Int("deleted", total),
			zap.Int64("ledger_deleted", report.LedgerDeleted),
			zap.Int("errors", report.Errors),
			zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)))
	}
	if j.recorder != nil {
		if err := j.recorder.RecordSweep(ctx, report); err != nil {
			logger.Warn("failed to record sweep", zap.Error(err))
		}
	}
	return report
}

// sweepStore expires the partitions of every key in one store
func (j *Janitor) sweepStore(ctx context.Context, logger *zap.Logger, s *tsdb.Store, cutoff time.Time) (deleted, errs int) {
	keys, err := s.Keys()
	if err != nil {
		logger.Warn("failed to list keys",
			zap.String("kind", string(s.Kind())), zap.String("granularity", string(s.Granularity())), zap.Error(err))
		return 0, 1
	}

	for _, key := range keys {
		var n int
		if j.archiver != nil {
			n, err = s.ArchiveOlderThan(ctx, key, cutoff, j.archiver)
		} else {
			n, err = s.CleanupOlderThan(key, cutoff)
		}
		deleted += n
		if err != nil {
			logger.Warn("failed to expire partitions",
				zap.String("kind", string(s.Kind())), zap.String("key", key), zap.Error(err))
			errs++
			continue
		}
	}
	return deleted, errs
}
