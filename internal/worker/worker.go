package worker

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tsanders-rh/kubecostd/internal/logging"
	"github.com/tsanders-rh/kubecostd/internal/tsdb"
	"github.com/tsanders-rh/kubecostd/pkg/types"
)

// Config holds worker configuration
type Config struct {
	InstanceID      string        `mapstructure:"instance_id"`
	CollectInterval time.Duration `mapstructure:"collect_interval" validate:"gte=1s"`
	MaxConcurrent   int           `mapstructure:"max_concurrent" validate:"gte=1"`

	// CatchUp rolls up the last completed hour and day at start. Only safe
	// with a durable ledger, since claims are what prevent double appends.
	CatchUp bool `mapstructure:"catch_up"`
}

// DefaultConfig returns default worker configuration
func DefaultConfig() *Config {
	return &Config{
		InstanceID:      DefaultInstanceID(),
		CollectInterval: time.Minute,
		MaxConcurrent:   16,
	}
}

// DefaultInstanceID derives an instance ID from the hostname
func DefaultInstanceID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8])
}

// CollectorLease is the lease a replica must hold to collect samples
const CollectorLease = "collector"

// LeaseAcquirer grants a named lease to one holder at a time
type LeaseAcquirer interface {
	Acquire(ctx context.Context, name, holder string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name, holder string) error
}

// Option customizes a Worker
type Option func(*Worker)

// WithLease makes collection conditional on holding CollectorLease, so that
// replicas sharing a data directory do not write the same minute twice.
// Rollups always run; the ledger keeps them exclusive.
func WithLease(l LeaseAcquirer) Option {
	return func(w *Worker) { w.lease = l }
}

// WithClock replaces time.Now for the instant Start seeds the planner with
func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

// Worker drives collection and rollups
type Worker struct {
	config    *Config
	planner   *Planner
	processor *TaskProcessor
	lease     LeaseAcquirer
	leader    bool
	now       func() time.Time
	logger    *zap.Logger
	running   bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewWorker creates a new worker instance
func NewWorker(config *Config, db *tsdb.DB, source SampleSource, ledger Ledger, logger *zap.Logger, opts ...Option) *Worker {
	if config == nil {
		config = DefaultConfig()
	}
	if config.InstanceID == "" {
		config.InstanceID = DefaultInstanceID()
	}
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = 1
	}
	if ledger == nil {
		ledger = NewMemoryLedger()
	}
	logger = logging.OrNop(logger).Named("worker").With(zap.String("worker_id", config.InstanceID))

	w := &Worker{
		config:    config,
		planner:   NewPlanner(time.Time{}),
		processor: NewTaskProcessor(config, db, source, ledger, logger),
		now:       time.Now,
		logger:    logger,
		running:   false,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Processor returns the task processor, for one-off tasks run outside the loop
func (w *Worker) Processor() *TaskProcessor {
	return w.processor
}

// Start starts the worker loop
func (w *Worker) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.running = true

	w.logger.Info("worker starting",
		zap.Duration("collect_interval", w.config.CollectInterval),
		zap.Int("max_concurrent", w.config.MaxConcurrent),
		zap.Bool("catch_up", w.config.CatchUp))

	// Boundaries crossed between now and the first tick still get rolled up.
	started := w.now()
	w.planner = NewPlanner(started)

	if w.config.CatchUp {
		for _, task := range CatchUp(started) {
			w.run(w.ctx, task)
		}
	}

	ticker := time.NewTicker(w.config.CollectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			w.logger.Info("worker shutting down")
			w.releaseLease()
			return w.ctx.Err()

		case now := <-ticker.C:
			w.Tick(w.ctx, now)
		}
	}
}

// Stop stops the worker gracefully
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.running = false
}

// Tick plans and runs the tasks for one tick, in order. It returns the tasks
// with their final status.
func (w *Worker) Tick(ctx context.Context, now time.Time) []*types.Task {
	tasks := w.planner.Plan(now)
	collect := w.holdLease(ctx)
	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		if task.Type == types.TaskTypeCollect && !collect {
			task.Status = types.TaskStatusSkipped
			continue
		}
		w.run(ctx, task)
	}
	return tasks
}

// holdLease acquires or renews the collector lease. Without a lease
// configured every worker collects.
func (w *Worker) holdLease(ctx context.Context) bool {
	if w.lease == nil {
		return true
	}

	ok, err := w.lease.Acquire(ctx, CollectorLease, w.config.InstanceID, 3*w.config.CollectInterval)
	if err != nil {
		w.logger.Warn("failed to acquire collector lease", zap.Error(err))
		ok = false
	}
	if ok != w.leader {
		w.logger.Info("collector lease changed", zap.Bool("held", ok))
		w.leader = ok
	}
	return ok
}

func (w *Worker) releaseLease() {
	if w.lease == nil || !w.leader {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := w.lease.Release(ctx, CollectorLease, w.config.InstanceID); err != nil {
		w.logger.Warn("failed to release collector lease", zap.Error(err))
		return
	}
	w.leader = false
}

// run processes a single task
func (w *Worker) run(ctx context.Context, task *types.Task) {
	task.Status = types.TaskStatusRunning
	logger := w.logger.With(zap.String("task_id", task.ID), zap.String("type", string(task.Type)))

	if task.Type != types.TaskTypeCollect {
		logger.Info("processing task", zap.Time("window_start", task.WindowStart), zap.Time("window_end", task.WindowEnd))
	}

	if err := w.processor.Process(ctx, task); err != nil {
		task.Status = types.TaskStatusFailed
		logger.Warn("task failed", zap.Error(err))
		return
	}
	task.Status = types.TaskStatusSucceeded
}
