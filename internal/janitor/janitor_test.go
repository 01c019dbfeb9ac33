package janitor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsanders-rh/kubecostd/internal/janitor"
	"github.com/tsanders-rh/kubecostd/internal/tsdb"
	"github.com/tsanders-rh/kubecostd/pkg/types"
)

var now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, db *tsdb.DB, kind types.ResourceKind, g types.Granularity, key string, times ...time.Time) {
	t.Helper()
	s, err := db.Store(kind, g)
	require.NoError(t, err)
	for _, at := range times {
		require.NoError(t, s.Append(key, types.NewRecord(at)))
	}
}

func buckets(t *testing.T, db *tsdb.DB, kind types.ResourceKind, g types.Granularity, key string) []string {
	t.Helper()
	s, err := db.Store(kind, g)
	require.NoError(t, err)
	parts, err := s.Partitions(key)
	require.NoError(t, err)
	names := make([]string, len(parts))
	for i, p := range parts {
		names[i] = p.Bucket
	}
	return names
}

func TestConfig_Cutoffs(t *testing.T) {
	cutoffs := janitor.DefaultConfig().Cutoffs(now)
	assert.Equal(t, time.Date(2024, 6, 8, 12, 0, 0, 0, time.UTC), cutoffs[types.GranularityMinute])
	assert.Equal(t, time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC), cutoffs[types.GranularityHour])
	assert.Equal(t, time.Date(2019, 6, 15, 12, 0, 0, 0, time.UTC), cutoffs[types.GranularityDay])
}

func TestJanitor_RunOnce(t *testing.T) {
	db, err := tsdb.Open(t.TempDir())
	require.NoError(t, err)

	seed(t, db, types.ResourceKindNode, types.GranularityMinute, "node-a",
		time.Date(2024, 6, 7, 23, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 8, 0, 30, 0, 0, time.UTC),
		time.Date(2024, 6, 15, 11, 0, 0, 0, time.UTC))
	seed(t, db, types.ResourceKindPod, types.GranularityHour, "ns/web",
		time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	seed(t, db, types.ResourceKindContainer, types.GranularityDay, "ns/web/app",
		time.Date(2018, 5, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC))

	j := janitor.NewJanitor(nil, db, nil, janitor.WithClock(func() time.Time { return now }))
	report := j.RunOnce(context.Background())

	assert.NotEmpty(t, report.ID)
	assert.Zero(t, report.Errors)
	assert.Equal(t, 3, report.TotalDeleted())
	assert.Equal(t, 1, report.Deleted["node/minute"])
	assert.Equal(t, 1, report.Deleted["pod/hour"])
	assert.Equal(t, 1, report.Deleted["container/day"])

	assert.Equal(t, []string{"2024-06-08", "2024-06-15"}, buckets(t, db, types.ResourceKindNode, types.GranularityMinute, "node-a"))
	assert.Equal(t, []string{"2024-03"}, buckets(t, db, types.ResourceKindPod, types.GranularityHour, "ns/web"))
	assert.Equal(t, []string{"2019"}, buckets(t, db, types.ResourceKindContainer, types.GranularityDay, "ns/web/app"))

	again := j.RunOnce(context.Background())
	assert.Zero(t, again.TotalDeleted(), "sweeps are idempotent")
}

type recordingArchiver struct {
	fail     bool
	archived []string
}

func (a *recordingArchiver) Archive(_ context.Context, p tsdb.Partition) error {
	if a.fail {
		return errors.New("bucket unavailable")
	}
	a.archived = append(a.archived, string(p.Kind)+"/"+p.Key+"/"+p.Bucket)
	return nil
}

type fakeLedger struct {
	cutoff time.Time
}

func (l *fakeLedger) CleanupBefore(_ context.Context, cutoff time.Time) (int64, error) {
	l.cutoff = cutoff
	return 4, nil
}

func TestJanitor_ArchivesBeforeDeleting(t *testing.T) {
	db, err := tsdb.Open(t.TempDir())
	require.NoError(t, err)
	seed(t, db, types.ResourceKindNode, types.GranularityDay, "node-a", time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC))

	t.Run("failed upload keeps data", func(t *testing.T) {
		archiver := &recordingArchiver{fail: true}
		j := janitor.NewJanitor(nil, db, nil, janitor.WithArchiver(archiver), janitor.WithClock(func() time.Time { return now }))
		report := j.RunOnce(context.Background())
		assert.Zero(t, report.TotalDeleted())
		assert.Equal(t, []string{"2010"}, buckets(t, db, types.ResourceKindNode, types.GranularityDay, "node-a"))
	})

	t.Run("successful upload deletes", func(t *testing.T) {
		archiver := &recordingArchiver{}
		ledger := &fakeLedger{}
		j := janitor.NewJanitor(nil, db, nil,
			janitor.WithArchiver(archiver),
			janitor.WithLedger(ledger),
			janitor.WithClock(func() time.Time { return now }))

		report := j.RunOnce(context.Background())
		assert.Equal(t, 1, report.TotalDeleted())
		assert.Equal(t, []string{"node/node-a/2010"}, archiver.archived)
		assert.Equal(t, int64(4), report.LedgerDeleted)
		assert.Equal(t, janitor.DefaultConfig().Cutoffs(now)[types.GranularityMinute], ledger.cutoff)
	})
}

func TestJanitor_StartStop(t *testing.T) {
	db, err := tsdb.Open(t.TempDir())
	require.NoError(t, err)

	cfg := janitor.DefaultConfig()
	cfg.CheckInterval = 10 * time.Millisecond
	j := janitor.NewJanitor(cfg, db, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- j.Start(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

type fakeRecorder struct {
	reports []*types.SweepReport
	err     error
}

func (r *fakeRecorder) RecordSweep(_ context.Context, report *types.SweepReport) error {
	r.reports = append(r.reports, report)
	return r.err
}

func TestJanitor_RecordsSweeps(t *testing.T) {
	db, err := tsdb.Open(t.TempDir())
	require.NoError(t, err)
	seed(t, db, types.ResourceKindNode, types.GranularityMinute, "node-a", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))

	recorder := &fakeRecorder{}
	j := janitor.NewJanitor(nil, db, nil, janitor.WithRecorder(recorder), janitor.WithClock(func() time.Time { return now }))

	report := j.RunOnce(context.Background())
	require.Len(t, recorder.reports, 1)
	assert.Same(t, report, recorder.reports[0])
	assert.Equal(t, 1, recorder.reports[0].Deleted["node/minute"])

	recorder.err = errors.New("database down")
	report = j.RunOnce(context.Background())
	assert.Zero(t, report.Errors, "a failed recording does not fail the sweep")
	assert.Len(t, recorder.reports, 2)
}
