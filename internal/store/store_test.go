package store_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsanders-rh/kubecostd/internal/store"
	"github.com/tsanders-rh/kubecostd/pkg/types"
)

// setupTestDB connects to the database named by KUBECOSTD_TEST_DATABASE_URL and
// skips the test when it is unset or when running with -short
func setupTestDB(t *testing.T) *store.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	url := os.Getenv("KUBECOSTD_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("KUBECOSTD_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	s, err := store.NewStore(ctx, url)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Migrate(ctx), "migrations are repeatable")
	return s
}

func TestNewPool_NotConfigured(t *testing.T) {
	_, err := store.NewPool(context.Background(), store.DefaultConfig(""))
	assert.ErrorIs(t, err, store.ErrNotConfigured)
	assert.False(t, store.DefaultConfig("").Enabled())
	assert.True(t, store.DefaultConfig("postgres://localhost/kubecostd").Enabled())
}

func TestUnitPriceStore(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	name := "test-" + types.GenerateID()

	t.Run("missing table", func(t *testing.T) {
		_, err := s.Prices.Get(ctx, name)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("upsert then get", func(t *testing.T) {
		require.NoError(t, s.Prices.Upsert(ctx, name, types.UnitPrice{CPUCoreHour: 0.03, NetworkGB: 0.09}))
		require.NoError(t, s.Prices.Upsert(ctx, name, types.UnitPrice{CPUCoreHour: 0.04, NetworkGB: 0.09}))

		p, err := s.Prices.Get(ctx, name)
		require.NoError(t, err)
		assert.InDelta(t, 0.04, p.CPUCoreHour, 1e-12)
		assert.Equal(t, "USD", p.Currency)
		assert.False(t, p.UpdatedAt.IsZero())

		current, err := s.Prices.Source(name).Current(ctx)
		require.NoError(t, err)
		assert.Equal(t, p.CPUCoreHour, current.CPUCoreHour)

		names, err := s.Prices.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, names, name)
	})
}

func TestRollupLedgerStore(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	entry := types.RollupEntry{
		Kind:        types.ResourceKindPod,
		Key:         "ledger-test/" + types.GenerateID(),
		Granularity: types.GranularityHour,
		WindowEnd:   time.Date(2001, 1, 1, 10, 0, 0, 0, time.UTC),
	}

	claimed, err := s.Rollups.Claim(ctx, entry, "worker-a")
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = s.Rollups.Claim(ctx, entry, "worker-b")
	require.NoError(t, err)
	assert.False(t, claimed, "a window is claimed at most once")

	require.NoError(t, s.Rollups.Complete(ctx, entry, types.TaskStatusSucceeded))
	status, err := s.Rollups.Status(ctx, entry)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusSucceeded, status)

	deleted, err := s.Rollups.CleanupBefore(ctx, entry.WindowEnd.Add(time.Second))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, deleted, int64(1))

	_, err = s.Rollups.Status(ctx, entry)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLeaseStore(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	name := "lease-test-" + types.GenerateID()

	ok, err := s.Leases.Acquire(ctx, name, "worker-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Leases.Acquire(ctx, name, "worker-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "an unexpired lease belongs to its holder")

	ok, err = s.Leases.Acquire(ctx, name, "worker-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "the holder renews")

	lease, err := s.Leases.Get(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, "worker-a", lease.Holder)
	assert.True(t, lease.ExpiresAt.After(lease.AcquiredAt))

	require.NoError(t, s.Leases.Release(ctx, name, "worker-a"))
	ok, err = s.Leases.Acquire(ctx, name, "worker-b", time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok, "a released lease is free")

	time.Sleep(10 * time.Millisecond)
	ok, err = s.Leases.Acquire(ctx, name, "worker-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "an expired lease can be taken over")
}

func TestSweepStore(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	report := &types.SweepReport{
		ID:            types.GenerateSweepID(),
		StartedAt:     time.Now().UTC().Truncate(time.Millisecond),
		FinishedAt:    time.Now().UTC().Truncate(time.Millisecond),
		Deleted:       map[string]int{"node/minute": 3},
		LedgerDeleted: 2,
	}
	require.NoError(t, s.Sweeps.RecordSweep(ctx, report))

	reports, err := s.Sweeps.List(ctx, 50, 0)
	require.NoError(t, err)

	var found *types.SweepReport
	for _, r := range reports {
		if r.ID == report.ID {
			found = r
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, 3, found.TotalDeleted())
	assert.Equal(t, int64(2), found.LedgerDeleted)
}
