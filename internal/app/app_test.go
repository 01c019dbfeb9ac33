package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsanders-rh/kubecostd/internal/config"
	"github.com/tsanders-rh/kubecostd/internal/pricing"
	"github.com/tsanders-rh/kubecostd/internal/worker"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("KUBECOSTD_STORAGE_DATA_DIR", t.TempDir())
	t.Setenv("KUBECOSTD_PRICING_DIR", "../pricing/definitions")
	t.Setenv("KUBECOSTD_LOG_LEVEL", "error")

	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestNew_WithoutDatabase(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t))
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Store)
	assert.NoError(t, a.DB.Writable())
	assert.IsType(t, &pricing.Registry{}, a.PriceSource())
	assert.IsType(t, &worker.MemoryLedger{}, a.Ledger())
	assert.Empty(t, a.WorkerOptions())

	prices, err := a.PriceSource().Current(ctx)
	require.NoError(t, err)
	assert.Positive(t, prices.CPUCoreHour)

	arch, err := a.Archiver(ctx)
	require.NoError(t, err)
	assert.Nil(t, arch)

	j, err := a.Janitor(ctx, nil)
	require.NoError(t, err)
	report := j.RunOnce(ctx)
	assert.Zero(t, report.Errors)
}

func TestNew_UnknownPriceTable(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pricing.Active = "does-not-exist"

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}
