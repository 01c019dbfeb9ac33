package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tsanders-rh/kubecostd/internal/app"
	"github.com/tsanders-rh/kubecostd/internal/config"
)

type cli struct {
	configPath string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	cmd := &cobra.Command{
		Use:           "kubecostctl",
		Short:         "Operate a kubecostd data directory",
		Long:          "kubecostctl backfills rollups, sweeps expired partitions, queries usage and cost, and manages prices and API tokens.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&c.configPath, "config", os.Getenv("KUBECOSTD_CONFIG"), "path to config.yaml")

	cmd.AddCommand(
		newRollupCmd(c),
		newSweepCmd(c),
		newQueryCmd(c),
		newPricesCmd(c),
		newTokenCmd(c),
	)
	return cmd
}

func (c *cli) config() (*config.Config, error) {
	return config.Load(c.configPath)
}

func (c *cli) app(ctx context.Context) (*app.App, error) {
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseTime accepts RFC3339 timestamps or a duration before now, such as 6h
func parseTime(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return now.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC3339 nor a duration", s)
	}
	return now.Add(-d).UTC(), nil
}
