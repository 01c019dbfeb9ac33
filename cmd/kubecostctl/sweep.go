package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/tsanders-rh/kubecostd/internal/janitor"
)

func newSweepCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete or archive partitions past their retention horizon once",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			var cleaner janitor.LedgerCleaner
			if a.Store != nil && a.Config.Retention.LedgerCleanup {
				cleaner = a.Store.Rollups
			}
			j, err := a.Janitor(cmd.Context(), cleaner)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), j.RunOnce(cmd.Context()))
		},
	}
	cmd.AddCommand(newSweepHistoryCmd(c))
	return cmd
}

func newSweepHistoryCmd(c *cli) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded sweeps, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if a.Store == nil {
				return errors.New("no database configured; sweeps are only recorded in Postgres")
			}
			reports, err := a.Store.Sweeps.List(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), reports)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "sweeps to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "sweeps to skip")
	return cmd
}
