package main

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/tsanders-rh/kubecostd/pkg/types"
)

func newPricesCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prices",
		Short: "Inspect and manage unit prices",
	}
	cmd.AddCommand(newPricesShowCmd(c), newPricesSetCmd(c))
	return cmd
}

func newPricesShowCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the prices in effect and the available tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			current, err := a.PriceSource().Current(cmd.Context())
			if err != nil {
				return err
			}

			out := map[string]interface{}{
				"active":  a.Prices.Active(),
				"current": current,
				"tables":  a.Prices.List(),
			}
			if a.Store != nil {
				names, err := a.Store.Prices.List(cmd.Context())
				if err != nil {
					return err
				}
				out["database_tables"] = names
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func newPricesSetCmd(c *cli) *cobra.Command {
	var p types.UnitPrice

	cmd := &cobra.Command{
		Use:   "set NAME",
		Short: "Store a price row in the database",
		Long: `Insert or replace the price row NAME in Postgres. Point pricing.database_table
at NAME to have the API serve it in place of the YAML tables.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validator.New().Struct(p); err != nil {
				return fmt.Errorf("invalid prices: %w", err)
			}

			a, err := c.app(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if a.Store == nil {
				return errors.New("no database configured; set database.url or KUBECOSTD_DATABASE_URL")
			}
			if err := a.Store.Prices.Upsert(cmd.Context(), args[0], p); err != nil {
				return err
			}
			stored, err := a.Store.Prices.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stored)
		},
	}

	cmd.Flags().Float64Var(&p.CPUCoreHour, "cpu-core-hour", 0, "USD per CPU core hour")
	cmd.Flags().Float64Var(&p.MemoryGBHour, "memory-gb-hour", 0, "USD per GiB hour of memory")
	cmd.Flags().Float64Var(&p.StorageGBHour, "storage-gb-hour", 0, "USD per GiB hour of storage")
	cmd.Flags().Float64Var(&p.NetworkGB, "network-gb", 0, "USD per GiB of egress")
	cmd.Flags().StringVar(&p.Currency, "currency", "USD", "currency code")
	return cmd
}
