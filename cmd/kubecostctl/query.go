package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tsanders-rh/kubecostd/internal/query"
	"github.com/tsanders-rh/kubecostd/pkg/types"
)

type queryFlags struct {
	kind        string
	keys        []string
	start       string
	end         string
	granularity string
	field       string
	limit       int
	offset      int
}

func (f *queryFlags) rangeQuery(now time.Time) (types.RangeQuery, error) {
	kind, err := types.ParseResourceKind(f.kind)
	if err != nil {
		return types.RangeQuery{}, err
	}
	start, err := parseTime(f.start, now)
	if err != nil {
		return types.RangeQuery{}, err
	}
	end, err := parseTime(f.end, now)
	if err != nil {
		return types.RangeQuery{}, err
	}
	return types.RangeQuery{
		Kind:        kind,
		Keys:        f.keys,
		Start:       start,
		End:         end,
		Granularity: types.Granularity(f.granularity),
		Field:       f.field,
		Limit:       f.limit,
		Offset:      f.offset,
	}, nil
}

func newQueryCmd(c *cli) *cobra.Command {
	f := &queryFlags{}
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Read usage, cost and trends straight from the data directory",
	}

	cmd.PersistentFlags().StringVar(&f.kind, "kind", "node", "resource kind: node, pod or container")
	cmd.PersistentFlags().StringSliceVar(&f.keys, "key", nil, "resource key, repeatable (default all keys)")
	cmd.PersistentFlags().StringVar(&f.start, "start", "1h", "range start (RFC3339 or duration ago)")
	cmd.PersistentFlags().StringVar(&f.end, "end", "", "range end (RFC3339 or duration ago, default now)")
	cmd.PersistentFlags().StringVar(&f.granularity, "granularity", "", "minute, hour or day (default finest valid)")

	rows := queryRunner(c, f, func(ctx context.Context, svc *query.Service, q types.RangeQuery) (interface{}, error) {
		return svc.Rows(ctx, q)
	})
	rows.Use = "rows"
	rows.Short = "Print stored rows"
	rows.Flags().StringVar(&f.field, "field", "", "project rows onto one field")
	rows.Flags().IntVar(&f.limit, "limit", 0, "rows per key (0 for all)")
	rows.Flags().IntVar(&f.offset, "offset", 0, "rows to skip per key")

	costs := queryRunner(c, f, func(ctx context.Context, svc *query.Service, q types.RangeQuery) (interface{}, error) {
		return svc.Costs(ctx, q)
	})
	costs.Use = "costs"
	costs.Short = "Print per-point costs"

	summary := queryRunner(c, f, func(ctx context.Context, svc *query.Service, q types.RangeQuery) (interface{}, error) {
		return svc.Summary(ctx, q)
	})
	summary.Use = "summary"
	summary.Short = "Print total cost by category"

	trend := queryRunner(c, f, func(ctx context.Context, svc *query.Service, q types.RangeQuery) (interface{}, error) {
		return svc.Trend(ctx, q)
	})
	trend.Use = "trend"
	trend.Short = "Print the cost trend and next-step forecast"

	cmd.AddCommand(rows, costs, summary, trend)
	return cmd
}

type queryFunc func(ctx context.Context, svc *query.Service, q types.RangeQuery) (interface{}, error)

func queryRunner(c *cli, f *queryFlags, run queryFunc) *cobra.Command {
	return &cobra.Command{
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := f.rangeQuery(time.Now())
			if err != nil {
				return err
			}

			a, err := c.app(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := run(cmd.Context(), a.QueryService(nil), q)
			if err != nil {
				return fmt.Errorf("query %s: %w", q.Kind, err)
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}
