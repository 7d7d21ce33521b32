package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/iota-uz/sheet-importer/modules/imports/domain/entities/importrun"
	"github.com/iota-uz/sheet-importer/modules/imports/services"
)

type runsOptions struct {
	from   string
	to     string
	table  string
	status string
	limit  int
}

func newRunsCmd(g *globalOptions) *cobra.Command {
	var opts runsOptions

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded import runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := opts.findParams()
			if err != nil {
				return withCode(exitUsage, err)
			}
			return runRuns(cmd.Context(), g, params, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.from, "from", "", "Only runs imported at or after this time (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&opts.to, "to", "", "Only runs imported at or before this time")
	cmd.Flags().StringVar(&opts.table, "table", "", "Destination table name")
	cmd.Flags().StringVar(&opts.status, "status", "", "SUCCESS or FAILED")
	cmd.Flags().IntVar(&opts.limit, "limit", importrun.DefaultListLimit, "Maximum rows (capped at 1000)")
	return cmd
}

func (o runsOptions) findParams() (*importrun.FindParams, error) {
	p := &importrun.FindParams{TableName: o.table, Limit: o.limit}
	if o.from != "" {
		t, err := parseTimeFlag(o.from)
		if err != nil {
			return nil, fmt.Errorf("--from: %w", err)
		}
		p.From = &t
	}
	if o.to != "" {
		t, err := parseTimeFlag(o.to)
		if err != nil {
			return nil, fmt.Errorf("--to: %w", err)
		}
		p.To = &t
	}
	if o.status != "" {
		s, err := importrun.StatusFrom(o.status)
		if err != nil {
			return nil, err
		}
		p.Status = s
	}
	return p, nil
}

func runRuns(ctx context.Context, g *globalOptions, params *importrun.FindParams, out io.Writer) error {
	e, err := openEnv(ctx, g)
	if err != nil {
		return err
	}
	defer e.Close()

	runs, err := services.NewRunsService(e.backend.Runs).List(e.backend.Context(ctx), params)
	if err != nil {
		return classify(err)
	}
	if runs == nil {
		runs = []*importrun.ImportRun{}
	}
	return writeJSON(out, map[string]any{"count": len(runs), "data": runs})
}
