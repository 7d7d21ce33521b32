package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/iota-uz/sheet-importer/modules/imports/domain/reportkind"
	"github.com/iota-uz/sheet-importer/pkg/configuration"
)

func newKindsCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "Print the effective report kind to table mapping",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := configuration.Load(g.envFiles...)
			if err != nil {
				return withCode(exitUsage, err)
			}
			defer conf.Unload()
			return runKinds(conf.Import.ReportKindsPath, conf.Import.Schema, cmd.OutOrStdout())
		},
	}
}

func runKinds(path, defaultSchema string, out io.Writer) error {
	kinds, err := reportkind.Load(path, defaultSchema)
	if err != nil {
		return withCode(exitUsage, err)
	}
	return writeJSON(out, kinds.All())
}
