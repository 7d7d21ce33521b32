package main

import (
	"embed"

	"github.com/spf13/cobra"

	"github.com/iota-uz/sheet-importer/modules/imports/infrastructure/persistence/schema"
)

func ledgerSchemas() []*embed.FS {
	return []*embed.FS{&schema.FS}
}

func newMigrateCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the import ledger migrations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending ledger migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer e.Close()
			ctx := e.backend.Context(cmd.Context())
			if err := e.backend.Migrate(ctx, ledgerSchemas(), e.log.WithField("component", "migrations")); err != nil {
				return withCode(exitDB, err)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending ledger migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer e.Close()
			statuses, err := e.backend.Status(cmd.Context(), ledgerSchemas())
			if err != nil {
				return withCode(exitDB, err)
			}
			return writeJSON(cmd.OutOrStdout(), statuses)
		},
	})
	return cmd
}
