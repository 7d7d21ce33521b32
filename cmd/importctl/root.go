package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iota-uz/sheet-importer/modules/imports"
	"github.com/iota-uz/sheet-importer/pkg/configuration"
	"github.com/iota-uz/sheet-importer/pkg/logging"
)

type globalOptions struct {
	envFiles    []string
	pushGateway string
}

func newRootCmd() *cobra.Command {
	var g globalOptions

	cmd := &cobra.Command{
		Use:           "importctl",
		Short:         "Spreadsheet import pipeline and ledger tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return pushMetrics(g.pushGateway)
		},
	}
	cmd.PersistentFlags().StringSliceVar(&g.envFiles, "env", []string{".env", ".env.local"}, "Env files to load")
	cmd.PersistentFlags().StringVar(&g.pushGateway, "push-gateway", "", "Prometheus Pushgateway URL to push import metrics to")

	cmd.AddCommand(newImportCmd(&g))
	cmd.AddCommand(newRunsCmd(&g))
	cmd.AddCommand(newKindsCmd(&g))
	cmd.AddCommand(newMigrateCmd(&g))
	return cmd
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		code := exitCode(err)
		if code == 1 {
			// cobra reports unknown flags and commands as plain errors.
			code = exitUsage
		}
		fmt.Fprintln(os.Stderr, err.Error())
		stop()
		os.Exit(code)
	}
}

// env is what every subcommand needs: configuration, a stderr logger and the
// configured backend.
type env struct {
	conf    *configuration.Configuration
	log     *logrus.Logger
	backend *imports.Backend
}

func openEnv(ctx context.Context, g *globalOptions) (*env, error) {
	conf, err := configuration.Load(g.envFiles...)
	if err != nil {
		return nil, withCode(exitUsage, err)
	}
	log := logging.ConsoleLogger(conf.LogrusLogLevel())
	log.SetOutput(os.Stderr)

	backend, err := imports.OpenBackend(ctx, conf)
	if err != nil {
		conf.Unload()
		return nil, withCode(exitDB, err)
	}
	return &env{conf: conf, log: log, backend: backend}, nil
}

func (e *env) Close() {
	if err := e.backend.Close(); err != nil {
		e.log.WithError(err).Warn("failed to close backend")
	}
	e.conf.Unload()
}

func pushMetrics(url string) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, "importctl").Gatherer(prometheus.DefaultGatherer).Push(); err != nil {
		return withCode(exitDB, fmt.Errorf("push metrics: %w", err))
	}
	return nil
}
