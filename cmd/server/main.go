package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iota-uz/sheet-importer/internal/server"
	"github.com/iota-uz/sheet-importer/modules"
	"github.com/iota-uz/sheet-importer/modules/imports"
	"github.com/iota-uz/sheet-importer/modules/imports/domain/reportkind"
	"github.com/iota-uz/sheet-importer/modules/imports/presentation/controllers"
	"github.com/iota-uz/sheet-importer/modules/imports/services"
	"github.com/iota-uz/sheet-importer/pkg/application"
	"github.com/iota-uz/sheet-importer/pkg/configuration"
	"github.com/iota-uz/sheet-importer/pkg/logging"
	"github.com/iota-uz/sheet-importer/pkg/metrics"
	"github.com/iota-uz/sheet-importer/pkg/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	defer func() {
		if r := recover(); r != nil {
			configuration.Use().Unload()
			log.Println(r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	conf := configuration.Use()
	defer conf.Unload()
	logger := conf.Logger()

	if conf.OpenTelemetry.Enabled {
		tracingCleanup := logging.SetupTracing(
			context.Background(),
			conf.OpenTelemetry.ServiceName,
			conf.OpenTelemetry.TempoURL,
		)
		defer tracingCleanup()
		logger.Info("OpenTelemetry tracing enabled, exporting to Tempo at " + conf.OpenTelemetry.TempoURL)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	backend, err := imports.OpenBackend(connectCtx, conf)
	cancel()
	if err != nil {
		log.Fatalf("failed to open import backend: %v", err)
	}
	defer backend.Close()

	kinds, err := reportkind.Load(conf.Import.ReportKindsPath, conf.Import.Schema)
	if err != nil {
		log.Fatalf("failed to load report kinds: %v", err)
	}
	jobs, err := backend.JobStore(ctx, conf)
	if err != nil {
		log.Fatalf("failed to open job store: %v", err)
	}

	// Background imports run on this context, so it carries the pgx pool.
	pool, err := worker.NewPool(backend.Context(context.Background()), worker.Options{
		Size:   conf.Import.Workers,
		Logger: logger.WithField("component", "worker"),
	})
	if err != nil {
		log.Fatalf("failed to create worker pool: %v", err)
	}

	app := application.New(&application.ApplicationOptions{
		Pool:   backend.Pool,
		Logger: logger,
	})
	if err := modules.Load(app, imports.NewModule(&imports.ModuleOptions{
		Backend: backend,
		Jobs:    jobs,
		Kinds:   kinds,
		Pool:    pool,
		Uploads: controllers.UploadOptions{
			Dir:       conf.UploadsPath,
			MaxSize:   conf.MaxUploadSize,
			MaxMemory: conf.MaxUploadMemory,
		},
		ChunkSize:    conf.Import.BatchSize,
		WarningLimit: conf.Import.WarningLimit,
		Logger:       logger,
	})); err != nil {
		log.Fatalf("failed to load modules: %v", err)
	}

	if err := backend.Migrate(backend.Context(ctx), app.Migrations().Schemas(), logger.WithField("component", "migrations")); err != nil {
		log.Fatalf("failed to apply migrations: %v", err)
	}

	app.RegisterControllers(server.NewHealthController(backend.Ledger))
	if conf.Prometheus.Enabled {
		app.RegisterControllers(metrics.NewPrometheusController(conf.Prometheus.Path))
	}
	serverInstance, err := server.Default(&server.DefaultOptions{
		Logger:        logger,
		Configuration: conf,
		Application:   app,
		Pool:          backend.Pool,
	})
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}
	httpServer, err := serverInstance.Server(conf.SocketAddress)
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}

	jobService := app.Service(services.JobService{}).(*services.JobService)
	janitor := services.NewJobJanitor(jobService, conf.Jobs.JanitorInterval, conf.Jobs.TTL, logger.WithField("component", "janitor"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("Listening on: %s", conf.SocketAddress)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := janitor.Run(backend.Context(gctx))
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("http server shutdown")
		}
		if err := pool.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("import jobs did not drain before the deadline")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
