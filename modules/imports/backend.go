package imports

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/sheet-importer/modules/imports/domain/destination"
	"github.com/iota-uz/sheet-importer/modules/imports/domain/entities/importjob"
	"github.com/iota-uz/sheet-importer/modules/imports/domain/entities/importrun"
	"github.com/iota-uz/sheet-importer/modules/imports/infrastructure/jobstore"
	"github.com/iota-uz/sheet-importer/modules/imports/infrastructure/persistence"
	"github.com/iota-uz/sheet-importer/modules/imports/infrastructure/sqldb"
	"github.com/iota-uz/sheet-importer/pkg/composables"
	"github.com/iota-uz/sheet-importer/pkg/configuration"
	"github.com/iota-uz/sheet-importer/pkg/migrations"
)

// Backend holds the stores selected by configuration.
type Backend struct {
	Driver      string
	Destination destination.Destination
	Runs        importrun.Repository
	// Ledger is the destination database as database/sql, used for
	// migrations.
	Ledger *sql.DB
	// Pool is set when either the destination or the job store is PostgreSQL.
	Pool *pgxpool.Pool

	closers []func() error
}

func OpenBackend(ctx context.Context, conf *configuration.Configuration) (_ *Backend, err error) {
	b := &Backend{Driver: conf.Import.Driver}
	defer func() {
		if err != nil {
			_ = b.Close()
		}
	}()

	if conf.Import.Driver == configuration.DriverPostgres || conf.Jobs.Store == configuration.JobStorePostgres {
		pool, err := pgxpool.New(ctx, conf.Database.Opts)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.closers = append(b.closers, func() error { pool.Close(); return nil })
		if err := pool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		b.Pool = pool
	}

	switch conf.Import.Driver {
	case configuration.DriverPostgres:
		db := stdlib.OpenDBFromPool(b.Pool)
		b.closers = append(b.closers, db.Close)
		b.Ledger = db
		b.Destination = persistence.NewPostgresDestination()
		b.Runs = persistence.NewImportRunRepository()
	case configuration.DriverSQLServer:
		db, err := sqldb.OpenSQLServer(ctx, conf.SQLServer.DSN)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db.Close)
		b.Ledger = db.DB
		b.Destination = sqldb.NewMSSQLDestination(db.DB)
		if b.Runs, err = sqldb.NewRunRepository(db); err != nil {
			return nil, err
		}
	case configuration.DriverSQLite:
		db, err := sqldb.OpenSQLite(ctx, conf.SQLite.Path)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db.Close)
		b.Ledger = db.DB
		b.Destination = sqldb.NewSQLiteDestination(db.DB)
		if b.Runs, err = sqldb.NewRunRepository(db); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported import driver %q", conf.Import.Driver)
	}
	return b, nil
}

// Context attaches the PostgreSQL pool, when there is one, so the pgx
// repositories can find it.
func (b *Backend) Context(ctx context.Context) context.Context {
	if b.Pool == nil {
		return ctx
	}
	return composables.WithPool(ctx, b.Pool)
}

// JobStore builds the job repository named by JOB_STORE.
func (b *Backend) JobStore(ctx context.Context, conf *configuration.Configuration) (importjob.Repository, error) {
	switch conf.Jobs.Store {
	case configuration.JobStoreRedis:
		store, err := jobstore.NewRedisFromURL(ctx, conf.RedisURL, conf.Jobs.RedisPrefix, conf.Jobs.TTL)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, store.Close)
		return store, nil
	case configuration.JobStorePostgres:
		return persistence.NewImportJobRepository(), nil
	default:
		return jobstore.NewMemory(), nil
	}
}

// Migrate applies the ledger migrations to the destination database and,
// when jobs live in PostgreSQL while imports do not, to PostgreSQL too.
func (b *Backend) Migrate(ctx context.Context, schemas []*embed.FS, log *logrus.Entry) error {
	if err := migrations.Up(ctx, b.Ledger, b.Driver, migrations.FromEmbed(schemas), log); err != nil {
		return err
	}
	if b.Pool == nil || b.Driver == configuration.DriverPostgres {
		return nil
	}
	db := stdlib.OpenDBFromPool(b.Pool)
	defer db.Close()
	return migrations.Up(ctx, db, configuration.DriverPostgres, migrations.FromEmbed(schemas), log)
}

// Status lists the ledger migrations of the destination database.
func (b *Backend) Status(ctx context.Context, schemas []*embed.FS) ([]migrations.Status, error) {
	return migrations.List(ctx, b.Ledger, b.Driver, migrations.FromEmbed(schemas))
}

func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	b.closers = nil
	return errors.Join(errs...)
}
