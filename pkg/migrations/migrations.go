package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/sheet-importer/pkg/serrors"
)

// Schema FS layout: one directory per dialect (postgres/, sqlserver/, sqlite/)
// holding goose-annotated .sql files.

var ErrUnsupportedDialect = serrors.NewError("MIGRATIONS_UNSUPPORTED_DIALECT", "unsupported migration dialect", "")

type Status struct {
	Version   int64
	Path      string
	Applied   bool
	AppliedAt time.Time
}

// FromEmbed adapts module schema registrations for Up and List.
func FromEmbed(schemas []*embed.FS) []fs.FS {
	out := make([]fs.FS, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, s)
	}
	return out
}

func gooseDialect(name string) (goose.Dialect, error) {
	switch name {
	case "postgres":
		return goose.DialectPostgres, nil
	case "sqlserver":
		return goose.DialectMSSQL, nil
	case "sqlite":
		return goose.DialectSQLite3, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDialect, name)
	}
}

func providers(db *sql.DB, dialect string, schemas []fs.FS) ([]*goose.Provider, error) {
	d, err := gooseDialect(dialect)
	if err != nil {
		return nil, err
	}
	out := make([]*goose.Provider, 0, len(schemas))
	for _, schema := range schemas {
		sub, err := fs.Sub(schema, dialect)
		if err != nil {
			return nil, err
		}
		p, err := goose.NewProvider(d, db, sub)
		if err != nil {
			return nil, fmt.Errorf("goose provider (%s): %w", dialect, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func Up(ctx context.Context, db *sql.DB, dialect string, schemas []fs.FS, log *logrus.Entry) error {
	ps, err := providers(db, dialect, schemas)
	if err != nil {
		return err
	}
	for _, p := range ps {
		results, err := p.Up(ctx)
		if err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
		for _, r := range results {
			log.WithFields(logrus.Fields{
				"version":  r.Source.Version,
				"path":     r.Source.Path,
				"duration": r.Duration,
			}).Info("migration applied")
		}
	}
	return nil
}

func List(ctx context.Context, db *sql.DB, dialect string, schemas []fs.FS) ([]Status, error) {
	ps, err := providers(db, dialect, schemas)
	if err != nil {
		return nil, err
	}
	var out []Status
	for _, p := range ps {
		statuses, err := p.Status(ctx)
		if err != nil {
			return nil, fmt.Errorf("migrate status: %w", err)
		}
		for _, s := range statuses {
			out = append(out, Status{
				Version:   s.Source.Version,
				Path:      s.Source.Path,
				Applied:   s.State == goose.StateApplied,
				AppliedAt: s.AppliedAt,
			})
		}
	}
	return out, nil
}
