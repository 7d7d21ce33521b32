// Package sqldb holds the database/sql destinations (SQL Server, SQLite) and
// the sqlx-backed run ledger they share.
package sqldb

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"
	"github.com/microsoft/go-mssqldb/msdsn"
	"github.com/shopspring/decimal"

	// database/sql drivers
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"

	"github.com/iota-uz/sheet-importer/modules/imports/domain/schema"
)

const (
	DriverSQLServer = "sqlserver"
	DriverSQLite    = "sqlite"
)

// OpenSQLServer validates dsn and returns a pinged connection pool.
func OpenSQLServer(ctx context.Context, dsn string) (*sqlx.DB, error) {
	if _, err := msdsn.Parse(dsn); err != nil {
		return nil, errors.Wrap(err, "mssql dsn")
	}
	return open(ctx, DriverSQLServer, dsn)
}

// OpenSQLite opens the database file at path. SQLite allows one writer, so the
// pool is capped at a single connection.
func OpenSQLite(ctx context.Context, path string) (*sqlx.DB, error) {
	db, err := open(ctx, DriverSQLite, path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func open(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", driver)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "ping %s", driver)
	}
	return db, nil
}

// msIdent quotes a SQL Server identifier using [brackets], escaping ].
func msIdent(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }

func msTable(ref schema.TableRef) string {
	if ref.Schema == "" {
		return msIdent(ref.Table)
	}
	return msIdent(ref.Schema) + "." + msIdent(ref.Table)
}

// sqliteIdent quotes a SQLite identifier using "double quotes".
func sqliteIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

func quoteAll(names []string, quote func(string) string) string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = quote(n)
	}
	return strings.Join(out, ", ")
}

// plainArgs turns decimals into their exact text form and widens ints, which
// both drivers accept for numeric columns.
func plainArgs(args []any) []any {
	for i, a := range args {
		switch v := a.(type) {
		case decimal.Decimal:
			args[i] = v.String()
		case int:
			args[i] = int64(v)
		}
	}
	return args
}

var typeArgs = regexp.MustCompile(`\(\s*(\d+)\s*(?:,\s*(\d+)\s*)?\)`)

// declaredSize extracts n and m from declarations like DECIMAL(n,m) or
// VARCHAR(n). Missing parts come back as -1.
func declaredSize(decl string) (int, int) {
	m := typeArgs.FindStringSubmatch(decl)
	if m == nil {
		return -1, -1
	}
	first, _ := strconv.Atoi(m[1])
	second := -1
	if m[2] != "" {
		second, _ = strconv.Atoi(m[2])
	}
	return first, second
}

func decimalColumn(c *schema.ColumnMetadata, precision, scale int) {
	c.Kind = schema.Decimal
	switch {
	case precision <= 0:
		c.Precision, c.Scale = schema.DefaultPrecision, schema.DefaultScale
	case scale < 0:
		c.Precision, c.Scale = precision, 0
	default:
		c.Precision, c.Scale = precision, scale
	}
}

func countQuery(table, sourceCol, placeholder string) string {
	return fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = %s`, table, sourceCol, placeholder)
}
