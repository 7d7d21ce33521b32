package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-faster/errors"

	"github.com/iota-uz/sheet-importer/modules/imports/domain/destination"
	"github.com/iota-uz/sheet-importer/modules/imports/domain/schema"
)

const SQLiteNote = "duplicates skipped by INSERT OR IGNORE on UNIQUE(__RowHash)"

// sqliteMaxParams is the default SQLITE_MAX_VARIABLE_NUMBER of older builds.
const sqliteMaxParams = 999

// SQLiteDestination writes to a local database file. Schemas do not exist in
// SQLite, so TableRef.Schema is ignored.
type SQLiteDestination struct {
	db *sql.DB
}

func NewSQLiteDestination(db *sql.DB) *SQLiteDestination {
	return &SQLiteDestination{db: db}
}

func (d *SQLiteDestination) Note() string {
	return SQLiteNote
}

func (d *SQLiteDestination) Columns(ctx context.Context, ref schema.TableRef) ([]schema.ColumnMetadata, error) {
	rows, err := d.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", sqliteIdent(ref.Table)))
	if err != nil {
		return nil, schema.Unavailable(ref, err)
	}
	defer rows.Close()

	var cols []schema.ColumnMetadata
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, declared   string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &declared, &notNull, &dflt, &pk); err != nil {
			return nil, schema.Unavailable(ref, err)
		}
		cols = append(cols, sqliteColumn(name, declared, notNull == 0, cid+1))
	}
	if err := rows.Err(); err != nil {
		return nil, schema.Unavailable(ref, err)
	}
	if len(cols) == 0 {
		return nil, schema.Unavailable(ref, nil)
	}
	return cols, nil
}

// sqliteColumn follows SQLite's type affinity rules, refined by the declared
// size where one is given.
func sqliteColumn(name, declared string, nullable bool, ordinal int) schema.ColumnMetadata {
	c := schema.ColumnMetadata{
		Name:     name,
		DataType: declared,
		Nullable: nullable,
		Ordinal:  ordinal,
	}
	t := strings.ToUpper(declared)
	first, second := declaredSize(t)
	switch {
	case strings.Contains(t, "BIGINT"):
		c.Kind = schema.BigInt
	case strings.Contains(t, "INT"):
		c.Kind = schema.Integer
	case strings.Contains(t, "DECIMAL") || strings.Contains(t, "NUMERIC"):
		decimalColumn(&c, first, second)
	case strings.Contains(t, "REAL") || strings.Contains(t, "FLOA") || strings.Contains(t, "DOUB"):
		c.Kind = schema.Decimal
		c.Scale = schema.Unbounded
	case strings.Contains(t, "DATE") || strings.Contains(t, "TIME"):
		c.Kind = schema.Timestamp
	case strings.Contains(t, "BOOL"):
		c.Kind = schema.Bool
	case strings.Contains(t, "VARCHAR"):
		c.Kind = schema.VarChar
		c.MaxLength = first
		if first <= 0 {
			c.MaxLength = schema.Unbounded
		}
	case strings.Contains(t, "CHAR"):
		c.Kind = schema.Char
		c.MaxLength = max(first, 0)
	default:
		c.Kind = schema.Text
	}
	return c
}

func (d *SQLiteDestination) CountBySource(ctx context.Context, ref schema.TableRef, sourceFileName string) (int64, error) {
	var n int64
	query := countQuery(sqliteIdent(ref.Table), sqliteIdent(schema.ColSourceFileName), "?")
	if err := d.db.QueryRowContext(ctx, query, sourceFileName).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "count rows of %s", ref.Table)
	}
	return n, nil
}

// InsertChunk writes the chunk in one transaction using multi-row statements
// kept under the bound parameter ceiling.
func (d *SQLiteDestination) InsertChunk(
	ctx context.Context,
	ref schema.TableRef,
	cols []schema.ColumnMetadata,
	rows []destination.TypedRow,
) error {
	if len(rows) == 0 {
		return nil
	}
	names := destination.InsertColumns(cols)
	perStmt := max(1, sqliteMaxParams/len(names))
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ") + ")"
	prefix := fmt.Sprintf("INSERT OR IGNORE INTO %s (%s) VALUES ", sqliteIdent(ref.Table), quoteAll(names, sqliteIdent))

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	for lo := 0; lo < len(rows); lo += perStmt {
		hi := min(lo+perStmt, len(rows))
		values := make([]string, 0, hi-lo)
		args := make([]any, 0, (hi-lo)*len(names))
		for _, r := range rows[lo:hi] {
			values = append(values, placeholder)
			args = append(args, plainArgs(r.Args())...)
		}
		if _, err := tx.ExecContext(ctx, prefix+strings.Join(values, ", "), args...); err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "insert rows %d-%d", rows[lo].RowNumber, rows[hi-1].RowNumber)
		}
	}
	return errors.Wrap(tx.Commit(), "commit")
}
