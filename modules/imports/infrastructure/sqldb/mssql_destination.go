package sqldb

import (
	"context"
	"database/sql"
	"strings"

	"github.com/go-faster/errors"
	mssql "github.com/microsoft/go-mssqldb"

	"github.com/iota-uz/sheet-importer/modules/imports/domain/destination"
	"github.com/iota-uz/sheet-importer/modules/imports/domain/schema"
)

const MSSQLNote = "duplicates skipped by UNIQUE(__RowHash) with IGNORE_DUP_KEY=ON"

const mssqlColumnsQuery = `
	SELECT COLUMN_NAME, DATA_TYPE, CHARACTER_MAXIMUM_LENGTH, NUMERIC_PRECISION,
	       NUMERIC_SCALE, IS_NULLABLE, ORDINAL_POSITION
	FROM INFORMATION_SCHEMA.COLUMNS
	WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2
	ORDER BY ORDINAL_POSITION`

// MSSQLDestination bulk-copies chunks straight into the target table. The
// table's unique index on __RowHash is expected to be created with
// IGNORE_DUP_KEY = ON so duplicates are dropped by the server.
type MSSQLDestination struct {
	db *sql.DB
}

func NewMSSQLDestination(db *sql.DB) *MSSQLDestination {
	return &MSSQLDestination{db: db}
}

func (d *MSSQLDestination) Note() string {
	return MSSQLNote
}

func (d *MSSQLDestination) Columns(ctx context.Context, ref schema.TableRef) ([]schema.ColumnMetadata, error) {
	tableSchema := ref.Schema
	if tableSchema == "" {
		tableSchema = "dbo"
	}
	rows, err := d.db.QueryContext(ctx, mssqlColumnsQuery, tableSchema, ref.Table)
	if err != nil {
		return nil, schema.Unavailable(ref, err)
	}
	defer rows.Close()

	var cols []schema.ColumnMetadata
	for rows.Next() {
		var (
			name, dataType, nullable string
			maxLen, precision, scale sql.NullInt64
			ordinal                  int
		)
		if err := rows.Scan(&name, &dataType, &maxLen, &precision, &scale, &nullable, &ordinal); err != nil {
			return nil, schema.Unavailable(ref, err)
		}
		cols = append(cols, mssqlColumn(name, dataType, maxLen, precision, scale, nullable == "YES", ordinal))
	}
	if err := rows.Err(); err != nil {
		return nil, schema.Unavailable(ref, err)
	}
	if len(cols) == 0 {
		return nil, schema.Unavailable(ref, nil)
	}
	return cols, nil
}

func nullInt(v sql.NullInt64) int {
	if !v.Valid {
		return -1
	}
	return int(v.Int64)
}

func mssqlColumn(name, dataType string, maxLen, precision, scale sql.NullInt64, nullable bool, ordinal int) schema.ColumnMetadata {
	c := schema.ColumnMetadata{
		Name:     name,
		DataType: dataType,
		Nullable: nullable,
		Ordinal:  ordinal,
	}
	switch strings.ToLower(dataType) {
	case "int", "smallint", "tinyint":
		c.Kind = schema.Integer
	case "bigint":
		c.Kind = schema.BigInt
	case "decimal", "numeric", "money", "smallmoney":
		decimalColumn(&c, nullInt(precision), nullInt(scale))
	case "float", "real":
		c.Kind = schema.Decimal
		c.Scale = schema.Unbounded
	case "datetime2", "datetime", "date", "smalldatetime", "datetimeoffset":
		c.Kind = schema.Timestamp
	case "nvarchar", "varchar":
		c.Kind = schema.VarChar
		c.MaxLength = nullInt(maxLen)
	case "nchar", "char":
		c.Kind = schema.Char
		c.MaxLength = nullInt(maxLen)
	case "bit":
		c.Kind = schema.Bool
	default:
		c.Kind = schema.Text
	}
	return c
}

func (d *MSSQLDestination) CountBySource(ctx context.Context, ref schema.TableRef, sourceFileName string) (int64, error) {
	var n int64
	query := countQuery(msTable(ref), msIdent(schema.ColSourceFileName), "@p1")
	if err := d.db.QueryRowContext(ctx, query, sourceFileName).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "count rows of %s", ref)
	}
	return n, nil
}

func (d *MSSQLDestination) InsertChunk(
	ctx context.Context,
	ref schema.TableRef,
	cols []schema.ColumnMetadata,
	rows []destination.TypedRow,
) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	rollback := func() { _ = tx.Rollback() }

	names := destination.InsertColumns(cols)
	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(msTable(ref), mssql.BulkOptions{}, names...))
	if err != nil {
		rollback()
		return errors.Wrap(err, "prepare bulk copy")
	}
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, plainArgs(r.Args())...); err != nil {
			_ = stmt.Close()
			rollback()
			return errors.Wrapf(err, "bulk row %d", r.RowNumber)
		}
	}
	_, err = stmt.ExecContext(ctx)
	if cerr := stmt.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		rollback()
		return errors.Wrap(err, "bulk finalize")
	}
	return errors.Wrap(tx.Commit(), "commit")
}
