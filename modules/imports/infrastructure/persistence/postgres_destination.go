package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/iota-uz/sheet-importer/modules/imports/domain/destination"
	"github.com/iota-uz/sheet-importer/modules/imports/domain/schema"
	"github.com/iota-uz/sheet-importer/pkg/composables"
)

const PostgresNote = "duplicates skipped by ON CONFLICT DO NOTHING on __RowHash"

const stagingTable = "sheet_import_staging"

const pgColumnsQuery = `
	SELECT column_name,
	       data_type,
	       COALESCE(character_maximum_length, 0),
	       COALESCE(numeric_precision, -1),
	       COALESCE(numeric_scale, -1),
	       is_nullable = 'YES',
	       ordinal_position
	FROM information_schema.columns
	WHERE table_schema = $1 AND table_name = $2
	ORDER BY ordinal_position`

// PostgresDestination loads rows through a per-chunk staging table so a
// single INSERT ... ON CONFLICT DO NOTHING absorbs duplicates.
type PostgresDestination struct{}

func NewPostgresDestination() destination.Destination {
	return &PostgresDestination{}
}

func (d *PostgresDestination) Note() string {
	return PostgresNote
}

func pgTable(ref schema.TableRef) string {
	if ref.Schema == "" {
		return pgx.Identifier{ref.Table}.Sanitize()
	}
	return pgx.Identifier{ref.Schema, ref.Table}.Sanitize()
}

func pgColumnList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = pgx.Identifier{n}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}

func (d *PostgresDestination) Columns(ctx context.Context, ref schema.TableRef) ([]schema.ColumnMetadata, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, schema.Unavailable(ref, err)
	}
	tableSchema := ref.Schema
	if tableSchema == "" {
		tableSchema = "public"
	}
	rows, err := tx.Query(ctx, pgColumnsQuery, tableSchema, ref.Table)
	if err != nil {
		return nil, schema.Unavailable(ref, err)
	}
	defer rows.Close()

	var cols []schema.ColumnMetadata
	for rows.Next() {
		var (
			name, dataType              string
			maxLen, precision, scale, n int
			nullable                    bool
		)
		if err := rows.Scan(&name, &dataType, &maxLen, &precision, &scale, &nullable, &n); err != nil {
			return nil, schema.Unavailable(ref, err)
		}
		cols = append(cols, pgColumn(name, dataType, maxLen, precision, scale, nullable, n))
	}
	if err := rows.Err(); err != nil {
		return nil, schema.Unavailable(ref, err)
	}
	if len(cols) == 0 {
		return nil, schema.Unavailable(ref, nil)
	}
	return cols, nil
}

func pgColumn(name, dataType string, maxLen, precision, scale int, nullable bool, ordinal int) schema.ColumnMetadata {
	c := schema.ColumnMetadata{
		Name:     name,
		DataType: dataType,
		Nullable: nullable,
		Ordinal:  ordinal,
	}
	switch t := strings.ToLower(dataType); {
	case t == "integer" || t == "smallint":
		c.Kind = schema.Integer
	case t == "bigint":
		c.Kind = schema.BigInt
	case t == "numeric" || t == "decimal":
		c.Kind = schema.Decimal
		c.Precision, c.Scale = precision, scale
		if precision <= 0 {
			c.Precision, c.Scale = schema.DefaultPrecision, schema.DefaultScale
		} else if scale < 0 {
			c.Scale = 0
		}
	case t == "real" || t == "double precision":
		c.Kind = schema.Decimal
		c.Scale = schema.Unbounded
	case strings.HasPrefix(t, "timestamp") || t == "date":
		c.Kind = schema.Timestamp
	case t == "character varying":
		c.Kind = schema.VarChar
		c.MaxLength = maxLen
		if maxLen == 0 {
			c.MaxLength = schema.Unbounded
		}
	case t == "character":
		c.Kind = schema.Char
		c.MaxLength = maxLen
	case t == "boolean":
		c.Kind = schema.Bool
	default:
		c.Kind = schema.Text
	}
	return c
}

func (d *PostgresDestination) CountBySource(ctx context.Context, ref schema.TableRef, sourceFileName string) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = $1`,
		pgTable(ref), pgx.Identifier{schema.ColSourceFileName}.Sanitize())
	var n int64
	if err := tx.QueryRow(ctx, query, sourceFileName).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "count rows of %s", ref)
	}
	return n, nil
}

// InsertChunk joins the transaction bound to ctx, or opens one on the pool.
func (d *PostgresDestination) InsertChunk(
	ctx context.Context,
	ref schema.TableRef,
	cols []schema.ColumnMetadata,
	rows []destination.TypedRow,
) error {
	if len(rows) == 0 {
		return nil
	}
	if composables.HasTx(ctx) {
		return d.insert(ctx, ref, cols, rows)
	}
	return composables.InTx(ctx, func(txCtx context.Context) error {
		return d.insert(txCtx, ref, cols, rows)
	})
}

func (d *PostgresDestination) insert(
	ctx context.Context,
	ref schema.TableRef,
	cols []schema.ColumnMetadata,
	rows []destination.TypedRow,
) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	target := pgTable(ref)
	staging := pgx.Identifier{stagingTable}.Sanitize()
	names := destination.InsertColumns(cols)
	list := pgColumnList(names)

	create := fmt.Sprintf(`CREATE TEMP TABLE IF NOT EXISTS %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP`, staging, target)
	if _, err := tx.Exec(ctx, create); err != nil {
		return errors.Wrap(err, "create staging table")
	}

	src := make([][]any, len(rows))
	for i, r := range rows {
		src[i] = pgArgs(r.Args())
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{stagingTable}, names, pgx.CopyFromRows(src)); err != nil {
		return errors.Wrap(err, "copy into staging table")
	}

	insert := fmt.Sprintf(`INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT DO NOTHING`, target, list, list, staging)
	if _, err := tx.Exec(ctx, insert); err != nil {
		return errors.Wrapf(err, "insert into %s", ref)
	}
	if _, err := tx.Exec(ctx, `DROP TABLE `+staging); err != nil {
		return errors.Wrap(err, "drop staging table")
	}
	return nil
}

// pgArgs converts decimals to pgtype.Numeric for the binary COPY protocol.
func pgArgs(args []any) []any {
	for i, a := range args {
		if d, ok := a.(decimal.Decimal); ok {
			args[i] = pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
		}
	}
	return args
}
