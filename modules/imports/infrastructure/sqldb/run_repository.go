package sqldb

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"

	"github.com/iota-uz/sheet-importer/modules/imports/domain/entities/importrun"
	"github.com/iota-uz/sheet-importer/modules/imports/infrastructure/persistence"
	"github.com/iota-uz/sheet-importer/modules/imports/infrastructure/persistence/models"
)

// ledger names the run table and its columns for one dialect. Selected
// columns are aliased to the models.ImportRun db tags.
type ledger struct {
	table   string
	columns map[string]string
	// selectExpr overrides the column in SELECT lists.
	selectExpr map[string]string
	top        bool
	output     string
	returning  string
}

var (
	mssqlLedger = ledger{
		table: "dbo.ImportRuns",
		columns: map[string]string{
			"id":                 "Id",
			"table_name":         "TableName",
			"source_file_name":   "SourceFileName",
			"attempted_rows":     "AttemptedRows",
			"inserted_rows":      "InsertedRows",
			"skipped_duplicates": "SkippedDuplicates",
			"status":             "Status",
			"error_message":      "ErrorMessage",
			"job_id":             "JobId",
			"imported_at":        "ImportedAt",
		},
		selectExpr: map[string]string{
			"job_id": "CONVERT(NVARCHAR(36), JobId)",
		},
		top:    true,
		output: " OUTPUT INSERTED.Id",
	}
	sqliteLedger = ledger{
		table: "import_runs",
		columns: map[string]string{
			"id":                 "id",
			"table_name":         "table_name",
			"source_file_name":   "source_file_name",
			"attempted_rows":     "attempted_rows",
			"inserted_rows":      "inserted_rows",
			"skipped_duplicates": "skipped_duplicates",
			"status":             "status",
			"error_message":      "error_message",
			"job_id":             "job_id",
			"imported_at":        "imported_at",
		},
		returning: " RETURNING id",
	}
)

var runColumns = []string{
	"id", "table_name", "source_file_name", "attempted_rows", "inserted_rows",
	"skipped_duplicates", "status", "error_message", "job_id", "imported_at",
}

func (l ledger) col(name string) string {
	return l.columns[name]
}

func (l ledger) selectList() string {
	parts := make([]string, len(runColumns))
	for i, c := range runColumns {
		expr, ok := l.selectExpr[c]
		if !ok {
			expr = l.col(c)
		}
		parts[i] = expr + " AS " + c
	}
	return strings.Join(parts, ", ")
}

// RunRepository keeps the import run ledger in SQL Server or SQLite.
type RunRepository struct {
	db     *sqlx.DB
	ledger ledger
}

func NewRunRepository(db *sqlx.DB) (*RunRepository, error) {
	switch db.DriverName() {
	case DriverSQLServer:
		return &RunRepository{db: db, ledger: mssqlLedger}, nil
	case DriverSQLite:
		return &RunRepository{db: db, ledger: sqliteLedger}, nil
	default:
		return nil, fmt.Errorf("run ledger: unsupported driver %q", db.DriverName())
	}
}

func (r *RunRepository) List(ctx context.Context, params *importrun.FindParams) ([]*importrun.ImportRun, error) {
	l := r.ledger
	limit := params.EffectiveLimit()

	var (
		where []string
		args  []any
	)
	if params != nil {
		if params.From != nil {
			where = append(where, l.col("imported_at")+" >= ?")
			args = append(args, *params.From)
		}
		if params.To != nil {
			where = append(where, l.col("imported_at")+" <= ?")
			args = append(args, *params.To)
		}
		if name := strings.TrimSpace(params.TableName); name != "" {
			where = append(where, l.col("table_name")+" = ?")
			args = append(args, name)
		}
		if params.Status != "" {
			where = append(where, l.col("status")+" = ?")
			args = append(args, string(params.Status))
		}
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	if l.top {
		fmt.Fprintf(&b, "TOP (%d) ", limit)
	}
	b.WriteString(l.selectList())
	b.WriteString(" FROM " + l.table)
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	fmt.Fprintf(&b, " ORDER BY %s DESC, %s DESC", l.col("imported_at"), l.col("id"))
	if !l.top {
		fmt.Fprintf(&b, " LIMIT %d", limit)
	}

	var rows []models.ImportRun
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(b.String()), args...); err != nil {
		return nil, errors.Wrap(err, "list import runs")
	}
	out := make([]*importrun.ImportRun, len(rows))
	for i := range rows {
		out[i] = persistence.ToDomainImportRun(&rows[i])
	}
	return out, nil
}

func (r *RunRepository) Create(ctx context.Context, run *importrun.ImportRun) error {
	l := r.ledger
	row := persistence.ToDBImportRun(run)
	cols := runColumns[1:]
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = l.col(c)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s)%s VALUES (%s)%s",
		l.table,
		strings.Join(names, ", "),
		l.output,
		strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", "),
		l.returning,
	)
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(query),
		row.TableName,
		row.SourceFileName,
		row.AttemptedRows,
		row.InsertedRows,
		row.SkippedDuplicates,
		row.Status,
		row.ErrorMessage,
		row.JobID,
		row.ImportedAt,
	).Scan(&run.ID)
	return errors.Wrap(err, "insert import run")
}
