package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"

	"github.com/iota-uz/sheet-importer/modules/imports/domain/entities/importrun"
	"github.com/iota-uz/sheet-importer/modules/imports/infrastructure/persistence/models"
	"github.com/iota-uz/sheet-importer/pkg/composables"
	"github.com/iota-uz/sheet-importer/pkg/repo"
)

const selectImportRuns = `
	SELECT id, table_name, source_file_name, attempted_rows, inserted_rows,
	       skipped_duplicates, status, error_message, job_id::text, imported_at
	FROM import_runs`

type ImportRunRepository struct{}

func NewImportRunRepository() importrun.Repository {
	return &ImportRunRepository{}
}

func (r *ImportRunRepository) List(ctx context.Context, params *importrun.FindParams) ([]*importrun.ImportRun, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	where, args := buildRunFilters(params)
	query := selectImportRuns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY imported_at DESC, id DESC " + repo.FormatLimitOffset(params.EffectiveLimit(), 0)

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list import runs")
	}
	defer rows.Close()

	var out []*importrun.ImportRun
	for rows.Next() {
		var row models.ImportRun
		if err := rows.Scan(
			&row.ID,
			&row.TableName,
			&row.SourceFileName,
			&row.AttemptedRows,
			&row.InsertedRows,
			&row.SkippedDuplicates,
			&row.Status,
			&row.ErrorMessage,
			&row.JobID,
			&row.ImportedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan import run")
		}
		out = append(out, ToDomainImportRun(&row))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ImportRunRepository) Create(ctx context.Context, run *importrun.ImportRun) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	row := ToDBImportRun(run)
	if err := tx.QueryRow(ctx, `
		INSERT INTO import_runs (
			table_name, source_file_name, attempted_rows, inserted_rows,
			skipped_duplicates, status, error_message, job_id, imported_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		row.TableName,
		row.SourceFileName,
		row.AttemptedRows,
		row.InsertedRows,
		row.SkippedDuplicates,
		row.Status,
		row.ErrorMessage,
		row.JobID,
		row.ImportedAt,
	).Scan(&run.ID); err != nil {
		return errors.Wrap(err, "insert import run")
	}
	return nil
}

func buildRunFilters(params *importrun.FindParams) ([]string, []any) {
	var (
		where []string
		args  []any
	)
	if params == nil {
		return where, args
	}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if params.From != nil {
		add("imported_at >= $%d", *params.From)
	}
	if params.To != nil {
		add("imported_at <= $%d", *params.To)
	}
	if name := strings.TrimSpace(params.TableName); name != "" {
		add("table_name = $%d", name)
	}
	if params.Status != "" {
		add("status = $%d", string(params.Status))
	}
	return where, args
}
