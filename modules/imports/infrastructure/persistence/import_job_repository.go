package persistence

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/sheet-importer/modules/imports/domain/entities/importjob"
	"github.com/iota-uz/sheet-importer/modules/imports/infrastructure/persistence/models"
	"github.com/iota-uz/sheet-importer/pkg/composables"
)

type ImportJobRepository struct{}

func NewImportJobRepository() importjob.Repository {
	return &ImportJobRepository{}
}

func (r *ImportJobRepository) Create(ctx context.Context, job *importjob.ImportJob) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	row, err := toDBImportJob(job)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO import_jobs (
			id, report_kind, table_name, source_file_name, status,
			cancel_requested, result, error_message, created_at, updated_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		row.ID,
		row.ReportKind,
		row.TableName,
		row.SourceFileName,
		row.Status,
		row.CancelRequested,
		row.Result,
		row.ErrorMessage,
		row.CreatedAt,
		row.UpdatedAt,
		row.FinishedAt,
	)
	return errors.Wrap(err, "insert import job")
}

func (r *ImportJobRepository) Get(ctx context.Context, id uuid.UUID) (*importjob.ImportJob, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	var row models.ImportJob
	err = tx.QueryRow(ctx, `
		SELECT id::text, report_kind, table_name, source_file_name, status,
		       cancel_requested, result, error_message, created_at, updated_at, finished_at
		FROM import_jobs
		WHERE id = $1`, id.String(),
	).Scan(
		&row.ID,
		&row.ReportKind,
		&row.TableName,
		&row.SourceFileName,
		&row.Status,
		&row.CancelRequested,
		&row.Result,
		&row.ErrorMessage,
		&row.CreatedAt,
		&row.UpdatedAt,
		&row.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, importjob.ErrJobNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get import job")
	}
	return toDomainImportJob(&row)
}

// Update leaves cancel_requested alone so a concurrent cancel is never lost.
func (r *ImportJobRepository) Update(ctx context.Context, job *importjob.ImportJob) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	row, err := toDBImportJob(job)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE import_jobs
		SET status = $2, result = $3, error_message = $4, updated_at = $5, finished_at = $6
		WHERE id = $1`,
		row.ID,
		row.Status,
		row.Result,
		row.ErrorMessage,
		row.UpdatedAt,
		row.FinishedAt,
	)
	if err != nil {
		return errors.Wrap(err, "update import job")
	}
	if tag.RowsAffected() == 0 {
		return importjob.ErrJobNotFound
	}
	return nil
}

func (r *ImportJobRepository) SetCancelRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE import_jobs
		SET cancel_requested = TRUE, updated_at = NOW()
		WHERE id = $1 AND NOT cancel_requested AND status IN ('PENDING', 'RUNNING')`,
		id.String(),
	)
	if err != nil {
		return false, errors.Wrap(err, "request import job cancel")
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ImportJobRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	tag, err := tx.Exec(ctx, `
		DELETE FROM import_jobs
		WHERE finished_at IS NOT NULL AND finished_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, errors.Wrap(err, "delete finished import jobs")
	}
	return tag.RowsAffected(), nil
}
