package persistence

import (
	"database/sql"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/iota-uz/sheet-importer/modules/imports/domain/entities/importjob"
	"github.com/iota-uz/sheet-importer/modules/imports/domain/entities/importrun"
	"github.com/iota-uz/sheet-importer/modules/imports/infrastructure/persistence/models"
)

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func ToDBImportRun(run *importrun.ImportRun) *models.ImportRun {
	row := &models.ImportRun{
		ID:                run.ID,
		TableName:         run.TableName,
		SourceFileName:    run.SourceFileName,
		AttemptedRows:     run.AttemptedRows,
		InsertedRows:      run.InsertedRows,
		SkippedDuplicates: run.SkippedDuplicates,
		Status:            string(run.Status),
		ErrorMessage:      nullString(run.ErrorMessage),
		ImportedAt:        run.ImportedAt,
	}
	if run.JobID != nil {
		row.JobID = sql.NullString{String: run.JobID.String(), Valid: true}
	}
	return row
}

func ToDomainImportRun(row *models.ImportRun) *importrun.ImportRun {
	run := &importrun.ImportRun{
		ID:                row.ID,
		TableName:         row.TableName,
		SourceFileName:    row.SourceFileName,
		AttemptedRows:     row.AttemptedRows,
		InsertedRows:      row.InsertedRows,
		SkippedDuplicates: row.SkippedDuplicates,
		Status:            importrun.Status(row.Status),
		ErrorMessage:      stringPtr(row.ErrorMessage),
		ImportedAt:        row.ImportedAt,
	}
	if row.JobID.Valid {
		if id, err := uuid.Parse(row.JobID.String); err == nil {
			run.JobID = &id
		}
	}
	return run
}

func toDBImportJob(job *importjob.ImportJob) (*models.ImportJob, error) {
	row := &models.ImportJob{
		ID:              job.ID.String(),
		ReportKind:      job.ReportKind,
		TableName:       job.TableName,
		SourceFileName:  job.SourceFileName,
		Status:          string(job.Status),
		CancelRequested: job.CancelRequested,
		ErrorMessage:    nullString(job.ErrorMessage),
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
	}
	if job.FinishedAt != nil {
		row.FinishedAt = sql.NullTime{Time: *job.FinishedAt, Valid: true}
	}
	if job.Result != nil {
		data, err := json.Marshal(job.Result)
		if err != nil {
			return nil, errors.Wrap(err, "marshal job result")
		}
		row.Result = data
	}
	return row, nil
}

func toDomainImportJob(row *models.ImportJob) (*importjob.ImportJob, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "parse job id %q", row.ID)
	}
	job := &importjob.ImportJob{
		ID:              id,
		ReportKind:      row.ReportKind,
		TableName:       row.TableName,
		SourceFileName:  row.SourceFileName,
		Status:          importjob.Status(row.Status),
		CancelRequested: row.CancelRequested,
		ErrorMessage:    stringPtr(row.ErrorMessage),
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
	if row.FinishedAt.Valid {
		t := row.FinishedAt.Time
		job.FinishedAt = &t
	}
	if len(row.Result) > 0 {
		var result importrun.Result
		if err := json.Unmarshal(row.Result, &result); err != nil {
			return nil, errors.Wrap(err, "unmarshal job result")
		}
		job.Result = &result
	}
	return job, nil
}
