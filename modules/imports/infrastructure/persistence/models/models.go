package models

import (
	"database/sql"
	"time"
)

type ImportRun struct {
	ID                int64          `db:"id"`
	TableName         string         `db:"table_name"`
	SourceFileName    string         `db:"source_file_name"`
	AttemptedRows     int64          `db:"attempted_rows"`
	InsertedRows      int64          `db:"inserted_rows"`
	SkippedDuplicates int64          `db:"skipped_duplicates"`
	Status            string         `db:"status"`
	ErrorMessage      sql.NullString `db:"error_message"`
	JobID             sql.NullString `db:"job_id"`
	ImportedAt        time.Time      `db:"imported_at"`
}

type ImportJob struct {
	ID              string
	ReportKind      string
	TableName       string
	SourceFileName  string
	Status          string
	CancelRequested bool
	Result          []byte
	ErrorMessage    sql.NullString
	CreatedAt       time.Time
	UpdatedAt       time.Time
	FinishedAt      sql.NullTime
}
