package importrun

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

func (s Status) IsValid() bool {
	return s == StatusSuccess || s == StatusFailed
}

func StatusFrom(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", fmt.Errorf("invalid import run status %q", raw)
	}
	return s, nil
}

// ImportRun is the audit record written once per pipeline invocation.
type ImportRun struct {
	ID                int64      `json:"id"`
	TableName         string     `json:"tableName"`
	SourceFileName    string     `json:"sourceFileName"`
	AttemptedRows     int64      `json:"attemptedRows"`
	InsertedRows      int64      `json:"insertedRows"`
	SkippedDuplicates int64      `json:"skippedDuplicates"`
	Status            Status     `json:"status"`
	ErrorMessage      *string    `json:"errorMessage"`
	JobID             *uuid.UUID `json:"jobId,omitempty"`
	ImportedAt        time.Time  `json:"importedAt"`
}

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

type FindParams struct {
	From      *time.Time
	To        *time.Time
	TableName string
	Status    Status
	Limit     int
}

// EffectiveLimit applies the default and the cap.
func (p *FindParams) EffectiveLimit() int {
	if p == nil || p.Limit <= 0 {
		return DefaultListLimit
	}
	if p.Limit > MaxListLimit {
		return MaxListLimit
	}
	return p.Limit
}

type Repository interface {
	// List returns runs newest first.
	List(ctx context.Context, params *FindParams) ([]*ImportRun, error)
	Create(ctx context.Context, run *ImportRun) error
}
