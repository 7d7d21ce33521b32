package importjob

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/sheet-importer/modules/imports/domain/entities/importrun"
	"github.com/iota-uz/sheet-importer/pkg/serrors"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusSuccess   Status = "SUCCESS"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCancelled
}

var (
	ErrJobNotFound       = serrors.NewError("JOB_NOT_FOUND", "import job not found", "Errors.JobNotFound")
	ErrInvalidTransition = serrors.NewError("INVALID_TRANSITION", "invalid import job transition", "")
)

type ImportJob struct {
	ID              uuid.UUID         `json:"id"`
	ReportKind      string            `json:"reportKind"`
	TableName       string            `json:"tableName"`
	SourceFileName  string            `json:"sourceFileName"`
	Status          Status            `json:"status"`
	CancelRequested bool              `json:"cancelRequested"`
	Result          *importrun.Result `json:"result,omitempty"`
	ErrorMessage    *string           `json:"errorMessage,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
	FinishedAt      *time.Time        `json:"finishedAt,omitempty"`
}

func New(reportKind, tableName, sourceFileName string, now time.Time) *ImportJob {
	return &ImportJob{
		ID:             uuid.New(),
		ReportKind:     reportKind,
		TableName:      tableName,
		SourceFileName: sourceFileName,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

var transitions = map[Status][]Status{
	StatusPending: {StatusRunning},
	StatusRunning: {StatusSuccess, StatusFailed, StatusCancelled},
}

// Transition moves the job to status `to`, stamping UpdatedAt and, for
// terminal states, FinishedAt.
func (j *ImportJob) Transition(to Status, at time.Time) error {
	for _, allowed := range transitions[j.Status] {
		if allowed == to {
			j.Status = to
			j.UpdatedAt = at
			if to.IsTerminal() {
				finished := at
				j.FinishedAt = &finished
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, to)
}

// Clone returns a copy that shares no pointers with j.
func (j *ImportJob) Clone() *ImportJob {
	c := *j
	if j.Result != nil {
		r := *j.Result
		r.Warnings = append([]importrun.ConversionWarning(nil), j.Result.Warnings...)
		c.Result = &r
	}
	if j.ErrorMessage != nil {
		m := *j.ErrorMessage
		c.ErrorMessage = &m
	}
	if j.FinishedAt != nil {
		f := *j.FinishedAt
		c.FinishedAt = &f
	}
	return &c
}

type Repository interface {
	Create(ctx context.Context, job *ImportJob) error
	// Get returns ErrJobNotFound for unknown ids.
	Get(ctx context.Context, id uuid.UUID) (*ImportJob, error)
	// Update persists status, result and timestamps. It never clears a cancel
	// flag set concurrently by SetCancelRequested.
	Update(ctx context.Context, job *ImportJob) error
	// SetCancelRequested flags a non-terminal job and reports whether the flag
	// flipped. Unknown and terminal jobs are left alone.
	SetCancelRequested(ctx context.Context, id uuid.UUID) (bool, error)
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
