package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/sheet-importer/modules/imports/domain/entities/importjob"
	"github.com/iota-uz/sheet-importer/pkg/eventbus"
	"github.com/iota-uz/sheet-importer/pkg/metrics"
	"github.com/iota-uz/sheet-importer/pkg/serrors"
	"github.com/iota-uz/sheet-importer/pkg/worker"
)

type JobServiceOptions struct {
	Jobs    importjob.Repository
	Imports *ImportService
	Pool    *worker.Pool
	Bus     eventbus.EventBus[importjob.Event]
	Logger  *logrus.Entry
	Now     func() time.Time
}

// JobService runs imports in the background and broadcasts their lifecycle.
type JobService struct {
	jobs    importjob.Repository
	imports *ImportService
	pool    *worker.Pool
	bus     eventbus.EventBus[importjob.Event]
	log     *logrus.Entry
	now     func() time.Time
}

func NewJobService(opts JobServiceOptions) *JobService {
	if opts.Bus == nil {
		opts.Bus = eventbus.New[importjob.Event](eventbus.Options[importjob.Event]{
			OnDrop:   func(string) { metrics.Imports().DroppedEvents.Inc() },
			Critical: func(ev importjob.Event) bool { return ev.Type.IsFinal() },
		})
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &JobService{
		jobs:    opts.Jobs,
		imports: opts.Imports,
		pool:    opts.Pool,
		bus:     opts.Bus,
		log:     opts.Logger,
		now:     opts.Now,
	}
}

// Create validates the report kind and persists a PENDING job.
func (s *JobService) Create(ctx context.Context, reportKind, sourceFileName string) (*importjob.ImportJob, error) {
	kind, err := s.imports.Resolve(reportKind)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(sourceFileName) == "" {
		return nil, serrors.Validation("source file name is required")
	}
	job := importjob.New(kind.Name, kind.Table, sourceFileName, s.now())
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create import job: %w", err)
	}
	metrics.Imports().Jobs.WithLabelValues(string(importjob.StatusPending)).Inc()
	return job, nil
}

func (s *JobService) Get(ctx context.Context, id uuid.UUID) (*importjob.ImportJob, error) {
	return s.jobs.Get(ctx, id)
}

// Start queues the pipeline for a PENDING job. The returned channel yields the
// pipeline error (nil on success) once and is closed. The file at filePath is
// owned by the job from here on.
func (s *JobService) Start(ctx context.Context, id uuid.UUID, filePath string) (<-chan error, error) {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		removeUpload(filePath, s.log)
		return nil, err
	}
	if job.Status != importjob.StatusPending {
		removeUpload(filePath, s.log)
		return nil, fmt.Errorf("%w: job %s is %s", importjob.ErrInvalidTransition, id, job.Status)
	}
	done, err := s.pool.Submit("import:"+id.String(), func(taskCtx context.Context) error {
		return s.execute(taskCtx, job, filePath)
	}, worker.OnAbandon(func(cause error) {
		removeUpload(filePath, s.log)
		s.abort(context.Background(), job, cause)
	}))
	if err != nil {
		removeUpload(filePath, s.log)
		s.abort(ctx, job, err)
		return nil, err
	}
	return done, nil
}

// RequestCancel flags the job for cancellation at the next chunk boundary.
// Unknown and finished jobs are ignored.
func (s *JobService) RequestCancel(ctx context.Context, id uuid.UUID) error {
	flipped, err := s.jobs.SetCancelRequested(ctx, id)
	if err != nil {
		return fmt.Errorf("request cancel: %w", err)
	}
	if flipped {
		s.log.WithField("job_id", id.String()).Info("import cancellation requested")
		s.Publish(id, importjob.Event{Type: importjob.EventCancelRequested})
	}
	return nil
}

// Subscribe returns the job's events from now on. The channel is closed by
// the returned func.
func (s *JobService) Subscribe(id uuid.UUID) (<-chan importjob.Event, func()) {
	return s.bus.Subscribe(id.String())
}

// Publish stamps and broadcasts ev to the job's subscribers.
func (s *JobService) Publish(id uuid.UUID, ev importjob.Event) {
	ev.JobID = id
	if ev.At.IsZero() {
		ev.At = s.now()
	}
	s.bus.Publish(id.String(), ev)
}

// Expire deletes finished jobs older than olderThan.
func (s *JobService) Expire(ctx context.Context, olderThan time.Duration) (int64, error) {
	return s.jobs.DeleteFinishedBefore(ctx, s.now().Add(-olderThan))
}

func (s *JobService) execute(ctx context.Context, job *importjob.ImportJob, filePath string) error {
	log := s.log.WithFields(logrus.Fields{
		"job_id":      job.ID.String(),
		"report_kind": job.ReportKind,
	})
	m := metrics.Imports()
	m.ActiveJobs.Inc()
	defer m.ActiveJobs.Dec()

	if err := job.Transition(importjob.StatusRunning, s.now()); err != nil {
		removeUpload(filePath, log)
		return err
	}
	if err := s.jobs.Update(ctx, job); err != nil {
		log.WithError(err).Error("failed to persist running job")
	}
	m.Jobs.WithLabelValues(string(importjob.StatusRunning)).Inc()
	s.Publish(job.ID, importjob.Event{Type: importjob.EventStatus, Status: importjob.StatusRunning})

	result, runErr := s.imports.Run(ctx, Request{
		FilePath:         filePath,
		OriginalFileName: job.SourceFileName,
		ReportKind:       job.ReportKind,
		JobID:            &job.ID,
		Checkpoint:       s.checkpoint(job.ID, log),
		OnStage: func(st importjob.Stage) {
			s.Publish(job.ID, importjob.Event{Type: importjob.EventStatus, Status: importjob.StatusRunning, Stage: st})
		},
	})

	final := importjob.Event{Result: result}
	switch {
	case runErr == nil:
		_ = job.Transition(importjob.StatusSuccess, s.now())
		final.Type = importjob.EventDone
	case errors.Is(runErr, ErrCancelled):
		_ = job.Transition(importjob.StatusCancelled, s.now())
		msg := CancelledMessage
		job.ErrorMessage = &msg
		final.Type = importjob.EventCancelled
		final.Message = msg
	default:
		_ = job.Transition(importjob.StatusFailed, s.now())
		msg := runErr.Error()
		job.ErrorMessage = &msg
		final.Type = importjob.EventError
		final.Message = msg
	}
	job.Result = result
	final.Status = job.Status

	if err := s.jobs.Update(context.WithoutCancel(ctx), job); err != nil {
		log.WithError(err).Error("failed to persist finished job")
	}
	m.Jobs.WithLabelValues(string(job.Status)).Inc()
	s.Publish(job.ID, final)
	log.WithField("status", job.Status).Info("import job finished")
	return runErr
}

func (s *JobService) checkpoint(id uuid.UUID, log *logrus.Entry) Checkpoint {
	return func(ctx context.Context) bool {
		job, err := s.jobs.Get(ctx, id)
		if err != nil {
			log.WithError(err).Warn("cancel checkpoint could not read job")
			return false
		}
		return job.CancelRequested
	}
}

// abort finishes a job that never reached the worker pool.
func (s *JobService) abort(ctx context.Context, job *importjob.ImportJob, cause error) {
	now := s.now()
	if err := job.Transition(importjob.StatusRunning, now); err != nil {
		return
	}
	_ = job.Transition(importjob.StatusFailed, now)
	msg := cause.Error()
	job.ErrorMessage = &msg
	if err := s.jobs.Update(context.WithoutCancel(ctx), job); err != nil {
		s.log.WithError(err).WithField("job_id", job.ID.String()).Error("failed to persist aborted job")
	}
	metrics.Imports().Jobs.WithLabelValues(string(importjob.StatusFailed)).Inc()
	s.Publish(job.ID, importjob.Event{Type: importjob.EventError, Status: job.Status, Message: msg})
}
