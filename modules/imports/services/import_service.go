package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iota-uz/sheet-importer/modules/imports/domain/destination"
	"github.com/iota-uz/sheet-importer/modules/imports/domain/entities/importjob"
	"github.com/iota-uz/sheet-importer/modules/imports/domain/entities/importrun"
	"github.com/iota-uz/sheet-importer/modules/imports/domain/reportkind"
	"github.com/iota-uz/sheet-importer/modules/imports/domain/schema"
	"github.com/iota-uz/sheet-importer/modules/imports/domain/sheet"
	"github.com/iota-uz/sheet-importer/modules/imports/services/coercion"
	"github.com/iota-uz/sheet-importer/modules/imports/services/fingerprint"
	"github.com/iota-uz/sheet-importer/pkg/composables"
	"github.com/iota-uz/sheet-importer/pkg/metrics"
	"github.com/iota-uz/sheet-importer/pkg/serrors"
)

const (
	NoteNoMatchingColumns = "no matching columns"
	CancelledMessage      = "import cancelled"
	DefaultWarningLimit   = 100
)

var tracer = otel.Tracer("sheet-importer/imports")

type Request struct {
	// FilePath is removed when Run returns, whatever the outcome.
	FilePath         string
	OriginalFileName string
	ReportKind       string
	JobID            *uuid.UUID
	Checkpoint       Checkpoint
	OnStage          func(importjob.Stage)
}

type ImportServiceOptions struct {
	Destination  destination.Destination
	Runs         importrun.Repository
	Kinds        *reportkind.Registry
	Reader       sheet.Reader
	Loader       *Loader
	WarningLimit int
	Now          func() time.Time
}

type ImportService struct {
	dest         destination.Destination
	runs         importrun.Repository
	kinds        *reportkind.Registry
	reader       sheet.Reader
	loader       *Loader
	warningLimit int
	now          func() time.Time
}

func NewImportService(opts ImportServiceOptions) *ImportService {
	if opts.Loader == nil {
		opts.Loader = NewLoader(DefaultChunkSize, nil)
	}
	if opts.WarningLimit <= 0 {
		opts.WarningLimit = DefaultWarningLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &ImportService{
		dest:         opts.Destination,
		runs:         opts.Runs,
		kinds:        opts.Kinds,
		reader:       opts.Reader,
		loader:       opts.Loader,
		warningLimit: opts.WarningLimit,
		now:          opts.Now,
	}
}

func (s *ImportService) Kinds() *reportkind.Registry {
	return s.kinds
}

// Resolve validates a report kind name without touching any store.
func (s *ImportService) Resolve(name string) (reportkind.Kind, error) {
	return s.kinds.Resolve(name)
}

// Run executes the whole pipeline for one file. It writes exactly one
// ImportRun unless the request is invalid or no sheet column matches the
// destination table.
func (s *ImportService) Run(ctx context.Context, req Request) (*importrun.Result, error) {
	log := composables.UseLogger(ctx).WithFields(logrus.Fields{
		"report_kind": req.ReportKind,
		"file":        req.OriginalFileName,
	})
	if req.JobID != nil {
		log = log.WithField("job_id", req.JobID.String())
	}
	if req.FilePath != "" {
		defer removeUpload(req.FilePath, log)
	}

	kind, name, err := s.validate(req)
	if err != nil {
		return nil, err
	}
	ref := kind.Ref()
	log = log.WithField("table", ref.String())

	ctx, span := tracer.Start(ctx, "imports.Run", trace.WithAttributes(
		attribute.String("import.kind", kind.Name),
		attribute.String("import.table", ref.String()),
		attribute.String("import.file", name),
	))
	defer span.End()

	started := time.Now()
	run := &pipelineRun{
		svc:        s,
		req:        req,
		ref:        ref,
		name:       name,
		importedAt: s.now(),
		log:        log,
	}
	result, err := run.execute(ctx)

	status := string(importrun.StatusSuccess)
	if err != nil {
		status = string(importrun.StatusFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	m := metrics.Imports()
	m.RunDuration.WithLabelValues(ref.Table, status).Observe(time.Since(started).Seconds())
	if result != nil {
		span.SetAttributes(
			attribute.Int64("import.attempted", result.AttemptedRows),
			attribute.Int64("import.inserted", result.InsertedRows),
			attribute.Int64("import.skipped", result.SkippedDuplicates),
		)
	}
	return result, err
}

func (s *ImportService) validate(req Request) (reportkind.Kind, string, error) {
	if strings.TrimSpace(req.FilePath) == "" {
		return reportkind.Kind{}, "", serrors.Validation("file is required")
	}
	kind, err := s.kinds.Resolve(req.ReportKind)
	if err != nil {
		return reportkind.Kind{}, "", err
	}
	info, err := os.Stat(req.FilePath)
	if err != nil {
		return reportkind.Kind{}, "", serrors.Validation("file %s is not readable: %v", filepath.Base(req.FilePath), err)
	}
	if info.IsDir() {
		return reportkind.Kind{}, "", serrors.Validation("%s is a directory", filepath.Base(req.FilePath))
	}
	name := strings.TrimSpace(req.OriginalFileName)
	if name == "" {
		name = filepath.Base(req.FilePath)
	}
	return kind, name, nil
}

func removeUpload(path string, log *logrus.Entry) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("failed to remove uploaded file")
	}
}

// pipelineRun carries the state of one Run call.
type pipelineRun struct {
	svc        *ImportService
	req        Request
	ref        schema.TableRef
	name       string
	importedAt time.Time
	log        *logrus.Entry
}

func (p *pipelineRun) stage(st importjob.Stage) {
	p.log.WithField("stage", st).Debug("import stage")
	if p.req.OnStage != nil {
		p.req.OnStage(st)
	}
}

func (p *pipelineRun) execute(ctx context.Context) (*importrun.Result, error) {
	s := p.svc

	p.stage(importjob.StageReading)
	book, err := s.reader.Read(ctx, p.req.FilePath)
	if err != nil {
		return nil, p.fail(ctx, fmt.Errorf("read spreadsheet: %w", err))
	}

	p.stage(importjob.StageIntrospecting)
	destCols, err := s.dest.Columns(ctx, p.ref)
	if err != nil {
		return nil, p.fail(ctx, err)
	}
	cols := schema.Map(book.Columns, destCols)
	if len(cols) == 0 {
		p.log.WithField("sheet_columns", book.Columns).Warn("no spreadsheet column matches the destination table")
		return &importrun.Result{OK: true, TableName: p.ref.Table, Note: NoteNoMatchingColumns}, nil
	}

	rows, warnings, warningCount := p.prepare(book.Rows, cols)

	before, err := s.dest.CountBySource(ctx, p.ref, p.name)
	if err != nil {
		return nil, p.fail(ctx, err)
	}

	p.stage(importjob.StageLoading)
	attempted, loadErr := s.loader.Load(ctx, s.dest, p.ref, cols, rows, p.req.Checkpoint)
	cancelled := errors.Is(loadErr, ErrCancelled)
	if loadErr != nil && !cancelled {
		return nil, p.fail(ctx, loadErr)
	}

	after, err := s.dest.CountBySource(ctx, p.ref, p.name)
	if err != nil {
		return nil, p.fail(ctx, err)
	}
	inserted, skipped := Reconcile(before, after, attempted)

	result := &importrun.Result{
		OK:                !cancelled,
		TableName:         p.ref.Table,
		AttemptedRows:     attempted,
		InsertedRows:      inserted,
		SkippedDuplicates: skipped,
		Note:              s.dest.Note(),
		Warnings:          warnings,
		WarningCount:      warningCount,
		Cancelled:         cancelled,
	}

	p.stage(importjob.StageRecording)
	run := p.newRun(importrun.StatusSuccess, nil)
	run.AttemptedRows = attempted
	run.InsertedRows = inserted
	run.SkippedDuplicates = skipped
	if cancelled {
		msg := CancelledMessage
		run.Status = importrun.StatusFailed
		run.ErrorMessage = &msg
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("record import run: %w", err)
	}

	m := metrics.Imports()
	m.Runs.WithLabelValues(p.ref.Table, string(run.Status)).Inc()
	m.Rows.WithLabelValues(p.ref.Table, "attempted").Add(float64(attempted))
	m.Rows.WithLabelValues(p.ref.Table, "inserted").Add(float64(inserted))
	m.Rows.WithLabelValues(p.ref.Table, "skipped").Add(float64(skipped))

	p.log.WithFields(logrus.Fields{
		"attempted": attempted,
		"inserted":  inserted,
		"skipped":   skipped,
		"warnings":  warningCount,
		"cancelled": cancelled,
	}).Info("import finished")

	if cancelled {
		return result, loadErr
	}
	return result, nil
}

// prepare coerces and fingerprints every row. Warnings beyond the limit are
// counted but not kept.
func (p *pipelineRun) prepare(raw []sheet.RawRow, cols []schema.ColumnMetadata) ([]destination.TypedRow, []importrun.ConversionWarning, int) {
	limit := p.svc.warningLimit
	rows := make([]destination.TypedRow, len(raw))
	var warnings []importrun.ConversionWarning
	count := 0
	for i, r := range raw {
		values := make([]any, len(cols))
		for j, c := range cols {
			v, ok := coercion.Coerce(c, r[c.Name])
			if !ok {
				count++
				if len(warnings) < limit {
					w := importrun.ConversionWarning{
						Column: c.Name,
						Row:    i + 1,
						Raw:    coercion.Stringify(r[c.Name]),
					}
					warnings = append(warnings, w)
					p.log.WithFields(logrus.Fields{
						"column": w.Column,
						"row":    w.Row,
						"raw":    w.Raw,
						"kind":   c.Kind.String(),
					}).Warn("value could not be converted, stored as NULL")
				}
			}
			values[j] = v
		}
		rows[i] = destination.TypedRow{
			ImportedAt:     p.importedAt,
			SourceFileName: p.name,
			RowNumber:      i + 1,
			Fingerprint:    fingerprint.Row(r, cols),
			Values:         values,
		}
	}
	if count > 0 {
		metrics.Imports().Warnings.WithLabelValues(p.ref.Table).Add(float64(count))
	}
	return rows, warnings, count
}

func (p *pipelineRun) newRun(status importrun.Status, msg *string) *importrun.ImportRun {
	return &importrun.ImportRun{
		TableName:      p.ref.Table,
		SourceFileName: p.name,
		Status:         status,
		ErrorMessage:   msg,
		JobID:          p.req.JobID,
		ImportedAt:     p.importedAt,
	}
}

// fail records a FAILED run with zero counts and returns cause, joined with
// any error from recording it.
func (p *pipelineRun) fail(ctx context.Context, cause error) error {
	msg := cause.Error()
	p.log.WithError(cause).Error("import failed")
	metrics.Imports().Runs.WithLabelValues(p.ref.Table, string(importrun.StatusFailed)).Inc()

	// The run is recorded even when ctx was cancelled mid-load.
	recordCtx := context.WithoutCancel(ctx)
	if err := p.svc.runs.Create(recordCtx, p.newRun(importrun.StatusFailed, &msg)); err != nil {
		p.log.WithError(err).Error("failed to record failed import run")
		return errors.Join(cause, fmt.Errorf("record import run: %w", err))
	}
	return cause
}
