package services

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/sheet-importer/modules/imports/domain/destination"
	"github.com/iota-uz/sheet-importer/modules/imports/domain/entities/importjob"
	"github.com/iota-uz/sheet-importer/modules/imports/domain/entities/importrun"
	"github.com/iota-uz/sheet-importer/modules/imports/domain/schema"
	"github.com/iota-uz/sheet-importer/modules/imports/domain/sheet"
)

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type fakeDest struct {
	mu          sync.Mutex
	cols        []schema.ColumnMetadata
	colsErr     error
	rows        map[string]destination.TypedRow
	insertCalls int
	countCalls  int
	failOnCall  int
	onInsert    func(call int)
}

func newFakeDest(cols ...schema.ColumnMetadata) *fakeDest {
	return &fakeDest{cols: cols, rows: make(map[string]destination.TypedRow)}
}

func (d *fakeDest) Columns(ctx context.Context, ref schema.TableRef) ([]schema.ColumnMetadata, error) {
	if d.colsErr != nil {
		return nil, schema.Unavailable(ref, d.colsErr)
	}
	return d.cols, nil
}

func (d *fakeDest) CountBySource(ctx context.Context, ref schema.TableRef, source string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.countCalls++
	var n int64
	for _, r := range d.rows {
		if r.SourceFileName == source {
			n++
		}
	}
	return n, nil
}

func (d *fakeDest) InsertChunk(ctx context.Context, ref schema.TableRef, cols []schema.ColumnMetadata, rows []destination.TypedRow) error {
	d.mu.Lock()
	d.insertCalls++
	call := d.insertCalls
	hook := d.onInsert
	d.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if d.failOnCall == call {
		return errors.New("deadlock victim")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range rows {
		if _, dup := d.rows[r.Fingerprint]; !dup {
			d.rows[r.Fingerprint] = r
		}
	}
	return nil
}

func (d *fakeDest) Note() string { return "fake duplicates ignored" }

func (d *fakeDest) calls() (inserts, counts int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.insertCalls, d.countCalls
}

type fakeRuns struct {
	mu   sync.Mutex
	runs []*importrun.ImportRun
}

func (r *fakeRuns) List(ctx context.Context, params *importrun.FindParams) ([]*importrun.ImportRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*importrun.ImportRun(nil), r.runs...), nil
}

func (r *fakeRuns) Create(ctx context.Context, run *importrun.ImportRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run.ID = int64(len(r.runs) + 1)
	r.runs = append(r.runs, run)
	return nil
}

func (r *fakeRuns) all() []*importrun.ImportRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*importrun.ImportRun(nil), r.runs...)
}

type fakeReader struct {
	sheet *sheet.Sheet
	err   error
}

func (f fakeReader) Read(ctx context.Context, path string) (*sheet.Sheet, error) {
	return f.sheet, f.err
}

type memJobs struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*importjob.ImportJob
}

func newMemJobs() *memJobs {
	return &memJobs{jobs: make(map[uuid.UUID]*importjob.ImportJob)}
}

func (m *memJobs) Create(ctx context.Context, job *importjob.ImportJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job.Clone()
	return nil
}

func (m *memJobs) Get(ctx context.Context, id uuid.UUID) (*importjob.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, importjob.ErrJobNotFound
	}
	return j.Clone(), nil
}

func (m *memJobs) Update(ctx context.Context, job *importjob.ImportJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.jobs[job.ID]
	if !ok {
		return importjob.ErrJobNotFound
	}
	next := job.Clone()
	next.CancelRequested = next.CancelRequested || cur.CancelRequested
	m.jobs[job.ID] = next
	return nil
}

func (m *memJobs) SetCancelRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.Status.IsTerminal() || j.CancelRequested {
		return false, nil
	}
	j.CancelRequested = true
	return true, nil
}

func (m *memJobs) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, j := range m.jobs {
		if j.FinishedAt != nil && j.FinishedAt.Before(cutoff) {
			delete(m.jobs, id)
			n++
		}
	}
	return n, nil
}

func tempUpload(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("stub"), 0o600))
	return path
}

func salesColumns() []schema.ColumnMetadata {
	return []schema.ColumnMetadata{
		{Name: schema.ColImportedAt, Kind: schema.Timestamp},
		{Name: schema.ColSourceFileName, Kind: schema.VarChar},
		{Name: schema.ColRowNumber, Kind: schema.Integer},
		{Name: schema.ColRowHash, Kind: schema.Char, MaxLength: 64},
		{Name: "Operacion", Kind: schema.BigInt},
		{Name: "Monto", Kind: schema.Decimal, Precision: 18, Scale: 2},
		{Name: "Fecha", Kind: schema.Timestamp},
	}
}

func salesSheet(n int) *sheet.Sheet {
	rows := make([]sheet.RawRow, n)
	for i := range rows {
		rows[i] = sheet.RawRow{
			"Operacion": float64(1000 + i),
			"Monto":     "1.234,56",
			"Fecha":     "12-01-2025 23:59:02",
			"Ignorada":  "x",
		}
	}
	return &sheet.Sheet{Columns: []string{"Operacion", "Monto", "Fecha", "Ignorada"}, Rows: rows}
}
