// Package jobstore keeps import jobs outside the relational ledger: in
// process memory or in Redis.
package jobstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/sheet-importer/modules/imports/domain/entities/importjob"
)

// Memory is a process-local job store. Jobs are lost on restart.
type Memory struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*importjob.ImportJob
}

func NewMemory() *Memory {
	return &Memory{jobs: make(map[uuid.UUID]*importjob.ImportJob)}
}

func (m *Memory) Create(_ context.Context, job *importjob.ImportJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job.Clone()
	return nil
}

func (m *Memory) Get(_ context.Context, id uuid.UUID) (*importjob.ImportJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, importjob.ErrJobNotFound
	}
	return job.Clone(), nil
}

func (m *Memory) Update(_ context.Context, job *importjob.ImportJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.jobs[job.ID]
	if !ok {
		return importjob.ErrJobNotFound
	}
	next := job.Clone()
	next.CancelRequested = next.CancelRequested || current.CancelRequested
	m.jobs[job.ID] = next
	return nil
}

func (m *Memory) SetCancelRequested(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok || job.CancelRequested || job.Status.IsTerminal() {
		return false, nil
	}
	job.CancelRequested = true
	return true, nil
}

func (m *Memory) DeleteFinishedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, job := range m.jobs {
		if job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			delete(m.jobs, id)
			n++
		}
	}
	return n, nil
}
