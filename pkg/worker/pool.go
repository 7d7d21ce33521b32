package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/semaphore"
)

type Task func(ctx context.Context) error

// Pool runs submitted tasks in the background with at most Size running at once.
// Tasks receive the pool's base context, not the submitter's, so they outlive
// the request that created them.
type Pool struct {
	sem  *semaphore.Weighted
	opts Options

	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewPool(baseCtx context.Context, opts Options) (*Pool, error) {
	if baseCtx == nil {
		return nil, invalidConfig("base context is required")
	}
	opts.setDefaults()
	if opts.Size < 0 {
		return nil, invalidConfig("size must be positive, got %d", opts.Size)
	}
	ctx, cancel := context.WithCancel(baseCtx)
	return &Pool{
		sem:     semaphore.NewWeighted(int64(opts.Size)),
		opts:    opts,
		baseCtx: ctx,
		cancel:  cancel,
	}, nil
}

// Submit queues task and returns a channel that receives its result exactly
// once and is then closed. A task still queued when the pool's base context
// is cancelled never runs; its result wraps ErrTaskAbandoned and the
// OnAbandon callback, if any, runs first.
func (p *Pool) Submit(name string, task Task, opts ...SubmitOption) (<-chan error, error) {
	var so submitOptions
	for _, o := range opts {
		o(&so)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		defer p.wg.Done()
		defer close(done)

		if err := p.sem.Acquire(p.baseCtx, 1); err != nil {
			err = fmt.Errorf("%w: %s: %w", ErrTaskAbandoned, name, err)
			p.opts.Logger.WithField("task", name).WithError(err).Warn("worker: queued task abandoned")
			if so.onAbandon != nil {
				so.onAbandon(err)
			}
			done <- err
			return
		}
		defer p.sem.Release(1)

		done <- p.run(name, task)
	}()
	return done, nil
}

func (p *Pool) run(name string, task Task) (err error) {
	log := p.opts.Logger.WithField("task", name)
	p.opts.OnStart(name)
	defer func() {
		if r := recover(); r != nil {
			log.WithField("stack", string(debug.Stack())).Errorf("worker: task panicked: %v", r)
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
		p.opts.OnFinish(name, err)
	}()

	log.Debug("worker: task started")
	err = task(p.baseCtx)
	if err != nil {
		log.WithError(err).Debug("worker: task finished with error")
	}
	return err
}

// Shutdown stops accepting tasks and waits for running ones. When ctx expires
// first, the base context is cancelled so tasks can observe it.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-drained
		return ctx.Err()
	}
}
