package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"edu-checkout/internal/infra/metrics"
)

var (
	ErrQueueFull = errors.New("worker queue full")
	ErrStopped   = errors.New("worker pool stopped")
)

type Task func(ctx context.Context) error

type job struct {
	name string
	run  Task
}

// Pool runs submitted tasks on a fixed number of goroutines. Tasks get the
// pool's context, never the submitter's, so they outlive the request that
// queued them. Stop drains whatever is already queued.
type Pool struct {
	wg      sync.WaitGroup
	jobs    chan job
	n       int
	timeout time.Duration
	log     *zerolog.Logger

	mu      sync.RWMutex
	stopped bool
}

func NewPool(workers int, taskTimeout time.Duration, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if taskTimeout <= 0 {
		taskTimeout = 30 * time.Second
	}
	return &Pool{jobs: make(chan job, workers*16), n: workers, timeout: taskTimeout, log: logger}
}

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for j := range p.jobs {
				p.run(ctx, id, j)
			}
		}(i)
	}
}

func (p *Pool) run(ctx context.Context, id int, j job) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			metrics.IncWorkerJob("failed")
			p.log.Error().Int("worker", id).Str("task", j.name).Interface("panic", r).Msg("task panicked")
		}
	}()
	if err := j.run(ctx); err != nil {
		metrics.IncWorkerJob("failed")
		p.log.Warn().Err(err).Int("worker", id).Str("task", j.name).Msg("task failed")
		return
	}
	metrics.IncWorkerJob("completed")
}

// Stop refuses new tasks and waits for queued ones to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}

// Submit never blocks; a saturated queue is reported as ErrQueueFull.
func (p *Pool) Submit(name string, task Task) error {
	if task == nil {
		return fmt.Errorf("submit %s: nil task", name)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.jobs <- job{name: name, run: task}:
		return nil
	default:
		metrics.IncWorkerJob("rejected")
		return ErrQueueFull
	}
}
