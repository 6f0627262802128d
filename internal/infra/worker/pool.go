package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"event-companion-sync/internal/infra/logging"
)

var (
	ErrQueueFull   = errors.New("worker queue full")
	ErrPoolStopped = errors.New("worker pool stopped")
)

type Task func(ctx context.Context) error

// Pool runs submitted tasks on a fixed number of goroutines.
type Pool struct {
	wg       sync.WaitGroup
	jobs     chan Task
	quit     chan struct{}
	stopOnce sync.Once
	n        int
	log      *zerolog.Logger
}

func NewPool(workers int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{
		jobs: make(chan Task, workers*4),
		quit: make(chan struct{}),
		n:    workers,
		log:  logging.Component(logger, "WorkerPool"),
	}
}

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-p.quit:
					return
				case task := <-p.jobs:
					if task == nil {
						continue
					}
					if err := task(ctx); err != nil {
						p.log.Error().Err(err).Int("worker", id).Msg("task failed")
					}
				}
			}
		}(i)
	}
}

// Stop waits for the running tasks; queued ones are dropped.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.quit) })
	p.wg.Wait()
}

// Stopped reports whether Stop has been called.
func (p *Pool) Stopped() bool {
	select {
	case <-p.quit:
		return true
	default:
		return false
	}
}

func (p *Pool) Submit(task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	if p.Stopped() {
		return ErrPoolStopped
	}
	select {
	case p.jobs <- task:
		return nil
	default:
		return ErrQueueFull
	}
}
