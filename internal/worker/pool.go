package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrQueueFull is returned when the task queue has no room; callers surface
// it instead of blocking the request path.
var ErrQueueFull = errors.New("worker queue is full")

// Task is one unit of background work.
type Task func(ctx context.Context)

// Pool runs tasks on a fixed number of goroutines with a bounded queue.
type Pool struct {
	tasks    chan Task
	log      *logrus.Logger
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// NewPool starts workers goroutines consuming from a queue of queueSize.
func NewPool(workers, queueSize int, log *logrus.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	if log == nil {
		log = logrus.New()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		tasks:  make(chan Task, queueSize),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	log.Infof("Started worker pool: %d workers, queue size %d", workers, queueSize)
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for task := range p.tasks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.log.Errorf("Worker %d recovered from panic: %v", id, r)
				}
			}()
			task(p.ctx)
		}()
	}
}

// Submit enqueues a task without blocking. A full queue returns ErrQueueFull.
func (p *Pool) Submit(task Task) error {
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop closes the queue and waits for queued and in-flight tasks to finish.
// Callers must not submit after Stop.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.tasks)
		p.wg.Wait()
		p.cancel()
	})
}
