package dispatch

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// job is one task in flight: the task, its batch index, and the channel the
// result goes to. The result channel is buffered to batch size, so a worker
// finishing after its batch was abandoned writes without blocking.
type job struct {
	task  Task
	index int
	out   chan<- Result
}

// Pool runs tasks on a fixed set of worker goroutines. Each pool has a
// unique identity, so callers can observe that a stalled pool was replaced
// rather than reused.
type Pool struct {
	id       uuid.UUID
	registry *Registry
	jobs     chan job
	quit     chan struct{}
	logger   *zap.Logger
}

// newPool starts a pool with the given number of workers.
func newPool(registry *Registry, workers int, logger *zap.Logger) *Pool {
	p := &Pool{
		id:       uuid.New(),
		registry: registry,
		jobs:     make(chan job, workers),
		quit:     make(chan struct{}),
		logger:   logger,
	}
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	logger.Debug("worker pool started",
		zap.String("poolId", p.id.String()),
		zap.Int("workers", workers))
	return p
}

// ID returns the pool's identity.
func (p *Pool) ID() uuid.UUID { return p.id }

func (p *Pool) worker() {
	for {
		// Check quit first so a discarded pool's workers exit instead of
		// draining whatever jobs are still queued.
		select {
		case <-p.quit:
			return
		default:
		}
		select {
		case <-p.quit:
			return
		case j := <-p.jobs:
			j.out <- execute(p.registry, j.index, j.task)
		}
	}
}

// discard signals every worker to exit and returns without waiting for
// them. A worker wedged inside instance code keeps its goroutine until that
// call returns, which is exactly why the pool is discarded instead of
// drained.
func (p *Pool) discard() {
	close(p.quit)
	p.logger.Warn("worker pool discarded", zap.String("poolId", p.id.String()))
}

// submit feeds tasks to the workers from a separate goroutine so a full job
// channel cannot block the caller. Submission stops when cancel is closed.
func (p *Pool) submit(tasks []Task, out chan<- Result, cancel <-chan struct{}) {
	go func() {
		for i, task := range tasks {
			select {
			case <-cancel:
				return
			case <-p.quit:
				return
			case p.jobs <- job{task: task, index: i, out: out}:
			}
		}
	}()
}
