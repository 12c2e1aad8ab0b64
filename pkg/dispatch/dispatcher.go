package dispatch

import (
	"context"
	"errors"
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// EnvWorkers is the environment variable fixing the worker count.
	// Unset or invalid values fall back to NumCPU+1; zero disables the
	// pool entirely so every batch runs serially.
	EnvWorkers = "DELPHI_WORKERS"

	// DefaultWait is how long a batch may sit on the pool before the
	// dispatcher abandons it and degrades to serial execution.
	DefaultWait = 500 * time.Millisecond
)

// WorkersFromEnv reads the worker count from the environment.
func WorkersFromEnv() int {
	raw, ok := os.LookupEnv(EnvWorkers)
	if !ok {
		return runtime.NumCPU() + 1
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return runtime.NumCPU() + 1
	}
	return n
}

// Reporter receives notable dispatcher events, typically backed by an error
// reporting service.
type Reporter interface {
	CaptureMessage(msg string)
}

// Config tunes a Dispatcher. Workers below zero means read the environment;
// Wait of zero or less means DefaultWait.
type Config struct {
	Workers  int
	Wait     time.Duration
	Reporter Reporter
}

// Dispatcher runs task batches on a worker pool with an all-or-nothing
// deadline. A batch whose results do not all arrive within the wait window
// is abandoned: the pool is discarded without draining, a fresh pool takes
// its place, and the whole batch reruns serially in the caller's goroutine.
// Results are always in input order either way.
type Dispatcher struct {
	registry *Registry
	workers  int
	wait     time.Duration
	logger   *zap.Logger
	reporter Reporter

	mu     sync.Mutex
	pool   *Pool
	closed bool
}

// NewDispatcher builds a dispatcher over the given registry and starts its
// pool unless the worker count is zero.
func NewDispatcher(registry *Registry, cfg Config, logger *zap.Logger) (*Dispatcher, error) {
	if registry == nil {
		return nil, errors.New("registry is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := cfg.Workers
	if workers < 0 {
		workers = WorkersFromEnv()
	}
	wait := cfg.Wait
	if wait <= 0 {
		wait = DefaultWait
	}
	d := &Dispatcher{
		registry: registry,
		workers:  workers,
		wait:     wait,
		logger:   logger,
		reporter: cfg.Reporter,
	}
	if workers > 0 {
		d.pool = newPool(registry, workers, logger)
	} else {
		logger.Info("dispatcher running without a pool, batches execute serially")
	}
	return d, nil
}

// Workers returns the configured worker count.
func (d *Dispatcher) Workers() int { return d.workers }

// PoolID returns the identity of the current pool, or the empty string in
// serial-only mode. The identity changes whenever a stalled pool is
// replaced.
func (d *Dispatcher) PoolID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pool == nil {
		return ""
	}
	return d.pool.ID().String()
}

// Run executes a batch and returns one result per task, in task order. Task
// failures are reported per result; the returned error is reserved for
// cancellation and dispatcher shutdown.
func (d *Dispatcher) Run(ctx context.Context, tasks []Task) ([]Result, error) {
	if len(tasks) == 0 {
		return nil, nil
	}
	pool, err := d.currentPool()
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return d.runSerial(ctx, tasks)
	}

	results, complete, err := d.runOnPool(ctx, pool, tasks)
	if err != nil {
		return nil, err
	}
	if complete {
		return results, nil
	}

	// The batch timed out. Partial results are discarded along with the
	// pool, and the entire batch reruns serially.
	d.replacePool(pool)
	return d.runSerial(ctx, tasks)
}

func (d *Dispatcher) currentPool() (*Pool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDispatcherClosed
	}
	return d.pool, nil
}

func (d *Dispatcher) runOnPool(ctx context.Context, pool *Pool, tasks []Task) ([]Result, bool, error) {
	out := make(chan Result, len(tasks))
	cancel := make(chan struct{})
	defer close(cancel)
	pool.submit(tasks, out, cancel)

	timer := time.NewTimer(d.wait)
	defer timer.Stop()

	results := make([]Result, len(tasks))
	for received := 0; received < len(tasks); {
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-timer.C:
			return nil, false, nil
		case r := <-out:
			results[r.Index] = r
			received++
		}
	}
	return results, true, nil
}

func (d *Dispatcher) runSerial(ctx context.Context, tasks []Task) ([]Result, error) {
	results := make([]Result, len(tasks))
	for i, task := range tasks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		results[i] = execute(d.registry, i, task)
	}
	return results, nil
}

// replacePool swaps the stalled pool for a fresh one. When a concurrent
// batch already did the swap, the stalled pool is gone and there is nothing
// to do.
func (d *Dispatcher) replacePool(stalled *Pool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.pool != stalled {
		return
	}
	stalled.discard()
	d.pool = newPool(d.registry, d.workers, d.logger)
	d.logger.Warn("batch timed out, pool replaced",
		zap.String("oldPoolId", stalled.ID().String()),
		zap.String("newPoolId", d.pool.ID().String()),
		zap.Duration("wait", d.wait))
	if d.reporter != nil {
		d.reporter.CaptureMessage("worker pool restarted after dispatch timeout")
	}
}

// Close discards the pool and rejects further batches.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	if d.pool != nil {
		d.pool.discard()
		d.pool = nil
	}
}
