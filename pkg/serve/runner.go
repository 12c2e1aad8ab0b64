package serve

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Reporter receives processing failures for out-of-band error tracking.
// Satisfied by reporting.Reporter; a nil reporter disables tracking.
type Reporter interface {
	CaptureError(err error)
}

// RunnerConfig configures the serving loop.
type RunnerConfig struct {
	// Stream and Consumer name the request stream and its durable consumer.
	Stream   string
	Consumer string

	// BatchSize is how many requests one pull fetches.
	BatchSize int

	// NumWorkers is the number of concurrent processing goroutines.
	NumWorkers int

	// ProcessTimeout bounds processing of a single request.
	ProcessTimeout time.Duration
}

// DefaultRunnerConfig returns a working serving configuration.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Stream:         DefaultRequestStream,
		Consumer:       DefaultConsumer,
		BatchSize:      10,
		NumWorkers:     4,
		ProcessTimeout: 30 * time.Second,
	}
}

// Runner pulls requests from a JetStream consumer in batches and distributes
// them to worker goroutines, publishing one response per request.
type Runner struct {
	service   *Service
	processor Processor
	cfg       RunnerConfig
	logger    *zap.Logger
	tracer    trace.Tracer
	reporter  Reporter
}

// NewRunner creates a runner over a connected service. The request stream
// and its durable consumer are created when missing.
func NewRunner(service *Service, processor Processor, cfg RunnerConfig, logger *zap.Logger) (*Runner, error) {
	if service == nil {
		return nil, errors.New("service cannot be nil")
	}
	if processor == nil {
		return nil, errors.New("processor cannot be nil")
	}
	if cfg.Stream == "" {
		return nil, errors.New("stream name cannot be empty")
	}
	if cfg.Consumer == "" {
		return nil, errors.New("consumer name cannot be empty")
	}
	if cfg.BatchSize <= 0 {
		return nil, errors.New("batch size must be greater than 0")
	}
	if cfg.NumWorkers <= 0 {
		return nil, errors.New("number of workers must be greater than 0")
	}
	if cfg.ProcessTimeout <= 0 {
		return nil, errors.New("process timeout must be greater than 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := service.EnsureStream(cfg.Stream); err != nil {
		return nil, fmt.Errorf("ensuring stream %q: %w", cfg.Stream, err)
	}
	if err := service.EnsureConsumer(cfg.Stream, cfg.Consumer); err != nil {
		return nil, fmt.Errorf("ensuring consumer %q: %w", cfg.Consumer, err)
	}

	return &Runner{
		service:   service,
		processor: processor,
		cfg:       cfg,
		logger:    logger,
		tracer:    otel.Tracer("delphi/serve"),
	}, nil
}

// SetReporter installs an error tracker for processing failures.
func (r *Runner) SetReporter(reporter Reporter) {
	r.reporter = reporter
}

// Run starts the serving loop: one puller goroutine feeding NumWorkers
// processing goroutines. It blocks until the context is cancelled and all
// workers have drained.
func (r *Runner) Run(ctx context.Context) error {
	requestChan := make(chan *Request, r.cfg.BatchSize)

	var wg sync.WaitGroup
	for i := 0; i < r.cfg.NumWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			r.worker(ctx, workerID, requestChan)
		}(i)
	}

	go func() {
		defer close(requestChan)

		backoffDelay := 100 * time.Millisecond
		maxBackoff := 5 * time.Second

		for {
			select {
			case <-ctx.Done():
				r.logger.Info("shutting down request puller")
				return
			default:
				requests, err := r.service.PullRequests(ctx, r.cfg.Stream, r.cfg.Consumer, r.cfg.BatchSize)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					r.logger.Error("error pulling requests", zap.Error(err))
					time.Sleep(backoffDelay)
					if backoffDelay < maxBackoff {
						backoffDelay *= 2
					}
					continue
				}

				if len(requests) == 0 {
					select {
					case <-time.After(500 * time.Millisecond):
					case <-ctx.Done():
						return
					}
					continue
				}

				backoffDelay = 100 * time.Millisecond

				for _, req := range requests {
					select {
					case requestChan <- req:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()

	select {
	case <-done:
		r.logger.Info("runner completed")
		return nil
	case <-ctx.Done():
		r.logger.Info("runner stopped", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

func (r *Runner) worker(ctx context.Context, workerID int, requestChan <-chan *Request) {
	r.logger.Info("worker started", zap.Int("worker_id", workerID))
	defer r.logger.Info("worker stopped", zap.Int("worker_id", workerID))

	for {
		select {
		case req, ok := <-requestChan:
			if !ok {
				return
			}
			r.processRequest(ctx, workerID, req)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runner) processRequest(ctx context.Context, workerID int, req *Request) {
	ctx, span := r.tracer.Start(ctx, "serve.processRequest",
		trace.WithAttributes(
			attribute.Int("worker.id", workerID),
			attribute.String("request.id", req.RequestID),
			attribute.Int("request.transcripts", len(req.Transcripts)),
			attribute.String("stream", r.cfg.Stream),
			attribute.String("consumer", r.cfg.Consumer),
		))
	defer span.End()

	select {
	case <-ctx.Done():
		span.SetStatus(codes.Error, "context cancelled before processing")
		return
	default:
	}

	processCtx, cancel := context.WithTimeout(ctx, r.cfg.ProcessTimeout)
	defer cancel()

	start := time.Now()
	result, procErr := r.processor.Process(processCtx, req)
	elapsed := time.Since(start)
	span.SetAttributes(attribute.Int64("processing.duration_ms", elapsed.Milliseconds()))

	// Reporting uses a fresh context so a cancelled pull loop cannot strand
	// unacknowledged requests.
	reportCtx, reportCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer reportCancel()

	if procErr != nil {
		span.RecordError(procErr)
		span.SetStatus(codes.Error, procErr.Error())
		r.logger.Error("error processing request",
			zap.Int("worker_id", workerID),
			zap.String("request_id", req.RequestID),
			zap.Duration("processing_time", elapsed),
			zap.Error(procErr))
		if r.reporter != nil {
			if _, retryable := classify(procErr); retryable {
				r.reporter.CaptureError(procErr)
			}
		}
		if reportErr := r.service.ReportError(reportCtx, req, procErr); reportErr != nil {
			r.logger.Error("error reporting failure",
				zap.Int("worker_id", workerID),
				zap.String("request_id", req.RequestID),
				zap.Error(reportErr))
		}
		return
	}

	span.SetStatus(codes.Ok, "request processed")
	if result != nil {
		span.SetAttributes(
			attribute.String("result.domain", result.Domain),
			attribute.String("result.intent", result.Intent),
			attribute.Int("result.entities", len(result.Entities)),
		)
	}

	r.logger.Info("processed request",
		zap.Int("worker_id", workerID),
		zap.String("request_id", req.RequestID),
		zap.Duration("processing_time", elapsed))

	resp := NewResponse(req.RequestID).
		WithResult(result).
		WithDuration(elapsed).
		WithMetadata(req.Metadata)
	if reportErr := r.service.ReportSuccess(reportCtx, req, resp); reportErr != nil {
		r.logger.Error("error reporting success",
			zap.Int("worker_id", workerID),
			zap.String("request_id", req.RequestID),
			zap.Error(reportErr))
	}
}
