// Package reporting forwards notable failures to Sentry: dispatcher pool
// restarts and serving-side processing errors. A reporter constructed
// without a DSN disables itself, so the hosted paths can call it
// unconditionally.
package reporting

import (
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

// Config holds the Sentry client options the engine cares about. An empty
// DSN disables reporting.
type Config struct {
	DSN         string
	Environment string
	Release     string
}

// Reporter captures messages and errors to Sentry. The zero value and a
// reporter built from an empty DSN are inert.
type Reporter struct {
	enabled bool
	logger  *zap.Logger
}

// New initializes the Sentry client and returns a reporter over it.
func New(cfg Config, logger *zap.Logger) (*Reporter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DSN == "" {
		return &Reporter{logger: logger}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("error reporting enabled", zap.String("environment", cfg.Environment))
	return &Reporter{enabled: true, logger: logger}, nil
}

// Enabled reports whether events actually reach Sentry.
func (r *Reporter) Enabled() bool { return r != nil && r.enabled }

// CaptureMessage records an informational event, satisfying the dispatcher's
// recovery reporter.
func (r *Reporter) CaptureMessage(msg string) {
	if !r.Enabled() {
		return
	}
	sentry.CaptureMessage(msg)
}

// CaptureError records an error event.
func (r *Reporter) CaptureError(err error) {
	if !r.Enabled() || err == nil {
		return
	}
	sentry.CaptureException(err)
}

// Close flushes buffered events, bounded by a short timeout.
func (r *Reporter) Close() {
	if !r.Enabled() {
		return
	}
	if !sentry.Flush(2 * time.Second) {
		r.logger.Warn("error reporting flush timed out")
	}
}
