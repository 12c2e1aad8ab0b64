package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wehubfusion/Delphi/internal/nats"
	"github.com/wehubfusion/Delphi/internal/reporting"
	"github.com/wehubfusion/Delphi/internal/tracing"
	"github.com/wehubfusion/Delphi/pkg/serve"
)

var (
	serveApp   string
	serveToken string
)

// ServeCmd starts a JetStream serving worker.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Pull requests from JetStream and publish processed results",
	Long: `Start a serving worker: load persisted models, connect to NATS,
pull request batches from the configured JetStream consumer, process each
utterance through the engine, and publish responses to the response
subject.

The worker runs until interrupted (Ctrl+C or SIGTERM) and drains in-flight
requests before exiting. Tracing and Sentry reporting activate when
configured.

Example:
  delphi serve --app ./home_assistant
  DELPHI_NATS_URL=nats://broker:4222 delphi serve --app ./home_assistant`,
	RunE: runServe,
}

func init() {
	ServeCmd.Flags().StringVar(&serveApp, "app", "", "Application resource directory (overrides app.root)")
	ServeCmd.Flags().StringVar(&serveToken, "token", "", "Incremental generation token to load")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if cfg.Tracing.Enabled {
		shutdown, err := tracing.Setup(ctx, tracing.Config{
			ServiceName:    "delphi",
			ServiceVersion: Version,
			Environment:    cfg.Tracing.Environment,
			OTLPEndpoint:   cfg.Tracing.Endpoint,
			SampleRatio:    cfg.Tracing.SampleRatio,
		}, logger)
		if err != nil {
			return fmt.Errorf("setting up tracing: %w", err)
		}
		defer tracing.Shutdown(shutdown, logger)
	}

	reporter, err := reporting.New(reporting.Config{
		DSN:         cfg.Sentry.DSN,
		Environment: cfg.Sentry.Environment,
		Release:     cfg.Sentry.Release,
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing error reporting: %w", err)
	}
	defer reporter.Close()

	engine, err := newEngine(cfg, serveApp, reporter, logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.Load(ctx, serveToken); err != nil {
		return fmt.Errorf("loading models: %w", err)
	}

	connCfg := nats.DefaultConnectionConfig(cfg.NATS.URL)
	if cfg.NATS.Name != "" {
		connCfg.Name = cfg.NATS.Name
	}
	connCfg.Username = cfg.NATS.Username
	connCfg.Password = cfg.NATS.Password
	connCfg.Token = cfg.NATS.Token

	client := serve.NewClientWithConfig(&serve.Config{
		Connection:        connCfg,
		MaxDeliver:        cfg.Serve.MaxDeliver,
		PublishMaxRetries: cfg.Serve.PublishMaxRetries,
		ResponseStream:    cfg.Serve.ResponseStream,
		ResponseSubject:   cfg.Serve.ResponseSubject,
	}, logger)
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer client.Close()

	processor, err := serve.NewEngineProcessor(engine)
	if err != nil {
		return err
	}
	runner, err := serve.NewRunner(client.Requests, processor, serve.RunnerConfig{
		Stream:         cfg.Serve.Stream,
		Consumer:       cfg.Serve.Consumer,
		BatchSize:      cfg.Serve.BatchSize,
		NumWorkers:     cfg.Serve.Workers,
		ProcessTimeout: time.Duration(cfg.Serve.ProcessTimeoutSeconds) * time.Second,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating runner: %w", err)
	}
	runner.SetReporter(reporter)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	runErr := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("serving",
			zap.String("stream", cfg.Serve.Stream),
			zap.String("consumer", cfg.Serve.Consumer),
			zap.Int("workers", cfg.Serve.Workers))
		runErr <- runner.Run(ctx)
	}()

	select {
	case <-sigChan:
		logger.Info("shutdown signal received, stopping")
		cancel()
	case err := <-runErr:
		if err != nil && err != context.Canceled {
			return fmt.Errorf("runner stopped: %w", err)
		}
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()
	select {
	case <-done:
		logger.Info("stopped")
	case <-time.After(30 * time.Second):
		logger.Warn("shutdown timeout reached, forcing exit")
	}
	return nil
}
