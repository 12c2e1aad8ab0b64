package serve

import (
	"context"
	"fmt"

	natsclient "github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/wehubfusion/Delphi/internal/nats"
)

// Config holds the connection and messaging parameters of a serving client.
type Config struct {
	// Connection configures the NATS connection.
	Connection *nats.ConnectionConfig

	// MaxDeliver bounds redelivery attempts of unacknowledged requests.
	MaxDeliver int

	// PublishMaxRetries bounds response publish attempts.
	PublishMaxRetries int

	// ResponseStream and ResponseSubject say where responses go.
	ResponseStream  string
	ResponseSubject string
}

// DefaultConfig returns a configuration with working defaults for the given
// NATS URL.
func DefaultConfig(url string) *Config {
	return &Config{
		Connection:        nats.DefaultConnectionConfig(url),
		MaxDeliver:        5,
		PublishMaxRetries: 3,
		ResponseStream:    DefaultResponseStream,
		ResponseSubject:   DefaultResponseSubject,
	}
}

// Client owns the NATS connection and exposes the JetStream service for
// publishing requests and running workers. JetStream must be enabled on the
// server.
type Client struct {
	conn   *natsclient.Conn
	js     natsclient.JetStreamContext
	config *Config
	logger *zap.Logger

	// Requests is the JetStream service, available after Connect.
	Requests *Service
}

// NewClient creates a client for the given NATS URL with default
// configuration. Connect must be called before use.
func NewClient(url string, logger *zap.Logger) *Client {
	return NewClientWithConfig(DefaultConfig(url), logger)
}

// NewClientWithConfig creates a client with full control over connection and
// messaging parameters.
func NewClientWithConfig(config *Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{config: config, logger: logger}
}

// NewClientWithJSContext creates a client wired directly to a JSContext
// implementation, bypassing connection management. Used by tests.
func NewClientWithJSContext(js JSContext, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc, _ := NewService(js, 0, 0, "", "", logger)
	return &Client{Requests: svc, logger: logger}
}

// Connect dials the NATS server, initializes the JetStream context, and
// builds the request service. It is a no-op when already connected.
func (c *Client) Connect(ctx context.Context) error {
	if c.conn != nil && c.conn.IsConnected() {
		return nil
	}
	if c.config == nil || c.config.Connection == nil {
		return fmt.Errorf("client configuration is missing")
	}

	conn, err := nats.Connect(ctx, c.config.Connection, c.logger)
	if err != nil {
		return NewError("CONNECTION_FAILED", "connecting to NATS", err)
	}
	c.conn = conn

	js, err := conn.JetStream()
	if err != nil {
		_ = nats.Close(c.conn)
		c.conn = nil
		return NewError("JETSTREAM_NOT_ENABLED", "JetStream is not enabled on the NATS server", err)
	}
	c.js = js

	svc, err := NewService(
		WrapNATSJetStream(js),
		c.config.MaxDeliver,
		c.config.PublishMaxRetries,
		c.config.ResponseStream,
		c.config.ResponseSubject,
		c.logger,
	)
	if err != nil {
		_ = nats.Close(c.conn)
		c.conn = nil
		c.js = nil
		return NewError("SERVICE_INIT_FAILED", "initializing request service", err)
	}
	c.Requests = svc
	return nil
}

// Close drains and closes the connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	if err := nats.Close(c.conn); err != nil {
		return NewError("CLOSE_FAILED", "closing connection", err)
	}
	c.conn = nil
	c.js = nil
	c.Requests = nil
	return nil
}

// IsConnected reports whether the client is connected.
func (c *Client) IsConnected() bool {
	return nats.IsConnected(c.conn)
}

// Connection returns the underlying NATS connection for advanced use.
func (c *Client) Connection() *natsclient.Conn {
	return c.conn
}

// JetStream returns the JetStream context, or nil before Connect.
func (c *Client) JetStream() natsclient.JetStreamContext {
	return c.js
}

// Ping flushes the connection to verify the server is responsive.
func (c *Client) Ping(ctx context.Context) error {
	if !c.IsConnected() {
		return NewError("NOT_CONNECTED", "not connected to NATS", ErrNotConnected)
	}

	resultCh := make(chan error, 1)
	go func() {
		resultCh <- c.conn.FlushTimeout(c.config.Connection.Timeout)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("ping cancelled: %w", ctx.Err())
	case err := <-resultCh:
		if err != nil {
			return NewError("PING_FAILED", "flushing connection", err)
		}
		return nil
	}
}
