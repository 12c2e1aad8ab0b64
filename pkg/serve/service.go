// Package serve runs the understanding engine as a NATS JetStream worker:
// requests are pulled from a durable consumer, processed, and answered on a
// response stream. All messaging goes through JetStream with explicit
// acknowledgment; core NATS publish/subscribe is not used.
package serve

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// JSContext is the subset of JetStream operations the service depends on,
// satisfied by nats.JetStreamContext through WrapNATSJetStream and by test
// doubles.
type JSContext interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
	PullSubscribe(subj, durable string, opts ...nats.SubOpt) (JSSubscription, error)
	StreamInfo(stream string) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig) (*nats.StreamInfo, error)
	ConsumerInfo(stream, consumer string) (*nats.ConsumerInfo, error)
	AddConsumer(stream string, cfg *nats.ConsumerConfig) (*nats.ConsumerInfo, error)
}

// JSSubscription abstracts the pull subscription operations the service uses.
type JSSubscription interface {
	Unsubscribe() error
	Drain() error
	IsValid() bool
	Pending() (int, int, error)
	Fetch(batch int, opts ...nats.PullOpt) ([]*nats.Msg, error)
}

// WrapNATSJetStream adapts a nats.JetStreamContext to the JSContext
// interface.
func WrapNATSJetStream(js nats.JetStreamContext) JSContext {
	return &natsJSAdapter{js: js}
}

type natsJSAdapter struct {
	js nats.JetStreamContext
}

func (a *natsJSAdapter) Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error) {
	return a.js.Publish(subj, data, opts...)
}

func (a *natsJSAdapter) PullSubscribe(subj, durable string, opts ...nats.SubOpt) (JSSubscription, error) {
	sub, err := a.js.PullSubscribe(subj, durable, opts...)
	if err != nil {
		return nil, err
	}
	return &natsSubAdapter{sub: sub}, nil
}

func (a *natsJSAdapter) StreamInfo(stream string) (*nats.StreamInfo, error) {
	return a.js.StreamInfo(stream)
}

func (a *natsJSAdapter) AddStream(cfg *nats.StreamConfig) (*nats.StreamInfo, error) {
	return a.js.AddStream(cfg)
}

func (a *natsJSAdapter) ConsumerInfo(stream, consumer string) (*nats.ConsumerInfo, error) {
	return a.js.ConsumerInfo(stream, consumer)
}

func (a *natsJSAdapter) AddConsumer(stream string, cfg *nats.ConsumerConfig) (*nats.ConsumerInfo, error) {
	return a.js.AddConsumer(stream, cfg)
}

type natsSubAdapter struct {
	sub *nats.Subscription
}

func (s *natsSubAdapter) Unsubscribe() error         { return s.sub.Unsubscribe() }
func (s *natsSubAdapter) Drain() error               { return s.sub.Drain() }
func (s *natsSubAdapter) IsValid() bool              { return s.sub.IsValid() }
func (s *natsSubAdapter) Pending() (int, int, error) { return s.sub.Pending() }
func (s *natsSubAdapter) Fetch(batch int, opts ...nats.PullOpt) ([]*nats.Msg, error) {
	return s.sub.Fetch(batch, opts...)
}

// Service publishes requests and responses and pulls requests from durable
// consumers over JetStream.
type Service struct {
	js                JSContext
	logger            *zap.Logger
	maxDeliver        int
	publishMaxRetries int
	retryDelay        time.Duration
	responseStream    string
	responseSubject   string
}

// NewService creates a service on the given JetStream context. maxDeliver
// bounds redelivery of unacknowledged requests and publishMaxRetries bounds
// response publish attempts; zero values take the defaults. Responses go to
// responseSubject on responseStream.
func NewService(js JSContext, maxDeliver, publishMaxRetries int, responseStream, responseSubject string, logger *zap.Logger) (*Service, error) {
	if js == nil {
		return nil, fmt.Errorf("JetStream context cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxDeliver == 0 {
		maxDeliver = 5
	}
	if publishMaxRetries == 0 {
		publishMaxRetries = 3
	}
	if responseStream == "" {
		responseStream = DefaultResponseStream
	}
	if responseSubject == "" {
		responseSubject = DefaultResponseSubject
	}
	return &Service{
		js:                js,
		logger:            logger,
		maxDeliver:        maxDeliver,
		publishMaxRetries: publishMaxRetries,
		retryDelay:        time.Second,
		responseStream:    responseStream,
		responseSubject:   responseSubject,
	}, nil
}

// Stream and subject defaults.
const (
	DefaultRequestStream   = "DELPHI_REQUESTS"
	DefaultRequestSubject  = "DELPHI_REQUESTS.process"
	DefaultConsumer        = "delphi-workers"
	DefaultResponseStream  = "DELPHI_RESPONSES"
	DefaultResponseSubject = "delphi.response"
)

// EnsureStream creates the stream if it does not exist.
func (s *Service) EnsureStream(streamName string) error {
	streamInfo, err := s.js.StreamInfo(streamName)
	if err != nil {
		if err != nats.ErrStreamNotFound {
			return fmt.Errorf("getting stream info for %q: %w", streamName, err)
		}
		cfg := &nats.StreamConfig{
			Name:     streamName,
			Subjects: []string{fmt.Sprintf("%s.*", streamName)},
			Storage:  nats.FileStorage,
			MaxAge:   24 * time.Hour,
			MaxMsgs:  100000,
			Replicas: 1,
		}
		if _, err := s.js.AddStream(cfg); err != nil {
			return fmt.Errorf("creating stream %q: %w", streamName, err)
		}
		s.logger.Info("created JetStream stream",
			zap.String("stream", streamName),
			zap.Strings("subjects", cfg.Subjects))
		return nil
	}
	s.logger.Debug("JetStream stream exists",
		zap.String("stream", streamName),
		zap.Uint64("messages", streamInfo.State.Msgs))
	return nil
}

// EnsureConsumer creates the durable consumer on the stream if it does not
// exist.
func (s *Service) EnsureConsumer(streamName, consumerName string) error {
	consumerInfo, err := s.js.ConsumerInfo(streamName, consumerName)
	if err != nil {
		if err != nats.ErrConsumerNotFound {
			return fmt.Errorf("getting consumer info for %q on %q: %w", consumerName, streamName, err)
		}
		cfg := &nats.ConsumerConfig{
			Durable:       consumerName,
			AckPolicy:     nats.AckExplicitPolicy,
			DeliverPolicy: nats.DeliverAllPolicy,
			MaxAckPending: 1000,
			MaxDeliver:    s.maxDeliver,
		}
		if _, err := s.js.AddConsumer(streamName, cfg); err != nil {
			return fmt.Errorf("creating consumer %q on %q: %w", consumerName, streamName, err)
		}
		s.logger.Info("created JetStream consumer",
			zap.String("stream", streamName),
			zap.String("consumer", consumerName),
			zap.Int("max_deliver", s.maxDeliver))
		return nil
	}
	s.logger.Debug("JetStream consumer exists",
		zap.String("stream", streamName),
		zap.String("consumer", consumerName),
		zap.Uint64("pending", consumerInfo.NumPending))
	return nil
}

// ensureStreamForSubject ensures a stream exists covering the subject. The
// response subject maps to the configured response stream; any other subject
// maps to a stream named after its first segment.
func (s *Service) ensureStreamForSubject(subject string) error {
	streamName := subject
	pattern := fmt.Sprintf("%s.>", subject)
	if subject == s.responseSubject {
		streamName = s.responseStream
	} else if idx := strings.IndexByte(subject, '.'); idx > 0 {
		streamName = subject[:idx]
		pattern = fmt.Sprintf("%s.>", streamName)
	}

	_, err := s.js.StreamInfo(streamName)
	if err == nil {
		return nil
	}
	if err != nats.ErrStreamNotFound {
		return fmt.Errorf("getting stream info for %q: %w", streamName, err)
	}
	cfg := &nats.StreamConfig{
		Name:     streamName,
		Subjects: []string{pattern},
		Storage:  nats.FileStorage,
		MaxAge:   24 * time.Hour,
		MaxMsgs:  100000,
		Replicas: 1,
	}
	if _, err := s.js.AddStream(cfg); err != nil {
		return fmt.Errorf("creating stream %q for subject %q: %w", streamName, subject, err)
	}
	s.logger.Info("created JetStream stream for subject",
		zap.String("stream", streamName),
		zap.String("subject_pattern", pattern))
	return nil
}

// Publish publishes a request to the given subject, creating the backing
// stream when necessary.
func (s *Service) Publish(ctx context.Context, subject string, req *Request) error {
	if subject == "" {
		return NewError("INVALID_SUBJECT", "subject cannot be empty", ErrInvalidSubject)
	}
	if req == nil {
		return NewError("INVALID_REQUEST", "request cannot be nil", ErrInvalidRequest)
	}
	if err := s.ensureStreamForSubject(subject); err != nil {
		return NewError("STREAM_ENSURE_FAILED", "ensuring stream exists", err)
	}

	data, err := req.ToBytes()
	if err != nil {
		return NewError("MARSHAL_FAILED", "marshaling request", err)
	}

	resultCh := make(chan error, 1)
	go func() {
		_, err := s.js.Publish(subject, data)
		resultCh <- err
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("publish cancelled: %w", ctx.Err())
	case err := <-resultCh:
		if err != nil {
			s.logger.Error("failed to publish request",
				zap.String("subject", subject),
				zap.String("request_id", req.RequestID),
				zap.Error(err))
			return NewError("PUBLISH_FAILED", "publishing request", err)
		}
		s.logger.Debug("published request",
			zap.String("subject", subject),
			zap.String("request_id", req.RequestID))
		return nil
	}
}

// PullRequests fetches up to batchSize requests from the durable consumer.
// Requests are not acknowledged; the caller must Ack, Nak, or Term each one.
// An empty slice, not an error, is returned when nothing arrives within the
// wait window. Undecodable deliveries are nak'd and skipped.
func (s *Service) PullRequests(ctx context.Context, stream, consumer string, batchSize int) ([]*Request, error) {
	if stream == "" || consumer == "" {
		return nil, fmt.Errorf("stream and consumer names are required")
	}
	if batchSize <= 0 {
		batchSize = 10
	}

	type result struct {
		reqs []*Request
		err  error
	}
	resultCh := make(chan result, 1)

	go func() {
		sub, err := s.js.PullSubscribe("", consumer, nats.Bind(stream, consumer))
		if err != nil {
			resultCh <- result{err: err}
			return
		}
		defer sub.Unsubscribe()

		timeout := 3 * time.Second
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining > 0 && remaining < timeout {
				timeout = remaining
			}
		}

		msgs, err := sub.Fetch(batchSize, nats.MaxWait(timeout))
		if err != nil {
			if err == nats.ErrTimeout {
				resultCh <- result{reqs: []*Request{}}
				return
			}
			resultCh <- result{err: err}
			return
		}

		reqs := make([]*Request, 0, len(msgs))
		for _, msg := range msgs {
			req, err := RequestFromNATSMsg(msg)
			if err != nil {
				s.logger.Warn("dropping undecodable request", zap.Error(err))
				_ = msg.Nak()
				continue
			}
			reqs = append(reqs, req)
		}
		resultCh <- result{reqs: reqs}
	}()

	select {
	case <-ctx.Done():
		if ctx.Err() == context.Canceled {
			s.logger.Debug("request pull cancelled during shutdown",
				zap.String("stream", stream),
				zap.String("consumer", consumer))
		}
		return nil, fmt.Errorf("pull cancelled: %w", ctx.Err())
	case res := <-resultCh:
		if res.err != nil {
			s.logger.Error("failed to pull requests",
				zap.String("stream", stream),
				zap.String("consumer", consumer),
				zap.Error(res.err))
			return nil, NewError("PULL_FAILED", "pulling requests from JetStream", res.err)
		}
		return res.reqs, nil
	}
}

// PublishResponse publishes a response to the configured response subject,
// retrying transient publish failures with a linear backoff.
func (s *Service) PublishResponse(ctx context.Context, resp *Response) error {
	if resp == nil {
		return NewError("INVALID_RESPONSE", "response cannot be nil", ErrInvalidRequest)
	}
	if err := s.ensureStreamForSubject(s.responseSubject); err != nil {
		return NewError("STREAM_ENSURE_FAILED", "ensuring response stream exists", err)
	}

	data, err := resp.ToBytes()
	if err != nil {
		return NewError("MARSHAL_FAILED", "marshaling response", err)
	}

	var publishErr error
	for attempt := 1; attempt <= s.publishMaxRetries; attempt++ {
		_, publishErr = s.js.Publish(s.responseSubject, data)
		if publishErr == nil {
			break
		}
		if attempt < s.publishMaxRetries {
			s.logger.Warn("failed to publish response, retrying",
				zap.String("request_id", resp.RequestID),
				zap.Int("attempt", attempt),
				zap.Int("max_retries", s.publishMaxRetries),
				zap.Error(publishErr))
			select {
			case <-time.After(time.Duration(attempt) * s.retryDelay):
			case <-ctx.Done():
				return fmt.Errorf("publish cancelled: %w", ctx.Err())
			}
		}
	}
	if publishErr != nil {
		s.logger.Error("failed to publish response after all retries",
			zap.String("request_id", resp.RequestID),
			zap.Int("attempts", s.publishMaxRetries),
			zap.Error(publishErr))
		return NewError("PUBLISH_FAILED", "publishing response after retries", fmt.Errorf("%w: %v", ErrPublishFailed, publishErr))
	}

	s.logger.Debug("published response",
		zap.String("request_id", resp.RequestID),
		zap.String("status", resp.Status),
		zap.String("subject", s.responseSubject))
	return nil
}

// ReportSuccess publishes the successful response and acknowledges the
// request. The request is nak'd when the response cannot be published so it
// is processed again.
func (s *Service) ReportSuccess(ctx context.Context, req *Request, resp *Response) error {
	if err := s.PublishResponse(ctx, resp); err != nil {
		_ = req.Nak()
		return err
	}
	if err := req.Ack(); err != nil {
		s.logger.Error("failed to acknowledge request",
			zap.String("request_id", req.RequestID),
			zap.Error(err))
		return fmt.Errorf("acknowledging request: %w", err)
	}
	return nil
}

// ReportError publishes a failed response for the request's processing
// error, then acknowledges or negatively acknowledges the request depending
// on whether the failure is retryable.
func (s *Service) ReportError(ctx context.Context, req *Request, procErr error) error {
	code, retryable := classify(procErr)
	resp := NewResponse(req.RequestID).
		WithError(code, procErr.Error(), retryable).
		WithMetadata(req.Metadata)

	s.logger.Info("publishing error response",
		zap.String("request_id", req.RequestID),
		zap.String("code", code),
		zap.Bool("retryable", retryable))

	if err := s.PublishResponse(ctx, resp); err != nil {
		_ = req.Nak()
		return fmt.Errorf("publishing error response: %w", err)
	}
	if retryable {
		_ = req.Nak()
	} else {
		_ = req.Ack()
	}
	return nil
}
