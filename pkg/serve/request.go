package serve

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/wehubfusion/Delphi/pkg/query"
)

// Request is one understanding request pulled from the request stream.
// Supply either Text or, for speech input, Transcripts holding the
// recognizer's n-best hypotheses with the most likely first.
type Request struct {
	// RequestID correlates the request with its response.
	RequestID string `json:"requestId"`

	Text        string   `json:"text,omitempty"`
	Transcripts []string `json:"transcripts,omitempty"`

	// AllowedIntents restricts classification to "domain.intent" or
	// "domain.*" label paths.
	AllowedIntents []string `json:"allowedIntents,omitempty"`

	// Language is a BCP 47 tag overriding the engine default, e.g. "en-US".
	Language string `json:"language,omitempty"`

	// Timestamp is the RFC 3339 time the utterance was spoken, used for
	// relative time resolution.
	Timestamp string `json:"timestamp,omitempty"`

	// Verbose attaches per-tier confidence distributions to the result.
	Verbose bool `json:"verbose,omitempty"`

	// Metadata holds caller key-value pairs echoed back on the response.
	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedAt string `json:"createdAt"`

	// natsMsg holds the delivery for acknowledgment, never serialized.
	natsMsg *nats.Msg
}

// NewRequest creates a request for a single utterance text.
func NewRequest(text string) *Request {
	return &Request{
		RequestID: uuid.NewString(),
		Text:      text,
		CreatedAt: time.Now().Format(time.RFC3339),
	}
}

// NewTranscriptsRequest creates a request for n-best speech transcripts.
func NewTranscriptsRequest(transcripts []string) *Request {
	return &Request{
		RequestID:   uuid.NewString(),
		Transcripts: transcripts,
		CreatedAt:   time.Now().Format(time.RFC3339),
	}
}

// WithAllowedIntents restricts the request to the given label paths.
func (r *Request) WithAllowedIntents(paths ...string) *Request {
	r.AllowedIntents = paths
	return r
}

// WithLanguage sets the utterance language.
func (r *Request) WithLanguage(tag string) *Request {
	r.Language = tag
	return r
}

// WithTimestamp sets the utterance time.
func (r *Request) WithTimestamp(ts time.Time) *Request {
	r.Timestamp = ts.Format(time.RFC3339)
	return r
}

// WithVerbose requests per-tier confidence distributions.
func (r *Request) WithVerbose() *Request {
	r.Verbose = true
	return r
}

// WithMetadata attaches a caller key-value pair.
func (r *Request) WithMetadata(key, value string) *Request {
	if r.Metadata == nil {
		r.Metadata = make(map[string]string)
	}
	r.Metadata[key] = value
	return r
}

// ToBytes serializes the request to JSON.
func (r *Request) ToBytes() ([]byte, error) {
	return json.Marshal(r)
}

// RequestFromBytes deserializes a request from JSON.
func RequestFromBytes(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// RequestFromNATSMsg decodes a delivered JetStream message into a Request,
// retaining the delivery so the request can be acknowledged.
func RequestFromNATSMsg(msg *nats.Msg) (*Request, error) {
	req, err := RequestFromBytes(msg.Data)
	if err != nil {
		return nil, err
	}
	req.natsMsg = msg
	return req, nil
}

// Ack acknowledges the delivery so it is not redelivered. A request that
// was not pulled from a stream acknowledges as a no-op.
func (r *Request) Ack() error {
	if r.natsMsg == nil || r.natsMsg.Reply == "" {
		return nil
	}
	return r.natsMsg.Ack()
}

// Nak negatively acknowledges the delivery for redelivery.
func (r *Request) Nak() error {
	if r.natsMsg == nil || r.natsMsg.Reply == "" {
		return nil
	}
	return r.natsMsg.Nak()
}

// Term removes the delivery from the stream without processing it.
func (r *Request) Term() error {
	if r.natsMsg == nil || r.natsMsg.Reply == "" {
		return nil
	}
	return r.natsMsg.Term()
}

// NATSMsg returns the underlying delivery, or nil when the request was not
// pulled from a stream.
func (r *Request) NATSMsg() *nats.Msg {
	return r.natsMsg
}

// Response is the outcome of one request, published to the response stream.
type Response struct {
	RequestID string `json:"requestId"`

	// Status is "ok" or "failed".
	Status string `json:"status"`

	// Result carries the processed query when Status is "ok".
	Result *query.ProcessedQuery `json:"result,omitempty"`

	// Error describes the failure when Status is "failed".
	Error *ResponseError `json:"error,omitempty"`

	DurationMs int64             `json:"durationMs,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  string            `json:"createdAt"`
}

// ResponseError carries a machine-readable failure code and whether the
// request is worth redelivering.
type ResponseError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// NewResponse creates an empty successful response for the given request.
func NewResponse(requestID string) *Response {
	return &Response{
		RequestID: requestID,
		Status:    StatusOK,
		CreatedAt: time.Now().Format(time.RFC3339),
	}
}

// Response status values.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// WithResult attaches the processed query.
func (r *Response) WithResult(result *query.ProcessedQuery) *Response {
	r.Result = result
	r.Status = StatusOK
	return r
}

// WithError marks the response failed with the given code and message.
func (r *Response) WithError(code, message string, retryable bool) *Response {
	r.Error = &ResponseError{Code: code, Message: message, Retryable: retryable}
	r.Status = StatusFailed
	return r
}

// WithDuration records how long processing took.
func (r *Response) WithDuration(d time.Duration) *Response {
	r.DurationMs = d.Milliseconds()
	return r
}

// WithMetadata copies the request metadata onto the response.
func (r *Response) WithMetadata(metadata map[string]string) *Response {
	if len(metadata) > 0 {
		r.Metadata = metadata
	}
	return r
}

// ToBytes serializes the response to JSON.
func (r *Response) ToBytes() ([]byte, error) {
	return json.Marshal(r)
}

// ResponseFromBytes deserializes a response from JSON.
func ResponseFromBytes(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ResponseFromNATSMsg decodes a delivered JetStream message into a Response.
func ResponseFromNATSMsg(msg *nats.Msg) (*Response, error) {
	return ResponseFromBytes(msg.Data)
}

// OK reports whether the request was processed successfully.
func (r *Response) OK() bool { return r.Status == StatusOK }
