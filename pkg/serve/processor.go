package serve

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/text/language"

	"github.com/wehubfusion/Delphi/pkg/nlp"
	"github.com/wehubfusion/Delphi/pkg/query"
)

// Processor turns one request into a processed query. Implementations hold
// the business logic; the runner owns pulling, timeouts, and reporting.
type Processor interface {
	Process(ctx context.Context, req *Request) (*query.ProcessedQuery, error)
}

// EngineProcessor adapts an nlp.Engine to the Processor interface,
// translating the wire request into an engine request.
type EngineProcessor struct {
	engine *nlp.Engine
}

// NewEngineProcessor wraps a ready engine for serving.
func NewEngineProcessor(engine *nlp.Engine) (*EngineProcessor, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	return &EngineProcessor{engine: engine}, nil
}

// Process validates and converts the request and runs it through the engine.
func (p *EngineProcessor) Process(ctx context.Context, req *Request) (*query.ProcessedQuery, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request cannot be nil", ErrInvalidRequest)
	}
	if req.Text == "" && len(req.Transcripts) == 0 {
		return nil, fmt.Errorf("%w: text or transcripts required", ErrInvalidRequest)
	}

	engineReq := nlp.ProcessRequest{
		Text:           req.Text,
		Transcripts:    req.Transcripts,
		AllowedIntents: req.AllowedIntents,
		Verbose:        req.Verbose,
	}
	if req.Language != "" {
		tag, err := language.Parse(req.Language)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing language %q: %v", ErrInvalidRequest, req.Language, err)
		}
		engineReq.Language = tag
	}
	if req.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing timestamp %q: %v", ErrInvalidRequest, req.Timestamp, err)
		}
		engineReq.Timestamp = ts
	}

	return p.engine.Process(ctx, engineReq)
}
