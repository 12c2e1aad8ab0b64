package nlp

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/text/language"

	"github.com/wehubfusion/Delphi/pkg/dispatch"
	"github.com/wehubfusion/Delphi/pkg/query"
	"github.com/wehubfusion/Delphi/pkg/taxonomy"
)

// ProcessRequest describes one processing call. Supply either Text or, for
// speech input, Transcripts holding the recognizer's n-best hypotheses with
// the most likely first; when Transcripts is set, Text is ignored.
//
// AllowedIntents restricts selection with "domain.intent" or "domain.*"
// label paths. AllowedClasses restricts with an already expanded selection;
// supplying both is an error.
type ProcessRequest struct {
	Text        string
	Transcripts []string

	AllowedIntents []string
	AllowedClasses taxonomy.Selection

	// Language and Timestamp override the factory defaults for this
	// request's queries.
	Language  language.Tag
	Timestamp time.Time

	// Verbose attaches per-tier confidence distributions to the result.
	Verbose bool
}

// Process runs one utterance through the processor tree and returns the
// selected domain and intent, the post-processed entities, and, when n-best
// transcripts were supplied, the per-transcript recognitions and their
// alignment. Returns ErrNotReady before Build or Load, ErrInvalidArgument
// when both restriction forms are supplied, ErrUnknownLabelPath for a
// restriction naming labels outside the taxonomy, and
// ErrAllowedClassesNotFound when no allowed label is ranked.
func (e *Engine) Process(ctx context.Context, req ProcessRequest) (*query.ProcessedQuery, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.root.ready {
		return nil, ErrNotReady
	}
	selection, err := e.resolveSelection(req)
	if err != nil {
		return nil, err
	}
	texts := req.Transcripts
	if len(texts) == 0 {
		texts = []string{req.Text}
	}
	queries, err := e.createQueries(ctx, texts, req)
	if err != nil {
		return nil, err
	}
	return e.processQueries(ctx, queries, selection, req.Verbose)
}

// ProcessBatch processes each text independently under the same request
// options. The batch's queries are constructed through the dispatcher in one
// submission; classification then proceeds query by query.
func (e *Engine) ProcessBatch(ctx context.Context, texts []string, req ProcessRequest) ([]*query.ProcessedQuery, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.root.ready {
		return nil, ErrNotReady
	}
	if len(texts) == 0 {
		return nil, nil
	}
	selection, err := e.resolveSelection(req)
	if err != nil {
		return nil, err
	}
	queries, err := e.createQueries(ctx, texts, req)
	if err != nil {
		return nil, err
	}
	out := make([]*query.ProcessedQuery, len(queries))
	for i, q := range queries {
		pq, err := e.processQueries(ctx, []*query.Query{q}, selection, req.Verbose)
		if err != nil {
			return nil, fmt.Errorf("processing %q: %w", texts[i], err)
		}
		out[i] = pq
	}
	return out, nil
}

func (e *Engine) resolveSelection(req ProcessRequest) (taxonomy.Selection, error) {
	if len(req.AllowedIntents) > 0 && len(req.AllowedClasses) > 0 {
		return nil, fmt.Errorf("%w: AllowedIntents and AllowedClasses are mutually exclusive", ErrInvalidArgument)
	}
	if len(req.AllowedIntents) > 0 {
		return e.tree.Expand(req.AllowedIntents)
	}
	return req.AllowedClasses, nil
}

func (e *Engine) queryOptions(req ProcessRequest) []query.QueryOption {
	var opts []query.QueryOption
	if req.Language != language.Und {
		opts = append(opts, query.WithLanguage(req.Language))
	}
	if !req.Timestamp.IsZero() {
		opts = append(opts, query.WithTimestamp(req.Timestamp))
	}
	return opts
}

// createQueries builds one query per text, through the dispatcher when the
// request carries more than one.
func (e *Engine) createQueries(ctx context.Context, texts []string, req ProcessRequest) ([]*query.Query, error) {
	opts := e.queryOptions(req)
	if len(texts) == 1 {
		return []*query.Query{e.factory.CreateQuery(texts[0], opts...)}, nil
	}
	tasks := make([]dispatch.Task, len(texts))
	for i, text := range texts {
		tasks[i] = dispatch.Task{
			Kind:       dispatch.KindCreateQuery,
			InstanceID: e.factoryID,
			Text:       text,
			Options:    opts,
		}
	}
	results, err := e.dispatcher.Run(ctx, tasks)
	if err != nil {
		return nil, err
	}
	queries := make([]*query.Query, len(results))
	for i, r := range results {
		if r.Err != nil {
			return nil, fmt.Errorf("creating query %d: %w", i, r.Err)
		}
		queries[i] = r.Query
	}
	return queries, nil
}

// processQueries drives the selection pipeline for one utterance, with
// queries[0] as the reference transcript: domain, intent, per-transcript
// entity recognition, cross-transcript alignment, per-entity role and value
// processing, and the intent's structural parsing rule if it has one.
func (e *Engine) processQueries(ctx context.Context, queries []*query.Query, selection taxonomy.Selection, verbose bool) (*query.ProcessedQuery, error) {
	ref := queries[0]

	domain, domainScores, err := e.root.selectLabel(ref, domainSet(selection), verbose)
	if err != nil {
		return nil, err
	}
	dn, ok := e.root.child(domain)
	if !ok {
		return nil, fmt.Errorf("%w: domain %q", ErrAllowedClassesNotFound, domain)
	}
	intent, intentScores, err := dn.selectLabel(ref, selection[domain], verbose)
	if err != nil {
		return nil, err
	}
	in, ok := dn.child(intent)
	if !ok {
		return nil, fmt.Errorf("%w: intent %q", ErrAllowedClassesNotFound, intent)
	}

	perTranscript, err := e.recognizeAll(ctx, in, queries)
	if err != nil {
		return nil, err
	}
	reference := perTranscript[0]

	nbest := len(queries) > 1
	var groups [][]*query.QueryEntity
	if nbest {
		groups = alignEntities(perTranscript)
	}

	processed, roleScores, err := e.processEntities(ctx, in, ref, reference, groups)
	if err != nil {
		return nil, err
	}

	if rule, ok := e.cfg.Parsers[domain+"."+intent]; ok {
		processed = applyParserRule(rule, processed)
	}

	pq := &query.ProcessedQuery{
		Query:    ref,
		Text:     ref.Text(),
		Domain:   domain,
		Intent:   intent,
		Entities: processed,
	}
	if verbose {
		entityScores := make([]map[string]float64, len(reference))
		for i, qe := range reference {
			entityScores[i] = map[string]float64{qe.Entity.Type: 1}
		}
		pq.Confidence = &query.Confidence{
			Domains:  domainScores,
			Intents:  intentScores,
			Entities: entityScores,
			Roles:    roleScores,
		}
	}
	if nbest {
		pq.NBestQueries = queries
		pq.NBestEntities = perTranscript
		pq.NBestAligned = groups
	}
	return pq, nil
}

// recognizeAll runs entity recognition over every transcript's query,
// through the dispatcher when there is more than one.
func (e *Engine) recognizeAll(ctx context.Context, in *node, queries []*query.Query) ([][]*query.QueryEntity, error) {
	if len(queries) == 1 {
		entities, err := in.RecognizeEntities(queries[0])
		if err != nil {
			return nil, err
		}
		return [][]*query.QueryEntity{entities}, nil
	}
	tasks := make([]dispatch.Task, len(queries))
	for i, q := range queries {
		tasks[i] = dispatch.Task{
			Kind:       dispatch.KindRecognizeEntities,
			InstanceID: in.id,
			Query:      q,
		}
	}
	results, err := e.dispatcher.Run(ctx, tasks)
	if err != nil {
		return nil, err
	}
	perTranscript := make([][]*query.QueryEntity, len(results))
	for i, r := range results {
		if r.Err != nil {
			return nil, fmt.Errorf("recognizing entities in transcript %d: %w", i, r.Err)
		}
		perTranscript[i] = r.Entities
	}
	return perTranscript, nil
}

// processEntities dispatches role classification and resolution for each
// reference entity. With alignment groups present, each entity's resolution
// additionally weighs the surface forms the other transcripts contributed.
func (e *Engine) processEntities(ctx context.Context, in *node, ref *query.Query, reference []*query.QueryEntity, groups [][]*query.QueryEntity) ([]*query.QueryEntity, []map[string]float64, error) {
	if len(reference) == 0 {
		return nil, nil, nil
	}
	tasks := make([]dispatch.Task, len(reference))
	for i, qe := range reference {
		en, ok := in.child(qe.Entity.Type)
		if !ok {
			return nil, nil, fmt.Errorf("no processor for entity type %q", qe.Entity.Type)
		}
		var candidates []query.Entity
		if groups != nil {
			candidates = groupCandidates(groups[i])
		}
		tasks[i] = dispatch.Task{
			Kind:       dispatch.KindProcessEntity,
			InstanceID: en.id,
			Query:      ref,
			Entities:   reference,
			Index:      i,
			Candidates: candidates,
		}
	}
	results, err := e.dispatcher.Run(ctx, tasks)
	if err != nil {
		return nil, nil, err
	}
	processed := make([]*query.QueryEntity, len(results))
	roleScores := make([]map[string]float64, len(results))
	for i, r := range results {
		if r.Err != nil {
			return nil, nil, fmt.Errorf("processing entity %d: %w", i, r.Err)
		}
		processed[i] = r.Entity
		roleScores[i] = r.RoleScores
	}
	return processed, roleScores, nil
}

func domainSet(selection taxonomy.Selection) map[string]bool {
	if len(selection) == 0 {
		return nil
	}
	set := make(map[string]bool, len(selection))
	for domain := range selection {
		set[domain] = true
	}
	return set
}
