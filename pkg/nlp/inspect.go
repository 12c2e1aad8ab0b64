package nlp

import (
	"context"

	"go.uber.org/zap"

	"github.com/wehubfusion/Delphi/pkg/markup"
	"github.com/wehubfusion/Delphi/pkg/query"
)

// Inspection compares the gold labels of one marked-up query against what
// the engine predicts for its plain text. Markup strings are in annotation
// syntax, so gold and predicted entities diff readably.
type Inspection struct {
	Text            string
	GoldDomain      string
	GoldIntent      string
	GoldMarkup      string
	PredictedMarkup string
	Predicted       *query.ProcessedQuery

	// Correctness flags; an empty gold label counts as correct since
	// there is nothing to contradict.
	DomainCorrect   bool
	IntentCorrect   bool
	EntitiesCorrect bool
}

// Inspect processes the plain text of a marked-up query and reports how the
// predictions compare to the annotation. Gold domain and intent come from
// the caller because annotation files carry them in their location, not in
// the markup itself. The comparison is logged as well as returned.
func (e *Engine) Inspect(ctx context.Context, marked, goldDomain, goldIntent string) (*Inspection, error) {
	q, goldEntities, err := markup.Parse(e.factory, marked)
	if err != nil {
		return nil, err
	}
	pq, err := e.Process(ctx, ProcessRequest{Text: q.Text(), Verbose: true})
	if err != nil {
		return nil, err
	}

	insp := &Inspection{
		Text:            q.Text(),
		GoldDomain:      goldDomain,
		GoldIntent:      goldIntent,
		GoldMarkup:      markup.Dump(q, goldEntities),
		PredictedMarkup: markup.Dump(pq.Query, pq.Entities),
		Predicted:       pq,
	}
	insp.DomainCorrect = goldDomain == "" || goldDomain == pq.Domain
	insp.IntentCorrect = goldIntent == "" || goldIntent == pq.Intent
	insp.EntitiesCorrect = insp.GoldMarkup == insp.PredictedMarkup

	e.logger.Info("inspection",
		zap.String("text", insp.Text),
		zap.String("goldDomain", goldDomain),
		zap.String("predictedDomain", pq.Domain),
		zap.String("goldIntent", goldIntent),
		zap.String("predictedIntent", pq.Intent),
		zap.String("goldMarkup", insp.GoldMarkup),
		zap.String("predictedMarkup", insp.PredictedMarkup),
		zap.Bool("domainCorrect", insp.DomainCorrect),
		zap.Bool("intentCorrect", insp.IntentCorrect),
		zap.Bool("entitiesCorrect", insp.EntitiesCorrect))
	return insp, nil
}
