package classifier

import (
	"github.com/wehubfusion/Delphi/pkg/query"
)

// BayesText is the baseline text classifier: multinomial naive Bayes over
// token, stem, and token-bigram features of the normalized text.
type BayesText struct {
	model *bayesModel
}

// NewBayesText returns an unfitted baseline text classifier.
func NewBayesText() *BayesText {
	return &BayesText{}
}

// Fit trains on the labeled examples.
func (c *BayesText) Fit(examples []Example) error {
	if len(examples) == 0 {
		return ErrNoExamples
	}
	model := newBayesModel()
	for _, ex := range examples {
		model.observe(ex.Label, textFeatures(ex.Query))
	}
	model.finalize()
	c.model = model
	return nil
}

// Predict returns the most likely label for the query.
func (c *BayesText) Predict(q *query.Query) (string, error) {
	ranked, err := c.PredictProba(q)
	if err != nil {
		return "", err
	}
	return ranked[0].Label, nil
}

// PredictProba returns all labels ranked by probability.
func (c *BayesText) PredictProba(q *query.Query) ([]Scored, error) {
	if !c.model.fitted() {
		return nil, ErrNotFitted
	}
	return c.model.score(textFeatures(q)), nil
}

// Labels returns the sorted label set.
func (c *BayesText) Labels() []string {
	if !c.model.fitted() {
		return nil
	}
	return c.model.labels()
}

// Dump serializes the fitted model to JSON.
func (c *BayesText) Dump() ([]byte, error) {
	if !c.model.fitted() {
		return nil, ErrNotFitted
	}
	return c.model.marshal()
}

// Load restores a model dumped by Dump.
func (c *BayesText) Load(data []byte) error {
	model := newBayesModel()
	if err := model.unmarshal(data); err != nil {
		return err
	}
	c.model = model
	return nil
}

// textFeatures extracts the feature bag for one query: each token, each
// distinct stem, and each adjacent token pair.
func textFeatures(q *query.Query) []string {
	tokens := q.Tokens()
	features := make([]string, 0, len(tokens)*3)
	for i, tok := range tokens {
		features = append(features, "tok:"+tok.Text)
		if tok.Stem != "" && tok.Stem != tok.Text {
			features = append(features, "stem:"+tok.Stem)
		}
		if i+1 < len(tokens) {
			features = append(features, "bi:"+tok.Text+" "+tokens[i+1].Text)
		}
	}
	return features
}
