package classifier

import (
	"strconv"

	"github.com/wehubfusion/Delphi/pkg/query"
)

// BayesRole is the baseline role classifier: naive Bayes over the entity's
// own text plus its context, the tokens around the entity and the types of
// the other entities in the query. Each entity type gets its own instance.
type BayesRole struct {
	model *bayesModel
}

// NewBayesRole returns an unfitted baseline role classifier.
func NewBayesRole() *BayesRole {
	return &BayesRole{}
}

// Fit trains on entity occurrences with known roles.
func (c *BayesRole) Fit(examples []RoleExample) error {
	if len(examples) == 0 {
		return ErrNoExamples
	}
	model := newBayesModel()
	for _, ex := range examples {
		model.observe(ex.Role, roleFeatures(ex.Query, ex.Entities, ex.Index))
	}
	model.finalize()
	c.model = model
	return nil
}

// Predict returns the most likely role for the entity at index.
func (c *BayesRole) Predict(q *query.Query, entities []*query.QueryEntity, index int) (string, error) {
	ranked, err := c.PredictProba(q, entities, index)
	if err != nil {
		return "", err
	}
	return ranked[0].Label, nil
}

// PredictProba returns all roles ranked by probability.
func (c *BayesRole) PredictProba(q *query.Query, entities []*query.QueryEntity, index int) ([]Scored, error) {
	if !c.model.fitted() {
		return nil, ErrNotFitted
	}
	return c.model.score(roleFeatures(q, entities, index)), nil
}

// Roles returns the sorted role set.
func (c *BayesRole) Roles() []string {
	if !c.model.fitted() {
		return nil
	}
	return c.model.labels()
}

// Dump serializes the fitted model to JSON.
func (c *BayesRole) Dump() ([]byte, error) {
	if !c.model.fitted() {
		return nil, ErrNotFitted
	}
	return c.model.marshal()
}

// Load restores a model dumped by Dump.
func (c *BayesRole) Load(data []byte) error {
	model := newBayesModel()
	if err := model.unmarshal(data); err != nil {
		return err
	}
	c.model = model
	return nil
}

// roleFeatures extracts the feature bag for one entity occurrence: the
// entity text and type, up to two tokens on either side keyed by offset,
// and the types of the sibling entities.
func roleFeatures(q *query.Query, entities []*query.QueryEntity, index int) []string {
	if index < 0 || index >= len(entities) {
		return nil
	}
	target := entities[index]
	features := []string{
		"text:" + target.Entity.Text,
		"type:" + target.Entity.Type,
	}

	tokens := q.Tokens()
	first, last := -1, -1
	for i, tok := range tokens {
		within := tok.Span.Start >= target.Span.Start && tok.Span.End <= target.Span.End
		if within || tok.Span.Overlaps(target.Span) {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first >= 0 {
		for offset := 1; offset <= 2; offset++ {
			if first-offset >= 0 {
				features = append(features, "before"+strconv.Itoa(offset)+":"+tokens[first-offset].Text)
			}
			if last+offset < len(tokens) {
				features = append(features, "after"+strconv.Itoa(offset)+":"+tokens[last+offset].Text)
			}
		}
	}

	for i, sibling := range entities {
		if i == index {
			continue
		}
		features = append(features, "other:"+sibling.Entity.Type)
	}
	return features
}
