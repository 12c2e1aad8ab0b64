package classifier

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wehubfusion/Delphi/pkg/query"
)

// EvalResult is the outcome for one evaluated example.
type EvalResult struct {
	Text      string `json:"text"`
	Expected  string `json:"expected"`
	Predicted string `json:"predicted"`
	Correct   bool   `json:"correct"`
}

// Evaluation summarizes a model's accuracy over a labeled test set.
type Evaluation struct {
	Total   int          `json:"total"`
	Correct int          `json:"correct"`
	Results []EvalResult `json:"results,omitempty"`
}

// Record adds one result to the evaluation.
func (e *Evaluation) Record(text, expected, predicted string) {
	correct := expected == predicted
	e.Total++
	if correct {
		e.Correct++
	}
	e.Results = append(e.Results, EvalResult{
		Text:      text,
		Expected:  expected,
		Predicted: predicted,
		Correct:   correct,
	})
}

// Accuracy returns the fraction of correct predictions, zero when nothing
// was evaluated.
func (e *Evaluation) Accuracy() float64 {
	if e.Total == 0 {
		return 0
	}
	return float64(e.Correct) / float64(e.Total)
}

func (e *Evaluation) String() string {
	return fmt.Sprintf("%d/%d correct (%.1f%%)", e.Correct, e.Total, e.Accuracy()*100)
}

// EvaluateText runs a fitted classifier over labeled examples and collects
// the results.
func EvaluateText(c Classifier, examples []Example) (*Evaluation, error) {
	eval := &Evaluation{}
	for _, ex := range examples {
		predicted, err := c.Predict(ex.Query)
		if err != nil {
			return nil, err
		}
		eval.Record(ex.Query.Text(), ex.Label, predicted)
	}
	return eval, nil
}

// EvaluateRecognizer runs a fitted recognizer over annotated examples. A
// query counts as correct only when the recognized types and spans match the
// annotation exactly.
func EvaluateRecognizer(r Recognizer, examples []RecognizerExample) (*Evaluation, error) {
	eval := &Evaluation{}
	for _, ex := range examples {
		recognized, err := r.Recognize(ex.Query)
		if err != nil {
			return nil, err
		}
		eval.Record(ex.Query.Text(), entitySignature(ex.Entities), entitySignature(recognized))
	}
	return eval, nil
}

// EvaluateRoles runs a fitted role classifier over annotated examples.
func EvaluateRoles(rc RoleClassifier, examples []RoleExample) (*Evaluation, error) {
	eval := &Evaluation{}
	for _, ex := range examples {
		predicted, err := rc.Predict(ex.Query, ex.Entities, ex.Index)
		if err != nil {
			return nil, err
		}
		eval.Record(ex.Entities[ex.Index].Entity.Text, ex.Role, predicted)
	}
	return eval, nil
}

// entitySignature flattens an entity list into a comparable string of types
// and spans, in span order.
func entitySignature(entities []*query.QueryEntity) string {
	if len(entities) == 0 {
		return "none"
	}
	sorted := make([]*query.QueryEntity, len(entities))
	copy(sorted, entities)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Span.Start < sorted[j].Span.Start
	})
	parts := make([]string, len(sorted))
	for i, qe := range sorted {
		parts[i] = qe.Entity.Type + qe.Span.String()
	}
	return strings.Join(parts, " ")
}
