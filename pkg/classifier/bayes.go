package classifier

import (
	"encoding/json"
	"math"
	"sort"
)

// bayesModel is a multinomial naive Bayes text model with Laplace smoothing.
// It is the shared core of the baseline text and role classifiers: callers
// provide feature extraction, the model provides counting and scoring.
type bayesModel struct {
	// ClassCounts is the number of training examples per label.
	ClassCounts map[string]int `json:"classCounts"`
	// FeatureCounts maps label to feature to occurrence count.
	FeatureCounts map[string]map[string]int `json:"featureCounts"`
	// FeatureTotals is the total feature count per label.
	FeatureTotals map[string]int `json:"featureTotals"`
	// Vocabulary is the number of distinct features seen in training.
	Vocabulary int `json:"vocabulary"`
	// Examples is the total number of training examples.
	Examples int `json:"examples"`
}

func newBayesModel() *bayesModel {
	return &bayesModel{
		ClassCounts:   make(map[string]int),
		FeatureCounts: make(map[string]map[string]int),
		FeatureTotals: make(map[string]int),
	}
}

func (m *bayesModel) fitted() bool { return m != nil && m.Examples > 0 }

// observe adds one labeled feature bag to the counts.
func (m *bayesModel) observe(label string, features []string) {
	m.ClassCounts[label]++
	m.Examples++
	counts, ok := m.FeatureCounts[label]
	if !ok {
		counts = make(map[string]int)
		m.FeatureCounts[label] = counts
	}
	for _, f := range features {
		counts[f]++
		m.FeatureTotals[label]++
	}
}

// finalize computes the vocabulary size after all observations.
func (m *bayesModel) finalize() {
	vocab := make(map[string]bool)
	for _, counts := range m.FeatureCounts {
		for f := range counts {
			vocab[f] = true
		}
	}
	m.Vocabulary = len(vocab)
}

// score returns every label with its posterior probability given the feature
// bag, ranked by descending score. Probabilities are normalized to sum to 1.
func (m *bayesModel) score(features []string) []Scored {
	if !m.fitted() {
		return nil
	}
	logs := make(map[string]float64, len(m.ClassCounts))
	maxLog := math.Inf(-1)
	for label, count := range m.ClassCounts {
		ll := math.Log(float64(count) / float64(m.Examples))
		denom := float64(m.FeatureTotals[label] + m.Vocabulary)
		for _, f := range features {
			num := float64(m.FeatureCounts[label][f] + 1)
			ll += math.Log(num / denom)
		}
		logs[label] = ll
		if ll > maxLog {
			maxLog = ll
		}
	}

	var total float64
	probs := make(map[string]float64, len(logs))
	for label, ll := range logs {
		p := math.Exp(ll - maxLog)
		probs[label] = p
		total += p
	}

	ranked := make([]Scored, 0, len(probs))
	for label, p := range probs {
		ranked = append(ranked, Scored{Label: label, Score: p / total})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Label < ranked[j].Label
	})
	return ranked
}

// labels returns the sorted label set.
func (m *bayesModel) labels() []string {
	names := make([]string, 0, len(m.ClassCounts))
	for label := range m.ClassCounts {
		names = append(names, label)
	}
	sort.Strings(names)
	return names
}

func (m *bayesModel) marshal() ([]byte, error) {
	return json.Marshal(m)
}

func (m *bayesModel) unmarshal(data []byte) error {
	restored := newBayesModel()
	if err := json.Unmarshal(data, restored); err != nil {
		return err
	}
	*m = *restored
	return nil
}
