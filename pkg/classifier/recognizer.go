package classifier

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/wehubfusion/Delphi/pkg/query"
)

// PhraseRecognizer is the baseline entity recognizer. It memorizes the
// normalized surface phrases of annotated entities, optionally seeded with
// gazetteers, and recognizes by greedy longest-phrase matching over the
// query's tokens. Phrases annotated with conflicting types resolve to the
// most frequent one.
type PhraseRecognizer struct {
	model      *phraseModel
	gazetteers map[string][]string
}

type phraseModel struct {
	// Phrases maps a normalized phrase to its entity type.
	Phrases map[string]string `json:"phrases"`
	// Types is the sorted set of entity types the model can produce.
	Types []string `json:"types"`
	// MaxTokens is the longest phrase length in tokens.
	MaxTokens int `json:"maxTokens"`
}

// NewPhraseRecognizer returns an unfitted recognizer.
func NewPhraseRecognizer() *PhraseRecognizer {
	return &PhraseRecognizer{gazetteers: make(map[string][]string)}
}

// AddGazetteer seeds phrases for an entity type ahead of fitting. Seeded
// phrases carry less weight than annotations, so annotated types win
// conflicts.
func (r *PhraseRecognizer) AddGazetteer(entityType string, phrases []string) {
	r.gazetteers[entityType] = append(r.gazetteers[entityType], phrases...)
}

// Fit memorizes entity phrases from the annotated examples and any seeded
// gazetteers.
func (r *PhraseRecognizer) Fit(examples []RecognizerExample) error {
	counts := make(map[string]map[string]int)
	add := func(phrase, entityType string, weight int) {
		phrase = strings.TrimSpace(phrase)
		if phrase == "" {
			return
		}
		if counts[phrase] == nil {
			counts[phrase] = make(map[string]int)
		}
		counts[phrase][entityType] += weight
	}

	for entityType, phrases := range r.gazetteers {
		for _, phrase := range phrases {
			add(phrase, entityType, 1)
		}
	}
	for _, ex := range examples {
		for _, qe := range ex.Entities {
			add(qe.Entity.Text, qe.Entity.Type, 2)
		}
	}
	if len(counts) == 0 {
		return ErrNoExamples
	}

	model := &phraseModel{Phrases: make(map[string]string, len(counts))}
	typeSet := make(map[string]bool)
	for phrase, byType := range counts {
		best, bestCount := "", 0
		for entityType, count := range byType {
			if count > bestCount || (count == bestCount && entityType < best) {
				best, bestCount = entityType, count
			}
		}
		model.Phrases[phrase] = best
		typeSet[best] = true
		if n := len(strings.Fields(phrase)); n > model.MaxTokens {
			model.MaxTokens = n
		}
	}
	for entityType := range typeSet {
		model.Types = append(model.Types, entityType)
	}
	sort.Strings(model.Types)

	r.model = model
	return nil
}

// Recognize returns the entities found in the query by longest-match
// scanning, left to right and non-overlapping.
func (r *PhraseRecognizer) Recognize(q *query.Query) ([]*query.QueryEntity, error) {
	if r.model == nil {
		return nil, ErrNotFitted
	}
	tokens := q.Tokens()
	var found []*query.QueryEntity
	for i := 0; i < len(tokens); {
		matched := 0
		for width := min(r.model.MaxTokens, len(tokens)-i); width > 0; width-- {
			phrase := joinTokens(tokens[i : i+width])
			entityType, ok := r.model.Phrases[phrase]
			if !ok {
				continue
			}
			span := query.Span{
				Start: tokens[i].Span.Start,
				End:   tokens[i+width-1].Span.End,
			}
			found = append(found, query.NewQueryEntity(q, span, entityType, ""))
			matched = width
			break
		}
		if matched == 0 {
			i++
			continue
		}
		i += matched
	}
	return found, nil
}

// EntityTypes returns the sorted entity types the recognizer can produce.
// The set survives Dump and Load, which is how a processing tree rebuilt
// from artifacts discovers its entity tiers.
func (r *PhraseRecognizer) EntityTypes() []string {
	if r.model == nil {
		return nil
	}
	return r.model.Types
}

// Dump serializes the fitted model to JSON.
func (r *PhraseRecognizer) Dump() ([]byte, error) {
	if r.model == nil {
		return nil, ErrNotFitted
	}
	return json.Marshal(r.model)
}

// Load restores a model dumped by Dump.
func (r *PhraseRecognizer) Load(data []byte) error {
	var model phraseModel
	if err := json.Unmarshal(data, &model); err != nil {
		return err
	}
	if model.Phrases == nil {
		model.Phrases = make(map[string]string)
	}
	r.model = &model
	return nil
}

func joinTokens(tokens []query.Token) string {
	parts := make([]string, len(tokens))
	for i, tok := range tokens {
		parts[i] = tok.Text
	}
	return strings.Join(parts, " ")
}
