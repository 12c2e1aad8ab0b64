package classifier

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/wehubfusion/Delphi/pkg/query"
)

// ExactResolver is the baseline entity resolver. It indexes mapping entries
// and gazetteer phrases by lowercased surface form and resolves by exact
// lookup: a canonical-name match scores 1.0, a whitelist match 0.9, and a
// bare gazetteer match 0.5 with the phrase itself as the canonical value.
type ExactResolver struct {
	model *resolverModel
}

type resolverModel struct {
	// Index maps a lowercased surface form to its ranked values.
	Index map[string][]query.ResolvedValue `json:"index"`
}

// NewExactResolver returns an empty resolver.
func NewExactResolver() *ExactResolver {
	return &ExactResolver{}
}

// FitResolver indexes the mapping entries and gazetteer phrases.
func (r *ExactResolver) FitResolver(entries []MappingEntry, gazetteer []string) error {
	index := make(map[string][]query.ResolvedValue)
	add := func(surface string, value query.ResolvedValue) {
		surface = strings.ToLower(strings.TrimSpace(surface))
		if surface == "" {
			return
		}
		for _, existing := range index[surface] {
			if existing.CName == value.CName && existing.ID == value.ID {
				return
			}
		}
		index[surface] = append(index[surface], value)
	}

	for _, entry := range entries {
		add(entry.CName, query.ResolvedValue{CName: entry.CName, ID: entry.ID, Score: 1})
		for _, surface := range entry.Whitelist {
			add(surface, query.ResolvedValue{CName: entry.CName, ID: entry.ID, Score: 0.9})
		}
	}
	for _, phrase := range gazetteer {
		add(phrase, query.ResolvedValue{CName: phrase, Score: 0.5})
	}

	for surface := range index {
		values := index[surface]
		sort.SliceStable(values, func(i, j int) bool { return values[i].Score > values[j].Score })
		index[surface] = values
	}
	r.model = &resolverModel{Index: index}
	return nil
}

// Resolve looks each candidate's text up in the index and merges the hits,
// keeping the best score per canonical value. Candidates are tried in order,
// so earlier transcripts dominate ties. Unknown text resolves to nil without
// error.
func (r *ExactResolver) Resolve(candidates []query.Entity) ([]query.ResolvedValue, error) {
	if r.model == nil {
		return nil, ErrNotFitted
	}
	var out []query.ResolvedValue
	seen := make(map[string]bool)
	for _, candidate := range candidates {
		values := r.model.Index[strings.ToLower(strings.TrimSpace(candidate.Text))]
		for _, v := range values {
			dedupe := v.CName + "\x00" + v.ID
			if seen[dedupe] {
				continue
			}
			seen[dedupe] = true
			out = append(out, v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// Dump serializes the index to JSON.
func (r *ExactResolver) Dump() ([]byte, error) {
	if r.model == nil {
		return nil, ErrNotFitted
	}
	return json.Marshal(r.model)
}

// Load restores an index dumped by Dump.
func (r *ExactResolver) Load(data []byte) error {
	var model resolverModel
	if err := json.Unmarshal(data, &model); err != nil {
		return err
	}
	if model.Index == nil {
		model.Index = make(map[string][]query.ResolvedValue)
	}
	r.model = &model
	return nil
}
