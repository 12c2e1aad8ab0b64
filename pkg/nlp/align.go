package nlp

import (
	"github.com/wehubfusion/Delphi/pkg/query"
)

// alignEntities groups the entities recognized across n-best transcripts.
// The first transcript is the reference: each of its entities opens a group,
// in span order. Entities from the remaining transcripts join the first
// reference group of the same type whose span overlaps theirs, scanning
// forward from the group the transcript's previous entity joined so a
// transcript's entities can never map to groups out of order. Entities
// matching no group are dropped.
//
// A later entity of the same transcript may land in the same group as its
// predecessor: two hypotheses can split one reference mention.
func alignEntities(perTranscript [][]*query.QueryEntity) [][]*query.QueryEntity {
	if len(perTranscript) == 0 {
		return nil
	}
	groups := make([][]*query.QueryEntity, len(perTranscript[0]))
	for i, qe := range perTranscript[0] {
		groups[i] = []*query.QueryEntity{qe}
	}
	for _, entities := range perTranscript[1:] {
		pointer := 0
		for _, qe := range entities {
			for i := pointer; i < len(groups); i++ {
				ref := groups[i][0]
				if ref.Entity.Type == qe.Entity.Type && ref.Span.Overlaps(qe.Span) {
					groups[i] = append(groups[i], qe)
					pointer = i
					break
				}
			}
		}
	}
	return groups
}

// groupCandidates flattens one aligned group into the entity list a resolver
// ranks across, deduplicating repeated surface forms.
func groupCandidates(group []*query.QueryEntity) []query.Entity {
	seen := make(map[string]bool, len(group))
	candidates := make([]query.Entity, 0, len(group))
	for _, qe := range group {
		text := qe.Entity.Text
		if text == "" {
			text = qe.RawText
		}
		if seen[text] {
			continue
		}
		seen[text] = true
		candidate := qe.Entity
		candidate.Text = text
		candidates = append(candidates, candidate)
	}
	return candidates
}
