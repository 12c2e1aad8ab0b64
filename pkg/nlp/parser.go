package nlp

import (
	"github.com/wehubfusion/Delphi/pkg/query"
)

// applyParserRule runs the structural parsing stage on a processed entity
// list. The rule maps head entity types to the entity types they may own;
// each dependent entity attaches to the nearest head that declares its type,
// measured by the character gap between spans, and drops out of the top-level
// list. Head types never attach as dependents, so attachment is one level
// deep. Entities no rule covers pass through unchanged.
//
// Ties in distance go to the earlier head. The input list is not modified;
// heads that gain children are replaced by copies.
func applyParserRule(rule ParserRule, entities []*query.QueryEntity) []*query.QueryEntity {
	if len(rule) == 0 || len(entities) < 2 {
		return entities
	}

	dependentOf := make(map[string]map[string]bool, len(rule))
	for head, dependents := range rule {
		set := make(map[string]bool, len(dependents))
		for _, d := range dependents {
			set[d] = true
		}
		dependentOf[head] = set
	}

	attached := make(map[int]int) // dependent index -> head index
	for i, qe := range entities {
		if _, isHead := dependentOf[qe.Entity.Type]; isHead {
			continue
		}
		head, ok := nearestHead(entities, dependentOf, i)
		if ok {
			attached[i] = head
		}
	}
	if len(attached) == 0 {
		return entities
	}

	children := make(map[int][]*query.QueryEntity)
	for dep, head := range attached {
		children[head] = append(children[head], entities[dep])
	}

	parsed := make([]*query.QueryEntity, 0, len(entities)-len(attached))
	for i, qe := range entities {
		if _, isAttached := attached[i]; isAttached {
			continue
		}
		if deps, ok := children[i]; ok {
			qe = qe.WithChildren(deps)
		}
		parsed = append(parsed, qe)
	}
	return parsed
}

func nearestHead(entities []*query.QueryEntity, dependentOf map[string]map[string]bool, dep int) (int, bool) {
	best, bestDist := -1, 0
	for i, qe := range entities {
		if i == dep {
			continue
		}
		set, isHead := dependentOf[qe.Entity.Type]
		if !isHead || !set[entities[dep].Entity.Type] {
			continue
		}
		dist := spanGap(entities[dep].Span, qe.Span)
		if best == -1 || dist < bestDist {
			best, bestDist = i, dist
		}
	}
	return best, best != -1
}

func spanGap(a, b query.Span) int {
	switch {
	case a.Start > b.End:
		return a.Start - b.End
	case b.Start > a.End:
		return b.Start - a.End
	default:
		return 0
	}
}
