package nlp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/Delphi/pkg/query"
)

func spanned(entityType string, start, end int, text string) *query.QueryEntity {
	return &query.QueryEntity{
		Entity: query.Entity{Text: text, Type: entityType},
		Span:   query.NewSpan(start, end),
	}
}

func TestAlignEntitiesEmptyInput(t *testing.T) {
	assert.Nil(t, alignEntities(nil))
	assert.Empty(t, alignEntities([][]*query.QueryEntity{{}}))
}

func TestAlignEntitiesGroupsByTypeAndOverlap(t *testing.T) {
	reference := []*query.QueryEntity{
		spanned("number", 5, 5, "2"),
		spanned("city", 18, 22, "miami"),
	}
	second := []*query.QueryEntity{
		spanned("number", 5, 6, "to"),
		spanned("city", 17, 22, "miami"),
	}
	third := []*query.QueryEntity{
		spanned("city", 18, 22, "miami"),
	}

	groups := alignEntities([][]*query.QueryEntity{reference, second, third})
	require.Len(t, groups, 2)
	assert.Equal(t, []*query.QueryEntity{reference[0], second[0]}, groups[0])
	assert.Equal(t, []*query.QueryEntity{reference[1], second[1], third[0]}, groups[1])
}

func TestAlignEntitiesTypeMustMatch(t *testing.T) {
	reference := []*query.QueryEntity{spanned("city", 0, 5, "boston")}
	hypothesis := []*query.QueryEntity{spanned("number", 0, 5, "boston")}

	groups := alignEntities([][]*query.QueryEntity{reference, hypothesis})
	require.Len(t, groups, 1)
	assert.Len(t, groups[0], 1, "overlapping span of a different type must not join")
}

func TestAlignEntitiesDropsUnmatched(t *testing.T) {
	reference := []*query.QueryEntity{spanned("city", 20, 25, "denver")}
	hypothesis := []*query.QueryEntity{
		spanned("city", 0, 5, "boston"), // no overlapping group
		spanned("city", 20, 25, "denver"),
	}

	groups := alignEntities([][]*query.QueryEntity{reference, hypothesis})
	require.Len(t, groups, 1)
	require.Len(t, groups[0], 2)
	assert.Equal(t, "denver", groups[0][1].Entity.Text)
}

func TestAlignEntitiesScansForwardOnly(t *testing.T) {
	// Once a transcript's entity joins the second group, a later entity of
	// that transcript cannot reach back to the first.
	reference := []*query.QueryEntity{
		spanned("city", 0, 5, "boston"),
		spanned("city", 10, 15, "denver"),
	}
	hypothesis := []*query.QueryEntity{
		spanned("city", 10, 15, "denver"),
		spanned("city", 0, 5, "boston"),
	}

	groups := alignEntities([][]*query.QueryEntity{reference, hypothesis})
	require.Len(t, groups, 2)
	assert.Len(t, groups[0], 1, "out-of-order entity must not join an earlier group")
	require.Len(t, groups[1], 2)
	assert.Equal(t, "denver", groups[1][1].Entity.Text)
}

func TestAlignEntitiesSplitMentionSharesGroup(t *testing.T) {
	// One reference mention, recognized as two fragments by a hypothesis:
	// both fragments land in the same group.
	reference := []*query.QueryEntity{spanned("city", 0, 9, "new york")}
	hypothesis := []*query.QueryEntity{
		spanned("city", 0, 3, "new"),
		spanned("city", 4, 9, "york"),
	}

	groups := alignEntities([][]*query.QueryEntity{reference, hypothesis})
	require.Len(t, groups, 1)
	assert.Len(t, groups[0], 3)
}

func TestAlignEntitiesWidensSingleCharacterSpans(t *testing.T) {
	// A one-character recognition still joins a group starting at the same
	// offset even though the raw ranges share only a boundary.
	reference := []*query.QueryEntity{spanned("number", 5, 7, "two")}
	hypothesis := []*query.QueryEntity{spanned("number", 5, 5, "2")}

	groups := alignEntities([][]*query.QueryEntity{reference, hypothesis})
	require.Len(t, groups, 1)
	assert.Len(t, groups[0], 2)
}

func TestGroupCandidatesDeduplicates(t *testing.T) {
	group := []*query.QueryEntity{
		spanned("city", 18, 22, "miami"),
		spanned("city", 17, 22, "miami"),
		spanned("city", 18, 22, "maybe"),
	}

	candidates := groupCandidates(group)
	require.Len(t, candidates, 2)
	assert.Equal(t, "miami", candidates[0].Text)
	assert.Equal(t, "maybe", candidates[1].Text)
	assert.Equal(t, "city", candidates[0].Type)
}

func TestGroupCandidatesFallsBackToRawText(t *testing.T) {
	qe := spanned("city", 0, 5, "")
	qe.RawText = "Boston"

	candidates := groupCandidates([]*query.QueryEntity{qe})
	require.Len(t, candidates, 1)
	assert.Equal(t, "Boston", candidates[0].Text)
}
