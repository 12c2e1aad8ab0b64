package nlp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/Delphi/pkg/query"
)

func TestApplyParserRuleAttachesToNearestHead(t *testing.T) {
	rule := ParserRule{"dish": {"quantity", "size"}}
	entities := []*query.QueryEntity{
		spanned("quantity", 0, 2, "two"),
		spanned("dish", 4, 9, "burger"),
		spanned("size", 11, 15, "large"),
		spanned("dish", 17, 21, "pizza"),
	}

	parsed := applyParserRule(rule, entities)
	require.Len(t, parsed, 2)
	assert.Equal(t, "burger", parsed[0].Entity.Text)
	assert.Equal(t, "pizza", parsed[1].Entity.Text)

	// quantity is 2 characters from burger and 15 from pizza; size is 2
	// from both, so the tie goes to the earlier head.
	require.Len(t, parsed[0].Children, 2)
	assert.ElementsMatch(t,
		[]string{"two", "large"},
		[]string{parsed[0].Children[0].Entity.Text, parsed[0].Children[1].Entity.Text})
	assert.Empty(t, parsed[1].Children)
}

func TestApplyParserRuleSplitsDependentsBetweenHeads(t *testing.T) {
	rule := ParserRule{"dish": {"quantity"}}
	entities := []*query.QueryEntity{
		spanned("quantity", 0, 2, "two"),
		spanned("dish", 4, 9, "burger"),
		spanned("dish", 14, 18, "pizza"),
		spanned("quantity", 20, 24, "three"),
	}

	parsed := applyParserRule(rule, entities)
	require.Len(t, parsed, 2)
	require.Len(t, parsed[0].Children, 1)
	assert.Equal(t, "two", parsed[0].Children[0].Entity.Text)
	require.Len(t, parsed[1].Children, 1)
	assert.Equal(t, "three", parsed[1].Children[0].Entity.Text)
}

func TestApplyParserRuleLeavesUncoveredTypesAtTopLevel(t *testing.T) {
	rule := ParserRule{"dish": {"quantity"}}
	entities := []*query.QueryEntity{
		spanned("dish", 0, 5, "burger"),
		spanned("color", 7, 9, "red"),
	}

	parsed := applyParserRule(rule, entities)
	require.Len(t, parsed, 2)
	assert.Equal(t, "color", parsed[1].Entity.Type)
	assert.Empty(t, parsed[0].Children)
}

func TestApplyParserRuleHeadsNeverAttach(t *testing.T) {
	// A type that appears as a head stays top-level even when another head
	// declares it as a dependent.
	rule := ParserRule{
		"dish":  {"sauce"},
		"sauce": {"quantity"},
	}
	entities := []*query.QueryEntity{
		spanned("dish", 0, 5, "burger"),
		spanned("sauce", 7, 11, "mayo"),
		spanned("quantity", 13, 17, "extra"),
	}

	parsed := applyParserRule(rule, entities)
	require.Len(t, parsed, 2)
	assert.Equal(t, "dish", parsed[0].Entity.Type)
	assert.Equal(t, "sauce", parsed[1].Entity.Type)
	require.Len(t, parsed[1].Children, 1)
	assert.Equal(t, "quantity", parsed[1].Children[0].Entity.Type)
}

func TestApplyParserRuleOverlapCountsAsZeroDistance(t *testing.T) {
	rule := ParserRule{"dish": {"quantity"}}
	entities := []*query.QueryEntity{
		spanned("dish", 0, 3, "combo"),
		spanned("quantity", 8, 12, "three"),
		spanned("dish", 10, 15, "burgers"),
	}

	parsed := applyParserRule(rule, entities)
	require.Len(t, parsed, 2)
	assert.Empty(t, parsed[0].Children)
	require.Len(t, parsed[1].Children, 1)
	assert.Equal(t, "three", parsed[1].Children[0].Entity.Text)
}

func TestApplyParserRulePassThrough(t *testing.T) {
	entities := []*query.QueryEntity{
		spanned("quantity", 0, 2, "two"),
		spanned("dish", 4, 9, "burger"),
	}

	parsed := applyParserRule(nil, entities)
	assert.Equal(t, entities, parsed)

	single := entities[:1]
	parsed = applyParserRule(ParserRule{"dish": {"quantity"}}, single)
	assert.Equal(t, single, parsed)

	// No dependent has a head to attach to.
	parsed = applyParserRule(ParserRule{"topping": {"quantity"}}, entities)
	assert.Equal(t, entities, parsed)
}

func TestApplyParserRuleDoesNotMutateInput(t *testing.T) {
	rule := ParserRule{"dish": {"quantity"}}
	entities := []*query.QueryEntity{
		spanned("quantity", 0, 2, "two"),
		spanned("dish", 4, 9, "burger"),
	}

	parsed := applyParserRule(rule, entities)
	require.Len(t, parsed, 1)
	require.Len(t, parsed[0].Children, 1)
	assert.Nil(t, entities[1].Children, "the input head must stay untouched")
	assert.NotSame(t, entities[1], parsed[0])
}
