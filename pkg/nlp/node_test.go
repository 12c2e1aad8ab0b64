package nlp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/Delphi/pkg/classifier"
	"github.com/wehubfusion/Delphi/pkg/query"
)

var nodeTestFactory = query.NewFactory(query.FactoryConfig{})

type stubClassifier struct {
	ranked []classifier.Scored
	err    error
}

func (s *stubClassifier) Fit([]classifier.Example) error { return nil }

func (s *stubClassifier) Predict(*query.Query) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.ranked[0].Label, nil
}

func (s *stubClassifier) PredictProba(*query.Query) ([]classifier.Scored, error) {
	return s.ranked, s.err
}

func (s *stubClassifier) Labels() []string {
	labels := make([]string, len(s.ranked))
	for i, r := range s.ranked {
		labels[i] = r.Label
	}
	return labels
}

func (s *stubClassifier) Dump() ([]byte, error) { return nil, nil }

func (s *stubClassifier) Load([]byte) error { return nil }

type stubRecognizer struct {
	entities []*query.QueryEntity
	err      error
}

func (s *stubRecognizer) Fit([]classifier.RecognizerExample) error { return nil }

func (s *stubRecognizer) Recognize(*query.Query) ([]*query.QueryEntity, error) {
	return s.entities, s.err
}

func (s *stubRecognizer) EntityTypes() []string { return nil }

func (s *stubRecognizer) Dump() ([]byte, error) { return nil, nil }

func (s *stubRecognizer) Load([]byte) error { return nil }

type stubRoles struct {
	ranked []classifier.Scored
	err    error
}

func (s *stubRoles) Fit([]classifier.RoleExample) error { return nil }

func (s *stubRoles) Predict(*query.Query, []*query.QueryEntity, int) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.ranked[0].Label, nil
}

func (s *stubRoles) PredictProba(*query.Query, []*query.QueryEntity, int) ([]classifier.Scored, error) {
	return s.ranked, s.err
}

func (s *stubRoles) Roles() []string { return nil }

func (s *stubRoles) Dump() ([]byte, error) { return nil, nil }

func (s *stubRoles) Load([]byte) error { return nil }

type stubResolver struct {
	values   []query.ResolvedValue
	received [][]query.Entity
	err      error
}

func (s *stubResolver) FitResolver([]classifier.MappingEntry, []string) error { return nil }

func (s *stubResolver) Resolve(candidates []query.Entity) ([]query.ResolvedValue, error) {
	s.received = append(s.received, candidates)
	return s.values, s.err
}

func (s *stubResolver) Dump() ([]byte, error) { return nil, nil }

func (s *stubResolver) Load([]byte) error { return nil }

func TestNodePath(t *testing.T) {
	root := &node{kind: kindRoot}
	domain := &node{kind: kindDomain, name: "travel", domain: "travel"}
	intent := &node{kind: kindIntent, name: "book_flight", domain: "travel"}
	entity := &node{kind: kindEntity, name: "city", domain: "travel", intent: "book_flight"}

	assert.Equal(t, "", root.path())
	assert.Equal(t, "travel", domain.path())
	assert.Equal(t, "travel.book_flight", intent.path())
	assert.Equal(t, "travel.book_flight.city", entity.path())
}

func TestNodeArtifactNames(t *testing.T) {
	root := &node{kind: kindRoot}
	domain := &node{kind: kindDomain, name: "travel"}
	intent := &node{kind: kindIntent, name: "book_flight", domain: "travel"}
	entity := &node{kind: kindEntity, name: "city", domain: "travel", intent: "book_flight"}

	assert.Equal(t, "domain_classifier.json", root.artifactName())
	assert.Equal(t, "intent_classifiers/travel.json", domain.artifactName())
	assert.Equal(t, "entity_recognizers/travel.book_flight.json", intent.artifactName())
	assert.Equal(t, "role_classifiers/travel.book_flight.city.json", entity.artifactName())
	assert.Equal(t, "entity_resolvers/travel.book_flight.city.json", entity.resolverArtifactName())
}

func TestNodeAddChildKeepsOrderSorted(t *testing.T) {
	n := &node{kind: kindRoot}
	n.addChild(&node{kind: kindDomain, name: "travel"})
	n.addChild(&node{kind: kindDomain, name: "alarm"})
	n.addChild(&node{kind: kindDomain, name: "smart_home"})

	assert.Equal(t, []string{"alarm", "smart_home", "travel"}, n.childOrder)
	c, ok := n.child("alarm")
	require.True(t, ok)
	assert.Equal(t, "alarm", c.name)
	_, ok = n.child("missing")
	assert.False(t, ok)
}

func TestSelectLabelSingleChildShortCircuits(t *testing.T) {
	n := &node{kind: kindRoot}
	n.addChild(&node{kind: kindDomain, name: "travel"})
	q := nodeTestFactory.CreateQuery("anything at all")

	label, scores, err := n.selectLabel(q, nil, false)
	require.NoError(t, err)
	assert.Equal(t, "travel", label)
	assert.Nil(t, scores)

	label, scores, err = n.selectLabel(q, nil, true)
	require.NoError(t, err)
	assert.Equal(t, "travel", label)
	assert.Equal(t, map[string]float64{"travel": 1}, scores)
}

func TestSelectLabelSingleAllowedWinsOutright(t *testing.T) {
	// With the restriction already down to one label no classifier runs,
	// and a node without one is fine.
	n := &node{kind: kindRoot}
	n.addChild(&node{kind: kindDomain, name: "travel"})
	n.addChild(&node{kind: kindDomain, name: "smart_home"})
	q := nodeTestFactory.CreateQuery("close the door")

	label, scores, err := n.selectLabel(q, map[string]bool{"travel": true}, true)
	require.NoError(t, err)
	assert.Equal(t, "travel", label)
	assert.Equal(t, map[string]float64{"travel": 1}, scores)
}

func TestSelectLabelWithoutClassifierFails(t *testing.T) {
	n := &node{kind: kindDomain, name: "travel"}
	n.addChild(&node{kind: kindIntent, name: "book_flight", domain: "travel"})
	n.addChild(&node{kind: kindIntent, name: "check_status", domain: "travel"})

	_, _, err := n.selectLabel(nodeTestFactory.CreateQuery("x"), nil, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no classifier")
}

func TestSelectLabelUnrestricted(t *testing.T) {
	ranked := []classifier.Scored{
		{Label: "travel", Score: 0.7},
		{Label: "smart_home", Score: 0.3},
	}
	n := &node{kind: kindRoot, classifier: &stubClassifier{ranked: ranked}}
	n.addChild(&node{kind: kindDomain, name: "travel"})
	n.addChild(&node{kind: kindDomain, name: "smart_home"})
	q := nodeTestFactory.CreateQuery("fly to denver")

	label, scores, err := n.selectLabel(q, nil, false)
	require.NoError(t, err)
	assert.Equal(t, "travel", label)
	assert.Nil(t, scores)

	label, scores, err = n.selectLabel(q, nil, true)
	require.NoError(t, err)
	assert.Equal(t, "travel", label)
	assert.Equal(t, map[string]float64{"travel": 0.7, "smart_home": 0.3}, scores)
}

func TestSelectLabelRestrictionTakesBestAllowed(t *testing.T) {
	ranked := []classifier.Scored{
		{Label: "travel", Score: 0.5},
		{Label: "alarm", Score: 0.3},
		{Label: "smart_home", Score: 0.2},
	}
	n := &node{kind: kindRoot, classifier: &stubClassifier{ranked: ranked}}
	for _, name := range []string{"travel", "alarm", "smart_home"} {
		n.addChild(&node{kind: kindDomain, name: name})
	}
	q := nodeTestFactory.CreateQuery("wake me up")
	allowed := map[string]bool{"alarm": true, "smart_home": true}

	label, scores, err := n.selectLabel(q, allowed, true)
	require.NoError(t, err)
	assert.Equal(t, "alarm", label, "the top-ranked allowed label wins, not the overall top")
	assert.Len(t, scores, 3)

	label, scores, err = n.selectLabel(q, allowed, false)
	require.NoError(t, err)
	assert.Equal(t, "alarm", label)
	assert.Nil(t, scores)
}

func TestSelectLabelRestrictionWithNothingRanked(t *testing.T) {
	n := &node{kind: kindRoot, classifier: &stubClassifier{ranked: []classifier.Scored{
		{Label: "travel", Score: 1},
	}}}
	n.addChild(&node{kind: kindDomain, name: "travel"})
	n.addChild(&node{kind: kindDomain, name: "smart_home"})
	n.addChild(&node{kind: kindDomain, name: "alarm"})

	_, _, err := n.selectLabel(nodeTestFactory.CreateQuery("x"), map[string]bool{"smart_home": true, "alarm": true}, false)
	assert.ErrorIs(t, err, ErrAllowedClassesNotFound)
}

func TestSelectLabelPropagatesClassifierError(t *testing.T) {
	boom := errors.New("boom")
	n := &node{kind: kindRoot, classifier: &stubClassifier{err: boom}}
	n.addChild(&node{kind: kindDomain, name: "travel"})
	n.addChild(&node{kind: kindDomain, name: "smart_home"})

	_, _, err := n.selectLabel(nodeTestFactory.CreateQuery("x"), nil, true)
	assert.ErrorIs(t, err, boom)
}

func TestRecognizeEntitiesSortsBySpan(t *testing.T) {
	out := []*query.QueryEntity{
		spanned("city", 18, 22, "miami"),
		spanned("number", 5, 5, "2"),
	}
	n := &node{kind: kindIntent, recognizer: &stubRecognizer{entities: out}}

	entities, err := n.RecognizeEntities(nodeTestFactory.CreateQuery("book 2 tickets to miami"))
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, "2", entities[0].Entity.Text)
	assert.Equal(t, "miami", entities[1].Entity.Text)
}

func TestRecognizeEntitiesWithoutRecognizer(t *testing.T) {
	n := &node{kind: kindIntent}
	entities, err := n.RecognizeEntities(nodeTestFactory.CreateQuery("status of my flight"))
	require.NoError(t, err)
	assert.Nil(t, entities)
}

func TestProcessEntitySingleRole(t *testing.T) {
	n := &node{kind: kindEntity, name: "object", singleRole: "target"}
	entities := []*query.QueryEntity{spanned("object", 10, 13, "door")}
	q := nodeTestFactory.CreateQuery("close the door")

	processed, roleScores, err := n.ProcessEntity(q, entities, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "target", processed.Entity.Role)
	assert.Equal(t, map[string]float64{"target": 1}, roleScores)
	assert.Empty(t, entities[0].Entity.Role, "the recognized entity must stay untouched")
}

func TestProcessEntityClassifiedRole(t *testing.T) {
	n := &node{kind: kindEntity, name: "city", roles: &stubRoles{ranked: []classifier.Scored{
		{Label: "destination", Score: 0.8},
		{Label: "origin", Score: 0.2},
	}}}
	entities := []*query.QueryEntity{spanned("city", 7, 12, "denver")}

	processed, roleScores, err := n.ProcessEntity(nodeTestFactory.CreateQuery("fly to denver"), entities, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "destination", processed.Entity.Role)
	assert.Equal(t, map[string]float64{"destination": 0.8, "origin": 0.2}, roleScores)
}

func TestProcessEntityResolvesOwnSurfaceForm(t *testing.T) {
	resolver := &stubResolver{values: []query.ResolvedValue{{CName: "Denver", ID: "DEN", Score: 1}}}
	n := &node{kind: kindEntity, name: "city", singleRole: "destination", resolver: resolver}
	entities := []*query.QueryEntity{spanned("city", 7, 12, "denver")}

	processed, _, err := n.ProcessEntity(nodeTestFactory.CreateQuery("fly to denver"), entities, 0, nil)
	require.NoError(t, err)
	require.Len(t, processed.Entity.Value, 1)
	assert.Equal(t, "DEN", processed.Entity.Value[0].ID)

	// Without explicit candidates the resolver sees the processed entity,
	// role included.
	require.Len(t, resolver.received, 1)
	require.Len(t, resolver.received[0], 1)
	assert.Equal(t, "denver", resolver.received[0][0].Text)
	assert.Equal(t, "destination", resolver.received[0][0].Role)
}

func TestProcessEntityResolvesSuppliedCandidates(t *testing.T) {
	resolver := &stubResolver{values: []query.ResolvedValue{{CName: "Miami", ID: "MIA", Score: 1}}}
	n := &node{kind: kindEntity, name: "city", resolver: resolver}
	entities := []*query.QueryEntity{spanned("city", 18, 22, "miami")}
	candidates := []query.Entity{
		{Text: "miami", Type: "city"},
		{Text: "maybe", Type: "city"},
	}

	processed, _, err := n.ProcessEntity(nodeTestFactory.CreateQuery("book 2 tickets to miami"), entities, 0, candidates)
	require.NoError(t, err)
	require.Len(t, processed.Entity.Value, 1)
	require.Len(t, resolver.received, 1)
	assert.Equal(t, candidates, resolver.received[0])
}

func TestProcessEntityIndexOutOfRange(t *testing.T) {
	n := &node{kind: kindEntity, name: "city"}
	entities := []*query.QueryEntity{spanned("city", 0, 5, "boston")}

	_, _, err := n.ProcessEntity(nodeTestFactory.CreateQuery("boston"), entities, 1, nil)
	require.Error(t, err)
	_, _, err = n.ProcessEntity(nodeTestFactory.CreateQuery("boston"), entities, -1, nil)
	require.Error(t, err)
}
