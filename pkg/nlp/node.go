package nlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/wehubfusion/Delphi/pkg/classifier"
	"github.com/wehubfusion/Delphi/pkg/query"
	"github.com/wehubfusion/Delphi/pkg/resource"
	"github.com/wehubfusion/Delphi/pkg/storage"
)

// nodeKind identifies the tier a node sits at.
type nodeKind int

const (
	kindRoot nodeKind = iota
	kindDomain
	kindIntent
	kindEntity
)

func (k nodeKind) String() string {
	switch k {
	case kindRoot:
		return "root"
	case kindDomain:
		return "domain"
	case kindIntent:
		return "intent"
	case kindEntity:
		return "entity"
	default:
		return "unknown"
	}
}

// node is one processor of the tree. The root selects a domain, domain nodes
// select an intent, intent nodes recognize entities, and entity nodes
// classify roles and resolve values. At most one model group is populated per
// kind; a tier with a single label carries no classifier at all.
//
// The children of an intent node are special: they are derived from the
// entity recognizer's discovered type set, so they are rebuilt whenever the
// recognizer is fitted or loaded rather than fixed at construction.
type node struct {
	kind nodeKind
	name string // label at this tier, empty for the root

	domain string // owning domain, set below the root
	intent string // owning intent, set on entity nodes

	// id is the dispatch registry identity of intent and entity nodes,
	// which execute recognition and entity post-processing tasks.
	id string

	children   map[string]*node
	childOrder []string

	classifier classifier.Classifier     // root and domain nodes
	recognizer classifier.Recognizer     // intent nodes
	roles      classifier.RoleClassifier // entity nodes with two or more roles
	singleRole string                    // entity nodes with exactly one annotated role
	resolver   classifier.Resolver       // entity nodes with mapping or gazetteer data

	modelType         string
	roleModelType     string
	resolverModelType string

	ready bool
	dirty bool
}

// path is the dotted label path from the root, used in logs and errors.
func (n *node) path() string {
	switch n.kind {
	case kindRoot:
		return ""
	case kindDomain:
		return n.name
	case kindIntent:
		return n.domain + "." + n.name
	default:
		return n.domain + "." + n.intent + "." + n.name
	}
}

func (n *node) addChild(child *node) {
	if n.children == nil {
		n.children = make(map[string]*node)
	}
	n.children[child.name] = child
	n.childOrder = append(n.childOrder, child.name)
	sort.Strings(n.childOrder)
}

func (n *node) child(label string) (*node, bool) {
	c, ok := n.children[label]
	return c, ok
}

// artifactName is the model artifact location relative to the models root.
// Entity nodes have a second artifact for their resolver.
func (n *node) artifactName() string {
	switch n.kind {
	case kindRoot:
		return "domain_classifier.json"
	case kindDomain:
		return "intent_classifiers/" + n.name + ".json"
	case kindIntent:
		return "entity_recognizers/" + n.domain + "." + n.name + ".json"
	default:
		return "role_classifiers/" + n.domain + "." + n.intent + "." + n.name + ".json"
	}
}

func (n *node) resolverArtifactName() string {
	return "entity_resolvers/" + n.domain + "." + n.intent + "." + n.name + ".json"
}

// artifact is the stored form of one model: the registry type name and the
// model's own serialization.
type artifact struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// artifactFixedRole marks a role artifact that pins the single annotated
// role instead of carrying a trained model.
const artifactFixedRole = "fixed"

type dumper interface {
	Dump() ([]byte, error)
}

func encodeArtifact(modelType string, model dumper) ([]byte, error) {
	data, err := model.Dump()
	if err != nil {
		return nil, err
	}
	return json.Marshal(artifact{Type: modelType, Data: data})
}

// gazetteerSeeder is the optional recognizer capability for seeding
// gazetteer phrases ahead of fitting.
type gazetteerSeeder interface {
	AddGazetteer(entityType string, phrases []string)
}

// buildContext carries one build run's shared state down the tree: the
// incremental token stamped at the root and the training examples read once
// from the resource loader.
type buildContext struct {
	token string
	train map[string]map[string][]*resource.LabeledQuery
}

// selectLabel picks this tier's label for the query. A tier with a single
// child short-circuits without consulting any classifier, and a restriction
// of exactly one label wins outright the same way. Larger restrictions take
// the highest-ranked allowed label from the classifier's full ranking, or
// fail with ErrAllowedClassesNotFound when no allowed label is ranked.
func (n *node) selectLabel(q *query.Query, allowed map[string]bool, wantScores bool) (string, map[string]float64, error) {
	if len(n.childOrder) == 1 {
		label := n.childOrder[0]
		return label, certainty(label, wantScores), nil
	}

	if len(allowed) == 1 {
		for label := range allowed {
			return label, certainty(label, wantScores), nil
		}
	}

	if n.classifier == nil {
		return "", nil, fmt.Errorf("%s tier has no classifier", n.kind)
	}

	if len(allowed) == 0 {
		if !wantScores {
			label, err := n.classifier.Predict(q)
			return label, nil, err
		}
		ranked, err := n.classifier.PredictProba(q)
		if err != nil {
			return "", nil, err
		}
		if len(ranked) == 0 {
			return "", nil, errors.New("classifier returned no predictions")
		}
		return ranked[0].Label, scoreMap(ranked), nil
	}

	ranked, err := n.classifier.PredictProba(q)
	if err != nil {
		return "", nil, err
	}
	for _, s := range ranked {
		if allowed[s.Label] {
			var scores map[string]float64
			if wantScores {
				scores = scoreMap(ranked)
			}
			return s.Label, scores, nil
		}
	}
	return "", nil, ErrAllowedClassesNotFound
}

func certainty(label string, want bool) map[string]float64 {
	if !want {
		return nil
	}
	return map[string]float64{label: 1}
}

func scoreMap(ranked []classifier.Scored) map[string]float64 {
	m := make(map[string]float64, len(ranked))
	for _, s := range ranked {
		m[s.Label] = s.Score
	}
	return m
}

// build fits this node's models, persists them immediately when the build is
// incremental, and recurses into the children. Intent nodes derive their
// entity children from the freshly fitted recognizer before recursing.
func (n *node) build(ctx context.Context, e *Engine, bc *buildContext) error {
	if err := n.buildSelf(e, bc); err != nil {
		return err
	}
	if bc.token != "" {
		if err := n.dumpSelf(ctx, e, bc.token); err != nil {
			return err
		}
	}
	for _, label := range n.childOrder {
		if err := n.children[label].build(ctx, e, bc); err != nil {
			return err
		}
	}
	n.ready = true
	n.dirty = true
	return nil
}

func (n *node) buildSelf(e *Engine, bc *buildContext) error {
	switch n.kind {
	case kindRoot:
		n.classifier = nil
		if len(n.childOrder) < 2 {
			e.logger.Debug("single domain, domain classifier skipped")
			return nil
		}
		var examples []classifier.Example
		for _, domain := range n.childOrder {
			for _, intent := range n.children[domain].childOrder {
				for _, lq := range bc.train[domain][intent] {
					examples = append(examples, classifier.Example{Query: lq.Query, Label: domain})
				}
			}
		}
		clf, err := e.models.NewText(e.cfg.TextModel)
		if err != nil {
			return err
		}
		if err := clf.Fit(examples); err != nil {
			return fmt.Errorf("fitting domain classifier: %w", err)
		}
		n.classifier = clf
		n.modelType = e.cfg.TextModel
		e.logger.Info("domain classifier fitted", zap.Int("examples", len(examples)))

	case kindDomain:
		n.classifier = nil
		if len(n.childOrder) < 2 {
			e.logger.Debug("single intent, intent classifier skipped",
				zap.String("domain", n.name))
			return nil
		}
		var examples []classifier.Example
		for _, intent := range n.childOrder {
			for _, lq := range bc.train[n.name][intent] {
				examples = append(examples, classifier.Example{Query: lq.Query, Label: intent})
			}
		}
		clf, err := e.models.NewText(e.cfg.TextModel)
		if err != nil {
			return err
		}
		if err := clf.Fit(examples); err != nil {
			return fmt.Errorf("fitting intent classifier for %s: %w", n.name, err)
		}
		n.classifier = clf
		n.modelType = e.cfg.TextModel
		e.logger.Info("intent classifier fitted",
			zap.String("domain", n.name),
			zap.Int("examples", len(examples)))

	case kindIntent:
		n.recognizer = nil
		examples := bc.train[n.domain][n.name]
		rec, err := e.models.NewRecognizer(e.cfg.RecognizerModel)
		if err != nil {
			return err
		}
		recExamples := make([]classifier.RecognizerExample, 0, len(examples))
		typeSet := make(map[string]bool)
		for _, lq := range examples {
			recExamples = append(recExamples, classifier.RecognizerExample{
				Query:    lq.Query,
				Entities: lq.Entities,
			})
			for _, qe := range lq.Entities {
				typeSet[qe.Entity.Type] = true
			}
		}
		if seeder, ok := rec.(gazetteerSeeder); ok {
			for _, entityType := range sortedKeys(typeSet) {
				phrases, err := e.loader.Gazetteer(entityType)
				if err != nil {
					return err
				}
				if len(phrases) > 0 {
					seeder.AddGazetteer(entityType, phrases)
				}
			}
		}
		if err := rec.Fit(recExamples); err != nil {
			if errors.Is(err, classifier.ErrNoExamples) {
				e.logger.Debug("intent has no annotated entities",
					zap.String("intent", n.path()))
				n.syncEntityChildren(e, nil)
				return nil
			}
			return fmt.Errorf("fitting entity recognizer for %s: %w", n.path(), err)
		}
		n.recognizer = rec
		n.modelType = e.cfg.RecognizerModel
		n.syncEntityChildren(e, rec.EntityTypes())
		e.logger.Info("entity recognizer fitted",
			zap.String("intent", n.path()),
			zap.Strings("entityTypes", rec.EntityTypes()))

	case kindEntity:
		n.roles = nil
		n.singleRole = ""
		n.resolver = nil

		examples := bc.train[n.domain][n.intent]
		var roleExamples []classifier.RoleExample
		roleSet := make(map[string]bool)
		for _, lq := range examples {
			for i, qe := range lq.Entities {
				if qe.Entity.Type != n.name || qe.Entity.Role == "" {
					continue
				}
				roleSet[qe.Entity.Role] = true
				roleExamples = append(roleExamples, classifier.RoleExample{
					Query:    lq.Query,
					Entities: lq.Entities,
					Index:    i,
					Role:     qe.Entity.Role,
				})
			}
		}
		switch len(roleSet) {
		case 0:
		case 1:
			n.singleRole = sortedKeys(roleSet)[0]
			e.logger.Debug("single role, role classifier skipped",
				zap.String("entity", n.path()),
				zap.String("role", n.singleRole))
		default:
			rc, err := e.models.NewRole(e.cfg.RoleModel)
			if err != nil {
				return err
			}
			if err := rc.Fit(roleExamples); err != nil {
				return fmt.Errorf("fitting role classifier for %s: %w", n.path(), err)
			}
			n.roles = rc
			n.roleModelType = e.cfg.RoleModel
			e.logger.Info("role classifier fitted",
				zap.String("entity", n.path()),
				zap.Strings("roles", rc.Roles()))
		}

		mapping, err := e.loader.Mapping(n.name)
		if err != nil {
			return err
		}
		gazetteer, err := e.loader.Gazetteer(n.name)
		if err != nil {
			return err
		}
		if len(mapping.Entities) == 0 && len(gazetteer) == 0 {
			return nil
		}
		res, err := e.models.NewResolver(e.cfg.ResolverModel)
		if err != nil {
			return err
		}
		entries := make([]classifier.MappingEntry, len(mapping.Entities))
		for i, entry := range mapping.Entities {
			entries[i] = classifier.MappingEntry{
				ID:        entry.ID,
				CName:     entry.CName,
				Whitelist: entry.Whitelist,
			}
		}
		if err := res.FitResolver(entries, gazetteer); err != nil {
			return fmt.Errorf("fitting resolver for %s: %w", n.path(), err)
		}
		n.resolver = res
		n.resolverModelType = e.cfg.ResolverModel
	}
	return nil
}

// syncEntityChildren rebuilds the entity children to match the recognizer's
// entity types, reusing surviving nodes and deregistering dropped ones.
func (n *node) syncEntityChildren(e *Engine, types []string) {
	next := make(map[string]*node, len(types))
	order := make([]string, 0, len(types))
	for _, entityType := range types {
		if child, ok := n.children[entityType]; ok {
			next[entityType] = child
		} else {
			next[entityType] = e.newEntityNode(n.domain, n.name, entityType)
		}
		order = append(order, entityType)
	}
	for label, child := range n.children {
		if _, ok := next[label]; !ok {
			e.registry.Deregister(child.id)
		}
	}
	sort.Strings(order)
	n.children = next
	n.childOrder = order
}

// dump persists this node's models and then its children's. Nodes with no
// model at a slot remove any stale artifact so a later load cannot resurrect
// a model the taxonomy no longer has.
func (n *node) dump(ctx context.Context, e *Engine, token string) error {
	if err := n.dumpSelf(ctx, e, token); err != nil {
		return err
	}
	for _, label := range n.childOrder {
		if err := n.children[label].dump(ctx, e, token); err != nil {
			return err
		}
	}
	n.dirty = false
	return nil
}

func (n *node) dumpSelf(ctx context.Context, e *Engine, token string) error {
	switch n.kind {
	case kindRoot, kindDomain:
		if n.classifier == nil {
			return n.deleteArtifact(ctx, e, token, n.artifactName())
		}
		return n.putArtifact(ctx, e, token, n.artifactName(), n.modelType, n.classifier)

	case kindIntent:
		if n.recognizer == nil {
			return n.deleteArtifact(ctx, e, token, n.artifactName())
		}
		return n.putArtifact(ctx, e, token, n.artifactName(), n.modelType, n.recognizer)

	default:
		switch {
		case n.roles != nil:
			if err := n.putArtifact(ctx, e, token, n.artifactName(), n.roleModelType, n.roles); err != nil {
				return err
			}
		case n.singleRole != "":
			role, err := json.Marshal(n.singleRole)
			if err != nil {
				return err
			}
			payload, err := json.Marshal(artifact{Type: artifactFixedRole, Data: role})
			if err != nil {
				return err
			}
			key := resource.ModelKey(token, n.artifactName())
			if err := e.store.Put(ctx, key, payload); err != nil {
				return fmt.Errorf("storing %s: %w", key, err)
			}
		default:
			if err := n.deleteArtifact(ctx, e, token, n.artifactName()); err != nil {
				return err
			}
		}

		if n.resolver == nil {
			return n.deleteArtifact(ctx, e, token, n.resolverArtifactName())
		}
		return n.putArtifact(ctx, e, token, n.resolverArtifactName(), n.resolverModelType, n.resolver)
	}
}

func (n *node) putArtifact(ctx context.Context, e *Engine, token, name, modelType string, model dumper) error {
	payload, err := encodeArtifact(modelType, model)
	if err != nil {
		return fmt.Errorf("dumping %s: %w", name, err)
	}
	key := resource.ModelKey(token, name)
	if err := e.store.Put(ctx, key, payload); err != nil {
		return fmt.Errorf("storing %s: %w", key, err)
	}
	e.logger.Debug("artifact stored", zap.String("key", key))
	return nil
}

func (n *node) deleteArtifact(ctx context.Context, e *Engine, token, name string) error {
	key := resource.ModelKey(token, name)
	if err := e.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("removing %s: %w", key, err)
	}
	return nil
}

func (n *node) getArtifact(ctx context.Context, e *Engine, token, name string) (*artifact, error) {
	key := resource.ModelKey(token, name)
	data, err := e.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", key, err)
	}
	return &a, nil
}

// load restores this node's models from artifacts and recurses into the
// children. Intent nodes re-derive their entity children from the loaded
// recognizer's type set before recursing.
func (n *node) load(ctx context.Context, e *Engine, token string) error {
	if err := n.loadSelf(ctx, e, token); err != nil {
		return err
	}
	for _, label := range n.childOrder {
		if err := n.children[label].load(ctx, e, token); err != nil {
			return err
		}
	}
	n.ready = true
	n.dirty = false
	return nil
}

func (n *node) loadSelf(ctx context.Context, e *Engine, token string) error {
	switch n.kind {
	case kindRoot, kindDomain:
		n.classifier = nil
		if len(n.childOrder) < 2 {
			return nil
		}
		a, err := n.getArtifact(ctx, e, token, n.artifactName())
		if err != nil {
			return err
		}
		clf, err := e.models.NewText(a.Type)
		if err != nil {
			return err
		}
		if err := clf.Load(a.Data); err != nil {
			return fmt.Errorf("loading %s: %w", n.artifactName(), err)
		}
		n.classifier = clf
		n.modelType = a.Type

	case kindIntent:
		n.recognizer = nil
		a, err := n.getArtifact(ctx, e, token, n.artifactName())
		if errors.Is(err, storage.ErrNotFound) {
			// The intent was built without annotated entities.
			n.syncEntityChildren(e, nil)
			return nil
		}
		if err != nil {
			return err
		}
		rec, err := e.models.NewRecognizer(a.Type)
		if err != nil {
			return err
		}
		if err := rec.Load(a.Data); err != nil {
			return fmt.Errorf("loading %s: %w", n.artifactName(), err)
		}
		n.recognizer = rec
		n.modelType = a.Type
		n.syncEntityChildren(e, rec.EntityTypes())

	case kindEntity:
		n.roles = nil
		n.singleRole = ""
		n.resolver = nil

		a, err := n.getArtifact(ctx, e, token, n.artifactName())
		switch {
		case errors.Is(err, storage.ErrNotFound):
		case err != nil:
			return err
		case a.Type == artifactFixedRole:
			if err := json.Unmarshal(a.Data, &n.singleRole); err != nil {
				return fmt.Errorf("loading %s: %w", n.artifactName(), err)
			}
		default:
			rc, err := e.models.NewRole(a.Type)
			if err != nil {
				return err
			}
			if err := rc.Load(a.Data); err != nil {
				return fmt.Errorf("loading %s: %w", n.artifactName(), err)
			}
			n.roles = rc
			n.roleModelType = a.Type
		}

		ra, err := n.getArtifact(ctx, e, token, n.resolverArtifactName())
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := n.loadResolver(e, ra); err != nil {
			// A resolver that cannot come up only costs this entity
			// type its resolution; recognition and roles still work.
			e.logger.Warn("entity resolver unavailable, resolution disabled",
				zap.String("entity", n.path()),
				zap.Error(err))
		}
	}
	return nil
}

func (n *node) loadResolver(e *Engine, a *artifact) error {
	res, err := e.models.NewResolver(a.Type)
	if err != nil {
		return err
	}
	if err := res.Load(a.Data); err != nil {
		return err
	}
	n.resolver = res
	n.resolverModelType = a.Type
	return nil
}

// evaluate runs this node's model against the test examples and recurses.
// Tiers with a single label or no model are skipped; a degenerate one-class
// evaluation says nothing.
func (n *node) evaluate(e *Engine, test map[string]map[string][]*resource.LabeledQuery, report map[string]*classifier.Evaluation) error {
	switch n.kind {
	case kindRoot:
		if n.classifier == nil {
			e.logger.Info("domain tier has a single label, evaluation skipped")
			break
		}
		var examples []classifier.Example
		for _, domain := range n.childOrder {
			for _, intent := range n.children[domain].childOrder {
				for _, lq := range test[domain][intent] {
					examples = append(examples, classifier.Example{Query: lq.Query, Label: domain})
				}
			}
		}
		if len(examples) == 0 {
			break
		}
		eval, err := classifier.EvaluateText(n.classifier, examples)
		if err != nil {
			return fmt.Errorf("evaluating domain classifier: %w", err)
		}
		report["domain_classifier"] = eval
		e.logger.Info("domain classifier evaluated", zap.String("result", eval.String()))

	case kindDomain:
		if n.classifier == nil {
			e.logger.Info("intent tier has a single label, evaluation skipped",
				zap.String("domain", n.name))
			break
		}
		var examples []classifier.Example
		for _, intent := range n.childOrder {
			for _, lq := range test[n.name][intent] {
				examples = append(examples, classifier.Example{Query: lq.Query, Label: intent})
			}
		}
		if len(examples) == 0 {
			break
		}
		eval, err := classifier.EvaluateText(n.classifier, examples)
		if err != nil {
			return fmt.Errorf("evaluating intent classifier for %s: %w", n.name, err)
		}
		report["intent_classifiers/"+n.name] = eval
		e.logger.Info("intent classifier evaluated",
			zap.String("domain", n.name),
			zap.String("result", eval.String()))

	case kindIntent:
		if n.recognizer == nil {
			break
		}
		var examples []classifier.RecognizerExample
		for _, lq := range test[n.domain][n.name] {
			examples = append(examples, classifier.RecognizerExample{
				Query:    lq.Query,
				Entities: lq.Entities,
			})
		}
		if len(examples) == 0 {
			break
		}
		eval, err := classifier.EvaluateRecognizer(n.recognizer, examples)
		if err != nil {
			return fmt.Errorf("evaluating entity recognizer for %s: %w", n.path(), err)
		}
		report["entity_recognizers/"+n.domain+"."+n.name] = eval
		e.logger.Info("entity recognizer evaluated",
			zap.String("intent", n.path()),
			zap.String("result", eval.String()))

	case kindEntity:
		if n.roles == nil {
			break
		}
		var examples []classifier.RoleExample
		for _, lq := range test[n.domain][n.intent] {
			for i, qe := range lq.Entities {
				if qe.Entity.Type != n.name || qe.Entity.Role == "" {
					continue
				}
				examples = append(examples, classifier.RoleExample{
					Query:    lq.Query,
					Entities: lq.Entities,
					Index:    i,
					Role:     qe.Entity.Role,
				})
			}
		}
		if len(examples) == 0 {
			break
		}
		eval, err := classifier.EvaluateRoles(n.roles, examples)
		if err != nil {
			return fmt.Errorf("evaluating role classifier for %s: %w", n.path(), err)
		}
		report["role_classifiers/"+n.domain+"."+n.intent+"."+n.name] = eval
		e.logger.Info("role classifier evaluated",
			zap.String("entity", n.path()),
			zap.String("result", eval.String()))
	}

	for _, label := range n.childOrder {
		if err := n.children[label].evaluate(e, test, report); err != nil {
			return err
		}
	}
	return nil
}

// RecognizeEntities is the dispatch capability of intent nodes. Results are
// in span order, which cross-transcript alignment relies on.
func (n *node) RecognizeEntities(q *query.Query) ([]*query.QueryEntity, error) {
	if n.recognizer == nil {
		return nil, nil
	}
	entities, err := n.recognizer.Recognize(q)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entities, func(i, j int) bool {
		return entities[i].Span.Start < entities[j].Span.Start
	})
	return entities, nil
}

// ProcessEntity is the dispatch capability of entity nodes: role
// classification followed by resolution, on a copy of the recognized entity.
// Candidates carries the surface forms resolution should consider; when
// empty, the entity's own surface form is used.
func (n *node) ProcessEntity(q *query.Query, entities []*query.QueryEntity, index int, candidates []query.Entity) (*query.QueryEntity, map[string]float64, error) {
	if index < 0 || index >= len(entities) {
		return nil, nil, fmt.Errorf("entity index %d out of range", index)
	}
	processed := entities[index].Clone()

	var roleScores map[string]float64
	switch {
	case n.singleRole != "":
		processed.Entity = processed.Entity.WithRole(n.singleRole)
		roleScores = map[string]float64{n.singleRole: 1}
	case n.roles != nil:
		ranked, err := n.roles.PredictProba(q, entities, index)
		if err != nil {
			return nil, nil, err
		}
		if len(ranked) > 0 {
			processed.Entity = processed.Entity.WithRole(ranked[0].Label)
			roleScores = scoreMap(ranked)
		}
	}

	if n.resolver != nil {
		if len(candidates) == 0 {
			candidates = []query.Entity{processed.Entity}
		}
		values, err := n.resolver.Resolve(candidates)
		if err != nil {
			return nil, nil, err
		}
		if len(values) > 0 {
			processed.Entity = processed.Entity.WithValue(values)
		}
	}
	return processed, roleScores, nil
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
