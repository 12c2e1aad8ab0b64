// Package nlp is the hierarchical processing engine: a tree of processors
// that routes an utterance through domain, intent, entity and role
// classification and manages the build, dump, load and evaluate lifecycle of
// the models at every tier.
package nlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wehubfusion/Delphi/pkg/classifier"
	"github.com/wehubfusion/Delphi/pkg/dispatch"
	"github.com/wehubfusion/Delphi/pkg/query"
	"github.com/wehubfusion/Delphi/pkg/resource"
	"github.com/wehubfusion/Delphi/pkg/storage"
	"github.com/wehubfusion/Delphi/pkg/taxonomy"
)

// tokenFormat stamps incremental builds. Every artifact of one incremental
// run shares the token, so a whole model generation is addressable later.
const tokenFormat = "20060102150405"

// Manifest records one persisted model generation: when it was built, the
// incremental token if there was one, and the taxonomy the models cover.
// Load reconstructs the processor tree from the manifest rather than from
// local training resources, so a serving host needs no application sources.
type Manifest struct {
	BuiltAt time.Time      `json:"builtAt"`
	Token   string         `json:"token,omitempty"`
	Tree    *taxonomy.Tree `json:"tree"`
}

// Engine is the top-level call surface. It owns the processor tree, the
// query factory, the resource loader, the artifact store and the dispatcher,
// and serializes lifecycle operations against processing with a read-write
// lock: Build, Dump and Load mutate the tree exclusively while Process,
// ProcessBatch and Evaluate share it.
type Engine struct {
	cfg        Config
	logger     *zap.Logger
	factory    *query.Factory
	loader     *resource.Loader
	store      storage.ArtifactStore
	models     *classifier.Registry
	registry   *dispatch.Registry
	dispatcher *dispatch.Dispatcher

	mu        sync.RWMutex
	tree      *taxonomy.Tree
	root      *node
	factoryID string
	manifest  *Manifest
}

// NewEngine builds an engine over the application directory in cfg.AppRoot.
// The engine starts not ready; call Build or Load before processing.
func NewEngine(cfg Config, logger *zap.Logger) (*Engine, error) {
	if cfg.AppRoot == "" {
		return nil, errors.New("application root is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TextModel == "" {
		cfg.TextModel = classifier.ModelBayes
	}
	if cfg.RecognizerModel == "" {
		cfg.RecognizerModel = classifier.ModelPhrase
	}
	if cfg.RoleModel == "" {
		cfg.RoleModel = classifier.ModelBayes
	}
	if cfg.ResolverModel == "" {
		cfg.ResolverModel = classifier.ModelExact
	}

	factory := query.NewFactory(query.FactoryConfig{
		Language:         cfg.Language,
		Preprocessor:     cfg.Preprocessor,
		SystemRecognizer: cfg.SystemRecognizer,
	})
	loader, err := resource.NewLoader(cfg.AppRoot, factory, logger)
	if err != nil {
		return nil, err
	}

	store := cfg.Store
	if store == nil {
		store, err = storage.NewLocalStore(loader.Paths().GeneratedDir(), logger)
		if err != nil {
			return nil, err
		}
	}
	models := cfg.Models
	if models == nil {
		models = classifier.NewRegistry()
	}

	// The dispatcher treats negative workers as "consult the environment"
	// and zero as serial-only; the engine config inverts that so its zero
	// value defers to DELPHI_WORKERS.
	workers := cfg.Workers
	switch {
	case workers == 0:
		workers = -1
	case workers < 0:
		workers = 0
	}
	registry := dispatch.NewRegistry()
	dispatcher, err := dispatch.NewDispatcher(registry, dispatch.Config{
		Workers:  workers,
		Wait:     cfg.Wait,
		Reporter: cfg.Reporter,
	}, logger)
	if err != nil {
		return nil, err
	}

	tree, err := loader.Tree()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:        cfg,
		logger:     logger,
		factory:    factory,
		loader:     loader,
		store:      store,
		models:     models,
		registry:   registry,
		dispatcher: dispatcher,
		factoryID:  dispatch.NewInstanceID(),
	}
	registry.Register(e.factoryID, factory)
	e.setSkeleton(tree)

	logger.Info("engine constructed",
		zap.String("appRoot", cfg.AppRoot),
		zap.Strings("domains", tree.DomainNames()),
		zap.Int("workers", dispatcher.Workers()))
	return e, nil
}

// Factory exposes the engine's query factory, for callers that prepare
// marked-up or test queries with the same normalization the engine uses.
func (e *Engine) Factory() *query.Factory { return e.factory }

// Tree returns the taxonomy the engine currently covers. Callers must treat
// it as read-only.
func (e *Engine) Tree() *taxonomy.Tree {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tree
}

// Ready reports whether models are available for processing.
func (e *Engine) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.root.ready
}

// Dirty reports whether the engine holds built models that have not been
// dumped yet.
func (e *Engine) Dirty() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.root.dirty
}

// Manifest returns the manifest of the current model generation, or nil
// before any build or load.
func (e *Engine) Manifest() *Manifest {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.manifest
}

// Close releases the dispatcher pool and the resource loader's query cache.
func (e *Engine) Close() error {
	e.dispatcher.Close()
	return e.loader.Close()
}

// Build trains every model of the tree from the application's training
// files. An incremental build additionally persists each model right after
// fitting, under a token shared by the whole run, and records the token in
// the stored manifest; a plain build keeps everything in memory until Dump.
func (e *Engine) Build(ctx context.Context, incremental bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tree, err := e.loader.Tree()
	if err != nil {
		return err
	}
	if len(tree.Domains) == 0 {
		return fmt.Errorf("no domains found under %s", e.cfg.AppRoot)
	}
	e.setSkeleton(tree)

	bc := &buildContext{}
	if incremental {
		bc.token = time.Now().UTC().Format(tokenFormat)
		e.logger.Info("incremental build", zap.String("token", bc.token))
	}
	bc.train, err = e.readExamples(resource.TrainFiles, true)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := e.root.build(ctx, e, bc); err != nil {
		return err
	}
	e.manifest = &Manifest{
		BuiltAt: time.Now().UTC(),
		Token:   bc.token,
		Tree:    e.snapshotTree(),
	}
	if incremental {
		if err := e.putManifest(ctx); err != nil {
			return err
		}
	}
	e.logger.Info("build complete", zap.Duration("elapsed", time.Since(start)))
	return nil
}

// Dump persists every model of the tree to the canonical artifact keys and
// writes the manifest. The engine must be ready.
func (e *Engine) Dump(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.root.ready {
		return ErrNotReady
	}
	if err := e.root.dump(ctx, e, ""); err != nil {
		return err
	}
	e.manifest = &Manifest{BuiltAt: time.Now().UTC(), Tree: e.snapshotTree()}
	if err := e.putManifest(ctx); err != nil {
		return err
	}
	e.logger.Info("models dumped")
	return nil
}

// Load restores models from the artifact store. An empty token loads the
// canonical artifacts; a token loads the matching incremental generation.
// The processor tree is rebuilt from the stored manifest's taxonomy, so
// loading works without any local training resources.
func (e *Engine) Load(ctx context.Context, token string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	manifest, err := e.getManifest(ctx)
	if err != nil {
		return err
	}
	e.setSkeleton(manifest.Tree)
	if err := e.root.load(ctx, e, token); err != nil {
		return err
	}
	e.manifest = manifest
	e.logger.Info("models loaded",
		zap.String("token", token),
		zap.Strings("domains", e.tree.DomainNames()))
	return nil
}

// Evaluate runs every model with two or more labels against the matching
// test files and returns accuracy records keyed by artifact name. Intents
// without test files are skipped with a warning.
func (e *Engine) Evaluate() (map[string]*classifier.Evaluation, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.root.ready {
		return nil, ErrNotReady
	}
	test, err := e.readExamples(resource.TestFiles, false)
	if err != nil {
		return nil, err
	}
	report := make(map[string]*classifier.Evaluation)
	if err := e.root.evaluate(e, test, report); err != nil {
		return nil, err
	}
	return report, nil
}

// setSkeleton replaces the processor tree with one matching the taxonomy.
// Domain and intent nodes are fixed here; entity nodes appear later, derived
// from each intent's fitted or loaded recognizer.
func (e *Engine) setSkeleton(tree *taxonomy.Tree) {
	if e.root != nil {
		e.deregisterTree(e.root)
	}
	root := &node{kind: kindRoot}
	for _, domain := range tree.DomainNames() {
		dn := &node{kind: kindDomain, name: domain, domain: domain}
		for _, intent := range tree.IntentNames(domain) {
			dn.addChild(e.newIntentNode(domain, intent))
		}
		root.addChild(dn)
	}
	e.tree = tree
	e.root = root
}

func (e *Engine) newIntentNode(domain, intent string) *node {
	n := &node{
		kind:   kindIntent,
		name:   intent,
		domain: domain,
		id:     dispatch.NewInstanceID(),
	}
	e.registry.Register(n.id, n)
	return n
}

func (e *Engine) newEntityNode(domain, intent, entityType string) *node {
	n := &node{
		kind:   kindEntity,
		name:   entityType,
		domain: domain,
		intent: intent,
		id:     dispatch.NewInstanceID(),
	}
	e.registry.Register(n.id, n)
	return n
}

func (e *Engine) deregisterTree(n *node) {
	if n.id != "" {
		e.registry.Deregister(n.id)
	}
	for _, label := range n.childOrder {
		e.deregisterTree(n.children[label])
	}
}

// snapshotTree rebuilds a taxonomy from the live tree, including the entity
// types the recognizers discovered.
func (e *Engine) snapshotTree() *taxonomy.Tree {
	tree := taxonomy.New()
	for _, domain := range e.root.childOrder {
		dn := e.root.children[domain]
		for _, intent := range dn.childOrder {
			in := dn.children[intent]
			tree.AddIntent(domain, intent, in.childOrder...)
		}
	}
	return tree
}

// readExamples reads the labeled queries of every intent in the taxonomy.
// When strict, an intent without files fails the call; otherwise it is
// logged and skipped, which Evaluate relies on for partially covered apps.
func (e *Engine) readExamples(kind resource.FileKind, strict bool) (map[string]map[string][]*resource.LabeledQuery, error) {
	out := make(map[string]map[string][]*resource.LabeledQuery)
	for _, domain := range e.tree.DomainNames() {
		out[domain] = make(map[string][]*resource.LabeledQuery)
		for _, intent := range e.tree.IntentNames(domain) {
			examples, err := e.loader.LabeledQueries(domain, intent, kind)
			if err != nil {
				if !strict && errors.Is(err, resource.ErrNoTrainingData) {
					e.logger.Warn("intent has no labeled files, skipped",
						zap.String("domain", domain),
						zap.String("intent", intent),
						zap.String("kind", string(kind)))
					continue
				}
				return nil, err
			}
			out[domain][intent] = examples
		}
	}
	return out, nil
}

func (e *Engine) putManifest(ctx context.Context) error {
	payload, err := json.Marshal(e.manifest)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := e.store.Put(ctx, resource.ManifestKey(), payload); err != nil {
		return fmt.Errorf("storing manifest: %w", err)
	}
	return nil
}

func (e *Engine) getManifest(ctx context.Context) (*Manifest, error) {
	data, err := e.store.Get(ctx, resource.ManifestKey())
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if m.Tree == nil || len(m.Tree.Domains) == 0 {
		return nil, errors.New("manifest carries no taxonomy")
	}
	return &m, nil
}
