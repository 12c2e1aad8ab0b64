package classifier

import (
	"fmt"
	"sync"
)

// Model type names of the baseline implementations.
const (
	ModelBayes  = "bayes"
	ModelPhrase = "phrase"
	ModelExact  = "exact"
)

// Registry maps model type names to constructors, so dumped artifacts can
// name their type and be reconstructed on load. A new registry starts with
// the baseline models registered; applications add their own.
type Registry struct {
	mu          sync.RWMutex
	text        map[string]func() Classifier
	recognizers map[string]func() Recognizer
	roles       map[string]func() RoleClassifier
	resolvers   map[string]func() Resolver
}

// NewRegistry returns a registry with the baseline models registered under
// their default names.
func NewRegistry() *Registry {
	r := &Registry{
		text:        make(map[string]func() Classifier),
		recognizers: make(map[string]func() Recognizer),
		roles:       make(map[string]func() RoleClassifier),
		resolvers:   make(map[string]func() Resolver),
	}
	r.RegisterText(ModelBayes, func() Classifier { return NewBayesText() })
	r.RegisterRecognizer(ModelPhrase, func() Recognizer { return NewPhraseRecognizer() })
	r.RegisterRole(ModelBayes, func() RoleClassifier { return NewBayesRole() })
	r.RegisterResolver(ModelExact, func() Resolver { return NewExactResolver() })
	return r
}

// RegisterText registers a text classifier constructor under name.
func (r *Registry) RegisterText(name string, build func() Classifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text[name] = build
}

// RegisterRecognizer registers an entity recognizer constructor under name.
func (r *Registry) RegisterRecognizer(name string, build func() Recognizer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recognizers[name] = build
}

// RegisterRole registers a role classifier constructor under name.
func (r *Registry) RegisterRole(name string, build func() RoleClassifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles[name] = build
}

// RegisterResolver registers a resolver constructor under name.
func (r *Registry) RegisterResolver(name string, build func() Resolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolvers[name] = build
}

// NewText builds an unfitted text classifier of the named type.
func (r *Registry) NewText(name string) (Classifier, error) {
	r.mu.RLock()
	build, ok := r.text[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: text classifier %q", ErrUnknownModel, name)
	}
	return build(), nil
}

// NewRecognizer builds an unfitted entity recognizer of the named type.
func (r *Registry) NewRecognizer(name string) (Recognizer, error) {
	r.mu.RLock()
	build, ok := r.recognizers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: recognizer %q", ErrUnknownModel, name)
	}
	return build(), nil
}

// NewRole builds an unfitted role classifier of the named type.
func (r *Registry) NewRole(name string) (RoleClassifier, error) {
	r.mu.RLock()
	build, ok := r.roles[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: role classifier %q", ErrUnknownModel, name)
	}
	return build(), nil
}

// NewResolver builds an empty resolver of the named type.
func (r *Registry) NewResolver(name string) (Resolver, error) {
	r.mu.RLock()
	build, ok := r.resolvers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: resolver %q", ErrUnknownModel, name)
	}
	return build(), nil
}
