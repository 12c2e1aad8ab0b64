// Package classifier defines the model contracts the processing tiers build
// on, plus baseline implementations that train in memory and serialize to
// JSON. Heavier models plug in through the same interfaces via the registry.
package classifier

import (
	"github.com/wehubfusion/Delphi/pkg/query"
)

// Scored pairs a label with its probability. Ranked lists are sorted by
// descending score.
type Scored struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Example is one labeled text example.
type Example struct {
	Query *query.Query
	Label string
}

// Classifier assigns one label out of a fixed set to a query. Implementations
// must be safe for concurrent Predict calls once fitted or loaded.
type Classifier interface {
	// Fit trains the classifier on labeled examples.
	Fit(examples []Example) error
	// Predict returns the most likely label.
	Predict(q *query.Query) (string, error)
	// PredictProba returns every label with its probability, ranked by
	// descending score.
	PredictProba(q *query.Query) ([]Scored, error)
	// Labels returns the sorted label set seen during fitting.
	Labels() []string
	// Dump serializes the fitted model.
	Dump() ([]byte, error)
	// Load restores a model serialized by Dump.
	Load(data []byte) error
}

// RecognizerExample is one query with its annotated entities.
type RecognizerExample struct {
	Query    *query.Query
	Entities []*query.QueryEntity
}

// Recognizer detects entities in a query.
type Recognizer interface {
	Fit(examples []RecognizerExample) error
	Recognize(q *query.Query) ([]*query.QueryEntity, error)
	// EntityTypes returns the sorted entity types this recognizer can
	// produce. Loading a dumped recognizer restores this set, which is
	// how a processing tree discovers its entity tiers from artifacts.
	EntityTypes() []string
	Dump() ([]byte, error)
	Load(data []byte) error
}

// RoleExample is one entity occurrence whose role is known.
type RoleExample struct {
	Query    *query.Query
	Entities []*query.QueryEntity
	Index    int
	Role     string
}

// RoleClassifier assigns a role to one entity occurrence, using the query
// and the surrounding entities as context.
type RoleClassifier interface {
	Fit(examples []RoleExample) error
	Predict(q *query.Query, entities []*query.QueryEntity, index int) (string, error)
	PredictProba(q *query.Query, entities []*query.QueryEntity, index int) ([]Scored, error)
	Roles() []string
	Dump() ([]byte, error)
	Load(data []byte) error
}

// Resolver maps a recognized entity to ranked canonical values. Resolve
// receives one or more candidate surface forms for the same underlying
// entity: a single recognition yields one candidate, and speech-recognizer
// transcript alignment can add more.
type Resolver interface {
	// FitResolver indexes the entity type's mapping entries and gazetteer.
	FitResolver(entries []MappingEntry, gazetteer []string) error
	// Resolve returns canonical values, best first. Candidates with no
	// match resolve to nil with no error.
	Resolve(candidates []query.Entity) ([]query.ResolvedValue, error)
	Dump() ([]byte, error)
	Load(data []byte) error
}

// MappingEntry is one canonical value a resolver indexes: the canonical
// name, an optional identifier, and surface forms that map to it.
type MappingEntry struct {
	ID        string   `json:"id,omitempty"`
	CName     string   `json:"cname"`
	Whitelist []string `json:"whitelist,omitempty"`
}
