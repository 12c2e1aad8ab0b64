// Package dispatch fans query-processing work out to a worker pool and
// degrades to serial execution when the pool stalls. Worker tasks address
// processing-tree nodes through an instance registry rather than carrying
// the nodes themselves, and every batch returns results in input order.
package dispatch

import (
	"fmt"

	"github.com/wehubfusion/Delphi/pkg/query"
)

// Kind enumerates the operations a pool worker can run. The set is closed:
// adding an operation means adding a capability interface and an arm in
// execute, not registering a method name at runtime.
type Kind int

const (
	// KindCreateQuery builds a Query from raw text.
	KindCreateQuery Kind = iota
	// KindRecognizeEntities detects entities in a query.
	KindRecognizeEntities
	// KindProcessEntity classifies the role of one recognized entity and
	// resolves it to canonical values.
	KindProcessEntity
)

func (k Kind) String() string {
	switch k {
	case KindCreateQuery:
		return "create_query"
	case KindRecognizeEntities:
		return "recognize_entities"
	case KindProcessEntity:
		return "process_entity"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Task is one unit of work addressed at a registered instance. Exactly the
// fields relevant to its Kind are set.
type Task struct {
	Kind       Kind
	InstanceID string

	// Text and Options feed KindCreateQuery.
	Text    string
	Options []query.QueryOption

	// Query feeds KindRecognizeEntities and KindProcessEntity.
	Query *query.Query

	// Entities and Index feed KindProcessEntity: the full recognized
	// entity list and the position of the entity to process. Candidates
	// carries one or more surface forms of that entity, with alternate
	// transcript alignments adding extras.
	Entities   []*query.QueryEntity
	Index      int
	Candidates []query.Entity
}

// Result is the outcome of one task. Index is the task's position in the
// submitted batch; the field carrying the payload matches the task's Kind.
type Result struct {
	Index      int
	Query      *query.Query
	Entities   []*query.QueryEntity
	Entity     *query.QueryEntity
	RoleScores map[string]float64
	Err        error
}

// QueryCreator is the capability behind KindCreateQuery.
type QueryCreator interface {
	CreateQuery(text string, opts ...query.QueryOption) *query.Query
}

// EntityRecognizer is the capability behind KindRecognizeEntities.
type EntityRecognizer interface {
	RecognizeEntities(q *query.Query) ([]*query.QueryEntity, error)
}

// EntityProcessor is the capability behind KindProcessEntity. It returns the
// processed entity and, when a role model was consulted, the role scores.
type EntityProcessor interface {
	ProcessEntity(q *query.Query, entities []*query.QueryEntity, index int, candidates []query.Entity) (*query.QueryEntity, map[string]float64, error)
}

// execute runs one task against the registry. Panics in instance code are
// caught and surfaced as task errors so a bad model cannot take a worker
// down with it.
func execute(registry *Registry, index int, task Task) (result Result) {
	result.Index = index
	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("task %s panicked: %v", task.Kind, r)
		}
	}()

	instance, ok := registry.Get(task.InstanceID)
	if !ok {
		result.Err = fmt.Errorf("%w: %s", ErrUnknownInstance, task.InstanceID)
		return result
	}

	switch task.Kind {
	case KindCreateQuery:
		creator, ok := instance.(QueryCreator)
		if !ok {
			result.Err = fmt.Errorf("%w: %s", ErrUnsupportedTask, task.Kind)
			return result
		}
		result.Query = creator.CreateQuery(task.Text, task.Options...)
	case KindRecognizeEntities:
		recognizer, ok := instance.(EntityRecognizer)
		if !ok {
			result.Err = fmt.Errorf("%w: %s", ErrUnsupportedTask, task.Kind)
			return result
		}
		result.Entities, result.Err = recognizer.RecognizeEntities(task.Query)
	case KindProcessEntity:
		processor, ok := instance.(EntityProcessor)
		if !ok {
			result.Err = fmt.Errorf("%w: %s", ErrUnsupportedTask, task.Kind)
			return result
		}
		result.Entity, result.RoleScores, result.Err = processor.ProcessEntity(task.Query, task.Entities, task.Index, task.Candidates)
	default:
		result.Err = fmt.Errorf("%w: %s", ErrUnsupportedTask, task.Kind)
	}
	return result
}
