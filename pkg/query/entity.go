package query

import "fmt"

// ResolvedValue is one canonical catalog value an entity's surface text has
// been resolved to. Resolution returns a ranked list of these.
type ResolvedValue struct {
	CName string  `json:"cname"`
	ID    string  `json:"id,omitempty"`
	Score float64 `json:"score,omitempty"`
}

// Entity is a concept recognized in a query: its surface text, its type, an
// optional role distinguishing uses of the same type, and the catalog values
// it resolved to. Role and Value start empty and are filled in by the role
// classification and resolution stages.
type Entity struct {
	Text  string          `json:"text"`
	Type  string          `json:"type"`
	Role  string          `json:"role,omitempty"`
	Value []ResolvedValue `json:"value,omitempty"`
}

// WithRole returns a copy of the entity with the role set.
func (e Entity) WithRole(role string) Entity {
	e.Role = role
	return e
}

// WithValue returns a copy of the entity with resolved values attached.
func (e Entity) WithValue(value []ResolvedValue) Entity {
	e.Value = value
	return e
}

func (e Entity) String() string {
	if e.Role != "" {
		return fmt.Sprintf("%s|%s %q", e.Type, e.Role, e.Text)
	}
	return fmt.Sprintf("%s %q", e.Type, e.Text)
}

// QueryEntity anchors an Entity to a character span within a query. The span
// addresses the normalized text form. A query entity may own structural
// children attached by a parser stage, e.g. a quantity attached to a unit.
type QueryEntity struct {
	Entity   Entity         `json:"entity"`
	Span     Span           `json:"span"`
	RawText  string         `json:"rawText,omitempty"`
	Children []*QueryEntity `json:"children,omitempty"`
}

// NewQueryEntity builds a query entity for the given span of q's normalized
// text. The entity text and raw-form text are extracted from the query.
func NewQueryEntity(q *Query, span Span, entityType, role string) *QueryEntity {
	text := span.Extract(q.NormalizedText())
	raw := q.TransformSpan(span, FormNormalized, FormRaw).Extract(q.Text())
	return &QueryEntity{
		Entity:  Entity{Text: text, Type: entityType, Role: role},
		Span:    span,
		RawText: raw,
	}
}

// WithChildren returns a copy of the query entity owning the given children.
// The receiver is not modified.
func (qe *QueryEntity) WithChildren(children []*QueryEntity) *QueryEntity {
	clone := *qe
	clone.Children = children
	return &clone
}

// Clone returns a deep copy. Post-processing works on copies so the
// recognized entity list stays untouched by role and value mutation.
func (qe *QueryEntity) Clone() *QueryEntity {
	clone := *qe
	if qe.Children != nil {
		clone.Children = make([]*QueryEntity, len(qe.Children))
		for i, c := range qe.Children {
			clone.Children[i] = c.Clone()
		}
	}
	return &clone
}

func (qe *QueryEntity) String() string {
	return fmt.Sprintf("%s %s", qe.Entity, qe.Span)
}
