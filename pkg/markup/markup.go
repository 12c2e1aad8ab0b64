// Package markup reads and writes annotated query text. Entities are marked
// with braces, groups with brackets:
//
//	turn on the {kitchen|location} lights
//	set it to {72|sys_temperature|target} degrees
//	play [{jazz|genre} by {coltrane|artist}|genre]
//
// An annotation is the entity text, a pipe, the entity type, and optionally
// a second pipe and the role. Brackets enclose an entity group; the text
// after the group's pipe names the head entity's type and the remaining
// entities become the head's children.
package markup

import (
	"sort"
	"strings"

	"github.com/wehubfusion/Delphi/pkg/query"
)

type pendingEntity struct {
	span     query.Span
	typ      string
	role     string
	children []*pendingEntity
}

type frame struct {
	kind     rune // '{' or '['
	pos      int  // rune position in the marked text, for errors
	start    int  // rune index in the clean text where the annotation began
	tail     []rune
	inTail   bool
	entities []*pendingEntity
}

// Parse reads one line of annotated text, builds the query for the clean
// text through the factory, and returns it with the annotated entities. The
// entity spans address the query's normalized form.
func Parse(factory *query.Factory, marked string, opts ...query.QueryOption) (*query.Query, []*query.QueryEntity, error) {
	clean, top, err := scan(marked)
	if err != nil {
		return nil, nil, err
	}

	q := factory.CreateQuery(string(clean), opts...)
	entities := make([]*query.QueryEntity, 0, len(top))
	for _, p := range top {
		entities = append(entities, materialize(q, p))
	}
	sortBySpan(entities)
	return q, entities, nil
}

// MarkDown strips the annotation syntax and returns the plain text.
func MarkDown(marked string) (string, error) {
	clean, _, err := scan(marked)
	if err != nil {
		return "", err
	}
	return string(clean), nil
}

// Validate reports whether the annotation syntax in marked is well formed.
func Validate(marked string) error {
	_, _, err := scan(marked)
	return err
}

// scan walks the marked text once, separating the clean text from the
// annotation structure.
func scan(marked string) ([]rune, []*pendingEntity, error) {
	var clean []rune
	var stack []*frame
	var top []*pendingEntity

	closeEntity := func(pos int) error {
		f := stack[len(stack)-1]
		if f.kind != '{' {
			return newParseError(pos, "unexpected %q", "}")
		}
		stack = stack[:len(stack)-1]
		if len(f.entities) > 0 {
			return newParseError(pos, "nested entity annotations are not supported")
		}
		typ, role, err := splitTail(f.tail, pos)
		if err != nil {
			return err
		}
		if f.start >= len(clean) {
			return newParseError(pos, "entity of type %q has no text", typ)
		}
		entity := &pendingEntity{
			span: query.NewSpan(f.start, len(clean)-1),
			typ:  typ,
			role: role,
		}
		if len(stack) > 0 {
			parent := stack[len(stack)-1]
			parent.entities = append(parent.entities, entity)
			return nil
		}
		top = append(top, entity)
		return nil
	}

	closeGroup := func(pos int) error {
		f := stack[len(stack)-1]
		if f.kind != '[' {
			return newParseError(pos, "unexpected %q", "]")
		}
		stack = stack[:len(stack)-1]
		headType, role, err := splitTail(f.tail, pos)
		if err != nil {
			return err
		}
		if role != "" {
			return newParseError(pos, "group annotations take no role")
		}
		var head *pendingEntity
		var children []*pendingEntity
		for _, e := range f.entities {
			if head == nil && e.typ == headType {
				head = e
				continue
			}
			children = append(children, e)
		}
		if head == nil {
			return newParseError(pos, "group has no entity of head type %q", headType)
		}
		head.children = children
		if len(stack) > 0 {
			parent := stack[len(stack)-1]
			parent.entities = append(parent.entities, head)
			return nil
		}
		top = append(top, head)
		return nil
	}

	for pos, r := range []rune(marked) {
		topFrame := func() *frame {
			if len(stack) == 0 {
				return nil
			}
			return stack[len(stack)-1]
		}()

		switch r {
		case '{', '[':
			if topFrame != nil && topFrame.inTail {
				return nil, nil, newParseError(pos, "annotation opened inside a label")
			}
			stack = append(stack, &frame{kind: r, pos: pos, start: len(clean)})
		case '|':
			if topFrame == nil {
				return nil, nil, newParseError(pos, "%q outside an annotation", "|")
			}
			if topFrame.inTail {
				topFrame.tail = append(topFrame.tail, r)
				continue
			}
			topFrame.inTail = true
		case '}':
			if topFrame == nil {
				return nil, nil, newParseError(pos, "unexpected %q", "}")
			}
			if err := closeEntity(pos); err != nil {
				return nil, nil, err
			}
		case ']':
			if topFrame == nil {
				return nil, nil, newParseError(pos, "unexpected %q", "]")
			}
			if err := closeGroup(pos); err != nil {
				return nil, nil, err
			}
		default:
			if topFrame != nil && topFrame.inTail {
				topFrame.tail = append(topFrame.tail, r)
				continue
			}
			clean = append(clean, r)
		}
	}
	if len(stack) > 0 {
		f := stack[len(stack)-1]
		return nil, nil, newParseError(f.pos, "annotation %q never closed", string(f.kind))
	}
	return clean, top, nil
}

// splitTail parses the text after an annotation's first pipe into the type
// and optional role.
func splitTail(tail []rune, pos int) (string, string, error) {
	parts := strings.Split(string(tail), "|")
	if len(parts) > 2 {
		return "", "", newParseError(pos, "too many label fields")
	}
	typ := strings.TrimSpace(parts[0])
	if typ == "" {
		return "", "", newParseError(pos, "annotation is missing a type")
	}
	role := ""
	if len(parts) == 2 {
		role = strings.TrimSpace(parts[1])
		if role == "" {
			return "", "", newParseError(pos, "annotation has an empty role")
		}
	}
	return typ, role, nil
}

// materialize converts a pending entity with raw-form spans into a
// QueryEntity addressing the query's normalized form.
func materialize(q *query.Query, p *pendingEntity) *query.QueryEntity {
	normSpan := q.TransformSpan(p.span, query.FormRaw, query.FormNormalized)
	qe := query.NewQueryEntity(q, normSpan, p.typ, p.role)
	for _, c := range p.children {
		qe.Children = append(qe.Children, materialize(q, c))
	}
	return qe
}

// Dump renders a query and its entities back into annotated text. Entities
// with children are rendered as groups; the bracket encloses the raw text
// from the first to the last group member.
func Dump(q *query.Query, entities []*query.QueryEntity) string {
	raw := []rune(q.Text())
	sorted := make([]*query.QueryEntity, len(entities))
	copy(sorted, entities)
	sortBySpan(sorted)

	var b strings.Builder
	cursor := 0
	for _, qe := range sorted {
		if len(qe.Children) == 0 {
			cursor = dumpEntity(&b, q, raw, qe, cursor)
			continue
		}
		cursor = dumpGroup(&b, q, raw, qe, cursor)
	}
	b.WriteString(string(raw[min(cursor, len(raw)):]))
	return b.String()
}

func dumpEntity(b *strings.Builder, q *query.Query, raw []rune, qe *query.QueryEntity, cursor int) int {
	span := q.TransformSpan(qe.Span, query.FormNormalized, query.FormRaw)
	if span.Start > cursor {
		b.WriteString(string(raw[cursor:span.Start]))
	}
	b.WriteByte('{')
	b.WriteString(span.Extract(string(raw)))
	b.WriteByte('|')
	b.WriteString(qe.Entity.Type)
	if qe.Entity.Role != "" {
		b.WriteByte('|')
		b.WriteString(qe.Entity.Role)
	}
	b.WriteByte('}')
	return span.End + 1
}

func dumpGroup(b *strings.Builder, q *query.Query, raw []rune, head *query.QueryEntity, cursor int) int {
	members := append([]*query.QueryEntity{head}, head.Children...)
	sortBySpan(members)

	first := q.TransformSpan(members[0].Span, query.FormNormalized, query.FormRaw)
	if first.Start > cursor {
		b.WriteString(string(raw[cursor:first.Start]))
	}
	b.WriteByte('[')
	cursor = first.Start
	for _, m := range members {
		cursor = dumpEntity(b, q, raw, m, cursor)
	}
	b.WriteByte('|')
	b.WriteString(head.Entity.Type)
	b.WriteByte(']')
	return cursor
}

func sortBySpan(entities []*query.QueryEntity) {
	sort.SliceStable(entities, func(i, j int) bool {
		return entities[i].Span.Start < entities[j].Span.Start
	})
}
