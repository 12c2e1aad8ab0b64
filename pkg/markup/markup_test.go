package markup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/Delphi/pkg/query"
)

func newFactory() *query.Factory {
	return query.NewFactory(query.FactoryConfig{})
}

func TestParsePlainText(t *testing.T) {
	q, entities, err := Parse(newFactory(), "turn on the lights")
	require.NoError(t, err)
	assert.Equal(t, "turn on the lights", q.Text())
	assert.Empty(t, entities)
}

func TestParseSingleEntity(t *testing.T) {
	q, entities, err := Parse(newFactory(), "turn on the {kitchen|location} lights")
	require.NoError(t, err)
	assert.Equal(t, "turn on the kitchen lights", q.Text())

	require.Len(t, entities, 1)
	e := entities[0]
	assert.Equal(t, "kitchen", e.Entity.Text)
	assert.Equal(t, "location", e.Entity.Type)
	assert.Empty(t, e.Entity.Role)
	assert.Equal(t, "kitchen", e.Span.Extract(q.NormalizedText()))
}

func TestParseEntityWithRole(t *testing.T) {
	_, entities, err := Parse(newFactory(), "set it to {72|sys_temperature|target} degrees")
	require.NoError(t, err)

	require.Len(t, entities, 1)
	assert.Equal(t, "sys_temperature", entities[0].Entity.Type)
	assert.Equal(t, "target", entities[0].Entity.Role)
	assert.Equal(t, "72", entities[0].Entity.Text)
}

func TestParseMultipleEntitiesSorted(t *testing.T) {
	_, entities, err := Parse(newFactory(),
		"move from {boston|city|origin} to {seattle|city|destination} tomorrow")
	require.NoError(t, err)

	require.Len(t, entities, 2)
	assert.Equal(t, "origin", entities[0].Entity.Role)
	assert.Equal(t, "destination", entities[1].Entity.Role)
	assert.Less(t, entities[0].Span.Start, entities[1].Span.Start)
}

func TestParseGroup(t *testing.T) {
	q, entities, err := Parse(newFactory(), "play [{jazz|genre} by {coltrane|artist}|genre]")
	require.NoError(t, err)
	assert.Equal(t, "play jazz by coltrane", q.Text())

	require.Len(t, entities, 1)
	head := entities[0]
	assert.Equal(t, "genre", head.Entity.Type)
	assert.Equal(t, "jazz", head.Entity.Text)
	require.Len(t, head.Children, 1)
	assert.Equal(t, "artist", head.Children[0].Entity.Type)
	assert.Equal(t, "coltrane", head.Children[0].Entity.Text)
}

func TestParseNormalizesEntitySpans(t *testing.T) {
	q, entities, err := Parse(newFactory(), "Turn ON the   {KITCHEN|location} lights!")
	require.NoError(t, err)
	require.Len(t, entities, 1)

	assert.Equal(t, "kitchen", entities[0].Entity.Text)
	assert.Equal(t, "KITCHEN", entities[0].RawText)
	assert.Equal(t, "kitchen", entities[0].Span.Extract(q.NormalizedText()))
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		marked string
	}{
		{name: "unclosed entity", marked: "turn on {kitchen|location"},
		{name: "unopened close", marked: "turn on kitchen|location}"},
		{name: "missing type", marked: "turn on {kitchen}"},
		{name: "empty type", marked: "turn on {kitchen|}"},
		{name: "empty role", marked: "turn on {kitchen|location|}"},
		{name: "too many fields", marked: "{a|b|c|d}"},
		{name: "empty entity text", marked: "turn on {|location}"},
		{name: "group without head", marked: "[{jazz|genre}|artist]"},
		{name: "mismatched brackets", marked: "[{jazz|genre}|genre}"},
		{name: "nested entities", marked: "{{a|t}|u}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Parse(newFactory(), tt.marked)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestMarkDown(t *testing.T) {
	plain, err := MarkDown("move from {boston|city|origin} to {seattle|city|destination} tomorrow")
	require.NoError(t, err)
	assert.Equal(t, "move from boston to seattle tomorrow", plain)

	plain, err = MarkDown("play [{jazz|genre} by {coltrane|artist}|genre]")
	require.NoError(t, err)
	assert.Equal(t, "play jazz by coltrane", plain)

	plain, err = MarkDown("no annotations")
	require.NoError(t, err)
	assert.Equal(t, "no annotations", plain)

	_, err = MarkDown("turn on {kitchen|location")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("turn on the {kitchen|location} lights"))
	assert.NoError(t, Validate("plain text"))
	assert.ErrorIs(t, Validate("{a|b|c|d}"), ErrMalformed)
	assert.ErrorIs(t, Validate("[{jazz|genre}|artist]"), ErrMalformed)
}

func TestDumpSingleEntity(t *testing.T) {
	factory := newFactory()
	marked := "turn on the {kitchen|location} lights"

	q, entities, err := Parse(factory, marked)
	require.NoError(t, err)
	assert.Equal(t, marked, Dump(q, entities))
}

func TestDumpWithRoleAndMultipleEntities(t *testing.T) {
	factory := newFactory()
	marked := "move from {boston|city|origin} to {seattle|city|destination} tomorrow"

	q, entities, err := Parse(factory, marked)
	require.NoError(t, err)
	assert.Equal(t, marked, Dump(q, entities))
}

func TestDumpGroup(t *testing.T) {
	factory := newFactory()
	marked := "play [{jazz|genre} by {coltrane|artist}|genre]"

	q, entities, err := Parse(factory, marked)
	require.NoError(t, err)
	assert.Equal(t, marked, Dump(q, entities))
}

func TestDumpPlain(t *testing.T) {
	factory := newFactory()
	q := factory.CreateQuery("no entities here")
	assert.Equal(t, "no entities here", Dump(q, nil))
}
