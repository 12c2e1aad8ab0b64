package taxonomy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTree() *Tree {
	t := New()
	t.AddIntent("smart_home", "turn_lights_on", "location")
	t.AddIntent("smart_home", "turn_lights_off", "location")
	t.AddIntent("smart_home", "set_thermostat", "location", "sys_temperature")
	t.AddIntent("weather", "check_weather", "city", "sys_time")
	return t
}

func TestTreeNames(t *testing.T) {
	tree := buildTree()

	assert.Equal(t, []string{"smart_home", "weather"}, tree.DomainNames())
	assert.Equal(t,
		[]string{"set_thermostat", "turn_lights_off", "turn_lights_on"},
		tree.IntentNames("smart_home"))
	assert.Nil(t, tree.IntentNames("nope"))
}

func TestTreeEntityTypes(t *testing.T) {
	tree := buildTree()

	assert.Equal(t, []string{"location", "sys_temperature"}, tree.EntityTypes("smart_home"))
	assert.Equal(t,
		[]string{"city", "location", "sys_temperature", "sys_time"},
		tree.EntityTypes(""))
}

func TestAddIntentMergesEntityTypes(t *testing.T) {
	tree := New()
	tree.AddIntent("d", "i", "a")
	tree.AddIntent("d", "i", "a", "b")

	require.True(t, tree.HasIntent("d", "i"))
	assert.Equal(t, []string{"a", "b"}, tree.Domains["d"].Intents["i"].EntityTypes)
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Path
		wantErr bool
	}{
		{name: "domain and intent", input: "smart_home.set_thermostat", want: Path{"smart_home", "set_thermostat"}},
		{name: "wildcard intent", input: "weather.*", want: Path{"weather", "*"}},
		{name: "missing dot", input: "smart_home", wantErr: true},
		{name: "too many dots", input: "a.b.c", wantErr: true},
		{name: "empty domain", input: ".intent", wantErr: true},
		{name: "empty intent", input: "domain.", wantErr: true},
		{name: "empty string", input: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePath(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrUnknownPath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpand(t *testing.T) {
	tree := buildTree()

	sel, err := tree.Expand([]string{"smart_home.set_thermostat", "weather.*"})
	require.NoError(t, err)

	assert.Equal(t, []string{"smart_home", "weather"}, sel.DomainNames())
	assert.Equal(t, []string{"set_thermostat"}, sel.IntentNames("smart_home"))
	assert.Equal(t, []string{"check_weather"}, sel.IntentNames("weather"))
	assert.Nil(t, sel.IntentNames("sports"))
}

func TestExpandWildcardCoversAllIntents(t *testing.T) {
	tree := buildTree()

	sel, err := tree.Expand([]string{"smart_home.*"})
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"set_thermostat", "turn_lights_off", "turn_lights_on"},
		sel.IntentNames("smart_home"))
}

func TestExpandMergesDuplicatePaths(t *testing.T) {
	tree := buildTree()

	sel, err := tree.Expand([]string{
		"smart_home.turn_lights_on",
		"smart_home.turn_lights_on",
		"smart_home.turn_lights_off",
	})
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"turn_lights_off", "turn_lights_on"},
		sel.IntentNames("smart_home"))
}

func TestExpandRejectsUnknownPaths(t *testing.T) {
	tree := buildTree()

	tests := []struct {
		name  string
		paths []string
	}{
		{name: "unknown domain", paths: []string{"sports.scores"}},
		{name: "unknown intent", paths: []string{"smart_home.order_pizza"}},
		{name: "malformed path", paths: []string{"smart_home"}},
		{name: "one bad among good", paths: []string{"weather.*", "smart_home.nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := tree.Expand(tt.paths)
			require.Error(t, err)
			assert.Nil(t, sel)
			assert.ErrorIs(t, err, ErrUnknownPath)

			var pathErr *PathError
			require.True(t, errors.As(err, &pathErr))
			assert.NotEmpty(t, pathErr.Reason)
		})
	}
}
