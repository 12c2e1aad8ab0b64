package resource

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/Delphi/pkg/query"
)

func writeAppFixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "domains", "smart_home", "turn_lights_on", "train.txt"),
		"turn on the {kitchen|location} lights\n"+
			"# a comment line\n"+
			"\n"+
			"switch the {bedroom|location} light on\n")
	writeFile(t, filepath.Join(root, "domains", "smart_home", "turn_lights_on", "test.txt"),
		"please turn the {hallway|location} lights on\n")
	writeFile(t, filepath.Join(root, "domains", "smart_home", "set_thermostat", "train.txt"),
		"set it to {72|sys_temperature} degrees in the {den|location}\n")
	writeFile(t, filepath.Join(root, "domains", "weather", "check_weather", "train.txt"),
		"what is the weather in {paris|city}\n")

	writeFile(t, filepath.Join(root, "entities", "location", "mapping.json"),
		`{"entities":[{"id":"L1","cname":"Kitchen","whitelist":["the kitchen","cooking area"]}]}`)
	writeFile(t, filepath.Join(root, "entities", "location", "gazetteer.txt"),
		"kitchen\nbedroom\n# not this one\nhallway\n")
	writeFile(t, filepath.Join(root, "entities", "city", "gazetteer.txt"), "paris\nlondon\n")

	return root
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newLoader(t *testing.T, root string) *Loader {
	t.Helper()
	factory := query.NewFactory(query.FactoryConfig{})
	loader, err := NewLoader(root, factory, nil)
	require.NoError(t, err)
	t.Cleanup(func() { loader.Close() })
	return loader
}

func TestNewLoaderValidation(t *testing.T) {
	factory := query.NewFactory(query.FactoryConfig{})

	_, err := NewLoader("", factory, nil)
	assert.Error(t, err)

	_, err = NewLoader(t.TempDir(), nil, nil)
	assert.Error(t, err)

	_, err = NewLoader(filepath.Join(t.TempDir(), "missing"), factory, nil)
	assert.Error(t, err)
}

func TestLoaderTree(t *testing.T) {
	loader := newLoader(t, writeAppFixture(t))

	tree, err := loader.Tree()
	require.NoError(t, err)

	assert.Equal(t, []string{"smart_home", "weather"}, tree.DomainNames())
	assert.Equal(t, []string{"set_thermostat", "turn_lights_on"}, tree.IntentNames("smart_home"))
	assert.Equal(t, []string{"check_weather"}, tree.IntentNames("weather"))
}

func TestLoaderLabeledQueries(t *testing.T) {
	loader := newLoader(t, writeAppFixture(t))

	examples, err := loader.LabeledQueries("smart_home", "turn_lights_on", TrainFiles)
	require.NoError(t, err)
	require.Len(t, examples, 2)

	first := examples[0]
	assert.Equal(t, "smart_home", first.Domain)
	assert.Equal(t, "turn_lights_on", first.Intent)
	assert.Equal(t, "turn on the kitchen lights", first.Query.Text())
	require.Len(t, first.Entities, 1)
	assert.Equal(t, "location", first.Entities[0].Entity.Type)
	assert.Equal(t, "kitchen", first.Entities[0].Entity.Text)
}

func TestLoaderTestFiles(t *testing.T) {
	loader := newLoader(t, writeAppFixture(t))

	examples, err := loader.LabeledQueries("smart_home", "turn_lights_on", TestFiles)
	require.NoError(t, err)
	require.Len(t, examples, 1)
	assert.Equal(t, "hallway", examples[0].Entities[0].Entity.Text)
}

func TestLoaderNoTrainingData(t *testing.T) {
	loader := newLoader(t, writeAppFixture(t))

	_, err := loader.LabeledQueries("smart_home", "set_thermostat", TestFiles)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoTrainingData)
}

func TestLoaderCachesParsedQueries(t *testing.T) {
	root := writeAppFixture(t)
	loader := newLoader(t, root)

	first, err := loader.LabeledQueries("smart_home", "turn_lights_on", TrainFiles)
	require.NoError(t, err)

	n, err := loader.openCache().Size()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Second read hits the cache and must produce identical examples.
	second, err := loader.LabeledQueries("smart_home", "turn_lights_on", TrainFiles)
	require.NoError(t, err)
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Query.Text(), second[i].Query.Text())
		require.Len(t, second[i].Entities, len(first[i].Entities))
		for j := range first[i].Entities {
			assert.Equal(t, first[i].Entities[j].Entity, second[i].Entities[j].Entity)
			assert.Equal(t, first[i].Entities[j].Span, second[i].Entities[j].Span)
		}
	}
}

func TestLoaderEntityResources(t *testing.T) {
	loader := newLoader(t, writeAppFixture(t))

	types, err := loader.EntityTypes()
	require.NoError(t, err)
	assert.Equal(t, []string{"city", "location"}, types)

	mapping, err := loader.Mapping("location")
	require.NoError(t, err)
	require.Len(t, mapping.Entities, 1)
	assert.Equal(t, "Kitchen", mapping.Entities[0].CName)
	assert.Equal(t, []string{"the kitchen", "cooking area"}, mapping.Entities[0].Whitelist)

	gazetteer, err := loader.Gazetteer("location")
	require.NoError(t, err)
	assert.Equal(t, []string{"kitchen", "bedroom", "hallway"}, gazetteer)

	missing, err := loader.Mapping("city")
	require.NoError(t, err)
	assert.Empty(t, missing.Entities)
}
