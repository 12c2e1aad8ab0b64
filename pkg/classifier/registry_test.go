package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/Delphi/pkg/query"
)

func TestRegistryDefaults(t *testing.T) {
	r := NewRegistry()

	text, err := r.NewText(ModelBayes)
	require.NoError(t, err)
	assert.IsType(t, &BayesText{}, text)

	rec, err := r.NewRecognizer(ModelPhrase)
	require.NoError(t, err)
	assert.IsType(t, &PhraseRecognizer{}, rec)

	role, err := r.NewRole(ModelBayes)
	require.NoError(t, err)
	assert.IsType(t, &BayesRole{}, role)

	resolver, err := r.NewResolver(ModelExact)
	require.NoError(t, err)
	assert.IsType(t, &ExactResolver{}, resolver)
}

func TestRegistryUnknownModel(t *testing.T) {
	r := NewRegistry()

	_, err := r.NewText("nope")
	assert.ErrorIs(t, err, ErrUnknownModel)
	_, err = r.NewRecognizer("nope")
	assert.ErrorIs(t, err, ErrUnknownModel)
	_, err = r.NewRole("nope")
	assert.ErrorIs(t, err, ErrUnknownModel)
	_, err = r.NewResolver("nope")
	assert.ErrorIs(t, err, ErrUnknownModel)
}

type constantClassifier struct {
	label string
}

func (c *constantClassifier) Fit([]Example) error { return nil }
func (c *constantClassifier) Predict(*query.Query) (string, error) {
	return c.label, nil
}
func (c *constantClassifier) PredictProba(*query.Query) ([]Scored, error) {
	return []Scored{{Label: c.label, Score: 1}}, nil
}
func (c *constantClassifier) Labels() []string      { return []string{c.label} }
func (c *constantClassifier) Dump() ([]byte, error) { return []byte(c.label), nil }
func (c *constantClassifier) Load(data []byte) error {
	c.label = string(data)
	return nil
}

func TestRegistryCustomRegistration(t *testing.T) {
	r := NewRegistry()
	r.RegisterText("constant", func() Classifier { return &constantClassifier{label: "x"} })

	c, err := r.NewText("constant")
	require.NoError(t, err)

	label, err := c.Predict(nil)
	require.NoError(t, err)
	assert.Equal(t, "x", label)
}
