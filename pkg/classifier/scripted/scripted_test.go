package scripted

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/Delphi/pkg/classifier"
	"github.com/wehubfusion/Delphi/pkg/query"
)

var testFactory = query.NewFactory(query.FactoryConfig{})

const keywordScript = `
(function() {
	var scores = {};
	if (text.indexOf("light") >= 0 || text.indexOf("thermostat") >= 0) {
		scores["smart_home"] = 2;
	}
	if (text.indexOf("weather") >= 0 || text.indexOf("rain") >= 0) {
		scores["weather"] = 2;
	}
	return scores;
})()
`

func keywordExamples() []classifier.Example {
	return []classifier.Example{
		{Query: testFactory.CreateQuery("turn on the lights"), Label: "smart_home"},
		{Query: testFactory.CreateQuery("what is the weather"), Label: "weather"},
	}
}

func fittedKeyword(t *testing.T) *Text {
	t.Helper()
	c := NewText(Config{Script: keywordScript})
	require.NoError(t, c.Fit(keywordExamples()))
	t.Cleanup(func() { c.Close() })
	return c
}

func TestScriptedPredict(t *testing.T) {
	c := fittedKeyword(t)

	tests := []struct {
		text string
		want string
	}{
		{text: "turn the lights off", want: "smart_home"},
		{text: "set the thermostat", want: "smart_home"},
		{text: "will it rain tomorrow", want: "weather"},
	}
	for _, tt := range tests {
		got, err := c.Predict(testFactory.CreateQuery(tt.text))
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "text %q", tt.text)
	}
}

func TestScriptedPredictProbaNormalizes(t *testing.T) {
	c := fittedKeyword(t)

	ranked, err := c.PredictProba(testFactory.CreateQuery("dim the lights"))
	require.NoError(t, err)
	require.Len(t, ranked, 2)

	var total float64
	for _, s := range ranked {
		total += s.Score
	}
	assert.InDelta(t, 1.0, total, 1e-9)
	assert.Equal(t, "smart_home", ranked[0].Label)
	assert.Greater(t, ranked[0].Score, ranked[1].Score)
}

func TestScriptedUniformWhenNoSignal(t *testing.T) {
	c := fittedKeyword(t)

	ranked, err := c.PredictProba(testFactory.CreateQuery("play some jazz"))
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.InDelta(t, 0.5, ranked[0].Score, 1e-9)
	assert.InDelta(t, 0.5, ranked[1].Score, 1e-9)
	// Ties rank alphabetically.
	assert.Equal(t, "smart_home", ranked[0].Label)
	assert.Equal(t, "weather", ranked[1].Label)
}

func TestScriptedClipsAndIgnoresUnknownLabels(t *testing.T) {
	script := `({smart_home: -5, weather: 3, bogus: 10})`
	c := NewText(Config{Script: script})
	require.NoError(t, c.Fit(keywordExamples()))
	defer c.Close()

	ranked, err := c.PredictProba(testFactory.CreateQuery("anything"))
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "weather", ranked[0].Label)
	assert.InDelta(t, 1.0, ranked[0].Score, 1e-9)
	assert.InDelta(t, 0.0, ranked[1].Score, 1e-9)
}

func TestScriptedTokensAndLabelsGlobals(t *testing.T) {
	// Scores every label by how many tokens the query has, proving the
	// tokens and labels globals are wired.
	script := `
(function() {
	var scores = {};
	for (var i = 0; i < labels.length; i++) {
		scores[labels[i]] = tokens.length;
	}
	return scores;
})()
`
	c := NewText(Config{Script: script})
	require.NoError(t, c.Fit(keywordExamples()))
	defer c.Close()

	ranked, err := c.PredictProba(testFactory.CreateQuery("one two three"))
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.InDelta(t, 0.5, ranked[0].Score, 1e-9)
}

func TestScriptedNotFitted(t *testing.T) {
	c := NewText(Config{Script: keywordScript})

	_, err := c.Predict(testFactory.CreateQuery("hello"))
	assert.ErrorIs(t, err, classifier.ErrNotFitted)

	_, err = c.Dump()
	assert.ErrorIs(t, err, classifier.ErrNotFitted)

	assert.Nil(t, c.Labels())
}

func TestScriptedFitValidation(t *testing.T) {
	c := NewText(Config{Script: keywordScript})
	assert.ErrorIs(t, c.Fit(nil), classifier.ErrNoExamples)

	empty := NewText(Config{})
	assert.ErrorIs(t, empty.Fit(keywordExamples()), ErrNoScript)
}

func TestScriptedCompileError(t *testing.T) {
	c := NewText(Config{Script: "function("})
	err := c.Fit(keywordExamples())
	require.Error(t, err)

	var scriptErr *ScriptError
	assert.ErrorAs(t, err, &scriptErr)
}

func TestScriptedRuntimeException(t *testing.T) {
	c := NewText(Config{Script: `(function() { throw new Error("boom"); })()`})
	require.NoError(t, c.Fit(keywordExamples()))
	defer c.Close()

	_, err := c.Predict(testFactory.CreateQuery("hello"))
	require.Error(t, err)

	var scriptErr *ScriptError
	require.ErrorAs(t, err, &scriptErr)
	assert.Contains(t, scriptErr.Message, "boom")
}

func TestScriptedBadResult(t *testing.T) {
	for _, script := range []string{`42`, `"nope"`, `({smart_home: "high"})`} {
		c := NewText(Config{Script: script})
		require.NoError(t, c.Fit(keywordExamples()))

		_, err := c.Predict(testFactory.CreateQuery("hello"))
		assert.ErrorIs(t, err, ErrBadResult, "script %q", script)
		c.Close()
	}
}

func TestScriptedTimeout(t *testing.T) {
	c := NewText(Config{Script: `while (true) {}`, Timeout: 50 * time.Millisecond, PoolSize: 1})
	require.NoError(t, c.Fit(keywordExamples()))
	defer c.Close()

	_, err := c.Predict(testFactory.CreateQuery("hello"))
	assert.ErrorIs(t, err, ErrEvalTimeout)

	// The interrupted VM must come back usable.
	ok := NewText(Config{Script: keywordScript})
	require.NoError(t, ok.Fit(keywordExamples()))
	defer ok.Close()
	_, err = ok.Predict(testFactory.CreateQuery("lights"))
	assert.NoError(t, err)
}

func TestScriptedSandboxBlocksHostGlobals(t *testing.T) {
	c := NewText(Config{Script: `(function() { return typeof require; })()`})
	require.NoError(t, c.Fit(keywordExamples()))
	defer c.Close()

	// typeof require is "undefined", which is not a score object.
	_, err := c.Predict(testFactory.CreateQuery("hello"))
	assert.ErrorIs(t, err, ErrBadResult)

	evil := NewText(Config{Script: `eval("1+1")`})
	require.NoError(t, evil.Fit(keywordExamples()))
	defer evil.Close()

	_, err = evil.Predict(testFactory.CreateQuery("hello"))
	var scriptErr *ScriptError
	assert.ErrorAs(t, err, &scriptErr)
}

func TestScriptedDumpLoadRoundTrip(t *testing.T) {
	c := fittedKeyword(t)

	data, err := c.Dump()
	require.NoError(t, err)

	restored := NewText(Config{})
	require.NoError(t, restored.Load(data))
	defer restored.Close()

	assert.Equal(t, c.Labels(), restored.Labels())
	got, err := restored.Predict(testFactory.CreateQuery("turn on the lights"))
	require.NoError(t, err)
	assert.Equal(t, "smart_home", got)
}

func TestScriptedLoadValidation(t *testing.T) {
	c := NewText(Config{})
	assert.Error(t, c.Load([]byte("{not json")))
	assert.ErrorIs(t, c.Load([]byte(`{"labels":["a"]}`)), ErrNoScript)
	assert.Error(t, c.Load([]byte(`{"script":"({})"}`)))
}

func TestScriptedRegistry(t *testing.T) {
	reg := classifier.NewRegistry()
	Register(reg, Config{Script: keywordScript})

	c, err := reg.NewText(ModelScripted)
	require.NoError(t, err)
	require.NoError(t, c.Fit(keywordExamples()))

	got, err := c.Predict(testFactory.CreateQuery("will it rain"))
	require.NoError(t, err)
	assert.Equal(t, "weather", got)
}

func TestScriptedConcurrentPredict(t *testing.T) {
	c := NewText(Config{Script: keywordScript, PoolSize: 2})
	require.NoError(t, c.Fit(keywordExamples()))
	defer c.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				if _, err := c.Predict(testFactory.CreateQuery("turn on the lights")); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent predict: %v", err)
	}
}
