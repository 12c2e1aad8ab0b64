// Package scripted provides a text classifier whose scoring logic is a
// JavaScript snippet evaluated in sandboxed VMs. It covers tiers whose
// selection is rule-driven rather than learned: the script sees the query
// and the label set and returns a score per label, and the classifier
// normalizes and ranks the result behind the same interface the trained
// models implement.
package scripted

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"

	"github.com/wehubfusion/Delphi/pkg/classifier"
	"github.com/wehubfusion/Delphi/pkg/query"
)

// ModelScripted is the registry name of the scripted text classifier.
const ModelScripted = "scripted"

const scriptName = "classifier.js"

// Config configures a scripted classifier.
type Config struct {
	// Script computes label scores. It is evaluated with the globals text
	// (the normalized query text), tokens and stems (string arrays), and
	// labels (the fitted label set); its completion value must be an object
	// mapping labels to non-negative numbers. Labels the script omits score
	// zero; an all-zero result falls back to a uniform distribution.
	Script string

	// Timeout bounds one evaluation. Defaults to 5s.
	Timeout time.Duration

	// PoolSize is the number of sandboxed VMs kept for concurrent
	// prediction. Defaults to 4.
	PoolSize int
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 4
	}
}

// Text is a script-backed text classifier. The script comes from the
// configuration when fitting and from the artifact when loading.
type Text struct {
	cfg Config

	mu     sync.RWMutex
	script string
	prog   *goja.Program
	labels []string
	pool   *vmPool
}

// NewText returns an unfitted scripted classifier.
func NewText(cfg Config) *Text {
	cfg.applyDefaults()
	return &Text{cfg: cfg}
}

// Register registers the scripted classifier on the registry under
// ModelScripted. The configuration seeds fitted instances; loaded instances
// take their script from the artifact.
func Register(registry *classifier.Registry, cfg Config) {
	registry.RegisterText(ModelScripted, func() classifier.Classifier { return NewText(cfg) })
}

// Fit collects the label set from the examples and compiles the configured
// script. The examples' texts are not consulted; scripted selection has no
// training phase.
func (t *Text) Fit(examples []classifier.Example) error {
	if len(examples) == 0 {
		return classifier.ErrNoExamples
	}
	if t.cfg.Script == "" {
		return ErrNoScript
	}
	set := make(map[string]bool, len(examples))
	for _, ex := range examples {
		set[ex.Label] = true
	}
	labels := make([]string, 0, len(set))
	for label := range set {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return t.install(t.cfg.Script, labels)
}

// install compiles the script, builds a fresh VM pool, and swaps both in.
func (t *Text) install(script string, labels []string) error {
	prog, err := goja.Compile(scriptName, script, false)
	if err != nil {
		return fmt.Errorf("compiling script: %w", wrapScriptError(err))
	}
	pool, err := newVMPool(t.cfg.PoolSize, newSandboxedVM)
	if err != nil {
		return fmt.Errorf("building VM pool: %w", err)
	}

	t.mu.Lock()
	old := t.pool
	t.script = script
	t.prog = prog
	t.labels = labels
	t.pool = pool
	t.mu.Unlock()

	if old != nil {
		old.close()
	}
	return nil
}

// Predict returns the highest scoring label.
func (t *Text) Predict(q *query.Query) (string, error) {
	ranked, err := t.PredictProba(q)
	if err != nil {
		return "", err
	}
	return ranked[0].Label, nil
}

// PredictProba evaluates the script and returns every label with its
// normalized score, ranked by descending score.
func (t *Text) PredictProba(q *query.Query) ([]classifier.Scored, error) {
	t.mu.RLock()
	prog, labels, pool, timeout := t.prog, t.labels, t.pool, t.cfg.Timeout
	t.mu.RUnlock()
	if prog == nil || len(labels) == 0 {
		return nil, classifier.ErrNotFitted
	}

	raw, err := evaluate(prog, pool, timeout, q, labels)
	if err != nil {
		return nil, err
	}
	return rank(labels, raw), nil
}

// Labels returns the sorted label set.
func (t *Text) Labels() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.prog == nil {
		return nil
	}
	out := make([]string, len(t.labels))
	copy(out, t.labels)
	return out
}

// artifact is the serialized form of a fitted scripted classifier.
type artifact struct {
	Script string   `json:"script"`
	Labels []string `json:"labels"`
}

// Dump serializes the script and label set.
func (t *Text) Dump() ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.prog == nil {
		return nil, classifier.ErrNotFitted
	}
	return json.Marshal(artifact{Script: t.script, Labels: t.labels})
}

// Load restores a classifier dumped by Dump, recompiling its script.
func (t *Text) Load(data []byte) error {
	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("decoding scripted artifact: %w", err)
	}
	if a.Script == "" {
		return fmt.Errorf("scripted artifact: %w", ErrNoScript)
	}
	if len(a.Labels) == 0 {
		return fmt.Errorf("scripted artifact has no labels")
	}
	return t.install(a.Script, a.Labels)
}

// Close releases the VM pool. The classifier is unusable afterwards.
func (t *Text) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pool != nil {
		t.pool.close()
		t.pool = nil
		t.prog = nil
	}
	return nil
}

// evaluate runs the compiled script on one query, interrupting the VM when
// the timeout elapses.
func evaluate(prog *goja.Program, pool *vmPool, timeout time.Duration, q *query.Query, labels []string) (map[string]float64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	vm, err := pool.acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring VM: %w", err)
	}
	defer pool.release(vm)

	tokens := q.Tokens()
	words := make([]string, len(tokens))
	stems := make([]string, len(tokens))
	for i, tok := range tokens {
		words[i] = tok.Text
		stems[i] = tok.Stem
		if stems[i] == "" {
			stems[i] = tok.Text
		}
	}
	for name, value := range map[string]interface{}{
		"text":   q.NormalizedText(),
		"tokens": words,
		"stems":  stems,
		"labels": labels,
	} {
		if err := vm.Set(name, value); err != nil {
			return nil, fmt.Errorf("setting %s: %w", name, err)
		}
	}

	var interrupted atomic.Bool
	done := make(chan struct{})
	watcher := make(chan struct{})
	go func() {
		defer close(watcher)
		select {
		case <-ctx.Done():
			interrupted.Store(true)
			vm.Interrupt("evaluation timeout")
		case <-done:
		}
	}()

	value, runErr := vm.RunProgram(prog)

	// Join the watcher before clearing the interrupt, so a timeout firing
	// just as the script finishes cannot leave a pending interrupt on a
	// VM that goes back to the pool.
	close(done)
	<-watcher
	vm.ClearInterrupt()

	if runErr != nil {
		if interrupted.Load() {
			return nil, fmt.Errorf("%w after %s", ErrEvalTimeout, timeout)
		}
		return nil, wrapScriptError(runErr)
	}
	return scores(value.Export(), labels)
}

// scores converts the script's completion value into per-label scores.
// Negative scores clip to zero and labels outside the fitted set are
// ignored.
func scores(exported interface{}, labels []string) (map[string]float64, error) {
	obj, ok := exported.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrBadResult, exported)
	}
	out := make(map[string]float64, len(labels))
	for _, label := range labels {
		raw, ok := obj[label]
		if !ok {
			continue
		}
		score, ok := toFloat(raw)
		if !ok {
			return nil, fmt.Errorf("%w: score for %q is %T", ErrBadResult, label, raw)
		}
		if score > 0 {
			out[label] = score
		}
	}
	return out, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// rank normalizes the raw scores over the label set and sorts descending,
// breaking ties by label. All-zero scores rank uniformly.
func rank(labels []string, raw map[string]float64) []classifier.Scored {
	var total float64
	for _, score := range raw {
		total += score
	}
	ranked := make([]classifier.Scored, len(labels))
	for i, label := range labels {
		score := 1 / float64(len(labels))
		if total > 0 {
			score = raw[label] / total
		}
		ranked[i] = classifier.Scored{Label: label, Score: score}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Label < ranked[j].Label
	})
	return ranked
}
