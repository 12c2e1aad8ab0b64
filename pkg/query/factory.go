package query

import (
	"strings"
	"time"

	"golang.org/x/text/language"
)

// Preprocessor rewrites raw text before normalization, for example to expand
// abbreviations or strip markup. It returns the processed text and a forward
// rune index map from the input to the output; a nil map means the text was
// returned unchanged.
type Preprocessor interface {
	Process(text string) (string, []int)
}

// FactoryConfig configures a query Factory. All fields are optional; the
// zero value yields an English factory with no preprocessor and no system
// entity recognizer.
type FactoryConfig struct {
	Language         language.Tag
	Preprocessor     Preprocessor
	SystemRecognizer SystemRecognizer
}

// Factory builds Query values. It owns the normalization pipeline so every
// consumer of a query sees the same three text forms and index maps.
type Factory struct {
	lang language.Tag
	pre  Preprocessor
	norm *Normalizer
	sys  SystemRecognizer
}

// NewFactory returns a factory for the given configuration.
func NewFactory(cfg FactoryConfig) *Factory {
	lang := cfg.Language
	if lang == language.Und {
		lang = language.English
	}
	return &Factory{
		lang: lang,
		pre:  cfg.Preprocessor,
		norm: NewNormalizer(lang),
		sys:  cfg.SystemRecognizer,
	}
}

// QueryOption adjusts how a single query is created.
type QueryOption func(*queryOptions)

type queryOptions struct {
	lang      language.Tag
	timestamp time.Time
}

// WithTimestamp sets the reference time used to ground relative system
// entities such as "tomorrow at noon".
func WithTimestamp(t time.Time) QueryOption {
	return func(o *queryOptions) { o.timestamp = t }
}

// WithLanguage overrides the factory language for one query.
func WithLanguage(tag language.Tag) QueryOption {
	return func(o *queryOptions) { o.lang = tag }
}

// CreateQuery runs text through preprocessing and normalization and returns
// the resulting query, including any system entity candidates.
func (f *Factory) CreateQuery(text string, opts ...QueryOption) *Query {
	o := queryOptions{lang: f.lang, timestamp: time.Now()}
	for _, opt := range opts {
		opt(&o)
	}

	q := &Query{
		raw:       text,
		lang:      o.lang,
		timestamp: o.timestamp,
	}

	q.processed = text
	if f.pre != nil {
		processed, forward := f.pre.Process(text)
		q.processed = processed
		if forward != nil {
			q.rawToProc = forward
			q.procToRaw = invert(forward, len([]rune(processed)))
		}
	}

	normalized, forward, backward := f.norm.Normalize(q.processed)
	q.normalized = normalized
	q.procToNorm = forward
	q.normToProc = backward

	q.tokens = tokenize(normalized)

	if f.sys != nil {
		q.systemCandidates = f.sys.Recognize(q)
	}
	return q
}

// tokenize splits normalized text on single spaces, recording each token's
// rune span and stem.
func tokenize(normalized string) []Token {
	var tokens []Token
	runes := []rune(normalized)
	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		text := string(runes[start:end])
		tokens = append(tokens, Token{
			Text: text,
			Stem: Stem(text),
			Span: Span{Start: start, End: end - 1},
		})
		start = -1
	}
	for i, r := range runes {
		if r == ' ' {
			flush(i)
			continue
		}
		if start < 0 {
			start = i
		}
	}
	flush(len(runes))
	return tokens
}

// Stem reduces an English token to a crude stem by stripping common
// suffixes. It is deliberately conservative; classifiers use stems only as
// supplementary features, so under-stemming is preferable to collisions.
func Stem(token string) string {
	t := strings.TrimSuffix(token, "'s")
	switch {
	case strings.HasSuffix(t, "ies") && len(t) > 4:
		return t[:len(t)-3] + "y"
	case strings.HasSuffix(t, "sses"):
		return t[:len(t)-2]
	case strings.HasSuffix(t, "es") && len(t) > 3:
		return t[:len(t)-2]
	case strings.HasSuffix(t, "s") && !strings.HasSuffix(t, "ss") && len(t) > 3:
		return t[:len(t)-1]
	case strings.HasSuffix(t, "ing") && len(t) > 5:
		return t[:len(t)-3]
	case strings.HasSuffix(t, "ed") && len(t) > 4:
		return t[:len(t)-2]
	}
	return t
}
