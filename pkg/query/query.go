package query

import (
	"time"

	"golang.org/x/text/language"
)

// TextForm identifies one of the three text forms a query carries. The raw
// form is the text as the user typed it, the processed form has had the
// factory's preprocessor applied, and the normalized form is what classifiers
// and recognizers consume.
type TextForm int

const (
	FormRaw TextForm = iota
	FormProcessed
	FormNormalized
)

func (f TextForm) String() string {
	switch f {
	case FormRaw:
		return "raw"
	case FormProcessed:
		return "processed"
	case FormNormalized:
		return "normalized"
	default:
		return "unknown"
	}
}

// Query is an immutable view of one piece of input text in its three forms,
// together with character index maps between the forms, tokenization of the
// normalized form, and any system entity candidates detected at construction
// time. Queries are built by a Factory and shared read-only across the
// pipeline, so they carry no locks.
type Query struct {
	raw        string
	processed  string
	normalized string

	tokens []Token

	// forward maps index i in one form to the matching index in the next
	// form (raw -> processed, processed -> normalized); backward maps the
	// other way. Indexes are rune offsets.
	rawToProc  []int
	procToRaw  []int
	procToNorm []int
	normToProc []int

	lang      language.Tag
	timestamp time.Time

	systemCandidates []*QueryEntity
}

// Token is one whitespace-delimited token of the normalized text along with
// its rune span in the normalized form and a stemmed variant.
type Token struct {
	Text string `json:"text"`
	Stem string `json:"stem,omitempty"`
	Span Span   `json:"span"`
}

// Text returns the raw text as given by the user.
func (q *Query) Text() string { return q.raw }

// ProcessedText returns the text after preprocessing.
func (q *Query) ProcessedText() string { return q.processed }

// NormalizedText returns the normalized text consumed by classifiers.
func (q *Query) NormalizedText() string { return q.normalized }

// TextForForm returns the requested text form.
func (q *Query) TextForForm(form TextForm) string {
	switch form {
	case FormRaw:
		return q.raw
	case FormProcessed:
		return q.processed
	default:
		return q.normalized
	}
}

// Tokens returns the tokens of the normalized text. Callers must not modify
// the returned slice.
func (q *Query) Tokens() []Token { return q.tokens }

// Language returns the query's language tag.
func (q *Query) Language() language.Tag { return q.lang }

// Timestamp returns the reference time used for relative system entities
// such as "tomorrow". It is the query construction time unless the factory
// caller supplied one.
func (q *Query) Timestamp() time.Time { return q.timestamp }

// SystemCandidates returns the system entity candidates detected when the
// query was built. Callers must not modify the returned slice.
func (q *Query) SystemCandidates() []*QueryEntity { return q.systemCandidates }

// TransformIndex maps a rune index from one text form to another by walking
// the factory-recorded character maps. Indexes outside the source form are
// clamped to its bounds.
func (q *Query) TransformIndex(index int, from, to TextForm) int {
	if from == to {
		return index
	}
	for from < to {
		switch from {
		case FormRaw:
			index = lookup(q.rawToProc, index)
		case FormProcessed:
			index = lookup(q.procToNorm, index)
		}
		from++
	}
	for from > to {
		switch from {
		case FormNormalized:
			index = lookup(q.normToProc, index)
		case FormProcessed:
			index = lookup(q.procToRaw, index)
		}
		from--
	}
	return index
}

// TransformSpan maps a span from one text form to another.
func (q *Query) TransformSpan(span Span, from, to TextForm) Span {
	if from == to {
		return span
	}
	start := q.TransformIndex(span.Start, from, to)
	end := q.TransformIndex(span.End, from, to)
	if end < start {
		end = start
	}
	return Span{Start: start, End: end}
}

func lookup(m []int, index int) int {
	if len(m) == 0 {
		return index
	}
	if index < 0 {
		index = 0
	}
	if index >= len(m) {
		index = len(m) - 1
	}
	return m[index]
}
