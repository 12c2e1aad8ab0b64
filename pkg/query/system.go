package query

import (
	"strconv"
	"strings"
)

// SystemRecognizer detects language-universal entities such as numbers,
// times, and measurements in a query. Implementations typically wrap an
// external duckling-style service; candidates are attached to the query at
// construction time so downstream stages never re-run detection.
type SystemRecognizer interface {
	Recognize(q *Query) []*QueryEntity
}

// NumberRecognizer is a built-in SystemRecognizer that detects cardinal
// numbers written as digits or as single English number words. It exists so
// applications can run without an external recognizer service.
type NumberRecognizer struct{}

const NumberEntityType = "sys_number"

var numberWords = map[string]float64{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4,
	"five": 5, "six": 6, "seven": 7, "eight": 8, "nine": 9,
	"ten": 10, "eleven": 11, "twelve": 12, "twenty": 20,
	"thirty": 30, "forty": 40, "fifty": 50, "sixty": 60,
	"seventy": 70, "eighty": 80, "ninety": 90, "hundred": 100,
	"thousand": 1000, "million": 1e6,
}

// Recognize returns one sys_number candidate per numeric token of the
// query's normalized text, with the parsed value already resolved.
func (NumberRecognizer) Recognize(q *Query) []*QueryEntity {
	var found []*QueryEntity
	for _, tok := range q.Tokens() {
		value, ok := parseNumber(tok.Text)
		if !ok {
			continue
		}
		qe := NewQueryEntity(q, tok.Span, NumberEntityType, "")
		qe.Entity.Value = []ResolvedValue{{
			CName: strconv.FormatFloat(value, 'f', -1, 64),
			Score: 1,
		}}
		found = append(found, qe)
	}
	return found
}

func parseNumber(token string) (float64, bool) {
	if v, ok := numberWords[strings.ToLower(token)]; ok {
		return v, true
	}
	v, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
