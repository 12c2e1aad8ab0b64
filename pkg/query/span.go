package query

import "fmt"

// Span is a character range into one text form of a query. Start and End are
// both inclusive: End is the index of the last character covered. A span for
// a single character therefore has Start == End.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// NewSpan creates a span covering [start, end]. It panics if the range is
// inverted or negative; spans are constructed from recognizer output and an
// inverted span is always a programming error.
func NewSpan(start, end int) Span {
	if start < 0 || end < start {
		panic(fmt.Sprintf("invalid span [%d, %d]", start, end))
	}
	return Span{Start: start, End: end}
}

// Len returns the number of characters covered by the span.
func (s Span) Len() int {
	return s.End - s.Start + 1
}

// Shift returns a copy of the span moved by offset characters.
func (s Span) Shift(offset int) Span {
	return Span{Start: s.Start + offset, End: s.End + offset}
}

// Extract returns the substring of text covered by the span. Out-of-range
// spans are clamped to the text bounds.
func (s Span) Extract(text string) string {
	runes := []rune(text)
	start, end := s.Start, s.End+1
	if start < 0 {
		start = 0
	}
	if end > len(runes) {
		end = len(runes)
	}
	if start >= end {
		return ""
	}
	return string(runes[start:end])
}

// Overlaps reports whether two spans overlap by more than a shared boundary
// character. Single-character spans are widened by one before the check so
// that degenerate one-character recognitions can still match.
func (s Span) Overlaps(other Span) bool {
	aStart, aEnd := s.Start, s.End
	if aStart == aEnd {
		aEnd++
	}
	bStart, bEnd := other.Start, other.End
	if bStart == bEnd {
		bEnd++
	}
	return min(aEnd, bEnd)-max(aStart, bStart) > 0
}

func (s Span) String() string {
	return fmt.Sprintf("[%d, %d]", s.Start, s.End)
}
