package query

import (
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldMarks decomposes each rune to its compatibility form, strips combining
// marks, and recomposes. It turns "résumé" into "resume" and expands
// ligatures such as "ﬁ" before classification sees the text.
var foldMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalizer converts raw text to the normalized form consumed by
// classifiers and records rune index maps between the two forms. The zero
// value is not usable; construct with NewNormalizer.
type Normalizer struct {
	lower cases.Caser

	// keepMidToken lists runes preserved when flanked by alphanumerics,
	// so "don't", "at&t" and "u.s." survive as single tokens.
	keepMidToken map[rune]bool
}

// NewNormalizer returns a normalizer for the given language.
func NewNormalizer(lang language.Tag) *Normalizer {
	return &Normalizer{
		lower:        cases.Lower(lang),
		keepMidToken: map[rune]bool{'\'': true, '&': true, '.': true},
	}
}

// Normalize returns the normalized text for input along with forward and
// backward rune index maps. forward[i] is the output index for input rune i;
// dropped runes map to the nearest emitted index. backward[j] is the input
// rune that produced output rune j.
func (n *Normalizer) Normalize(input string) (string, []int, []int) {
	in := []rune(input)
	forward := make([]int, len(in))
	for i := range forward {
		forward[i] = -1
	}

	var out []rune
	var backward []int
	var pendSrcs []int

	flushSpace := func(src int) {
		if len(out) == 0 {
			return
		}
		out = append(out, ' ')
		backward = append(backward, src)
		for _, p := range pendSrcs {
			forward[p] = len(out) - 1
		}
		pendSrcs = nil
	}

	for i, r := range in {
		mapped := n.mapRune(r, i, in)
		sawOutput := false
		for _, m := range mapped {
			if m == ' ' {
				continue
			}
			if len(pendSrcs) > 0 {
				flushSpace(pendSrcs[0])
			}
			out = append(out, m)
			backward = append(backward, i)
			if !sawOutput {
				forward[i] = len(out) - 1
				sawOutput = true
			}
		}
		if !sawOutput {
			// Dropped or whitespace. Whitespace becomes a single
			// pending separator; anything dropped maps to the last
			// emitted rune.
			if containsSpace(mapped) && len(out) > 0 {
				pendSrcs = append(pendSrcs, i)
				continue
			}
			if len(out) > 0 {
				forward[i] = len(out) - 1
			}
		}
	}

	// Trailing separators and leading drops never produced output.
	for _, p := range pendSrcs {
		forward[p] = len(out) - 1
	}
	for i := range forward {
		if forward[i] < 0 {
			forward[i] = 0
		}
	}

	return string(out), forward, backward
}

// mapRune returns the normalized replacement for rune r at position i, with
// ' ' marking a token separator and an empty result marking a dropped rune.
func (n *Normalizer) mapRune(r rune, i int, in []rune) []rune {
	if unicode.IsSpace(r) {
		return []rune{' '}
	}
	if n.keepMidToken[r] && i > 0 && i+1 < len(in) &&
		isWordRune(in[i-1]) && isWordRune(in[i+1]) {
		return []rune{r}
	}
	if !isWordRune(r) {
		return []rune{' '}
	}
	folded, _, err := transform.String(foldMarks, string(r))
	if err != nil {
		folded = string(r)
	}
	folded = n.lower.String(folded)
	var kept []rune
	for _, f := range folded {
		if isWordRune(f) {
			kept = append(kept, f)
		}
	}
	return kept
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func containsSpace(rs []rune) bool {
	for _, r := range rs {
		if r == ' ' {
			return true
		}
	}
	return false
}

// invert builds the reverse of a forward map given the output length, filling
// output indexes nothing maps to with the nearest earlier source index.
func invert(forward []int, outLen int) []int {
	backward := make([]int, outLen)
	for i := range backward {
		backward[i] = -1
	}
	for src, dst := range forward {
		if dst >= 0 && dst < outLen && backward[dst] < 0 {
			backward[dst] = src
		}
	}
	last := 0
	for j := range backward {
		if backward[j] < 0 {
			backward[j] = last
		} else {
			last = backward[j]
		}
	}
	return backward
}
