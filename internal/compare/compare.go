// Package compare decides whether settled output matches the expectation.
//
// Equality is exact on edge-trimmed text. Internal spacing, case and
// diacritics are significant: the corpus deliberately contains whitespace
// edge cases whose expected output is already normalized upstream.
package compare

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/settle/internal/verdict"
)

// contextRadius is the number of runes shown either side of a difference.
const contextRadius = 5

// Result is the outcome of a comparison. Diff is nil on a match.
type Result struct {
	Outcome verdict.Outcome
	Diff    *verdict.Diff
}

// Matched reports whether the texts were equal.
func (r Result) Matched() bool {
	return r.Outcome == verdict.OutcomePass
}

// Compare checks actual against expected.
//
// Leading and trailing whitespace is stripped from both sides before the
// comparison. A mismatch is a data outcome; Compare never fails.
func Compare(actual, expected string) Result {
	a := strings.TrimSpace(actual)
	e := strings.TrimSpace(expected)
	if a == e {
		return Result{Outcome: verdict.OutcomePass}
	}
	return Result{Outcome: verdict.OutcomeFail, Diff: diff(a, e)}
}

func diff(actual, expected string) *verdict.Diff {
	ar := []rune(actual)
	er := []rune(expected)

	i := 0
	for i < len(ar) && i < len(er) && ar[i] == er[i] {
		i++
	}

	d := &verdict.Diff{
		FirstDiffIndex:    i,
		ExpectedLen:       len(er),
		ActualLen:         len(ar),
		ExpectedNear:      window(er, i),
		ActualNear:        window(ar, i),
		NormalizationOnly: norm.NFC.String(actual) == norm.NFC.String(expected),
	}
	if i < len(er) {
		d.ExpectedRune = string(er[i])
	}
	if i < len(ar) {
		d.ActualRune = string(ar[i])
	}
	return d
}

// window returns the runes within contextRadius of i.
func window(rs []rune, i int) string {
	lo := i - contextRadius
	if lo < 0 {
		lo = 0
	}
	hi := i + contextRadius
	if hi > len(rs) {
		hi = len(rs)
	}
	if lo >= hi {
		return ""
	}
	return string(rs[lo:hi])
}
