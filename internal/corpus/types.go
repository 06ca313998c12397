// Package corpus holds the immutable set of transliteration test cases.
//
// A corpus is a list of suites, each a list of cases pairing a Singlish
// input with its exact expected Sinhala rendering. Files are YAML or CUE and
// are validated against an embedded CUE schema before the cross-case
// invariants (unique IDs, proper partial prefixes) are checked in Go.
//
// The default corpus for swifttranslator.com is embedded in the binary.
package corpus

import "fmt"

// SuiteKind names a group of cases with a shared purpose.
type SuiteKind string

const (
	SuiteWellFormed  SuiteKind = "well_formed"
	SuiteAdversarial SuiteKind = "adversarial"
	SuiteInteractive SuiteKind = "interactive"
)

// SuiteKinds lists the known suites in execution order.
var SuiteKinds = []SuiteKind{SuiteWellFormed, SuiteAdversarial, SuiteInteractive}

// Valid reports whether k is a known suite.
func (k SuiteKind) Valid() bool {
	for _, s := range SuiteKinds {
		if s == k {
			return true
		}
	}
	return false
}

// LengthClass buckets inputs by size.
type LengthClass string

const (
	LengthShort  LengthClass = "S"
	LengthMedium LengthClass = "M"
	LengthLong   LengthClass = "L"
)

// Variant selects how the input is injected.
type Variant string

const (
	// VariantStandard replaces the input in one step.
	VariantStandard Variant = "standard"

	// VariantPartial types PartialInputText first, checks that an
	// intermediate rendering appears, then types the remainder.
	VariantPartial Variant = "partial"
)

// TestCase is one input/expected pair.
//
// TestCase is a value type. The repository hands out copies, so a case
// cannot be modified after loading.
type TestCase struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	InputText        string      `json:"input"`
	ExpectedOutput   string      `json:"expected"`
	Category         string      `json:"category,omitempty"`
	GrammarTag       string      `json:"grammar,omitempty"`
	LengthClass      LengthClass `json:"length"`
	Variant          Variant     `json:"variant"`
	PartialInputText string      `json:"partial_input,omitempty"`
	Suite            SuiteKind   `json:"suite"`
}

// DisplayName renders the case as "<id> - <name>".
func (tc TestCase) DisplayName() string {
	if tc.Name == "" {
		return tc.ID
	}
	return fmt.Sprintf("%s - %s", tc.ID, tc.Name)
}

// IsPartial reports whether the case uses the two-step typing flow.
func (tc TestCase) IsPartial() bool {
	return tc.Variant == VariantPartial
}

// Remainder returns the input still to type after the partial prefix.
func (tc TestCase) Remainder() string {
	if !tc.IsPartial() {
		return tc.InputText
	}
	return tc.InputText[len(tc.PartialInputText):]
}
