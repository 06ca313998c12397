package corpus

import (
	"fmt"
	"strings"
)

// Repository is an ordered, read-only collection of test cases.
//
// Thread-safety: a Repository is never mutated after New and is safe for
// concurrent use.
type Repository struct {
	cases []TestCase
	byID  map[string]int
}

// New validates cases and wraps them in a Repository, keeping their order.
//
// Empty LengthClass defaults to LengthShort and empty Variant to
// VariantStandard. Returns an *Error with ErrCodeInvariant if any case is
// invalid.
func New(cases []TestCase) (*Repository, error) {
	r := &Repository{
		cases: make([]TestCase, 0, len(cases)),
		byID:  make(map[string]int, len(cases)),
	}
	for _, tc := range cases {
		if tc.LengthClass == "" {
			tc.LengthClass = LengthShort
		}
		if tc.Variant == "" {
			tc.Variant = VariantStandard
		}
		if err := validateCase(tc); err != nil {
			return nil, err
		}
		if _, dup := r.byID[tc.ID]; dup {
			return nil, &Error{Code: ErrCodeInvariant, CaseID: tc.ID, Field: "id", Message: "duplicate case ID"}
		}
		r.byID[tc.ID] = len(r.cases)
		r.cases = append(r.cases, tc)
	}
	return r, nil
}

func validateCase(tc TestCase) error {
	invalid := func(field, format string, args ...any) error {
		return &Error{Code: ErrCodeInvariant, CaseID: tc.ID, Field: field, Message: fmt.Sprintf(format, args...)}
	}
	if strings.TrimSpace(tc.ID) == "" {
		return invalid("id", "is required")
	}
	if tc.InputText == "" {
		return invalid("input", "is required")
	}
	if strings.TrimSpace(tc.ExpectedOutput) == "" {
		return invalid("expected", "must contain non-whitespace text")
	}
	if !tc.Suite.Valid() {
		return invalid("suite", "unknown suite %q", tc.Suite)
	}
	switch tc.LengthClass {
	case LengthShort, LengthMedium, LengthLong:
	default:
		return invalid("length", "must be S, M or L, got %q", tc.LengthClass)
	}
	switch tc.Variant {
	case VariantStandard:
		if tc.PartialInputText != "" {
			return invalid("partial_input", "only allowed on partial cases")
		}
	case VariantPartial:
		if tc.PartialInputText == "" {
			return invalid("partial_input", "is required on partial cases")
		}
		if !strings.HasPrefix(tc.InputText, tc.PartialInputText) || len(tc.PartialInputText) == len(tc.InputText) {
			return invalid("partial_input", "%q is not a proper prefix of %q", tc.PartialInputText, tc.InputText)
		}
	default:
		return invalid("variant", "must be standard or partial, got %q", tc.Variant)
	}
	return nil
}

// Len returns the number of cases.
func (r *Repository) Len() int {
	return len(r.cases)
}

// All returns a copy of every case in execution order.
func (r *Repository) All() []TestCase {
	out := make([]TestCase, len(r.cases))
	copy(out, r.cases)
	return out
}

// Suite returns the cases of one suite in execution order.
func (r *Repository) Suite(k SuiteKind) []TestCase {
	var out []TestCase
	for _, tc := range r.cases {
		if tc.Suite == k {
			out = append(out, tc)
		}
	}
	return out
}

// Suites returns the suites present, in order of first appearance.
func (r *Repository) Suites() []SuiteKind {
	seen := map[SuiteKind]bool{}
	var out []SuiteKind
	for _, tc := range r.cases {
		if !seen[tc.Suite] {
			seen[tc.Suite] = true
			out = append(out, tc.Suite)
		}
	}
	return out
}

// Get looks a case up by ID.
func (r *Repository) Get(id string) (TestCase, bool) {
	i, ok := r.byID[id]
	if !ok {
		return TestCase{}, false
	}
	return r.cases[i], true
}

// Filter returns a repository holding the cases keep accepts.
func (r *Repository) Filter(keep func(TestCase) bool) *Repository {
	out := &Repository{byID: map[string]int{}}
	for _, tc := range r.cases {
		if keep(tc) {
			out.byID[tc.ID] = len(out.cases)
			out.cases = append(out.cases, tc)
		}
	}
	return out
}

// Select returns the named cases in corpus order. Unknown IDs are an error.
func (r *Repository) Select(ids ...string) (*Repository, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := r.byID[id]; !ok {
			return nil, &Error{Code: ErrCodeFilter, CaseID: id, Message: "no such case"}
		}
		want[id] = true
	}
	return r.Filter(func(tc TestCase) bool { return want[tc.ID] }), nil
}

// InSuites keeps only cases from the given suites.
func (r *Repository) InSuites(kinds ...SuiteKind) (*Repository, error) {
	want := make(map[SuiteKind]bool, len(kinds))
	for _, k := range kinds {
		if !k.Valid() {
			return nil, &Error{Code: ErrCodeFilter, Message: fmt.Sprintf("unknown suite %q", k)}
		}
		want[k] = true
	}
	return r.Filter(func(tc TestCase) bool { return want[tc.Suite] }), nil
}

// Expectations maps every input text to its expected output. Simulated
// targets use it to render the corpus' own expectations.
func (r *Repository) Expectations() map[string]string {
	out := make(map[string]string, len(r.cases))
	for _, tc := range r.cases {
		out[tc.InputText] = tc.ExpectedOutput
	}
	return out
}
