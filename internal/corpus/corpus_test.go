package corpus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Shape(t *testing.T) {
	repo, err := Default()
	require.NoError(t, err)

	assert.Equal(t, 35, repo.Len())
	assert.Len(t, repo.Suite(SuiteWellFormed), 24)
	assert.Len(t, repo.Suite(SuiteAdversarial), 10)
	assert.Len(t, repo.Suite(SuiteInteractive), 1)
	assert.Equal(t, SuiteKinds, repo.Suites())

	all := repo.All()
	assert.Equal(t, "Pos_01", all[0].ID)
	assert.Equal(t, "Pos_UI_01", all[len(all)-1].ID)
}

func TestDefault_KnownPairs(t *testing.T) {
	repo, err := Default()
	require.NoError(t, err)

	tests := []struct {
		id       string
		input    string
		expected string
	}{
		{"Pos_02", "mata bath kanna oonaee", "මට බත් කන්න ඕනෑ"},
		{"Neg_01", "mamapansaleinnee", "මම පන්සලේ ඉන්නේ"},
		{"Neg_03", "mata     eeka  epa", "මට ඒක එපා"},
		{"Pos_20", "mata Facebook account ekee password mathaka naee", "මට Facebook account එකේ password මතක නැහැ"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			tc, ok := repo.Get(tt.id)
			require.True(t, ok)
			assert.Equal(t, tt.input, tc.InputText, "input whitespace preserved")
			assert.Equal(t, tt.expected, tc.ExpectedOutput)
			assert.Equal(t, VariantStandard, tc.Variant)
		})
	}
}

func TestDefault_InteractiveCase(t *testing.T) {
	repo, err := Default()
	require.NoError(t, err)

	tc, ok := repo.Get("Pos_UI_01")
	require.True(t, ok)
	assert.True(t, tc.IsPartial())
	assert.Equal(t, "mama kae", tc.PartialInputText)
	assert.Equal(t, "ema kanavaa", tc.Remainder())
	assert.Equal(t, "මම කෑම කනවා", tc.ExpectedOutput)
	assert.Equal(t, SuiteInteractive, tc.Suite)
	assert.Equal(t, "Pos_UI_01 - Real-time translation updates as typing", tc.DisplayName())
}

func TestDefault_MediumLength(t *testing.T) {
	repo, err := Default()
	require.NoError(t, err)
	tc, ok := repo.Get("Pos_24")
	require.True(t, ok)
	assert.Equal(t, LengthMedium, tc.LengthClass)
}

func TestRepository_ReturnsCopies(t *testing.T) {
	repo, err := Default()
	require.NoError(t, err)

	all := repo.All()
	all[0].ExpectedOutput = "tampered"

	tc, _ := repo.Get(all[0].ID)
	assert.NotEqual(t, "tampered", tc.ExpectedOutput)
}

func TestNew_Invariants(t *testing.T) {
	base := TestCase{ID: "A", InputText: "mama", ExpectedOutput: "මම", Suite: SuiteWellFormed}

	tests := []struct {
		name    string
		mutate  func(*TestCase)
		wantMsg string
	}{
		{"empty id", func(tc *TestCase) { tc.ID = " " }, "id: is required"},
		{"empty input", func(tc *TestCase) { tc.InputText = "" }, "input: is required"},
		{"blank expected", func(tc *TestCase) { tc.ExpectedOutput = "  " }, "expected"},
		{"unknown suite", func(tc *TestCase) { tc.Suite = "smoke" }, "unknown suite"},
		{"bad length", func(tc *TestCase) { tc.LengthClass = "XL" }, "length"},
		{"partial without prefix", func(tc *TestCase) { tc.Variant = VariantPartial }, "is required on partial cases"},
		{"partial not a prefix", func(tc *TestCase) {
			tc.Variant = VariantPartial
			tc.PartialInputText = "kae"
		}, "not a proper prefix"},
		{"partial equals input", func(tc *TestCase) {
			tc.Variant = VariantPartial
			tc.PartialInputText = "mama"
		}, "not a proper prefix"},
		{"standard with prefix", func(tc *TestCase) { tc.PartialInputText = "ma" }, "only allowed on partial cases"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := base
			tt.mutate(&tc)
			_, err := New([]TestCase{tc})
			require.Error(t, err)
			assert.True(t, HasCode(err, ErrCodeInvariant))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestNew_DuplicateID(t *testing.T) {
	tc := TestCase{ID: "A", InputText: "mama", ExpectedOutput: "මම", Suite: SuiteWellFormed}
	_, err := New([]TestCase{tc, tc})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate case ID")
}

func TestNew_Defaults(t *testing.T) {
	repo, err := New([]TestCase{{ID: "A", InputText: "mama", ExpectedOutput: "මම", Suite: SuiteWellFormed}})
	require.NoError(t, err)
	tc, _ := repo.Get("A")
	assert.Equal(t, LengthShort, tc.LengthClass)
	assert.Equal(t, VariantStandard, tc.Variant)
}

func TestParse_RejectsUnknownYAMLField(t *testing.T) {
	data := []byte(`version: 1
suites:
  - name: well_formed
    cases:
      - id: A
        input: mama
        expected: මම
        expectd: typo
`)
	_, err := Parse("typo.yaml", data)
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeParse))
	assert.Contains(t, err.Error(), "expectd")
}

func TestParse_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"wrong version", "version: 2\nsuites:\n  - name: well_formed\n    cases: []\n"},
		{"no suites", "version: 1\nsuites: []\n"},
		{"unknown suite", "version: 1\nsuites:\n  - name: smoke\n    cases: []\n"},
		{"bad id", "version: 1\nsuites:\n  - name: well_formed\n    cases:\n      - {id: \"has space\", input: a, expected: b}\n"},
		{"bad length", "version: 1\nsuites:\n  - name: well_formed\n    cases:\n      - {id: A, input: a, expected: b, length: XL}\n"},
		{"blank expected", "version: 1\nsuites:\n  - name: well_formed\n    cases:\n      - {id: A, input: a, expected: \"  \"}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("corpus.yaml", []byte(tt.data))
			require.Error(t, err)
			assert.True(t, HasCode(err, ErrCodeSchema), "got %v", err)
		})
	}
}

func TestParse_CUE(t *testing.T) {
	data := []byte(`version: 1
suites: [{
	name: "interactive"
	cases: [{
		id:            "UI_1"
		name:          "typing"
		input:         "mama kaeema kanavaa"
		partial_input: "mama kae"
		variant:       "partial"
		expected:      "මම කෑම කනවා"
	}]
}]
`)
	repo, err := Parse("corpus.cue", data)
	require.NoError(t, err)
	tc, ok := repo.Get("UI_1")
	require.True(t, ok)
	assert.True(t, tc.IsPartial())
	assert.Equal(t, LengthShort, tc.LengthClass, "schema default applied")
}

func TestParse_CUEClosedSchema(t *testing.T) {
	data := []byte(`version: 1
suites: [{name: "well_formed", cases: [{id: "A", input: "a", expected: "b", extra: true}]}]
`)
	_, err := Parse("corpus.cue", data)
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeSchema))
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.yml")
	require.NoError(t, os.WriteFile(path, DefaultSource(), 0o644))

	repo, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 35, repo.Len())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, HasCode(err, ErrCodeRead))

	_, err = Parse("corpus.json", []byte("{}"))
	assert.True(t, HasCode(err, ErrCodeRead))
	assert.Contains(t, err.Error(), "unsupported corpus file")
}

func TestSelectAndInSuites(t *testing.T) {
	repo, err := Default()
	require.NoError(t, err)

	sel, err := repo.Select("Neg_03", "Pos_02")
	require.NoError(t, err)
	ids := []string{}
	for _, tc := range sel.All() {
		ids = append(ids, tc.ID)
	}
	assert.Equal(t, []string{"Pos_02", "Neg_03"}, ids, "corpus order kept")

	_, err = repo.Select("Nope")
	assert.True(t, HasCode(err, ErrCodeFilter))

	adv, err := repo.InSuites(SuiteAdversarial)
	require.NoError(t, err)
	assert.Equal(t, 10, adv.Len())

	_, err = repo.InSuites("smoke")
	assert.Error(t, err)
}

func TestRepository_Expectations(t *testing.T) {
	repo, err := Default()
	require.NoError(t, err)

	table := repo.Expectations()
	assert.Len(t, table, repo.Len())
	assert.Equal(t, "මට බත් කන්න ඕනෑ", table["mata bath kanna oonaee"])
}
