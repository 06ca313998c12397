package corpus

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource []byte

//go:embed fixtures/swifttranslator.yaml
var defaultSource []byte

// DefaultName is the file name reported for the embedded corpus.
const DefaultName = "swifttranslator.yaml"

// Format is a corpus file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatCUE  Format = "cue"
)

// FormatOf infers the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".cue":
		return FormatCUE, nil
	default:
		return "", &Error{Code: ErrCodeRead, Message: fmt.Sprintf("unsupported corpus file %s (want .yaml, .yml or .cue)", path)}
	}
}

// document mirrors the file layout. The json tags are what CUE encodes and
// decodes against; the yaml tags are for the strict YAML decoder.
type document struct {
	Version int           `yaml:"version" json:"version"`
	Suites  []suiteRecord `yaml:"suites" json:"suites"`
}

type suiteRecord struct {
	Name        string       `yaml:"name" json:"name"`
	Description string       `yaml:"description,omitempty" json:"description,omitempty"`
	Cases       []caseRecord `yaml:"cases" json:"cases"`
}

type caseRecord struct {
	ID           string `yaml:"id" json:"id"`
	Name         string `yaml:"name,omitempty" json:"name,omitempty"`
	Input        string `yaml:"input" json:"input"`
	Expected     string `yaml:"expected" json:"expected"`
	Category     string `yaml:"category,omitempty" json:"category,omitempty"`
	Grammar      string `yaml:"grammar,omitempty" json:"grammar,omitempty"`
	Length       string `yaml:"length,omitempty" json:"length,omitempty"`
	Variant      string `yaml:"variant,omitempty" json:"variant,omitempty"`
	PartialInput string `yaml:"partial_input,omitempty" json:"partial_input,omitempty"`
}

// Default returns the embedded swifttranslator.com corpus.
func Default() (*Repository, error) {
	return Parse(DefaultName, defaultSource)
}

// DefaultSource returns the raw embedded corpus file.
func DefaultSource() []byte {
	return bytes.Clone(defaultSource)
}

// Load reads a corpus file. The format follows the extension.
func Load(path string) (*Repository, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Code: ErrCodeRead, Message: fmt.Sprintf("read corpus: %v", err)}
	}
	return Parse(path, data)
}

// Parse decodes and validates corpus data. name selects the format and is
// used in error positions.
func Parse(name string, data []byte) (*Repository, error) {
	format, err := FormatOf(name)
	if err != nil {
		return nil, err
	}

	ctx := cuecontext.New()
	var v cue.Value
	switch format {
	case FormatYAML:
		// Strict decode first so typos fail with a YAML line number.
		var doc document
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&doc); err != nil {
			return nil, &Error{Code: ErrCodeParse, Message: fmt.Sprintf("%s: %v", name, err)}
		}
		v = ctx.Encode(doc)
	case FormatCUE:
		v = ctx.CompileBytes(data, cue.Filename(name))
	}
	if err := v.Err(); err != nil {
		return nil, &Error{Code: ErrCodeParse, Message: fmt.Sprintf("%s: %v", name, err)}
	}

	doc, err := validateSchema(ctx, v)
	if err != nil {
		return nil, err
	}
	return New(doc.cases())
}

// validateSchema unifies v with #Corpus and decodes the result, which fills
// in schema defaults.
func validateSchema(ctx *cue.Context, v cue.Value) (*document, error) {
	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile corpus schema: %w", err)
	}
	unified := schema.LookupPath(cue.ParsePath("#Corpus")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, schemaError(err)
	}
	var doc document
	if err := unified.Decode(&doc); err != nil {
		return nil, schemaError(err)
	}
	return &doc, nil
}

func (d *document) cases() []TestCase {
	var out []TestCase
	for _, s := range d.Suites {
		for _, c := range s.Cases {
			out = append(out, TestCase{
				ID:               c.ID,
				Name:             c.Name,
				InputText:        c.Input,
				ExpectedOutput:   c.Expected,
				Category:         c.Category,
				GrammarTag:       c.Grammar,
				LengthClass:      LengthClass(c.Length),
				Variant:          Variant(c.Variant),
				PartialInputText: c.PartialInput,
				Suite:            SuiteKind(s.Name),
			})
		}
	}
	return out
}
