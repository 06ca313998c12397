package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/settle/internal/config"
	"github.com/roach88/settle/internal/corpus"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	CorpusPath string
	ConfigPath string
}

// ValidationIssue is one problem found by validate.
type ValidationIssue struct {
	Source  string `json:"source"` // "corpus" or "config"
	Code    string `json:"code"`
	CaseID  string `json:"case_id,omitempty"`
	Field   string `json:"field,omitempty"`
	Line    int    `json:"line,omitempty"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Cases  int               `json:"cases,omitempty"`
	Suites map[string]int    `json:"suites,omitempty"`
	Target string            `json:"target_url,omitempty"`
	Errors []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a corpus and a config file without running",
		Long: `Check a corpus file against the corpus schema and its invariants, and a
config file against the config rules. With no flags the embedded corpus
and the built-in config are checked.

Exit codes:
  0 - Everything is valid
  1 - The corpus or config is invalid
  2 - Command error (file not found, unsupported extension, etc.)

Examples:
  settle validate --corpus cases.yaml
  settle validate --corpus cases.cue --config local.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.CorpusPath, "corpus", "", "corpus file (.yaml or .cue)")
	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (YAML)")

	return cmd
}

func runValidate(opts *ValidateOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	result := ValidationResult{Valid: true}

	sel := CaseSelection{CorpusPath: opts.CorpusPath}
	repo, err := sel.load()
	switch {
	case corpus.HasCode(err, corpus.ErrCodeRead):
		return formatter.fail(ExitCommandError, ErrCodeNotFound, "corpus could not be read", err)
	case err != nil:
		result.Errors = append(result.Errors, corpusIssue(err))
	default:
		result.Cases = repo.Len()
		result.Suites = map[string]int{}
		for _, k := range repo.Suites() {
			result.Suites[string(k)] = len(repo.Suite(k))
		}
		formatter.VerboseLog("Corpus: %d case(s)", repo.Len())
	}

	cfg, err := loadConfig(opts.ConfigPath)
	if err == nil {
		err = cfg.Validate()
	}
	switch {
	case errors.Is(err, config.ErrRead):
		return formatter.fail(ExitCommandError, ErrCodeNotFound, "config could not be read", err)
	case err != nil:
		result.Errors = append(result.Errors, ValidationIssue{Source: "config", Code: ErrCodeConfig, Message: err.Error()})
	default:
		result.Target = cfg.TargetURL
	}

	result.Valid = len(result.Errors) == 0

	if opts.Format == "json" {
		if !result.Valid {
			if err := formatter.Error(ErrCodeGeneric, "validation failed", result); err != nil {
				return err
			}
			return NewExitError(ExitFailure, "validation failed")
		}
		return formatter.Success(result)
	}

	writeValidationText(cmd.OutOrStdout(), opts, result)
	if !result.Valid {
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}

func corpusIssue(err error) ValidationIssue {
	issue := ValidationIssue{Source: "corpus", Code: ErrCodeCorpus, Message: err.Error()}
	var ce *corpus.Error
	if errors.As(err, &ce) {
		issue.Code = ce.Code
		issue.CaseID = ce.CaseID
		issue.Field = ce.Field
		issue.Message = ce.Message
		if ce.Pos.IsValid() {
			issue.Line = ce.Pos.Line()
		}
	}
	return issue
}

func writeValidationText(w io.Writer, opts *ValidateOptions, result ValidationResult) {
	corpusName := opts.CorpusPath
	if corpusName == "" {
		corpusName = "embedded corpus"
	}
	configName := opts.ConfigPath
	if configName == "" {
		configName = "built-in config"
	}

	corpusOK, configOK := true, true
	for _, issue := range result.Errors {
		if issue.Source == "corpus" {
			corpusOK = false
		} else {
			configOK = false
		}
	}

	if corpusOK {
		fmt.Fprintf(w, "✓ %s: %d case(s)", corpusName, result.Cases)
		for _, k := range corpus.SuiteKinds {
			if n, ok := result.Suites[string(k)]; ok {
				fmt.Fprintf(w, ", %d %s", n, k)
			}
		}
		fmt.Fprintln(w)
	}
	if configOK {
		fmt.Fprintf(w, "✓ %s: target %s\n", configName, result.Target)
	}

	for _, issue := range result.Errors {
		name := corpusName
		if issue.Source == "config" {
			name = configName
		}
		loc := ""
		if issue.Line > 0 {
			loc = fmt.Sprintf(" (line %d)", issue.Line)
		}
		subject := ""
		if issue.CaseID != "" {
			subject = "case " + issue.CaseID + ": "
		}
		if issue.Field != "" {
			subject += issue.Field + ": "
		}
		fmt.Fprintf(w, "✗ %s%s: [%s] %s%s\n", name, loc, issue.Code, subject, issue.Message)
	}
}
