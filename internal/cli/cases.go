package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/settle/internal/config"
	"github.com/roach88/settle/internal/corpus"
)

// CaseSelection holds the flags that pick which cases a command uses.
type CaseSelection struct {
	CorpusPath string
	Suites     []string
	Cases      []string
	Where      string
}

func (s *CaseSelection) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.CorpusPath, "corpus", "", "corpus file (.yaml or .cue); default: embedded corpus")
	cmd.Flags().StringSliceVar(&s.Suites, "suite", nil, "only run these suites (well_formed, adversarial, interactive)")
	cmd.Flags().StringSliceVar(&s.Cases, "case", nil, "only run these case IDs")
	cmd.Flags().StringVar(&s.Where, "where", "", `CEL filter over case fields, e.g. 'category == "compound" && length != "S"'`)
}

// load reads the corpus: the file named by --corpus, or the embedded one.
func (s *CaseSelection) load() (*corpus.Repository, error) {
	if s.CorpusPath == "" {
		return corpus.Default()
	}
	return corpus.Load(s.CorpusPath)
}

// resolve loads the corpus and applies --suite, --case and --where in
// that order. The result keeps corpus order.
func (s *CaseSelection) resolve() (*corpus.Repository, error) {
	repo, err := s.load()
	if err != nil {
		return nil, err
	}
	if len(s.Suites) > 0 {
		kinds := make([]corpus.SuiteKind, len(s.Suites))
		for i, k := range s.Suites {
			kinds[i] = corpus.SuiteKind(k)
		}
		if repo, err = repo.InSuites(kinds...); err != nil {
			return nil, err
		}
	}
	if len(s.Cases) > 0 {
		if repo, err = repo.Select(s.Cases...); err != nil {
			return nil, err
		}
	}
	if s.Where != "" {
		f, err := corpus.CompileFilter(s.Where)
		if err != nil {
			return nil, err
		}
		if repo, err = f.Apply(repo); err != nil {
			return nil, err
		}
	}
	return repo, nil
}

// corpusFailure maps a corpus error to the CLI error code.
func corpusFailure(f *OutputFormatter, err error) error {
	switch {
	case corpus.HasCode(err, corpus.ErrCodeFilter):
		return f.fail(ExitCommandError, ErrCodeFilter, "case selection failed", err)
	case corpus.HasCode(err, corpus.ErrCodeRead):
		return f.fail(ExitCommandError, ErrCodeNotFound, "corpus could not be read", err)
	default:
		return f.fail(ExitFailure, ErrCodeCorpus, "corpus is invalid", err)
	}
}

// loadConfig returns the file config at path, or the defaults.
func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// signalContext derives a context cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
