package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/roach88/settle/internal/clock"
	"github.com/roach88/settle/internal/config"
	"github.com/roach88/settle/internal/corpus"
	"github.com/roach88/settle/internal/driver"
	"github.com/roach88/settle/internal/harness"
	"github.com/roach88/settle/internal/metrics"
	"github.com/roach88/settle/internal/report"
	"github.com/roach88/settle/internal/store"
)

// Driver backends.
const (
	DriverChrome = "chrome"
	DriverFake   = "fake"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	CaseSelection

	ConfigPath     string
	Targets        []string
	Driver         string
	Database       string
	MetricsAddr    string
	RenavigateEach bool
	Headless       bool
	ExecPath       string
	NoProgress     bool

	// DriverFactory overrides session creation (for testing).
	// If nil, --driver decides.
	DriverFactory harness.DriverFactory

	// Clock overrides the time source (for testing). If nil, the wall clock.
	Clock clock.Clock

	// RunIDs overrides the run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs harness.RunIDGenerator
}

// TargetOutput is one target's entry in JSON output.
type TargetOutput struct {
	Target string          `json:"target"`
	Report *harness.Report `json:"report,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// RunOutput is the JSON payload of the run command.
type RunOutput struct {
	Targets []TargetOutput `json:"targets"`
	Passed  bool           `json:"passed"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the corpus against a live target",
		Long: `Run the selected corpus cases against the target UI, one case at a time.

Each case clears the input, injects the text, waits for the output to
settle and compares it exactly with the expectation. With --targets the
same cases run against several URLs at once, each in its own browser.

Exit codes:
  0 - All cases passed
  1 - One or more cases failed, timed out or hit a driver error
  2 - Command error (invalid flags, config or corpus path, etc.)
  3 - Run aborted (target unreachable, browser lost, interrupted)

Examples:
  settle run
  settle run --suite adversarial --format json
  settle run --case Pos_01,Pos_UI_01 --headless=false
  settle run --where 'length == "M" || variant == "partial"'
  settle run --targets http://localhost:8080/,https://www.swifttranslator.com/ --db runs.db
  settle run --driver fake --config local.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuite(opts, cmd)
		},
	}

	opts.CaseSelection.addFlags(cmd)
	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (YAML); default: built-in settings")
	cmd.Flags().StringSliceVar(&opts.Targets, "target", nil, "target URL; repeat or comma-separate for parallel sessions")
	cmd.Flags().StringSliceVar(&opts.Targets, "targets", nil, "alias of --target")
	cmd.Flags().StringVar(&opts.Driver, "driver", DriverChrome, "automation backend (chrome|fake)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run in this SQLite database")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")
	cmd.Flags().BoolVar(&opts.RenavigateEach, "renavigate-each", false, "reload the target before every case")
	cmd.Flags().BoolVar(&opts.Headless, "headless", true, "run Chrome without a window")
	cmd.Flags().StringVar(&opts.ExecPath, "chrome", "", "path to the Chrome executable")
	cmd.Flags().BoolVar(&opts.NoProgress, "no-progress", false, "do not print per-case progress on a terminal")

	return cmd
}

func runSuite(opts *RunOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}
	applyRunFlags(opts, cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return formatter.fail(ExitCommandError, ErrCodeConfig, "invalid config", err)
	}

	repo, err := opts.CaseSelection.resolve()
	if err != nil {
		return corpusFailure(formatter, err)
	}
	cases := repo.All()
	formatter.VerboseLog("Selected %d case(s)", len(cases))

	targets := opts.Targets
	if len(targets) == 0 {
		targets = []string{cfg.TargetURL}
	}

	open, err := opts.driverFactory(cfg, repo, logger)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeDriver, "invalid driver", err)
	}

	var st *store.Store
	if opts.Database != "" {
		st, err = store.Open(opts.Database)
		if err != nil {
			return formatter.fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	runOpts := []harness.Option{harness.WithLogger(logger)}
	if opts.Clock != nil {
		runOpts = append(runOpts, harness.WithClock(opts.Clock))
	}
	if opts.RunIDs != nil {
		runOpts = append(runOpts, harness.WithRunIDGenerator(opts.RunIDs))
	}

	if opts.Format != "json" && !opts.NoProgress && isTerminal(cmd.ErrOrStderr()) {
		progress := report.NewProgress(cmd.ErrOrStderr(), len(cases)*len(targets))
		if len(targets) > 1 {
			runOpts = append(runOpts, harness.WithTargetObserver(progress.ForTarget))
		} else {
			runOpts = append(runOpts, harness.WithObserver(progress))
		}
	}

	var m *metrics.Metrics
	if opts.MetricsAddr != "" {
		m = metrics.New()
		runOpts = append(runOpts, harness.WithTargetObserver(m.ForTarget))
		stop, err := serveMetrics(opts.MetricsAddr, m, logger)
		if err != nil {
			return formatter.fail(ExitCommandError, ErrCodeGeneric, "failed to serve metrics", err)
		}
		defer stop()
	}

	results := harness.RunTargets(ctx, cfg, targets, cases, open, runOpts...)

	out := RunOutput{Targets: make([]TargetOutput, len(results)), Passed: true}
	aborted := false
	for i, res := range results {
		to := TargetOutput{Target: res.Target, Report: res.Report}
		if res.Err != nil {
			to.Error = res.Err.Error()
			if harness.IsAborted(res.Err) {
				aborted = true
			}
			out.Passed = false
		}
		if res.Report != nil {
			if !res.Report.Passed() {
				out.Passed = false
			}
			if m != nil {
				m.RecordRun(res.Report)
			}
			if st != nil {
				if err := st.SaveReport(context.WithoutCancel(ctx), res.Report); err != nil {
					logger.Error("failed to record run", "run_id", res.Report.RunID, "error", err)
				} else {
					formatter.VerboseLog("Recorded run %s in %s", res.Report.RunID, opts.Database)
				}
			}
		}
		out.Targets[i] = to
	}

	if err := writeRunOutput(formatter, out, aborted); err != nil {
		return err
	}

	switch {
	case aborted:
		return NewExitError(ExitAborted, "run aborted")
	case !out.Passed:
		return NewExitError(ExitFailure, "one or more cases did not pass")
	}
	return nil
}

// applyRunFlags layers explicitly set flags over the file config.
func applyRunFlags(opts *RunOptions, cmd *cobra.Command, cfg *config.Config) {
	if len(opts.Targets) == 1 {
		cfg.TargetURL = opts.Targets[0]
	}
	if cmd.Flags().Changed("renavigate-each") {
		cfg.RenavigateEach = opts.RenavigateEach
	}
	if cmd.Flags().Changed("headless") {
		cfg.Browser.Headless = opts.Headless
	}
	if opts.ExecPath != "" {
		cfg.Browser.ExecPath = opts.ExecPath
	}
}

func (opts *RunOptions) driverFactory(cfg config.Config, repo *corpus.Repository, logger *slog.Logger) (harness.DriverFactory, error) {
	if opts.DriverFactory != nil {
		return opts.DriverFactory, nil
	}
	c := opts.Clock
	if c == nil {
		c = clock.New()
	}

	switch opts.Driver {
	case DriverChrome:
		return func(ctx context.Context, target string) (driver.Driver, error) {
			return driver.NewChromeDriver(ctx, driver.ChromeOptions{
				Headless: cfg.Browser.Headless,
				ExecPath: cfg.Browser.ExecPath,
			},
				driver.WithChromeClock(c),
				driver.WithChromeLogger(logger.With("target", target)),
			)
		}, nil
	case DriverFake:
		translate := driver.TableTranslator(repo.Expectations(), driver.Echo)
		return func(context.Context, string) (driver.Driver, error) {
			return driver.NewFakeDriver(c, translate,
				driver.WithDebounce(300*time.Millisecond),
				driver.WithStreamStep(20*time.Millisecond),
				driver.WithClearLatency(200*time.Millisecond),
			), nil
		}, nil
	}
	return nil, fmt.Errorf("unknown driver %q: must be %s or %s", opts.Driver, DriverChrome, DriverFake)
}

func writeRunOutput(f *OutputFormatter, out RunOutput, aborted bool) error {
	if f.Format == "json" {
		// Data is kept on failure so consumers still get every verdict.
		resp := CLIResponse{Status: "ok", Data: out}
		switch {
		case aborted:
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodeAborted, Message: "run aborted", Details: targetErrors(out)}
		case !out.Passed:
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodeFailed, Message: "one or more cases did not pass", Details: targetErrors(out)}
		}
		if len(out.Targets) == 1 && out.Targets[0].Report != nil {
			resp.RunID = out.Targets[0].Report.RunID
		}
		return f.encode(resp)
	}

	for i, t := range out.Targets {
		if i > 0 {
			fmt.Fprintln(f.Writer)
		}
		if t.Report != nil {
			report.WriteText(f.Writer, t.Report)
		} else {
			fmt.Fprintf(f.Writer, "Target: %s\n", t.Target)
		}
		if t.Error != "" && (t.Report == nil || !t.Report.Aborted) {
			fmt.Fprintf(f.Writer, "ERROR: %s\n", t.Error)
		}
	}
	return nil
}

// targetErrors maps targets to their session errors, or returns nil if
// there are none.
func targetErrors(out RunOutput) any {
	errs := map[string]string{}
	for _, t := range out.Targets {
		if t.Error != "" {
			errs[t.Target] = t.Error
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// serveMetrics starts the metrics endpoint and returns its shutdown func.
func serveMetrics(addr string, m *metrics.Metrics, logger *slog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	router := mux.NewRouter()
	router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)

	srv := &http.Server{Handler: router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
