package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/roach88/settle/internal/report"
	"github.com/roach88/settle/internal/store"
	"github.com/roach88/settle/internal/verdict"
)

// HistoryOptions holds flags shared by the history subcommands.
type HistoryOptions struct {
	*RootOptions
	Database string
	Limit    int
	Target   string
}

// NewHistoryCommand creates the history command and its subcommands.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect runs recorded with run --db",
		Long: `Inspect runs recorded with "settle run --db".

Examples:
  settle history list --db runs.db
  settle history show --db runs.db 0190f1c2-...
  settle history case --db runs.db Pos_UI_01
  settle history flaky --db runs.db --target https://www.swifttranslator.com/`,
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkPersistentFlagRequired("db")

	list := &cobra.Command{
		Use:           "list",
		Short:         "List recorded runs, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, cmd, func(ctx context.Context, f *OutputFormatter, st *store.Store) error {
				return historyList(ctx, opts, f, st)
			})
		},
	}
	list.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "maximum number of runs (0 = all)")

	show := &cobra.Command{
		Use:           "show <run-id>",
		Short:         "Show the verdicts of one run",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, cmd, func(ctx context.Context, f *OutputFormatter, st *store.Store) error {
				return historyShow(ctx, f, st, args[0])
			})
		},
	}

	caseCmd := &cobra.Command{
		Use:           "case <case-id>",
		Short:         "Show one case's outcome across runs",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, cmd, func(ctx context.Context, f *OutputFormatter, st *store.Store) error {
				return historyCase(ctx, opts, f, st, args[0])
			})
		},
	}
	caseCmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "maximum number of runs (0 = all)")

	flaky := &cobra.Command{
		Use:           "flaky",
		Short:         "List cases whose outcome changed between runs",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, cmd, func(ctx context.Context, f *OutputFormatter, st *store.Store) error {
				return historyFlaky(ctx, opts, f, st)
			})
		},
	}
	flaky.Flags().StringVar(&opts.Target, "target", "", "only consider runs against this URL")

	cmd.AddCommand(list, show, caseCmd, flaky)
	return cmd
}

// withStore opens the database read side and runs fn against it.
func withStore(opts *HistoryOptions, cmd *cobra.Command, fn func(context.Context, *OutputFormatter, *store.Store) error) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	// Opening creates the file, so check first that it exists.
	if _, err := os.Stat(opts.Database); err != nil {
		return formatter.fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("database not found: %s", opts.Database), err)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, formatter, st)
}

func historyList(ctx context.Context, opts *HistoryOptions, f *OutputFormatter, st *store.Store) error {
	runs, err := st.ListRuns(ctx, opts.Limit)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeStore, "failed to list runs", err)
	}
	if opts.Format == "json" {
		return f.Success(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(f.Writer, "No runs recorded.")
		return nil
	}

	tw := tablewriter.NewWriter(f.Writer)
	tw.SetHeader([]string{"", "RUN", "STARTED", "TARGET", "PASSED", "FAILED", "TIMEOUT", "DRIVER ERR"})
	tw.SetAutoWrapText(false)
	for _, r := range runs {
		mark := "✓"
		if r.Aborted || !r.Summary.AllPassed() {
			mark = "✗"
		}
		passed := fmt.Sprintf("%d/%d", r.Summary.Passed, r.Planned)
		if r.Aborted {
			passed += " (aborted)"
		}
		tw.Append([]string{
			mark,
			r.ID,
			r.StartedAt.Format(time.RFC3339),
			r.TargetURL,
			passed,
			fmt.Sprint(r.Summary.Failed),
			fmt.Sprint(r.Summary.Timeouts),
			fmt.Sprint(r.Summary.DriverErrors),
		})
	}
	tw.Render()
	return nil
}

func historyShow(ctx context.Context, f *OutputFormatter, st *store.Store, runID string) error {
	rep, err := st.LoadReport(ctx, runID)
	if errors.Is(err, store.ErrNotFound) {
		return f.fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("run not found: %s", runID), nil)
	}
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeStore, "failed to load run", err)
	}
	if f.Format == "json" {
		return f.Success(rep)
	}
	report.WriteText(f.Writer, rep)
	return nil
}

func historyCase(ctx context.Context, opts *HistoryOptions, f *OutputFormatter, st *store.Store, caseID string) error {
	hist, err := st.CaseHistory(ctx, caseID, opts.Limit)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeStore, "failed to read case history", err)
	}
	if opts.Format == "json" {
		return f.Success(hist)
	}
	if len(hist) == 0 {
		fmt.Fprintf(f.Writer, "No recorded runs of %s.\n", caseID)
		return nil
	}

	tw := tablewriter.NewWriter(f.Writer)
	tw.SetHeader([]string{"", "RUN", "STARTED", "TARGET", "OUTCOME", "ACTUAL"})
	tw.SetAutoWrapText(false)
	for _, h := range hist {
		mark := "✓"
		if h.Outcome != verdict.OutcomePass {
			mark = "✗"
		}
		actual := ""
		if h.Actual != nil {
			actual = *h.Actual
		}
		tw.Append([]string{mark, h.RunID, h.StartedAt.Format(time.RFC3339), h.TargetURL, string(h.Outcome), actual})
	}
	tw.Render()
	return nil
}

func historyFlaky(ctx context.Context, opts *HistoryOptions, f *OutputFormatter, st *store.Store) error {
	flaky, err := st.Flaky(ctx, opts.Target)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeStore, "failed to compute flaky cases", err)
	}
	if opts.Format == "json" {
		return f.Success(flaky)
	}
	if len(flaky) == 0 {
		fmt.Fprintln(f.Writer, "✓ No flaky cases.")
		return nil
	}

	tw := tablewriter.NewWriter(f.Writer)
	tw.SetHeader([]string{"CASE", "RUNS", "PASSES", "FLIPS"})
	for _, s := range flaky {
		tw.Append([]string{s.CaseID, fmt.Sprint(s.Runs), fmt.Sprint(s.Passes), fmt.Sprint(s.Flips)})
	}
	tw.Render()
	return nil
}
