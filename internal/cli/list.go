package cli

import (
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/roach88/settle/internal/corpus"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	CaseSelection
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List corpus cases",
		Long: `List the cases a run would execute, after --suite, --case and --where.

Examples:
  settle list
  settle list --suite interactive
  settle list --where 'grammar.contains("question")' --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}
	opts.CaseSelection.addFlags(cmd)
	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	repo, err := opts.CaseSelection.resolve()
	if err != nil {
		return corpusFailure(formatter, err)
	}
	cases := repo.All()

	if opts.Format == "json" {
		return formatter.Success(cases)
	}

	if len(cases) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No cases selected.")
		return nil
	}

	tw := tablewriter.NewWriter(cmd.OutOrStdout())
	tw.SetHeader([]string{"ID", "SUITE", "CATEGORY", "LENGTH", "VARIANT", "INPUT"})
	tw.SetAutoWrapText(false)
	for _, tc := range cases {
		tw.Append([]string{tc.ID, string(tc.Suite), tc.Category, string(tc.LengthClass), string(tc.Variant), inputSummary(tc)})
	}
	tw.Render()
	fmt.Fprintf(cmd.OutOrStdout(), "%d case(s)\n", len(cases))
	return nil
}

// inputSummary shortens long inputs and marks the typed prefix of partial
// cases with a "|".
func inputSummary(tc corpus.TestCase) string {
	const maxRunes = 48
	in := tc.InputText
	if tc.IsPartial() {
		in = tc.PartialInputText + "|" + tc.Remainder()
	}
	rs := []rune(in)
	if len(rs) > maxRunes {
		return string(rs[:maxRunes-1]) + "…"
	}
	return in
}
