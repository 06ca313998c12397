package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/settle/internal/driver"
	"github.com/roach88/settle/internal/fakesite"
)

// ServeFixtureOptions holds flags for the serve-fixture command.
type ServeFixtureOptions struct {
	*RootOptions
	CaseSelection

	Addr         string
	Debounce     time.Duration
	StreamStep   time.Duration
	ClearLatency time.Duration

	// Ready, if set, receives the bound address once the server listens
	// (for testing).
	Ready chan<- string
}

// NewServeFixtureCommand creates the serve-fixture command.
func NewServeFixtureCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeFixtureOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve-fixture",
		Short: "Serve a local stand-in for the target UI",
		Long: `Serve a local page shaped like the target: a labelled textarea and an
output div that fills in after a debounce, one character at a time. Inputs
from the corpus render their expected output and anything else is echoed.

Point "settle run --target" at it for a dry run with a real browser.

Examples:
  settle serve-fixture --addr 127.0.0.1:8080
  settle serve-fixture --debounce 1s --stream-step 50ms
  settle run --target http://127.0.0.1:8080/`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServeFixture(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.CorpusPath, "corpus", "", "corpus file (.yaml or .cue); default: embedded corpus")
	cmd.Flags().StringVar(&opts.Addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", 300*time.Millisecond, "delay after the last keystroke before translating")
	cmd.Flags().DurationVar(&opts.StreamStep, "stream-step", 20*time.Millisecond, "delay between rendered characters (0 = render at once)")
	cmd.Flags().DurationVar(&opts.ClearLatency, "clear-latency", 200*time.Millisecond, "how long stale output stays after clearing")

	return cmd
}

func runServeFixture(opts *ServeFixtureOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	repo, err := opts.CaseSelection.load()
	if err != nil {
		return corpusFailure(formatter, err)
	}

	site := fakesite.New(
		fakesite.Translator(driver.TableTranslator(repo.Expectations(), driver.Echo)),
		fakesite.WithDebounce(opts.Debounce),
		fakesite.WithStreamStep(opts.StreamStep),
		fakesite.WithClearLatency(opts.ClearLatency),
		fakesite.WithLogger(logger),
	)

	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeGeneric, "failed to listen", err)
	}
	srv := &http.Server{Handler: site, ReadHeaderTimeout: 5 * time.Second}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	url := fmt.Sprintf("http://%s/", ln.Addr())
	logger.Info("fixture site listening", "url", url, "cases", repo.Len())
	if opts.Format != "json" {
		fmt.Fprintf(cmd.OutOrStdout(), "Serving fixture site on %s\nPress Ctrl-C to stop.\n", url)
	} else if err := formatter.Success(map[string]string{"url": url}); err != nil {
		return err
	}
	if opts.Ready != nil {
		opts.Ready <- ln.Addr().String()
	}

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return formatter.fail(ExitFailure, ErrCodeGeneric, "fixture server failed", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down fixture site")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return formatter.fail(ExitFailure, ErrCodeGeneric, "fixture server shutdown failed", err)
	}
	return nil
}
