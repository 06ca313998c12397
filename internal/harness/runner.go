package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/roach88/settle/internal/clock"
	"github.com/roach88/settle/internal/compare"
	"github.com/roach88/settle/internal/config"
	"github.com/roach88/settle/internal/corpus"
	"github.com/roach88/settle/internal/driver"
	"github.com/roach88/settle/internal/stabilize"
	"github.com/roach88/settle/internal/verdict"
)

// Runner executes test cases over a single driver session.
//
// A Runner is not safe for concurrent use; run independent targets with
// separate runners (see RunTargets).
type Runner struct {
	drv      driver.Driver
	cfg      config.Config
	stab     *stabilize.Stabilizer
	clock    clock.Clock
	logger   *slog.Logger
	observer Observers
	runIDs   RunIDGenerator
}

// Option configures a Runner.
type Option func(*Runner)

// WithClock sets the time source for every wait. Default: the wall clock.
func WithClock(c clock.Clock) Option {
	return func(r *Runner) {
		r.clock = c
	}
}

// WithLogger sets the logger. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithObserver adds progress observers.
func WithObserver(o ...Observer) Option {
	return func(r *Runner) {
		r.observer = append(r.observer, o...)
	}
}

// WithTargetObserver adds an observer built for the runner's target URL.
// It suits RunTargets, where one option set serves every target.
func WithTargetObserver(f func(target string) Observer) Option {
	return func(r *Runner) {
		r.observer = append(r.observer, f(r.cfg.TargetURL))
	}
}

// WithRunIDGenerator sets the run ID source. Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(r *Runner) {
		r.runIDs = g
	}
}

// New creates a runner driving drv with cfg. cfg must be valid.
func New(drv driver.Driver, cfg config.Config, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	r := &Runner{
		drv:    drv,
		cfg:    cfg,
		clock:  clock.New(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		runIDs: UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(r)
	}

	stab, err := stabilize.New(cfg.Policy(),
		stabilize.WithClock(r.clock),
		stabilize.WithLogger(r.logger),
		stabilize.WithIdle(cfg.Output.IsIdle),
	)
	if err != nil {
		return nil, err
	}
	r.stab = stab
	return r, nil
}

// Open navigates to the target and waits PostLoadSettle.
//
// Errors are *driver.NavigationError or the context error.
func (r *Runner) Open(ctx context.Context) error {
	nctx, cancel := context.WithTimeout(ctx, r.cfg.PageLoadTimeout())
	defer cancel()

	r.logger.Debug("navigating", "url", r.cfg.TargetURL)
	if err := r.drv.Navigate(nctx, r.cfg.TargetURL); err != nil {
		return err
	}
	return r.clock.Sleep(ctx, r.cfg.PostLoadSettle())
}

// RunSuite runs cases in order and returns one verdict per case.
//
// The page is loaded once up front, or before every case when
// RenavigateEach is set. InterTestCooldown separates consecutive cases.
// A navigation failure or cancellation stops the run; the returned report
// then holds the verdicts so far and the error is an *AbortError.
func (r *Runner) RunSuite(ctx context.Context, cases []corpus.TestCase) (*Report, error) {
	rep := &Report{
		RunID:     r.runIDs.Generate(),
		TargetURL: r.cfg.TargetURL,
		StartedAt: r.clock.Now(),
		Planned:   len(cases),
	}
	logger := r.logger.With("run_id", rep.RunID)
	logger.Info("run started", "target", r.cfg.TargetURL, "cases", len(cases))

	abort := func(caseID string, err error) (*Report, error) {
		ae := abortFor(caseID, err)
		rep.Aborted = true
		rep.AbortReason = ae.Error()
		rep.Summary = verdict.Summarize(rep.Verdicts)
		rep.FinishedAt = r.clock.Now()
		logger.Error("run aborted", "reason", ae.Reason, "case", caseID, "error", err)
		return rep, ae
	}

	if !r.cfg.RenavigateEach && len(cases) > 0 {
		if err := r.Open(ctx); err != nil {
			return abort(cases[0].ID, err)
		}
	}

	for i, tc := range cases {
		if err := ctx.Err(); err != nil {
			return abort(tc.ID, err)
		}
		if i > 0 {
			if err := r.clock.Sleep(ctx, r.cfg.InterTestCooldown()); err != nil {
				return abort(tc.ID, err)
			}
		}
		if r.cfg.RenavigateEach {
			if err := r.Open(ctx); err != nil {
				return abort(tc.ID, err)
			}
		}

		v := r.RunCase(ctx, tc)
		if err := ctx.Err(); err != nil {
			// The interrupted case has no trustworthy verdict.
			return abort(tc.ID, err)
		}
		rep.Verdicts = append(rep.Verdicts, v)
		r.observer.OnVerdict(v)
	}

	rep.Summary = verdict.Summarize(rep.Verdicts)
	rep.FinishedAt = r.clock.Now()
	logger.Info("run finished",
		"passed", rep.Summary.Passed,
		"failed", rep.Summary.Failed,
		"timeouts", rep.Summary.Timeouts,
		"driver_errors", rep.Summary.DriverErrors,
		"elapsed", rep.Duration(),
	)
	return rep, nil
}

// caseRun is the bookkeeping for one case in flight.
type caseRun struct {
	r      *Runner
	tc     corpus.TestCase
	start  time.Time
	v      verdict.Verdict
	logger *slog.Logger
}

func (c *caseRun) enter(s verdict.State) {
	at := clock.Since(c.r.clock, c.start)
	c.v.States = append(c.v.States, verdict.Transition{State: s, At: at})
	c.r.observer.OnTransition(c.tc.ID, s, at)
	c.logger.Debug("state", "state", s, "elapsed", at)
}

func (c *caseRun) finish(o verdict.Outcome, err error) verdict.Verdict {
	c.v.Outcome = o
	if err != nil {
		c.v.Error = err.Error()
	}
	c.enter(verdict.TerminalState(o))
	c.v.Elapsed = clock.Since(c.r.clock, c.start)

	attrs := []any{"outcome", o, "elapsed", c.v.Elapsed}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	if c.v.Diff != nil {
		attrs = append(attrs, "diff", c.v.Diff.String())
	}
	if o == verdict.OutcomePass {
		c.logger.Info("case finished", attrs...)
	} else {
		c.logger.Warn("case finished", attrs...)
	}
	return c.v
}

// RunCase executes one case and returns its verdict. It never fails: every
// problem is classified into the verdict outcome.
func (r *Runner) RunCase(ctx context.Context, tc corpus.TestCase) verdict.Verdict {
	c := &caseRun{
		r:     r,
		tc:    tc,
		start: r.clock.Now(),
		v: verdict.Verdict{
			CaseID:      tc.ID,
			DisplayName: tc.DisplayName(),
			Suite:       string(tc.Suite),
			Expected:    tc.ExpectedOutput,
		},
		logger: r.logger.With("case", tc.ID),
	}
	c.enter(verdict.StateIdle)

	// idle → cleared
	if err := r.reset(ctx, c); err != nil {
		return c.finish(verdict.OutcomeDriverError, err)
	}
	c.enter(verdict.StateCleared)

	// cleared → input_injected
	if tc.IsPartial() {
		if err := r.typeText(ctx, tc.PartialInputText); err != nil {
			return c.finish(verdict.OutcomeDriverError, fmt.Errorf("type partial input: %w", err))
		}
		c.enter(verdict.StateInputInjected)
		c.enter(verdict.StateStabilizing)

		res, err := r.stab.WaitWith(ctx, r.stab.Policy().PresencePolicy(), r.read)
		if err != nil {
			// The presence policy settles on the first non-empty read, so a
			// timeout here never saw any text.
			if stabilize.IsTimeout(err) {
				return c.finish(verdict.OutcomeTimeout, fmt.Errorf("no intermediate output for %q: %w", tc.PartialInputText, err))
			}
			return c.finish(verdict.OutcomeDriverError, err)
		}
		partial := res.Text
		c.v.Partial = &partial
		c.logger.Debug("intermediate output", "text", partial, "polls", res.Polls)

		if err := r.typeText(ctx, tc.Remainder()); err != nil {
			return c.finish(verdict.OutcomeDriverError, fmt.Errorf("type remaining input: %w", err))
		}
		c.enter(verdict.StateInputInjected)
	} else {
		if err := r.act(ctx, r.cfg.ActionTimeout(), func(actx context.Context) error {
			return r.drv.SetInputText(actx, tc.InputText)
		}); err != nil {
			return c.finish(verdict.OutcomeDriverError, fmt.Errorf("set input: %w", err))
		}
		c.enter(verdict.StateInputInjected)
	}

	// input_injected → stabilizing → compared
	c.enter(verdict.StateStabilizing)
	res, err := r.stab.Wait(ctx, r.read)
	if err != nil {
		var te *stabilize.TimeoutError
		if errors.As(err, &te) {
			if te.Last != "" {
				last := te.Last
				c.v.Actual = &last
			}
			return c.finish(verdict.OutcomeTimeout, err)
		}
		return c.finish(verdict.OutcomeDriverError, err)
	}
	if res.Text == "" {
		return c.finish(verdict.OutcomeTimeout, errors.New("output settled on empty or idle text"))
	}
	actual := res.Text
	c.v.Actual = &actual

	c.enter(verdict.StateCompared)
	cmp := compare.Compare(actual, tc.ExpectedOutput)
	c.v.Diff = cmp.Diff
	return c.finish(cmp.Outcome, nil)
}

// reset locates both fields, clears the input and waits for the clear to
// land.
func (r *Runner) reset(ctx context.Context, c *caseRun) error {
	timeout := r.cfg.ActionTimeout()
	if err := r.act(ctx, timeout, func(actx context.Context) error {
		return r.drv.LocateInputField(actx, r.cfg.Input)
	}); err != nil {
		return err
	}
	if err := r.act(ctx, timeout, func(actx context.Context) error {
		return r.drv.LocateOutputField(actx, r.cfg.Output)
	}); err != nil {
		return err
	}
	if err := r.act(ctx, timeout, r.drv.ClearInput); err != nil {
		return fmt.Errorf("clear input: %w", err)
	}
	if err := r.clock.Sleep(ctx, r.cfg.PostClearSettle()); err != nil {
		return err
	}

	residual, err := r.read(ctx)
	if err != nil {
		c.logger.Debug("residual read failed", "error", err)
		return nil
	}
	if residual = strings.TrimSpace(residual); !r.cfg.Output.IsIdle(residual) {
		c.logger.Warn("output not idle after clear", "residual", residual, "settle", r.cfg.PostClearSettle())
	}
	return nil
}

// typeText types text key by key. The deadline covers the keystroke pacing
// on top of the action timeout.
func (r *Runner) typeText(ctx context.Context, text string) error {
	perChar := r.cfg.PerCharDelay()
	timeout := r.cfg.ActionTimeout() + time.Duration(utf8.RuneCountInString(text))*perChar
	return r.act(ctx, timeout, func(actx context.Context) error {
		return r.drv.TypeIncrementally(actx, text, perChar)
	})
}

func (r *Runner) read(ctx context.Context) (string, error) {
	var text string
	err := r.act(ctx, r.cfg.ActionTimeout(), func(actx context.Context) error {
		var err error
		text, err = r.drv.ReadOutputText(actx)
		return err
	})
	return text, err
}

// act runs one driver action under its own deadline.
func (r *Runner) act(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(actx)
}
