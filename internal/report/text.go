package report

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/roach88/settle/internal/harness"
	"github.com/roach88/settle/internal/verdict"
)

const (
	glyphPass = "✓"
	glyphFail = "✗"
)

func glyph(o verdict.Outcome) string {
	if o == verdict.OutcomePass {
		return glyphPass
	}
	return glyphFail
}

// WriteText renders rep as a results table, a detail block for every case
// that did not pass, and a summary line.
func WriteText(w io.Writer, rep *harness.Report) {
	if rep.TargetURL != "" {
		fmt.Fprintf(w, "Target: %s\nRun:    %s\n\n", rep.TargetURL, rep.RunID)
	}

	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"", "CASE", "SUITE", "OUTCOME", "ELAPSED"})
	tw.SetAutoWrapText(false)
	for _, v := range rep.Verdicts {
		tw.Append([]string{glyph(v.Outcome), v.DisplayName, v.Suite, string(v.Outcome), formatElapsed(v.Elapsed)})
	}
	tw.Render()

	for _, v := range rep.Verdicts {
		if v.Passed() {
			continue
		}
		fmt.Fprintf(w, "\n%s %s\n", glyphFail, v.DisplayName)
		fmt.Fprintf(w, "  expected: %s\n", v.Expected)
		if v.Actual != nil {
			fmt.Fprintf(w, "  actual:   %s\n", *v.Actual)
		}
		if v.Partial != nil {
			fmt.Fprintf(w, "  partial:  %s\n", *v.Partial)
		}
		if v.Diff != nil {
			fmt.Fprintf(w, "  diff:     %s\n", v.Diff)
		}
		if v.Error != "" {
			fmt.Fprintf(w, "  error:    %s\n", v.Error)
		}
	}

	s := rep.Summary
	fmt.Fprintf(w, "\n%d passed, %d failed, %d timeouts, %d driver errors (%d of %d cases) in %s\n",
		s.Passed, s.Failed, s.Timeouts, s.DriverErrors, s.Total, rep.Planned, formatElapsed(rep.Duration()))
	if rep.Aborted {
		fmt.Fprintf(w, "ABORTED: %s\n", rep.AbortReason)
	}
}

func formatElapsed(d time.Duration) string {
	return d.Round(10 * time.Millisecond).String()
}

// Progress prints one line per finished case as the run goes.
//
// Thread-safety: Progress is safe for concurrent use, so one instance can
// follow several targets.
type Progress struct {
	mu    sync.Mutex
	w     io.Writer
	done  int
	total int
}

// NewProgress creates a progress printer for a run of total cases.
func NewProgress(w io.Writer, total int) *Progress {
	return &Progress{w: w, total: total}
}

// ForTarget returns a printer that prefixes lines with target and shares
// the writer lock and the counter with p. It matches the signature
// harness.WithTargetObserver expects.
func (p *Progress) ForTarget(target string) harness.Observer {
	return &TargetProgress{p: p, target: target}
}

// OnTransition implements harness.Observer.
func (p *Progress) OnTransition(string, verdict.State, time.Duration) {}

// OnVerdict implements harness.Observer.
func (p *Progress) OnVerdict(v verdict.Verdict) {
	p.line("", v)
}

func (p *Progress) line(target string, v verdict.Verdict) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	if target != "" {
		target = "[" + target + "] "
	}
	fmt.Fprintf(p.w, "[%d/%d] %s%s %s %s (%s)\n", p.done, p.total, target, glyph(v.Outcome), v.DisplayName, v.Outcome, formatElapsed(v.Elapsed))
}

// TargetProgress is a Progress view bound to one target.
type TargetProgress struct {
	p      *Progress
	target string
}

// OnTransition implements harness.Observer.
func (tp *TargetProgress) OnTransition(string, verdict.State, time.Duration) {}

// OnVerdict implements harness.Observer.
func (tp *TargetProgress) OnVerdict(v verdict.Verdict) {
	tp.p.line(tp.target, v)
}
