package harness

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/settle/internal/config"
	"github.com/roach88/settle/internal/corpus"
	"github.com/roach88/settle/internal/driver"
)

// DriverFactory opens a fresh browser session for target.
type DriverFactory func(ctx context.Context, target string) (driver.Driver, error)

// TargetResult is the outcome of one target in RunTargets.
type TargetResult struct {
	Target string
	Report *Report
	Err    error
}

// RunTargets runs the same cases against several targets at once.
//
// Each target gets its own session from open and its own Runner, so the
// runs share nothing but opts. Observers passed in opts are called from
// several goroutines and must be safe for concurrent use. Results keep the
// order of targets.
func RunTargets(ctx context.Context, cfg config.Config, targets []string, cases []corpus.TestCase, open DriverFactory, opts ...Option) []TargetResult {
	results := make([]TargetResult, len(targets))

	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target string) {
			defer wg.Done()
			results[i] = runTarget(ctx, cfg, target, cases, open, opts)
		}(i, target)
	}
	wg.Wait()
	return results
}

func runTarget(ctx context.Context, cfg config.Config, target string, cases []corpus.TestCase, open DriverFactory, opts []Option) TargetResult {
	res := TargetResult{Target: target}
	cfg.TargetURL = target

	drv, err := open(ctx, target)
	if err != nil {
		res.Err = &AbortError{Reason: AbortSession, Err: fmt.Errorf("open session for %s: %w", target, err)}
		return res
	}
	defer drv.Close()

	r, err := New(drv, cfg, opts...)
	if err != nil {
		res.Err = err
		return res
	}
	res.Report, res.Err = r.RunSuite(ctx, cases)
	return res
}
