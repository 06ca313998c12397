package report

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/settle/internal/harness"
	"github.com/roach88/settle/internal/verdict"
)

// Snapshot converts a report to a timing-free map for canonical JSON.
// Start and finish times, elapsed durations and transition offsets are
// dropped so that the snapshot only changes when behaviour changes.
func Snapshot(rep *harness.Report) map[string]any {
	verdicts := make([]any, len(rep.Verdicts))
	for i, v := range rep.Verdicts {
		verdicts[i] = verdictMap(v)
	}
	s := rep.Summary
	m := map[string]any{
		"run_id":     rep.RunID,
		"target_url": rep.TargetURL,
		"planned":    rep.Planned,
		"aborted":    rep.Aborted,
		"summary": map[string]any{
			"total":         s.Total,
			"passed":        s.Passed,
			"failed":        s.Failed,
			"timeouts":      s.Timeouts,
			"driver_errors": s.DriverErrors,
		},
		"verdicts": verdicts,
	}
	if rep.AbortReason != "" {
		m["abort_reason"] = rep.AbortReason
	}
	return m
}

func verdictMap(v verdict.Verdict) map[string]any {
	states := make([]string, len(v.States))
	for i, tr := range v.States {
		states[i] = string(tr.State)
	}
	m := map[string]any{
		"case_id":      v.CaseID,
		"display_name": v.DisplayName,
		"suite":        v.Suite,
		"outcome":      string(v.Outcome),
		"expected":     v.Expected,
		"states":       states,
	}
	if v.Actual != nil {
		m["actual"] = *v.Actual
	}
	if v.Partial != nil {
		m["partial_output"] = *v.Partial
	}
	if v.Error != "" {
		m["error"] = v.Error
	}
	if d := v.Diff; d != nil {
		dm := map[string]any{
			"first_diff_index":   d.FirstDiffIndex,
			"expected_len":       d.ExpectedLen,
			"actual_len":         d.ActualLen,
			"normalization_only": d.NormalizationOnly,
		}
		for k, s := range map[string]string{
			"expected_rune": d.ExpectedRune,
			"actual_rune":   d.ActualRune,
			"expected_near": d.ExpectedNear,
			"actual_near":   d.ActualNear,
		} {
			if s != "" {
				dm[k] = s
			}
		}
		m["diff"] = dm
	}
	return m
}

// MarshalSnapshot returns the canonical JSON snapshot of rep.
func MarshalSnapshot(rep *harness.Report) ([]byte, error) {
	return MarshalCanonical(Snapshot(rep))
}

// AssertGolden compares the snapshot of rep against testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/report -update
func AssertGolden(t *testing.T, name string, rep *harness.Report) {
	t.Helper()

	data, err := MarshalSnapshot(rep)
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}
