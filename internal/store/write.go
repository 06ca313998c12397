package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/settle/internal/harness"
	"github.com/roach88/settle/internal/verdict"
)

// SaveReport stores a run and its verdicts in one transaction.
//
// Uses ON CONFLICT DO NOTHING for idempotency: saving the same report twice
// leaves the first copy in place. Aborted runs are stored with the verdicts
// they produced.
func (s *Store) SaveReport(ctx context.Context, rep *harness.Report) error {
	if rep.RunID == "" {
		return fmt.Errorf("save report: empty run id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save report: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	sum := rep.Summary
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, target_url, started_at, finished_at, planned, aborted, abort_reason,
		 total, passed, failed, timeouts, driver_errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rep.RunID,
		rep.TargetURL,
		toMillis(rep.StartedAt),
		toMillis(rep.FinishedAt),
		rep.Planned,
		rep.Aborted,
		rep.AbortReason,
		sum.Total,
		sum.Passed,
		sum.Failed,
		sum.Timeouts,
		sum.DriverErrors,
	)
	if err != nil {
		return fmt.Errorf("save report: insert run: %w", err)
	}

	for i, v := range rep.Verdicts {
		if err := insertVerdict(ctx, tx, rep.RunID, i, v); err != nil {
			return fmt.Errorf("save report: case %s: %w", v.CaseID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save report: commit: %w", err)
	}
	return nil
}

func insertVerdict(ctx context.Context, tx *sql.Tx, runID string, seq int, v verdict.Verdict) error {
	states, err := marshalStates(v.States)
	if err != nil {
		return err
	}
	diff, err := marshalDiff(v.Diff)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO verdicts
		(run_id, seq, case_id, display_name, suite, outcome, expected,
		 actual, partial_output, diff, states, elapsed_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		runID,
		seq,
		v.CaseID,
		v.DisplayName,
		v.Suite,
		string(v.Outcome),
		v.Expected,
		nullString(v.Actual),
		nullString(v.Partial),
		diff,
		states,
		v.Elapsed.Milliseconds(),
		v.Error,
	)
	if err != nil {
		return fmt.Errorf("insert verdict: %w", err)
	}
	return nil
}
