package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/roach88/settle/internal/harness"
	"github.com/roach88/settle/internal/verdict"
)

// RunRecord is the stored header of one run.
type RunRecord struct {
	ID          string          `json:"id"`
	TargetURL   string          `json:"target_url"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
	Planned     int             `json:"planned"`
	Aborted     bool            `json:"aborted"`
	AbortReason string          `json:"abort_reason,omitempty"`
	Summary     verdict.Summary `json:"summary"`
}

// CaseResult is one case's outcome in one run.
type CaseResult struct {
	RunID     string          `json:"run_id"`
	TargetURL string          `json:"target_url"`
	StartedAt time.Time       `json:"started_at"`
	Outcome   verdict.Outcome `json:"outcome"`
	Actual    *string         `json:"actual,omitempty"`
	Elapsed   time.Duration   `json:"-"` // elapsed_ms in JSON
}

// MarshalJSON implements json.Marshaler. Elapsed is emitted as elapsed_ms.
func (c CaseResult) MarshalJSON() ([]byte, error) {
	type fields CaseResult
	return json.Marshal(struct {
		fields
		ElapsedMS int64 `json:"elapsed_ms"`
	}{fields(c), c.Elapsed.Milliseconds()})
}

// FlakeStat summarises a case whose outcome varied across runs.
type FlakeStat struct {
	CaseID string `json:"case_id"`
	Runs   int    `json:"runs"`
	Passes int    `json:"passes"`
	// Flips counts outcome changes between consecutive runs.
	Flips int `json:"flips"`
}

const runColumns = `id, target_url, started_at, finished_at, planned, aborted, abort_reason,
	total, passed, failed, timeouts, driver_errors`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var (
		r                 RunRecord
		started, finished int64
	)
	err := row.Scan(&r.ID, &r.TargetURL, &started, &finished, &r.Planned, &r.Aborted, &r.AbortReason,
		&r.Summary.Total, &r.Summary.Passed, &r.Summary.Failed, &r.Summary.Timeouts, &r.Summary.DriverErrors)
	if err != nil {
		return RunRecord{}, err
	}
	r.StartedAt = fromMillis(started)
	r.FinishedAt = fromMillis(finished)
	return r, nil
}

// GetRun returns the run with the given ID.
// Returns an error wrapping ErrNotFound if it does not exist.
func (s *Store) GetRun(ctx context.Context, id string) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns up to limit runs, newest first. limit <= 0 means all.
//
// Returns an empty slice (not nil) if there are no runs.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY started_at DESC, id COLLATE BINARY DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunRecord{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadVerdicts returns the verdicts of a run in execution order.
func (s *Store) ReadVerdicts(ctx context.Context, runID string) ([]verdict.Verdict, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT case_id, display_name, suite, outcome, expected, actual, partial_output,
		       diff, states, elapsed_ms, error
		FROM verdicts
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query verdicts: %w", err)
	}
	defer rows.Close()

	vs := []verdict.Verdict{}
	for rows.Next() {
		var (
			v               verdict.Verdict
			outcome, states string
			actual, partial sql.NullString
			diff            sql.NullString
			elapsedMS       int64
		)
		if err := rows.Scan(&v.CaseID, &v.DisplayName, &v.Suite, &outcome, &v.Expected,
			&actual, &partial, &diff, &states, &elapsedMS, &v.Error); err != nil {
			return nil, fmt.Errorf("scan verdict: %w", err)
		}
		v.Outcome = verdict.Outcome(outcome)
		v.Actual = stringPtr(actual)
		v.Partial = stringPtr(partial)
		v.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		if v.Diff, err = unmarshalDiff(diff); err != nil {
			return nil, fmt.Errorf("case %s: %w", v.CaseID, err)
		}
		if v.States, err = unmarshalStates(states); err != nil {
			return nil, fmt.Errorf("case %s: %w", v.CaseID, err)
		}
		vs = append(vs, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verdicts: %w", err)
	}
	return vs, nil
}

// LoadReport rebuilds a stored run as a harness.Report.
func (s *Store) LoadReport(ctx context.Context, runID string) (*harness.Report, error) {
	r, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	vs, err := s.ReadVerdicts(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &harness.Report{
		RunID:       r.ID,
		TargetURL:   r.TargetURL,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Verdicts:    vs,
		Summary:     r.Summary,
		Planned:     r.Planned,
		Aborted:     r.Aborted,
		AbortReason: r.AbortReason,
	}, nil
}

// CaseHistory returns the outcomes of one case across runs, newest first.
// limit <= 0 means all.
func (s *Store) CaseHistory(ctx context.Context, caseID string, limit int) ([]CaseResult, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.target_url, r.started_at, v.outcome, v.actual, v.elapsed_ms
		FROM verdicts v
		JOIN runs r ON v.run_id = r.id
		WHERE v.case_id = ?
		ORDER BY r.started_at DESC, r.id COLLATE BINARY DESC
		LIMIT ?
	`, caseID, limit)
	if err != nil {
		return nil, fmt.Errorf("query case history: %w", err)
	}
	defer rows.Close()

	out := []CaseResult{}
	for rows.Next() {
		var (
			cr        CaseResult
			started   int64
			outcome   string
			actual    sql.NullString
			elapsedMS int64
		)
		if err := rows.Scan(&cr.RunID, &cr.TargetURL, &started, &outcome, &actual, &elapsedMS); err != nil {
			return nil, fmt.Errorf("scan case history: %w", err)
		}
		cr.StartedAt = fromMillis(started)
		cr.Outcome = verdict.Outcome(outcome)
		cr.Actual = stringPtr(actual)
		cr.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		out = append(out, cr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate case history: %w", err)
	}
	return out, nil
}

// Flaky returns the cases that both passed and did not pass across the
// stored runs, most flips first. A non-empty target restricts the search to
// runs against that URL.
func (s *Store) Flaky(ctx context.Context, target string) ([]FlakeStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.case_id, v.outcome
		FROM verdicts v
		JOIN runs r ON v.run_id = r.id
		WHERE ? = '' OR r.target_url = ?
		ORDER BY v.case_id COLLATE BINARY ASC, r.started_at ASC, r.id COLLATE BINARY ASC
	`, target, target)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var (
		stats []FlakeStat
		cur   *FlakeStat
		last  string
	)
	for rows.Next() {
		var caseID, outcome string
		if err := rows.Scan(&caseID, &outcome); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		if cur == nil || cur.CaseID != caseID {
			stats = append(stats, FlakeStat{CaseID: caseID})
			cur = &stats[len(stats)-1]
			last = ""
		}
		cur.Runs++
		if outcome == string(verdict.OutcomePass) {
			cur.Passes++
		}
		if last != "" && last != outcome {
			cur.Flips++
		}
		last = outcome
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}

	flaky := []FlakeStat{}
	for _, st := range stats {
		if st.Passes > 0 && st.Passes < st.Runs {
			flaky = append(flaky, st)
		}
	}
	sort.SliceStable(flaky, func(i, j int) bool {
		return flaky[i].Flips > flaky[j].Flips
	})
	return flaky, nil
}
