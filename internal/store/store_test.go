package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/settle/internal/harness"
	"github.com/roach88/settle/internal/testutil"
	"github.com/roach88/settle/internal/verdict"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func strp(s string) *string { return &s }

func passVerdict(id string) verdict.Verdict {
	return verdict.Verdict{
		CaseID:      id,
		DisplayName: id + " - case",
		Suite:       "well_formed",
		Outcome:     verdict.OutcomePass,
		Expected:    "මම ගෙදර යනවා.",
		Actual:      strp("මම ගෙදර යනවා."),
		Elapsed:     1250 * time.Millisecond,
		States: []verdict.Transition{
			{State: verdict.StateIdle},
			{State: verdict.StateCleared, At: time.Second},
			{State: verdict.StatePass, At: 1250 * time.Millisecond},
		},
	}
}

func failVerdict(id string) verdict.Verdict {
	v := passVerdict(id)
	v.Outcome = verdict.OutcomeFail
	v.Actual = strp("මම ගෙදර")
	v.Diff = &verdict.Diff{FirstDiffIndex: 7, ExpectedLen: 13, ActualLen: 7, ExpectedRune: " "}
	v.States[2].State = verdict.StateFail
	return v
}

func testReport(id string, startOffset time.Duration, vs ...verdict.Verdict) *harness.Report {
	start := testutil.Epoch.Add(startOffset)
	return &harness.Report{
		RunID:      id,
		TargetURL:  "http://target.test/",
		StartedAt:  start,
		FinishedAt: start.Add(5 * time.Second),
		Verdicts:   vs,
		Summary:    verdict.Summarize(vs),
		Planned:    len(vs),
	}
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was created")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "iteration %d", i)
		s.Close()
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	for _, table := range []string{"runs", "verdicts"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		assert.NoError(t, err, "table %q", table)
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("synchronous", "1"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
	assert.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestOpen_MigratesVersionZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(schemaSQL)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	var name string
	err = s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='index' AND name='idx_runs_started'",
	).Scan(&name)
	assert.NoError(t, err)
}

func TestSaveReport_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	partial := passVerdict("Pos_UI_01")
	partial.Suite = "interactive"
	partial.Partial = strp("මම කෑ")
	timeout := passVerdict("Neg_09")
	timeout.Outcome = verdict.OutcomeTimeout
	timeout.Actual = nil
	timeout.Error = "output did not settle within 10s"

	rep := testReport("run-1", 0, passVerdict("Pos_01"), failVerdict("Pos_02"), partial, timeout)
	require.NoError(t, s.SaveReport(ctx, rep))

	got, err := s.LoadReport(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, rep, got)
}

func TestSaveReport_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rep := testReport("run-1", 0, passVerdict("Pos_01"))
	require.NoError(t, s.SaveReport(ctx, rep))
	require.NoError(t, s.SaveReport(ctx, rep))

	vs, err := s.ReadVerdicts(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, vs, 1)
}

func TestSaveReport_Aborted(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rep := testReport("run-a", 0, passVerdict("Pos_01"))
	rep.Planned = 35
	rep.Aborted = true
	rep.AbortReason = "navigation failed"
	require.NoError(t, s.SaveReport(ctx, rep))

	r, err := s.GetRun(ctx, "run-a")
	require.NoError(t, err)
	assert.True(t, r.Aborted)
	assert.Equal(t, "navigation failed", r.AbortReason)
	assert.Equal(t, 35, r.Planned)
	assert.Equal(t, 1, r.Summary.Total)
}

func TestSaveReport_EmptyRunID(t *testing.T) {
	s := createTestStore(t)
	err := s.SaveReport(context.Background(), testReport("", 0))
	assert.Error(t, err)
}

func TestGetRun_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.LoadReport(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRuns_NewestFirst(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)

	for i, id := range []string{"run-1", "run-2", "run-3"} {
		require.NoError(t, s.SaveReport(ctx, testReport(id, time.Duration(i)*time.Hour, passVerdict("Pos_01"))))
	}

	runs, err = s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-3", runs[0].ID)
	assert.Equal(t, "run-1", runs[2].ID)

	runs, err = s.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestCaseHistory(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveReport(ctx, testReport("run-1", 0, passVerdict("Pos_01"), passVerdict("Pos_02"))))
	require.NoError(t, s.SaveReport(ctx, testReport("run-2", time.Hour, failVerdict("Pos_01"))))

	hist, err := s.CaseHistory(ctx, "Pos_01", 0)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "run-2", hist[0].RunID)
	assert.Equal(t, verdict.OutcomeFail, hist[0].Outcome)
	assert.Equal(t, "මම ගෙදර", *hist[0].Actual)
	assert.Equal(t, verdict.OutcomePass, hist[1].Outcome)
	assert.Equal(t, testutil.Epoch, hist[1].StartedAt)

	hist, err = s.CaseHistory(ctx, "Nope", 0)
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestCaseResultJSON_ElapsedMilliseconds(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveReport(ctx, testReport("run-1", 0, passVerdict("Pos_01"))))

	hist, err := s.CaseHistory(ctx, "Pos_01", 0)
	require.NoError(t, err)
	require.Len(t, hist, 1)

	data, err := json.Marshal(hist[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"elapsed_ms":1250`)
	assert.Contains(t, string(data), `"run_id":"run-1"`)
	assert.NotContains(t, string(data), `"elapsed":`)
}

func TestFlaky(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// Pos_01: pass, fail, pass (2 flips). Pos_02: fail, pass (1 flip).
	// Pos_03: always passes.
	require.NoError(t, s.SaveReport(ctx, testReport("run-1", 0,
		passVerdict("Pos_01"), failVerdict("Pos_02"), passVerdict("Pos_03"))))
	require.NoError(t, s.SaveReport(ctx, testReport("run-2", time.Hour,
		failVerdict("Pos_01"), passVerdict("Pos_02"), passVerdict("Pos_03"))))
	require.NoError(t, s.SaveReport(ctx, testReport("run-3", 2*time.Hour,
		passVerdict("Pos_01"), passVerdict("Pos_02"), passVerdict("Pos_03"))))

	flaky, err := s.Flaky(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []FlakeStat{
		{CaseID: "Pos_01", Runs: 3, Passes: 2, Flips: 2},
		{CaseID: "Pos_02", Runs: 3, Passes: 2, Flips: 1},
	}, flaky)

	flaky, err = s.Flaky(ctx, "http://elsewhere.test/")
	require.NoError(t, err)
	assert.Empty(t, flaky)
}
