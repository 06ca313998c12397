package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/settle/internal/driver"
)

// seedHistory records a passing and then a failing run of Pos_01 and Pos_02.
func seedHistory(t *testing.T) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "runs.db")

	opts, out := newTestRun("text")
	require.NoError(t, execute(opts, out, "--case", "Pos_01,Pos_02", "--db", db))

	opts.DriverFactory = func(context.Context, string) (driver.Driver, error) {
		return driver.NewFakeDriver(opts.Clock, strings.ToUpper), nil
	}
	err := execute(opts, out, "--case", "Pos_01,Pos_02", "--db", db)
	require.Equal(t, ExitFailure, GetExitCode(err))
	return db
}

func history(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	cmd := NewHistoryCommand(&RootOptions{Format: format})
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestHistory_List(t *testing.T) {
	db := seedHistory(t)

	out, err := history(t, "text", "list", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "run-2")
	assert.Contains(t, out, "2/2")
	assert.Contains(t, out, "0/2")

	out, err = history(t, "text", "list", "--db", db, "-n", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "run-2", "newest first")
	assert.NotContains(t, out, "run-1")
}

func TestHistory_Show(t *testing.T) {
	db := seedHistory(t)

	out, err := history(t, "text", "show", "--db", db, "run-2")
	require.NoError(t, err)
	assert.Contains(t, out, "0 passed, 2 failed")
	assert.Contains(t, out, "expected: මට බත් කන්න ඕනෑ")

	out, err = history(t, "text", "show", "--db", db, "run-404")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error ["+ErrCodeNotFound+"]")
}

func TestHistory_CaseJSON(t *testing.T) {
	db := seedHistory(t)

	out, err := history(t, "json", "case", "--db", db, "Pos_02")
	require.NoError(t, err)

	var resp struct {
		Data []struct {
			RunID   string `json:"run_id"`
			Outcome string `json:"outcome"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 2)
	outcomes := map[string]string{}
	for _, h := range resp.Data {
		outcomes[h.RunID] = h.Outcome
	}
	assert.Equal(t, map[string]string{"run-1": "pass", "run-2": "fail"}, outcomes)
}

func TestHistory_Flaky(t *testing.T) {
	db := seedHistory(t)

	out, err := history(t, "text", "flaky", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Pos_01")
	assert.Contains(t, out, "Pos_02")

	out, err = history(t, "text", "flaky", "--db", db, "--target", "http://other.test/")
	require.NoError(t, err)
	assert.Contains(t, out, "No flaky cases.")
}

func TestHistory_MissingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.db")

	out, err := history(t, "text", "list", "--db", path)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error ["+ErrCodeNotFound+"]")
	assert.NoFileExists(t, path)
}
