package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeResponse(t *testing.T, buf *bytes.Buffer) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	return resp
}

func TestOutputFormatter_Success(t *testing.T) {
	t.Run("json wraps data in an ok envelope", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: buf}

		require.NoError(t, f.Success(map[string]int{"cases": 35}))

		resp := decodeResponse(t, buf)
		assert.Equal(t, "ok", resp.Status)
		assert.Nil(t, resp.Error)
		assert.Equal(t, map[string]any{"cases": float64(35)}, resp.Data)
	})

	t.Run("text prints the value", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "text", Writer: buf}

		require.NoError(t, f.Success("35 cases"))
		assert.Equal(t, "35 cases\n", buf.String())
	})
}

func TestOutputFormatter_Error(t *testing.T) {
	tests := []struct {
		name     string
		format   string
		verbose  bool
		details  any
		contains []string
		excludes []string
	}{
		{
			name:     "text without details",
			format:   "text",
			contains: []string{"Error [E203]: no such case"},
			excludes: []string{"Details:"},
		},
		{
			name:     "text hides details unless verbose",
			format:   "text",
			details:  "Pos_99",
			excludes: []string{"Details:", "Pos_99"},
		},
		{
			name:     "verbose text shows details",
			format:   "text",
			verbose:  true,
			details:  "Pos_99",
			contains: []string{"Error [E203]", "Details: Pos_99"},
		},
		{
			name:     "json always carries details",
			format:   "json",
			details:  []string{"Pos_99"},
			contains: []string{`"status":"error"`, `"code":"E203"`, `"details":["Pos_99"]`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			f := &OutputFormatter{Format: tt.format, Writer: buf, Verbose: tt.verbose}

			require.NoError(t, f.Error(ErrCodeFilter, "no such case", tt.details))
			for _, s := range tt.contains {
				assert.Contains(t, buf.String(), s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, buf.String(), s)
			}
		})
	}
}

func TestOutputFormatter_Fail(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")

	t.Run("json reports the cause and returns its exit code", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: buf}

		err := f.fail(ExitAborted, ErrCodeAborted, "run aborted", cause)
		require.Error(t, err)
		assert.Equal(t, ExitAborted, GetExitCode(err))
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "run aborted: dial tcp: connection refused", err.Error())

		resp := decodeResponse(t, buf)
		assert.Equal(t, "error", resp.Status)
		require.NotNil(t, resp.Error)
		assert.Equal(t, ErrCodeAborted, resp.Error.Code)
		assert.Equal(t, "run aborted", resp.Error.Message)
		assert.Equal(t, "dial tcp: connection refused", resp.Error.Details)
	})

	t.Run("text prints the message", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "text", Writer: buf, Verbose: true}

		err := f.fail(ExitCommandError, ErrCodeStore, "open history", cause)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, buf.String(), "Error [E205]: open history")
		assert.Contains(t, buf.String(), "Details: dial tcp: connection refused")
	})

	t.Run("nil cause has no details", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: buf}

		err := f.fail(ExitFailure, ErrCodeFailed, "2 cases did not pass", nil)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Equal(t, "2 cases did not pass", err.Error())
		assert.NotContains(t, buf.String(), "details")
	})
}

func TestOutputFormatter_JSONKeepsMarkupAndSinhala(t *testing.T) {
	const selector = `div[data-role="out"] > p & span`

	t.Run("success", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: buf}

		require.NoError(t, f.Success(map[string]string{"css": selector, "actual": "මම <ගෙදර>"}))
		assert.Contains(t, buf.String(), `div[data-role=\"out\"] > p & span`)
		assert.Contains(t, buf.String(), "මම <ගෙදර>")
		assert.NotContains(t, buf.String(), `\u003e`)
		assert.NotContains(t, buf.String(), `\u0026`)
	})

	t.Run("error", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: buf}

		require.NoError(t, f.Error(ErrCodeDriver, "output field not found", selector))
		assert.NotContains(t, buf.String(), `\u003c`)
		assert.NotContains(t, buf.String(), `\u0026`)
		assert.Equal(t, selector, decodeResponse(t, buf).Error.Details)
	})
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		errW    bool
		wantOut string
		wantErr string
	}{
		{name: "quiet", verbose: false, errW: true},
		{name: "falls back to writer", verbose: true, wantOut: "loaded 35 cases\n"},
		{name: "prefers err writer", verbose: true, errW: true, wantErr: "loaded 35 cases\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
			f := &OutputFormatter{Format: "json", Writer: out, Verbose: tt.verbose}
			if tt.errW {
				f.ErrWriter = errOut
			}

			f.VerboseLog("loaded %d cases", 35)
			assert.Equal(t, tt.wantOut, out.String())
			assert.Equal(t, tt.wantErr, errOut.String())
		})
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain error", errors.New("plain"), ExitFailure},
		{"cases failed", NewExitError(ExitFailure, "2 cases did not pass"), ExitFailure},
		{"bad flag", NewExitError(ExitCommandError, "bad flag"), ExitCommandError},
		{"aborted", WrapExitError(ExitAborted, "run aborted", context.Canceled), ExitAborted},
		{"aborted behind wrapping", fmt.Errorf("run: %w", WrapExitError(ExitAborted, "run aborted", nil)), ExitAborted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestExitError_UnwrapsCause(t *testing.T) {
	err := WrapExitError(ExitAborted, "run aborted", context.Canceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "run aborted: context canceled", err.Error())
	assert.Nil(t, NewExitError(ExitCommandError, "bad flag").Unwrap())
}

func TestNewLogger_Level(t *testing.T) {
	buf := &bytes.Buffer{}

	newLogger(buf, false).Debug("poll", "text", "මම")
	assert.Empty(t, buf.String())

	l := newLogger(buf, true)
	assert.True(t, l.Enabled(context.Background(), slog.LevelDebug))
	l.Debug("poll", "text", "මම")
	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), "msg=poll")
}
