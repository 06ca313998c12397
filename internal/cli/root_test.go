package cli

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "settle", cmd.Use)
	assert.Contains(t, cmd.Long, "Singlish")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"run"},
		{"list"},
		{"validate"},
		{"history"},
		{"history", "list"},
		{"history", "show"},
		{"history", "case"},
		{"history", "flaky"},
		{"serve-fixture"},
	}

	for _, path := range commands {
		t.Run(path[len(path)-1], func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	for flag, def := range map[string]string{
		"driver":          "chrome",
		"headless":        "true",
		"renavigate-each": "false",
		"db":              "",
		"metrics-addr":    "",
		"where":           "",
		"corpus":          "",
	} {
		f := runCmd.Flags().Lookup(flag)
		require.NotNil(t, f, flag)
		assert.Equal(t, def, f.DefValue, flag)
	}
	for _, flag := range []string{"target", "targets", "suite", "case", "config", "chrome"} {
		assert.NotNil(t, runCmd.Flags().Lookup(flag), flag)
	}
	assert.Equal(t, "c", runCmd.Flags().Lookup("config").Shorthand)
}

func TestHistoryCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	historyCmd, _, err := cmd.Find([]string{"history"})
	require.NoError(t, err)

	dbFlag := historyCmd.PersistentFlags().Lookup("db")
	require.NotNil(t, dbFlag)
	// --db is required, so default is empty
	assert.Equal(t, "", dbFlag.DefValue)
}

func TestServeFixtureCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	serveCmd, _, err := cmd.Find([]string{"serve-fixture"})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", serveCmd.Flags().Lookup("addr").DefValue)
	assert.Equal(t, "300ms", serveCmd.Flags().Lookup("debounce").DefValue)
	assert.Equal(t, "20ms", serveCmd.Flags().Lookup("stream-step").DefValue)
}

func TestFormatValidation(t *testing.T) {
	for _, format := range []string{"xml", "", "TEXT"} {
		cmd := NewRootCommand()
		cmd.SetOut(io.Discard)
		cmd.SetArgs([]string{"--format", format, "list"})
		err := cmd.Execute()
		require.Error(t, err, "format %q", format)
		assert.Contains(t, err.Error(), "invalid format")
	}

	for _, format := range ValidFormats {
		cmd := NewRootCommand()
		cmd.SetOut(io.Discard)
		cmd.SetArgs([]string{"--format", format, "list", "--case", "Pos_01"})
		assert.NoError(t, cmd.Execute(), "format %q", format)
	}
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "list"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
