package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCommand(&cliState{})
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Rankwatch version")
}

func TestCheckDayCommand(t *testing.T) {
	t.Setenv("RANKWATCH_LOG_LEVEL", "error")

	out, err := execute(t, "check-day", "--date", "2025-10-20")
	require.NoError(t, err)
	assert.Contains(t, out, "2025-10-20 (Monday)")
	assert.Contains(t, out, "trading day")

	out, err = execute(t, "check-day", "--date", "2025-01-01", "--exit-code")
	var exit *exitError
	require.True(t, errors.As(err, &exit))
	assert.Equal(t, 2, exit.code)
	assert.Contains(t, out, "closed")

	_, err = execute(t, "check-day", "--date", "20/10/2025")
	assert.Error(t, err)
}

func TestRunCommand_RejectsBadSlot(t *testing.T) {
	t.Setenv("RANKWATCH_LOG_LEVEL", "error")

	_, err := execute(t, "run", "--target", "morning", "--slot", "9am")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --slot")
}

func TestMissingConfigFile(t *testing.T) {
	_, err := execute(t, "-c", "does-not-exist.toml", "check-day")
	assert.Error(t, err)
}
