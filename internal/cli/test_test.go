package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/promote/internal/harness"
)

func TestTestCommand(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun("test", "../harness/testdata/scenarios")
	assert.Contains(t, out, "PASS  pull_rejected_by_conflict")
	assert.Contains(t, out, "6 passed, 0 failed")

	resp, err := env.runJSON("test", "../harness/testdata/scenarios")
	require.NoError(t, err)
	var suite harness.SuiteResult
	env.decode(resp.Data, &suite)
	assert.Equal(t, 6, suite.Passed)
	assert.Len(t, suite.Scenarios, 6)
}

func TestTestCommand_Failures(t *testing.T) {
	env := newCLIEnv(t)

	resp, err := env.runJSON("test", "../harness/testdata/invalid")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeScenarioFailed, resp.Error.Code)
	assert.Equal(t, "3 of 3 scenarios failed", resp.Error.Message)

	out, err := env.run("test", "../harness/testdata/invalid")
	require.Error(t, err)
	assert.Contains(t, out, "FAIL  bad_history")

	_, err = env.run("test", t.TempDir())
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
