package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "promote", cmd.Use)
	assert.Contains(t, cmd.Long, "workspaces")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"workspace", "add"},
		{"workspace", "list"},
		{"workspace", "chain"},
		{"revision", "commit"},
		{"revision", "log"},
		{"revision", "lca"},
		{"delivery", "create"},
		{"delivery", "status"},
		{"delivery", "discover"},
		{"delivery", "resolve"},
		{"delivery", "forward"},
		{"delivery", "pull"},
		{"delivery", "push"},
		{"policy", "validate"},
	}

	for _, path := range commands {
		t.Run(path[0]+" "+path[1], func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err)
			assert.Equal(t, path[1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	t.Setenv("PROMOTE_DB", "/tmp/from-env.db")
	t.Setenv("PROMOTE_BATCH_SIZE", "9")
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	dbFlag := cmd.PersistentFlags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, "/tmp/from-env.db", dbFlag.DefValue)

	batchFlag := cmd.PersistentFlags().Lookup("batch-size")
	require.NotNil(t, batchFlag)
	assert.Equal(t, "9", batchFlag.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run("--format", "xml", "workspace", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestInvalidBatchSize(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run("--batch-size", "0", "workspace", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch size")
}

func TestRequiredFlags(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run("delivery", "create", "--source", "dev")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
	assert.Contains(t, err.Error(), "target")

	_, err = env.run("delivery", "pull", "d1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workspace")
}
