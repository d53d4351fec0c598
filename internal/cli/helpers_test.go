package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/promote/internal/config"
	"github.com/roach88/promote/internal/transfer"
)

// cliEnv runs commands against one database, sharing a fixed delivery-ID
// sequence across invocations.
type cliEnv struct {
	t   *testing.T
	db  string
	ids transfer.IDGenerator
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	return &cliEnv{
		t:   t,
		db:  filepath.Join(t.TempDir(), "promote.db"),
		ids: transfer.NewFixedGenerator("d1", "d2", "d3", "d4", "d5"),
	}
}

func (e *cliEnv) run(args ...string) (string, error) {
	e.t.Helper()
	opts := &RootOptions{
		Config: config.Config{
			Database:  e.db,
			BatchSize: transfer.DefaultBatchSize,
			LogFormat: config.LogText,
		},
		IDGenerator: e.ids,
	}
	cmd := newRootCommand(opts)
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// mustRun runs a command that has to succeed.
func (e *cliEnv) mustRun(args ...string) string {
	e.t.Helper()
	out, err := e.run(args...)
	require.NoError(e.t, err, "output: %s", out)
	return out
}

// jsonResponse is CLIResponse with the payload left raw.
type jsonResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

// runJSON runs a command with --format json and decodes its single response.
func (e *cliEnv) runJSON(args ...string) (jsonResponse, error) {
	e.t.Helper()
	out, err := e.run(append([]string{"--format", "json"}, args...)...)
	var resp jsonResponse
	require.NoError(e.t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp, err
}

func (e *cliEnv) decode(raw json.RawMessage, v any) {
	e.t.Helper()
	require.NoError(e.t, json.Unmarshal(raw, v))
}

// seedTree creates live <- stage <- dev.
func (e *cliEnv) seedTree() {
	e.t.Helper()
	e.mustRun("workspace", "add", "live")
	e.mustRun("workspace", "add", "stage", "--parent", "live")
	e.mustRun("workspace", "add", "dev", "--parent", "stage")
}
