package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/promote/internal/model"
	"github.com/roach88/promote/internal/transfer"
)

func TestWorkspaceCommands(t *testing.T) {
	env := newCLIEnv(t)
	env.seedTree()
	env.mustRun("workspace", "add", "feature", "--parent", "dev", "--label", "Feature", "--auto-push")

	out := env.mustRun("workspace", "chain", "feature")
	assert.Equal(t, "feature -> dev -> stage -> live\n", out)

	resp, err := env.runJSON("workspace", "list")
	require.NoError(t, err)
	var wss []model.Workspace
	env.decode(resp.Data, &wss)
	require.Len(t, wss, 4)
	assert.Equal(t, model.Workspace{ID: "feature", ParentID: "dev", Label: "Feature", AutoPush: true}, wss[1])

	resp, err = env.runJSON("workspace", "add", "other")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, ErrCodePolicyViolation, resp.Error.Code)

	resp, err = env.runJSON("workspace", "chain", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
}

func TestRevisionCommands(t *testing.T) {
	env := newCLIEnv(t)
	env.seedTree()

	resp, err := env.runJSON("revision", "commit", "node/1", "-w", "stage", "--bundle", "article",
		"--fields", `{"title":"base"}`, "-m", "first")
	require.NoError(t, err)
	var res transfer.CommitResult
	env.decode(resp.Data, &res)
	assert.Equal(t, model.RevisionID(1), res.Revision.ID)
	assert.Nil(t, res.Delivery)

	env.mustRun("revision", "commit", "node/1", "-w", "dev", "--fields", `{"title":"dev"}`)
	env.mustRun("revision", "commit", "node/1", "-w", "stage", "--fields", `{"title":"stage"}`)

	resp, err = env.runJSON("revision", "log", "node/1")
	require.NoError(t, err)
	var history []model.Revision
	env.decode(resp.Data, &history)
	require.Len(t, history, 3)
	assert.Equal(t, model.RevisionID(1), history[1].ParentID, "dev inherits stage's revision as parent")
	assert.Equal(t, "article", history[1].Bundle)

	out := env.mustRun("revision", "lca", "node/1", "2", "3")
	assert.Equal(t, "1\n", out)

	resp, err = env.runJSON("revision", "commit", "node/1", "-w", "dev", "--fields", `["not","an","object"]`)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ErrCodeInvalidArgument, resp.Error.Code)

	_, err = env.runJSON("revision", "lca", "node/1", "1", "99")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestRevisionCommitAutoPush(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("workspace", "add", "live")
	env.mustRun("workspace", "add", "stage", "--parent", "live", "--auto-push")

	resp, err := env.runJSON("revision", "commit", "node/1", "-w", "stage", "--bundle", "page", "--fields", `{"title":"hi"}`)
	require.NoError(t, err)
	var res transfer.CommitResult
	env.decode(resp.Data, &res)
	require.NotNil(t, res.Delivery)
	assert.Equal(t, "d1", res.Delivery.ID)
	assert.Equal(t, model.DeliveryClosed, res.Delivery.Status)

	resp, err = env.runJSON("revision", "log", "node/1")
	require.NoError(t, err)
	var history []model.Revision
	env.decode(resp.Data, &history)
	require.Len(t, history, 2)
	assert.Equal(t, "live", history[1].WorkspaceID)
	assert.True(t, history[1].Default)
}

// TestDeliveryConflictWorkflow pulls a delivery whose first entity conflicts:
// the pull is refused until the conflict is resolved field by field.
func TestDeliveryConflictWorkflow(t *testing.T) {
	env := newCLIEnv(t)
	env.seedTree()
	env.mustRun("revision", "commit", "node/1", "-w", "stage", "--fields", `{"title":"base","body":"same"}`)
	env.mustRun("revision", "commit", "node/1", "-w", "dev", "--fields", `{"title":"dev","body":"same"}`)
	env.mustRun("revision", "commit", "node/1", "-w", "stage", "--fields", `{"title":"stage","body":"same"}`)
	env.mustRun("revision", "commit", "node/2", "-w", "dev", "--fields", `{"title":"new"}`)

	resp, err := env.runJSON("delivery", "create", "--source", "dev", "--target", "stage", "--label", "sprint")
	require.NoError(t, err)
	var d model.Delivery
	env.decode(resp.Data, &d)
	assert.Equal(t, "d1", d.ID)
	assert.Equal(t, []model.RevisionRef{
		{Entity: model.EntityRef{Type: "node", ID: "1"}, RevisionID: 2},
		{Entity: model.EntityRef{Type: "node", ID: "2"}, RevisionID: 4},
	}, d.Refs)

	resp, err = env.runJSON("delivery", "status", "d1")
	require.NoError(t, err)
	var status transfer.StatusReport
	env.decode(resp.Data, &status)
	require.Len(t, status.Items, 2)
	assert.Equal(t, model.StatusConflict, status.Items[0].Status)
	assert.Equal(t, model.StatusNew, status.Items[1].Status)

	resp, err = env.runJSON("delivery", "discover", "d1", "node/1", "-t", "stage")
	require.NoError(t, err)
	var dis transfer.Discovery
	env.decode(resp.Data, &dis)
	assert.Equal(t, model.ConflictSet{"title": model.LocalAndRemote}, dis.Conflicts)

	resp, err = env.runJSON("delivery", "pull", "d1", "-w", "stage")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, ErrCodePolicyViolation, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "CONFLICT_BLOCKED")

	out, err := env.run("delivery", "resolve", "d1", "node/1", "-t", "stage")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "needs a selection for: title")

	out = env.mustRun("delivery", "resolve", "d1", "node/1", "-t", "stage", "--select", "title=custom:\"merged\"")
	assert.Contains(t, out, "resolved: merged")

	resp, err = env.runJSON("delivery", "pull", "d1", "-w", "stage")
	require.NoError(t, err)
	var report transfer.Report
	env.decode(resp.Data, &report)
	require.Len(t, report.Succeeded, 2)
	assert.Equal(t, transfer.OutcomeSkipped, report.Succeeded[0].Outcome)
	assert.Equal(t, transfer.OutcomeWritten, report.Succeeded[1].Outcome)

	out = env.mustRun("delivery", "status", "d1")
	assert.Contains(t, out, "Delivery d1 (closed)")

	resp, err = env.runJSON("delivery", "forward", "d1", "--from", "stage", "--target", "live")
	require.NoError(t, err)
	var fwd struct {
		Delivery model.Delivery `json:"delivery"`
	}
	env.decode(resp.Data, &fwd)
	assert.Equal(t, "d2", fwd.Delivery.ID)
	assert.Equal(t, "d1", fwd.Delivery.ForwardedFrom)

	resp, err = env.runJSON("delivery", "pull", "d1", "-w", "stage")
	require.Error(t, err)
	assert.Contains(t, resp.Error.Message, "DELIVERY_CLOSED")
}

func TestDeliveryPushInBatches(t *testing.T) {
	env := newCLIEnv(t)
	env.seedTree()
	env.mustRun("revision", "commit", "node/1", "-w", "dev", "--fields", `{"title":"one","body":"x"}`)
	env.mustRun("revision", "commit", "node/2", "-w", "dev", "--fields", `{"title":"two","body":"y"}`)
	env.mustRun("delivery", "create", "--source", "dev", "--target", "stage", "--target", "live")

	out := env.mustRun("delivery", "push", "d1", "--batch", "1")
	assert.Contains(t, out, "Progress: 1/2")

	resp, err := env.runJSON("delivery", "push", "d1", "--batch", "1", "--fields", "node=title")
	require.NoError(t, err)
	var report transfer.Report
	env.decode(resp.Data, &report)
	require.NotNil(t, report.Cursor)
	assert.Equal(t, 2, report.Cursor.Position)
	assert.Len(t, report.Succeeded, 2)

	resp, err = env.runJSON("revision", "log", "node/2")
	require.NoError(t, err)
	var history []model.Revision
	env.decode(resp.Data, &history)
	require.Len(t, history, 3)
	assert.Equal(t, model.Object{"title": model.String("two")}, history[2].Fields, "only listed fields reach a new target")

	resp, err = env.runJSON("delivery", "push", "d1")
	require.Error(t, err)
	assert.Contains(t, resp.Error.Message, "DELIVERY_CLOSED")
}

func TestDeliveryNotFound(t *testing.T) {
	env := newCLIEnv(t)
	env.seedTree()

	resp, err := env.runJSON("delivery", "status", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
}

func TestPolicyValidate(t *testing.T) {
	env := newCLIEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "policy.cue"), []byte(`
auto_merge_one_sided: true
entity: node: article: {
	text_field:    "body"
	merge_display: ["title"]
	field: changed: blacklist: "source"
}
`), 0644))

	resp, err := env.runJSON("policy", "validate", dir)
	require.NoError(t, err)
	var summary PolicySummary
	env.decode(resp.Data, &summary)
	assert.True(t, summary.Valid)
	assert.True(t, summary.AutoMergeOneSided)
	assert.Equal(t, []BundleSummary{{EntityType: "node", Bundle: "article", Fields: 1, TextField: "body"}}, summary.Bundles)

	bad := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(bad, "policy.cue"), []byte(`
entity: node: article: {text_field: "body", field: body: blacklist: "source"}
`), 0644))
	resp, err = env.runJSON("policy", "validate", bad)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, ErrCodePolicy, resp.Error.Code)

	_, err = env.run("policy", "validate", filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestPolicyFlagAppliesToEngine(t *testing.T) {
	env := newCLIEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "policy.cue"), []byte(`
entity: node: article: field: changed: blacklist: "target"
`), 0644))
	env.seedTree()
	env.mustRun("revision", "commit", "node/1", "-w", "stage", "--bundle", "article", "--fields", `{"title":"a","changed":1}`)
	env.mustRun("revision", "commit", "node/1", "-w", "dev", "--fields", `{"title":"a","changed":2}`)
	env.mustRun("revision", "commit", "node/1", "-w", "stage", "--fields", `{"title":"a","changed":3}`)
	env.mustRun("delivery", "create", "--source", "dev", "--target", "stage")

	resp, err := env.runJSON("--policy", dir, "delivery", "discover", "d1", "node/1", "-t", "stage")
	require.NoError(t, err)
	var dis transfer.Discovery
	env.decode(resp.Data, &dis)
	assert.Empty(t, dis.Conflicts, "blacklisted fields never conflict")

	_, err = env.runJSON("--policy", filepath.Join(dir, "missing"), "workspace", "list")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
