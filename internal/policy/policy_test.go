package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/promote/internal/model"
)

const articlePolicy = `
auto_merge_one_sided: true
entity: node: {
	article: {
		text_field:    "body"
		status_field:  {name: "moderation_state", draft: "draft"}
		merge_display: ["title", "tags"]
		field: {
			changed: blacklist: "source"
			uuid: {blacklist: "target", read_only: true}
			nid: read_only: true
			revision_log: metadata: true
		}
	}
	"*": {
		field: changed: blacklist: "base"
	}
}
`

func TestCompileString(t *testing.T) {
	p, err := CompileString(articlePolicy, "policy.cue")
	require.NoError(t, err)

	assert.True(t, p.OneSided())

	dir, ok := p.Blacklisted("node", "article", "changed")
	assert.True(t, ok)
	assert.Equal(t, model.TakeSourceSide, dir)

	dir, ok = p.Blacklisted("node", "article", "uuid")
	assert.True(t, ok)
	assert.Equal(t, model.TakeTargetSide, dir)

	_, ok = p.Blacklisted("node", "article", "title")
	assert.False(t, ok)

	assert.True(t, p.ReadOnly("node", "article", "nid"))
	assert.True(t, p.RevisionMetadata("node", "article", "revision_log"))
	assert.True(t, p.InMergeDisplay("node", "article", "title"))
	assert.False(t, p.InMergeDisplay("node", "article", "summary"))
	assert.Equal(t, "body", p.TextField("node", "article"))

	field, draft := p.StatusField("node", "article")
	assert.Equal(t, "moderation_state", field)
	assert.Equal(t, model.String("draft"), draft)
}

func TestCompileString_WildcardBundle(t *testing.T) {
	p, err := CompileString(articlePolicy, "policy.cue")
	require.NoError(t, err)

	dir, ok := p.Blacklisted("node", "page", "changed")
	assert.True(t, ok)
	assert.Equal(t, model.TakeBaseSide, dir)
	assert.True(t, p.InMergeDisplay("node", "page", "anything"), "no merge_display shows everything")

	_, ok = p.Blacklisted("media", "image", "changed")
	assert.False(t, ok)
}

func TestCompileString_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantMsg string
	}{
		{
			name:    "bad direction",
			src:     `entity: node: article: field: changed: blacklist: "left"`,
			wantMsg: "blacklist",
		},
		{
			name:    "unknown key",
			src:     `entity: node: article: colour: "red"`,
			wantMsg: "colour",
		},
		{
			name:    "blacklisted text field",
			src:     `entity: node: article: {text_field: "body", field: body: blacklist: "source"}`,
			wantMsg: "text field \"body\" is blacklisted",
		},
		{
			name:    "blacklisted field displayed",
			src:     `entity: node: article: {merge_display: ["uuid"], field: uuid: blacklist: "target"}`,
			wantMsg: "cannot be displayed",
		},
		{
			name:    "float draft",
			src:     `entity: node: article: status_field: {name: "status", draft: 1.5}`,
			wantMsg: "draft",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileString(tt.src, "bad.cue")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestNilPolicyIsPermissive(t *testing.T) {
	var p *Policy

	_, ok := p.Blacklisted("node", "article", "changed")
	assert.False(t, ok)
	assert.True(t, p.InMergeDisplay("node", "article", "title"))
	assert.False(t, p.ReadOnly("node", "article", "nid"))
	assert.Equal(t, "", p.TextField("node", "article"))
	field, draft := p.StatusField("node", "article")
	assert.Empty(t, field)
	assert.Nil(t, draft)
	assert.False(t, p.OneSided())
	assert.Empty(t, p.Validate())
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "policy.cue"), []byte(articlePolicy), 0o644))

	p, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Len(t, p.Bundles(), 2)
	assert.Equal(t, "article", p.Bundles()[1].Name)

	_, err = LoadDir(t.TempDir())
	assert.Error(t, err)

	_, err = LoadDir(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
