package workspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/promote/internal/model"
)

func tree(t *testing.T) *Hierarchy {
	t.Helper()
	h, err := NewHierarchy([]model.Workspace{
		{ID: "live"},
		{ID: "stage", ParentID: "live"},
		{ID: "dev", ParentID: "stage"},
		{ID: "qa", ParentID: "stage"},
		{ID: "marketing", ParentID: "live"},
	})
	require.NoError(t, err)
	return h
}

func TestNewHierarchy(t *testing.T) {
	h := tree(t)

	assert.Equal(t, "live", h.Root())
	assert.Equal(t, []string{"dev", "qa"}, h.Children("stage"))

	p, ok := h.Parent("dev")
	assert.True(t, ok)
	assert.Equal(t, "stage", p)

	_, ok = h.Parent("live")
	assert.False(t, ok)

	ids := []string{}
	for _, ws := range h.Workspaces() {
		ids = append(ids, ws.ID)
	}
	assert.Equal(t, []string{"dev", "live", "marketing", "qa", "stage"}, ids)
}

func TestNewHierarchy_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		in       []model.Workspace
		wantCode model.ErrorCode
	}{
		{
			name:     "empty",
			in:       nil,
			wantCode: model.ErrCodeWorkspaceTree,
		},
		{
			name:     "two roots",
			in:       []model.Workspace{{ID: "a"}, {ID: "b"}},
			wantCode: model.ErrCodeWorkspaceTree,
		},
		{
			name:     "duplicate",
			in:       []model.Workspace{{ID: "a"}, {ID: "a"}},
			wantCode: model.ErrCodeWorkspaceTree,
		},
		{
			name:     "missing parent",
			in:       []model.Workspace{{ID: "a"}, {ID: "b", ParentID: "ghost"}},
			wantCode: model.ErrCodeUnknownWorkspace,
		},
		{
			name: "cycle",
			in: []model.Workspace{
				{ID: "live"},
				{ID: "a", ParentID: "b"},
				{ID: "b", ParentID: "a"},
			},
			wantCode: model.ErrCodeCycleDetected,
		},
		{
			name:     "self parent",
			in:       []model.Workspace{{ID: "live"}, {ID: "a", ParentID: "a"}},
			wantCode: model.ErrCodeCycleDetected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewHierarchy(tt.in)
			require.Error(t, err)
			assert.True(t, model.HasCode(err, tt.wantCode), "got %v", err)
			assert.True(t, model.IsDataIntegrity(err))
		})
	}
}

func TestNewHierarchy_CyclePath(t *testing.T) {
	_, err := NewHierarchy([]model.Workspace{
		{ID: "live"},
		{ID: "a", ParentID: "c"},
		{ID: "b", ParentID: "a"},
		{ID: "c", ParentID: "b"},
	})
	var e *model.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "a -> c -> b -> a", e.Details["path"])
}

func TestFindCycle(t *testing.T) {
	tests := []struct {
		name    string
		parents map[string]string
		want    []string
	}{
		{"tree", map[string]string{"live": "", "stage": "live", "dev": "stage", "qa": "stage"}, nil},
		{"self parent", map[string]string{"live": "", "a": "a"}, []string{"a", "a"}},
		{"tail into cycle", map[string]string{"z": "y", "y": "x", "x": "w", "w": "y"}, []string{"w", "y", "x", "w"}},
		{"smallest cycle first", map[string]string{"p": "q", "q": "p", "b": "c", "c": "b"}, []string{"b", "c", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, findCycle(tt.parents))
		})
	}
}

func TestAncestorChain(t *testing.T) {
	h := tree(t)

	chain, err := h.AncestorChain("dev")
	require.NoError(t, err)
	assert.Equal(t, []string{"dev", "stage", "live"}, chain)

	chain, err = h.AncestorChain("live")
	require.NoError(t, err)
	assert.Equal(t, []string{"live"}, chain)

	_, err = h.AncestorChain("nope")
	assert.True(t, model.HasCode(err, model.ErrCodeUnknownWorkspace))
}

func TestIsAncestor(t *testing.T) {
	h := tree(t)
	assert.True(t, h.IsAncestor("live", "dev"))
	assert.True(t, h.IsAncestor("dev", "dev"))
	assert.False(t, h.IsAncestor("dev", "stage"))
	assert.False(t, h.IsAncestor("marketing", "dev"))
}

// fakeIndex maps workspace -> newest revision.
type fakeIndex struct {
	latest map[string]model.Revision
	def    *model.Revision
}

func (f fakeIndex) LatestIn(ws string) (model.Revision, bool) {
	r, ok := f.latest[ws]
	return r, ok
}

func (f fakeIndex) LatestDefault() (model.Revision, bool) {
	if f.def == nil {
		return model.Revision{}, false
	}
	return *f.def, true
}

func TestActiveRevision(t *testing.T) {
	h := tree(t)
	idx := fakeIndex{latest: map[string]model.Revision{
		"live":  {ID: 1, WorkspaceID: "live"},
		"stage": {ID: 2, WorkspaceID: "stage"},
		"qa":    {ID: 3, WorkspaceID: "qa", Deleted: true},
	}}

	tests := []struct {
		ws     string
		want   model.RevisionID
		wantOK bool
	}{
		{ws: "stage", want: 2, wantOK: true},
		{ws: "dev", want: 2, wantOK: true},       // inherits from stage
		{ws: "qa", want: 2, wantOK: true},        // own tombstone skipped
		{ws: "live", want: 1, wantOK: true},      // root sees its own content
		{ws: "marketing", want: 0, wantOK: false}, // never inherits root content
	}
	for _, tt := range tests {
		t.Run(tt.ws, func(t *testing.T) {
			rev, ok, err := h.ActiveRevision(idx, tt.ws)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, rev.ID)
		})
	}

	_, _, err := h.ActiveRevision(idx, "ghost")
	assert.True(t, model.IsPolicyViolation(err))
}

func TestParentFor(t *testing.T) {
	h := tree(t)
	def := model.Revision{ID: 1, WorkspaceID: "live", Default: true}
	idx := fakeIndex{
		latest: map[string]model.Revision{
			"live":      def,
			"marketing": {ID: 4, WorkspaceID: "marketing", Deleted: true},
		},
		def: &def,
	}

	rev, ok, err := h.ParentFor(idx, "dev")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.RevisionID(1), rev.ID, "falls back to the default revision")

	rev, ok, err = h.ParentFor(idx, "marketing")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.RevisionID(4), rev.ID, "own tombstone continues the lineage")

	rev, ok, err = h.ParentFor(fakeIndex{}, "dev")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, model.NoRevision, rev.ID)
}
