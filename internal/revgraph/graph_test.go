package revgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/promote/internal/model"
)

var node = model.EntityRef{Type: "node", ID: "1"}

func rev(id, parent, merge model.RevisionID, ws string) model.Revision {
	return model.Revision{
		ID:            id,
		Entity:        node,
		WorkspaceID:   ws,
		ParentID:      parent,
		MergeParentID: merge,
		Fields:        model.Object{},
	}
}

// diamond builds:
//
//	1 (live) -> 2 (live) -> 4 (live)
//	         \-> 3 (stage) -> 5 (stage)
func diamond(t *testing.T) *Graph {
	t.Helper()
	g, err := New([]model.Revision{
		rev(1, 0, 0, "live"),
		rev(2, 1, 0, "live"),
		rev(3, 1, 0, "stage"),
		rev(4, 2, 0, "live"),
		rev(5, 3, 0, "stage"),
	})
	require.NoError(t, err)
	return g
}

func TestAncestors(t *testing.T) {
	g := diamond(t)

	chain, err := g.Ancestors(5)
	require.NoError(t, err)
	assert.Equal(t, []model.RevisionID{5, 3, 1}, chain)

	_, err = g.Ancestors(99)
	require.Error(t, err)
	assert.True(t, model.HasCode(err, model.ErrCodeMissingRevision))
}

func TestAncestors_TruncatedHistoryEndsChain(t *testing.T) {
	g, err := New([]model.Revision{rev(10, 7, 0, "live"), rev(11, 10, 0, "live")})
	require.NoError(t, err)

	chain, err := g.Ancestors(11)
	require.NoError(t, err)
	assert.Equal(t, []model.RevisionID{11, 10}, chain)
}

func TestAncestors_CycleIsDataIntegrityError(t *testing.T) {
	g, err := New([]model.Revision{
		rev(1, 3, 0, "live"),
		rev(2, 1, 0, "live"),
		rev(3, 2, 0, "live"),
	})
	require.NoError(t, err)

	_, err = g.Ancestors(3)
	require.Error(t, err)
	assert.True(t, model.IsCycle(err))
	assert.True(t, model.IsDataIntegrity(err))

	var e *model.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "3 -> 2 -> 1 -> 3", e.Details["path"])

	_, _, err = g.LowestCommonAncestor(1, 2)
	assert.True(t, model.IsCycle(err))
}

func TestAncestors_SelfParentIsCycle(t *testing.T) {
	g, err := New([]model.Revision{rev(1, 1, 0, "live")})
	require.NoError(t, err)

	_, err = g.Ancestors(1)
	assert.True(t, model.IsCycle(err))
}

func TestAncestors_MaxDepth(t *testing.T) {
	g, err := New([]model.Revision{
		rev(1, 0, 0, "live"),
		rev(2, 1, 0, "live"),
		rev(3, 2, 0, "live"),
	}, WithMaxDepth(2))
	require.NoError(t, err)

	_, err = g.Ancestors(3)
	require.Error(t, err)
	assert.True(t, model.HasCode(err, model.ErrCodeDepthExceeded))

	_, err = g.Ancestors(2)
	assert.NoError(t, err)
}

func TestNew_RejectsForeignAndDuplicateRevisions(t *testing.T) {
	other := rev(2, 1, 0, "live")
	other.Entity = model.EntityRef{Type: "node", ID: "2"}

	_, err := New([]model.Revision{rev(1, 0, 0, "live"), other})
	require.Error(t, err)
	assert.True(t, model.HasCode(err, model.ErrCodeForeignRevision))

	_, err = New([]model.Revision{rev(1, 0, 0, "live"), rev(1, 0, 0, "stage")})
	require.Error(t, err)
	assert.True(t, model.HasCode(err, model.ErrCodeDuplicateRevision))
}

func TestLowestCommonAncestor(t *testing.T) {
	g := diamond(t)

	tests := []struct {
		name string
		a, b model.RevisionID
		want model.RevisionID
	}{
		{name: "divergent branches", a: 4, b: 5, want: 1},
		{name: "ancestor and descendant", a: 4, b: 2, want: 2},
		{name: "same revision", a: 5, b: 5, want: 5},
		{name: "root", a: 1, b: 5, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := g.LowestCommonAncestor(tt.a, tt.b)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLowestCommonAncestor_Symmetric(t *testing.T) {
	g := diamond(t)
	ids := []model.RevisionID{1, 2, 3, 4, 5}

	for _, a := range ids {
		for _, b := range ids {
			ab, okAB, err := g.LowestCommonAncestor(a, b)
			require.NoError(t, err)
			ba, okBA, err := g.LowestCommonAncestor(b, a)
			require.NoError(t, err)
			assert.Equal(t, okAB, okBA)
			assert.Equal(t, ab, ba, "lca(%d,%d)", a, b)
		}
		self, ok, err := g.LowestCommonAncestor(a, a)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, a, self)
	}
}

func TestLowestCommonAncestor_IgnoresMergeEdges(t *testing.T) {
	// 3 merged 2 in, but 2 and 3 share no primary ancestry.
	g, err := New([]model.Revision{
		rev(1, 0, 0, "live"),
		rev(2, 0, 0, "stage"),
		rev(3, 1, 2, "live"),
	})
	require.NoError(t, err)

	_, ok, err := g.LowestCommonAncestor(3, 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsAncestor(t *testing.T) {
	g := diamond(t)

	ok, err := g.IsAncestor(1, 4)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.IsAncestor(3, 4)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = g.IsAncestor(4, 4)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLatestIn(t *testing.T) {
	g := diamond(t)

	r, ok := g.LatestIn("stage")
	require.True(t, ok)
	assert.Equal(t, model.RevisionID(5), r.ID)

	_, ok = g.LatestIn("dev")
	assert.False(t, ok)
}

func TestLatestDefault(t *testing.T) {
	r1 := rev(1, 0, 0, "live")
	r1.Default = true
	g, err := New([]model.Revision{r1, rev(2, 1, 0, "stage")})
	require.NoError(t, err)

	r, ok := g.LatestDefault()
	require.True(t, ok)
	assert.Equal(t, model.RevisionID(1), r.ID)
}

func TestIntegratedAndMergeBase(t *testing.T) {
	// 1 (live) -> 2 (stage) -> 4 (stage)
	//   \-> 3 (live, merged 2) -> 5 (live)
	g, err := New([]model.Revision{
		rev(1, 0, 0, "live"),
		rev(2, 1, 0, "stage"),
		rev(3, 1, 2, "live"),
		rev(4, 2, 0, "stage"),
		rev(5, 3, 0, "live"),
	})
	require.NoError(t, err)

	ok, err := g.Integrated(2, 3)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.Integrated(2, 5)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.Integrated(4, 5)
	require.NoError(t, err)
	assert.False(t, ok)

	t.Run("target is the merge itself", func(t *testing.T) {
		base, ok, err := g.MergeBase(2, 3)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, Base{LCA: 2, Target: 2, ViaMerge: true}, base)
	})

	t.Run("target edited after merge", func(t *testing.T) {
		base, ok, err := g.MergeBase(2, 5)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, Base{LCA: 2, Target: 5, ViaMerge: true}, base)
	})

	t.Run("source advanced past merge", func(t *testing.T) {
		base, ok, err := g.MergeBase(4, 3)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, Base{LCA: 2, Target: 2, ViaMerge: true}, base)
	})

	t.Run("no merge falls back to primary lca", func(t *testing.T) {
		h := diamond(t)
		base, ok, err := h.MergeBase(5, 4)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, Base{LCA: 1, Target: 4}, base)
	})

	t.Run("missing target", func(t *testing.T) {
		base, ok, err := g.MergeBase(4, model.NoRevision)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, model.NoRevision, base.Target)
	})
}

func TestLatestMergeDescendant(t *testing.T) {
	// 2 (dev) merged into 3 (stage), stage edited to 4, then 4 merged into 5 (live).
	g, err := New([]model.Revision{
		rev(1, 0, 0, "live"),
		rev(2, 1, 0, "dev"),
		rev(3, 1, 2, "stage"),
		rev(4, 3, 0, "stage"),
		rev(5, 1, 4, "live"),
		rev(6, 2, 0, "dev"),
	})
	require.NoError(t, err)

	inStage := func(r model.Revision) bool { return r.WorkspaceID == "stage" }
	got, err := g.LatestMergeDescendant(2, inStage)
	require.NoError(t, err)
	assert.Equal(t, model.RevisionID(4), got)

	inLive := func(r model.Revision) bool { return r.WorkspaceID == "live" }
	got, err = g.LatestMergeDescendant(2, inLive)
	require.NoError(t, err)
	assert.Equal(t, model.RevisionID(5), got)

	// Primary descendants of the reference itself are not merge descendants.
	inDev := func(r model.Revision) bool { return r.WorkspaceID == "dev" }
	got, err = g.LatestMergeDescendant(2, inDev)
	require.NoError(t, err)
	assert.Equal(t, model.RevisionID(2), got)

	_, err = g.LatestMergeDescendant(42, nil)
	assert.True(t, model.HasCode(err, model.ErrCodeMissingRevision))
}
