package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/promote/internal/model"
	"github.com/roach88/promote/internal/revgraph"
	"github.com/roach88/promote/internal/workspace"
)

func TestClassify_DecisionTable(t *testing.T) {
	tests := []struct {
		name    string
		s, t, l model.RevisionID
		want    model.Status
	}{
		{name: "identical", s: 5, t: 5, l: 5, want: model.StatusIdentical},
		{name: "modified", s: 7, t: 5, l: 5, want: model.StatusModified},
		{name: "conflict", s: 7, t: 6, l: 5, want: model.StatusConflict},
		{name: "outdated", s: 5, t: 6, l: 5, want: model.StatusOutdated},
		{name: "new", s: 7, t: 0, l: 0, want: model.StatusNew},
		{name: "new with stale lca", s: 7, t: 0, l: 5, want: model.StatusNew},
		{name: "no shared ancestry", s: 7, t: 6, l: 0, want: model.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.s, tt.t, tt.l))
		})
	}
}

func TestClassify_Properties(t *testing.T) {
	ids := []model.RevisionID{0, 1, 2, 3, 4}
	for _, s := range ids {
		for _, l := range ids {
			assert.Equal(t, model.StatusIdentical, Classify(s, s, l), "classify(%d,%d,%d)", s, s, l)
			if !s.IsNone() && s != l {
				assert.Equal(t, model.StatusNew, Classify(s, model.NoRevision, l), "classify(%d,none,%d)", s, l)
			}
		}
	}
}

func hierarchy(t *testing.T) *workspace.Hierarchy {
	t.Helper()
	h, err := workspace.NewHierarchy([]model.Workspace{
		{ID: "live"},
		{ID: "stage", ParentID: "live"},
		{ID: "dev", ParentID: "stage"},
	})
	require.NoError(t, err)
	return h
}

func graph(t *testing.T, revs ...*model.Revision) *revgraph.Graph {
	t.Helper()
	in := make([]model.Revision, len(revs))
	for i, r := range revs {
		in[i] = *r
	}
	g, err := revgraph.New(in)
	require.NoError(t, err)
	return g
}

func child(id, parent, merge model.RevisionID, ws string) *model.Revision {
	r := revision(id, ws, model.Object{})
	r.ParentID = parent
	r.MergeParentID = merge
	return r
}

func TestClassifyEntity(t *testing.T) {
	h := hierarchy(t)

	t.Run("new to target", func(t *testing.T) {
		g := graph(t, child(1, 0, 0, "dev"))
		st, err := ClassifyEntity(g, h, 1, "stage")
		require.NoError(t, err)
		assert.Equal(t, model.StatusNew, st.Status)
		assert.Equal(t, model.NoRevision, st.Target)
	})

	t.Run("modified", func(t *testing.T) {
		g := graph(t, child(1, 0, 0, "stage"), child(2, 1, 0, "dev"))
		st, err := ClassifyEntity(g, h, 2, "stage")
		require.NoError(t, err)
		assert.Equal(t, EntityState{Ref: article, Source: 2, Target: 1, LCA: 1, Status: model.StatusModified}, st)
	})

	t.Run("conflict", func(t *testing.T) {
		g := graph(t, child(1, 0, 0, "stage"), child(2, 1, 0, "dev"), child(3, 1, 0, "stage"))
		st, err := ClassifyEntity(g, h, 2, "stage")
		require.NoError(t, err)
		assert.Equal(t, model.StatusConflict, st.Status)
		assert.Equal(t, model.RevisionID(1), st.LCA)
	})

	t.Run("already merged is identical", func(t *testing.T) {
		g := graph(t, child(1, 0, 0, "stage"), child(2, 1, 0, "dev"), child(3, 1, 2, "stage"))
		st, err := ClassifyEntity(g, h, 2, "stage")
		require.NoError(t, err)
		assert.Equal(t, model.StatusIdentical, st.Status)
		assert.True(t, st.ViaMerge)
	})

	t.Run("source edited after merge is modified", func(t *testing.T) {
		g := graph(t,
			child(1, 0, 0, "stage"),
			child(2, 1, 0, "dev"),
			child(3, 1, 2, "stage"),
			child(4, 2, 0, "dev"),
		)
		st, err := ClassifyEntity(g, h, 4, "stage")
		require.NoError(t, err)
		assert.Equal(t, model.StatusModified, st.Status)
		assert.Equal(t, model.RevisionID(2), st.LCA)
	})

	t.Run("target edited after merge is outdated", func(t *testing.T) {
		g := graph(t,
			child(1, 0, 0, "stage"),
			child(2, 1, 0, "dev"),
			child(3, 1, 2, "stage"),
			child(4, 3, 0, "stage"),
		)
		st, err := ClassifyEntity(g, h, 2, "stage")
		require.NoError(t, err)
		assert.Equal(t, model.StatusOutdated, st.Status)
	})

	t.Run("missing source", func(t *testing.T) {
		g := graph(t, child(1, 0, 0, "stage"))
		_, err := ClassifyEntity(g, h, 9, "stage")
		assert.True(t, model.IsDataIntegrity(err))
	})
}

// Two writers that both read revision 1 as stage's active revision and saved
// without coordination leave two revisions with the same parent. No lock
// prevents this; the next classification sees divergent lineages.
func TestClassifyEntity_UnlockedConcurrentWritesDiverge(t *testing.T) {
	h := hierarchy(t)
	g := graph(t,
		child(1, 0, 0, "stage"),
		child(2, 1, 0, "stage"), // writer A
		child(3, 1, 0, "stage"), // writer B, same parent
	)

	st, err := ClassifyEntity(g, h, 2, "stage")
	require.NoError(t, err)
	assert.Equal(t, model.RevisionID(3), st.Target, "newest revision is active")
	assert.Equal(t, model.RevisionID(1), st.LCA)
	assert.Equal(t, model.StatusConflict, st.Status)
}
