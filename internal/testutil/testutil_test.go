package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/promote/internal/model"
)

func TestSequence(t *testing.T) {
	s := NewSequence("d")
	assert.Equal(t, int64(0), s.Current())
	assert.Equal(t, "d1", s.Generate())
	assert.Equal(t, int64(2), s.Next())
	assert.Equal(t, "d3", s.Generate())
	assert.Equal(t, int64(3), s.Current())
}

func TestSequence_Concurrent(t *testing.T) {
	s := NewSequence("")
	var wg sync.WaitGroup
	seen := sync.Map{}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, dup := seen.LoadOrStore(s.Next(), true)
			assert.False(t, dup)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), s.Current())
}

var node = model.EntityRef{Type: "node", ID: "1"}

func sampleHistory() *History {
	return NewHistory().
		MustAdd(RevisionSpec{Alias: "base", Entity: node, Workspace: "live", Default: true, Fields: model.Object{"title": model.String("base")}}).
		MustAdd(RevisionSpec{Alias: "dev", Entity: node, Workspace: "dev", Parent: "base"}).
		MustAdd(RevisionSpec{Alias: "merged", Entity: node, Workspace: "live", Parent: "base", MergeParent: "dev", Default: true})
}

func TestHistory_Revisions(t *testing.T) {
	revs, ids := sampleHistory().Revisions()
	require.Len(t, revs, 3)
	assert.Equal(t, map[string]model.RevisionID{"base": 1, "dev": 2, "merged": 3}, ids)
	assert.Equal(t, model.RevisionID(1), revs[1].ParentID)
	assert.Equal(t, model.RevisionID(2), revs[2].MergeParentID)
	assert.True(t, revs[0].ParentID.IsNone())
}

func TestHistory_AddRejects(t *testing.T) {
	h := sampleHistory()
	assert.Error(t, h.Add(RevisionSpec{Alias: "base", Entity: node}))
	assert.Error(t, h.Add(RevisionSpec{Alias: "x", Entity: node, Parent: "nope"}))
	assert.Error(t, h.Add(RevisionSpec{Entity: node}))
	assert.Equal(t, 3, h.Len())
}

// offsetCreator assigns IDs starting at 100 to show Save remaps parents.
type offsetCreator struct {
	next  model.RevisionID
	saved []model.Revision
}

func (c *offsetCreator) CreateRevision(_ context.Context, rev model.Revision) (model.Revision, error) {
	c.next++
	rev.ID = 100 + c.next
	c.saved = append(c.saved, rev)
	return rev, nil
}

func TestHistory_Save(t *testing.T) {
	c := &offsetCreator{}
	ids, err := sampleHistory().Save(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, model.RevisionID(101), ids["base"])
	assert.Equal(t, model.RevisionID(101), c.saved[1].ParentID)
	assert.Equal(t, model.RevisionID(102), c.saved[2].MergeParentID)
}
