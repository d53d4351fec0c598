package transfer

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/promote/internal/model"
	"github.com/roach88/promote/internal/policy"
	"github.com/roach88/promote/internal/store"
)

// fixture is an engine over a fresh store holding live <- stage <- dev.
type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  *store.Store
	engine *Engine
}

func newFixture(t *testing.T, p *policy.Policy, opts ...Option) *fixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	for _, ws := range []model.Workspace{
		{ID: "live"},
		{ID: "stage", ParentID: "live"},
		{ID: "dev", ParentID: "stage"},
	} {
		require.NoError(t, s.CreateWorkspace(ctx, ws))
	}

	opts = append([]Option{WithIDGenerator(NewFixedGenerator("d1", "d2", "d3", "d4"))}, opts...)
	return &fixture{t: t, ctx: ctx, store: s, engine: New(s, p, opts...)}
}

// rev appends a revision of node/<id> directly, bypassing the engine.
func (f *fixture) rev(id, ws string, parent model.RevisionID, fields model.Object) model.Revision {
	f.t.Helper()
	saved, err := f.store.CreateRevision(f.ctx, model.Revision{
		Entity:      node(id),
		Bundle:      "article",
		WorkspaceID: ws,
		ParentID:    parent,
		Default:     ws == "live",
		Fields:      fields,
	})
	require.NoError(f.t, err)
	return saved
}

func (f *fixture) count() int {
	f.t.Helper()
	n, err := f.store.CountRevisions(f.ctx)
	require.NoError(f.t, err)
	return n
}

func (f *fixture) item(deliveryID, target, id string) model.DeliveryItem {
	f.t.Helper()
	it, err := f.store.DeliveryItem(f.ctx, model.ItemKey{DeliveryID: deliveryID, TargetID: target, Entity: node(id)})
	require.NoError(f.t, err)
	return it
}

func (f *fixture) delivery(id string) model.Delivery {
	f.t.Helper()
	d, err := f.store.LoadDelivery(f.ctx, id)
	require.NoError(f.t, err)
	return d
}

func node(id string) model.EntityRef {
	return model.EntityRef{Type: "node", ID: id}
}

func title(s string) model.Object {
	return model.Object{"title": model.String(s), "body": model.String("text")}
}

func pin(revs ...model.Revision) []model.RevisionRef {
	refs := make([]model.RevisionRef, len(revs))
	for i, r := range revs {
		refs[i] = model.RevisionRef{Entity: r.Entity, RevisionID: r.ID}
	}
	return refs
}

// cancelAfter reports cancellation once Err has been called more than limit
// times. Done is inherited from the parent and never closes, so storage calls
// keep working and only the engine's own checks observe the cancellation.
type cancelAfter struct {
	context.Context
	limit int32
	calls atomic.Int32
}

func (c *cancelAfter) Err() error {
	if c.calls.Add(1) > c.limit {
		return context.Canceled
	}
	return nil
}
