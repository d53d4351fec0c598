package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/promote/internal/model"
	"github.com/roach88/promote/internal/policy"
	"github.com/roach88/promote/internal/reconcile"
	"github.com/roach88/promote/internal/revgraph"
	"github.com/roach88/promote/internal/store"
	"github.com/roach88/promote/internal/workspace"
)

// DefaultBatchSize caps how many entities one PushBatch call processes.
const DefaultBatchSize = 50

// Engine orchestrates deliveries: it selects entities, classifies them,
// discovers and resolves conflicts, and persists result revisions with
// parent and merge-parent provenance.
//
// The engine holds no locks. Two callers writing the same (entity, workspace)
// can both supersede the same parent; the resulting sibling revisions are
// divergent lineages that later classification reports as Conflict.
type Engine struct {
	store     *store.Store
	policy    *policy.Policy
	pipeline  *reconcile.Pipeline
	ids       IDGenerator
	logger    *slog.Logger
	batchSize int
	maxDepth  int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithBatchSize sets the default PushBatch size.
//
// Default: 50 entities (DefaultBatchSize)
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithPipeline replaces the default resolution pipeline.
func WithPipeline(p *reconcile.Pipeline) Option {
	return func(e *Engine) {
		e.pipeline = p
	}
}

// WithIDGenerator sets the delivery ID generator. The default is UUIDv7.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithMaxDepth bounds ancestry walks. Zero means the size of each entity's
// history.
func WithMaxDepth(n int) Option {
	return func(e *Engine) {
		e.maxDepth = n
	}
}

// New creates an Engine over s. A nil policy is permissive.
func New(s *store.Store, p *policy.Policy, opts ...Option) *Engine {
	e := &Engine{
		store:     s,
		policy:    p,
		ids:       UUIDv7Generator{},
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.pipeline == nil {
		e.pipeline = reconcile.DefaultPipeline(p, nil, p.OneSided(),
			reconcile.WithPipelineLogger(e.logger))
	}
	return e
}

// Store returns the engine's store.
func (e *Engine) Store() *store.Store {
	return e.store
}

// Policy returns the engine's field policy.
func (e *Engine) Policy() *policy.Policy {
	return e.policy
}

func (e *Engine) hierarchy(ctx context.Context) (*workspace.Hierarchy, error) {
	wss, err := e.store.Workspaces(ctx)
	if err != nil {
		return nil, err
	}
	return workspace.NewHierarchy(wss)
}

// Graph loads the revision graph of one entity.
func (e *Engine) Graph(ctx context.Context, ref model.EntityRef) (*revgraph.Graph, error) {
	return e.graph(ctx, ref)
}

func (e *Engine) graph(ctx context.Context, ref model.EntityRef) (*revgraph.Graph, error) {
	history, err := e.store.EntityHistory(ctx, ref)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, model.NewDataIntegrityError(model.ErrCodeMissingRevision, ref, "entity has no revisions")
	}
	return revgraph.New(history, e.graphOptions()...)
}

func (e *Engine) graphOptions() []revgraph.Option {
	if e.maxDepth > 0 {
		return []revgraph.Option{revgraph.WithMaxDepth(e.maxDepth)}
	}
	return nil
}

// graphs caches entity graphs for the duration of one operation. Graphs are
// never refreshed, so an operation sees the history as it was when first
// loaded.
type graphs struct {
	e     *Engine
	cache map[model.EntityRef]*revgraph.Graph
}

func (e *Engine) graphs() *graphs {
	return &graphs{e: e, cache: map[model.EntityRef]*revgraph.Graph{}}
}

func (gs *graphs) get(ctx context.Context, ref model.EntityRef) (*revgraph.Graph, error) {
	if g, ok := gs.cache[ref]; ok {
		return g, nil
	}
	g, err := gs.e.graph(ctx, ref)
	if err != nil {
		return nil, err
	}
	gs.cache[ref] = g
	return g, nil
}

// descend builds the unsaved revision that delivers fields into workspaceID:
// it supersedes the workspace's current head and records from as its merge
// parent.
func descend(g *revgraph.Graph, h *workspace.Hierarchy, from model.Revision, workspaceID string, fields model.Object) (model.Revision, error) {
	rev := from.Derive(workspaceID)
	if fields != nil {
		rev.Fields = fields.Clone()
	}
	parent, ok, err := h.ParentFor(g, workspaceID)
	if err != nil {
		return model.Revision{}, err
	}
	if ok {
		rev.ParentID = parent.ID
	}
	rev.MergeParentID = from.ID
	rev.Default = workspaceID == h.Root()
	return rev, nil
}

// rollup recomputes a delivery's status from its items and stores it when it
// changed.
func (e *Engine) rollup(ctx context.Context, d model.Delivery) (model.DeliveryStatus, error) {
	items, err := e.store.DeliveryItems(ctx, d.ID)
	if err != nil {
		return d.Status, err
	}
	status := model.RollupStatus(items)
	if status == d.Status {
		return status, nil
	}
	if err := e.store.SetDeliveryStatus(ctx, d.ID, status); err != nil {
		return d.Status, err
	}
	e.logger.Info("delivery status changed",
		"delivery_id", d.ID,
		"from", d.Status,
		"to", status,
	)
	return status, nil
}

// errAlreadyResolved aborts a write transaction whose item was resolved by
// another caller after it was read. The transaction's revision rolls back and
// the item is reported as skipped.
var errAlreadyResolved = errors.New("delivery item already resolved")

// claimItem records an item's resolution inside tx and fails with
// errAlreadyResolved when another caller got there first.
func claimItem(ctx context.Context, tx *store.Tx, key model.ItemKey, kind model.ResolutionKind, result model.RevisionID) error {
	ok, err := tx.ResolveDeliveryItem(ctx, key, kind, result)
	if err != nil {
		return err
	}
	if !ok {
		return errAlreadyResolved
	}
	return nil
}

func (e *Engine) loadOpen(ctx context.Context, deliveryID string) (model.Delivery, error) {
	d, err := e.store.LoadDelivery(ctx, deliveryID)
	if err != nil {
		return model.Delivery{}, err
	}
	if d.Status == model.DeliveryClosed {
		return d, closedError(d.ID)
	}
	return d, nil
}

func closedError(deliveryID string) *model.Error {
	err := model.NewPolicyViolation(model.ErrCodeDeliveryClosed, "delivery is closed")
	err.Details = map[string]string{"delivery": deliveryID}
	return err
}

func targetNotAllowed(deliveryID, workspaceID, msg string) *model.Error {
	err := model.NewPolicyViolation(model.ErrCodeTargetNotAllowed, msg)
	err.Workspace = workspaceID
	err.Details = map[string]string{"delivery": deliveryID}
	return err
}

func refFor(d model.Delivery, entity model.EntityRef) (model.RevisionRef, error) {
	for _, ref := range d.Refs {
		if ref.Entity == entity {
			return ref, nil
		}
	}
	err := model.NewPolicyViolation(model.ErrCodeInvalidSelection, fmt.Sprintf("entity is not part of delivery %s", d.ID))
	err.Entity = entity
	return model.RevisionRef{}, err
}
