package transfer

import (
	"context"

	"github.com/roach88/promote/internal/model"
	"github.com/roach88/promote/internal/reconcile"
	"github.com/roach88/promote/internal/revgraph"
	"github.com/roach88/promote/internal/workspace"
)

// DeliveryRequest describes a delivery to create.
type DeliveryRequest struct {
	Label     string
	SourceID  string
	TargetIDs []string

	// Refs pins entities to revisions. A ref with NoRevision is pinned to the
	// entity's active revision in the source workspace. When Refs is empty
	// the source workspace's pending changes are captured: the newest
	// revision each entity has there.
	Refs []model.RevisionRef
}

// CreateDelivery captures refs and creates one unresolved item per
// (target, ref).
func (e *Engine) CreateDelivery(ctx context.Context, req DeliveryRequest) (model.Delivery, error) {
	h, err := e.hierarchy(ctx)
	if err != nil {
		return model.Delivery{}, err
	}
	if _, ok := h.Get(req.SourceID); !ok {
		return model.Delivery{}, workspace.UnknownWorkspaceError(req.SourceID)
	}
	if err := checkTargets(h, "", req.SourceID, req.TargetIDs); err != nil {
		return model.Delivery{}, err
	}

	refs := req.Refs
	if len(refs) == 0 {
		refs, err = e.store.WorkspaceEntities(ctx, req.SourceID)
		if err != nil {
			return model.Delivery{}, err
		}
	} else {
		refs, err = e.pinRefs(ctx, h, req.SourceID, refs)
		if err != nil {
			return model.Delivery{}, err
		}
	}
	if len(refs) == 0 {
		err := model.NewPolicyViolation(model.ErrCodeEmptyDelivery, "no entities to deliver")
		err.Workspace = req.SourceID
		return model.Delivery{}, err
	}

	d := model.Delivery{
		ID:        e.ids.Generate(),
		Label:     req.Label,
		SourceID:  req.SourceID,
		TargetIDs: append([]string(nil), req.TargetIDs...),
		Refs:      refs,
		Status:    model.DeliveryOpen,
	}
	if err := e.store.CreateDelivery(ctx, d, itemsFor(d)); err != nil {
		return model.Delivery{}, err
	}

	e.logger.Info("delivery created",
		"delivery_id", d.ID,
		"source", d.SourceID,
		"targets", len(d.TargetIDs),
		"entities", len(d.Refs),
	)
	return d, nil
}

// pinRefs validates explicit refs and pins unpinned ones to the source's
// active revision.
func (e *Engine) pinRefs(ctx context.Context, h *workspace.Hierarchy, sourceID string, refs []model.RevisionRef) ([]model.RevisionRef, error) {
	gs := e.graphs()
	seen := map[model.EntityRef]bool{}
	out := make([]model.RevisionRef, 0, len(refs))
	for _, ref := range refs {
		if seen[ref.Entity] {
			err := model.NewPolicyViolation(model.ErrCodeInvalidSelection, "entity listed twice")
			err.Entity = ref.Entity
			return nil, err
		}
		seen[ref.Entity] = true

		g, err := gs.get(ctx, ref.Entity)
		if err != nil {
			return nil, err
		}
		if ref.RevisionID.IsNone() {
			active, ok, err := h.ActiveRevision(g, sourceID)
			if err != nil {
				return nil, err
			}
			if !ok {
				err := model.NewPolicyViolation(model.ErrCodeInvalidSelection, "entity has no active revision in source workspace")
				err.Entity = ref.Entity
				err.Workspace = sourceID
				return nil, err
			}
			ref.RevisionID = active.ID
		} else if _, ok := g.Revision(ref.RevisionID); !ok {
			return nil, model.NewMissingRevisionError(ref.Entity, ref.RevisionID)
		}
		out = append(out, ref)
	}
	return out, nil
}

// checkTargets rejects an empty, duplicated or unknown target list and any
// target equal to the source.
func checkTargets(h *workspace.Hierarchy, deliveryID, sourceID string, targets []string) error {
	if len(targets) == 0 {
		return targetNotAllowed(deliveryID, sourceID, "delivery needs at least one target")
	}
	seen := map[string]bool{}
	for _, t := range targets {
		if _, ok := h.Get(t); !ok {
			return workspace.UnknownWorkspaceError(t)
		}
		if t == sourceID {
			return targetNotAllowed(deliveryID, t, "target equals the source workspace")
		}
		if seen[t] {
			return targetNotAllowed(deliveryID, t, "target listed twice")
		}
		seen[t] = true
	}
	return nil
}

func itemsFor(d model.Delivery) []model.DeliveryItem {
	items := make([]model.DeliveryItem, 0, len(d.TargetIDs)*len(d.Refs))
	for _, target := range d.TargetIDs {
		for _, ref := range d.Refs {
			items = append(items, model.DeliveryItem{
				DeliveryID:       d.ID,
				SourceID:         d.SourceID,
				TargetID:         target,
				Entity:           ref.Entity,
				SourceRevisionID: ref.RevisionID,
				Resolution:       model.Unresolved,
			})
		}
	}
	return items
}

// ItemStatus is the classification of one delivery item.
type ItemStatus struct {
	Target string `json:"target_workspace_id"`
	reconcile.EntityState
	Resolution model.ResolutionKind `json:"resolution_kind"`
	Result     model.RevisionID     `json:"result_revision_id,omitempty"`
	Error      string               `json:"error,omitempty"`
}

// StatusReport classifies every item of a delivery.
type StatusReport struct {
	Delivery model.Delivery `json:"delivery"`
	Items    []ItemStatus   `json:"items"`
}

// Counts tallies items by status. Failed classifications count as "error".
func (r StatusReport) Counts() map[string]int {
	counts := map[string]int{}
	for _, it := range r.Items {
		if it.Error != "" {
			counts["error"]++
			continue
		}
		counts[string(it.Status)]++
	}
	return counts
}

// Status classifies every (target, ref) of a delivery against the targets'
// current state. A classification failure is recorded on its item and does
// not stop the others.
func (e *Engine) Status(ctx context.Context, deliveryID string) (StatusReport, error) {
	d, err := e.store.LoadDelivery(ctx, deliveryID)
	if err != nil {
		return StatusReport{}, err
	}
	items, err := e.store.DeliveryItems(ctx, deliveryID)
	if err != nil {
		return StatusReport{}, err
	}
	h, err := e.hierarchy(ctx)
	if err != nil {
		return StatusReport{}, err
	}

	gs := e.graphs()
	report := StatusReport{Delivery: d, Items: make([]ItemStatus, 0, len(items))}
	for _, it := range items {
		st := ItemStatus{
			Target:     it.TargetID,
			Resolution: it.Resolution,
			Result:     it.ResultRevisionID,
		}
		st.Ref = it.Entity
		st.Source = it.SourceRevisionID

		g, err := gs.get(ctx, it.Entity)
		if err == nil {
			st.EntityState, err = reconcile.ClassifyEntity(g, h, it.SourceRevisionID, it.TargetID)
		}
		if err != nil {
			st.Error = err.Error()
		}
		report.Items = append(report.Items, st)
	}
	return report, nil
}

// Discovery is the conflict set of one delivery item with the revisions it
// was computed from.
type Discovery struct {
	State     reconcile.EntityState `json:"state"`
	Conflicts model.ConflictSet     `json:"conflicts"`
	Local     *model.Revision       `json:"-"`
	Remote    *model.Revision       `json:"-"`
	Base      *model.Revision       `json:"-"`
}

// Discover computes the policy-filtered conflict set of one entity for one
// target. An entity new to the target gets every editable field marked.
func (e *Engine) Discover(ctx context.Context, deliveryID, target string, entity model.EntityRef) (Discovery, error) {
	d, err := e.store.LoadDelivery(ctx, deliveryID)
	if err != nil {
		return Discovery{}, err
	}
	if !d.HasTarget(target) {
		return Discovery{}, targetNotAllowed(d.ID, target, "workspace is not a target of the delivery")
	}
	ref, err := refFor(d, entity)
	if err != nil {
		return Discovery{}, err
	}
	h, err := e.hierarchy(ctx)
	if err != nil {
		return Discovery{}, err
	}
	g, err := e.graph(ctx, entity)
	if err != nil {
		return Discovery{}, err
	}
	return e.discover(g, h, ref.RevisionID, target)
}

func (e *Engine) discover(g *revgraph.Graph, h *workspace.Hierarchy, source model.RevisionID, target string) (Discovery, error) {
	state, err := reconcile.ClassifyEntity(g, h, source, target)
	if err != nil {
		return Discovery{}, err
	}
	dis := Discovery{State: state}
	dis.Remote = revisionPtr(g, state.Source)
	dis.Local = revisionPtr(g, state.Target)
	dis.Base = revisionPtr(g, state.LCA)

	if state.Status == model.StatusNew {
		dis.Conflicts = reconcile.MarkAll(dis.Remote, e.policy)
		return dis, nil
	}
	dis.Conflicts = reconcile.Discoverer{Policy: e.policy}.Discover(dis.Local, dis.Remote, dis.Base)
	return dis, nil
}

func revisionPtr(g *revgraph.Graph, id model.RevisionID) *model.Revision {
	if id.IsNone() {
		return nil
	}
	rev, ok := g.Revision(id)
	if !ok {
		return nil
	}
	return &rev
}
