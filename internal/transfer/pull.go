package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/promote/internal/model"
	"github.com/roach88/promote/internal/reconcile"
	"github.com/roach88/promote/internal/revgraph"
	"github.com/roach88/promote/internal/store"
	"github.com/roach88/promote/internal/workspace"
)

// Pull brings a delivery's changes into workspaceID, which must be one of its
// targets.
//
// Every ref is classified first. If any is Conflict the whole pull is
// rejected with a PolicyViolation before anything is written. Otherwise
// Modified and New entities get a revision cloned from the source with the
// workspace's head as parent and the source as merge parent, and Identical
// items are recorded; all of it in one transaction. Outdated entities are
// reported as blocked and left unresolved. An entity whose history cannot be
// read is reported as failed and skipped.
func (e *Engine) Pull(ctx context.Context, deliveryID, workspaceID string) (*Report, error) {
	d, err := e.loadOpen(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if !d.HasTarget(workspaceID) {
		return nil, targetNotAllowed(d.ID, workspaceID, "can only pull into one of the delivery's targets")
	}
	h, err := e.hierarchy(ctx)
	if err != nil {
		return nil, err
	}

	// An item resolved by another caller between planning and writing rolls
	// the pull back; the retry reports it as skipped.
	var report *Report
	for attempt := 0; ; attempt++ {
		report, err = e.pullOnce(ctx, h, d, workspaceID)
		if !errors.Is(err, errAlreadyResolved) || attempt == len(d.Refs) {
			break
		}
	}
	if err != nil {
		if model.IsPolicyViolation(err) {
			return nil, err
		}
		return nil, fmt.Errorf("pull delivery %s: %w", d.ID, err)
	}

	if _, err := e.rollup(ctx, d); err != nil {
		return report, err
	}
	e.logger.Info("delivery pulled",
		"delivery_id", d.ID,
		"workspace", workspaceID,
		"written", countOutcome(report.Succeeded, OutcomeWritten),
		"blocked", len(report.Blocked),
		"failed", len(report.Failed),
	)
	return report, nil
}

// pullOnce classifies every ref and writes the pull in one transaction.
func (e *Engine) pullOnce(ctx context.Context, h *workspace.Hierarchy, d model.Delivery, workspaceID string) (*Report, error) {
	type planned struct {
		state reconcile.EntityState
		graph *revgraph.Graph
	}
	resolved, err := e.resolvedItems(ctx, d.ID, workspaceID)
	if err != nil {
		return nil, err
	}

	report := newReport(d.ID)
	var plan []planned
	var conflicting []model.EntityRef
	for _, ref := range d.Refs {
		if it, ok := resolved[ref.Entity]; ok {
			report.add(EntityResult{
				Entity:   ref.Entity,
				Target:   workspaceID,
				Outcome:  OutcomeSkipped,
				Kind:     it.Resolution,
				Revision: it.ResultRevisionID,
			})
			continue
		}
		g, err := e.graph(ctx, ref.Entity)
		if err != nil {
			report.fail(ref.Entity, workspaceID, err)
			continue
		}
		state, err := reconcile.ClassifyEntity(g, h, ref.RevisionID, workspaceID)
		if err != nil {
			report.fail(ref.Entity, workspaceID, err)
			continue
		}
		if state.Status == model.StatusConflict {
			conflicting = append(conflicting, ref.Entity)
		}
		plan = append(plan, planned{state: state, graph: g})
	}

	if len(conflicting) > 0 {
		err := model.NewPolicyViolation(model.ErrCodeConflictBlocked,
			fmt.Sprintf("%d entities are in conflict; resolve them before pulling", len(conflicting)))
		err.Workspace = workspaceID
		err.Entities = conflicting
		err.Details = map[string]string{"delivery": d.ID}
		return nil, err
	}

	err = e.store.WithTx(ctx, func(tx *store.Tx) error {
		for _, p := range plan {
			res, err := e.pullEntity(ctx, tx, h, p.graph, d, p.state, workspaceID)
			if err != nil {
				return err
			}
			report.add(res)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (e *Engine) pullEntity(ctx context.Context, tx *store.Tx, h *workspace.Hierarchy, g *revgraph.Graph, d model.Delivery, state reconcile.EntityState, workspaceID string) (EntityResult, error) {
	res := EntityResult{Entity: state.Ref, Target: workspaceID, Status: state.Status}
	key := model.ItemKey{DeliveryID: d.ID, TargetID: workspaceID, Entity: state.Ref}

	switch state.Status {
	case model.StatusIdentical:
		if err := claimItem(ctx, tx, key, model.Identical, state.Target); err != nil {
			return res, err
		}
		res.Outcome = OutcomeIdentical
		res.Kind = model.Identical
		res.Revision = state.Target
		return res, nil

	case model.StatusOutdated:
		res.Outcome = OutcomeBlocked
		res.Error = "target has changes the source lacks"
		return res, nil
	}

	src, _ := g.Revision(state.Source)
	rev, err := descend(g, h, src, workspaceID, nil)
	if err != nil {
		return res, err
	}
	rev.Message = "pull delivery " + d.ID
	saved, err := tx.CreateRevision(ctx, rev)
	if err != nil {
		return res, err
	}
	if err := claimItem(ctx, tx, key, model.TookSource, saved.ID); err != nil {
		return res, err
	}
	res.Outcome = OutcomeWritten
	res.Kind = model.TookSource
	res.Revision = saved.ID
	return res, nil
}

// resolvedItems returns the already-resolved items of a delivery for one
// target, keyed by entity.
func (e *Engine) resolvedItems(ctx context.Context, deliveryID, targetID string) (map[model.EntityRef]model.DeliveryItem, error) {
	items, err := e.store.DeliveryItems(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	out := map[model.EntityRef]model.DeliveryItem{}
	for _, it := range items {
		if it.TargetID == targetID && it.Resolution.IsResolved() {
			out[it.Entity] = it
		}
	}
	return out, nil
}

func countOutcome(results []EntityResult, o Outcome) int {
	n := 0
	for _, r := range results {
		if r.Outcome == o {
			n++
		}
	}
	return n
}
