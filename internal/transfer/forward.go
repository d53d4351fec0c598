package transfer

import (
	"context"

	"github.com/roach88/promote/internal/model"
)

// Forward clones a delivery with currentWorkspace as the new source and
// newTargets as its targets. currentWorkspace must be one of the delivery's
// targets.
//
// Each ref is re-resolved to the newest revision in currentWorkspace that
// descends from it through merge edges, so a revision that has since been
// merged and superseded is never forwarded under its stale ID. A ref with no
// such descendant is forwarded unchanged. A ref whose history cannot be read
// is left out of the clone and reported as failed.
func (e *Engine) Forward(ctx context.Context, deliveryID, currentWorkspace string, newTargets []string) (model.Delivery, *Report, error) {
	d, err := e.store.LoadDelivery(ctx, deliveryID)
	if err != nil {
		return model.Delivery{}, nil, err
	}
	if !d.HasTarget(currentWorkspace) {
		return model.Delivery{}, nil, targetNotAllowed(d.ID, currentWorkspace, "can only forward from one of the delivery's targets")
	}
	h, err := e.hierarchy(ctx)
	if err != nil {
		return model.Delivery{}, nil, err
	}
	if err := checkTargets(h, d.ID, currentWorkspace, newTargets); err != nil {
		return model.Delivery{}, nil, err
	}

	report := newReport("")
	inCurrent := func(rev model.Revision) bool {
		return rev.WorkspaceID == currentWorkspace
	}
	refs := make([]model.RevisionRef, 0, len(d.Refs))
	for _, ref := range d.Refs {
		if err := ctx.Err(); err != nil {
			return model.Delivery{}, nil, err
		}
		g, err := e.graph(ctx, ref.Entity)
		if err != nil {
			report.fail(ref.Entity, currentWorkspace, err)
			continue
		}
		latest, err := g.LatestMergeDescendant(ref.RevisionID, inCurrent)
		if err != nil {
			report.fail(ref.Entity, currentWorkspace, err)
			continue
		}
		if latest != ref.RevisionID {
			e.logger.Debug("forward re-resolved ref",
				"delivery_id", d.ID,
				"entity", ref.Entity.Key(),
				"from", ref.RevisionID,
				"to", latest,
			)
		}
		refs = append(refs, model.RevisionRef{Entity: ref.Entity, RevisionID: latest})
		report.add(EntityResult{
			Entity:   ref.Entity,
			Target:   currentWorkspace,
			Outcome:  OutcomeResolved,
			Revision: latest,
		})
	}
	if len(refs) == 0 {
		err := model.NewPolicyViolation(model.ErrCodeEmptyDelivery, "no entities to forward")
		err.Details = map[string]string{"delivery": d.ID}
		return model.Delivery{}, report, err
	}

	fwd := model.Delivery{
		ID:            e.ids.Generate(),
		Label:         d.Label,
		SourceID:      currentWorkspace,
		TargetIDs:     append([]string(nil), newTargets...),
		Refs:          refs,
		Status:        model.DeliveryOpen,
		ForwardedFrom: d.ID,
	}
	if err := e.store.CreateDelivery(ctx, fwd, itemsFor(fwd)); err != nil {
		return model.Delivery{}, report, err
	}
	report.DeliveryID = fwd.ID

	e.logger.Info("delivery forwarded",
		"delivery_id", fwd.ID,
		"forwarded_from", d.ID,
		"source", currentWorkspace,
		"targets", len(fwd.TargetIDs),
		"failed", len(report.Failed),
	)
	return fwd, report, nil
}
