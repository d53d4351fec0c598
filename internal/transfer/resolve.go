package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/promote/internal/model"
	"github.com/roach88/promote/internal/reconcile"
	"github.com/roach88/promote/internal/store"
)

// ItemResult is the outcome of resolving one delivery item.
type ItemResult struct {
	Item  model.DeliveryItem    `json:"item"`
	State reconcile.EntityState `json:"state"`

	// Remaining lists fields that still need a selection. The item stays
	// unresolved while it is non-empty.
	Remaining   []string          `json:"remaining,omitempty"`
	Resolutions map[string]string `json:"resolutions,omitempty"`

	// Skipped is set when the item was already resolved.
	Skipped bool `json:"skipped,omitempty"`

	// Written is set when a result revision was created.
	Written bool `json:"written,omitempty"`
}

// NeedsInput reports whether the item is waiting for field selections.
func (r ItemResult) NeedsInput() bool {
	return len(r.Remaining) > 0
}

// ResolveItem reconciles one delivery item.
//
// An item that is already resolved is returned unchanged. DecideTarget keeps
// the target as is; DecideSource writes the source revision into the target.
// DecideAuto classifies the item: Identical and Outdated resolve without a
// write, Modified, New and Conflict go through conflict discovery and the
// resolution pipeline with sel. When fields remain unresolved nothing is
// written and they are returned in Remaining; calling again with more
// selections continues from scratch, so the call can be repeated safely.
func (e *Engine) ResolveItem(ctx context.Context, key model.ItemKey, decision model.ItemDecision, sel model.Selections) (ItemResult, error) {
	d, err := e.loadOpen(ctx, key.DeliveryID)
	if err != nil {
		return ItemResult{}, err
	}
	res, err := e.resolveItem(ctx, key, decision, sel)
	if err != nil {
		return res, err
	}
	if !res.Skipped && res.Item.Resolution.IsResolved() {
		if _, err := e.rollup(ctx, d); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (e *Engine) resolveItem(ctx context.Context, key model.ItemKey, decision model.ItemDecision, sel model.Selections) (ItemResult, error) {
	item, err := e.store.DeliveryItem(ctx, key)
	if err != nil {
		return ItemResult{}, err
	}
	res := ItemResult{Item: item}
	if item.Resolution.IsResolved() {
		res.Skipped = true
		return res, nil
	}

	h, err := e.hierarchy(ctx)
	if err != nil {
		return res, err
	}
	g, err := e.graph(ctx, key.Entity)
	if err != nil {
		return res, err
	}
	dis, err := e.discover(g, h, item.SourceRevisionID, key.TargetID)
	if err != nil {
		return res, err
	}
	res.State = dis.State

	var (
		kind   model.ResolutionKind
		result model.Revision
		write  bool
	)
	switch decision {
	case model.DecideTarget:
		kind = model.TookTarget
	case model.DecideSource:
		kind = model.TookSource
		result = dis.Remote.Derive(key.TargetID)
		write = true
	case model.DecideAuto, "":
		switch dis.State.Status {
		case model.StatusIdentical:
			kind = model.Identical
		case model.StatusOutdated:
			kind = model.TookTarget
		default:
			out, err := e.pipeline.Run(ctx, reconcile.Merge{
				Local:      dis.Local,
				Remote:     dis.Remote,
				Base:       dis.Base,
				Conflicts:  dis.Conflicts,
				Selections: sel,
			})
			if err != nil {
				return res, fmt.Errorf("resolve item %s: %w", key, err)
			}
			res.Resolutions = out.Resolutions
			remaining := pending(out.Remaining, dis.State.Status)
			if len(remaining) > 0 {
				res.Remaining = remaining
				e.logger.Debug("item needs input",
					"delivery_id", key.DeliveryID,
					"entity", key.Entity.Key(),
					"workspace", key.TargetID,
					"fields", len(remaining),
				)
				return res, nil
			}
			result = out.Result
			write = true
			kind = model.Merged
			if model.Equal(result.Fields, dis.Remote.Fields) {
				kind = model.TookSource
			}
		}
	default:
		return res, model.NewPolicyViolation(model.ErrCodeInvalidSelection, fmt.Sprintf("unknown decision %q", decision))
	}

	resultID := dis.State.Target
	err = e.store.WithTx(ctx, func(tx *store.Tx) error {
		if write {
			rev, err := descend(g, h, *dis.Remote, key.TargetID, result.Fields)
			if err != nil {
				return err
			}
			rev.Deleted = result.Deleted
			rev.Message = "resolve delivery " + key.DeliveryID
			saved, err := tx.CreateRevision(ctx, rev)
			if err != nil {
				return err
			}
			resultID = saved.ID
		}
		return claimItem(ctx, tx, key, kind, resultID)
	})
	if errors.Is(err, errAlreadyResolved) {
		return e.skipResolved(ctx, res)
	}
	if err != nil {
		return res, fmt.Errorf("resolve item %s: %w", key, err)
	}

	res.Item.Resolution = kind
	res.Item.ResultRevisionID = resultID
	res.Written = write
	e.logger.Info("item resolved",
		"delivery_id", key.DeliveryID,
		"entity", key.Entity.Key(),
		"workspace", key.TargetID,
		"resolution", kind,
		"result", resultID,
	)
	return res, nil
}

// skipResolved reloads an item another caller resolved first.
func (e *Engine) skipResolved(ctx context.Context, res ItemResult) (ItemResult, error) {
	item, err := e.store.DeliveryItem(ctx, res.Item.Key())
	if err != nil {
		return res, err
	}
	e.logger.Debug("item resolved concurrently",
		"delivery_id", item.DeliveryID,
		"entity", item.Entity.Key(),
		"workspace", item.TargetID,
	)
	return ItemResult{Item: item, State: res.State, Skipped: true}, nil
}

// pending returns the fields that still need a selection. For a Modified
// entity only the source changed, so remote-only leftovers already hold the
// source value in the result and need nothing.
func pending(remaining model.ConflictSet, status model.Status) []string {
	var out []string
	for _, f := range remaining.Fields() {
		if status == model.StatusModified && remaining[f] == model.RemoteOnly {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Decisions maps an entity key ("type/id") to a whole-item decision.
// Entities without an entry are resolved with DecideAuto.
type Decisions map[string]model.ItemDecision

// ResolveDelivery resolves every unresolved item of a delivery. Items that
// need selections are reported as blocked with their remaining fields;
// items that fail are reported as failed without stopping the others.
func (e *Engine) ResolveDelivery(ctx context.Context, deliveryID string, decisions Decisions, sel map[string]model.Selections) (*Report, error) {
	d, err := e.loadOpen(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	items, err := e.store.DeliveryItems(ctx, d.ID)
	if err != nil {
		return nil, err
	}

	report := newReport(d.ID)
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		er := EntityResult{Entity: it.Entity, Target: it.TargetID}
		if it.Resolution.IsResolved() {
			er.Outcome = OutcomeSkipped
			er.Kind = it.Resolution
			er.Revision = it.ResultRevisionID
			report.add(er)
			continue
		}

		decision := decisions[it.Entity.Key()]
		res, err := e.resolveItem(ctx, it.Key(), decision, sel[it.Entity.Key()])
		if err != nil {
			report.fail(it.Entity, it.TargetID, err)
			continue
		}
		er.Status = res.State.Status
		switch {
		case res.Skipped:
			er.Outcome = OutcomeSkipped
		case res.NeedsInput():
			er.Outcome = OutcomeBlocked
			er.Conflicts = res.Remaining
		case res.Written:
			er.Outcome = OutcomeWritten
		case res.Item.Resolution == model.Identical:
			er.Outcome = OutcomeIdentical
		default:
			er.Outcome = OutcomeResolved
		}
		er.Kind = res.Item.Resolution
		er.Revision = res.Item.ResultRevisionID
		report.add(er)
	}

	status, err := e.rollup(ctx, d)
	if err != nil {
		return report, err
	}
	e.logger.Info("delivery resolved",
		"delivery_id", d.ID,
		"status", status,
		"blocked", len(report.Blocked),
		"failed", len(report.Failed),
	)
	return report, nil
}
