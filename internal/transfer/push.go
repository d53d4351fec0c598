package transfer

import (
	"context"
	"errors"

	"github.com/roach88/promote/internal/model"
	"github.com/roach88/promote/internal/reconcile"
	"github.com/roach88/promote/internal/revgraph"
	"github.com/roach88/promote/internal/store"
	"github.com/roach88/promote/internal/workspace"
)

// PushOptions configures one PushBatch call.
type PushOptions struct {
	// Fields limits what is copied from the source, keyed by entity type.
	// A nil map copies every field of every type. A type missing from a
	// non-nil map is not pushed; its items resolve as took-target. A listed
	// type with no fields copies every field; listed fields are copied from
	// the source over the target's current values.
	Fields map[string][]string

	// BatchSize caps the entities processed by this call. Zero uses the
	// engine default.
	BatchSize int
}

func (o PushOptions) fieldsFor(entityType string) ([]string, bool) {
	if o.Fields == nil {
		return nil, true
	}
	fields, ok := o.Fields[entityType]
	return fields, ok
}

// pushOp is one planned (entity, target) write.
type pushOp struct {
	key    model.ItemKey
	rev    *model.Revision
	kind   model.ResolutionKind
	result model.RevisionID
	res    EntityResult
}

// PushBatch processes the next batch of a delivery's entities, starting at
// the saved cursor. For every target it writes a revision taking the source
// side, with the target's head as parent and the source as merge parent.
//
// Items already resolved are skipped, so a retried batch writes nothing
// twice. Unresolved items that classify as Conflict or Outdated are reported
// as blocked and left for ResolveItem. Each entity's writes and the advanced
// cursor commit together; a failing entity is reported and the batch moves
// on.
//
// Cancellation is checked between entities. Entities already processed stay
// persisted and the next call resumes at the cursor.
func (e *Engine) PushBatch(ctx context.Context, deliveryID string, opts PushOptions) (*Report, error) {
	d, err := e.loadOpen(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	h, err := e.hierarchy(ctx)
	if err != nil {
		return nil, err
	}
	byKey, err := e.itemIndex(ctx, d.ID)
	if err != nil {
		return nil, err
	}

	cursor, err := e.store.LoadCursor(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	cursor.Total = len(d.Refs)
	size := opts.BatchSize
	if size <= 0 {
		size = e.batchSize
	}
	end := min(cursor.Position+size, cursor.Total)

	report := newReport(d.ID)
	report.Cursor = &cursor
	for i := cursor.Position; i < end; i++ {
		if err := ctx.Err(); err != nil {
			e.logger.Info("push batch cancelled",
				"delivery_id", d.ID,
				"position", cursor.Position,
				"total", cursor.Total,
			)
			return report, err
		}

		ref := d.Refs[i]
		next := store.Cursor{Position: i + 1, Total: cursor.Total}
		var ops []pushOp
		// A target resolved by another caller since planning rolls the entity
		// back; replanning sees it resolved and skips it.
		for attempt := 0; ; attempt++ {
			ops = e.planPush(ctx, h, d, ref, byKey, opts)
			err = e.store.WithTx(ctx, func(tx *store.Tx) error {
				for j := range ops {
					if err := applyPushOp(ctx, tx, &ops[j]); err != nil {
						return err
					}
				}
				return tx.SaveCursor(ctx, d.ID, next)
			})
			if !errors.Is(err, errAlreadyResolved) || attempt == len(d.TargetIDs) {
				break
			}
			if byKey, err = e.itemIndex(ctx, d.ID); err != nil {
				return report, err
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			// The entity's writes rolled back; record the failure and move on.
			for _, op := range ops {
				if op.mutates() {
					report.fail(op.key.Entity, op.key.TargetID, err)
				} else {
					report.add(op.res)
				}
			}
			if err := e.store.SaveCursor(ctx, d.ID, next); err != nil {
				return report, err
			}
		} else {
			for _, op := range ops {
				report.add(op.res)
			}
		}
		cursor = next
		report.Cursor = &cursor
	}

	if _, err := e.rollup(ctx, d); err != nil {
		return report, err
	}
	e.logger.Info("push batch finished",
		"delivery_id", d.ID,
		"position", cursor.Position,
		"total", cursor.Total,
		"written", countOutcome(report.Succeeded, OutcomeWritten),
		"blocked", len(report.Blocked),
		"failed", len(report.Failed),
	)
	return report, nil
}

// itemIndex loads a delivery's items keyed by (target, entity).
func (e *Engine) itemIndex(ctx context.Context, deliveryID string) (map[model.ItemKey]model.DeliveryItem, error) {
	items, err := e.store.DeliveryItems(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	byKey := make(map[model.ItemKey]model.DeliveryItem, len(items))
	for _, it := range items {
		byKey[it.Key()] = it
	}
	return byKey, nil
}

// planPush decides what to do for every target of one entity. It only reads;
// failures become failed results.
func (e *Engine) planPush(ctx context.Context, h *workspace.Hierarchy, d model.Delivery, ref model.RevisionRef, items map[model.ItemKey]model.DeliveryItem, opts PushOptions) []pushOp {
	ops := make([]pushOp, 0, len(d.TargetIDs))
	g, gerr := e.graph(ctx, ref.Entity)

	for _, target := range d.TargetIDs {
		key := model.ItemKey{DeliveryID: d.ID, TargetID: target, Entity: ref.Entity}
		op := pushOp{key: key, res: EntityResult{Entity: ref.Entity, Target: target}}

		if it, ok := items[key]; ok && it.Resolution.IsResolved() {
			op.res.Outcome = OutcomeSkipped
			op.res.Kind = it.Resolution
			op.res.Revision = it.ResultRevisionID
			ops = append(ops, op)
			continue
		}
		if gerr != nil {
			op.res.Outcome = OutcomeFailed
			op.res.Error = gerr.Error()
			op.res.err = gerr
			ops = append(ops, op)
			continue
		}
		if err := e.planTarget(g, h, d, ref, target, opts, &op); err != nil {
			op.res.Outcome = OutcomeFailed
			op.res.Error = err.Error()
			op.res.err = err
		}
		ops = append(ops, op)
	}
	return ops
}

func (e *Engine) planTarget(g *revgraph.Graph, h *workspace.Hierarchy, d model.Delivery, ref model.RevisionRef, target string, opts PushOptions, op *pushOp) error {
	state, err := reconcile.ClassifyEntity(g, h, ref.RevisionID, target)
	if err != nil {
		return err
	}
	op.res.Status = state.Status

	fields, listed := opts.fieldsFor(ref.Entity.Type)
	if !listed {
		op.kind = model.TookTarget
		op.result = state.Target
		op.res.Outcome = OutcomeResolved
		op.res.Kind = model.TookTarget
		op.res.Revision = state.Target
		return nil
	}

	switch state.Status {
	case model.StatusIdentical:
		op.kind = model.Identical
		op.result = state.Target
		op.res.Outcome = OutcomeIdentical
		op.res.Kind = model.Identical
		op.res.Revision = state.Target
		return nil
	case model.StatusConflict, model.StatusOutdated:
		op.res.Outcome = OutcomeBlocked
		op.res.Error = string(model.ErrCodeConflictBlocked) + ": " + string(state.Status) + " items must be resolved before pushing"
		return nil
	}

	src, _ := g.Revision(ref.RevisionID)
	var values model.Object
	if len(fields) > 0 {
		values = model.Object{}
		if cur, ok := g.Revision(state.Target); ok && !state.Target.IsNone() {
			values = cur.Fields.Clone()
		}
		for _, f := range fields {
			if v, ok := src.Fields.Get(f); ok {
				values[f] = model.CloneValue(v)
			} else {
				delete(values, f)
			}
		}
	}
	rev, err := descend(g, h, src, target, values)
	if err != nil {
		return err
	}
	rev.Message = "push delivery " + d.ID
	op.rev = &rev
	op.kind = model.TookSource
	op.res.Outcome = OutcomeWritten
	op.res.Kind = model.TookSource
	return nil
}

func (op *pushOp) mutates() bool {
	switch op.res.Outcome {
	case OutcomeWritten, OutcomeIdentical, OutcomeResolved:
		return true
	}
	return false
}

func applyPushOp(ctx context.Context, tx *store.Tx, op *pushOp) error {
	if !op.mutates() {
		return nil
	}
	if op.rev != nil {
		saved, err := tx.CreateRevision(ctx, *op.rev)
		if err != nil {
			return err
		}
		op.result = saved.ID
		op.res.Revision = saved.ID
	}
	return claimItem(ctx, tx, op.key, op.kind, op.result)
}
