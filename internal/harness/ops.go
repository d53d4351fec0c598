package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/promote/internal/model"
	"github.com/roach88/promote/internal/reconcile"
	"github.com/roach88/promote/internal/transfer"
)

func (r *runner) exec(step FlowStep) (model.Object, error) {
	a := args(step.Args)
	switch step.Op {
	case OpCommit:
		return r.commit(a)
	case OpCreateDelivery:
		return r.createDelivery(a)
	case OpStatus:
		return r.status(a)
	case OpDiscover:
		return r.discover(a)
	case OpDiscoverFields:
		return r.discoverFields(a)
	case OpClassify:
		return r.classify(a)
	case OpResolve:
		return r.resolve(a)
	case OpResolveDelivery:
		return r.resolveDelivery(a)
	case OpPull:
		return r.pull(a)
	case OpPush:
		return r.push(a)
	case OpForward:
		return r.forward(a)
	}
	return nil, &argError{msg: fmt.Sprintf("unknown op %q", step.Op)}
}

func (r *runner) commit(a args) (model.Object, error) {
	entity, err := a.entity("entity")
	if err != nil {
		return nil, err
	}
	ws, err := a.str("workspace")
	if err != nil {
		return nil, err
	}
	fields, err := toObject(a.obj("fields"))
	if err != nil {
		return nil, &argError{msg: err.Error()}
	}
	res, err := r.engine.Commit(r.ctx, transfer.CommitRequest{
		Entity:      entity,
		Bundle:      a.optStr("bundle"),
		WorkspaceID: ws,
		Fields:      fields,
		Deleted:     a.optBool("deleted"),
	})
	if err != nil {
		return nil, err
	}
	out := model.Object{
		"revision": model.Int(res.Revision.ID),
		"parent":   model.Int(res.Revision.ParentID),
	}
	if res.Delivery != nil {
		out["delivery"] = model.String(res.Delivery.ID)
		out["delivery_status"] = model.String(res.Delivery.Status)
	}
	return out, nil
}

func (r *runner) createDelivery(a args) (model.Object, error) {
	source, err := a.str("source")
	if err != nil {
		return nil, err
	}
	targets, err := a.strs("targets")
	if err != nil {
		return nil, err
	}
	var refs []model.RevisionRef
	for _, s := range a.optStrs("refs") {
		ref, err := r.revisionRef(s)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	d, err := r.engine.CreateDelivery(r.ctx, transfer.DeliveryRequest{
		Label:     a.optStr("label"),
		SourceID:  source,
		TargetIDs: targets,
		Refs:      refs,
	})
	if err != nil {
		return nil, err
	}
	return deliverySummary(d), nil
}

func (r *runner) status(a args) (model.Object, error) {
	id, err := a.str("delivery")
	if err != nil {
		return nil, err
	}
	rep, err := r.engine.Status(r.ctx, id)
	if err != nil {
		return nil, err
	}
	items := model.Object{}
	for _, it := range rep.Items {
		key := it.Target + ":" + it.Ref.Key()
		if it.Error != "" {
			items[key] = model.String("error")
			continue
		}
		items[key] = model.String(it.Status)
	}
	return model.Object{
		"status": model.String(rep.Delivery.Status),
		"items":  items,
	}, nil
}

func (r *runner) discover(a args) (model.Object, error) {
	id, err := a.str("delivery")
	if err != nil {
		return nil, err
	}
	target, err := a.str("target")
	if err != nil {
		return nil, err
	}
	entity, err := a.entity("entity")
	if err != nil {
		return nil, err
	}
	dis, err := r.engine.Discover(r.ctx, id, target, entity)
	if err != nil {
		return nil, err
	}
	return model.Object{
		"status":    model.String(dis.State.Status),
		"conflicts": conflictsValue(dis.Conflicts),
	}, nil
}

func (r *runner) discoverFields(a args) (model.Object, error) {
	local, err := r.loadAlias(a, "local")
	if err != nil {
		return nil, err
	}
	remote, err := r.loadAlias(a, "remote")
	if err != nil {
		return nil, err
	}
	var base *model.Revision
	if a.optStr("base") != "" {
		if base, err = r.loadAlias(a, "base"); err != nil {
			return nil, err
		}
	}
	set := reconcile.Discoverer{Policy: r.policy}.Discover(local, remote, base)
	return model.Object{"conflicts": conflictsValue(set)}, nil
}

func (r *runner) classify(a args) (model.Object, error) {
	var ids [3]model.RevisionID
	for i, key := range []string{"source", "target", "lca"} {
		n, err := a.int(key)
		if err != nil {
			return nil, err
		}
		ids[i] = model.RevisionID(n)
	}
	status := reconcile.Classify(ids[0], ids[1], ids[2])
	return model.Object{"status": model.String(status)}, nil
}

func (r *runner) resolve(a args) (model.Object, error) {
	key, err := itemKey(a)
	if err != nil {
		return nil, err
	}
	decision, err := takeDecision(a.optStr("take"))
	if err != nil {
		return nil, err
	}
	sel, err := selections(a)
	if err != nil {
		return nil, err
	}
	res, err := r.engine.ResolveItem(r.ctx, key, decision, sel)
	if err != nil {
		return nil, err
	}
	out := model.Object{
		"resolution": model.String(res.Item.Resolution),
		"result":     model.Int(res.Item.ResultRevisionID),
		"written":    model.Bool(res.Written),
	}
	if res.Skipped {
		out["skipped"] = model.Bool(true)
	}
	if len(res.Remaining) > 0 {
		out["remaining"] = stringList(res.Remaining)
	}
	return out, nil
}

func (r *runner) resolveDelivery(a args) (model.Object, error) {
	id, err := a.str("delivery")
	if err != nil {
		return nil, err
	}
	decision, err := takeDecision(a.optStr("take"))
	if err != nil {
		return nil, err
	}
	var decisions transfer.Decisions
	if decision != model.DecideAuto {
		d, err := r.store.LoadDelivery(r.ctx, id)
		if err != nil {
			return nil, err
		}
		decisions = transfer.Decisions{}
		for _, ref := range d.Refs {
			decisions[ref.Entity.Key()] = decision
		}
	}
	rep, err := r.engine.ResolveDelivery(r.ctx, id, decisions, nil)
	if err != nil {
		return nil, err
	}
	return r.reportSummary(rep)
}

func (r *runner) pull(a args) (model.Object, error) {
	id, err := a.str("delivery")
	if err != nil {
		return nil, err
	}
	ws, err := a.str("workspace")
	if err != nil {
		return nil, err
	}
	rep, err := r.engine.Pull(r.ctx, id, ws)
	if err != nil {
		return nil, err
	}
	return r.reportSummary(rep)
}

func (r *runner) push(a args) (model.Object, error) {
	id, err := a.str("delivery")
	if err != nil {
		return nil, err
	}
	opts := transfer.PushOptions{BatchSize: int(a.optInt("batch_size"))}
	if raw := a.obj("fields"); raw != nil {
		opts.Fields = map[string][]string{}
		for typ := range raw {
			list, err := args(raw).optStrsErr(typ)
			if err != nil {
				return nil, err
			}
			opts.Fields[typ] = list
		}
	}
	rep, err := r.engine.PushBatch(r.ctx, id, opts)
	if err != nil {
		return nil, err
	}
	return r.reportSummary(rep)
}

func (r *runner) forward(a args) (model.Object, error) {
	id, err := a.str("delivery")
	if err != nil {
		return nil, err
	}
	from, err := a.str("from")
	if err != nil {
		return nil, err
	}
	targets, err := a.strs("targets")
	if err != nil {
		return nil, err
	}
	d, _, err := r.engine.Forward(r.ctx, id, from, targets)
	if err != nil {
		return nil, err
	}
	out := deliverySummary(d)
	out["forwarded_from"] = model.String(d.ForwardedFrom)
	return out, nil
}

// reportSummary flattens a report into "target:type/id=outcome[@rev]"
// entries and the delivery's status after the operation.
func (r *runner) reportSummary(rep *transfer.Report) (model.Object, error) {
	entries := func(results []transfer.EntityResult) model.List {
		out := model.List{}
		for _, res := range results {
			s := fmt.Sprintf("%s:%s=%s", res.Target, res.Entity.Key(), res.Outcome)
			if !res.Revision.IsNone() {
				s += "@" + res.Revision.String()
			}
			out = append(out, model.String(s))
		}
		return out
	}
	out := model.Object{
		"succeeded": entries(rep.Succeeded),
		"blocked":   entries(rep.Blocked),
		"failed":    model.Int(len(rep.Failed)),
	}
	if rep.Cursor != nil {
		out["cursor"] = model.String(fmt.Sprintf("%d/%d", rep.Cursor.Position, rep.Cursor.Total))
	}
	d, err := r.store.LoadDelivery(r.ctx, rep.DeliveryID)
	if err != nil {
		return nil, err
	}
	out["delivery_status"] = model.String(d.Status)
	return out, nil
}

func deliverySummary(d model.Delivery) model.Object {
	refs := make(model.List, len(d.Refs))
	for i, ref := range d.Refs {
		refs[i] = model.String(ref.String())
	}
	return model.Object{
		"delivery": model.String(d.ID),
		"refs":     refs,
		"status":   model.String(d.Status),
	}
}

func conflictsValue(cs model.ConflictSet) model.Object {
	out := model.Object{}
	for field, kind := range cs {
		out[field] = model.String(kind)
	}
	return out
}

func stringList(ss []string) model.List {
	out := make(model.List, len(ss))
	for i, s := range ss {
		out[i] = model.String(s)
	}
	return out
}

// revisionRef resolves "type/id" to an unpinned ref and anything else to
// the revision stored under that alias.
func (r *runner) revisionRef(s string) (model.RevisionRef, error) {
	if strings.Contains(s, "/") {
		entity, err := model.ParseEntityRef(s)
		if err != nil {
			return model.RevisionRef{}, &argError{msg: err.Error()}
		}
		return model.RevisionRef{Entity: entity}, nil
	}
	rev, err := r.lookup(s)
	if err != nil {
		return model.RevisionRef{}, err
	}
	return model.RevisionRef{Entity: rev.Entity, RevisionID: rev.ID}, nil
}

func (r *runner) loadAlias(a args, key string) (*model.Revision, error) {
	alias, err := a.str(key)
	if err != nil {
		return nil, err
	}
	rev, err := r.lookup(alias)
	if err != nil {
		return nil, err
	}
	return &rev, nil
}

func (r *runner) lookup(alias string) (model.Revision, error) {
	id, ok := r.aliases[alias]
	if !ok {
		return model.Revision{}, &argError{msg: fmt.Sprintf("unknown revision alias %q", alias)}
	}
	return r.store.LoadRevision(r.ctx, id)
}

func itemKey(a args) (model.ItemKey, error) {
	id, err := a.str("delivery")
	if err != nil {
		return model.ItemKey{}, err
	}
	target, err := a.str("target")
	if err != nil {
		return model.ItemKey{}, err
	}
	entity, err := a.entity("entity")
	if err != nil {
		return model.ItemKey{}, err
	}
	return model.ItemKey{DeliveryID: id, TargetID: target, Entity: entity}, nil
}

func takeDecision(s string) (model.ItemDecision, error) {
	switch s {
	case "":
		return model.DecideAuto, nil
	case "source":
		return model.DecideSource, nil
	case "target":
		return model.DecideTarget, nil
	}
	return "", &argError{msg: fmt.Sprintf("take must be source or target, got %q", s)}
}

// selections merges "select" (field: source|target) and "custom"
// (field: value) into one selection map.
func selections(a args) (model.Selections, error) {
	sel := model.Selections{}
	for field, raw := range a.obj("select") {
		switch raw {
		case "source":
			sel[field] = model.Selection{Kind: model.SelectSource}
		case "target":
			sel[field] = model.Selection{Kind: model.SelectTarget}
		default:
			return nil, &argError{msg: fmt.Sprintf("select.%s must be source or target", field)}
		}
	}
	for field, raw := range a.obj("custom") {
		if _, dup := sel[field]; dup {
			return nil, &argError{msg: fmt.Sprintf("field %q is both selected and custom", field)}
		}
		v, err := model.FromAny(raw)
		if err != nil {
			return nil, &argError{msg: fmt.Sprintf("custom.%s: %v", field, err)}
		}
		sel[field] = model.Selection{Kind: model.SelectCustom, Value: v}
	}
	if len(sel) == 0 {
		return nil, nil
	}
	return sel, nil
}
