package reconcile

import (
	"github.com/roach88/promote/internal/model"
	"github.com/roach88/promote/internal/revgraph"
	"github.com/roach88/promote/internal/workspace"
)

// Classify labels a (source, target, lca) triple. Revisions are compared by
// identity; NoRevision is a valid target meaning the target has nothing yet.
//
// The "target is none" rows are evaluated before the Conflict row, so a
// missing target with an advanced source is always New.
func Classify(s, t, l model.RevisionID) model.Status {
	switch {
	case s == t:
		return model.StatusIdentical
	case t.IsNone() && s != l:
		return model.StatusNew
	case t.IsNone():
		return model.StatusOutdated
	case s != l && t != l:
		return model.StatusConflict
	case s == l:
		return model.StatusOutdated
	default:
		return model.StatusModified
	}
}

// EntityState is the classification of one entity for one target workspace.
type EntityState struct {
	Ref    model.EntityRef  `json:"entity"`
	Source model.RevisionID `json:"source_revision_id"`
	Target model.RevisionID `json:"target_revision_id"`
	LCA    model.RevisionID `json:"lca_revision_id"`
	Status model.Status     `json:"status"`

	// ViaMerge is set when the base came from an earlier merge into the
	// target rather than from primary ancestry.
	ViaMerge bool `json:"via_merge,omitempty"`
}

// ClassifyEntity resolves the target's active revision and the comparison
// base for source, then classifies.
func ClassifyEntity(g *revgraph.Graph, h *workspace.Hierarchy, source model.RevisionID, targetWS string) (EntityState, error) {
	state := EntityState{Ref: g.Entity(), Source: source}
	if _, ok := g.Revision(source); !ok {
		return state, model.NewMissingRevisionError(g.Entity(), source)
	}

	target, ok, err := h.ActiveRevision(g, targetWS)
	if err != nil {
		return state, err
	}
	if !ok {
		state.Status = Classify(source, model.NoRevision, model.NoRevision)
		return state, nil
	}
	state.Target = target.ID

	base, _, err := g.MergeBase(source, target.ID)
	if err != nil {
		return state, err
	}
	state.LCA = base.LCA
	state.ViaMerge = base.ViaMerge
	state.Status = Classify(source, base.Target, base.LCA)
	return state, nil
}
