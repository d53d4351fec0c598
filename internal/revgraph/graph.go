package revgraph

import (
	"fmt"
	"sort"

	"github.com/roach88/promote/internal/model"
)

// Graph indexes the revision history of a single entity.
type Graph struct {
	entity   model.EntityRef
	revs     map[model.RevisionID]model.Revision
	order    []model.RevisionID // ascending
	children map[model.RevisionID][]model.RevisionID
	merged   map[model.RevisionID][]model.RevisionID // merge parent -> merge children
	maxDepth int
}

// Option configures a Graph.
type Option func(*Graph)

// WithMaxDepth caps the length of any ancestor chain. Deeper chains are
// reported as data-integrity errors. The default is the number of indexed
// revisions, which no acyclic chain can exceed.
func WithMaxDepth(n int) Option {
	return func(g *Graph) {
		g.maxDepth = n
	}
}

// New indexes revisions, which must all belong to the same entity.
func New(revisions []model.Revision, opts ...Option) (*Graph, error) {
	g := &Graph{
		revs:     make(map[model.RevisionID]model.Revision, len(revisions)),
		order:    make([]model.RevisionID, 0, len(revisions)),
		children: make(map[model.RevisionID][]model.RevisionID),
		merged:   make(map[model.RevisionID][]model.RevisionID),
	}
	for i, rev := range revisions {
		if i == 0 {
			g.entity = rev.Entity
		}
		if rev.Entity != g.entity {
			err := model.NewDataIntegrityError(model.ErrCodeForeignRevision, g.entity,
				fmt.Sprintf("revision belongs to %s", rev.Entity.Key()))
			err.Revision = rev.ID
			return nil, err
		}
		if rev.ID.IsNone() {
			return nil, model.NewDataIntegrityError(model.ErrCodeMissingRevision, g.entity, "revision has no id")
		}
		if _, dup := g.revs[rev.ID]; dup {
			err := model.NewDataIntegrityError(model.ErrCodeDuplicateRevision, g.entity, "revision indexed twice")
			err.Revision = rev.ID
			return nil, err
		}
		g.revs[rev.ID] = rev
		g.order = append(g.order, rev.ID)
	}
	sort.Slice(g.order, func(i, j int) bool { return g.order[i] < g.order[j] })

	for _, id := range g.order {
		rev := g.revs[id]
		if !rev.ParentID.IsNone() {
			g.children[rev.ParentID] = append(g.children[rev.ParentID], id)
		}
		if !rev.MergeParentID.IsNone() {
			g.merged[rev.MergeParentID] = append(g.merged[rev.MergeParentID], id)
		}
	}

	g.maxDepth = len(g.order)
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Entity returns the indexed entity. It is the zero ref for an empty graph.
func (g *Graph) Entity() model.EntityRef {
	return g.entity
}

// Len returns the number of indexed revisions.
func (g *Graph) Len() int {
	return len(g.order)
}

// Revision returns an indexed revision.
func (g *Graph) Revision(id model.RevisionID) (model.Revision, bool) {
	rev, ok := g.revs[id]
	return rev, ok
}

// Revisions returns the history in ascending ID order.
func (g *Graph) Revisions() []model.Revision {
	out := make([]model.Revision, len(g.order))
	for i, id := range g.order {
		out[i] = g.revs[id]
	}
	return out
}

// LatestIn returns the newest revision created in workspaceID.
func (g *Graph) LatestIn(workspaceID string) (model.Revision, bool) {
	for i := len(g.order) - 1; i >= 0; i-- {
		rev := g.revs[g.order[i]]
		if rev.WorkspaceID == workspaceID {
			return rev, true
		}
	}
	return model.Revision{}, false
}

// LatestDefault returns the newest revision flagged as the entity's default.
func (g *Graph) LatestDefault() (model.Revision, bool) {
	for i := len(g.order) - 1; i >= 0; i-- {
		rev := g.revs[g.order[i]]
		if rev.Default {
			return rev, true
		}
	}
	return model.Revision{}, false
}

// Ancestors returns the primary ancestor chain of id, starting with id itself
// and ending at the oldest indexed ancestor. A parent pointer leading outside
// the index ends the chain.
func (g *Graph) Ancestors(id model.RevisionID) ([]model.RevisionID, error) {
	if _, ok := g.revs[id]; !ok {
		return nil, model.NewMissingRevisionError(g.entity, id)
	}

	chain := []model.RevisionID{id}
	seen := map[model.RevisionID]bool{id: true}
	for cur := id; ; {
		parent := g.revs[cur].ParentID
		if parent.IsNone() {
			return chain, nil
		}
		if _, ok := g.revs[parent]; !ok {
			return chain, nil
		}
		if seen[parent] {
			return nil, model.NewCycleError(g.entity, parent, append(chain, parent))
		}
		if len(chain) >= g.maxDepth {
			err := model.NewDataIntegrityError(model.ErrCodeDepthExceeded, g.entity,
				fmt.Sprintf("ancestor chain exceeds %d revisions", g.maxDepth))
			err.Revision = id
			return nil, err
		}
		seen[parent] = true
		chain = append(chain, parent)
		cur = parent
	}
}

// LowestCommonAncestor returns the deepest revision on both primary chains.
// Ties resolve toward a's chain. ok is false when the chains share nothing.
func (g *Graph) LowestCommonAncestor(a, b model.RevisionID) (model.RevisionID, bool, error) {
	chainA, err := g.Ancestors(a)
	if err != nil {
		return model.NoRevision, false, err
	}
	chainB, err := g.Ancestors(b)
	if err != nil {
		return model.NoRevision, false, err
	}

	inB := make(map[model.RevisionID]bool, len(chainB))
	for _, id := range chainB {
		inB[id] = true
	}
	for _, id := range chainA {
		if inB[id] {
			return id, true, nil
		}
	}
	return model.NoRevision, false, nil
}

// IsAncestor reports whether anc is on id's primary chain. A revision is its
// own ancestor.
func (g *Graph) IsAncestor(anc, id model.RevisionID) (bool, error) {
	chain, err := g.Ancestors(id)
	if err != nil {
		return false, err
	}
	for _, c := range chain {
		if c == anc {
			return true, nil
		}
	}
	return false, nil
}

// Integrated reports whether target's lineage has already merged source.
func (g *Graph) Integrated(source, target model.RevisionID) (bool, error) {
	if source.IsNone() || target.IsNone() {
		return false, nil
	}
	chain, err := g.Ancestors(target)
	if err != nil {
		return false, err
	}
	for _, id := range chain {
		if g.revs[id].MergeParentID == source {
			return true, nil
		}
	}
	return false, nil
}

// Base is the reference point for comparing a source revision with a target.
type Base struct {
	// LCA is the common ancestor the comparison is made against.
	LCA model.RevisionID

	// Target stands in for the target revision. It differs from the real
	// target only when the target is a pure merge of LCA, in which case it
	// equals LCA.
	Target model.RevisionID

	// ViaMerge is set when LCA came from a merge-parent edge on the target's
	// chain rather than from primary ancestry.
	ViaMerge bool
}

// MergeBase finds the comparison base for delivering source onto target.
//
// It starts from the primary LCA and then looks for merge-parent edges on
// target's chain pointing at source or one of its ancestors. The merged
// revision nearest to source wins when it is newer than the primary LCA, so a
// lineage that already absorbed part of source is only compared against what
// came after. When the target revision itself is the merge, it is treated as
// equal to what it merged.
func (g *Graph) MergeBase(source, target model.RevisionID) (Base, bool, error) {
	if source.IsNone() || target.IsNone() {
		return Base{Target: target}, false, nil
	}
	sourceChain, err := g.Ancestors(source)
	if err != nil {
		return Base{}, false, err
	}
	targetChain, err := g.Ancestors(target)
	if err != nil {
		return Base{}, false, err
	}

	pos := make(map[model.RevisionID]int, len(sourceChain))
	for i, id := range sourceChain {
		pos[id] = i
	}

	best := -1
	base := Base{Target: target}
	for _, id := range targetChain {
		if i, ok := pos[id]; ok {
			if best < 0 || i < best {
				best = i
				base = Base{LCA: id, Target: target}
			}
			// Anything older on the target chain is also older on the source chain.
			break
		}
	}
	for _, id := range targetChain {
		m := g.revs[id].MergeParentID
		i, ok := pos[m]
		if m.IsNone() || !ok {
			continue
		}
		if best < 0 || i < best {
			best = i
			base = Base{LCA: m, Target: target, ViaMerge: true}
			if id == target {
				base.Target = m
			}
		}
	}
	return base, best >= 0, nil
}

// LatestMergeDescendant follows merge edges forward from id and returns the
// newest reached revision that accept admits. Revisions that supersede a
// merge descendant are reached too. When nothing qualifies, id is returned.
func (g *Graph) LatestMergeDescendant(id model.RevisionID, accept func(model.Revision) bool) (model.RevisionID, error) {
	if _, ok := g.revs[id]; !ok {
		return model.NoRevision, model.NewMissingRevisionError(g.entity, id)
	}

	best := id
	seen := map[model.RevisionID]bool{id: true}
	queue := append([]model.RevisionID(nil), g.merged[id]...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		if accept == nil || accept(g.revs[cur]) {
			if cur > best {
				best = cur
			}
		}
		queue = append(queue, g.merged[cur]...)
		queue = append(queue, g.children[cur]...)
	}
	return best, nil
}
