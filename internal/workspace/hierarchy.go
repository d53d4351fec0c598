// Package workspace resolves the workspace tree and the revision an entity
// presents in each workspace.
package workspace

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/promote/internal/model"
)

// Hierarchy is a validated workspace tree with exactly one root.
type Hierarchy struct {
	byID     map[string]model.Workspace
	children map[string][]string
	root     string
}

// NewHierarchy validates workspaces and builds the tree.
//
// Validation order: unique IDs, every parent exists, no cycles, exactly one
// root. The first failure is returned as a data-integrity error.
func NewHierarchy(workspaces []model.Workspace) (*Hierarchy, error) {
	h := &Hierarchy{
		byID:     make(map[string]model.Workspace, len(workspaces)),
		children: make(map[string][]string),
	}
	parents := make(map[string]string, len(workspaces))
	for _, ws := range workspaces {
		if ws.ID == "" {
			return nil, treeError("workspace id must not be empty")
		}
		if _, dup := h.byID[ws.ID]; dup {
			return nil, treeError(fmt.Sprintf("duplicate workspace %q", ws.ID))
		}
		h.byID[ws.ID] = ws
		parents[ws.ID] = ws.ParentID
	}

	for _, id := range sortedKeys(parents) {
		parent := parents[id]
		if parent == "" {
			continue
		}
		if _, ok := h.byID[parent]; !ok {
			err := &model.Error{
				Kind:      model.KindDataIntegrity,
				Code:      model.ErrCodeUnknownWorkspace,
				Message:   fmt.Sprintf("parent workspace %q does not exist", parent),
				Workspace: id,
			}
			return nil, err
		}
		h.children[parent] = append(h.children[parent], id)
	}

	if cycle := findCycle(parents); cycle != nil {
		return nil, &model.Error{
			Kind:      model.KindDataIntegrity,
			Code:      model.ErrCodeCycleDetected,
			Message:   "workspace parents form a cycle",
			Workspace: cycle[0],
			Details:   map[string]string{"path": strings.Join(cycle, " -> ")},
		}
	}

	var roots []string
	for _, id := range sortedKeys(parents) {
		if parents[id] == "" {
			roots = append(roots, id)
		}
	}
	switch len(roots) {
	case 0:
		return nil, treeError("workspace tree has no root")
	case 1:
		h.root = roots[0]
	default:
		return nil, treeError(fmt.Sprintf("workspace tree has %d roots: %s", len(roots), strings.Join(roots, ", ")))
	}
	return h, nil
}

func treeError(msg string) *model.Error {
	return &model.Error{
		Kind:    model.KindDataIntegrity,
		Code:    model.ErrCodeWorkspaceTree,
		Message: msg,
	}
}

// UnknownWorkspaceError reports a workspace the hierarchy does not contain.
func UnknownWorkspaceError(id string) *model.Error {
	return &model.Error{
		Kind:      model.KindPolicyViolation,
		Code:      model.ErrCodeUnknownWorkspace,
		Message:   "unknown workspace",
		Workspace: id,
	}
}

// Root returns the root workspace ID.
func (h *Hierarchy) Root() string {
	return h.root
}

// Get returns a workspace by ID.
func (h *Hierarchy) Get(id string) (model.Workspace, bool) {
	ws, ok := h.byID[id]
	return ws, ok
}

// Workspaces returns every workspace ordered by ID.
func (h *Hierarchy) Workspaces() []model.Workspace {
	out := make([]model.Workspace, 0, len(h.byID))
	for _, id := range sortedKeys(h.byID) {
		out = append(out, h.byID[id])
	}
	return out
}

// Parent returns the parent of id. ok is false for the root and for unknown
// workspaces.
func (h *Hierarchy) Parent(id string) (string, bool) {
	ws, ok := h.byID[id]
	if !ok || ws.ParentID == "" {
		return "", false
	}
	return ws.ParentID, true
}

// Children returns the direct children of id in ID order.
func (h *Hierarchy) Children(id string) []string {
	return append([]string(nil), h.children[id]...)
}

// AncestorChain returns id followed by each ancestor up to the root.
func (h *Hierarchy) AncestorChain(id string) ([]string, error) {
	if _, ok := h.byID[id]; !ok {
		return nil, UnknownWorkspaceError(id)
	}
	chain := []string{id}
	for cur := h.byID[id].ParentID; cur != ""; cur = h.byID[cur].ParentID {
		chain = append(chain, cur)
	}
	return chain, nil
}

// IsAncestor reports whether anc is id or one of its ancestors.
func (h *Hierarchy) IsAncestor(anc, id string) bool {
	chain, err := h.AncestorChain(id)
	if err != nil {
		return false
	}
	for _, w := range chain {
		if w == anc {
			return true
		}
	}
	return false
}

// RevisionIndex looks up the newest revision an entity has in a workspace.
// *revgraph.Graph satisfies it.
type RevisionIndex interface {
	LatestIn(workspaceID string) (model.Revision, bool)
}

// ActiveRevision returns the revision an entity presents in workspaceID.
//
// The workspace's own newest revision wins unless it is a tombstone, in which
// case the search continues at the parent. The root is only consulted when
// workspaceID is the root itself; other workspaces never inherit root content.
func (h *Hierarchy) ActiveRevision(index RevisionIndex, workspaceID string) (model.Revision, bool, error) {
	chain, err := h.AncestorChain(workspaceID)
	if err != nil {
		return model.Revision{}, false, err
	}
	for _, w := range chain {
		if w == h.root && w != workspaceID {
			break
		}
		if rev, ok := index.LatestIn(w); ok && !rev.Deleted {
			return rev, true, nil
		}
	}
	return model.Revision{}, false, nil
}

// DefaultIndex is a RevisionIndex that also knows the entity's default
// revision.
type DefaultIndex interface {
	RevisionIndex
	LatestDefault() (model.Revision, bool)
}

// ParentFor returns the revision a new revision in workspaceID supersedes:
// the active revision, else the entity's newest default revision. ok is false
// for an entity with no usable history.
func (h *Hierarchy) ParentFor(index DefaultIndex, workspaceID string) (model.Revision, bool, error) {
	rev, ok, err := h.ActiveRevision(index, workspaceID)
	if err != nil || ok {
		return rev, ok, err
	}
	if own, ok := index.LatestIn(workspaceID); ok {
		// A tombstone with nothing to inherit is still this workspace's head.
		return own, true, nil
	}
	rev, ok = index.LatestDefault()
	return rev, ok, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
