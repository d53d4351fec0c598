package testutil

import (
	"context"
	"fmt"

	"github.com/roach88/promote/internal/model"
)

// RevisionSpec declares one revision of a History. Parent and MergeParent
// name earlier revisions by alias.
type RevisionSpec struct {
	Alias       string
	Entity      model.EntityRef
	Bundle      string
	Workspace   string
	Parent      string
	MergeParent string
	Deleted     bool
	Default     bool
	Fields      model.Object
}

// RevisionCreator stores a revision and returns it with its assigned ID.
// *store.Store and *store.Tx implement it.
type RevisionCreator interface {
	CreateRevision(ctx context.Context, rev model.Revision) (model.Revision, error)
}

// History declares revisions by alias so tests can wire parent links
// without knowing the IDs a store will assign.
type History struct {
	specs []RevisionSpec
	index map[string]int
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{index: map[string]int{}}
}

// Add appends a revision. Aliases must be unique and parents must already be
// declared.
func (h *History) Add(spec RevisionSpec) error {
	if spec.Alias == "" {
		return fmt.Errorf("revision alias is required")
	}
	if _, dup := h.index[spec.Alias]; dup {
		return fmt.Errorf("duplicate revision alias %q", spec.Alias)
	}
	for _, ref := range []string{spec.Parent, spec.MergeParent} {
		if ref == "" {
			continue
		}
		if _, ok := h.index[ref]; !ok {
			return fmt.Errorf("revision %q: unknown parent alias %q", spec.Alias, ref)
		}
	}
	h.index[spec.Alias] = len(h.specs)
	h.specs = append(h.specs, spec)
	return nil
}

// MustAdd is Add for test setup; it panics on a malformed declaration.
func (h *History) MustAdd(spec RevisionSpec) *History {
	if err := h.Add(spec); err != nil {
		panic(err)
	}
	return h
}

// Len returns the number of declared revisions.
func (h *History) Len() int {
	return len(h.specs)
}

// Revisions materializes the history in memory with IDs 1..n in declaration
// order. The result feeds revgraph.New directly.
func (h *History) Revisions() ([]model.Revision, map[string]model.RevisionID) {
	ids := make(map[string]model.RevisionID, len(h.specs))
	out := make([]model.Revision, len(h.specs))
	for i, spec := range h.specs {
		id := model.RevisionID(i + 1)
		ids[spec.Alias] = id
		out[i] = h.revision(spec, ids)
		out[i].ID = id
	}
	return out, ids
}

// Save stores the history through c in declaration order and returns the
// assigned ID of every alias.
func (h *History) Save(ctx context.Context, c RevisionCreator) (map[string]model.RevisionID, error) {
	ids := make(map[string]model.RevisionID, len(h.specs))
	for _, spec := range h.specs {
		saved, err := c.CreateRevision(ctx, h.revision(spec, ids))
		if err != nil {
			return ids, fmt.Errorf("revision %q: %w", spec.Alias, err)
		}
		ids[spec.Alias] = saved.ID
	}
	return ids, nil
}

func (h *History) revision(spec RevisionSpec, ids map[string]model.RevisionID) model.Revision {
	return model.Revision{
		Entity:        spec.Entity,
		Bundle:        spec.Bundle,
		WorkspaceID:   spec.Workspace,
		ParentID:      ids[spec.Parent],
		MergeParentID: ids[spec.MergeParent],
		Deleted:       spec.Deleted,
		Default:       spec.Default,
		Fields:        spec.Fields.Clone(),
	}
}
