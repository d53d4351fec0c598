package model

import (
	"fmt"
	"strconv"
	"strings"
)

// RevisionID identifies a revision. IDs are assigned monotonically by the store.
type RevisionID int64

// NoRevision is the zero RevisionID and means "no revision exists".
const NoRevision RevisionID = 0

// IsNone reports whether id is NoRevision.
func (id RevisionID) IsNone() bool {
	return id == NoRevision
}

// String renders the ID, or "none" for NoRevision.
func (id RevisionID) String() string {
	if id == NoRevision {
		return "none"
	}
	return strconv.FormatInt(int64(id), 10)
}

// EntityRef identifies a content entity by type and ID.
type EntityRef struct {
	Type string `json:"entity_type"`
	ID   string `json:"entity_id"`
}

// Key renders the ref as "type/id".
func (r EntityRef) Key() string {
	return r.Type + "/" + r.ID
}

func (r EntityRef) String() string {
	return r.Key()
}

// ParseEntityRef parses "type/id". The ID may itself contain slashes.
func ParseEntityRef(s string) (EntityRef, error) {
	typ, id, ok := strings.Cut(s, "/")
	if !ok || typ == "" || id == "" {
		return EntityRef{}, fmt.Errorf("invalid entity ref %q: want type/id", s)
	}
	return EntityRef{Type: typ, ID: id}, nil
}

// Revision is an immutable snapshot of an entity's fields.
//
// ParentID is the revision this one supersedes in its lineage. MergeParentID is
// set when the revision resulted from merging another lineage in; it is a
// provenance link, not primary ancestry.
type Revision struct {
	ID            RevisionID `json:"revision_id"`
	Entity        EntityRef  `json:"entity"`
	Bundle        string     `json:"bundle,omitempty"`
	WorkspaceID   string     `json:"workspace_id"`
	ParentID      RevisionID `json:"parent_revision_id,omitempty"`
	MergeParentID RevisionID `json:"merge_parent_revision_id,omitempty"`
	Deleted       bool       `json:"deleted,omitempty"`
	Default       bool       `json:"default,omitempty"`
	Fields        Object     `json:"fields"`
	Message       string     `json:"message,omitempty"`
	Digest        string     `json:"digest,omitempty"`
}

// Field returns the value of a field, or (nil, false) when absent.
func (r *Revision) Field(name string) (Value, bool) {
	if r == nil {
		return nil, false
	}
	return r.Fields.Get(name)
}

// Clone returns a deep copy of the revision.
func (r Revision) Clone() Revision {
	r.Fields = r.Fields.Clone()
	return r
}

// Derive returns a detached, unsaved copy of r placed in workspaceID.
// The copy supersedes nothing yet; callers set ParentID and MergeParentID.
func (r Revision) Derive(workspaceID string) Revision {
	return Revision{
		Entity:      r.Entity,
		Bundle:      r.Bundle,
		WorkspaceID: workspaceID,
		Deleted:     r.Deleted,
		Fields:      r.Fields.Clone(),
	}
}

// Workspace is a node in the workspace tree. The root has an empty ParentID.
type Workspace struct {
	ID       string `json:"id" yaml:"id"`
	Label    string `json:"label,omitempty" yaml:"label,omitempty"`
	ParentID string `json:"parent_workspace_id,omitempty" yaml:"parent,omitempty"`
	AutoPush bool   `json:"auto_push,omitempty" yaml:"auto_push,omitempty"`
}

// IsRoot reports whether the workspace has no parent.
func (w Workspace) IsRoot() bool {
	return w.ParentID == ""
}
