package model

import (
	"fmt"
	"sort"
)

// Status is the delivery classification of one entity for one target.
type Status string

const (
	StatusIdentical Status = "identical"
	StatusModified  Status = "modified"
	StatusOutdated  Status = "outdated"
	StatusConflict  Status = "conflict"
	StatusNew       Status = "new"
)

// ConflictKind tags which side changed a field relative to the common ancestor.
type ConflictKind string

const (
	LocalOnly      ConflictKind = "local-only"
	RemoteOnly     ConflictKind = "remote-only"
	LocalAndRemote ConflictKind = "local-and-remote"
)

// ConflictSet maps field names to their conflict kind. It is computed per
// reconciliation attempt and never persisted.
type ConflictSet map[string]ConflictKind

// Fields returns the field names in sorted order.
func (cs ConflictSet) Fields() []string {
	fields := make([]string, 0, len(cs))
	for f := range cs {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Has reports whether field is in the set.
func (cs ConflictSet) Has(field string) bool {
	_, ok := cs[field]
	return ok
}

// Clone returns a copy of the set. A nil set clones to an empty set.
func (cs ConflictSet) Clone() ConflictSet {
	out := make(ConflictSet, len(cs))
	for k, v := range cs {
		out[k] = v
	}
	return out
}

// MergeDirection is the side a blacklisted field always resolves to.
type MergeDirection string

const (
	TakeSourceSide MergeDirection = "source"
	TakeTargetSide MergeDirection = "target"
	TakeBaseSide   MergeDirection = "base"
)

// ParseMergeDirection validates a direction name.
func ParseMergeDirection(s string) (MergeDirection, error) {
	switch d := MergeDirection(s); d {
	case TakeSourceSide, TakeTargetSide, TakeBaseSide:
		return d, nil
	}
	return "", fmt.Errorf("invalid merge direction %q: must be source, target or base", s)
}

// SelectionKind is a human choice for one conflicting field.
type SelectionKind string

const (
	SelectSource SelectionKind = "take-source"
	SelectTarget SelectionKind = "take-target"
	SelectCustom SelectionKind = "take-custom"
)

// Selection is a per-field resolution supplied by a user.
// Value is only used with SelectCustom.
type Selection struct {
	Kind  SelectionKind `json:"kind"`
	Value Value         `json:"value,omitempty"`
}

// Selections maps field names to user choices.
type Selections map[string]Selection

// ItemDecision is a whole-item choice for a delivery item.
type ItemDecision string

const (
	DecideAuto   ItemDecision = "auto"
	DecideSource ItemDecision = "take-source"
	DecideTarget ItemDecision = "take-target"
)
