package model

import "fmt"

// DeliveryStatus is the lifecycle state of a delivery.
type DeliveryStatus string

const (
	DeliveryOpen    DeliveryStatus = "open"
	DeliveryPartial DeliveryStatus = "partial"
	DeliveryClosed  DeliveryStatus = "closed"
)

// Delivery is a proposed transfer of entity revisions from one workspace to
// one or more targets. Refs are captured when the delivery is created.
type Delivery struct {
	ID            string         `json:"id"`
	Label         string         `json:"label,omitempty"`
	SourceID      string         `json:"source_workspace_id"`
	TargetIDs     []string       `json:"target_workspace_ids"`
	Refs          []RevisionRef  `json:"refs"`
	Status        DeliveryStatus `json:"status"`
	ForwardedFrom string         `json:"forwarded_from,omitempty"`
}

// HasTarget reports whether workspaceID is one of the delivery's targets.
func (d Delivery) HasTarget(workspaceID string) bool {
	for _, t := range d.TargetIDs {
		if t == workspaceID {
			return true
		}
	}
	return false
}

// RevisionRef pins an entity to a specific revision.
type RevisionRef struct {
	Entity     EntityRef  `json:"entity"`
	RevisionID RevisionID `json:"revision_id"`
}

func (r RevisionRef) String() string {
	return fmt.Sprintf("%s@%s", r.Entity.Key(), r.RevisionID)
}

// ResolutionKind records how a delivery item was reconciled.
type ResolutionKind string

const (
	Unresolved ResolutionKind = "unresolved"
	Identical  ResolutionKind = "identical"
	TookSource ResolutionKind = "took-source"
	TookTarget ResolutionKind = "took-target"
	Merged     ResolutionKind = "merged"
)

// IsResolved reports whether the kind is terminal. Resolution is one-way:
// once resolved an item never returns to Unresolved.
func (k ResolutionKind) IsResolved() bool {
	return k != "" && k != Unresolved
}

// ParseResolutionKind validates a stored resolution kind.
func ParseResolutionKind(s string) (ResolutionKind, error) {
	switch k := ResolutionKind(s); k {
	case Unresolved, Identical, TookSource, TookTarget, Merged:
		return k, nil
	}
	return "", fmt.Errorf("unknown resolution kind %q", s)
}

// ItemKey identifies a delivery item.
type ItemKey struct {
	DeliveryID string    `json:"delivery_id"`
	TargetID   string    `json:"target_workspace_id"`
	Entity     EntityRef `json:"entity"`
}

func (k ItemKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.DeliveryID, k.TargetID, k.Entity.Key())
}

// DeliveryItem is the per-entity, per-target reconciliation record.
type DeliveryItem struct {
	DeliveryID       string         `json:"delivery_id"`
	SourceID         string         `json:"source_workspace_id"`
	TargetID         string         `json:"target_workspace_id"`
	Entity           EntityRef      `json:"entity"`
	SourceRevisionID RevisionID     `json:"source_revision_id"`
	ResultRevisionID RevisionID     `json:"result_revision_id,omitempty"`
	Resolution       ResolutionKind `json:"resolution_kind"`
}

// Key returns the item's identity.
func (i DeliveryItem) Key() ItemKey {
	return ItemKey{DeliveryID: i.DeliveryID, TargetID: i.TargetID, Entity: i.Entity}
}

// RollupStatus derives a delivery's status from its items.
func RollupStatus(items []DeliveryItem) DeliveryStatus {
	resolved := 0
	for _, it := range items {
		if it.Resolution.IsResolved() {
			resolved++
		}
	}
	switch {
	case len(items) > 0 && resolved == len(items):
		return DeliveryClosed
	case resolved > 0:
		return DeliveryPartial
	}
	return DeliveryOpen
}
