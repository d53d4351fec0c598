package reconcile

import (
	"sort"

	"github.com/roach88/promote/internal/model"
)

// FieldPolicy answers the per-field schema questions reconciliation asks.
// Lookups are keyed by entity type and bundle.
type FieldPolicy interface {
	// Blacklisted reports whether a field is excluded from resolution and
	// which side it always takes.
	Blacklisted(entityType, bundle, field string) (model.MergeDirection, bool)

	// InMergeDisplay reports whether a field is shown on the merge form.
	InMergeDisplay(entityType, bundle, field string) bool

	// ReadOnly reports whether a field is read-only at the schema level.
	ReadOnly(entityType, bundle, field string) bool

	// RevisionMetadata reports whether a field describes the revision
	// rather than the content (log message, author, timestamps).
	RevisionMetadata(entityType, bundle, field string) bool

	// TextField names the bundle's rich-text field, or "".
	TextField(entityType, bundle string) string

	// StatusField names the bundle's lifecycle field and its draft value.
	StatusField(entityType, bundle string) (string, model.Value)
}

// Discover compares local and remote against base field by field. A nil base
// means every field is absent at base. Fields unchanged on both sides are
// omitted, as are fields both sides changed to the same value.
func Discover(local, remote, base *model.Revision) model.ConflictSet {
	set := model.ConflictSet{}
	for _, field := range unionFields(local, remote) {
		lv, _ := local.Field(field)
		rv, _ := remote.Field(field)
		bv, _ := base.Field(field)

		localChanged := !model.Equal(lv, bv)
		remoteChanged := !model.Equal(rv, bv)
		switch {
		case localChanged && remoteChanged:
			if !model.Equal(lv, rv) {
				set[field] = model.LocalAndRemote
			}
		case localChanged:
			set[field] = model.LocalOnly
		case remoteChanged:
			set[field] = model.RemoteOnly
		}
	}
	return set
}

// Discoverer runs Discover and removes blacklisted fields, so callers never
// see them.
type Discoverer struct {
	Policy FieldPolicy
}

// Discover returns the policy-filtered conflict set.
func (d Discoverer) Discover(local, remote, base *model.Revision) model.ConflictSet {
	set := Discover(local, remote, base)
	if d.Policy == nil {
		return set
	}
	typ, bundle := bundleOf(remote, local)
	for field := range set {
		if _, ok := d.Policy.Blacklisted(typ, bundle, field); ok {
			delete(set, field)
		}
	}
	return set
}

// MarkAll builds the conflict set for an entity that is new to the target:
// every field that is editable and not revision metadata is marked as changed
// on both sides.
func MarkAll(rev *model.Revision, policy FieldPolicy) model.ConflictSet {
	set := model.ConflictSet{}
	if rev == nil {
		return set
	}
	for _, field := range rev.Fields.SortedKeys() {
		if policy != nil {
			typ, bundle := rev.Entity.Type, rev.Bundle
			if policy.ReadOnly(typ, bundle, field) || policy.RevisionMetadata(typ, bundle, field) {
				continue
			}
			if _, ok := policy.Blacklisted(typ, bundle, field); ok {
				continue
			}
		}
		set[field] = model.LocalAndRemote
	}
	return set
}

func unionFields(revs ...*model.Revision) []string {
	seen := map[string]bool{}
	var fields []string
	for _, r := range revs {
		if r == nil {
			continue
		}
		for f := range r.Fields {
			if !seen[f] {
				seen[f] = true
				fields = append(fields, f)
			}
		}
	}
	sort.Strings(fields)
	return fields
}

// bundleOf returns the entity type and bundle of the first non-nil revision.
func bundleOf(revs ...*model.Revision) (string, string) {
	for _, r := range revs {
		if r != nil {
			return r.Entity.Type, r.Bundle
		}
	}
	return "", ""
}
