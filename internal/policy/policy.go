// Package policy holds per-field reconciliation rules: blacklisted fields and
// their fixed direction, the merge display, read-only and revision-metadata
// fields, and each bundle's designated text and status fields.
//
// Policies are written in CUE and compiled with Compile or LoadDir:
//
//	auto_merge_one_sided: true
//	entity: node: article: {
//		text_field:    "body"
//		status_field:  {name: "moderation_state", draft: "draft"}
//		merge_display: ["title", "tags"]
//		field: {
//			changed: blacklist: "source"
//			nid: read_only:     true
//			revision_log: metadata: true
//		}
//	}
//
// The bundle name "*" applies to every bundle of an entity type that has no
// rules of its own.
package policy

import (
	"sort"

	"github.com/roach88/promote/internal/model"
)

// Wildcard is the bundle name matching any bundle without its own rules.
const Wildcard = "*"

// FieldRule is the policy for one field.
type FieldRule struct {
	Blacklist model.MergeDirection `json:"blacklist,omitempty"`
	ReadOnly  bool                 `json:"read_only,omitempty"`
	Metadata  bool                 `json:"metadata,omitempty"`
}

// Bundle is the policy for one (entity type, bundle) pair.
type Bundle struct {
	EntityType  string               `json:"entity_type"`
	Name        string               `json:"bundle"`
	TextField   string               `json:"text_field,omitempty"`
	StatusField string               `json:"status_field,omitempty"`
	Draft       model.Value          `json:"draft,omitempty"`
	Fields      map[string]FieldRule `json:"fields,omitempty"`

	// MergeDisplay lists fields shown on the merge form. nil means every
	// field is shown.
	MergeDisplay []string `json:"merge_display,omitempty"`
}

func (b *Bundle) displayed(field string) bool {
	if b.MergeDisplay == nil {
		return true
	}
	for _, f := range b.MergeDisplay {
		if f == field {
			return true
		}
	}
	return false
}

// Policy is a compiled field policy. The zero value and nil are permissive:
// nothing is blacklisted, read-only or metadata, and every field is shown.
type Policy struct {
	AutoMergeOneSided bool
	bundles           map[string]*Bundle
}

// New builds a policy from bundles. Later bundles replace earlier ones with
// the same key.
func New(autoMergeOneSided bool, bundles ...Bundle) *Policy {
	p := &Policy{
		AutoMergeOneSided: autoMergeOneSided,
		bundles:           make(map[string]*Bundle, len(bundles)),
	}
	for i := range bundles {
		b := bundles[i]
		p.bundles[key(b.EntityType, b.Name)] = &b
	}
	return p
}

func key(entityType, bundle string) string {
	return entityType + "/" + bundle
}

// Bundle returns the rules that apply to (entityType, bundle).
func (p *Policy) Bundle(entityType, bundle string) (*Bundle, bool) {
	if p == nil {
		return nil, false
	}
	if b, ok := p.bundles[key(entityType, bundle)]; ok {
		return b, true
	}
	b, ok := p.bundles[key(entityType, Wildcard)]
	return b, ok
}

// Bundles returns every bundle ordered by entity type then name.
func (p *Policy) Bundles() []Bundle {
	if p == nil {
		return nil
	}
	keys := make([]string, 0, len(p.bundles))
	for k := range p.bundles {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Bundle, len(keys))
	for i, k := range keys {
		out[i] = *p.bundles[k]
	}
	return out
}

func (p *Policy) rule(entityType, bundle, field string) FieldRule {
	b, ok := p.Bundle(entityType, bundle)
	if !ok {
		return FieldRule{}
	}
	return b.Fields[field]
}

// Blacklisted reports whether field is blacklisted and its fixed direction.
func (p *Policy) Blacklisted(entityType, bundle, field string) (model.MergeDirection, bool) {
	r := p.rule(entityType, bundle, field)
	return r.Blacklist, r.Blacklist != ""
}

// InMergeDisplay reports whether field is shown on the merge form.
func (p *Policy) InMergeDisplay(entityType, bundle, field string) bool {
	b, ok := p.Bundle(entityType, bundle)
	if !ok {
		return true
	}
	return b.displayed(field)
}

// ReadOnly reports whether field is read-only.
func (p *Policy) ReadOnly(entityType, bundle, field string) bool {
	return p.rule(entityType, bundle, field).ReadOnly
}

// RevisionMetadata reports whether field describes the revision itself.
func (p *Policy) RevisionMetadata(entityType, bundle, field string) bool {
	return p.rule(entityType, bundle, field).Metadata
}

// TextField returns the bundle's rich-text field.
func (p *Policy) TextField(entityType, bundle string) string {
	if b, ok := p.Bundle(entityType, bundle); ok {
		return b.TextField
	}
	return ""
}

// StatusField returns the bundle's lifecycle field and its draft value.
func (p *Policy) StatusField(entityType, bundle string) (string, model.Value) {
	if b, ok := p.Bundle(entityType, bundle); ok && b.StatusField != "" {
		return b.StatusField, b.Draft
	}
	return "", nil
}

// OneSided reports whether one-sided changes merge automatically.
func (p *Policy) OneSided() bool {
	return p != nil && p.AutoMergeOneSided
}
