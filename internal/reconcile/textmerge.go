package reconcile

import (
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/roach88/promote/internal/model"
)

// TextMerger performs a three-way merge of text bodies. clean is false when
// the remote changes could not all be applied on top of local.
type TextMerger interface {
	Merge(base, local, remote string) (merged string, clean bool)
}

// DiffMatchPatchMerger merges by computing base->remote patches and applying
// them to local.
type DiffMatchPatchMerger struct {
	// MatchThreshold overrides the fuzzy-match tolerance when non-zero
	// (0.0 exact, 1.0 anything). The library default is 0.5.
	MatchThreshold float64
}

// Merge implements TextMerger.
func (m DiffMatchPatchMerger) Merge(base, local, remote string) (string, bool) {
	switch {
	case local == remote:
		return local, true
	case local == base:
		return remote, true
	case remote == base:
		return local, true
	}

	dmp := diffmatchpatch.New()
	if m.MatchThreshold > 0 {
		dmp.MatchThreshold = m.MatchThreshold
	}
	patches := dmp.PatchMake(base, remote)
	merged, applied := dmp.PatchApply(patches, local)
	for _, ok := range applied {
		if !ok {
			return local, false
		}
	}
	return merged, true
}

// textOf extracts the body of a text field. Text fields are either plain
// strings or objects carrying the body under "value".
func textOf(v model.Value) (string, bool) {
	switch t := v.(type) {
	case model.String:
		return string(t), true
	case model.Object:
		if s, ok := t["value"].(model.String); ok {
			return string(s), true
		}
	}
	return "", false
}

// withText rebuilds a text field value in the shape of like.
func withText(like model.Value, body string) model.Value {
	if obj, ok := like.(model.Object); ok {
		out := obj.Clone()
		out["value"] = model.String(body)
		return out
	}
	return model.String(body)
}

// mergeTextField merges a text field across the three sides. Any side lacking
// a body yields an empty body and counts as clean.
func mergeTextField(merger TextMerger, base, local, remote model.Value) (model.Value, bool) {
	b, okB := textOf(base)
	l, okL := textOf(local)
	r, okR := textOf(remote)
	if !okB || !okL || !okR {
		return withText(remote, ""), true
	}
	merged, clean := merger.Merge(b, l, r)
	if !clean {
		return nil, false
	}
	return withText(remote, merged), true
}
