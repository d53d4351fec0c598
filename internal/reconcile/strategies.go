package reconcile

import (
	"context"
	"fmt"

	"github.com/roach88/promote/internal/model"
)

// Strategy names as recorded in Outcome.Resolutions.
const (
	StrategyBlacklist = "blacklist"
	StrategyInvisible = "invisible-field"
	StrategyTextMerge = "text-merge"
	StrategyStatus    = "status-draft"
	StrategySelection = "selection"
	StrategyOneSided  = "one-sided"
)

// BlacklistStrategy applies the configured direction to every blacklisted
// field of the entity, whether or not discovery reported it.
type BlacklistStrategy struct {
	Policy FieldPolicy
}

func (BlacklistStrategy) Name() string { return StrategyBlacklist }

func (s BlacklistStrategy) Resolve(_ context.Context, m *Merge) error {
	if s.Policy == nil {
		return nil
	}
	typ, bundle := m.EntityType(), m.Bundle()
	for _, field := range unionFields(m.Local, m.Remote, m.Base) {
		dir, ok := s.Policy.Blacklisted(typ, bundle, field)
		if !ok {
			continue
		}
		m.Resolve(StrategyBlacklist, field, m.Side(dir, field))
	}
	return nil
}

// InvisibleFieldStrategy auto-resolves fields a human would not see on the
// merge form.
//
// The status field is always forced to its draft value. The text field goes
// through the three-way text merger and stays conflicting when the merge is
// unclean; on a first delivery (no local revision) it is left for selection.
// Any other field missing from the merge display takes the remote value.
// Fields with an explicit selection are left to SelectionStrategy.
type InvisibleFieldStrategy struct {
	Policy FieldPolicy
	Merger TextMerger
}

func (InvisibleFieldStrategy) Name() string { return StrategyInvisible }

func (s InvisibleFieldStrategy) Resolve(_ context.Context, m *Merge) error {
	if s.Policy == nil {
		return nil
	}
	typ, bundle := m.EntityType(), m.Bundle()
	merger := s.Merger
	if merger == nil {
		merger = DiffMatchPatchMerger{}
	}

	statusField, draft := s.Policy.StatusField(typ, bundle)
	if statusField != "" && draft != nil {
		_, inLocal := m.Local.Field(statusField)
		_, inRemote := m.Remote.Field(statusField)
		if inLocal || inRemote {
			m.Resolve(StrategyStatus, statusField, draft)
		}
	}

	textField := s.Policy.TextField(typ, bundle)
	for _, field := range m.Conflicts.Fields() {
		if _, selected := m.Selections[field]; selected {
			continue
		}
		switch {
		case field == textField:
			if m.Local == nil {
				continue
			}
			base, _ := m.Base.Field(field)
			local, _ := m.Local.Field(field)
			remote, _ := m.Remote.Field(field)
			if merged, clean := mergeTextField(merger, base, local, remote); clean {
				m.Resolve(StrategyTextMerge, field, merged)
			}
		case !s.Policy.InMergeDisplay(typ, bundle, field):
			m.Resolve(StrategyInvisible, field, m.Side(model.TakeSourceSide, field))
		}
	}
	return nil
}

// SelectionStrategy applies explicit per-field user choices.
type SelectionStrategy struct{}

func (SelectionStrategy) Name() string { return StrategySelection }

func (SelectionStrategy) Resolve(_ context.Context, m *Merge) error {
	for _, field := range m.Conflicts.Fields() {
		sel, ok := m.Selections[field]
		if !ok {
			continue
		}
		switch sel.Kind {
		case model.SelectSource:
			m.Resolve(StrategySelection, field, m.Side(model.TakeSourceSide, field))
		case model.SelectTarget:
			m.Resolve(StrategySelection, field, m.Side(model.TakeTargetSide, field))
		case model.SelectCustom:
			if sel.Value == nil {
				return invalidSelection(field, "take-custom requires a value")
			}
			m.Resolve(StrategySelection, field, sel.Value)
		default:
			return invalidSelection(field, fmt.Sprintf("unknown selection %q", sel.Kind))
		}
	}
	return nil
}

func invalidSelection(field, msg string) error {
	err := model.NewPolicyViolation(model.ErrCodeInvalidSelection, msg)
	err.Details = map[string]string{"field": field}
	return err
}

// OneSidedStrategy keeps local-only changes and takes remote-only changes.
type OneSidedStrategy struct{}

func (OneSidedStrategy) Name() string { return StrategyOneSided }

func (OneSidedStrategy) Resolve(_ context.Context, m *Merge) error {
	for _, field := range m.Conflicts.Fields() {
		switch m.Conflicts[field] {
		case model.LocalOnly:
			m.Resolve(StrategyOneSided, field, m.Side(model.TakeTargetSide, field))
		case model.RemoteOnly:
			m.Resolve(StrategyOneSided, field, m.Side(model.TakeSourceSide, field))
		}
	}
	return nil
}
