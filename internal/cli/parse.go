package cli

import (
	"strings"

	"github.com/roach88/promote/internal/model"
)

// parseRevisionRef parses "type/id" or "type/id@revision".
func parseRevisionRef(s string) (model.RevisionRef, error) {
	entity, rev, pinned := strings.Cut(s, "@")
	ref, err := model.ParseEntityRef(entity)
	if err != nil {
		return model.RevisionRef{}, badArgument("%v", err)
	}
	out := model.RevisionRef{Entity: ref}
	if pinned {
		id, err := parseRevisionID(rev)
		if err != nil {
			return model.RevisionRef{}, err
		}
		out.RevisionID = id
	}
	return out, nil
}

// parseDecision maps --take to an item decision. Empty means automatic.
func parseDecision(s string) (model.ItemDecision, error) {
	switch s {
	case "":
		return model.DecideAuto, nil
	case "source":
		return model.DecideSource, nil
	case "target":
		return model.DecideTarget, nil
	}
	return "", badArgument("invalid --take %q: want source or target", s)
}

// parseSelections parses field=source, field=target and field=custom:<json>.
func parseSelections(args []string) (model.Selections, error) {
	if len(args) == 0 {
		return nil, nil
	}
	sel := model.Selections{}
	for _, arg := range args {
		field, choice, ok := strings.Cut(arg, "=")
		if !ok || field == "" {
			return nil, badArgument("invalid selection %q: want field=source|target|custom:<json>", arg)
		}
		if _, dup := sel[field]; dup {
			return nil, badArgument("field %q selected twice", field)
		}
		switch {
		case choice == "source":
			sel[field] = model.Selection{Kind: model.SelectSource}
		case choice == "target":
			sel[field] = model.Selection{Kind: model.SelectTarget}
		case strings.HasPrefix(choice, "custom:"):
			v, err := model.DecodeValue([]byte(strings.TrimPrefix(choice, "custom:")))
			if err != nil {
				return nil, badArgument("invalid custom value for %q: %v", field, err)
			}
			sel[field] = model.Selection{Kind: model.SelectCustom, Value: v}
		default:
			return nil, badArgument("invalid selection %q: want field=source|target|custom:<json>", arg)
		}
	}
	return sel, nil
}

// parseFieldFilter parses repeated type=f1,f2 into a push field filter.
func parseFieldFilter(args []string) (map[string][]string, error) {
	out := map[string][]string{}
	for _, arg := range args {
		typ, list, ok := strings.Cut(arg, "=")
		if !ok || typ == "" {
			return nil, badArgument("invalid --fields %q: want type=field,field", arg)
		}
		fields := out[typ]
		for _, f := range strings.Split(list, ",") {
			if f = strings.TrimSpace(f); f != "" {
				fields = append(fields, f)
			}
		}
		out[typ] = fields
	}
	return out, nil
}
