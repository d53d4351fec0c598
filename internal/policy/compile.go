package policy

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/promote/internal/model"
)

//go:embed schema.cue
var schemaSource string

// CompileError is a policy compilation failure with its CUE position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}

type rawPolicy struct {
	AutoMergeOneSided bool                            `json:"auto_merge_one_sided"`
	Entity            map[string]map[string]rawBundle `json:"entity"`
}

type rawBundle struct {
	TextField    string              `json:"text_field"`
	StatusField  *rawStatus          `json:"status_field"`
	MergeDisplay []string            `json:"merge_display"`
	Field        map[string]rawField `json:"field"`
}

type rawStatus struct {
	Name  string `json:"name"`
	Draft any    `json:"draft"`
}

type rawField struct {
	Blacklist string `json:"blacklist"`
	ReadOnly  bool   `json:"read_only"`
	Metadata  bool   `json:"metadata"`
}

// Compile checks v against the policy schema and builds a Policy.
// Unknown keys are rejected because the schema definitions are closed.
func Compile(v cue.Value) (*Policy, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	schema := v.Context().CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("policy schema: %w", err)
	}
	unified := schema.LookupPath(cue.ParsePath("#Policy")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var raw rawPolicy
	if err := unified.Decode(&raw); err != nil {
		return nil, formatCUEError(err)
	}

	var bundles []Bundle
	for _, typ := range sortedKeys(raw.Entity) {
		for _, name := range sortedKeys(raw.Entity[typ]) {
			b, err := compileBundle(typ, name, raw.Entity[typ][name])
			if err != nil {
				pos := unified.LookupPath(cue.MakePath(cue.Str("entity"), cue.Str(typ), cue.Str(name))).Pos()
				if ce, ok := err.(*CompileError); ok && !ce.Pos.IsValid() {
					ce.Pos = pos
				}
				return nil, err
			}
			bundles = append(bundles, b)
		}
	}

	p := New(raw.AutoMergeOneSided, bundles...)
	if errs := p.Validate(); len(errs) > 0 {
		return nil, errs[0]
	}
	return p, nil
}

func compileBundle(typ, name string, raw rawBundle) (Bundle, error) {
	b := Bundle{
		EntityType:   typ,
		Name:         name,
		TextField:    raw.TextField,
		MergeDisplay: raw.MergeDisplay,
		Fields:       make(map[string]FieldRule, len(raw.Field)),
	}
	if raw.StatusField != nil {
		draft, err := model.FromAny(raw.StatusField.Draft)
		if err != nil {
			return Bundle{}, &CompileError{
				Field:   fmt.Sprintf("entity.%s.%s.status_field.draft", typ, name),
				Message: err.Error(),
			}
		}
		b.StatusField = raw.StatusField.Name
		b.Draft = draft
	}
	for field, rf := range raw.Field {
		rule := FieldRule{ReadOnly: rf.ReadOnly, Metadata: rf.Metadata}
		if rf.Blacklist != "" {
			dir, err := model.ParseMergeDirection(rf.Blacklist)
			if err != nil {
				return Bundle{}, &CompileError{
					Field:   fmt.Sprintf("entity.%s.%s.field.%s.blacklist", typ, name, field),
					Message: err.Error(),
				}
			}
			rule.Blacklist = dir
		}
		b.Fields[field] = rule
	}
	return b, nil
}

// CompileString compiles policy source text. filename is used in positions.
func CompileString(src, filename string) (*Policy, error) {
	ctx := cuecontext.New()
	return Compile(ctx.CompileString(src, cue.Filename(filename)))
}

// LoadDir compiles every .cue file in dir as one policy.
func LoadDir(dir string) (*Policy, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("policy directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("policy directory: not a directory: %s", dir)
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, fmt.Errorf("scanning policy directory: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no CUE files found in %s", dir)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	if err := instances[0].Err; err != nil {
		return nil, formatCUEError(err)
	}
	ctx := cuecontext.New()
	return Compile(ctx.BuildInstance(instances[0]))
}

// Validate reports rules that contradict each other. Compile runs it; it is
// exported for policies assembled with New.
func (p *Policy) Validate() []error {
	var errs []error
	for _, b := range p.Bundles() {
		where := fmt.Sprintf("entity.%s.%s", b.EntityType, b.Name)
		if b.TextField != "" {
			if r := b.Fields[b.TextField]; r.Blacklist != "" {
				errs = append(errs, &CompileError{Field: where + ".text_field", Message: fmt.Sprintf("text field %q is blacklisted", b.TextField)})
			}
		}
		if b.StatusField != "" {
			if r := b.Fields[b.StatusField]; r.Blacklist != "" {
				errs = append(errs, &CompileError{Field: where + ".status_field", Message: fmt.Sprintf("status field %q is blacklisted", b.StatusField)})
			}
			if b.Draft == nil {
				errs = append(errs, &CompileError{Field: where + ".status_field", Message: "draft value is required"})
			}
		}
		for _, f := range b.MergeDisplay {
			if r := b.Fields[f]; r.Blacklist != "" {
				errs = append(errs, &CompileError{Field: where + ".merge_display", Message: fmt.Sprintf("blacklisted field %q cannot be displayed", f)})
			}
		}
	}
	return errs
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
