package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/promote/internal/model"
)

// Scenario is a reconciliation test: a workspace tree, a revision history,
// a flow of engine operations and assertions on the final state.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Policy is inline CUE field policy. Empty means permissive.
	Policy string `yaml:"policy,omitempty"`

	Workspaces []WorkspaceDef `yaml:"workspaces"`
	Revisions  []RevisionDef  `yaml:"revisions"`
	Flow       []FlowStep     `yaml:"flow"`
	Assertions []Assertion    `yaml:"assertions"`
}

// WorkspaceDef declares one workspace. Parents must be declared first.
type WorkspaceDef struct {
	ID       string `yaml:"id"`
	Label    string `yaml:"label,omitempty"`
	Parent   string `yaml:"parent,omitempty"`
	AutoPush bool   `yaml:"auto_push,omitempty"`
}

// RevisionDef declares one stored revision.
type RevisionDef struct {
	Alias       string         `yaml:"alias"`
	Entity      string         `yaml:"entity"`
	Bundle      string         `yaml:"bundle,omitempty"`
	Workspace   string         `yaml:"workspace"`
	Parent      string         `yaml:"parent,omitempty"`
	MergeParent string         `yaml:"merge_parent,omitempty"`
	Deleted     bool           `yaml:"deleted,omitempty"`
	Fields      map[string]any `yaml:"fields,omitempty"`

	// Default defaults to true for revisions in the root workspace.
	Default *bool `yaml:"default,omitempty"`
}

// FlowStep invokes one engine operation.
type FlowStep struct {
	Op     string         `yaml:"op"`
	Args   map[string]any `yaml:"args"`
	Expect *ExpectClause  `yaml:"expect,omitempty"`
}

// ExpectClause states what a step must produce. Without one the step must
// succeed.
type ExpectClause struct {
	// Error is the expected error code. Empty means the step succeeds.
	Error string `yaml:"error,omitempty"`

	// Result is a subset match against the step's result summary.
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion checks final state or the trace.
type Assertion struct {
	Type string `yaml:"type"`

	Count      int    `yaml:"count,omitempty"`
	Delivery   string `yaml:"delivery,omitempty"`
	Status     string `yaml:"status,omitempty"`
	Target     string `yaml:"target,omitempty"`
	Entity     string `yaml:"entity,omitempty"`
	Resolution string `yaml:"resolution,omitempty"`
	Op         string `yaml:"op,omitempty"`
	Outcome    string `yaml:"outcome,omitempty"`
}

// Assertion types.
const (
	AssertRevisionCount  = "revision_count"
	AssertDeliveryStatus = "delivery_status"
	AssertItemResolution = "item_resolution"
	AssertTraceCount     = "trace_count"
)

// Operations a flow step can invoke.
const (
	OpCommit          = "commit"
	OpCreateDelivery  = "create_delivery"
	OpStatus          = "status"
	OpDiscover        = "discover"
	OpDiscoverFields  = "discover_fields"
	OpClassify        = "classify"
	OpResolve         = "resolve"
	OpResolveDelivery = "resolve_delivery"
	OpPull            = "pull"
	OpPush            = "push"
	OpForward         = "forward"
)

var knownOps = map[string]bool{
	OpCommit: true, OpCreateDelivery: true, OpStatus: true, OpDiscover: true,
	OpDiscoverFields: true, OpClassify: true, OpResolve: true,
	OpResolveDelivery: true, OpPull: true, OpPush: true, OpForward: true,
}

// LoadScenario reads a scenario file. Unknown keys are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if len(s.Workspaces) == 0 {
		errs = append(errs, errors.New("at least one workspace is required"))
	}
	if len(s.Flow) == 0 {
		errs = append(errs, errors.New("flow must contain at least one step"))
	}

	aliases := map[string]bool{}
	for i, r := range s.Revisions {
		if r.Alias == "" {
			errs = append(errs, fmt.Errorf("revisions[%d]: alias is required", i))
		} else if aliases[r.Alias] {
			errs = append(errs, fmt.Errorf("revisions[%d]: duplicate alias %q", i, r.Alias))
		}
		aliases[r.Alias] = true
		if _, err := model.ParseEntityRef(r.Entity); err != nil {
			errs = append(errs, fmt.Errorf("revisions[%d]: %w", i, err))
		}
		if r.Workspace == "" {
			errs = append(errs, fmt.Errorf("revisions[%d]: workspace is required", i))
		}
	}

	for i, step := range s.Flow {
		if !knownOps[step.Op] {
			errs = append(errs, fmt.Errorf("flow[%d]: unknown op %q", i, step.Op))
		}
	}

	for i, a := range s.Assertions {
		switch a.Type {
		case AssertRevisionCount:
		case AssertDeliveryStatus:
			if a.Delivery == "" || a.Status == "" {
				errs = append(errs, fmt.Errorf("assertions[%d]: delivery_status requires delivery and status", i))
			}
		case AssertItemResolution:
			if a.Delivery == "" || a.Target == "" || a.Entity == "" || a.Resolution == "" {
				errs = append(errs, fmt.Errorf("assertions[%d]: item_resolution requires delivery, target, entity and resolution", i))
			}
		case AssertTraceCount:
			if a.Op == "" {
				errs = append(errs, fmt.Errorf("assertions[%d]: trace_count requires op", i))
			}
		default:
			errs = append(errs, fmt.Errorf("assertions[%d]: unknown type %q", i, a.Type))
		}
	}
	return errors.Join(errs...)
}
