package reconcile

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/promote/internal/model"
)

// Merge is the working state a Strategy operates on.
//
// Local, Remote and Base are read-only inputs; Local and Base may be nil.
// Strategies write resolved values into Result and remove the field from
// Conflicts in the same step via Resolve.
type Merge struct {
	Local      *model.Revision
	Remote     *model.Revision
	Base       *model.Revision
	Result     *model.Revision
	Conflicts  model.ConflictSet
	Selections model.Selections

	// Resolutions records which strategy resolved each field.
	Resolutions map[string]string
}

// EntityType returns the type of the entity being merged.
func (m *Merge) EntityType() string {
	typ, _ := bundleOf(m.Remote, m.Local, m.Result)
	return typ
}

// Bundle returns the bundle of the entity being merged.
func (m *Merge) Bundle() string {
	_, bundle := bundleOf(m.Remote, m.Local, m.Result)
	return bundle
}

// Side returns a field's value on one side of the merge.
func (m *Merge) Side(dir model.MergeDirection, field string) model.Value {
	var v model.Value
	switch dir {
	case model.TakeSourceSide:
		v, _ = m.Remote.Field(field)
	case model.TakeTargetSide:
		v, _ = m.Local.Field(field)
	case model.TakeBaseSide:
		v, _ = m.Base.Field(field)
	}
	return v
}

// Set writes v into the result without touching the conflict set. A nil v
// removes the field.
func (m *Merge) Set(field string, v model.Value) {
	if v == nil {
		delete(m.Result.Fields, field)
		return
	}
	m.Result.Fields[field] = model.CloneValue(v)
}

// Resolve writes v into the result and removes field from the conflict set.
func (m *Merge) Resolve(strategy, field string, v model.Value) {
	m.Set(field, v)
	delete(m.Conflicts, field)
	m.Resolutions[field] = strategy
}

// Strategy resolves some subset of the remaining conflicts.
//
// Auto-merge strategies never fail on fields they cannot resolve; they leave
// them in the set. An error aborts the run.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, m *Merge) error
}

// Outcome is the result of a pipeline run.
type Outcome struct {
	Result      model.Revision    `json:"result"`
	Remaining   model.ConflictSet `json:"remaining"`
	Resolutions map[string]string `json:"resolutions"`
}

// Resolved reports whether every conflict was resolved.
func (o Outcome) Resolved() bool {
	return len(o.Remaining) == 0
}

// Pipeline runs strategies in a fixed order. Later strategies only see
// conflicts earlier ones left.
type Pipeline struct {
	strategies []Strategy
	logger     *slog.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithPipelineLogger sets the logger used for per-field resolution records.
func WithPipelineLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// NewPipeline creates a pipeline running strategies in slice order.
func NewPipeline(strategies []Strategy, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		strategies: strategies,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DefaultPipeline builds the standard chain: blacklist, invisible fields, user
// selections, then (when oneSided is set) one-sided auto-merge.
func DefaultPipeline(policy FieldPolicy, merger TextMerger, oneSided bool, opts ...PipelineOption) *Pipeline {
	if merger == nil {
		merger = DiffMatchPatchMerger{}
	}
	strategies := []Strategy{
		BlacklistStrategy{Policy: policy},
		InvisibleFieldStrategy{Policy: policy, Merger: merger},
		SelectionStrategy{},
	}
	if oneSided {
		strategies = append(strategies, OneSidedStrategy{})
	}
	return NewPipeline(strategies, opts...)
}

// Strategies returns the strategy names in run order.
func (p *Pipeline) Strategies() []string {
	names := make([]string, len(p.strategies))
	for i, s := range p.strategies {
		names[i] = s.Name()
	}
	return names
}

// Run resolves in against the pipeline. The caller's conflict set, result and
// selections are not modified, so a run can be repeated with more selections.
//
// When in.Result is nil the result starts as a copy of the remote revision
// placed in the local revision's workspace.
func (p *Pipeline) Run(ctx context.Context, in Merge) (Outcome, error) {
	if in.Remote == nil {
		return Outcome{}, fmt.Errorf("pipeline: remote revision is required")
	}

	var result model.Revision
	switch {
	case in.Result != nil:
		result = in.Result.Clone()
	case in.Local != nil:
		result = in.Remote.Derive(in.Local.WorkspaceID)
	default:
		result = in.Remote.Derive(in.Remote.WorkspaceID)
	}
	if result.Fields == nil {
		result.Fields = model.Object{}
	}

	m := &Merge{
		Local:       in.Local,
		Remote:      in.Remote,
		Base:        in.Base,
		Result:      &result,
		Conflicts:   in.Conflicts.Clone(),
		Selections:  in.Selections,
		Resolutions: map[string]string{},
	}

	for _, s := range p.strategies {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		before := len(m.Conflicts)
		if err := s.Resolve(ctx, m); err != nil {
			return Outcome{}, fmt.Errorf("strategy %s: %w", s.Name(), err)
		}
		p.logger.Debug("strategy applied",
			"strategy", s.Name(),
			"entity", m.Remote.Entity.Key(),
			"resolved", before-len(m.Conflicts),
			"remaining", len(m.Conflicts),
		)
	}

	return Outcome{
		Result:      result,
		Remaining:   m.Conflicts,
		Resolutions: m.Resolutions,
	}, nil
}
