package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/promote/internal/model"
	"github.com/roach88/promote/internal/policy"
	"github.com/roach88/promote/internal/store"
	"github.com/roach88/promote/internal/testutil"
	"github.com/roach88/promote/internal/transfer"
)

// Run executes a scenario on a fresh in-memory store.
//
// The returned error covers setup only: policy compilation, the workspace
// tree and the revision history. Failed expectations and assertions are
// reported in Result.Errors.
func Run(s *Scenario) (*Result, error) {
	return RunContext(context.Background(), s)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, s *Scenario) (*Result, error) {
	r, err := newRunner(ctx, s)
	if err != nil {
		return nil, err
	}
	defer r.store.Close()

	result := NewResult()
	for i, step := range s.Flow {
		ev := TraceEvent{Seq: r.seq.Next(), Op: step.Op, Outcome: OutcomeOK}
		summary, err := r.exec(step)
		if err != nil {
			ev.Outcome = OutcomeError
			ev.Code = errorCode(err)
		} else {
			ev.Result = summary
		}
		result.Trace = append(result.Trace, ev)
		checkExpect(result, i, step, ev, err)
	}

	EvaluateAssertions(ctx, r.store, s.Assertions, result)
	return result, nil
}

type runner struct {
	ctx     context.Context
	store   *store.Store
	engine  *transfer.Engine
	policy  *policy.Policy
	aliases map[string]model.RevisionID
	seq     *testutil.Sequence
}

func newRunner(ctx context.Context, s *Scenario) (*runner, error) {
	var p *policy.Policy
	if s.Policy != "" {
		var err error
		p, err = policy.CompileString(s.Policy, s.Name+".cue")
		if err != nil {
			return nil, fmt.Errorf("scenario policy: %w", err)
		}
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	r := &runner{
		ctx:   ctx,
		store: st,
		engine: transfer.New(st, p,
			transfer.WithIDGenerator(testutil.NewSequence("d")),
			transfer.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		),
		policy: p,
		seq:    testutil.NewSequence(""),
	}
	if err := r.setup(s); err != nil {
		st.Close()
		return nil, err
	}
	return r, nil
}

func (r *runner) setup(s *Scenario) error {
	root := ""
	for _, def := range s.Workspaces {
		ws := model.Workspace{ID: def.ID, Label: def.Label, ParentID: def.Parent, AutoPush: def.AutoPush}
		if _, err := r.engine.CreateWorkspace(r.ctx, ws); err != nil {
			return fmt.Errorf("workspace %q: %w", def.ID, err)
		}
		if def.Parent == "" {
			root = def.ID
		}
	}

	h := testutil.NewHistory()
	for _, def := range s.Revisions {
		entity, err := model.ParseEntityRef(def.Entity)
		if err != nil {
			return fmt.Errorf("revision %q: %w", def.Alias, err)
		}
		fields, err := toObject(def.Fields)
		if err != nil {
			return fmt.Errorf("revision %q fields: %w", def.Alias, err)
		}
		isDefault := def.Workspace == root
		if def.Default != nil {
			isDefault = *def.Default
		}
		spec := testutil.RevisionSpec{
			Alias:       def.Alias,
			Entity:      entity,
			Bundle:      def.Bundle,
			Workspace:   def.Workspace,
			Parent:      def.Parent,
			MergeParent: def.MergeParent,
			Deleted:     def.Deleted,
			Default:     isDefault,
			Fields:      fields,
		}
		if err := h.Add(spec); err != nil {
			return err
		}
	}
	ids, err := h.Save(r.ctx, r.store)
	if err != nil {
		return fmt.Errorf("revision history: %w", err)
	}
	r.aliases = ids
	return nil
}

// checkExpect compares a step's outcome with its expect clause.
func checkExpect(result *Result, i int, step FlowStep, ev TraceEvent, err error) {
	want := ""
	if step.Expect != nil {
		want = step.Expect.Error
	}
	switch {
	case want == "" && err != nil:
		result.AddError("flow[%d] %s: unexpected error: %v", i, step.Op, err)
		return
	case want != "" && err == nil:
		result.AddError("flow[%d] %s: expected error %s, got success", i, step.Op, want)
		return
	case want != "" && ev.Code != want:
		result.AddError("flow[%d] %s: expected error %s, got %s (%v)", i, step.Op, want, ev.Code, err)
		return
	}
	if step.Expect == nil || err != nil {
		return
	}
	for key, raw := range step.Expect.Result {
		expected, convErr := model.FromAny(raw)
		if convErr != nil {
			result.AddError("flow[%d] %s: expect.result[%s]: %v", i, step.Op, key, convErr)
			continue
		}
		actual, ok := ev.Result[key]
		if !ok {
			result.AddError("flow[%d] %s: result has no field %q", i, step.Op, key)
			continue
		}
		if !model.Equal(expected, actual) {
			result.AddError("flow[%d] %s: result.%s = %s, want %s", i, step.Op, key, render(actual), render(expected))
		}
	}
}

// errorCode names an error for the trace.
func errorCode(err error) string {
	var me *model.Error
	var ae *argError
	switch {
	case errors.As(err, &me):
		return string(me.Code)
	case errors.As(err, &ae):
		return "INVALID_ARGS"
	case transfer.IsBatchError(err):
		return "PARTIAL_BATCH_FAILURE"
	case errors.Is(err, store.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, context.Canceled):
		return "CANCELED"
	}
	return "ERROR"
}

func toObject(m map[string]any) (model.Object, error) {
	obj := model.Object{}
	for k, raw := range m {
		v, err := model.FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		obj[k] = v
	}
	return obj, nil
}

func render(v model.Value) string {
	b, err := model.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
