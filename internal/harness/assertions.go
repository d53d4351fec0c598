package harness

import (
	"context"

	"github.com/roach88/promote/internal/model"
	"github.com/roach88/promote/internal/store"
)

// EvaluateAssertions checks every assertion against the final store state
// and the trace, recording failures on result.
func EvaluateAssertions(ctx context.Context, s *store.Store, assertions []Assertion, result *Result) {
	for i, a := range assertions {
		switch a.Type {
		case AssertRevisionCount:
			assertRevisionCount(ctx, s, i, a, result)
		case AssertDeliveryStatus:
			assertDeliveryStatus(ctx, s, i, a, result)
		case AssertItemResolution:
			assertItemResolution(ctx, s, i, a, result)
		case AssertTraceCount:
			assertTraceCount(i, a, result)
		default:
			result.AddError("assertions[%d]: unknown type %q", i, a.Type)
		}
	}
}

func assertRevisionCount(ctx context.Context, s *store.Store, i int, a Assertion, result *Result) {
	n, err := s.CountRevisions(ctx)
	if err != nil {
		result.AddError("assertions[%d] revision_count: %v", i, err)
		return
	}
	if n != a.Count {
		result.AddError("assertions[%d] revision_count: got %d, want %d", i, n, a.Count)
	}
}

func assertDeliveryStatus(ctx context.Context, s *store.Store, i int, a Assertion, result *Result) {
	d, err := s.LoadDelivery(ctx, a.Delivery)
	if err != nil {
		result.AddError("assertions[%d] delivery_status: %v", i, err)
		return
	}
	if string(d.Status) != a.Status {
		result.AddError("assertions[%d] delivery_status: %s is %s, want %s", i, d.ID, d.Status, a.Status)
	}
}

func assertItemResolution(ctx context.Context, s *store.Store, i int, a Assertion, result *Result) {
	entity, err := model.ParseEntityRef(a.Entity)
	if err != nil {
		result.AddError("assertions[%d] item_resolution: %v", i, err)
		return
	}
	key := model.ItemKey{DeliveryID: a.Delivery, TargetID: a.Target, Entity: entity}
	it, err := s.DeliveryItem(ctx, key)
	if err != nil {
		result.AddError("assertions[%d] item_resolution: %v", i, err)
		return
	}
	if string(it.Resolution) != a.Resolution {
		result.AddError("assertions[%d] item_resolution: %s is %s, want %s", i, key, it.Resolution, a.Resolution)
	}
}

// assertTraceCount counts trace events for an op, optionally restricted to
// one outcome.
func assertTraceCount(i int, a Assertion, result *Result) {
	n := 0
	for _, ev := range result.Trace {
		if ev.Op != a.Op {
			continue
		}
		if a.Outcome != "" && ev.Outcome != a.Outcome {
			continue
		}
		n++
	}
	if n != a.Count {
		result.AddError("assertions[%d] trace_count: %s appears %d times, want %d", i, a.Op, n, a.Count)
	}
}
