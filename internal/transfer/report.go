package transfer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/promote/internal/model"
	"github.com/roach88/promote/internal/store"
)

// Outcome is what happened to one entity for one target during a
// multi-entity operation.
type Outcome string

const (
	OutcomeWritten   Outcome = "written"
	OutcomeIdentical Outcome = "identical"
	OutcomeResolved  Outcome = "resolved"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeBlocked   Outcome = "blocked"
	OutcomeFailed    Outcome = "failed"
)

// EntityResult records one (entity, target) outcome.
type EntityResult struct {
	Entity    model.EntityRef      `json:"entity"`
	Target    string               `json:"target_workspace_id,omitempty"`
	Outcome   Outcome              `json:"outcome"`
	Status    model.Status         `json:"status,omitempty"`
	Revision  model.RevisionID     `json:"revision_id,omitempty"`
	Kind      model.ResolutionKind `json:"resolution_kind,omitempty"`
	Conflicts []string             `json:"conflicts,omitempty"`
	Error     string               `json:"error,omitempty"`

	err error
}

// Report lists which entities succeeded, which are blocked by conflicts or
// missing input, and which failed outright.
type Report struct {
	DeliveryID string         `json:"delivery_id"`
	Succeeded  []EntityResult `json:"succeeded"`
	Blocked    []EntityResult `json:"blocked"`
	Failed     []EntityResult `json:"failed"`

	// Cursor is set by batched operations.
	Cursor *store.Cursor `json:"cursor,omitempty"`
}

func newReport(deliveryID string) *Report {
	return &Report{
		DeliveryID: deliveryID,
		Succeeded:  []EntityResult{},
		Blocked:    []EntityResult{},
		Failed:     []EntityResult{},
	}
}

func (r *Report) add(res EntityResult) {
	switch res.Outcome {
	case OutcomeBlocked:
		r.Blocked = append(r.Blocked, res)
	case OutcomeFailed:
		r.Failed = append(r.Failed, res)
	default:
		r.Succeeded = append(r.Succeeded, res)
	}
}

func (r *Report) fail(entity model.EntityRef, target string, err error) {
	r.add(EntityResult{
		Entity:  entity,
		Target:  target,
		Outcome: OutcomeFailed,
		Error:   err.Error(),
		err:     err,
	})
}

// Err returns a *BatchError when any entity failed, nil otherwise. Blocked
// entities are not failures.
func (r *Report) Err() error {
	if r == nil || len(r.Failed) == 0 {
		return nil
	}
	return &BatchError{
		DeliveryID: r.DeliveryID,
		Failures:   append([]EntityResult(nil), r.Failed...),
		Total:      len(r.Succeeded) + len(r.Blocked) + len(r.Failed),
	}
}

// BatchError aggregates per-entity failures of a batch whose other entities
// went through.
type BatchError struct {
	DeliveryID string
	Failures   []EntityResult
	Total      int
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("%s@%s: %s", f.Entity.Key(), f.Target, f.Error)
	}
	return fmt.Sprintf("PARTIAL_BATCH_FAILURE: %d of %d entities failed (delivery=%s): %s",
		len(e.Failures), e.Total, e.DeliveryID, strings.Join(parts, "; "))
}

// Unwrap exposes the underlying per-entity errors to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		if f.err != nil {
			errs = append(errs, f.err)
		}
	}
	return errs
}

// IsBatchError reports whether err is a partial batch failure.
func IsBatchError(err error) bool {
	var be *BatchError
	return errors.As(err, &be)
}
