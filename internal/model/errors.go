package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the top-level error taxonomy for reconciliation.
type ErrorKind string

const (
	// KindDataIntegrity aborts the current entity's reconciliation but never
	// an entire batch.
	KindDataIntegrity ErrorKind = "data_integrity"

	// KindPolicyViolation is rejected before any mutation.
	KindPolicyViolation ErrorKind = "policy_violation"
)

// ErrorCode identifies the specific failure within a kind.
type ErrorCode string

const (
	ErrCodeCycleDetected     ErrorCode = "CYCLE_DETECTED"
	ErrCodeDepthExceeded     ErrorCode = "DEPTH_EXCEEDED"
	ErrCodeMissingRevision   ErrorCode = "MISSING_REVISION"
	ErrCodeForeignRevision   ErrorCode = "FOREIGN_REVISION"
	ErrCodeDuplicateRevision ErrorCode = "DUPLICATE_REVISION"
	ErrCodeWorkspaceTree     ErrorCode = "INVALID_WORKSPACE_TREE"
	ErrCodeUnknownWorkspace  ErrorCode = "UNKNOWN_WORKSPACE"
	ErrCodeConflictBlocked   ErrorCode = "CONFLICT_BLOCKED"
	ErrCodeTargetNotAllowed  ErrorCode = "TARGET_NOT_ALLOWED"
	ErrCodeDeliveryClosed    ErrorCode = "DELIVERY_CLOSED"
	ErrCodeInvalidSelection  ErrorCode = "INVALID_SELECTION"
	ErrCodeEmptyDelivery     ErrorCode = "EMPTY_DELIVERY"
)

// Error is a structured reconciliation error.
type Error struct {
	Kind      ErrorKind
	Code      ErrorCode
	Message   string
	Entity    EntityRef
	Revision  RevisionID
	Workspace string

	// Entities lists every entity implicated, for errors that reject a whole
	// operation (e.g. a pull blocked by several conflicts).
	Entities []EntityRef

	Details map[string]string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)

	var ctx []string
	if e.Entity.Type != "" {
		ctx = append(ctx, "entity="+e.Entity.Key())
	}
	if e.Revision != NoRevision {
		ctx = append(ctx, "revision="+e.Revision.String())
	}
	if e.Workspace != "" {
		ctx = append(ctx, "workspace="+e.Workspace)
	}
	if len(ctx) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(ctx, ", "))
	}
	return b.String()
}

func hasKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsDataIntegrity reports whether err is a data-integrity error.
// Uses errors.As so wrapped errors match.
func IsDataIntegrity(err error) bool {
	return hasKind(err, KindDataIntegrity)
}

// IsPolicyViolation reports whether err is a policy violation.
func IsPolicyViolation(err error) bool {
	return hasKind(err, KindPolicyViolation)
}

// HasCode reports whether err is an *Error with the given code.
func HasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsCycle reports whether err is an ancestry or workspace cycle.
func IsCycle(err error) bool {
	return HasCode(err, ErrCodeCycleDetected)
}

// NewCycleError reports a revisited revision during an ancestry walk.
func NewCycleError(entity EntityRef, at RevisionID, path []RevisionID) *Error {
	parts := make([]string, len(path))
	for i, id := range path {
		parts[i] = id.String()
	}
	return &Error{
		Kind:     KindDataIntegrity,
		Code:     ErrCodeCycleDetected,
		Message:  "parent pointers form a cycle",
		Entity:   entity,
		Revision: at,
		Details:  map[string]string{"path": strings.Join(parts, " -> ")},
	}
}

// NewMissingRevisionError reports a revision expected in the entity's history.
func NewMissingRevisionError(entity EntityRef, id RevisionID) *Error {
	return &Error{
		Kind:     KindDataIntegrity,
		Code:     ErrCodeMissingRevision,
		Message:  "revision not found in entity history",
		Entity:   entity,
		Revision: id,
	}
}

// NewPolicyViolation creates a policy violation error.
func NewPolicyViolation(code ErrorCode, message string) *Error {
	return &Error{
		Kind:    KindPolicyViolation,
		Code:    code,
		Message: message,
	}
}

// NewDataIntegrityError creates a data-integrity error for entity.
func NewDataIntegrityError(code ErrorCode, entity EntityRef, message string) *Error {
	return &Error{
		Kind:    KindDataIntegrity,
		Code:    code,
		Message: message,
		Entity:  entity,
	}
}
