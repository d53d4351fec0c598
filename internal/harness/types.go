package harness

import (
	"fmt"

	"github.com/roach88/promote/internal/model"
)

// Step outcomes recorded in the trace.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// TraceEvent records one executed flow step.
type TraceEvent struct {
	Seq     int64
	Op      string
	Outcome string

	// Code is the error code of a failed step.
	Code string

	// Result summarizes what a successful step produced.
	Result model.Object
}

// Value returns the event as a canonical value.
func (e TraceEvent) Value() model.Object {
	obj := model.Object{
		"seq":     model.Int(e.Seq),
		"op":      model.String(e.Op),
		"outcome": model.String(e.Outcome),
	}
	if e.Code != "" {
		obj["code"] = model.String(e.Code)
	}
	if e.Result != nil {
		obj["result"] = e.Result
	}
	return obj
}

// Result is the outcome of running one scenario.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool

	// Trace lists executed flow steps in order.
	Trace []TraceEvent

	// Errors lists expectation and assertion failures.
	Errors []string
}

// NewResult returns a passing result with an empty trace.
func NewResult() *Result {
	return &Result{Pass: true, Trace: []TraceEvent{}, Errors: []string{}}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}
