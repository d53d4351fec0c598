package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/promote/internal/model"
	"github.com/roach88/promote/internal/store"
	"github.com/roach88/promote/internal/transfer"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation rejected or incomplete (conflicts, failed entities, integrity errors)
	ExitCommandError = 2 // Command error (bad arguments, database not found, etc.)
)

// Error codes for JSON output.
const (
	ErrCodeGeneric         = "E001" // Generic/unknown error
	ErrCodeInvalidArgument = "E002" // Malformed flag or argument
	ErrCodeNotFound        = "E005" // Workspace, revision or delivery not found
	ErrCodeDatabase        = "E010" // Database open or query failed
	ErrCodePolicy          = "E011" // Field policy failed to load or validate
	ErrCodePolicyViolation = "E020" // Operation rejected before any write
	ErrCodeDataIntegrity   = "E021" // Revision graph is corrupt for an entity
	ErrCodePartialBatch    = "E022" // Some entities failed, the rest went through
	ErrCodeNeedsInput      = "E023" // Fields still need a selection
	ErrCodeScenarioFailed  = "E030" // Scenario expectations or assertions failed
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E002", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs data. In text mode text renders it; a nil text prints data
// with fmt.
func (f *OutputFormatter) Success(data any, text func(w io.Writer)) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}
	if text == nil {
		fmt.Fprintln(f.Writer, data)
		return nil
	}
	text(f.Writer)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// Fail reports err in the configured format and returns the ExitError the
// command should return.
func (f *OutputFormatter) Fail(message string, err error) error {
	code, exit, details := classify(err)
	if outErr := f.Error(code, fmt.Sprintf("%s: %v", message, err), details); outErr != nil {
		return WrapExitError(ExitCommandError, "writing output", outErr)
	}
	return WrapExitError(exit, message, err)
}

// classify maps an error to its CLI code, exit code and JSON details.
func classify(err error) (string, int, any) {
	var argErr *argumentError
	if errors.As(err, &argErr) {
		return ErrCodeInvalidArgument, ExitCommandError, nil
	}
	var be *transfer.BatchError
	if errors.As(err, &be) {
		return ErrCodePartialBatch, ExitFailure, be.Failures
	}
	var me *model.Error
	if errors.As(err, &me) {
		details := map[string]any{"code": me.Code}
		if len(me.Entities) > 0 {
			keys := make([]string, len(me.Entities))
			for i, e := range me.Entities {
				keys[i] = e.Key()
			}
			details["entities"] = keys
		}
		for k, v := range me.Details {
			details[k] = v
		}
		switch {
		case me.Code == model.ErrCodeUnknownWorkspace:
			return ErrCodeNotFound, ExitCommandError, details
		case me.Kind == model.KindDataIntegrity:
			return ErrCodeDataIntegrity, ExitFailure, details
		default:
			return ErrCodePolicyViolation, ExitFailure, details
		}
	}
	if errors.Is(err, store.ErrNotFound) {
		return ErrCodeNotFound, ExitCommandError, nil
	}
	return ErrCodeGeneric, ExitFailure, nil
}

// argumentError marks malformed command-line input.
type argumentError struct {
	msg string
}

func (e *argumentError) Error() string { return e.msg }

func badArgument(format string, args ...any) error {
	return &argumentError{msg: fmt.Sprintf(format, args...)}
}
