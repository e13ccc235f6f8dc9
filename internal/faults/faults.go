// Package faults defines the structured error taxonomy shared by every
// pipeline stage. A Fault carries a stable machine-readable code, a
// human-readable message, and optional details; collaborator errors are
// always wrapped so that a raw SDK error never reaches a caller.
//
// Classification drives control flow: retry loops consult Retryable, the
// orchestrator persists Code and Message onto the failed job record, and
// item-level stage errors are collected rather than propagated.
package faults

import (
	"errors"
	"fmt"
)

// Code identifies a failure category or a component-specific failure.
type Code string

// Category codes.
const (
	// CodeValidation marks bad input. Never retried.
	CodeValidation Code = "ValidationError"
	// CodeDependency marks a transient downstream failure (throttling,
	// network, 5xx-equivalent). Retried with backoff.
	CodeDependency Code = "DependencyError"
	// CodeStageExhausted marks a stage that produced zero usable outputs.
	// Fatal for the job even though individual item failures are tolerated.
	CodeStageExhausted Code = "StageExhausted"
	// CodeTimeout marks a stage-level deadline expiry. Not retried.
	CodeTimeout Code = "Timeout"
	// CodeCancelled marks an externally cancelled operation. Not retried.
	CodeCancelled Code = "Cancelled"
	// CodeInternal marks an unexpected internal failure.
	CodeInternal Code = "InternalError"
)

// Component codes.
const (
	CodeInvalidLocation       Code = "InvalidLocation"
	CodeDetectionFailed       Code = "DetectionFailed"
	CodeSegmentationTimeout   Code = "SegmentationTimeout"
	CodeExtractionFailed      Code = "ExtractionFailed"
	CodeInvalidResponseFormat Code = "InvalidResponseFormat"
	CodeJSONParseFailed       Code = "JSONParseFailed"
	CodeMissingRequiredFields Code = "MissingRequiredFields"
	CodeNoAnalyses            Code = "NoAnalyses"
	CodeChunkSynthesisFailed  Code = "ChunkSynthesisFailed"
	CodePollingTimeout        Code = "PollingTimeout"
	CodeAlreadyPolling        Code = "AlreadyPolling"
	CodePollingCancelled      Code = "PollingCancelled"
	CodeBreakerOpen           Code = "CircuitBreakerOpen"
	CodeJobNotFound           Code = "JobNotFound"
	CodeJobNotCompleted       Code = "JobNotCompleted"
)

// Fault is the structured error surfaced to callers: {code, message, details}.
type Fault struct {
	Code    Code
	Message string
	Details string
	Err     error
}

func (f *Fault) Error() string {
	msg := string(f.Code) + ": " + f.Message
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

// Unwrap exposes the wrapped collaborator error for errors.Is/As chains.
func (f *Fault) Unwrap() error { return f.Err }

// New creates a Fault with a formatted message.
func New(code Code, format string, args ...any) *Fault {
	return &Fault{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a Fault around an underlying error.
func Wrap(code Code, err error, format string, args ...any) *Fault {
	return &Fault{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithDetails returns a copy of the fault carrying diagnostic details
// (e.g. a transcoder's stderr tail or the names of missing JSON fields).
func (f *Fault) WithDetails(details string) *Fault {
	c := *f
	c.Details = details
	return &c
}

// CodeOf returns the code of the outermost Fault in err's chain,
// or CodeInternal if err carries no Fault.
func CodeOf(err error) Code {
	var f *Fault
	if errors.As(err, &f) {
		return f.Code
	}
	return CodeInternal
}

// Is reports whether err's chain contains a Fault with the given code.
func Is(err error, code Code) bool {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if f, ok := e.(*Fault); ok && f.Code == code {
			return true
		}
	}
	return false
}

// Retryable reports whether err represents a transient dependency failure
// that a backoff loop may retry. Everything else (validation, parse errors,
// timeouts, cancellation, an open breaker) is terminal for the attempt.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == CodeDependency
}

// Transient wraps err as a retryable dependency failure.
func Transient(err error, format string, args ...any) *Fault {
	return Wrap(CodeDependency, err, format, args...)
}
