package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrRunTerminal indicates that the run has already reached a terminal state
	ErrRunTerminal = errors.New("run is already terminal")

	// ErrRunNotWaiting indicates an approval was attempted on a run that is not paused
	ErrRunNotWaiting = errors.New("run is not waiting for review")

	// ErrInsufficientCredits indicates that the tenant balance could not cover a deduction
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrCycle indicates that the workflow graph contains a cycle
	ErrCycle = errors.New("workflow graph contains a cycle")

	// ErrRateLimited indicates that an outbound call was rejected by a rate limit
	ErrRateLimited = errors.New("rate limited")

	// ErrBackendUnavailable indicates that both compute pools refused a job
	ErrBackendUnavailable = errors.New("no compute backend available")

	// ErrJobTimeout indicates that job polling exhausted its attempt budget
	ErrJobTimeout = errors.New("job polling timed out")

	// ErrNoMediaInOutput indicates that a completion payload held no recognizable media
	ErrNoMediaInOutput = errors.New("no media in output")

	// ErrUnknownNodeKind indicates a node kind outside the registered set
	ErrUnknownNodeKind = errors.New("unknown node kind")

	// ErrQueueClosed indicates that a request queue was closed while work was pending
	ErrQueueClosed = errors.New("request queue closed")
)

// Error codes used across the engine. Codes are machine readable and stable.
const (
	CodeValidation          = "VALIDATION"
	CodeCycle               = "CYCLE"
	CodePortIncompatible    = "PORT_INCOMPATIBLE"
	CodeNodeExecution       = "NODE_EXECUTION"
	CodeInsufficientCredits = "INSUFFICIENT_CREDITS"
	CodeBackendUnavailable  = "BACKEND_UNAVAILABLE"
	CodeJobTimeout          = "JOB_TIMEOUT"
	CodeUnrecognizedOutput  = "UNRECOGNIZED_OUTPUT"
)

// Error represents a structured engine error
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error, if any
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new engine error
func NewError(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Validation creates a VALIDATION-coded error
func Validation(message string) *Error {
	return NewError(CodeValidation, message, nil)
}

// NodeExecution wraps an executor failure for a specific node
func NodeExecution(nodeID string, err error) *Error {
	return NewError(CodeNodeExecution, fmt.Sprintf("node %s failed", nodeID), err)
}

// CodeOf returns the code of a structured error, or "" for plain errors
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsInsufficientCredits checks if an error is a refused credit deduction
func IsInsufficientCredits(err error) bool {
	return errors.Is(err, ErrInsufficientCredits)
}

// IsCycle checks if an error is a graph cycle error
func IsCycle(err error) bool {
	return errors.Is(err, ErrCycle)
}

// IsRateLimited checks if an error is a rate-limit rejection
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsJobTimeout checks if an error is an exhausted job poll
func IsJobTimeout(err error) bool {
	return errors.Is(err, ErrJobTimeout)
}
