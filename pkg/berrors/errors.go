// Package berrors provides a single classified error type used across every
// layer of the build engine: the evaluator, the filesystem view, the
// package loader, the configured-target resolver, the action graph
// builder, and the action executor all raise and inspect the same
// vocabulary of error classes so that retry, keep-going, and cycle
// handling can be implemented once.
package berrors

import (
	"errors"
	"fmt"
)

// Class classifies an error for retry and recovery purposes.
type Class string

const (
	// ClassTransient indicates a temporary failure that may succeed on retry,
	// e.g. a network timeout talking to a remote cache.
	ClassTransient Class = "transient"

	// ClassThrottled indicates rate limiting or quota exhaustion on a remote
	// backend. Retried with exponential backoff.
	ClassThrottled Class = "throttled"

	// ClassConflict indicates two declared outputs collide, or an optimistic
	// lock on a cache record failed.
	ClassConflict Class = "conflict"

	// ClassCycle indicates the evaluator detected a request cycle.
	ClassCycle Class = "cycle"

	// ClassPermanent indicates a non-recoverable error: malformed package,
	// unknown target, invalid configuration.
	ClassPermanent Class = "permanent"

	// ClassInternal indicates a violation of an evaluator invariant. Always
	// aborts the build.
	ClassInternal Class = "internal"
)

// Common error codes, attached via WithCode for programmatic handling.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeAlreadyExists    = "ALREADY_EXISTS"
	CodeTimeout          = "TIMEOUT"
	CodeRateLimited      = "RATE_LIMITED"
	CodeConflict         = "CONFLICT"
	CodeInternal         = "INTERNAL_ERROR"
	CodeExecutionFailed  = "EXECUTION_FAILED"
	CodeDependencyFailed = "DEPENDENCY_FAILED"
	CodeCycle            = "CYCLE_DETECTED"
)

// ClassifiedError is the error type every package in this module raises.
type ClassifiedError struct {
	// Class is the error classification driving retry/keep-going behavior.
	Class Class `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional machine-readable code.
	Code string `json:"code,omitempty"`

	// Resource is the key or label that caused the error, if applicable.
	Resource string `json:"resource,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`

	// Details holds additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	switch {
	case e.Resource != "" && e.Operation != "":
		return fmt.Sprintf("[%s] %s (resource=%s, operation=%s): %s",
			e.Class, e.Message, e.Resource, e.Operation, e.unwrapMessage())
	case e.Resource != "":
		return fmt.Sprintf("[%s] %s (resource=%s): %s", e.Class, e.Message, e.Resource, e.unwrapMessage())
	default:
		return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
	}
}

// Unwrap returns the underlying error for error-chain inspection.
func (e *ClassifiedError) Unwrap() error { return e.Err }

func (e *ClassifiedError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements errors.Is comparison based on class and code.
func (e *ClassifiedError) Is(target error) bool {
	t, ok := target.(*ClassifiedError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// New creates a classified error of the given class.
func New(class Class, message string, err error) *ClassifiedError {
	return &ClassifiedError{Class: class, Message: message, Err: err}
}

// NewTransient creates a new transient error.
func NewTransient(message string, err error) *ClassifiedError { return New(ClassTransient, message, err) }

// NewThrottled creates a new throttled error.
func NewThrottled(message string, err error) *ClassifiedError { return New(ClassThrottled, message, err) }

// NewConflict creates a new conflict error.
func NewConflict(message string, err error) *ClassifiedError { return New(ClassConflict, message, err) }

// NewCycle creates a new cycle error.
func NewCycle(message string, err error) *ClassifiedError { return New(ClassCycle, message, err) }

// NewPermanent creates a new permanent error.
func NewPermanent(message string, err error) *ClassifiedError { return New(ClassPermanent, message, err) }

// NewInternal creates a new internal invariant-violation error.
func NewInternal(message string, err error) *ClassifiedError { return New(ClassInternal, message, err) }

// WithResource sets the Resource field and returns the receiver for chaining.
func (e *ClassifiedError) WithResource(resource string) *ClassifiedError {
	e.Resource = resource
	return e
}

// WithOperation sets the Operation field and returns the receiver for chaining.
func (e *ClassifiedError) WithOperation(operation string) *ClassifiedError {
	e.Operation = operation
	return e
}

// WithCode sets the Code field and returns the receiver for chaining.
func (e *ClassifiedError) WithCode(code string) *ClassifiedError {
	e.Code = code
	return e
}

// WithDetail attaches a key/value pair of additional context.
func (e *ClassifiedError) WithDetail(key string, value interface{}) *ClassifiedError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func classIs(err error, class Class) bool {
	var e *ClassifiedError
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}

// IsTransient reports whether err is classified transient.
func IsTransient(err error) bool { return classIs(err, ClassTransient) }

// IsThrottled reports whether err is classified throttled.
func IsThrottled(err error) bool { return classIs(err, ClassThrottled) }

// IsConflict reports whether err is classified conflict.
func IsConflict(err error) bool { return classIs(err, ClassConflict) }

// IsCycle reports whether err is classified a cycle error.
func IsCycle(err error) bool { return classIs(err, ClassCycle) }

// IsPermanent reports whether err is classified permanent.
func IsPermanent(err error) bool { return classIs(err, ClassPermanent) }

// IsInternal reports whether err is classified internal.
func IsInternal(err error) bool { return classIs(err, ClassInternal) }

// IsRetryable reports whether err may succeed if retried: transient,
// throttled, and conflict errors are retryable; cycle, permanent, and
// internal errors are not.
func IsRetryable(err error) bool {
	return IsTransient(err) || IsThrottled(err) || IsConflict(err)
}

// Code extracts the Code field from a classified error, or "" if err is not
// one (or is nil).
func Code(err error) string {
	var e *ClassifiedError
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
