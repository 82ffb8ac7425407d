package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure for the execution engine. Retry decisions are made
// on the kind alone, never on store-specific error codes.
type Kind string

const (
	// KindConnectionTransient is a dropped or refused connection, or a transient server condition
	KindConnectionTransient Kind = "CONNECTION_TRANSIENT"
	// KindTimeout is an operator call that exceeded its deadline
	KindTimeout Kind = "TIMEOUT"
	// KindCredentialNotFound is a credential id the provider could not resolve
	KindCredentialNotFound Kind = "CREDENTIAL_NOT_FOUND"
	// KindDDLOrDML is a statement the warehouse rejected
	KindDDLOrDML Kind = "DDL_OR_DML"
	// KindQualityAssertionFailed is one or more data quality checks that did not match
	KindQualityAssertionFailed Kind = "QUALITY_ASSERTION_FAILED"
	// KindCycleDetected is a task graph containing a cycle
	KindCycleDetected Kind = "CYCLE_DETECTED"
	// KindUnknownUpstream is an upstream id that names no task
	KindUnknownUpstream Kind = "UNKNOWN_UPSTREAM"
	// KindDuplicateID is a task id declared more than once
	KindDuplicateID Kind = "DUPLICATE_ID"
	// KindInvalidConfig is a task whose configuration does not fit its operator
	KindInvalidConfig Kind = "INVALID_CONFIG"
	// KindUpstreamFailed is attached to tasks that never ran because an ancestor failed
	KindUpstreamFailed Kind = "UPSTREAM_FAILED"
	// KindDependsOnPast is a task held back because its previous scheduled run did not succeed
	KindDependsOnPast Kind = "DEPENDS_ON_PAST"
	// KindCancelled is a task that never ran because the run was aborted
	KindCancelled Kind = "CANCELLED"
)

// Retriable reports whether a failure of this kind may succeed on another attempt.
func (k Kind) Retriable() bool {
	return k == KindConnectionTransient || k == KindTimeout
}

// TaskError is a structured failure carrying its kind, context and diagnosis hints.
type TaskError struct {
	Kind            Kind
	Message         string
	Operation       string
	Context         map[string]interface{}
	Failures        []string
	Troubleshooting []string
	Cause           error
}

// Error implements the error interface
func (e *TaskError) Error() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s: %s", e.Kind, e.Message))
	if e.Operation != "" {
		sb.WriteString(fmt.Sprintf(" (operation: %s)", e.Operation))
	}
	for i, failure := range e.Failures {
		sb.WriteString(fmt.Sprintf("\n  %d. %s", i+1, failure))
	}
	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	return sb.String()
}

// Unwrap returns the underlying error for errors.Is / errors.As
func (e *TaskError) Unwrap() error {
	return e.Cause
}

// New creates a TaskError of the given kind
func New(kind Kind, message, operation string) *TaskError {
	return &TaskError{
		Kind:      kind,
		Message:   message,
		Operation: operation,
		Context:   make(map[string]interface{}),
	}
}

// Wrap creates a TaskError of the given kind around cause
func Wrap(kind Kind, cause error, operation string) *TaskError {
	msg := "operation failed"
	if cause != nil {
		msg = cause.Error()
	}
	e := New(kind, msg, operation)
	e.Cause = cause
	return e
}

// WithContext adds context information to the error
func (e *TaskError) WithContext(key string, value interface{}) *TaskError {
	e.Context[key] = value
	return e
}

// WithFailures appends individual failure descriptions, e.g. failing checks or cycle members
func (e *TaskError) WithFailures(failures ...string) *TaskError {
	e.Failures = append(e.Failures, failures...)
	return e
}

// WithTroubleshooting adds troubleshooting steps to the error
func (e *TaskError) WithTroubleshooting(steps ...string) *TaskError {
	e.Troubleshooting = append(e.Troubleshooting, steps...)
	return e
}

// WithCause sets the underlying error
func (e *TaskError) WithCause(err error) *TaskError {
	e.Cause = err
	return e
}

// KindOf returns the kind of the first TaskError in err's chain.
// Errors that carry no kind are treated as transient connection failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var te *TaskError
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindConnectionTransient
}

// IsRetriable determines if an error is worth another attempt
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err).Retriable()
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
