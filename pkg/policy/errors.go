package policy

import (
	"errors"
	"fmt"
	"strings"
)

// CodeCompileInProgress is the error code reported when a tenant's compile
// lock is already held.
const CodeCompileInProgress = "COMPILE_IN_PROGRESS"

// ErrCompileInProgress is matched by every ContentionError.
var ErrCompileInProgress = errors.New(CodeCompileInProgress)

// ContentionError is returned when a compile cannot take the tenant's lock.
// No artifact is built and nothing is written.
type ContentionError struct {
	TenantID string
	Cause    error
}

// Error implements the error interface.
func (e *ContentionError) Error() string {
	return fmt.Sprintf("%s: tenant %q is already compiling", CodeCompileInProgress, e.TenantID)
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *ContentionError) Unwrap() error {
	return e.Cause
}

// Is makes errors.Is(err, ErrCompileInProgress) true.
func (e *ContentionError) Is(target error) bool {
	return target == ErrCompileInProgress
}

// Code returns the machine-readable error code.
func (e *ContentionError) Code() string {
	return CodeCompileInProgress
}

// ConfigurationError describes a single malformed rule. The rule is dropped
// and compilation continues.
type ConfigurationError struct {
	// RuleID is the offending rule, or the guardrail / flag name.
	RuleID string

	// Field is the rule field that failed (e.g. "trigger", "action").
	Field string

	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("rule %q: %s: %s", e.RuleID, e.Field, e.Message)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// DependencyError is a cache or store failure during a best-effort side
// effect. It never fails a compile; it is reported alongside the result.
type DependencyError struct {
	// Operation names the side effect, e.g. "publish_artifact".
	Operation string
	Cause     error
}

// Error implements the error interface.
func (e *DependencyError) Error() string {
	return fmt.Sprintf("dependency failure during %s: %v", e.Operation, e.Cause)
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *DependencyError) Unwrap() error {
	return e.Cause
}

// FieldError is one structural problem in a raw policy.
type FieldError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects the structural problems that make a raw policy
// uncompilable. It is returned to the admin-facing caller.
type ValidationError struct {
	TenantID string
	Errors   []FieldError
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("invalid policy for tenant %q: %s", e.TenantID, e.Errors[0].Error())
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "invalid policy for tenant %q: %d errors:", e.TenantID, len(e.Errors))
	for _, fe := range e.Errors {
		sb.WriteString("\n  - ")
		sb.WriteString(fe.Error())
	}
	return sb.String()
}

// Add records a field error.
func (e *ValidationError) Add(field, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message})
}

// HasErrors reports whether any errors were recorded.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// IsContention reports whether err is a compile-lock contention failure.
func IsContention(err error) bool {
	return errors.Is(err, ErrCompileInProgress)
}
