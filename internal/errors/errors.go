// Package errors provides structured error types for the weft federation
// layer. All errors include a category, code, message, and retryable flag
// for consistent handling across components.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategorySchema    ErrorCategory = "SCHEMA"
	ErrCategoryRelation  ErrorCategory = "RELATION"
	ErrCategoryQuery     ErrorCategory = "QUERY"
	ErrCategoryBackend   ErrorCategory = "BACKEND"
	ErrCategoryExecution ErrorCategory = "EXECUTION"
	ErrCategoryInternal  ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Schema codes (load-time, fatal)
	CodeInvalidSchema          = "INVALID_SCHEMA"
	CodeDuplicateAlias         = "DUPLICATE_ALIAS"
	CodeDuplicateSchema        = "DUPLICATE_SCHEMA"
	CodeUnsupportedAggregation = "UNSUPPORTED_AGGREGATION"

	// Relation codes (load-time, fatal)
	CodeReferentialIntegrity = "REFERENTIAL_INTEGRITY"
	CodeRelationCycle        = "RELATION_CYCLE"

	// Query codes (request-time, returned to caller)
	CodeUnknownField    = "UNKNOWN_FIELD"
	CodeAmbiguousField  = "AMBIGUOUS_FIELD"
	CodeTypeMismatch    = "TYPE_MISMATCH"
	CodeRestrictedField = "RESTRICTED_FIELD"
	CodeInvalidRequest  = "INVALID_REQUEST"

	// Backend codes
	CodeTransientBackend = "TRANSIENT"
	CodeFatalBackend     = "FATAL"

	// Execution codes
	CodePartialData      = "PARTIAL_DATA"
	CodeDeadlineExceeded = "DEADLINE_EXCEEDED"
	CodeJoinAmbiguity    = "JOIN_AMBIGUITY"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// WeftError is the structured error type used throughout the system.
type WeftError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *WeftError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *WeftError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *WeftError) Is(target error) bool {
	var t *WeftError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new WeftError.
func New(category ErrorCategory, code, message string) *WeftError {
	return &WeftError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new WeftError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *WeftError {
	return &WeftError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *WeftError) WithDetails(details map[string]interface{}) *WeftError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var we *WeftError
	if errors.As(err, &we) {
		return we.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a WeftError.
func GetCategory(err error) ErrorCategory {
	var we *WeftError
	if errors.As(err, &we) {
		return we.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a WeftError.
func GetCode(err error) string {
	var we *WeftError
	if errors.As(err, &we) {
		return we.Code
	}
	return ""
}

// isRetryable determines if an error code is retryable.
// Only transient backend faults are retried; everything else either fails
// the load, the step, or the query.
func isRetryable(category ErrorCategory, code string) bool {
	return category == ErrCategoryBackend && code == CodeTransientBackend
}

// Convenience constructors named after the error kinds surfaced to callers.

// NewSchemaValidationError reports a fatal load-time schema defect.
func NewSchemaValidationError(code, message string) *WeftError {
	return New(ErrCategorySchema, code, message)
}

// NewReferentialIntegrityError reports an unresolved join column or a
// relation cycle at load time.
func NewReferentialIntegrityError(code, message string) *WeftError {
	return New(ErrCategoryRelation, code, message)
}

// NewUnknownFieldError reports a requested alias not found in any schema
// reachable from the query root.
func NewUnknownFieldError(field string) *WeftError {
	return New(ErrCategoryQuery, CodeUnknownField,
		fmt.Sprintf("field %q not found in any reachable schema", field))
}

// NewAmbiguousFieldError reports an unqualified alias matching more than
// one reachable schema with no priority winner.
func NewAmbiguousFieldError(field string, entities []string) *WeftError {
	return New(ErrCategoryQuery, CodeAmbiguousField,
		fmt.Sprintf("field %q is ambiguous across schemas %v; qualify it with a relation alias", field, entities))
}

// NewTypeMismatchError reports a value or aggregation incompatible with a
// field's declared type.
func NewTypeMismatchError(message string) *WeftError {
	return New(ErrCategoryQuery, CodeTypeMismatch, message)
}

// NewTransientBackendError reports a retryable backend fault such as a
// timeout or connection reset.
func NewTransientBackendError(message string, cause error) *WeftError {
	return Wrap(ErrCategoryBackend, CodeTransientBackend, message, cause)
}

// NewFatalBackendError reports a non-retryable backend fault such as a
// malformed response or an authentication failure.
func NewFatalBackendError(message string, cause error) *WeftError {
	return Wrap(ErrCategoryBackend, CodeFatalBackend, message, cause)
}

// NewPartialDataError reports that a step required to satisfy a requested
// field ultimately failed.
func NewPartialDataError(entity string, cause error) *WeftError {
	return Wrap(ErrCategoryExecution, CodePartialData,
		fmt.Sprintf("required fetch for entity %q failed", entity), cause)
}

// NewDeadlineExceededError reports that the query deadline was reached.
func NewDeadlineExceededError(cause error) *WeftError {
	return Wrap(ErrCategoryExecution, CodeDeadlineExceeded, "query deadline exceeded", cause)
}

// NewInternalError wraps an unexpected fault.
func NewInternalError(message string, cause error) *WeftError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
