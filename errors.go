package restmodel

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeGraphIntegrity       ErrorType = "graph_integrity"
	ErrorTypePatternCompile       ErrorType = "pattern_compile"
	ErrorTypeDeleteConflict       ErrorType = "delete_conflict"
	ErrorTypeGeneratorUnavailable ErrorType = "generator_unavailable"
	ErrorTypeValidation           ErrorType = "validation"
	ErrorTypeNotFound             ErrorType = "not_found"
	ErrorTypeInternal             ErrorType = "internal"
)

// Error is the error type returned across package boundaries.
type Error struct {
	Type    ErrorType      `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Field   string         `json:"field,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s:%s] field '%s': %s", e.Type, e.Code, e.Field, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Type, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetails merges details into the error
func (e *Error) WithDetails(details map[string]any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail adds a single detail
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying cause
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithField sets the offending field
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

const (
	// Graph integrity
	ErrCodeDanglingReference      = "DANGLING_REFERENCE"
	ErrCodeMissingTarget          = "MISSING_TARGET_REPRESENTATION"
	ErrCodeForeignTarget          = "FOREIGN_TARGET_REPRESENTATION"
	ErrCodeDuplicateName          = "DUPLICATE_NAME"
	ErrCodeAmbiguousAttributeKind = "AMBIGUOUS_ATTRIBUTE_KIND"
	ErrCodeDuplicateRow           = "DUPLICATE_ROW"
	ErrCodeForeignAttribute       = "FOREIGN_ATTRIBUTE"
	ErrCodeInvalidEnumValue       = "INVALID_ENUM_VALUE"
	ErrCodeBodyShapeMismatch      = "BODY_SHAPE_MISMATCH"

	// Patterns
	ErrCodeInvalidPattern = "INVALID_PATTERN"

	// Deletion
	ErrCodeReferencedByAttribute      = "REFERENCED_BY_ATTRIBUTE"
	ErrCodeReferencedByRepresentation = "REFERENCED_BY_REPRESENTATION"
	ErrCodeReferencedByResponse       = "REFERENCED_BY_RESPONSE"

	// Generator
	ErrCodeGeneratorFailed      = "GENERATOR_FAILED"
	ErrCodeGeneratorCircuitOpen = "GENERATOR_CIRCUIT_OPEN"

	// Requests and lookups
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeInvalidSchema    = "INVALID_SCHEMA"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeRouteNotFound    = "ROUTE_NOT_FOUND"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

// NewError creates an error of the given type and code
func NewError(errorType ErrorType, code, message string) *Error {
	return &Error{
		Type:    errorType,
		Code:    code,
		Message: message,
		Details: make(map[string]any),
	}
}

// NewGraphIntegrityError reports a graph that violates its structural invariants.
func NewGraphIntegrityError(code, message string) *Error {
	return NewError(ErrorTypeGraphIntegrity, code, message)
}

// NewPatternCompileError reports a regular expression that does not compile.
func NewPatternCompileError(field, pattern string, cause error) *Error {
	return &Error{
		Type:    ErrorTypePatternCompile,
		Code:    ErrCodeInvalidPattern,
		Message: fmt.Sprintf("invalid regular expression %q", pattern),
		Field:   field,
		Cause:   cause,
		Details: map[string]any{"pattern": pattern},
	}
}

// NewDeleteConflictError reports a deletion blocked by a remaining reference.
func NewDeleteConflictError(code, message string) *Error {
	return NewError(ErrorTypeDeleteConflict, code, message)
}

// NewGeneratorUnavailableError wraps a failed instance generator call.
func NewGeneratorUnavailableError(message string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeGeneratorUnavailable,
		Code:    ErrCodeGeneratorFailed,
		Message: message,
		Cause:   cause,
		Details: make(map[string]any),
	}
}

// NewValidationError creates a validation error
func NewValidationError(field, message string) *Error {
	return &Error{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeValidationFailed,
		Message: message,
		Field:   field,
		Details: make(map[string]any),
	}
}

// NewNotFoundError reports a missing record of the given kind.
func NewNotFoundError(kind string, id any) *Error {
	return &Error{
		Type:    ErrorTypeNotFound,
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s %v not found", kind, id),
		Details: map[string]any{"kind": kind, "id": id},
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeInternal,
		Code:    ErrCodeInternalError,
		Message: message,
		Cause:   cause,
		Details: make(map[string]any),
	}
}

// ErrorTypeOf returns the type of the first *Error in err's chain, or
// ErrorTypeInternal when there is none.
func ErrorTypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeInternal
}

// IsErrorType reports whether err carries an *Error of the given type.
func IsErrorType(err error, t ErrorType) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == t
}
