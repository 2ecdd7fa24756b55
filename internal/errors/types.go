// Package errors provides the structured error type shared by plantctl
// packages. Errors carry a category and a stable code so the CLI can pick an
// exit status and tests can match on them with errors.Is.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeRender     ErrorType = "render"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// PlantError is a structured error type with context.
type PlantError struct {
	Type    ErrorType
	Code    string
	Message string
	Cause   error
	Context map[string]interface{}
	Path    string
}

// Error implements the error interface.
func (e *PlantError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Path != "" {
		parts = append(parts, e.Path+":")
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *PlantError) Unwrap() error {
	return e.Cause
}

// Is matches another PlantError with the same type and code.
func (e *PlantError) Is(target error) bool {
	var t *PlantError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *PlantError) WithContext(key string, value interface{}) *PlantError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithPath attaches the file the error refers to.
func (e *PlantError) WithPath(path string) *PlantError {
	e.Path = path

	return e
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *PlantError {
	return &PlantError{Type: ErrorTypeValidation, Code: code, Message: message}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *PlantError {
	return &PlantError{Type: ErrorTypeIO, Code: code, Message: message, Cause: cause}
}

// NewNetworkError creates a network error.
func NewNetworkError(code, message string, cause error) *PlantError {
	return &PlantError{Type: ErrorTypeNetwork, Code: code, Message: message, Cause: cause}
}

// NewRenderError creates an error for a failed diagram rendering.
func NewRenderError(code, message string, cause error) *PlantError {
	return &PlantError{Type: ErrorTypeRender, Code: code, Message: message, Cause: cause}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *PlantError {
	return &PlantError{Type: ErrorTypeConfig, Code: code, Message: message}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *PlantError {
	return &PlantError{Type: ErrorTypeInternal, Code: code, Message: message, Cause: cause}
}

// IsType reports whether err is a PlantError of the given type.
func IsType(err error, typ ErrorType) bool {
	var pe *PlantError
	if errors.As(err, &pe) {
		return pe.Type == typ
	}

	return false
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	return IsType(err, ErrorTypeValidation)
}

// ExitCode maps an error to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var pe *PlantError
	if !errors.As(err, &pe) {
		return 1
	}

	switch pe.Type {
	case ErrorTypeValidation, ErrorTypeConfig:
		return 2
	case ErrorTypeRender, ErrorTypeNetwork:
		return 3
	default:
		return 1
	}
}

// Common error codes.
const (
	ErrCodeInvalidConcurrency = "ERR_INVALID_CONCURRENCY"
	ErrCodeInvalidPolicy      = "ERR_INVALID_POLICY"
	ErrCodeInvalidFormat      = "ERR_INVALID_FORMAT"
	ErrCodeInvalidHost        = "ERR_INVALID_HOST"
	ErrCodeInvalidPath        = "ERR_INVALID_PATH"
	ErrCodeOutputMismatch     = "ERR_OUTPUT_MISMATCH"
	ErrCodeFileNotFound       = "ERR_FILE_NOT_FOUND"
	ErrCodeNotAFile           = "ERR_NOT_A_FILE"
	ErrCodePermissionDenied   = "ERR_PERMISSION_DENIED"
	ErrCodeExecFailed         = "ERR_EXEC_FAILED"
	ErrCodeNoOutput           = "ERR_NO_OUTPUT"
	ErrCodeBadVersion         = "ERR_BAD_VERSION"
	ErrCodeUnsupportedFormat  = "ERR_UNSUPPORTED_FORMAT"
	ErrCodeHTTPStatus         = "ERR_HTTP_STATUS"
	ErrCodeChecksumMismatch   = "ERR_CHECKSUM_MISMATCH"
	ErrCodeSizeMismatch       = "ERR_SIZE_MISMATCH"
	ErrCodeNoRenderer         = "ERR_NO_RENDERER"
	ErrCodeTextGraph          = "ERR_TEXT_GRAPH"
	ErrCodeConfigInvalid      = "ERR_CONFIG_INVALID"
	ErrCodeDecode             = "ERR_DECODE"
	ErrCodeInternalError      = "ERR_INTERNAL"
)

// FieldValidationError describes a single invalid field.
type FieldValidationError struct {
	FieldName    string
	FieldValue   interface{}
	ErrorMessage string
}

// Error implements the error interface.
func (fve *FieldValidationError) Error() string {
	return fmt.Sprintf("validation error in field '%s': %s", fve.FieldName, fve.ErrorMessage)
}

// ValidationErrorCollection represents a collection of validation errors.
type ValidationErrorCollection struct {
	Errors []*FieldValidationError
}

// AddField adds a field validation error to the collection.
func (vec *ValidationErrorCollection) AddField(field string, value interface{}, message string) {
	vec.Errors = append(vec.Errors, &FieldValidationError{
		FieldName:    field,
		FieldValue:   value,
		ErrorMessage: message,
	})
}

// HasErrors returns true if there are any validation errors.
func (vec *ValidationErrorCollection) HasErrors() bool {
	return len(vec.Errors) > 0
}

// ToPlantError converts the collection to a single config error, or nil.
func (vec *ValidationErrorCollection) ToPlantError() *PlantError {
	if !vec.HasErrors() {
		return nil
	}

	messages := make([]string, 0, len(vec.Errors))
	err := NewConfigError(ErrCodeConfigInvalid, "")
	for _, fe := range vec.Errors {
		messages = append(messages, fe.Error())
		err.WithContext(fe.FieldName, fe.FieldValue)
	}
	err.Message = strings.Join(messages, "; ")

	return err
}
