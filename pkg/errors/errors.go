// Package errors provides the structured error type used across grilobridge: an error code,
// a category derived from it, and the component/operation that raised it.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode represents a structured error code.
type ErrorCode string

const (
	// Source operation errors
	ErrCodeUnimplemented     ErrorCode = "UNIMPLEMENTED"
	ErrCodeInvalidIdentifier ErrorCode = "INVALID_IDENTIFIER"
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeBackendError      ErrorCode = "BACKEND_ERROR"
	ErrCodeProtocolViolation ErrorCode = "PROTOCOL_VIOLATION"
	ErrCodeOperationCanceled ErrorCode = "OPERATION_CANCELED"

	// Property errors
	ErrCodeInvalidProperty ErrorCode = "INVALID_PROPERTY"
	ErrCodeInvalidValue    ErrorCode = "INVALID_VALUE"

	// Configuration errors
	ErrCodeInvalidConfig    ErrorCode = "INVALID_CONFIG"
	ErrCodeConfigLoad       ErrorCode = "CONFIG_LOAD"
	ErrCodeConfigSave       ErrorCode = "CONFIG_SAVE"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"

	// Lifecycle errors
	ErrCodeAlreadyInitialized ErrorCode = "ALREADY_INITIALIZED"
	ErrCodeNotInitialized     ErrorCode = "NOT_INITIALIZED"
	ErrCodeRegistration       ErrorCode = "REGISTRATION"

	// Internal errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrCodeUnknownError  ErrorCode = "UNKNOWN_ERROR"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategorySource        ErrorCategory = "source"
	CategoryBackend       ErrorCategory = "backend"
	CategoryProperty      ErrorCategory = "property"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryLifecycle     ErrorCategory = "lifecycle"
	CategoryInternal      ErrorCategory = "internal"
)

var categories = map[ErrorCode]ErrorCategory{
	ErrCodeUnimplemented:      CategorySource,
	ErrCodeInvalidIdentifier:  CategorySource,
	ErrCodeNotFound:           CategorySource,
	ErrCodeOperationCanceled:  CategorySource,
	ErrCodeBackendError:       CategoryBackend,
	ErrCodeProtocolViolation:  CategoryBackend,
	ErrCodeInvalidProperty:    CategoryProperty,
	ErrCodeInvalidValue:       CategoryProperty,
	ErrCodeInvalidConfig:      CategoryConfiguration,
	ErrCodeConfigLoad:         CategoryConfiguration,
	ErrCodeConfigSave:         CategoryConfiguration,
	ErrCodeConfigValidation:   CategoryConfiguration,
	ErrCodeAlreadyInitialized: CategoryLifecycle,
	ErrCodeNotInitialized:     CategoryLifecycle,
	ErrCodeRegistration:       CategoryLifecycle,
}

// BridgeError represents a structured error with context and metadata.
type BridgeError struct {
	Code     ErrorCode              `json:"code"`
	Category ErrorCategory          `json:"category"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`

	Cause     error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`

	Component string `json:"component,omitempty"`
	Operation string `json:"operation,omitempty"`

	Stack string `json:"stack,omitempty"`
}

// Error implements the error interface.
func (e *BridgeError) Error() string {
	var msg string
	switch {
	case e.Component != "" && e.Operation != "":
		msg = fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
	case e.Component != "":
		msg = fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, e.Message)
	default:
		msg = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *BridgeError) Unwrap() error {
	return e.Cause
}

// Is matches another BridgeError carrying the same code.
func (e *BridgeError) Is(target error) bool {
	if other, ok := target.(*BridgeError); ok {
		return e.Code == other.Code
	}
	return false
}

// String returns a detailed string representation for logging.
func (e *BridgeError) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Code=%s", e.Code))
	parts = append(parts, fmt.Sprintf("Category=%s", e.Category))
	parts = append(parts, fmt.Sprintf("Message=%q", e.Message))

	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}
	if len(e.Details) > 0 {
		details, _ := json.Marshal(e.Details)
		parts = append(parts, fmt.Sprintf("Details=%s", details))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}

	return fmt.Sprintf("BridgeError{%s}", strings.Join(parts, ", "))
}

// JSON returns the error as a JSON string.
func (e *BridgeError) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal error: %s"}`, err.Error())
	}
	return string(data)
}

// NewError creates a new error with default values.
func NewError(code ErrorCode, message string) *BridgeError {
	return &BridgeError{
		Code:      code,
		Category:  GetCategory(code),
		Message:   message,
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
	}
}

// Wrap creates an error with code and message whose cause is err.
func Wrap(code ErrorCode, message string, err error) *BridgeError {
	return NewError(code, message).WithCause(err)
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	if c, ok := categories[code]; ok {
		return c
	}
	return CategoryInternal
}

// CodeOf returns the code of the outermost BridgeError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var be *BridgeError
	if stderrors.As(err, &be) {
		return be.Code
	}
	return ""
}

// IsCode reports whether any BridgeError in err's chain carries code.
func IsCode(err error, code ErrorCode) bool {
	return stderrors.Is(err, &BridgeError{Code: code})
}

// CaptureStack captures the current stack trace for debugging.
func CaptureStack(skip int) string {
	const depth = 10
	var pcs [depth]uintptr
	n := runtime.Callers(skip+2, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var stack []string
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "errors.go") {
			stack = append(stack, fmt.Sprintf("%s:%d %s", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}
	return strings.Join(stack, "\n")
}

// WithDetail adds detailed information to an error
func (e *BridgeError) WithDetail(key string, value interface{}) *BridgeError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithComponent sets the component for an error
func (e *BridgeError) WithComponent(component string) *BridgeError {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error
func (e *BridgeError) WithOperation(operation string) *BridgeError {
	e.Operation = operation
	return e
}

// WithCause sets the underlying cause
func (e *BridgeError) WithCause(cause error) *BridgeError {
	e.Cause = cause
	return e
}

// WithStack captures the current stack trace
func (e *BridgeError) WithStack() *BridgeError {
	e.Stack = CaptureStack(2)
	return e
}
