package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code for stable testing
type ErrorCode string

// Error codes for different error categories
const (
	// General errors
	ErrUnknown      ErrorCode = "UNKNOWN"
	ErrInternal     ErrorCode = "INTERNAL"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	ErrNotFound     ErrorCode = "NOT_FOUND"

	// Configuration errors, fatal before the main loop starts
	ErrConfigInvalid   ErrorCode = "CONFIG_INVALID"
	ErrModuleUndefined ErrorCode = "MODULE_UNDEFINED"
	ErrModuleCycle     ErrorCode = "MODULE_CYCLE"
	ErrTriggerTarget   ErrorCode = "TRIGGER_TARGET"
	ErrTriggerDepth    ErrorCode = "TRIGGER_DEPTH"
	ErrSectionImport   ErrorCode = "SECTION_IMPORT"

	// Event listener errors
	ErrListenerUnknown ErrorCode = "LISTENER_UNKNOWN"
	ErrListenerConfig  ErrorCode = "LISTENER_CONFIG"

	// Requirement failures, disable a single module
	ErrRequirement ErrorCode = "REQUIREMENT"

	// Action failures, logged per action and never fatal
	ErrActionInvalid ErrorCode = "ACTION_INVALID"
	ErrActionExecute ErrorCode = "ACTION_EXECUTE"
	ErrRenderFailed  ErrorCode = "RENDER_FAILED"
	ErrShellFailed   ErrorCode = "SHELL_FAILED"
	ErrShellTimeout  ErrorCode = "SHELL_TIMEOUT"
	ErrPlaceholder   ErrorCode = "PLACEHOLDER_UNRESOLVED"

	// Filesystem errors
	ErrFileNotFound  ErrorCode = "FILE_NOT_FOUND"
	ErrFileAccess    ErrorCode = "FILE_ACCESS"
	ErrFileCreate    ErrorCode = "FILE_CREATE"
	ErrSymlinkCreate ErrorCode = "SYMLINK_CREATE"

	// State persistence errors
	ErrStateLoad  ErrorCode = "STATE_LOAD"
	ErrStateWrite ErrorCode = "STATE_WRITE"
)

// SundialError represents a structured error with code and details
type SundialError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *SundialError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *SundialError) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is interface
func (e *SundialError) Is(target error) bool {
	var targetErr *SundialError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new SundialError with the given code and message
func New(code ErrorCode, message string) *SundialError {
	return &SundialError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new SundialError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *SundialError {
	return &SundialError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with a SundialError
func Wrap(err error, code ErrorCode, message string) *SundialError {
	if err == nil {
		return nil
	}
	return &SundialError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *SundialError {
	if err == nil {
		return nil
	}
	return &SundialError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// WithDetail adds a detail to the error
func (e *SundialError) WithDetail(key string, value interface{}) *SundialError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsErrorCode checks if an error has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	var sundialErr *SundialError
	if errors.As(err, &sundialErr) {
		return sundialErr.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error, or ErrUnknown if not a
// SundialError
func GetErrorCode(err error) ErrorCode {
	var sundialErr *SundialError
	if errors.As(err, &sundialErr) {
		return sundialErr.Code
	}
	return ErrUnknown
}

// IsFatal reports whether an error should abort startup. Only configuration
// errors are fatal; everything else is logged and skipped at the action or
// module boundary.
func IsFatal(err error) bool {
	switch GetErrorCode(err) {
	case ErrConfigInvalid, ErrModuleUndefined, ErrModuleCycle,
		ErrTriggerTarget, ErrTriggerDepth, ErrSectionImport,
		ErrListenerUnknown:
		return true
	}
	return false
}
