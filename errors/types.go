package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode represents a specific error condition
type ErrorCode string

const (
	// Session registry errors
	ErrCodeAlreadyExists     ErrorCode = "ALREADY_EXISTS"
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrCodePersistFailed     ErrorCode = "PERSIST_FAILED"

	// Scanner errors
	ErrCodeRootNotFound       ErrorCode = "ROOT_NOT_FOUND"
	ErrCodeProbeTimeout       ErrorCode = "PROBE_TIMEOUT"
	ErrCodeInvalidRepository  ErrorCode = "INVALID_REPOSITORY"
	ErrCodeDirectoryReadError ErrorCode = "DIRECTORY_READ_ERROR"

	// Configuration errors
	ErrCodeConfigNotFound ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  ErrorCode = "CONFIG_INVALID"

	// Command execution errors
	ErrCodeCommandFailed ErrorCode = "COMMAND_FAILED"
	ErrCodeCloneFailed   ErrorCode = "CLONE_FAILED"

	// General errors
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// ConductorError represents a structured error with context
type ConductorError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *ConductorError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *ConductorError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *ConductorError) WithDetail(key string, value interface{}) *ConductorError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToJSON converts the error to JSON
func (e *ConductorError) ToJSON() string {
	data, _ := json.MarshalIndent(e, "", "  ")
	return string(data)
}

// New creates a new ConductorError
func New(code ErrorCode, message string) *ConductorError {
	return &ConductorError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a ConductorError
func Wrap(err error, code ErrorCode, message string) *ConductorError {
	return &ConductorError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Is checks if an error is a specific ConductorError code
func Is(err error, code ErrorCode) bool {
	return GetCode(err) == code && code != ""
}

// As returns the first ConductorError in err's chain.
func As(err error) (*ConductorError, bool) {
	for err != nil {
		if ce, ok := err.(*ConductorError); ok {
			return ce, true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = unwrapper.Unwrap()
	}
	return nil, false
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	ce, ok := As(err)
	if !ok {
		return ""
	}
	return ce.Code
}
