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

	// Configuration errors
	ErrConfigLoad  ErrorCode = "CONFIG_LOAD"
	ErrConfigParse ErrorCode = "CONFIG_PARSE"

	// Archive errors
	ErrUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"
	ErrCorruptArchive    ErrorCode = "CORRUPT_ARCHIVE"
	ErrPathOutsideRoot   ErrorCode = "PATH_OUTSIDE_ROOT"

	// FTP errors
	ErrFTPBadServer   ErrorCode = "FTP_BAD_SERVER"
	ErrFTPBadResponse ErrorCode = "FTP_BAD_RESPONSE"
	ErrFTPBadUsername ErrorCode = "FTP_BAD_USERNAME"
	ErrFTPBadPassword ErrorCode = "FTP_BAD_PASSWORD"
	ErrFTPTimeout     ErrorCode = "FTP_TIMEOUT"
	ErrFTPNotReady    ErrorCode = "FTP_NOT_READY"

	// Manifest and script errors
	ErrManifestInvalid ErrorCode = "MANIFEST_INVALID"
	ErrManifestNoMatch ErrorCode = "MANIFEST_NO_MATCH"
	ErrScriptInvalid   ErrorCode = "SCRIPT_INVALID"
	ErrVersionInvalid  ErrorCode = "VERSION_INVALID"

	// FileSystem errors
	ErrPermission ErrorCode = "PERMISSION"
	ErrFileAccess ErrorCode = "FILE_ACCESS"
	ErrFileWrite  ErrorCode = "FILE_WRITE"

	// Lifecycle errors
	ErrNotInstalled     ErrorCode = "NOT_INSTALLED"
	ErrAlreadyInstalled ErrorCode = "ALREADY_INSTALLED"
	ErrNoUpgrade        ErrorCode = "NO_UPGRADE"
	ErrInstallFailed    ErrorCode = "INSTALL_FAILED"
	ErrSourceFetch      ErrorCode = "SOURCE_FETCH"
)

// ModError represents a structured error with code and details
type ModError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *ModError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *ModError) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is interface
func (e *ModError) Is(target error) bool {
	var targetErr *ModError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new ModError with the given code and message
func New(code ErrorCode, message string) *ModError {
	return &ModError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new ModError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *ModError {
	return &ModError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with a ModError
func Wrap(err error, code ErrorCode, message string) *ModError {
	if err == nil {
		return nil
	}
	return &ModError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *ModError {
	if err == nil {
		return nil
	}
	return &ModError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// WithDetail adds a detail to the error
func (e *ModError) WithDetail(key string, value interface{}) *ModError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsErrorCode checks if an error has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	var modErr *ModError
	if errors.As(err, &modErr) {
		return modErr.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error, or ErrUnknown if not a ModError
func GetErrorCode(err error) ErrorCode {
	var modErr *ModError
	if errors.As(err, &modErr) {
		return modErr.Code
	}
	return ErrUnknown
}

// GetErrorDetails returns the details from an error, or nil if not a ModError
func GetErrorDetails(err error) map[string]interface{} {
	var modErr *ModError
	if errors.As(err, &modErr) {
		return modErr.Details
	}
	return nil
}
