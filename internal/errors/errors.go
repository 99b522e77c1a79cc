package errors

import "fmt"

// ErrorCode represents a tars error code.
type ErrorCode string

const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"           // 400
	ErrNotFound           ErrorCode = "NOT_FOUND"                 // 404
	ErrFileNotFound       ErrorCode = "FILE_NOT_FOUND"            // 404
	ErrHotkeyRegistration ErrorCode = "HOTKEY_REGISTRATION_ERROR" // 409
	ErrNotConfigured      ErrorCode = "NOT_CONFIGURED"            // 412
	ErrCancelled          ErrorCode = "CANCELLED"                 // 499
	ErrClipboard          ErrorCode = "CLIPBOARD_ERROR"           // 502
	ErrCapture            ErrorCode = "CAPTURE_ERROR"             // 502
	ErrModel              ErrorCode = "MODEL_ERROR"               // 502
	ErrInternal           ErrorCode = "INTERNAL"                  // 500
)

// TarsError represents a structured error with code, status, and details.
type TarsError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	cause   error
}

// Error implements the error interface.
func (e *TarsError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying capability error, if any.
func (e *TarsError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *TarsError {
	return &TarsError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for when a turn cannot be found.
func NewNotFound(identifier string) *TarsError {
	return &TarsError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("turn not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewFileNotFound creates a 404 error for a missing import file.
func NewFileNotFound(path string) *TarsError {
	return &TarsError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewHotkeyRegistration creates a 409 error for a combo that could not be bound.
func NewHotkeyRegistration(combo, reason string) *TarsError {
	return &TarsError{
		Code:    ErrHotkeyRegistration,
		Status:  409,
		Message: fmt.Sprintf("cannot register hotkey %q: %s", combo, reason),
		Details: map[string]any{"combo": combo},
	}
}

// NewNotConfigured creates a 412 error for a capability missing its configuration.
func NewNotConfigured(what string) *TarsError {
	return &TarsError{
		Code:    ErrNotConfigured,
		Status:  412,
		Message: fmt.Sprintf("%s is not configured", what),
		Details: map[string]any{"setting": what},
	}
}

// NewCancelled creates a 499 error for an operation stopped by its context.
func NewCancelled(op string) *TarsError {
	return &TarsError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", op),
	}
}

// NewClipboard wraps a clipboard read, write or window-show failure.
func NewClipboard(op string, err error) *TarsError {
	return newCapability(ErrClipboard, op, err)
}

// NewCapture wraps a screen capture failure.
func NewCapture(err error) *TarsError {
	return newCapability(ErrCapture, "capture", err)
}

// NewModel wraps a model invocation failure.
func NewModel(model string, err error) *TarsError {
	e := newCapability(ErrModel, "generate", err)
	e.Details = map[string]any{"model": model}
	return e
}

func newCapability(code ErrorCode, op string, err error) *TarsError {
	msg := op + " failed"
	if err != nil {
		msg = fmt.Sprintf("%s failed: %v", op, err)
	}
	return &TarsError{
		Code:    code,
		Status:  502,
		Message: msg,
		cause:   err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *TarsError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &TarsError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if an error is a TarsError with the given code.
func Is(err error, code ErrorCode) bool {
	if tErr, ok := err.(*TarsError); ok {
		return tErr.Code == code
	}
	return false
}
