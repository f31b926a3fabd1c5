// Package errors defines the error taxonomy shared by the store, the remote
// client and the sync engine.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code identifies the class of a failure.
type Code string

const (
	// CodeStoreUnavailable means no persistent storage is available. Callers
	// degrade to network-only operation and nothing can be queued.
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"

	// CodeNetwork covers transport failures and non-2xx responses.
	CodeNetwork Code = "NETWORK_ERROR"

	// CodeDecode means the server answered with a 2xx status but the body
	// could not be read. The request itself went through.
	CodeDecode Code = "DECODE_ERROR"

	// CodeNotFound means a requested id is absent from the result set.
	CodeNotFound Code = "NOT_FOUND"

	// CodeValidation means a payload failed validation.
	CodeValidation Code = "VALIDATION_ERROR"

	// CodeInternal is anything else.
	CodeInternal Code = "INTERNAL_ERROR"
)

// Sentinels for use with errors.Is.
var (
	ErrStoreUnavailable = New(CodeStoreUnavailable, "persistent storage is not available")
	ErrNotFound         = New(CodeNotFound, "not found")
)

// Error carries a Code alongside a message and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same Code, so that
// errors.Is(err, ErrNotFound) matches any NOT_FOUND error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New creates an Error without a cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an Error around err.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Is reports whether any error in err's chain carries code.
func Is(err error, code Code) bool {
	var e *Error
	for err != nil {
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Err
	}
	return false
}

// CodeOf returns the Code of the outermost *Error in err's chain, or
// CodeInternal when there is none.
func CodeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
