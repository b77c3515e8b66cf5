// Package apperr defines the error codes shared by the assembly pipeline,
// the batch linker and the HTTP API.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error condition. Codes are strings so they serialize
// naturally into API error envelopes and logs.
type Code string

const (
	// CodeDataUnavailable means a table snapshot could not be fetched from the
	// record source. The whole assembly is abandoned; callers may retry.
	CodeDataUnavailable Code = "DATA_UNAVAILABLE"

	// CodeMalformedTable means a source table is structurally broken
	// (duplicate or empty record ids).
	CodeMalformedTable Code = "MALFORMED_TABLE"

	// CodeInvalidConfig covers malformed taxonomies and unusable settings.
	CodeInvalidConfig Code = "INVALID_CONFIGURATION"

	CodeNotFound     Code = "NOT_FOUND"
	CodeNotConfirmed Code = "NOT_CONFIRMED"
	CodeInternal     Code = "INTERNAL"
)

// Error is a coded error with an optional wrapped cause.
type Error struct {
	Code      Code
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error with the given code and message.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Retryable: code == CodeDataUnavailable}
}

// Newf is New with a format string.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches a code to err. A nil err yields nil.
func Wrap(code Code, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Retryable: code == CodeDataUnavailable, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or
// CodeInternal when there is none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsRetryable reports whether err carries a retryable code.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// HTTPStatus maps a code onto the status the API responds with.
func HTTPStatus(code Code) int {
	switch code {
	case CodeDataUnavailable:
		return http.StatusServiceUnavailable
	case CodeNotFound:
		return http.StatusNotFound
	case CodeNotConfirmed, CodeInvalidConfig:
		return http.StatusBadRequest
	case CodeMalformedTable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
