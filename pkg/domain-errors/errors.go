// Package domainerrors provides coded errors shared by the engines and their
// collaborators. Codes describe what went wrong in domain terms; transports
// translate them (see HTTPStatus).
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error.
type Code string

const (
	CodeInvalidInput   Code = "invalid_input"
	CodeValidation     Code = "validation_error"
	CodeBadRequest     Code = "bad_request"
	CodeNotFound       Code = "not_found"
	CodeConflict       Code = "conflict"
	CodeInvalidState   Code = "invalid_state"
	CodeBelowThreshold Code = "below_threshold"
	CodeInconsistent   Code = "inconsistent_snapshot"
	CodeUnavailable    Code = "unavailable"
	CodeInternal       Code = "internal_error"
)

// Error is a coded error with an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error. A nil err still
// produces a coded error so callers can wrap unconditionally.
func Wrap(err error, code Code, msg string) error {
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf returns the outermost code in the chain, or CodeInternal for uncoded
// errors. A nil error has no code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether any error in the chain carries the code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// Is mirrors errors.Is so callers need a single import.
func Is(err, target error) bool { return errors.Is(err, target) }

// HTTPStatus maps a code to a response status for the admin surface.
func HTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput, CodeValidation, CodeBadRequest:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeInvalidState:
		return http.StatusConflict
	case CodeInconsistent, CodeBelowThreshold:
		return http.StatusUnprocessableEntity
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
