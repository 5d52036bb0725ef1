// Package apperrors defines the small set of error shapes the transport
// layer needs to distinguish: client mistakes, missing resources, and
// unrecoverable internal failures. Child process failures are deliberately
// not represented here — they surface as an ordinary negative return code.
package apperrors

import (
	"fmt"
	"net/http"
)

// Code identifies the category of an AppError independent of its message.
type Code string

const (
	CodeBadRequest Code = "bad_request"
	CodeNotFound   Code = "not_found"
	CodeInternal   Code = "internal_error"
)

// AppError is a client-facing error carrying the HTTP status it should be
// rendered with alongside an optional wrapped cause for logging.
type AppError struct {
	Code       Code
	Message    string
	HTTPStatus int
	Err        error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// BadRequest builds a 400 error for malformed client input.
func BadRequest(message string) *AppError {
	return &AppError{Code: CodeBadRequest, Message: message, HTTPStatus: http.StatusBadRequest}
}

// NotFound builds a 404 error for a missing script or execution.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s %q not found", resource, id),
		HTTPStatus: http.StatusNotFound,
	}
}

// Internal builds a 500 error wrapping an unexpected failure.
func Internal(message string, err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}
