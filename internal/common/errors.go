package common

import "net/http"

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// NotFound builds the 404 returned when an entity lookup misses.
func NotFound(entity string, err error) *AppError {
	return &AppError{Code: "NOT_FOUND", Message: entity + " not found", HTTPStatus: http.StatusNotFound, Err: err}
}

// Conflict builds the 409 returned on duplicate keys and settlement races.
func Conflict(code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: http.StatusConflict, Err: err}
}

// Rejection builds a 422 business-rule rejection (margin protection, empty
// cart, discount gate failures). Distinct from data errors: the request was
// well formed, the business said no.
func Rejection(code, message string, details any) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: http.StatusUnprocessableEntity, Details: details}
}
