// Package common provides shared utilities used across all features
package common

import (
	"errors"
	"fmt"
	"net/http"
)

// Engine error taxonomy. Every failure raised by the math core wraps exactly one of these.
var (
	// ErrInvalidArgument: zero amount, non-positive liquidity or price, out-of-domain tick,
	// price limit on the wrong side, tick not aligned to spacing, foreign mint.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInsufficientData: a required tick array is absent and cannot be fetched.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrResourceExhausted: the swap needs more tick-array visits than the step cap allows.
	ErrResourceExhausted = errors.New("resource exhausted")
	// ErrArithmeticBounds: underflow of liquidity/amount or a non-positive denominator.
	ErrArithmeticBounds = errors.New("arithmetic bounds")
)

// HttpError represents an HTTP error with status code and message
type HttpError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HttpError) Error() string {
	return fmt.Sprintf("HTTP error: %d %s %s", e.StatusCode, e.Code, e.Message)
}

func messageOrDefault(msg string, defaultMsg string) string {
	if msg != "" {
		return msg
	}
	return defaultMsg
}

func HTTPErrorBadRequest(msg string) *HttpError {
	return &HttpError{
		StatusCode: http.StatusBadRequest,
		Code:       "BAD_REQUEST",
		Message:    messageOrDefault(msg, "Bad request"),
	}
}

func HTTPErrorNotFound(msg string) *HttpError {
	return &HttpError{
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    messageOrDefault(msg, "Not found"),
	}
}

func HTTPErrorUnprocessable(msg string) *HttpError {
	return &HttpError{
		StatusCode: http.StatusUnprocessableEntity,
		Code:       "UNPROCESSABLE_QUOTE",
		Message:    messageOrDefault(msg, "Quote cannot be computed"),
	}
}

func HTTPErrorInternalError(msg string) *HttpError {
	return &HttpError{
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    messageOrDefault(msg, "Internal server error"),
	}
}

// HTTPErrorFromEngine classifies an engine error into the HTTP error it should surface as.
func HTTPErrorFromEngine(err error) *HttpError {
	if err == nil {
		return nil
	}
	var httpErr *HttpError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return HTTPErrorBadRequest(err.Error())
	case errors.Is(err, ErrInsufficientData):
		return HTTPErrorNotFound(err.Error())
	case errors.Is(err, ErrResourceExhausted), errors.Is(err, ErrArithmeticBounds):
		return HTTPErrorUnprocessable(err.Error())
	default:
		return HTTPErrorInternalError(err.Error())
	}
}
