// Package server provides the HTTP API for keyword research.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/keyword-agent/internal/research"
	"github.com/jonathan/keyword-agent/internal/types"
)

// ErrBadRequest indicates a request body that could not be decoded
type ErrBadRequest struct {
	Message string
	Cause   error
}

func (e *ErrBadRequest) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ErrBadRequest) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var validationErr *types.ValidationError
	var badRequest *ErrBadRequest

	switch {
	case errors.As(err, &validationErr), errors.As(err, &badRequest):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// client went away; the status is only seen in logs
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// ErrorBody is the JSON error envelope
type ErrorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
	Stage string `json:"stage,omitempty"`
}

func errorBody(err error) ErrorBody {
	body := ErrorBody{Error: err.Error()}

	var validationErr *types.ValidationError
	if errors.As(err, &validationErr) {
		body.Field = validationErr.Field
	}
	var stageErr *research.StageError
	if errors.As(err, &stageErr) {
		body.Stage = string(stageErr.Stage)
	}
	return body
}
