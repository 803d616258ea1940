// Package response writes the JSON envelope used by inspirer HTTP handlers.
//
// Successful responses are {"success": true, "data": ...}. Failures carry an
// ErrorDetail as data with success set to false.
package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

// Message is the envelope every JSON response is wrapped in.
type Message[T any] struct {
	Success bool `json:"success"`
	Data    T    `json:"data"`
}

// ErrorDetail is the body of a failed response.
type ErrorDetail struct {
	Error       string `json:"error"`
	Description string `json:"description,omitempty"`
}

// Error is an error that knows how it should be presented to the client.
type Error struct {
	Code   int
	Detail ErrorDetail
	// Cause is logged but never sent to the client.
	Cause error
}

func (e *Error) Error() string {
	str := fmt.Sprintf("http error %d: %s", e.Code, e.Detail.Error)
	if e.Detail.Description != "" {
		str = fmt.Sprintf("%s: %s", str, e.Detail.Description)
	}
	if e.Cause != nil {
		str = fmt.Sprintf("%s (cause: %s)", str, e.Cause.Error())
	}
	return str
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NotFound is returned when the addressed resource does not exist.
func NotFound() *Error {
	return &Error{
		Code: http.StatusNotFound,
		Detail: ErrorDetail{
			Error:       "not_found",
			Description: "Resource was not found",
		},
	}
}

// Internal hides cause from the client behind a generic 500.
func Internal(cause error) *Error {
	return &Error{
		Code: http.StatusInternalServerError,
		Detail: ErrorDetail{
			Error:       "internal_server_error",
			Description: "Internal Server Error",
		},
		Cause: cause,
	}
}

// Unauthorized rejects the request. msg is only logged.
func Unauthorized(msg string) *Error {
	return &Error{
		Code: http.StatusUnauthorized,
		Detail: ErrorDetail{
			Error:       "unauthorized",
			Description: "You do not have permission to access this resource",
		},
		Cause: fmt.Errorf("%s", msg),
	}
}

// BadRequest is the response for any error that is not an *Error.
func BadRequest(cause error) *Error {
	return &Error{
		Code:   http.StatusBadRequest,
		Detail: ErrorDetail{Error: "Bad Request"},
		Cause:  cause,
	}
}

// Custom returns an error with an arbitrary status and body.
func Custom(code int, detail ErrorDetail) *Error {
	return &Error{Code: code, Detail: detail}
}

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, code int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json;charset=UTF-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("failed to write json body: %w", err)
	}
	return nil
}

// OK writes data in a successful envelope.
func OK[T any](w http.ResponseWriter, data T) error {
	return JSON(w, http.StatusOK, Message[T]{Success: true, Data: data})
}

// WriteError handles the passed error appropriately. After calling this, the
// HTTP sequence should be considered complete.
func WriteError(w http.ResponseWriter, r *http.Request, logger logrus.FieldLogger, err error) {
	var rerr *Error
	if !errors.As(err, &rerr) {
		rerr = BadRequest(err)
	}

	l := logger.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"status": rerr.Code,
	})
	if rerr.Code >= http.StatusInternalServerError {
		l.WithError(err).Error("request failed")
	} else {
		l.WithError(err).Debug("request rejected")
	}

	if werr := JSON(w, rerr.Code, Message[ErrorDetail]{Data: rerr.Detail}); werr != nil {
		logger.WithError(werr).Warn("failed to write error response")
	}
}

// Handler adapts a handler returning an error to http.Handler. Returned errors
// are written with WriteError.
type Handler func(w http.ResponseWriter, r *http.Request) error

// Wrap binds a logger to h.
func (h Handler) Wrap(logger logrus.FieldLogger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			WriteError(w, r, logger, err)
		}
	})
}
