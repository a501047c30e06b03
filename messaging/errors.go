// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"errors"
	"fmt"
)

// MatrixError represents a structured error response from the Matrix
// homeserver. Callers can use errors.As to extract the structured
// information:
//
//	var matrixErr *MatrixError
//	if errors.As(err, &matrixErr) {
//	    if matrixErr.Code == ErrCodeUnknownToken { ... }
//	}
type MatrixError struct {
	// Code is the Matrix error code (e.g., "M_FORBIDDEN", "M_UNKNOWN_TOKEN").
	Code string `json:"errcode"`
	// Message is the human-readable error description from the server.
	Message string `json:"error"`
	// RetryAfterMS is the server's requested wait before retrying, in
	// milliseconds. Only set on M_LIMIT_EXCEEDED responses.
	RetryAfterMS int64 `json:"retry_after_ms,omitempty"`
	// StatusCode is the HTTP status code of the response.
	StatusCode int `json:"-"`
}

func (e *MatrixError) Error() string {
	return fmt.Sprintf("matrix: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Standard Matrix error codes.
const (
	ErrCodeForbidden       = "M_FORBIDDEN"
	ErrCodeUnknownToken    = "M_UNKNOWN_TOKEN"
	ErrCodeMissingToken    = "M_MISSING_TOKEN"
	ErrCodeUserDeactivated = "M_USER_DEACTIVATED"
	ErrCodeNotFound        = "M_NOT_FOUND"
	ErrCodeLimitExceeded   = "M_LIMIT_EXCEEDED"
	ErrCodeUnrecognized    = "M_UNRECOGNIZED"
	ErrCodeUnknown         = "M_UNKNOWN"
	ErrCodeInvalidParam    = "M_INVALID_PARAM"
	ErrCodeRoomInUse       = "M_ROOM_IN_USE"
)

// IsMatrixError checks whether err is a *MatrixError with the given error code.
func IsMatrixError(err error, code string) bool {
	var matrixErr *MatrixError
	if errors.As(err, &matrixErr) {
		return matrixErr.Code == code
	}
	return false
}

// ErrMalformedResponse marks a 2xx response whose body could not be
// decoded as the endpoint's expected JSON shape. The request reached
// the server and succeeded at the HTTP level, so retrying with the
// same parameters is safe — the sync engine treats this differently
// from a transport failure.
var ErrMalformedResponse = errors.New("messaging: malformed response from homeserver")
