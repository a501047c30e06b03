// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/loomchat/loom/messaging"
)

// FailureKind is the sync loop's verdict on an error: retry, wait, or
// stop. Classification is total — every error maps to exactly one
// kind.
type FailureKind int

const (
	// TransientNetwork covers connection resets, timeouts, 5xx
	// responses, and anything else with no evidence of a permanent
	// problem. Retried with exponential backoff.
	TransientNetwork FailureKind = iota

	// RateLimited means the server returned M_LIMIT_EXCEEDED or HTTP
	// 429. Retried after the longer of the server's retry_after hint
	// and the current backoff.
	RateLimited

	// AuthFailure means the access token is no longer usable
	// (M_UNKNOWN_TOKEN, M_FORBIDDEN, M_USER_DEACTIVATED, or a bare
	// 401). Retrying cannot help; the loop stops.
	AuthFailure

	// MalformedBatch means the server returned 2xx but the response
	// could not be decoded, or lacked a next_batch token. Retried
	// with the same cursor.
	MalformedBatch

	// UnknownServerErrorCode means the server returned an M_* code
	// this client does not recognize on a 4xx response. Treated as
	// retryable: an unknown code from a newer server is more likely
	// transient policy than a permanent client bug.
	UnknownServerErrorCode

	// Fatal means the server rejected the request with a recognized
	// error code that retrying cannot fix (bad filter, invalid
	// parameter). The loop stops.
	Fatal
)

// String returns the kind's name for logs.
func (k FailureKind) String() string {
	switch k {
	case TransientNetwork:
		return "transient_network"
	case RateLimited:
		return "rate_limited"
	case AuthFailure:
		return "auth_failure"
	case MalformedBatch:
		return "malformed_batch"
	case UnknownServerErrorCode:
		return "unknown_server_error_code"
	case Fatal:
		return "fatal"
	default:
		return fmt.Sprintf("FailureKind(%d)", int(k))
	}
}

// Retryable reports whether the sync loop should keep going after a
// failure of this kind.
func (k FailureKind) Retryable() bool {
	return k != AuthFailure && k != Fatal
}

// Failure is a classified sync error.
type Failure struct {
	// Kind is the retry verdict.
	Kind FailureKind
	// Code is the Matrix error code (M_*), when the error carried one.
	Code string
	// StatusCode is the HTTP status, when known. Zero for errors that
	// never reached an HTTP response.
	StatusCode int
	// RetryAfter is the server's requested wait, for RateLimited.
	RetryAfter time.Duration
	// Err is the underlying error.
	Err error
}

// Error implements error.
func (f Failure) Error() string {
	return fmt.Sprintf("mirror: sync failed (%s): %v", f.Kind, f.Err)
}

// Unwrap exposes the underlying error to errors.Is and errors.As.
func (f Failure) Unwrap() error {
	return f.Err
}

// fatalCodes are recognized M_* codes that, on a 4xx response outside
// the rate-limit and auth groups, indicate a request the server will
// never accept.
var fatalCodes = map[string]bool{
	messaging.ErrCodeNotFound:     true,
	messaging.ErrCodeUnrecognized: true,
	messaging.ErrCodeUnknown:      true,
	messaging.ErrCodeInvalidParam: true,
	messaging.ErrCodeRoomInUse:    true,
	messaging.ErrCodeMissingToken: true,
}

// Classify maps a sync error to a Failure. The precedence order is:
// malformed responses, rate limiting, auth failures, server-side 5xx,
// recognized-fatal codes, unrecognized codes, then the transient
// default.
func Classify(err error) Failure {
	if errors.Is(err, messaging.ErrMalformedResponse) {
		return Failure{Kind: MalformedBatch, Err: err}
	}

	var matrixErr *messaging.MatrixError
	if !errors.As(err, &matrixErr) {
		return Failure{Kind: TransientNetwork, Err: err}
	}

	failure := Failure{
		Code:       matrixErr.Code,
		StatusCode: matrixErr.StatusCode,
		Err:        err,
	}

	switch {
	case matrixErr.Code == messaging.ErrCodeLimitExceeded || matrixErr.StatusCode == 429:
		failure.Kind = RateLimited
		failure.RetryAfter = time.Duration(matrixErr.RetryAfterMS) * time.Millisecond
	case matrixErr.Code == messaging.ErrCodeUnknownToken,
		matrixErr.Code == messaging.ErrCodeForbidden,
		matrixErr.Code == messaging.ErrCodeUserDeactivated,
		matrixErr.StatusCode == 401:
		failure.Kind = AuthFailure
	case matrixErr.StatusCode >= 500:
		failure.Kind = TransientNetwork
	case fatalCodes[matrixErr.Code]:
		failure.Kind = Fatal
	case strings.HasPrefix(matrixErr.Code, "M_"):
		failure.Kind = UnknownServerErrorCode
	default:
		failure.Kind = TransientNetwork
	}
	return failure
}
