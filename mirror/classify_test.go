// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/loomchat/loom/messaging"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		wantKind       FailureKind
		wantRetryable  bool
		wantRetryAfter time.Duration
	}{
		{
			name:          "plain network error",
			err:           errors.New("dial tcp: connection refused"),
			wantKind:      TransientNetwork,
			wantRetryable: true,
		},
		{
			name: "rate limit with hint",
			err: &messaging.MatrixError{
				Code:         messaging.ErrCodeLimitExceeded,
				StatusCode:   429,
				RetryAfterMS: 2000,
			},
			wantKind:       RateLimited,
			wantRetryable:  true,
			wantRetryAfter: 2 * time.Second,
		},
		{
			name:          "429 without matrix code",
			err:           &messaging.MatrixError{Code: "M_SOMETHING_ELSE", StatusCode: 429},
			wantKind:      RateLimited,
			wantRetryable: true,
		},
		{
			name:          "unknown token",
			err:           &messaging.MatrixError{Code: messaging.ErrCodeUnknownToken, StatusCode: 401},
			wantKind:      AuthFailure,
			wantRetryable: false,
		},
		{
			name:          "forbidden",
			err:           &messaging.MatrixError{Code: messaging.ErrCodeForbidden, StatusCode: 403},
			wantKind:      AuthFailure,
			wantRetryable: false,
		},
		{
			name:          "deactivated user",
			err:           &messaging.MatrixError{Code: messaging.ErrCodeUserDeactivated, StatusCode: 403},
			wantKind:      AuthFailure,
			wantRetryable: false,
		},
		{
			name:          "bare 401",
			err:           &messaging.MatrixError{Code: "M_WHO_KNOWS", StatusCode: 401},
			wantKind:      AuthFailure,
			wantRetryable: false,
		},
		{
			name:          "server 500",
			err:           &messaging.MatrixError{Code: messaging.ErrCodeUnknown, StatusCode: 502},
			wantKind:      TransientNetwork,
			wantRetryable: true,
		},
		{
			name:          "recognized fatal code",
			err:           &messaging.MatrixError{Code: messaging.ErrCodeInvalidParam, StatusCode: 400},
			wantKind:      Fatal,
			wantRetryable: false,
		},
		{
			name:          "unrecognized matrix code",
			err:           &messaging.MatrixError{Code: "M_BRAND_NEW_CODE", StatusCode: 400},
			wantKind:      UnknownServerErrorCode,
			wantRetryable: true,
		},
		{
			name:          "malformed response",
			err:           fmt.Errorf("sync: %w: unexpected EOF", messaging.ErrMalformedResponse),
			wantKind:      MalformedBatch,
			wantRetryable: true,
		},
		{
			name:          "wrapped matrix error",
			err:           fmt.Errorf("sync: %w", &messaging.MatrixError{Code: messaging.ErrCodeUnknownToken, StatusCode: 401}),
			wantKind:      AuthFailure,
			wantRetryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failure := Classify(tt.err)
			if failure.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", failure.Kind, tt.wantKind)
			}
			if got := failure.Kind.Retryable(); got != tt.wantRetryable {
				t.Errorf("Retryable = %v, want %v", got, tt.wantRetryable)
			}
			if failure.RetryAfter != tt.wantRetryAfter {
				t.Errorf("RetryAfter = %v, want %v", failure.RetryAfter, tt.wantRetryAfter)
			}
			if !errors.Is(failure, tt.err) && failure.Err != tt.err {
				t.Error("Failure does not unwrap to the original error")
			}
		})
	}
}

func TestFailure_ErrorString(t *testing.T) {
	failure := Classify(&messaging.MatrixError{Code: messaging.ErrCodeLimitExceeded, StatusCode: 429})
	got := failure.Error()
	want := "mirror: sync failed (rate_limited)"
	if len(got) < len(want) || got[:len(want)] != want {
		t.Errorf("Error() = %q, want prefix %q", got, want)
	}
}
