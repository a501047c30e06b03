// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/loomchat/loom/lib/secret"
)

func TestNewClient_RequiresURL(t *testing.T) {
	if _, err := NewClient(ClientConfig{}); err == nil {
		t.Error("NewClient with empty HomeserverURL should return error")
	}
}

func TestNewClient_StripsTrailingSlash(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/_matrix/client/versions" {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		writeJSON(writer, ServerVersionsResponse{Versions: []string{"v1.11"}})
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{HomeserverURL: server.URL + "/"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	versions, err := client.ServerVersions(context.Background())
	if err != nil {
		t.Fatalf("ServerVersions failed: %v", err)
	}
	if len(versions.Versions) != 1 || versions.Versions[0] != "v1.11" {
		t.Errorf("unexpected versions: %v", versions.Versions)
	}
}

func TestLogin(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/_matrix/client/v3/login" {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		var body LoginRequest
		if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
			t.Fatalf("decoding login request: %v", err)
		}
		if body.Type != "m.login.password" {
			t.Errorf("unexpected login type: %s", body.Type)
		}
		if body.User != "alice" || body.Password != "hunter2" {
			t.Errorf("unexpected credentials: %s / %s", body.User, body.Password)
		}
		writeJSON(writer, map[string]string{
			"user_id":      "@alice:loom.chat",
			"access_token": "syt_token",
			"device_id":    "DEV1",
		})
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{HomeserverURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	password, err := secret.NewFromBytes([]byte("hunter2"))
	if err != nil {
		t.Fatalf("creating password buffer: %v", err)
	}
	defer password.Close()

	session, err := client.Login(context.Background(), "alice", password)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	defer session.Close()

	if session.UserID().String() != "@alice:loom.chat" {
		t.Errorf("unexpected user ID: %s", session.UserID())
	}
	if session.DeviceID() != "DEV1" {
		t.Errorf("unexpected device ID: %s", session.DeviceID())
	}
	if session.AccessToken() != "syt_token" {
		t.Errorf("unexpected access token")
	}
}

func TestLogin_Forbidden(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		writer.WriteHeader(http.StatusForbidden)
		json.NewEncoder(writer).Encode(map[string]string{
			"errcode": "M_FORBIDDEN",
			"error":   "Invalid password",
		})
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{HomeserverURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	password, err := secret.NewFromBytes([]byte("wrong"))
	if err != nil {
		t.Fatalf("creating password buffer: %v", err)
	}
	defer password.Close()

	_, err = client.Login(context.Background(), "alice", password)
	if err == nil {
		t.Fatal("Login with bad password should fail")
	}

	var matrixErr *MatrixError
	if !errors.As(err, &matrixErr) {
		t.Fatalf("expected *MatrixError, got %T: %v", err, err)
	}
	if matrixErr.Code != ErrCodeForbidden {
		t.Errorf("unexpected error code: %s", matrixErr.Code)
	}
	if matrixErr.StatusCode != http.StatusForbidden {
		t.Errorf("unexpected status code: %d", matrixErr.StatusCode)
	}
}

func TestDoRequest_RateLimitCarriesRetryAfter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		writer.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(writer).Encode(map[string]any{
			"errcode":        "M_LIMIT_EXCEEDED",
			"error":          "Too many requests",
			"retry_after_ms": 2000,
		})
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{HomeserverURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = client.ServerVersions(context.Background())
	var matrixErr *MatrixError
	if !errors.As(err, &matrixErr) {
		t.Fatalf("expected *MatrixError, got %T: %v", err, err)
	}
	if matrixErr.Code != ErrCodeLimitExceeded {
		t.Errorf("unexpected error code: %s", matrixErr.Code)
	}
	if matrixErr.RetryAfterMS != 2000 {
		t.Errorf("RetryAfterMS = %d, want 2000", matrixErr.RetryAfterMS)
	}
}

func TestDoRequest_NonJSONError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusBadGateway)
		writer.Write([]byte("<html>502 Bad Gateway</html>"))
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{HomeserverURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = client.ServerVersions(context.Background())
	if err == nil {
		t.Fatal("expected error for non-JSON 502 response")
	}
	var matrixErr *MatrixError
	if errors.As(err, &matrixErr) {
		t.Errorf("non-JSON error should not produce *MatrixError, got %v", matrixErr)
	}
}
