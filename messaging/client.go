// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/loomchat/loom/lib/netutil"
	"github.com/loomchat/loom/lib/ref"
	"github.com/loomchat/loom/lib/secret"
)

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// HomeserverURL is the base URL of the Matrix homeserver
	// (e.g., "https://matrix.loom.chat").
	HomeserverURL string
	// HTTPClient is used for all requests. If nil, http.DefaultClient
	// is used. The client must not set a Timeout that would cut off
	// long-poll sync requests; use per-request contexts instead.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Client is an unauthenticated Matrix client.
// It holds the homeserver URL and HTTP transport, shared across Sessions.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new unauthenticated Matrix client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.HomeserverURL == "" {
		return nil, fmt.Errorf("messaging: HomeserverURL is required")
	}

	// Validate the URL structure. We store the string form (with
	// trailing slash stripped) and build request URLs by direct
	// concatenation. This avoids double-encoding issues with Go's
	// url.URL.String(), which re-encodes Path even when RawPath is set
	// if it doesn't consider RawPath a valid encoding of Path.
	if _, err := url.Parse(config.HomeserverURL); err != nil {
		return nil, fmt.Errorf("messaging: invalid HomeserverURL %q: %w", config.HomeserverURL, err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.HomeserverURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// CloseIdleConnections closes idle HTTP connections in the underlying
// transport's connection pool. Call this after a network disruption to
// force subsequent requests to establish fresh TCP connections instead
// of reusing a poisoned pooled connection.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// ServerVersions returns the Matrix protocol versions and unstable
// features supported by the homeserver. This is an unauthenticated
// endpoint — useful for checking whether the homeserver is reachable
// and what it supports.
func (c *Client) ServerVersions(ctx context.Context) (*ServerVersionsResponse, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/_matrix/client/versions", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: server versions failed: %w", err)
	}

	var response ServerVersionsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: parsing versions response: %w: %v", ErrMalformedResponse, err)
	}
	return &response, nil
}

// Login authenticates with username and password, returning a Session.
// The password Buffer is read but not closed — the caller retains
// ownership.
func (c *Client) Login(ctx context.Context, username string, password *secret.Buffer) (*Session, error) {
	if username == "" {
		return nil, fmt.Errorf("messaging: username is required for login")
	}
	if password == nil {
		return nil, fmt.Errorf("messaging: password is required for login")
	}

	// Password is converted to string at the JSON serialization boundary.
	loginRequest := LoginRequest{
		Type:                     "m.login.password",
		User:                     username,
		Password:                 password.String(),
		InitialDeviceDisplayName: "loom",
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/login", nil, loginRequest)
	if err != nil {
		return nil, fmt.Errorf("messaging: login failed: %w", err)
	}

	var authResponse AuthResponse
	if err := json.Unmarshal(body, &authResponse); err != nil {
		return nil, fmt.Errorf("messaging: parsing login response: %w: %v", ErrMalformedResponse, err)
	}

	c.logger.Info("logged in to homeserver",
		"user_id", authResponse.UserID,
		"device_id", authResponse.DeviceID,
	)

	tokenBuffer, err := secret.NewFromBytes([]byte(authResponse.AccessToken))
	if err != nil {
		return nil, fmt.Errorf("messaging: protecting access token: %w", err)
	}
	return &Session{
		client:      c,
		accessToken: tokenBuffer,
		userID:      authResponse.UserID,
		deviceID:    authResponse.DeviceID,
	}, nil
}

// SessionFromToken creates a Session from an existing access token.
// The token buffer is owned by the returned Session from this point on
// and is closed by Session.Close.
//
// This does NOT validate the token — the first API call will fail if
// it is invalid. Use Session.WhoAmI to check a stored token. userID
// must be the fully-qualified Matrix user ID (e.g., "@alice:loom.chat").
func (c *Client) SessionFromToken(userID ref.UserID, accessToken *secret.Buffer) (*Session, error) {
	if accessToken == nil {
		return nil, fmt.Errorf("messaging: access token is required")
	}
	return &Session{
		client:      c,
		accessToken: accessToken,
		userID:      userID,
	}, nil
}

// doRequest performs an HTTP request to the homeserver and returns the
// response body. On 2xx, returns the body. On 4xx/5xx, returns a
// *MatrixError. accessToken may be nil for unauthenticated endpoints.
// query may be nil for endpoints without query parameters.
func (c *Client) doRequest(ctx context.Context, method, path string, accessToken *secret.Buffer, requestBody any, query ...url.Values) ([]byte, error) {
	requestURL := c.baseURL + path
	if len(query) > 0 && query[0] != nil {
		requestURL += "?" + query[0].Encode()
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("messaging: encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("messaging: creating request: %w", err)
	}

	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if accessToken != nil {
		request.Header.Set("Authorization", "Bearer "+accessToken.String())
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("messaging: request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, fmt.Errorf("messaging: reading response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}

	// All Matrix error responses use the same JSON shape.
	var matrixErr MatrixError
	if jsonErr := json.Unmarshal(responseBody, &matrixErr); jsonErr != nil {
		// Server returned non-JSON error. This should not happen with
		// a spec-compliant server, but fail loud with the raw body.
		return nil, fmt.Errorf("messaging: unexpected %d response from %s %s: %s",
			response.StatusCode, method, path, string(responseBody))
	}
	matrixErr.StatusCode = response.StatusCode

	return responseBody, &matrixErr
}
