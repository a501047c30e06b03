// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging wraps the Matrix client-server API surface that
// the Loom sync engine and CLI binaries need.
//
// The package provides two core types. [Client] is an unauthenticated
// Matrix client that handles password login, returning authenticated
// [Session] values. Client holds the homeserver URL and HTTP
// transport, shared across all Sessions derived from it.
//
// [Session] wraps a Client with an access token for authenticated
// operations: incremental sync with long-polling, room state reads,
// room management (create, join, leave, invite), event sending with
// idempotent transaction IDs, alias resolution, and identity
// verification (WhoAmI).
//
// Sessions are lightweight — a pointer to the parent Client plus an
// access token in mmap-backed secret.Buffer memory. The access token
// is locked against swap and excluded from core dumps; callers must
// call Session.Close to release the protected memory.
//
// All API errors are returned as [*MatrixError] with the standard
// Matrix error code (M_FORBIDDEN, M_UNKNOWN_TOKEN, etc.), the HTTP
// status code, and the retry_after_ms hint on rate limits.
// [IsMatrixError] tests for a specific error code. A response that is
// not valid JSON for its endpoint surfaces as an error wrapping
// [ErrMalformedResponse] so the sync engine can distinguish a broken
// batch from a transport failure. Request URLs are built by string
// concatenation rather than url.URL to avoid double-encoding of path
// segments that contain URL-encoded characters (such as room aliases
// with slashes).
package messaging
