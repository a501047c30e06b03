// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret provides a memory-safe buffer for sensitive data such
// as account passwords and homeserver access tokens.
//
// [Buffer] allocates memory outside the Go heap via mmap(MAP_ANONYMOUS),
// locks it into physical RAM via mlock (preventing swap), and marks it
// excluded from core dumps via madvise(MADV_DONTDUMP). On Close, the
// memory is zeroed, unlocked, and unmapped. Because the memory lives
// outside the Go heap, the garbage collector cannot copy or relocate
// it, so tokens do not linger in memory after release.
//
// Constructors:
//
//   - [New] -- allocates a zero-filled buffer of a given size
//   - [NewFromBytes] -- copies into protected memory, zeros the source
//
// Access via [Buffer.Bytes] (slice into the mmap region) or
// [Buffer.String] (heap copy for API boundaries such as HTTP headers).
// [Buffer.Equal] uses constant-time comparison. After Close, any access
// panics. Close is idempotent.
//
// Depends on golang.org/x/sys/unix. Imported by lib/sealed for access
// token protection and by loom-login for password handling.
package secret
