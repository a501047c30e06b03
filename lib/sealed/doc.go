// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed provides age encryption and decryption for the Loom
// session file. It wraps filippo.io/age's scrypt recipient to provide
// the two operations Loom needs: seal a session payload (access token,
// user ID, homeserver URL) under a passphrase, and open it again.
//
// Ciphertext is base64-encoded for storage inside the session file's
// JSON envelope. The base64 encoding is handled internally — callers
// pass plaintext []byte in and get base64 strings out, and vice versa.
//
// Passphrases and decrypted plaintext travel in *secret.Buffer values,
// which are backed by mmap memory outside the Go heap (locked against
// swap, excluded from core dumps, zeroed on close).
//
// This package is used by:
//   - loom-login (seal the access token after a password login)
//   - loom-tail and loom-view (open the session file at startup)
package sealed
