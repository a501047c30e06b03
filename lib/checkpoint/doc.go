// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package checkpoint persists sync state across process restarts.
//
// A checkpoint file holds one CBOR-encoded payload (typically the sync
// cursor plus room snapshots), zstd-compressed and protected by a
// BLAKE3 checksum. [Save] writes atomically via a same-directory
// temporary file and rename, so a crash mid-write never leaves a
// partial checkpoint — the previous one survives intact. [Load]
// verifies the checksum before decoding; corruption surfaces as
// [ErrCorrupt] so the caller can discard the file and resync from an
// empty cursor instead of projecting garbage.
//
// The payload type is the caller's. loom-tail stores its own snapshot
// struct here; this package only owns the envelope.
package checkpoint
