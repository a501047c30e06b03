// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package mirror maintains a live local projection of the rooms a
// Matrix account participates in. It consumes /sync responses and
// folds them into per-room state (one value per (event type, state
// key) slot), an ordered timeline, and the latest ephemeral events.
//
// The package has three layers:
//
//   - Room and Registry hold the projected data. A Room is safe for
//     concurrent use; accessors return copies so callers never alias
//     internal state. The Registry maps room IDs to Rooms and
//     hydrates unknown rooms on demand over the Transport.
//
//   - Syncer drives the long-poll loop. It classifies every sync
//     failure (Classify) and either retries with backoff, honors a
//     rate-limit hint, or stops permanently on auth failures. The
//     cursor only advances after a response has been fully applied,
//     so a crash between polls never loses events.
//
//   - ContentRegistry decodes raw event content into typed structs.
//     Consumers register decoders for the event types they care
//     about; unregistered types decode to Opaque.
//
// Everything here is transport-agnostic: the Syncer and Registry
// depend on the Transport interface, which messaging.Session
// satisfies in production and a scripted fake satisfies in tests.
package mirror
