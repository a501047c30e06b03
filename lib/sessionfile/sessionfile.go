// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package sessionfile persists the login session shared by the Loom
// binaries. The access token is never stored in the clear: loom-login
// seals it under a passphrase (lib/sealed) and the other binaries
// unseal it at startup. Everything else in the file is plain JSON so
// tooling can inspect it.
package sessionfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/loomchat/loom/lib/ref"
	"github.com/loomchat/loom/lib/sealed"
	"github.com/loomchat/loom/lib/secret"
)

// Session is the on-disk login state written by "loom-login".
type Session struct {
	// UserID is the full Matrix user ID the token belongs to.
	UserID ref.UserID `json:"user_id"`

	// DeviceID identifies this login on the homeserver.
	DeviceID string `json:"device_id"`

	// Homeserver is the base URL the token is valid against.
	Homeserver string `json:"homeserver"`

	// SealedToken is the access token, passphrase-sealed with
	// lib/sealed and base64-encoded.
	SealedToken string `json:"sealed_token"`
}

// Seal encrypts accessToken under passphrase and stores the result in
// the session. The token buffer is not consumed.
func (s *Session) Seal(accessToken, passphrase *secret.Buffer) error {
	sealedToken, err := sealed.Seal(accessToken.Bytes(), passphrase)
	if err != nil {
		return fmt.Errorf("sessionfile: sealing access token: %w", err)
	}
	s.SealedToken = sealedToken
	return nil
}

// Unseal decrypts the stored access token. The caller owns the
// returned buffer and must Close it (messaging.SessionFromToken takes
// that ownership).
func (s *Session) Unseal(passphrase *secret.Buffer) (*secret.Buffer, error) {
	token, err := sealed.Open(s.SealedToken, passphrase)
	if err != nil {
		return nil, fmt.Errorf("sessionfile: unsealing access token (wrong passphrase?): %w", err)
	}
	return token, nil
}

// Load reads and validates a session file. A missing file produces an
// error directing the user to "loom-login".
func Load(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no Loom session at %s — run \"loom-login\" first", path)
		}
		return nil, fmt.Errorf("reading session file %s: %w", path, err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("parsing session file %s: %w", path, err)
	}
	if session.UserID.IsZero() {
		return nil, fmt.Errorf("session file %s has no user_id", path)
	}
	if session.Homeserver == "" {
		return nil, fmt.Errorf("session file %s has no homeserver", path)
	}
	if session.SealedToken == "" {
		return nil, fmt.Errorf("session file %s has no sealed_token", path)
	}
	return &session, nil
}

// Save writes the session with owner-only permissions, creating the
// parent directory if needed.
func Save(session *Session, path string) error {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("sessionfile: marshaling session: %w", err)
	}
	data = append(data, '\n')

	directory := filepath.Dir(path)
	if err := os.MkdirAll(directory, 0700); err != nil {
		return fmt.Errorf("sessionfile: creating directory %s: %w", directory, err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("sessionfile: writing %s: %w", path, err)
	}
	return nil
}
