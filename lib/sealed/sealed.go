// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"filippo.io/age"

	"github.com/loomchat/loom/lib/secret"
)

// Seal encrypts plaintext under a passphrase using age's scrypt
// recipient. Returns the ciphertext as a standard base64-encoded
// string suitable for storage in the session file.
//
// The passphrase is borrowed (read via String to build the age
// recipient) and is NOT closed by this function.
func Seal(plaintext []byte, passphrase *secret.Buffer) (string, error) {
	if passphrase == nil || passphrase.Len() == 0 {
		return "", fmt.Errorf("sealed: passphrase is required")
	}

	// age.NewScryptRecipient requires a string. The heap copy is
	// brief and call-scoped.
	recipient, err := age.NewScryptRecipient(passphrase.String())
	if err != nil {
		return "", fmt.Errorf("sealed: creating scrypt recipient: %w", err)
	}

	var ciphertextBuffer bytes.Buffer
	writer, err := age.Encrypt(&ciphertextBuffer, recipient)
	if err != nil {
		return "", fmt.Errorf("sealed: creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return "", fmt.Errorf("sealed: writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("sealed: finalizing age encryption: %w", err)
	}

	return base64.StdEncoding.EncodeToString(ciphertextBuffer.Bytes()), nil
}

// Open decrypts a base64-encoded ciphertext string produced by Seal.
// Returns the plaintext in a secret.Buffer (mmap-backed, zeroed on
// close). A wrong passphrase surfaces as a decryption error.
//
// The passphrase is borrowed and is NOT closed by this function. The
// caller must call Close on the returned buffer when the plaintext is
// no longer needed.
func Open(ciphertext string, passphrase *secret.Buffer) (*secret.Buffer, error) {
	identity, err := age.NewScryptIdentity(passphrase.String())
	if err != nil {
		return nil, fmt.Errorf("sealed: creating scrypt identity: %w", err)
	}

	rawCiphertext, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("sealed: decoding base64 ciphertext: %w", err)
	}

	reader, err := age.Decrypt(bytes.NewReader(rawCiphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("sealed: decrypting: %w", err)
	}

	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("sealed: reading decrypted plaintext: %w", err)
	}

	// Move the decrypted plaintext into mmap-backed memory
	// immediately. NewFromBytes zeros the heap copy.
	if len(plaintext) == 0 {
		// age can produce empty plaintext (sealed empty payload).
		// Return a minimal buffer.
		buffer, err := secret.New(1)
		if err != nil {
			return nil, fmt.Errorf("sealed: protecting decrypted plaintext: %w", err)
		}
		return buffer, nil
	}

	buffer, err := secret.NewFromBytes(plaintext)
	if err != nil {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("sealed: protecting decrypted plaintext: %w", err)
	}
	return buffer, nil
}
