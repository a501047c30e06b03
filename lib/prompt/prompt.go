// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package prompt reads secrets from the terminal with echo disabled.
// Used by the Loom binaries for passwords and passphrases; scripted
// invocations pass file paths instead and never hit the terminal.
package prompt

import (
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/loomchat/loom/lib/secret"
)

// Password prompts on stderr and reads a secret from the terminal
// with echo disabled. Fails when stdin is not a terminal.
func Password(label string) (*secret.Buffer, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("prompt: no terminal for %q (pass a file instead)", label)
	}

	fmt.Fprintf(os.Stderr, "%s: ", label)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("prompt: reading %s: %w", label, err)
	}

	buffer, err := secret.NewFromBytes(raw)
	if err != nil {
		secret.Zero(raw)
		return nil, err
	}
	return buffer, nil
}

// Secret reads a secret from path when given ("-" means stdin), or
// prompts interactively with label when path is empty.
func Secret(path, label string) (*secret.Buffer, error) {
	if path != "" {
		return secret.ReadFromPath(path)
	}
	return Password(label)
}

// ConfirmedPassword prompts twice and fails when the entries differ.
// Used when establishing a new passphrase rather than verifying an
// existing one.
func ConfirmedPassword(label string) (*secret.Buffer, error) {
	first, err := Password(label)
	if err != nil {
		return nil, err
	}
	second, err := Password(label + " (again)")
	if err != nil {
		first.Close()
		return nil, err
	}
	defer second.Close()
	if !first.Equal(second.Bytes()) {
		first.Close()
		return nil, fmt.Errorf("prompt: entries do not match")
	}
	return first, nil
}
