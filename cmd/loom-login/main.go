// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// loom-login authenticates against a Matrix homeserver and writes the
// session file the other Loom binaries load at startup. The access
// token is sealed under a passphrase before it touches disk, so the
// session file alone is useless to an attacker.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/loomchat/loom/lib/config"
	"github.com/loomchat/loom/lib/prompt"
	"github.com/loomchat/loom/lib/secret"
	"github.com/loomchat/loom/lib/sessionfile"
	"github.com/loomchat/loom/lib/version"
	"github.com/loomchat/loom/messaging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath     string
		homeserverURL  string
		passwordFile   string
		passphraseFile string
		showVersion    bool
	)

	flagSet := pflag.NewFlagSet("loom-login", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "config file (default: $LOOM_CONFIG)")
	flagSet.StringVar(&homeserverURL, "homeserver", "", "homeserver URL (overrides config)")
	flagSet.StringVar(&passwordFile, "password-file", "", "file containing the account password (default: prompt)")
	flagSet.StringVar(&passphraseFile, "passphrase-file", "", "file containing the session passphrase (default: prompt)")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: loom-login <username> [flags]\n\n")
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Printf("loom-login %s\n", version.String())
		return nil
	}

	args := flagSet.Args()
	if len(args) != 1 {
		flagSet.Usage()
		return fmt.Errorf("username is required")
	}
	username := args[0]

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if homeserverURL == "" {
		homeserverURL = cfg.Homeserver.URL
	}
	if homeserverURL == "" {
		return fmt.Errorf("no homeserver URL: pass --homeserver or set homeserver.url in the config")
	}

	password, err := prompt.Secret(passwordFile, "Password")
	if err != nil {
		return err
	}
	defer password.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: homeserverURL,
	})
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}
	defer client.CloseIdleConnections()

	session, err := client.Login(ctx, username, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	defer session.Close()

	// Verify the token works before sealing it away.
	userID, err := session.WhoAmI(ctx)
	if err != nil {
		return fmt.Errorf("session verification failed: %w", err)
	}

	passphraseBuffer, err := newPassphrase(passphraseFile)
	if err != nil {
		return err
	}
	defer passphraseBuffer.Close()

	file := &sessionfile.Session{
		UserID:     userID,
		DeviceID:   session.DeviceID(),
		Homeserver: homeserverURL,
	}
	token := session.AccessTokenBuffer()
	if err := file.Seal(token, passphraseBuffer); err != nil {
		return err
	}
	if err := sessionfile.Save(file, cfg.Paths.Session); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Logged in as %s (device %s)\n", userID, session.DeviceID())
	fmt.Fprintf(os.Stderr, "Session saved to %s\n", cfg.Paths.Session)
	return nil
}

// loadConfig reads the config file when one is nameable, and falls
// back to defaults otherwise: login is the first command a new user
// runs and must work before any config exists.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	if os.Getenv("LOOM_CONFIG") != "" {
		return config.Load()
	}
	return config.Default(), nil
}

// newPassphrase obtains the sealing passphrase: from a file when
// given, otherwise prompted twice since this establishes it.
func newPassphrase(passphraseFile string) (*secret.Buffer, error) {
	if passphraseFile != "" {
		return secret.ReadFromPath(passphraseFile)
	}
	return prompt.ConfirmedPassword("New session passphrase")
}
