// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// loom-view is the interactive chat browser: room list on the left,
// the selected room's timeline on the right, with message sending.
// The sync loop runs in the background and nudges the UI after each
// applied response.
package main

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/loomchat/loom/lib/chatui"
	"github.com/loomchat/loom/lib/checkpoint"
	"github.com/loomchat/loom/lib/clock"
	"github.com/loomchat/loom/lib/config"
	"github.com/loomchat/loom/lib/prompt"
	"github.com/loomchat/loom/lib/sessionfile"
	"github.com/loomchat/loom/lib/version"
	"github.com/loomchat/loom/messaging"
	"github.com/loomchat/loom/mirror"
)

// syncCheckpoint matches the payload loom-tail writes, so the two
// binaries share one resume cursor.
type syncCheckpoint struct {
	Cursor  string    `cbor:"cursor"`
	SavedAt time.Time `cbor:"saved_at"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath     string
		passphraseFile string
		logOutput      string
		showVersion    bool
	)

	flagSet := pflag.NewFlagSet("loom-view", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "config file (default: $LOOM_CONFIG)")
	flagSet.StringVar(&passphraseFile, "passphrase-file", "", "file containing the session passphrase (default: prompt)")
	flagSet.StringVar(&logOutput, "log-output", "", "write log records to this file instead of discarding them")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Printf("loom-view %s\n", version.String())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	// Logs cannot share the terminal with the TUI. They go to a file
	// when requested and nowhere otherwise.
	logPath := os.DevNull
	if logOutput != "" {
		logPath = logOutput
	}
	logWriter, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("opening log output: %w", err)
	}
	defer logWriter.Close()
	logger := cfg.NewLogger(logWriter)

	file, err := sessionfile.Load(cfg.Paths.Session)
	if err != nil {
		return err
	}
	passphrase, err := prompt.Secret(passphraseFile, "Session passphrase")
	if err != nil {
		return err
	}
	token, err := file.Unseal(passphrase)
	passphrase.Close()
	if err != nil {
		return err
	}

	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: file.Homeserver,
		Logger:        logger,
	})
	if err != nil {
		token.Close()
		return err
	}
	session, err := client.SessionFromToken(file.UserID, token)
	if err != nil {
		token.Close()
		return err
	}
	defer session.Close()

	initialCursor := ""
	var ckpt syncCheckpoint
	if err := checkpoint.Load(cfg.Paths.Checkpoint, &ckpt); err == nil {
		initialCursor = ckpt.Cursor
	}

	updates := make(chan struct{}, 1)
	nudge := func() {
		select {
		case updates <- struct{}{}:
		default:
		}
	}

	transport := mirror.NewSessionTransport(session)
	registry := mirror.NewRegistry(transport, logger)
	filter := &messaging.SyncFilter{ExcludePresence: true}
	syncer, err := mirror.NewSyncer(mirror.SyncerConfig{
		Transport:   transport,
		Registry:    registry,
		Filter:      filter.InlineFilter(),
		PollTimeout: cfg.Sync.PollTimeout.Std(),
		MaxBackoff:  cfg.Sync.MaxBackoff.Std(),
		Clock:       clock.Real(),
		Logger:      logger,
		OnJoin:      func(*mirror.Room) { nudge() },
		OnTimeline:  func(*mirror.Room, []mirror.TimelineEntry) { nudge() },
	})
	if err != nil {
		return err
	}
	if err := syncer.Start(initialCursor); err != nil {
		return err
	}
	defer func() {
		syncer.Stop()
		if cursor := syncer.Cursor(); cursor != "" {
			ckpt := syncCheckpoint{Cursor: cursor, SavedAt: time.Now().UTC()}
			if err := checkpoint.Save(cfg.Paths.Checkpoint, ckpt); err != nil {
				logger.Error("saving checkpoint", "error", err)
			}
		}
	}()

	model := chatui.New(chatui.Config{
		Registry:   registry,
		Content:    mirror.NewContentRegistry(),
		Session:    session,
		SelfUserID: file.UserID,
		Updates:    updates,
	})

	program := tea.NewProgram(model, tea.WithAltScreen())

	// A fatal sync failure (expired token, deactivated account) must
	// tear down the TUI rather than leave a frozen view.
	syncFailed := make(chan mirror.Failure, 1)
	go func() {
		if failure, ok := <-syncer.Errors(); ok {
			syncFailed <- failure
			program.Quit()
		}
	}()

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("running UI: %w", err)
	}

	select {
	case failure := <-syncFailed:
		return failure
	default:
	}
	return nil
}

// loadConfig prefers an explicit --config path, then LOOM_CONFIG,
// then built-in defaults.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	if os.Getenv("LOOM_CONFIG") != "" {
		return config.Load()
	}
	return config.Default(), nil
}
