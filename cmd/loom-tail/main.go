// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// loom-tail follows the sync stream and prints timeline events as
// JSON lines on stdout, one object per event. It checkpoints the sync
// cursor periodically and on shutdown, so a restart resumes from the
// last applied position instead of replaying from scratch.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/loomchat/loom/lib/checkpoint"
	"github.com/loomchat/loom/lib/clock"
	"github.com/loomchat/loom/lib/config"
	"github.com/loomchat/loom/lib/prompt"
	"github.com/loomchat/loom/lib/sessionfile"
	"github.com/loomchat/loom/lib/version"
	"github.com/loomchat/loom/messaging"
	"github.com/loomchat/loom/mirror"
)

// syncCheckpoint is the payload persisted via lib/checkpoint.
type syncCheckpoint struct {
	Cursor  string    `cbor:"cursor"`
	SavedAt time.Time `cbor:"saved_at"`
}

// tailLine is one stdout record.
type tailLine struct {
	RoomID    string          `json:"room_id"`
	RoomName  string          `json:"room_name,omitempty"`
	EventID   string          `json:"event_id"`
	Type      string          `json:"type"`
	Sender    string          `json:"sender"`
	Timestamp int64           `json:"origin_server_ts"`
	Content   json.RawMessage `json:"content"`
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
		fromScratch    bool
		showVersion    bool
	)

	flagSet := pflag.NewFlagSet("loom-tail", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "config file (default: $LOOM_CONFIG)")
	flagSet.StringVar(&passphraseFile, "passphrase-file", "", "file containing the session passphrase (default: prompt)")
	flagSet.BoolVar(&fromScratch, "from-scratch", false, "ignore the checkpoint and start a full initial sync")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Printf("loom-tail %s\n", version.String())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}
	logger := cfg.NewLogger(os.Stderr)

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Refuse to run with a dead token: better to fail now than after
	// the first poll.
	if _, err := session.WhoAmI(ctx); err != nil {
		return fmt.Errorf("session check failed: %w", err)
	}

	initialCursor := ""
	if !fromScratch {
		var ckpt syncCheckpoint
		switch err := checkpoint.Load(cfg.Paths.Checkpoint, &ckpt); {
		case err == nil:
			initialCursor = ckpt.Cursor
			logger.Info("resuming from checkpoint",
				"cursor", ckpt.Cursor,
				"saved_at", ckpt.SavedAt,
			)
		case errors.Is(err, fs.ErrNotExist):
			logger.Info("no checkpoint, starting initial sync")
		case errors.Is(err, checkpoint.ErrCorrupt):
			logger.Warn("checkpoint corrupt, starting initial sync", "error", err)
		default:
			return err
		}
	}

	var stdoutMu sync.Mutex
	encoder := json.NewEncoder(os.Stdout)

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
		OnInvite: func(notice mirror.InviteNotice) {
			logger.Info("invite pending",
				"room_id", notice.RoomID,
				"inviter", notice.Inviter,
			)
		},
		OnTimeline: func(room *mirror.Room, entries []mirror.TimelineEntry) {
			stdoutMu.Lock()
			defer stdoutMu.Unlock()
			for _, entry := range entries {
				line := tailLine{
					RoomID:    room.ID().String(),
					RoomName:  room.Name(),
					EventID:   entry.Event.EventID.String(),
					Type:      entry.Event.Type.String(),
					Sender:    entry.Event.Sender.String(),
					Timestamp: entry.Event.OriginServerTS,
					Content:   entry.Event.Content,
				}
				if err := encoder.Encode(line); err != nil {
					logger.Error("writing event line", "error", err)
					return
				}
			}
		},
	})
	if err != nil {
		return err
	}

	if err := syncer.Start(initialCursor); err != nil {
		return err
	}

	saveCheckpoint := func() {
		cursor := syncer.Cursor()
		if cursor == "" {
			return
		}
		ckpt := syncCheckpoint{Cursor: cursor, SavedAt: time.Now().UTC()}
		if err := checkpoint.Save(cfg.Paths.Checkpoint, ckpt); err != nil {
			logger.Error("saving checkpoint", "error", err)
		}
	}

	ticker := time.NewTicker(cfg.Sync.CheckpointInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			saveCheckpoint()
		case failure := <-syncer.Errors():
			saveCheckpoint()
			return failure
		case <-ctx.Done():
			logger.Info("shutting down")
			syncer.Stop()
			saveCheckpoint()
			return nil
		}
	}
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
