// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/loomchat/loom/lib/clock"
	"github.com/loomchat/loom/lib/ref"
	"github.com/loomchat/loom/messaging"
)

// RunState is the Syncer's lifecycle phase. Transitions:
// Stopped → Starting → Running → Stopping → Stopped, with Running
// also ending in Stopped directly when the loop hits a
// non-retryable failure.
type RunState int

const (
	RunStateStopped RunState = iota
	RunStateStarting
	RunStateRunning
	RunStateStopping
)

// String returns the state's name for logs.
func (s RunState) String() string {
	switch s {
	case RunStateStopped:
		return "stopped"
	case RunStateStarting:
		return "starting"
	case RunStateRunning:
		return "running"
	case RunStateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("RunState(%d)", int(s))
	}
}

// InviteNotice describes a pending room invite seen in a sync
// response. StrippedState carries the limited state the server
// exposes before joining (room name, creator, the invite membership
// event itself).
type InviteNotice struct {
	RoomID        ref.RoomID
	Inviter       ref.UserID
	StrippedState []messaging.Event
}

// SyncerConfig configures a Syncer. Transport and Registry are
// required; everything else has defaults.
type SyncerConfig struct {
	Transport Transport
	Registry  *Registry

	// Filter is the inline JSON filter sent with each /sync request.
	// Empty means no filter.
	Filter string

	// PollTimeout is the /sync long-poll duration. Default: 30s.
	PollTimeout time.Duration

	// MaxBackoff caps the retry delay on transient failures. The
	// delay starts at 1 second and doubles. Default: 60s.
	MaxBackoff time.Duration

	// Clock drives retry waits. Default: clock.Real().
	Clock clock.Clock

	// Logger may be nil for slog.Default().
	Logger *slog.Logger

	// OnJoin is called from the sync loop when a room first appears
	// in the join section, after its initial state has been applied.
	// Optional; equivalent to registering via Syncer.OnJoin.
	OnJoin func(room *Room)

	// OnInvite is called from the sync loop for each pending invite
	// in a response. Optional; equivalent to registering via
	// Syncer.OnInvite.
	OnInvite func(notice InviteNotice)

	// OnTimeline is called from the sync loop when a response
	// appends timeline entries to a room. Optional; equivalent to
	// registering via Syncer.OnTimeline.
	OnTimeline func(room *Room, entries []TimelineEntry)
}

// Syncer runs the /sync long-poll loop and folds responses into the
// Registry's rooms. The cursor only advances after a response has
// been applied in full, so restarting from a checkpointed cursor
// can replay but never skip events (Room feeds are idempotent, so
// replay is harmless).
type Syncer struct {
	transport   Transport
	registry    *Registry
	filter      string
	pollTimeout time.Duration
	maxBackoff  time.Duration
	clock       clock.Clock
	logger      *slog.Logger

	errs chan Failure

	mu           sync.Mutex
	state        RunState
	cursor       string
	cancel       context.CancelFunc
	done         chan struct{}
	joinSubs     []func(room *Room)
	inviteSubs   []func(notice InviteNotice)
	timelineSubs []func(room *Room, entries []TimelineEntry)
}

// NewSyncer validates config and returns a stopped Syncer.
func NewSyncer(config SyncerConfig) (*Syncer, error) {
	if config.Transport == nil {
		return nil, errors.New("mirror: SyncerConfig.Transport is required")
	}
	if config.Registry == nil {
		return nil, errors.New("mirror: SyncerConfig.Registry is required")
	}
	if config.PollTimeout == 0 {
		config.PollTimeout = 30 * time.Second
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = 60 * time.Second
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	syncer := &Syncer{
		transport:   config.Transport,
		registry:    config.Registry,
		filter:      config.Filter,
		pollTimeout: config.PollTimeout,
		maxBackoff:  config.MaxBackoff,
		clock:       config.Clock,
		logger:      config.Logger,
		errs:        make(chan Failure, 1),
	}
	if config.OnJoin != nil {
		syncer.joinSubs = append(syncer.joinSubs, config.OnJoin)
	}
	if config.OnInvite != nil {
		syncer.inviteSubs = append(syncer.inviteSubs, config.OnInvite)
	}
	if config.OnTimeline != nil {
		syncer.timelineSubs = append(syncer.timelineSubs, config.OnTimeline)
	}
	return syncer, nil
}

// OnJoin registers fn to be called when a room first appears in a
// sync join section, after its initial state has been applied. Every
// registered subscriber sees every join. Callbacks run on the sync
// loop goroutine; the next poll does not start until they return.
func (s *Syncer) OnJoin(fn func(room *Room)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joinSubs = append(s.joinSubs, fn)
}

// OnInvite registers fn to be called for each pending invite in a
// sync response. Every registered subscriber sees every notice.
// Callbacks run on the sync loop goroutine.
func (s *Syncer) OnInvite(fn func(notice InviteNotice)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inviteSubs = append(s.inviteSubs, fn)
}

// OnTimeline registers fn to be called when a sync response appends
// timeline entries to a room. Every registered subscriber sees every
// append. Callbacks run on the sync loop goroutine.
func (s *Syncer) OnTimeline(fn func(room *Room, entries []TimelineEntry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timelineSubs = append(s.timelineSubs, fn)
}

// Start launches the sync loop with the given cursor ("" for a full
// initial sync). Starting an already-running Syncer is a no-op.
// Starting while Stop is in progress returns an error: wait for Stop
// to finish first.
func (s *Syncer) Start(initialCursor string) error {
	s.mu.Lock()
	switch s.state {
	case RunStateStarting, RunStateRunning:
		s.mu.Unlock()
		return nil
	case RunStateStopping:
		s.mu.Unlock()
		return errors.New("mirror: Start called while stopping")
	}
	s.state = RunStateStarting
	s.cursor = initialCursor
	// A Failure from a previous session that the host never consumed
	// would occupy the channel's single slot and swallow this
	// session's fatal failure. Stale reports belong to a loop the
	// host already chose to restart past.
	select {
	case <-s.errs:
	default:
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	done := make(chan struct{})
	s.done = done
	s.mu.Unlock()

	go s.run(ctx, done)
	return nil
}

// Stop cancels any in-flight poll and waits for the loop to exit.
// Stopping an already-stopped Syncer is a no-op.
func (s *Syncer) Stop() {
	s.mu.Lock()
	if s.state == RunStateStopped {
		s.mu.Unlock()
		return
	}
	s.state = RunStateStopping
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done
}

// State returns the current lifecycle phase.
func (s *Syncer) State() RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Cursor returns the last fully-applied sync position. Callers
// checkpoint this value and pass it to Start after a restart.
func (s *Syncer) Cursor() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Errors delivers the Failure that stopped the loop. At most one
// value is sent per Start; a clean Stop sends nothing. A failure
// left unconsumed when Start is called again is discarded, so each
// session reports its own failure.
func (s *Syncer) Errors() <-chan Failure {
	return s.errs
}

// Done is closed when the sync loop has exited, whether via Stop or
// a non-retryable failure.
func (s *Syncer) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Syncer) run(ctx context.Context, done chan struct{}) {
	defer func() {
		s.mu.Lock()
		s.state = RunStateStopped
		s.mu.Unlock()
		close(done)
	}()

	s.mu.Lock()
	// Stop may have raced ahead of the goroutine launch; leave its
	// Stopping state in place so the transition stays monotonic.
	if s.state == RunStateStarting {
		s.state = RunStateRunning
	}
	s.mu.Unlock()

	backoff := time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		response, err := s.transport.Sync(ctx, messaging.SyncOptions{
			Since:      s.Cursor(),
			Timeout:    int(s.pollTimeout.Milliseconds()),
			SetTimeout: true,
			Filter:     s.filter,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failure := Classify(err)
			if !failure.Kind.Retryable() {
				s.logger.Error("sync loop stopping",
					"kind", failure.Kind,
					"code", failure.Code,
					"error", err,
				)
				select {
				case s.errs <- failure:
				default:
				}
				return
			}

			wait := backoff
			if failure.Kind == RateLimited && failure.RetryAfter > wait {
				wait = failure.RetryAfter
			}
			s.logger.Warn("sync failed, retrying",
				"kind", failure.Kind,
				"error", err,
				"wait", wait,
			)
			select {
			case <-ctx.Done():
				return
			case <-s.clock.After(wait):
			}
			backoff *= 2
			if backoff > s.maxBackoff {
				backoff = s.maxBackoff
			}
			continue
		}

		backoff = time.Second
		s.apply(response)

		s.mu.Lock()
		s.cursor = response.NextBatch
		s.mu.Unlock()
	}
}

// apply folds one sync response into the registry. A malformed
// per-room delta skips that room only: the rest of the response
// still applies and the cursor still advances, since retrying the
// same response would fail identically.
func (s *Syncer) apply(response *messaging.SyncResponse) {
	s.mu.Lock()
	joinSubs := slices.Clone(s.joinSubs)
	inviteSubs := slices.Clone(s.inviteSubs)
	timelineSubs := slices.Clone(s.timelineSubs)
	s.mu.Unlock()

	for roomID, joined := range response.Rooms.Join {
		room, created := s.registry.GetOrCreate(roomID)
		appended, err := room.applySync(joined.State.Events, joined.Timeline.Events, joined.Ephemeral.Events)
		if err != nil {
			s.logger.Warn("skipping malformed room delta",
				"room_id", roomID,
				"error", err,
			)
			continue
		}
		if created {
			s.registry.markHydrated(roomID)
			s.logger.Info("joined room",
				"room_id", roomID,
				"name", room.Name(),
			)
			for _, fn := range joinSubs {
				fn(room)
			}
		}
		if len(appended) > 0 {
			for _, fn := range timelineSubs {
				fn(room, appended)
			}
		}
	}

	for roomID, invited := range response.Rooms.Invite {
		notice := InviteNotice{
			RoomID:        roomID,
			Inviter:       inviteSender(invited.InviteState.Events),
			StrippedState: invited.InviteState.Events,
		}
		s.logger.Info("room invite pending",
			"room_id", roomID,
			"inviter", notice.Inviter,
		)
		for _, fn := range inviteSubs {
			fn(notice)
		}
	}

	for roomID, left := range response.Rooms.Leave {
		room, ok := s.registry.Lookup(roomID)
		if !ok {
			continue
		}
		if _, err := room.applySync(left.State.Events, left.Timeline.Events, nil); err != nil {
			s.logger.Warn("skipping malformed room delta",
				"room_id", roomID,
				"error", err,
			)
		}
	}
}

// inviteSender finds who sent the invite: the sender of the stripped
// m.room.member event whose content says "invite".
func inviteSender(strippedState []messaging.Event) ref.UserID {
	for _, event := range strippedState {
		if event.Type != "m.room.member" {
			continue
		}
		var content MemberContent
		if err := json.Unmarshal(event.Content, &content); err != nil {
			continue
		}
		if content.Membership == MembershipInvite {
			return event.Sender
		}
	}
	return ref.UserID{}
}
