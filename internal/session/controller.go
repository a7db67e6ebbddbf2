// Package session drives the auto-join call lifecycle: it consumes
// classified invites, queries process importance, walks the audio engine
// through join/leave/mute, and keeps the persisted call slot consistent.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"pushtalk-agent/internal/callstate"
	"pushtalk-agent/internal/engine"
	"pushtalk-agent/internal/history"
	"pushtalk-agent/internal/procstate"
	"pushtalk-agent/internal/signal"
)

// State is the session lifecycle phase.
//
// Idle → Joining → Active → Leaving → Idle, with Joining → Idle on a
// foreground join failure.
type State int

const (
	Idle State = iota
	Joining
	Active
	Leaving
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Joining:
		return "joining"
	case Active:
		return "active"
	case Leaving:
		return "leaving"
	default:
		return "unknown"
	}
}

// LeaveReason tags why a session ended.
type LeaveReason string

const (
	LeaveReasonRoomEmpty LeaveReason = "room_empty"
	LeaveReasonManual    LeaveReason = "manual_hangup"
	LeaveReasonShutdown  LeaveReason = "shutdown"
)

// ErrBusy is returned when an invite arrives while a session is already
// Joining or Active. At most one concurrent call is supported; the new
// invite is dropped.
var ErrBusy = errors.New("session: call already in progress")

// ErrNoCall is returned by in-call operations (mute, unmute) when no session
// is Active.
var ErrNoCall = errors.New("session: no active call")

// Engine is the controller's view of the audio engine adapter.
type Engine interface {
	Initialize() error
	Reinitialize() error
	IsHealthy() bool
	Join(ctx context.Context, channelID, token string, participantID int) error
	Leave() error
	MuteLocal() error
	UnmuteLocal() error
	Events() (<-chan engine.Event, func())
}

// Presence is the controller's view of the presence keeper.
type Presence interface {
	Start(ctx context.Context, inv signal.Invite)
	Stop(ctx context.Context)
	Active() bool
}

// Controller is the session state machine. It is the exclusive owner of the
// in-memory session: invites, engine events, and lifecycle callbacks all
// mutate it under one mutex, so interleavings like "leave + new invite at
// the same instant" cannot produce two live sessions or an inconsistent
// persisted slot.
type Controller struct {
	eng      Engine
	store    callstate.Store
	detector procstate.Detector
	presence Presence
	journal  *history.Service
	log      *slog.Logger
	now      func() time.Time

	mu          sync.Mutex
	state       State
	invite      signal.Invite
	sessionID   string
	remotes     map[int]struct{}
	hadRemote   bool
	engineOwned bool

	cancelEvents func()
	loopDone     chan struct{}
}

// Config carries the controller's collaborators. Journal may be nil.
type Config struct {
	Engine   Engine
	Store    callstate.Store
	Detector procstate.Detector
	Presence Presence
	Journal  *history.Service
	Log      *slog.Logger
}

func New(cfg Config) *Controller {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	c := &Controller{
		eng:      cfg.Engine,
		store:    cfg.Store,
		detector: cfg.Detector,
		presence: cfg.Presence,
		journal:  cfg.Journal,
		log:      log,
		now:      time.Now,
		state:    Idle,
		loopDone: make(chan struct{}),
	}

	events, cancel := c.eng.Events()
	c.cancelEvents = cancel
	go c.eventLoop(events)
	return c
}

// Close stops the engine event subscription. It does not end an active call;
// a supervisor restart should find the persisted slot and recover.
func (c *Controller) Close() {
	c.cancelEvents()
	<-c.loopDone
}

// OnInvite is the entry point for a classified invite.
func (c *Controller) OnInvite(ctx context.Context, inv signal.Invite) error {
	return c.handleInvite(ctx, inv, false)
}

// Recover resumes a persisted, non-stale call after a process restart.
// A foregrounded shell resumes in-UI instead, so recovery only acts in the
// Background and Killed states.
func (c *Controller) Recover(ctx context.Context) error {
	rec, err := c.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("session: recovery load: %w", err)
	}
	if rec == nil {
		return nil
	}
	if c.detector.Current() == procstate.Foreground {
		c.log.Info("persisted call found but shell is foregrounded; leaving resume to UI",
			"channel", rec.ChannelID)
		return nil
	}

	inv := rec.Invite()
	c.journal.Record(ctx, history.Event{
		Kind:          history.EventCallRecovered,
		ChannelID:     inv.ChannelID,
		CallerName:    inv.CallerName,
		ParticipantID: inv.ParticipantID,
	})
	return c.handleInvite(ctx, inv, true)
}

func (c *Controller) handleInvite(ctx context.Context, inv signal.Invite, recovered bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Joining || c.state == Active {
		c.log.Info("invite dropped, call already in progress",
			"channel", inv.ChannelID, "active_channel", c.invite.ChannelID)
		c.journal.Record(ctx, history.Event{
			Kind:      history.EventInviteDropped,
			ChannelID: inv.ChannelID,
			Detail:    "call already in progress",
		})
		return ErrBusy
	}

	c.state = Joining
	c.invite = inv
	c.sessionID = uuid.NewString()
	c.remotes = make(map[int]struct{})
	c.hadRemote = false

	if !recovered {
		c.journal.Record(ctx, history.Event{
			Kind:          history.EventInviteReceived,
			SessionID:     c.sessionID,
			ChannelID:     inv.ChannelID,
			CallerName:    inv.CallerName,
			ParticipantID: inv.ParticipantID,
		})
	}

	// Queried exactly once per invite; importance can change between invites.
	ps := c.detector.Current()
	c.log.Info("auto-join invite accepted",
		"session_id", c.sessionID, "channel", inv.ChannelID, "process_state", ps.String())

	switch ps {
	case procstate.Foreground:
		// Join immediately for perceived latency. The app is visibly
		// running, so no recovery support is needed: no persistence.
		if err := c.joinLocked(ctx, inv); err != nil {
			c.journalJoinFailed(ctx, inv, err)
			c.resetLocked()
			return err
		}
		c.state = Active
		c.journalJoinSucceeded(ctx, inv)
		return nil

	case procstate.Background:
		// Join first (same immediacy), then declare presence and persist.
		// The session goes Active either way so UI and audio stay
		// consistent; on failure the presence notification still tells the
		// user a call was attempted.
		err := c.joinLocked(ctx, inv)
		c.presence.Start(ctx, inv)
		c.persistLocked(ctx, inv)
		c.state = Active
		if err != nil {
			c.journalJoinFailed(ctx, inv, err)
			return err
		}
		c.journalJoinSucceeded(ctx, inv)
		return nil

	default: // procstate.Killed
		// Cold start driven purely by the push: prove user-visible
		// foreground work to the OS before the join, or it may reclaim the
		// process mid-join. Persistence always happens so an app opened
		// later can resume in-UI.
		c.presence.Start(ctx, inv)
		c.persistLocked(ctx, inv)
		if err := c.joinLocked(ctx, inv); err != nil {
			// No foreground UI exists to report to; visibility of the
			// incoming call takes priority over audio success.
			c.log.Error("cold-start join failed, presence kept visible",
				"session_id", c.sessionID, "channel", inv.ChannelID, "err", err)
			c.journalJoinFailed(ctx, inv, err)
			c.state = Active
			return nil
		}
		c.state = Active
		c.journalJoinSucceeded(ctx, inv)
		return nil
	}
}

// Leave ends the session. Cleanup is unconditional: even if the engine-level
// leave fails, the in-memory session, the persisted slot, and presence are
// all cleared and the state returns to Idle. Safe to call from any state.
func (c *Controller) Leave(ctx context.Context, reason LeaveReason) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Idle {
		// No session, but a leftover slot (e.g. a failed cold-start join
		// that was never resumed) still deserves cleanup.
		if err := c.store.Clear(ctx); err != nil {
			c.log.Warn("persisted call clear failed", "err", err)
		}
		return
	}
	c.leaveLocked(ctx, reason)
}

// LeaveManually is the user-initiated hang-up from the control surface.
func (c *Controller) LeaveManually(ctx context.Context) {
	c.Leave(ctx, LeaveReasonManual)
}

// InCall reports whether a session is currently Joining or Active.
func (c *Controller) InCall() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Joining || c.state == Active
}

// CurrentState exposes the lifecycle phase for the control surface.
func (c *Controller) CurrentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CurrentCall returns the in-memory invite when a session is live, falling
// back to the persisted record otherwise.
func (c *Controller) CurrentCall(ctx context.Context) (signal.Invite, bool) {
	c.mu.Lock()
	if c.state == Joining || c.state == Active {
		inv := c.invite
		c.mu.Unlock()
		return inv, true
	}
	c.mu.Unlock()

	rec, err := c.store.Load(ctx)
	if err != nil || rec == nil {
		return signal.Invite{}, false
	}
	return rec.Invite(), true
}

// Mute silences the local party. Only valid while a session is Active: the
// handle may outlive a call, and muting outside one would succeed misleadingly.
func (c *Controller) Mute(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Active {
		return ErrNoCall
	}
	return c.eng.MuteLocal()
}

// Unmute lets the local party be heard. Only valid while a session is Active.
func (c *Controller) Unmute(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Active {
		return ErrNoCall
	}
	return c.eng.UnmuteLocal()
}

// OnBackgrounded covers a call that began foregrounded: once the shell moves
// to the background the session needs presence to survive, and a persisted
// slot so an OS kill is recoverable.
func (c *Controller) OnBackgrounded(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Active {
		return
	}
	if !c.presence.Active() {
		c.presence.Start(ctx, c.invite)
	}
	c.persistLocked(ctx, c.invite)
}

// OnForegrounded deliberately does not stop presence: it keeps running until
// the call legitimately ends, avoiding audio interruption races.
func (c *Controller) OnForegrounded(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Active {
		c.log.Debug("shell foregrounded during active call", "session_id", c.sessionID)
	}
}

func (c *Controller) eventLoop(events <-chan engine.Event) {
	defer close(c.loopDone)
	for ev := range events {
		c.onEngineEvent(ev)
	}
}

// onEngineEvent folds one participant event into the session. When the room
// empties after having been occupied, the controller leaves autonomously:
// the room empties, everyone disconnects.
func (c *Controller) onEngineEvent(ev engine.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Active {
		return
	}

	switch ev.Kind {
	case engine.ParticipantJoined:
		c.remotes[ev.ParticipantID] = struct{}{}
		c.hadRemote = true
		c.log.Debug("remote participant joined",
			"session_id", c.sessionID, "participant", ev.ParticipantID, "remotes", len(c.remotes))
	case engine.ParticipantLeft:
		delete(c.remotes, ev.ParticipantID)
		c.log.Debug("remote participant left",
			"session_id", c.sessionID, "participant", ev.ParticipantID, "remotes", len(c.remotes))
		if c.hadRemote && len(c.remotes) == 0 {
			c.log.Info("room emptied, leaving", "session_id", c.sessionID)
			c.leaveLocked(context.Background(), LeaveReasonRoomEmpty)
		}
	}
}

// joinLocked makes sure the engine is usable and joins. Caller holds c.mu.
// The controller acquires engine ownership exactly once; a handle that turned
// unhealthy afterwards is refreshed without accruing another ownership, so the
// process's single Destroy still closes the handle.
func (c *Controller) joinLocked(ctx context.Context, inv signal.Invite) error {
	if !c.eng.IsHealthy() {
		if !c.engineOwned {
			if err := c.eng.Initialize(); err != nil {
				return fmt.Errorf("session: engine initialize: %w", err)
			}
			c.engineOwned = true
		} else if err := c.eng.Reinitialize(); err != nil {
			return fmt.Errorf("session: engine reinitialize: %w", err)
		}
	}
	if err := c.eng.Join(ctx, inv.ChannelID, inv.Token, inv.ParticipantID); err != nil {
		return err
	}
	// Fresh session: the remote set starts empty.
	c.remotes = make(map[int]struct{})
	c.hadRemote = false
	return nil
}

// leaveLocked performs the engine leave plus unconditional cleanup.
// Caller holds c.mu.
func (c *Controller) leaveLocked(ctx context.Context, reason LeaveReason) {
	c.state = Leaving
	inv := c.invite
	sessionID := c.sessionID

	if err := c.eng.Leave(); err != nil {
		// Deliberate asymmetry with join: leave failures are invisible and
		// never block recovery to Idle.
		c.log.Warn("engine leave failed, cleanup continues",
			"session_id", sessionID, "err", err)
	}
	if err := c.store.Clear(ctx); err != nil {
		c.log.Warn("persisted call clear failed", "session_id", sessionID, "err", err)
	}
	c.presence.Stop(ctx)

	c.journal.Record(ctx, history.Event{
		Kind:          history.EventCallEnded,
		SessionID:     sessionID,
		ChannelID:     inv.ChannelID,
		CallerName:    inv.CallerName,
		ParticipantID: inv.ParticipantID,
		Detail:        string(reason),
	})
	c.resetLocked()
}

func (c *Controller) persistLocked(ctx context.Context, inv signal.Invite) {
	rec := callstate.FromInvite(inv, c.now().UnixMilli())
	if err := c.store.Save(ctx, rec); err != nil {
		c.log.Warn("persisted call save failed", "session_id", c.sessionID, "err", err)
	}
}

func (c *Controller) resetLocked() {
	c.state = Idle
	c.invite = signal.Invite{}
	c.sessionID = ""
	c.remotes = nil
	c.hadRemote = false
}

func (c *Controller) journalJoinSucceeded(ctx context.Context, inv signal.Invite) {
	c.journal.Record(ctx, history.Event{
		Kind:          history.EventJoinSucceeded,
		SessionID:     c.sessionID,
		ChannelID:     inv.ChannelID,
		CallerName:    inv.CallerName,
		ParticipantID: inv.ParticipantID,
	})
}

func (c *Controller) journalJoinFailed(ctx context.Context, inv signal.Invite, err error) {
	c.journal.Record(ctx, history.Event{
		Kind:          history.EventJoinFailed,
		SessionID:     c.sessionID,
		ChannelID:     inv.ChannelID,
		CallerName:    inv.CallerName,
		ParticipantID: inv.ParticipantID,
		Detail:        err.Error(),
	})
}
