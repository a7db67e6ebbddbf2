package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrNotInitialized is returned when an operation needs a live handle
	// and Initialize has not succeeded.
	ErrNotInitialized = errors.New("engine: not initialized")

	// ErrJoinFailed is the terminal error of the join escalation sequence.
	// A join that fails after the fallback path is not retried again.
	ErrJoinFailed = errors.New("engine: join failed after fallback")
)

// joinRetryBackoff is the single bounded pause between the reinitialize and
// the retry, letting engine warm-up settle. There is no unbounded retry loop
// anywhere in this package.
const joinRetryBackoff = 300 * time.Millisecond

// Adapter owns the engine handle and serializes all operations on it.
//
// Ownership: every component that calls Initialize becomes a co-owner.
// Destroy only releases the handle once the last owner has called it; the
// default teardown for a call is Leave (leave-channel), never Destroy.
type Adapter struct {
	mu sync.Mutex

	factory  HandleFactory
	fallback HandleFactory
	log      *slog.Logger

	backoff time.Duration
	sleep   func(time.Duration)

	handle Handle
	owners int
	joined bool
	muted  bool

	hub *hub
}

func NewAdapter(primary, fallback HandleFactory, log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		factory:  primary,
		fallback: fallback,
		log:      log,
		backoff:  joinRetryBackoff,
		sleep:    time.Sleep,
		hub:      newHub(),
	}
}

// Initialize makes sure a healthy handle exists and registers the caller as
// a co-owner. Idempotent for the handle: an existing healthy handle is
// reused. Every Initialize acquires exactly one ownership, paired with one
// Destroy; an owner whose handle turned unhealthy refreshes it with
// Reinitialize instead of acquiring again.
func (a *Adapter) Initialize() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.owners++
	if a.handle != nil && a.handle.Healthy() {
		return nil
	}
	if err := a.reinitLocked(a.factory); err != nil {
		a.owners--
		return err
	}
	return nil
}

// Reinitialize rebuilds the handle for an existing owner without acquiring a
// new ownership. Used when the handle turned unhealthy between calls.
func (a *Adapter) Reinitialize() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.owners == 0 {
		return ErrNotInitialized
	}
	if a.handle != nil && a.handle.Healthy() {
		return nil
	}
	return a.reinitLocked(a.factory)
}

// IsHealthy reports whether a join attempt can proceed without
// re-initialization.
func (a *Adapter) IsHealthy() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.handle != nil && a.handle.Healthy()
}

// Join runs the full escalation sequence against the current handle:
//
//	join → reinitialize once → 300ms backoff → retry once →
//	fallback direct construction → one final retry → ErrJoinFailed
//
// On success the local party is muted immediately; the local side starts
// silent until it explicitly begins speaking.
func (a *Adapter) Join(ctx context.Context, channelID, token string, participantID int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.handle == nil {
		return ErrNotInitialized
	}

	err := a.handle.Join(ctx, channelID, token, participantID)
	if err == nil {
		a.afterJoinLocked()
		return nil
	}
	a.log.Warn("engine join failed, reinitializing", "channel", channelID, "err", err)

	// Reinitialize once and retry once after a short fixed backoff.
	if rerr := a.reinitLocked(a.factory); rerr != nil {
		a.log.Warn("engine reinitialize failed", "err", rerr)
	} else {
		a.sleep(a.backoff)
		if err = a.handle.Join(ctx, channelID, token, participantID); err == nil {
			a.afterJoinLocked()
			return nil
		}
		a.log.Warn("engine join retry failed", "channel", channelID, "err", err)
	}

	// Last resort: build a new engine instance directly with minimal
	// configuration, bypassing the normal initialization path.
	if a.fallback == nil {
		return fmt.Errorf("%w: %v", ErrJoinFailed, err)
	}
	if rerr := a.reinitLocked(a.fallback); rerr != nil {
		a.log.Error("engine fallback construction failed", "err", rerr)
		return fmt.Errorf("%w: %v", ErrJoinFailed, rerr)
	}
	if err = a.handle.Join(ctx, channelID, token, participantID); err == nil {
		a.log.Info("engine joined via fallback construction", "channel", channelID)
		a.afterJoinLocked()
		return nil
	}
	return fmt.Errorf("%w: %v", ErrJoinFailed, err)
}

// Leave leaves the channel. Idempotent: safe even if not currently joined.
// The handle stays alive; leaving a live handle in place is the default
// teardown (see Destroy).
func (a *Adapter) Leave() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.handle == nil || !a.joined {
		return nil
	}
	a.joined = false
	if err := a.handle.Leave(); err != nil {
		return fmt.Errorf("engine: leave: %w", err)
	}
	return nil
}

// MuteLocal silences the local party. Idempotent.
func (a *Adapter) MuteLocal() error {
	return a.setMuted(true)
}

// UnmuteLocal lets the local party be heard. Idempotent.
func (a *Adapter) UnmuteLocal() error {
	return a.setMuted(false)
}

func (a *Adapter) setMuted(muted bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.handle == nil {
		return ErrNotInitialized
	}
	if a.muted == muted {
		return nil
	}
	if err := a.handle.SetMuted(muted); err != nil {
		return fmt.Errorf("engine: set muted: %w", err)
	}
	a.muted = muted
	return nil
}

// Destroy releases the caller's ownership. The handle is only closed when no
// owner remains; a foreground call UI sharing the handle keeps it alive.
func (a *Adapter) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.owners > 0 {
		a.owners--
	}
	if a.owners > 0 || a.handle == nil {
		return
	}
	if err := a.handle.Close(); err != nil {
		a.log.Warn("engine handle close failed", "err", err)
	}
	a.handle = nil
	a.joined = false
}

// Events subscribes to the participant event stream. Multiple subscribers
// each get the full stream; cancel releases the subscription.
func (a *Adapter) Events() (<-chan Event, func()) {
	return a.hub.subscribe()
}

func (a *Adapter) afterJoinLocked() {
	a.joined = true
	// Default-muted immediately after join.
	a.muted = true
	if err := a.handle.SetMuted(true); err != nil {
		a.log.Warn("engine default mute failed", "err", err)
	}
}

// reinitLocked swaps in a fresh handle from f, closing the old one first.
// Caller holds a.mu.
func (a *Adapter) reinitLocked(f HandleFactory) error {
	if a.handle != nil {
		_ = a.handle.Close()
		a.handle = nil
		a.joined = false
	}
	h, err := f(a.hub.publish)
	if err != nil {
		return err
	}
	a.handle = h
	a.muted = false
	return nil
}
