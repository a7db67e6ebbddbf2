package procstate

import (
	"sync"
	"time"
)

// ActivityProbe derives the process state from shell activity heartbeats.
//
// The shell marks foreground/background transitions through the lifecycle
// endpoints. A foreground mark decays after the freshness window so a shell
// that died without reporting background does not pin the agent in
// Foreground forever.
type ActivityProbe struct {
	mu sync.Mutex

	freshness time.Duration
	now       func() time.Time

	lastForeground time.Time
	shellSeen      bool
}

func NewActivityProbe(freshness time.Duration) *ActivityProbe {
	if freshness <= 0 {
		freshness = 15 * time.Second
	}
	return &ActivityProbe{freshness: freshness, now: time.Now}
}

// MarkForeground records that the shell is visibly in front right now.
func (p *ActivityProbe) MarkForeground() {
	p.mu.Lock()
	p.lastForeground = p.now()
	p.shellSeen = true
	p.mu.Unlock()
}

// MarkBackground records that the shell moved out of the foreground.
func (p *ActivityProbe) MarkBackground() {
	p.mu.Lock()
	p.lastForeground = time.Time{}
	p.shellSeen = true
	p.mu.Unlock()
}

// Current computes the importance class fresh on every call.
func (p *ActivityProbe) Current() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.lastForeground.IsZero() && p.now().Sub(p.lastForeground) <= p.freshness {
		return Foreground
	}
	if p.shellSeen {
		return Background
	}
	return Killed
}
