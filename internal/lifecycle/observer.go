// Package lifecycle fans the shell's foreground/background transitions out to
// the parts of the agent that depend on process importance.
package lifecycle

import (
	"context"
	"log/slog"
)

// Marker records shell activity; the process state detector reads it back.
type Marker interface {
	MarkForeground()
	MarkBackground()
}

// Transitioner reacts to a transition with an active session in mind.
type Transitioner interface {
	OnForegrounded(ctx context.Context)
	OnBackgrounded(ctx context.Context)
}

// Observer is the single entry point for shell transition reports. The marker
// is always updated before the session callback runs, so anything the session
// decides to do sees the new process state.
type Observer struct {
	marker  Marker
	session Transitioner
	log     *slog.Logger
}

func NewObserver(marker Marker, session Transitioner, log *slog.Logger) *Observer {
	if log == nil {
		log = slog.Default()
	}
	return &Observer{marker: marker, session: session, log: log}
}

func (o *Observer) Foregrounded(ctx context.Context) {
	o.log.Debug("shell foregrounded")
	o.marker.MarkForeground()
	o.session.OnForegrounded(ctx)
}

func (o *Observer) Backgrounded(ctx context.Context) {
	o.log.Debug("shell backgrounded")
	o.marker.MarkBackground()
	o.session.OnBackgrounded(ctx)
}
