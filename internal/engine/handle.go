package engine

import "context"

// Handle is one live connection to the audio engine.
//
// Implementations deliver participant events through the callback passed to
// their factory; the adapter fans those out to subscribers.
type Handle interface {
	Join(ctx context.Context, channelID, token string, participantID int) error
	Leave() error
	SetMuted(muted bool) error
	Healthy() bool
	Close() error
}

// HandleFactory constructs a Handle and wires its event callback.
//
// The adapter holds two factories: the normal initialization path and a
// minimal direct-construction fallback used as the last resort of the join
// escalation sequence.
type HandleFactory func(onEvent func(Event)) (Handle, error)
