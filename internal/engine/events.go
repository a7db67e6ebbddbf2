// Package engine owns the single handle to the real-time audio engine and
// makes every operation on it idempotent and retryable.
package engine

// EventKind identifies a participant event delivered by the engine.
type EventKind int

const (
	// ParticipantJoined: a remote participant entered the channel.
	ParticipantJoined EventKind = iota + 1
	// ParticipantLeft: a remote participant left the channel.
	ParticipantLeft
)

func (k EventKind) String() string {
	switch k {
	case ParticipantJoined:
		return "participant_joined"
	case ParticipantLeft:
		return "participant_left"
	default:
		return "unknown"
	}
}

// Event is one participant event from the engine's callback stream.
type Event struct {
	Kind          EventKind
	ParticipantID int
}
