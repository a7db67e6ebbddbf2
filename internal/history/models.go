package history

import "time"

// Event is an immutable, append-only call event record.
//
// Invariants:
// - Events are never updated or deleted.
// - Recording is best-effort; the call path never blocks on history failures.
//
// Storage recommendation (Postgres):
// - Table call_events with an INSERT-only policy.
// - Optional: partition by time for retention.
type Event struct {
	ID string `json:"id" db:"id"`

	// Kind indicates the lifecycle moment the record captures.
	Kind EventKind `json:"kind" db:"kind"`

	// Call identifiers (optional, depending on the event kind).
	SessionID     string `json:"session_id,omitempty" db:"session_id"`
	ChannelID     string `json:"channel_id,omitempty" db:"channel_id"`
	CallerName    string `json:"caller_name,omitempty" db:"caller_name"`
	ParticipantID int    `json:"participant_id,omitempty" db:"participant_id"`

	// Detail is a short human-readable description for internal ops.
	Detail string `json:"detail,omitempty" db:"detail"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventKind string

const (
	EventInviteReceived EventKind = "invite_received"
	EventInviteDropped  EventKind = "invite_dropped"
	EventJoinSucceeded  EventKind = "join_succeeded"
	EventJoinFailed     EventKind = "join_failed"
	EventCallEnded      EventKind = "call_ended"
	EventCallRecovered  EventKind = "call_recovered"
	EventStaleDiscarded EventKind = "call_discarded_stale"
)
