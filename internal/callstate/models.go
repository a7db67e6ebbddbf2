// Package callstate persists the single in-flight call so a session can be
// recovered across an unplanned process restart.
package callstate

import (
	"context"
	"time"

	"pushtalk-agent/internal/signal"
)

// DefaultRecoveryWindow bounds how old a persisted call may be and still be
// resumed. Anything older is stale and discarded at load time.
const DefaultRecoveryWindow = 30 * time.Minute

// PersistedCall is the durable mirror of the active session's invite.
type PersistedCall struct {
	IsActive            bool   `json:"is_in_active_call"`
	Token               string `json:"agora_token"`
	ParticipantID       int    `json:"agora_uid"`
	ChannelID           string `json:"agora_channel_id"`
	CallerName          string `json:"caller_name"`
	CallerPhoto         string `json:"caller_photo"`
	JoinTimestampMillis int64  `json:"join_timestamp"`
}

// FromInvite builds the durable record for an invite joined at joinMillis.
func FromInvite(inv signal.Invite, joinMillis int64) PersistedCall {
	return PersistedCall{
		IsActive:            true,
		Token:               inv.Token,
		ParticipantID:       inv.ParticipantID,
		ChannelID:           inv.ChannelID,
		CallerName:          inv.CallerName,
		CallerPhoto:         inv.CallerPhoto,
		JoinTimestampMillis: joinMillis,
	}
}

// Invite reconstructs the invite carried by the record.
func (p PersistedCall) Invite() signal.Invite {
	return signal.Invite{
		Token:           p.Token,
		ParticipantID:   p.ParticipantID,
		ChannelID:       p.ChannelID,
		CallerName:      p.CallerName,
		CallerPhoto:     p.CallerPhoto,
		TimestampMillis: p.JoinTimestampMillis,
	}
}

// Store is a single-slot durable store: Save always overwrites any prior
// entry, and there is never more than one persisted call.
//
// Load evaluates staleness: a record older than the recovery window is
// treated as absent and cleared as a side effect. Load returns (nil, nil)
// when nothing usable is stored.
type Store interface {
	Save(ctx context.Context, rec PersistedCall) error
	Load(ctx context.Context) (*PersistedCall, error)
	Clear(ctx context.Context) error
}
