// Package signal classifies inbound push payloads.
//
// The push relay delivers opaque string key/value payloads. Only silent,
// data-only messages carrying the full call invite schema are routed to the
// call session controller; anything with display-notification fields belongs
// to the general notification path and is never treated as an invite.
package signal

import "strconv"

// Push payload keys. All values are strings on the wire.
const (
	keyToken     = "agora_token"
	keyUID       = "agora_uid"
	keyChannelID = "agora_channelid"
	keyCallName  = "call_name"
	keyPhoto     = "caller_photo"
	keyTimestamp = "timestamp"

	// Display-notification fields some relays fold into the data map.
	keyTitle = "title"
	keyBody  = "body"
)

// IsGeneralNotification reports whether the message belongs to the
// user-visible notification path. A message is routed as a call invite only
// if it is NOT a general notification; the two classifications are mutually
// exclusive.
func IsGeneralNotification(payload map[string]string, hasNotification bool) bool {
	if hasNotification {
		return true
	}
	return payload[keyTitle] != "" || payload[keyBody] != ""
}

// Classify parses a push payload into an Invite.
//
// It is a pure function: no side effects, no I/O, safe to call redundantly.
// It returns ok=false for display notifications, for payloads missing any
// required field, and for non-numeric agora_uid or timestamp.
func Classify(payload map[string]string, hasNotification bool) (Invite, bool) {
	if IsGeneralNotification(payload, hasNotification) {
		return Invite{}, false
	}

	token := payload[keyToken]
	channelID := payload[keyChannelID]
	callerName := payload[keyCallName]
	if token == "" || channelID == "" || callerName == "" {
		return Invite{}, false
	}

	uid, err := strconv.Atoi(payload[keyUID])
	if err != nil {
		return Invite{}, false
	}

	ts, err := strconv.ParseInt(payload[keyTimestamp], 10, 64)
	if err != nil {
		return Invite{}, false
	}

	return Invite{
		Token:           token,
		ParticipantID:   uid,
		ChannelID:       channelID,
		CallerName:      callerName,
		CallerPhoto:     payload[keyPhoto],
		TimestampMillis: ts,
	}, true
}
