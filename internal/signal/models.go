package signal

// Invite is a validated call invite parsed from a push payload.
//
// Invariants:
// - An Invite is only constructed by Classify; a payload that fails
//   validation never becomes an Invite.
// - CallerPhoto is the only optional field.
type Invite struct {
	Token           string `json:"agora_token"`
	ParticipantID   int    `json:"agora_uid"`
	ChannelID       string `json:"agora_channelid"`
	CallerName      string `json:"call_name"`
	CallerPhoto     string `json:"caller_photo,omitempty"`
	TimestampMillis int64  `json:"timestamp"`
}
