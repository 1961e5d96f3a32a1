package models

import "encoding/json"

/*
LEARNING: COLLABORATION WIRE PROTOCOL

Every frame on the page channel is a JSON envelope: a type tag plus a raw
payload decoded by whoever handles that type. Keeping the payload as
json.RawMessage means the hub only pays for decoding the messages it
actually dispatches on.
*/

// MessageType tags a frame on the collaboration channel.
type MessageType string

const (
	// Client -> server
	MessageTypeJoin        MessageType = "join"
	MessageTypeHeartbeat   MessageType = "heartbeat"
	MessageTypeLock        MessageType = "lock"
	MessageTypeUnlock      MessageType = "unlock"
	MessageTypeCursor      MessageType = "cursor"
	MessageTypeChat        MessageType = "chat"
	MessageTypePreferences MessageType = "preferences"

	// Server -> client
	MessageTypeRoster      MessageType = "roster"
	MessageTypeLockState   MessageType = "lock_state"
	MessageTypeLockDenied  MessageType = "lock_denied"
	MessageTypeChatHistory MessageType = "chat_history"
	MessageTypeLeave       MessageType = "leave"
	MessageTypeError       MessageType = "error"
)

// Envelope is the frame sent over the websocket in both directions.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload and wraps it with the given type tag.
func NewEnvelope(t MessageType, payload interface{}) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{Type: t, Payload: raw}, nil
}

// Encode renders the envelope to wire bytes.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// JoinPayload announces a user entering or leaving a page room.
type JoinPayload struct {
	User CollaborationUser `json:"user"`
}

// LockPayload requests a lock (client->server) or announces the granted
// lease (server->client, with authoritative ExpiresAt filled in).
type LockPayload struct {
	Lock ComponentLock `json:"lock"`
}

// LockDeniedPayload tells a requester somebody else holds the lease.
type LockDeniedPayload struct {
	ComponentID string `json:"component_id"`
	HolderID    string `json:"holder_id"`
	HolderName  string `json:"holder_name,omitempty"`
}

// UnlockPayload releases (or announces the release of) a lock.
type UnlockPayload struct {
	ComponentID string `json:"component_id"`
	UserID      string `json:"user_id,omitempty"`
}

// CursorPayload broadcasts one user's pointer position.
type CursorPayload struct {
	UserID string         `json:"user_id,omitempty"`
	Cursor CursorPosition `json:"cursor"`
}

// ChatPayload carries one chat message.
type ChatPayload struct {
	Message ChatMessage `json:"message"`
}

// PreferencesPayload carries a partial preferences update.
type PreferencesPayload struct {
	Patch PreferencesPatch `json:"patch"`
}

// RosterPayload is the full presence snapshot for a page.
type RosterPayload struct {
	Users []CollaborationUser `json:"users"`
}

// LockStatePayload is the full live-lock snapshot, sent on join.
type LockStatePayload struct {
	Locks []ComponentLock `json:"locks"`
}

// ChatHistoryPayload is recent chat, sent on join.
type ChatHistoryPayload struct {
	Messages []ChatMessage `json:"messages"`
}

// HeartbeatPayload keeps a session's last-seen fresh and optionally
// overrides the reported status.
type HeartbeatPayload struct {
	Status UserStatus `json:"status,omitempty"`
}

// ErrorPayload reports a channel-level failure to the client.
// Recoverable errors are retried automatically; non-recoverable ones are
// surfaced and left to the user.
type ErrorPayload struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}
