// Package protocol defines the tagged JSON envelopes exchanged over the chat
// WebSocket, one record type per inbound operation and outbound event.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Tyrowin/hoodchat/internal/presence"
)

// Inbound operations.
const (
	OpAuthenticate = "authenticate"
	OpJoinRoom     = "join-room"
	OpLeaveRoom    = "leave-room"
	OpSendMessage  = "send-message"
	OpPing         = "ping"
)

// Outbound events.
const (
	EventAuthenticated  = "authenticated"
	EventRoomJoined     = "room-joined"
	EventRoomLeft       = "room-left"
	EventUserJoined     = "user-joined"
	EventUserLeft       = "user-left"
	EventReceiveMessage = "receive-message"
	EventMessageError   = "message-error"
	EventError          = "error"
	EventPong           = "pong"
)

// Error codes carried by EventError.
const (
	CodeMalformedPayload = "malformed_payload"
	CodeNotAuthenticated = "not_authenticated"
	CodeUnknownOp        = "unknown_op"
)

// Envelope is the frame every message travels in.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Decode parses a raw frame into an envelope.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", presence.ErrMalformedPayload, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", presence.ErrMalformedPayload)
	}
	return env, nil
}

// Bind decodes the envelope data into v. Absent data decodes as an empty object.
func (e Envelope) Bind(v any) error {
	data := bytes.TrimSpace(e.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		data = []byte("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", presence.ErrMalformedPayload, err)
	}
	return nil
}

// Encode wraps data in an envelope of the given type.
func Encode(eventType string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: eventType, Data: raw})
}

// AuthenticateRequest is the payload of OpAuthenticate.
type AuthenticateRequest struct {
	SessionID string `json:"sessionId"`
	Nickname  string `json:"nickname"`
	Avatar    string `json:"avatar"`
}

// SendMessageRequest is the payload of OpSendMessage. Content is a pointer so
// an absent field can be told apart from an empty message.
type SendMessageRequest struct {
	Content *string `json:"content"`
}

// AuthenticatedEvent acknowledges OpAuthenticate.
type AuthenticatedEvent struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId,omitempty"`
	Nickname  string `json:"nickname,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RoomJoinedEvent is sent to the joining connection.
type RoomJoinedEvent struct {
	Room presence.RoomSnapshot `json:"room"`
}

// RoomLeftEvent acknowledges OpLeaveRoom.
type RoomLeftEvent struct {
	RoomID string `json:"roomId"`
}

// UserJoinedEvent is sent to the other members of a room.
type UserJoinedEvent struct {
	User            presence.Member   `json:"user"`
	RoomID          string            `json:"roomId"`
	AllParticipants []presence.Member `json:"allParticipants"`
}

// UserLeftEvent is sent to the remaining members of a room.
type UserLeftEvent struct {
	SessionID       string            `json:"sessionId"`
	Nickname        string            `json:"nickname"`
	RoomID          string            `json:"roomId"`
	AllParticipants []presence.Member `json:"allParticipants"`
}

// MessageErrorEvent reports a rejected OpSendMessage.
type MessageErrorEvent struct {
	Error string `json:"error"`
}

// ErrorEvent reports any other rejected operation.
type ErrorEvent struct {
	Op    string `json:"op"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

// PongEvent answers OpPing.
type PongEvent struct {
	Timestamp time.Time `json:"timestamp"`
}
