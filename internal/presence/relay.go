package presence

import (
	"time"

	"github.com/google/uuid"
)

// Message is a chat message as relayed to every member of a room.
//
// User and Avatar come from the sender's bound identity at send time.
// SessionID and ConnectionID let clients recognise their own messages without
// comparing nicknames.
type Message struct {
	ID           string    `json:"id"`
	User         string    `json:"user"`
	Avatar       string    `json:"avatar"`
	Content      string    `json:"content"`
	Timestamp    time.Time `json:"timestamp"`
	RoomID       string    `json:"roomId"`
	SessionID    string    `json:"sessionId"`
	ConnectionID string    `json:"connectionId"`
}

// Relay builds the message sent by connID and returns every connection in the
// sender's room, the sender included. content is passed through untouched.
func (r *Registry) Relay(connID string, id *Identity, content string) (Message, []string, error) {
	if id == nil {
		return Message{}, nil, ErrNotInRoom
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.current[connID]
	if !ok {
		return Message{}, nil, ErrNotInRoom
	}
	rm, ok := r.rooms[roomID]
	if !ok {
		return Message{}, nil, ErrNotInRoom
	}

	msg := Message{
		ID:           "msg-" + uuid.NewString(),
		User:         id.Nickname,
		Avatar:       id.Avatar,
		Content:      content,
		Timestamp:    r.now().UTC(),
		RoomID:       roomID,
		SessionID:    id.SessionID,
		ConnectionID: connID,
	}
	return msg, rm.connections(""), nil
}
