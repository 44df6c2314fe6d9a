package presence

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxNicknameLength is the longest accepted nickname, counted in runes after trimming.
const MaxNicknameLength = 20

// Identity is the claimed (session, nickname, avatar) tuple bound to a connection.
// Nothing is verified against a credential store.
type Identity struct {
	SessionID string `json:"sessionId"`
	Nickname  string `json:"nickname"`
	Avatar    string `json:"avatar"`
}

// NewIdentity trims the nickname and checks that every field is present.
func NewIdentity(sessionID, nickname, avatar string) (Identity, error) {
	nickname = strings.TrimSpace(nickname)

	switch {
	case strings.TrimSpace(sessionID) == "":
		return Identity{}, fmt.Errorf("%w: sessionId is required", ErrMalformedPayload)
	case nickname == "":
		return Identity{}, fmt.Errorf("%w: nickname is required", ErrMalformedPayload)
	case utf8.RuneCountInString(nickname) > MaxNicknameLength:
		return Identity{}, fmt.Errorf("%w: nickname exceeds %d characters", ErrMalformedPayload, MaxNicknameLength)
	case strings.TrimSpace(avatar) == "":
		return Identity{}, fmt.Errorf("%w: avatar is required", ErrMalformedPayload)
	}

	return Identity{SessionID: sessionID, Nickname: nickname, Avatar: avatar}, nil
}

// Member is the presence record of one connection inside one room.
type Member struct {
	SessionID    string `json:"sessionId"`
	Nickname     string `json:"nickname"`
	Avatar       string `json:"avatar"`
	ConnectionID string `json:"connectionId"`
	IsActive     bool   `json:"isActive"`
}

func newMember(id Identity, connID string) Member {
	return Member{
		SessionID:    id.SessionID,
		Nickname:     id.Nickname,
		Avatar:       id.Avatar,
		ConnectionID: connID,
		IsActive:     true,
	}
}
