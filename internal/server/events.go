package server

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Tyrowin/hoodchat/internal/presence"
	"github.com/Tyrowin/hoodchat/internal/protocol"
)

// dispatch decodes one inbound frame and runs the matching operation. Errors
// go back to the originating client only.
func (h *Hub) dispatch(client *Client, raw []byte) {
	if !h.isLive(client) {
		h.logger.Debug("dropping frame from unregistered client", slog.String("connID", client.id))
		return
	}

	env, err := protocol.Decode(raw)
	if err != nil {
		client.logger.Warn("invalid frame", slog.Any("error", err))
		h.replyError(client, "", err)
		return
	}

	switch env.Type {
	case protocol.OpAuthenticate:
		h.handleAuthenticate(client, env)
	case protocol.OpJoinRoom:
		h.handleJoinRoom(client, env)
	case protocol.OpLeaveRoom:
		h.handleLeaveRoom(client)
	case protocol.OpSendMessage:
		h.handleSendMessage(client, env)
	case protocol.OpPing:
		h.reply(client, protocol.EventPong, protocol.PongEvent{Timestamp: time.Now().UTC()})
	default:
		client.logger.Warn("unknown operation", slog.String("op", env.Type))
		h.reply(client, protocol.EventError, protocol.ErrorEvent{
			Op:    env.Type,
			Code:  protocol.CodeUnknownOp,
			Error: fmt.Sprintf("unknown operation %q", env.Type),
		})
	}
}

func (h *Hub) replyError(client *Client, op string, err error) {
	code := protocol.CodeMalformedPayload
	if errors.Is(err, presence.ErrNotAuthenticated) {
		code = protocol.CodeNotAuthenticated
	}
	h.reply(client, protocol.EventError, protocol.ErrorEvent{Op: op, Code: code, Error: err.Error()})
}

// handleAuthenticate binds the claimed identity. A second call rebinds it; a
// failed call leaves the previous identity in place.
func (h *Hub) handleAuthenticate(client *Client, env protocol.Envelope) {
	var req protocol.AuthenticateRequest
	if err := env.Bind(&req); err != nil {
		h.reply(client, protocol.EventAuthenticated, protocol.AuthenticatedEvent{Success: false, Error: err.Error()})
		return
	}

	id, err := presence.NewIdentity(req.SessionID, req.Nickname, req.Avatar)
	if err != nil {
		client.logger.Info("authentication rejected", slog.Any("error", err))
		h.reply(client, protocol.EventAuthenticated, protocol.AuthenticatedEvent{Success: false, Error: err.Error()})
		return
	}

	if client.identity != nil {
		client.logger.Info("identity rebound",
			slog.String("from", client.identity.Nickname),
			slog.String("to", id.Nickname),
		)
	}
	client.identity = &id
	client.logger.Info("client authenticated", slog.String("nickname", id.Nickname))

	h.reply(client, protocol.EventAuthenticated, protocol.AuthenticatedEvent{
		Success:   true,
		SessionID: id.SessionID,
		Nickname:  id.Nickname,
	})

	roomID, _ := h.registry.CurrentRoom(client.id)
	h.touchSession(client, roomID)
}

func (h *Hub) handleJoinRoom(client *Client, env protocol.Envelope) {
	if client.identity == nil {
		h.replyError(client, protocol.OpJoinRoom, presence.ErrNotAuthenticated)
		return
	}

	var req presence.JoinRequest
	if err := env.Bind(&req); err != nil {
		h.replyError(client, protocol.OpJoinRoom, err)
		return
	}

	res, err := h.registry.Join(client.id, client.identity, req)
	if err != nil {
		h.replyError(client, protocol.OpJoinRoom, err)
		return
	}

	if res.Left != nil {
		h.announceLeave(*res.Left)
	}
	h.reply(client, protocol.EventRoomJoined, protocol.RoomJoinedEvent{Room: res.Room})
	h.fanout(res.Notify, protocol.EventUserJoined, protocol.UserJoinedEvent{
		User:            res.Member,
		RoomID:          res.Room.RoomID,
		AllParticipants: res.Room.Participants,
	})

	h.touchSession(client, res.Room.RoomID)
}

func (h *Hub) handleLeaveRoom(client *Client) {
	res, ok := h.registry.Leave(client.id, client.identity)
	if !ok {
		client.logger.Info("leave-room ignored, client is not in a room")
		return
	}

	h.announceLeave(res)
	h.reply(client, protocol.EventRoomLeft, protocol.RoomLeftEvent{RoomID: res.RoomID})
	h.touchSession(client, "")
}

func (h *Hub) handleSendMessage(client *Client, env protocol.Envelope) {
	var req protocol.SendMessageRequest
	if err := env.Bind(&req); err != nil {
		h.reply(client, protocol.EventMessageError, protocol.MessageErrorEvent{Error: err.Error()})
		return
	}
	if req.Content == nil {
		h.reply(client, protocol.EventMessageError, protocol.MessageErrorEvent{
			Error: fmt.Errorf("%w: content is required", presence.ErrMalformedPayload).Error(),
		})
		return
	}

	msg, targets, err := h.registry.Relay(client.id, client.identity, *req.Content)
	if err != nil {
		h.reply(client, protocol.EventMessageError, protocol.MessageErrorEvent{Error: err.Error()})
		return
	}

	h.fanout(targets, protocol.EventReceiveMessage, msg)
	h.touchSession(client, msg.RoomID)
}
