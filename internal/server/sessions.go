package server

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Tyrowin/hoodchat/internal/session"
)

// touchSession refreshes the session record of an authenticated client.
func (h *Hub) touchSession(client *Client, roomID string) {
	if client.identity == nil {
		return
	}
	salt := []byte(h.config.Session.IPHashSalt)
	rec := session.Record{
		SessionID:    client.identity.SessionID,
		Nickname:     client.identity.Nickname,
		Avatar:       client.identity.Avatar,
		CurrentRoom:  roomID,
		IPHash:       session.HashIP(client.addr, salt),
		Subnet:       session.Subnet(client.addr),
		ConnectionID: client.id,
		IsActive:     true,
	}
	h.enqueueSession(func(ctx context.Context, store session.Store) error {
		return store.Touch(ctx, rec)
	})
}

// deactivateSession releases the record only if connID still owns it; another
// tab of the same session may have taken it over.
func (h *Hub) deactivateSession(sessionID, connID string) {
	h.enqueueSession(func(ctx context.Context, store session.Store) error {
		err := store.Deactivate(ctx, sessionID, connID)
		if errors.Is(err, session.ErrNotFound) {
			return nil
		}
		return err
	})
}

// enqueueSession hands a write to the session writer without blocking the hub.
func (h *Hub) enqueueSession(op sessionOp) {
	if h.sessions == nil {
		return
	}
	select {
	case h.sessionQueue <- op:
	default:
		h.logger.Warn("session queue full, dropping session update")
	}
}

// runSessionWriter applies session writes in order until the queue is closed.
// Store failures are logged and never reach the clients.
func (h *Hub) runSessionWriter() {
	for op := range h.sessionQueue {
		if h.sessions == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), sessionWriteTimeout)
		if err := op(ctx, h.sessions); err != nil {
			h.logger.Warn("session store write failed", slog.Any("error", err))
		}
		cancel()
	}
}
