package server_test

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/hoodchat/internal/presence"
	"github.com/Tyrowin/hoodchat/internal/protocol"
	"github.com/Tyrowin/hoodchat/internal/server"
)

// TestWebSocketOriginPolicy verifies the upgrade is refused for unknown or missing origins.
func TestWebSocketOriginPolicy(t *testing.T) {
	f := startRelay(t, nil)

	tests := []struct {
		name   string
		origin string
		ok     bool
	}{
		{"allowed origin", testOrigin, true},
		{"disallowed origin", "http://evil.example", false},
		{"missing origin", "", false},
		{"malformed origin", "not a url", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, resp, err := f.dial(t, tt.origin)
			if resp != nil {
				defer func() { _ = resp.Body.Close() }()
			}
			if tt.ok {
				if err != nil {
					t.Fatalf("Expected connection to succeed: %v", err)
				}
				_ = conn.Close()
				return
			}
			if err == nil {
				_ = conn.Close()
				t.Fatal("Expected handshake to be refused")
			}
			if resp == nil || resp.StatusCode != http.StatusForbidden {
				t.Errorf("Expected 403 response, got %v", resp)
			}
		})
	}
}

// TestChatOverWebSocket runs the whole lifecycle for two clients over real sockets.
func TestChatOverWebSocket(t *testing.T) {
	f := startRelay(t, nil)

	ann, ben := f.connect(t), f.connect(t)
	authenticateAndJoin(t, ann, "Ann", presence.JoinRequest{Type: presence.TypeGlobal})
	joined := authenticateAndJoin(t, ben, "Ben", presence.JoinRequest{Type: presence.TypeGlobal})
	if len(joined.Room.Participants) != 2 {
		t.Fatalf("Ben should see 2 participants, got %d", len(joined.Room.Participants))
	}

	var userJoined protocol.UserJoinedEvent
	readEvent(t, ann, protocol.EventUserJoined, &userJoined)
	if userJoined.User.Nickname != "Ben" {
		t.Errorf("Expected Ben to join, got %+v", userJoined.User)
	}

	sendOp(t, ben, protocol.OpSendMessage, map[string]string{"content": "hi Ann"})
	for _, conn := range []*websocket.Conn{ann, ben} {
		var msg presence.Message
		readEvent(t, conn, protocol.EventReceiveMessage, &msg)
		if msg.Content != "hi Ann" || msg.User != "Ben" || msg.RoomID != presence.GlobalRoomID {
			t.Errorf("Unexpected message %+v", msg)
		}
		if !strings.HasPrefix(msg.ID, "msg-") || msg.Timestamp.IsZero() {
			t.Errorf("Message should carry an id and a timestamp, got %+v", msg)
		}
	}

	closeWebSocket(t, ben)

	var left protocol.UserLeftEvent
	readEvent(t, ann, protocol.EventUserLeft, &left)
	if left.Nickname != "Ben" || len(left.AllParticipants) != 1 || left.AllParticipants[0].Nickname != "Ann" {
		t.Errorf("Unexpected user-left %+v", left)
	}

	closeWebSocket(t, ann)
	waitFor(t, "global room to be reaped", func() bool {
		return f.hub.Registry().RoomCount() == 0
	})
}

// TestOversizedFrameDisconnects verifies frames over the size limit end the connection.
func TestOversizedFrameDisconnects(t *testing.T) {
	f := startRelay(t, func(cfg *server.Config) {
		cfg.MaxMessageSize = 256
	})

	ann, ben := f.connect(t), f.connect(t)
	authenticateAndJoin(t, ann, "Ann", presence.JoinRequest{Code: "SIZE"})
	authenticateAndJoin(t, ben, "Ben", presence.JoinRequest{Code: "SIZE"})
	readEvent(t, ann, protocol.EventUserJoined, nil)

	sendOp(t, ben, protocol.OpSendMessage, map[string]string{"content": strings.Repeat("x", 1024)})

	var left protocol.UserLeftEvent
	readEvent(t, ann, protocol.EventUserLeft, &left)
	if left.Nickname != "Ben" {
		t.Errorf("Expected Ben to be dropped, got %+v", left)
	}
	expectNoMessage(t, ann, 100*time.Millisecond)
}

// TestRateLimitDiscardsExcessFrames verifies frames beyond the burst are dropped silently.
func TestRateLimitDiscardsExcessFrames(t *testing.T) {
	f := startRelay(t, func(cfg *server.Config) {
		cfg.RateLimit = server.RateLimitConfig{Burst: 3, RefillInterval: time.Hour}
	})

	conn := f.connect(t)
	authenticateAndJoin(t, conn, "Spammer", presence.JoinRequest{Type: presence.TypeGlobal})

	sendOp(t, conn, protocol.OpPing, nil)
	readEvent(t, conn, protocol.EventPong, nil)

	sendOp(t, conn, protocol.OpPing, nil)
	expectNoMessage(t, conn, 200*time.Millisecond)
}

// TestShutdownClosesConnections verifies hub shutdown closes every open socket.
func TestShutdownClosesConnections(t *testing.T) {
	f := startRelay(t, nil)

	conns := []*websocket.Conn{f.connect(t), f.connect(t)}
	waitFor(t, "clients to register", func() bool {
		return f.hub.Stats().Connections == len(conns)
	})

	if err := f.hub.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}

	for i, conn := range conns {
		if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
			t.Fatal(err)
		}
		if _, _, err := conn.ReadMessage(); err == nil {
			t.Errorf("connection %d should be closed after shutdown", i)
		}
	}
}
