package server_test

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/hoodchat/internal/presence"
	"github.com/Tyrowin/hoodchat/internal/protocol"
	"github.com/Tyrowin/hoodchat/internal/server"
)

const testOrigin = "http://localhost:8080"

// relayFixture is a running hub behind a real HTTP test server.
type relayFixture struct {
	hub    *server.Hub
	server *httptest.Server
}

// startRelay boots a hub and the full router. customize may adjust the config.
func startRelay(t *testing.T, customize func(cfg *server.Config)) *relayFixture {
	t.Helper()

	cfg := server.NewConfig()
	if customize != nil {
		customize(cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := server.NewHub(cfg, presence.NewRegistry(logger), nil, logger)
	go hub.Run()

	testServer := httptest.NewServer(server.SetupRoutes(hub))
	t.Cleanup(func() {
		testServer.Close()
		if err := hub.Shutdown(2 * time.Second); err != nil {
			t.Errorf("hub shutdown failed: %v", err)
		}
	})

	return &relayFixture{hub: hub, server: testServer}
}

func (f *relayFixture) wsURL() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
}

// dial opens a WebSocket connection with the given Origin header.
func (f *relayFixture) dial(t *testing.T, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	return dialer.Dial(f.wsURL(), header)
}

// connect dials with an allowed origin and fails the test on error.
func (f *relayFixture) connect(t *testing.T) *websocket.Conn {
	t.Helper()

	conn, resp, err := f.dial(t, testOrigin)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// makeRequest performs an HTTP request against the fixture.
func (f *relayFixture) makeRequest(t *testing.T, method, path string, header http.Header) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, f.server.URL+path, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func assertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("Failed to decode response body: %v", err)
	}
}

// sendOp writes one operation envelope.
func sendOp(t *testing.T, conn *websocket.Conn, op string, data any) {
	t.Helper()

	frame := map[string]any{"type": op}
	if data != nil {
		frame["data"] = data
	}
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("Failed to send %s: %v", op, err)
	}
}

// readEvent reads the next event, fails if it is not eventType, and decodes its data into out.
func readEvent(t *testing.T, conn *websocket.Conn, eventType string, out any) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	var env protocol.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("Failed to read %s: %v", eventType, err)
	}
	if env.Type != eventType {
		t.Fatalf("Expected event %s, got %s (%s)", eventType, env.Type, env.Data)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			t.Fatalf("Failed to decode %s: %v", eventType, err)
		}
	}
}

func expectNoMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, raw, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("Expected no message, but received %s", raw)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return
	}
	t.Fatalf("Unexpected error while waiting for absence of message: %v", err)
}

// authenticateAndJoin runs the handshake every chat client performs.
func authenticateAndJoin(t *testing.T, conn *websocket.Conn, nickname string, req presence.JoinRequest) protocol.RoomJoinedEvent {
	t.Helper()

	sendOp(t, conn, protocol.OpAuthenticate, protocol.AuthenticateRequest{
		SessionID: "session-" + nickname,
		Nickname:  nickname,
		Avatar:    "https://avatars.example/" + nickname + ".png",
	})
	var ack protocol.AuthenticatedEvent
	readEvent(t, conn, protocol.EventAuthenticated, &ack)
	if !ack.Success {
		t.Fatalf("Authentication of %s failed: %s", nickname, ack.Error)
	}

	sendOp(t, conn, protocol.OpJoinRoom, req)
	var joined protocol.RoomJoinedEvent
	readEvent(t, conn, protocol.EventRoomJoined, &joined)
	return joined
}

func closeWebSocket(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		t.Errorf("Failed to send close message: %v", err)
	}
	_ = conn.Close()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}
