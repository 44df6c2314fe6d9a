// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the read-only room listing.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

func newUpgrader(policy *originPolicy) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     policy.checkOrigin,
	}
}

// webSocketHandler upgrades the request and hands the new client to the hub,
// which launches its read/write pumps.
func webSocketHandler(hub *Hub, policy *originPolicy) http.HandlerFunc {
	upgrader := newUpgrader(policy)

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.logger.Warn("WebSocket upgrade failed", slog.Any("error", err))
			return
		}

		client := NewClient(conn, hub, r.RemoteAddr)
		if !hub.Register(client) {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			_ = conn.Close()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Default().Warn("error writing JSON response", slog.Any("error", err))
	}
}

// RootHandler describes the service.
func RootHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Hood chat relay",
		"status":  "Running",
		"endpoints": map[string]string{
			"health": "/api/health",
			"rooms":  "/api/rooms",
			"socket": "/ws",
		},
	})
}

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Message       string  `json:"message"`
	Status        string  `json:"status"`
	Rooms         int     `json:"rooms"`
	Connections   int     `json:"connections"`
	Uptime        string  `json:"uptime"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

// HealthHandler reports process health with live room and connection counts.
func HealthHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		stats := hub.Stats()
		writeJSON(w, http.StatusOK, HealthResponse{
			Message:       "Backend server is running!",
			Status:        "ok",
			Rooms:         stats.Rooms,
			Connections:   stats.Connections,
			Uptime:        stats.Uptime.Truncate(time.Second).String(),
			UptimeSeconds: stats.Uptime.Seconds(),
		})
	}
}

// RoomsHandler lists every live room.
func RoomsHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"rooms": hub.Registry().Rooms()})
	}
}

// RoomHandler returns one live room or 404.
func RoomHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := mux.Vars(r)["roomId"]
		summary, ok := hub.Registry().Summary(roomID)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "room not found"})
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}
