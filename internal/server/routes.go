// Package server wires HTTP handlers into a gorilla/mux router for the chat
// relay via routing helpers.
package server

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

// SetupRoutes configures and returns a router with all application routes.
// The WebSocket endpoint and the CORS-enabled API share the hub's origin allow-list.
func SetupRoutes(hub *Hub) *mux.Router {
	policy := newOriginPolicy(hub.config.AllowedOrigins, hub.logger)

	r := mux.NewRouter()
	r.Use(requestLogger(hub.logger))

	r.HandleFunc("/ws", webSocketHandler(hub, policy)).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(corsMiddleware(policy))
	api.HandleFunc("/health", HealthHandler(hub)).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/rooms", RoomsHandler(hub)).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/rooms/{roomId}", RoomHandler(hub)).Methods(http.MethodGet, http.MethodOptions)

	r.HandleFunc("/", RootHandler).Methods(http.MethodGet)
	return r
}

// requestLogger logs each routed request. It does not wrap the ResponseWriter
// so WebSocket upgrades can still hijack the connection.
func requestLogger(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug("incoming HTTP request",
				slog.String("method", r.Method),
				slog.String("uri", r.RequestURI),
				slog.String("remoteAddr", r.RemoteAddr),
			)
			next.ServeHTTP(w, r)
		})
	}
}
