// Package server coordinates client registration, presence changes, message
// relay, and connection cleanup for the chat WebSocket system via the Hub type.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/hoodchat/internal/presence"
	"github.com/Tyrowin/hoodchat/internal/protocol"
	"github.com/Tyrowin/hoodchat/internal/session"
)

const (
	sessionQueueSize    = 256
	sessionWriteTimeout = 2 * time.Second
)

// Hub is the single worker that processes events from every connection.
// Registration, disconnect cleanup and each inbound operation run one at a
// time on the Run goroutine, which also owns every client's send channel.
type Hub struct {
	clients      map[string]*Client
	inbound      chan inboundFrame
	register     chan *Client
	unregister   chan *Client
	registry     *presence.Registry
	sessions     session.Store
	sessionQueue chan sessionOp
	evictions    []*Client
	config       Config
	logger       *slog.Logger
	started      time.Time
	mutex        sync.RWMutex
	wg           sync.WaitGroup
	ctx          context.Context
	cancel       context.CancelFunc
	done         chan struct{}
}

type sessionOp func(ctx context.Context, store session.Store) error

// Stats is the read-only view of the hub exposed by the health endpoint.
type Stats struct {
	Rooms       int
	Connections int
	Uptime      time.Duration
}

// NewHub creates a hub around registry. sessions may be nil, in which case no
// session records are written. A nil cfg selects the defaults.
func NewHub(cfg *Config, registry *presence.Registry, sessions session.Store, logger *slog.Logger) *Hub {
	if cfg == nil {
		cfg = NewConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:      make(map[string]*Client),
		inbound:      make(chan inboundFrame),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		registry:     registry,
		sessions:     sessions,
		sessionQueue: make(chan sessionOp, sessionQueueSize),
		config:       sanitizeConfig(*cfg),
		logger:       logger,
		started:      time.Now(),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
}

// Register hands a new client to the hub. It reports false once the hub is shutting down.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Unregister signals that the client's transport is gone. It is safe to call
// more than once for the same client.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// submit queues a raw inbound frame. It reports false once the hub is shutting down.
func (h *Hub) submit(client *Client, payload []byte) bool {
	select {
	case h.inbound <- inboundFrame{client: client, payload: payload}:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Registry returns the room registry the hub coordinates.
func (h *Hub) Registry() *presence.Registry {
	return h.registry
}

// Stats returns live room and connection counts.
func (h *Hub) Stats() Stats {
	h.mutex.RLock()
	connections := len(h.clients)
	h.mutex.RUnlock()

	return Stats{
		Rooms:       h.registry.RoomCount(),
		Connections: connections,
		Uptime:      time.Since(h.started),
	}
}

// Run starts the hub's main event loop. This method should be called in a
// separate goroutine; it returns after Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.runSessionWriter()
	}()
	defer close(h.sessionQueue)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.disconnect(client, "transport closed")
			h.flushEvictions()

		case frame := <-h.inbound:
			h.dispatch(frame.client, frame.payload)
			h.flushEvictions()
		}
	}
}

func (h *Hub) addClient(client *Client) {
	if client == nil {
		h.logger.Warn("received nil client registration; skipping")
		return
	}

	h.mutex.Lock()
	client.closed = false
	h.clients[client.id] = client
	clientCount := len(h.clients)
	h.mutex.Unlock()
	client.logger.Info("client registered", slog.Int("clients", clientCount))

	if client.conn == nil {
		return
	}
	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// lookup returns the live client registered under id.
func (h *Hub) lookup(id string) (*Client, bool) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	client, ok := h.clients[id]
	return client, ok
}

// isLive reports whether client is still the registered client for its id.
func (h *Hub) isLive(client *Client) bool {
	current, ok := h.lookup(client.id)
	return ok && current == client
}

// disconnect removes the client, clears its presence and tells the rest of its
// room. Calling it again for the same client does nothing.
func (h *Hub) disconnect(client *Client, reason string) {
	if client == nil {
		return
	}

	h.mutex.Lock()
	if current, ok := h.clients[client.id]; !ok || current != client {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client.id)
	client.closed = true
	clientCount := len(h.clients)
	h.mutex.Unlock()

	close(client.send)

	if res, ok := h.registry.Leave(client.id, client.identity); ok {
		h.announceLeave(res)
	}
	if client.identity != nil {
		h.deactivateSession(client.identity.SessionID, client.id)
	}

	client.logger.Info("client unregistered", slog.String("reason", reason), slog.Int("clients", clientCount))
}

// safeSend queues payload without blocking. Only the Run goroutine sends on or
// closes a client's channel.
func (h *Hub) safeSend(client *Client, payload []byte) bool {
	if client.closed {
		return false
	}
	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

// reply sends one event to a single client.
func (h *Hub) reply(client *Client, eventType string, data any) {
	payload, err := protocol.Encode(eventType, data)
	if err != nil {
		h.logger.Error("failed to encode event", slog.String("event", eventType), slog.Any("error", err))
		return
	}
	if !h.safeSend(client, payload) {
		h.evict(client)
	}
}

// fanout sends one event to every listed connection. Clients whose buffer is
// full are queued for eviction.
func (h *Hub) fanout(targets []string, eventType string, data any) {
	if len(targets) == 0 {
		return
	}
	payload, err := protocol.Encode(eventType, data)
	if err != nil {
		h.logger.Error("failed to encode event", slog.String("event", eventType), slog.Any("error", err))
		return
	}

	for _, id := range targets {
		client, ok := h.lookup(id)
		if !ok {
			continue
		}
		if !h.safeSend(client, payload) {
			h.evict(client)
		}
	}
	h.logger.Debug("event fanned out", slog.String("event", eventType), slog.Int("targets", len(targets)))
}

// evict stops all further sends to a client whose buffer overflowed. The
// disconnect itself waits for flushEvictions, so every event of the current
// operation goes out before the room hears user-left.
func (h *Hub) evict(client *Client) {
	h.mutex.Lock()
	if client.closed {
		h.mutex.Unlock()
		return
	}
	client.closed = true
	h.mutex.Unlock()

	h.evictions = append(h.evictions, client)
}

// flushEvictions disconnects evicted clients. A disconnect can overflow more
// buffers, so it runs until the queue is empty.
func (h *Hub) flushEvictions() {
	for len(h.evictions) > 0 {
		client := h.evictions[0]
		h.evictions = h.evictions[1:]
		h.disconnect(client, "send buffer full")
	}
}

func (h *Hub) announceLeave(res presence.LeaveResult) {
	h.fanout(res.Notify, protocol.EventUserLeft, protocol.UserLeftEvent{
		SessionID:       res.Member.SessionID,
		Nickname:        res.Member.Nickname,
		RoomID:          res.RoomID,
		AllParticipants: res.Participants,
	})
}

// shutdownClients gracefully closes all active client connections
func (h *Hub) shutdownClients() {
	h.logger.Info("shutting down all client connections")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for id, client := range h.clients {
		clients = append(clients, client)
		delete(h.clients, id)
		client.closed = true
	}
	h.mutex.Unlock()

	for _, client := range clients {
		close(client.send)
		if client.conn != nil {
			client.closeConnection()
		}
	}

	h.logger.Info("closed client connections", slog.Int("count", len(clients)))
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines to complete.
// It returns after all client connections are closed and goroutines have finished,
// or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.logger.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
