package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"talk2me/internal/observability"
)

// Message types pushed to browser clients.
const (
	TypeAuthChange = "authChange"
	TypeActivity   = "activity"
)

// Message is the envelope every client receives.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type broadcastMessage struct {
	msgType  string
	audience string
	data     []byte
}

// Hub maintains active clients and broadcasts messages to all of them.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Broadcast channel
	broadcast chan *broadcastMessage

	// Register client
	register chan *Client

	// Unregister client
	unregister chan *Client

	// Shutdown signal
	done chan struct{}

	count atomic.Int64
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *broadcastMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			slog.Info("hub shutting down gracefully")
			return ctx.Err()

		case client := <-h.register:
			h.clients[client] = true
			h.count.Add(1)
			observability.WebSocketConnectionsActive.Inc()
			slog.Info("client registered", slog.String("remote_addr", client.remoteAddr))

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			for client := range h.clients {
				if message.audience != "" && client.audience != message.audience {
					continue
				}
				select {
				case client.send <- message.data:
					observability.WebSocketMessagesSent.WithLabelValues(message.msgType).Inc()
				default:
					// Client's send buffer is full, drop it
					h.unregisterClient(client)
				}
			}
		}
	}
}

// ClientCount reports how many clients are registered.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// unregisterClient safely removes a client from the hub
func (h *Hub) unregisterClient(client *Client) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		h.count.Add(-1)
		close(client.send)
		observability.WebSocketConnectionsActive.Dec()
		slog.Info("client unregistered", slog.String("remote_addr", client.remoteAddr))
	}
}

// shutdown performs graceful cleanup of all connections
func (h *Hub) shutdown() {
	close(h.done)

	for client := range h.clients {
		h.unregisterClient(client)
	}

	slog.Info("hub shutdown complete")
}

// Broadcast encodes payload in a Message envelope and queues it for every
// client. It never blocks once the hub has stopped.
func (h *Hub) Broadcast(msgType string, payload any) {
	h.enqueue("", msgType, payload)
}

// BroadcastTo queues payload only for clients registered with audience. An
// empty audience reaches nobody.
func (h *Hub) BroadcastTo(audience, msgType string, payload any) {
	if audience == "" {
		return
	}
	h.enqueue(audience, msgType, payload)
}

func (h *Hub) enqueue(audience, msgType string, payload any) {
	data, err := json.Marshal(Message{Type: msgType, Payload: payload})
	if err != nil {
		slog.Error("failed to marshal broadcast message",
			slog.String("type", msgType),
			slog.String("error", err.Error()))
		return
	}

	select {
	case h.broadcast <- &broadcastMessage{msgType: msgType, audience: audience, data: data}:
	case <-h.done:
	}
}

// Register registers a client with the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
