// Package gateway streams cycle reports and order events to websocket clients.
package gateway

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cryptoagent/internal/ringbuf"
)

// Channels published by the agent.
const (
	ChannelCycle  = "cycle"
	ChannelOrders = "orders"
	ChannelLock   = "lock"
)

// Hub manages websocket clients and fans published messages out to them.
// It keeps the latest message per channel for newly connected clients and a
// bounded backlog per channel for clients catching up after a reconnect.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry
	seq     int64

	// Per-channel monotonic sequence numbers for gap detection
	channelSeqs map[string]int64
	backlogs    map[string]*backlog
	backlogSize int

	dropped map[string]uint64
	fanout  *ringbuf.Ring[time.Duration]

	// OnClientCount is called with the client count after connects and
	// disconnects (for metrics).
	OnClientCount func(n int)
	// OnDrop is called with the number of clients that missed a broadcast
	// because their queue was full.
	OnDrop func(channel string, n int)

	logger *slog.Logger
	now    func() time.Time
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64 // per-channel seq for gap detection
}

// NewHub creates a hub keeping backlogSize envelopes per channel.
func NewHub(backlogSize int, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if backlogSize <= 0 {
		backlogSize = 500
	}
	return &Hub{
		clients:     make(map[*Client]bool),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		backlogs:    make(map[string]*backlog),
		backlogSize: backlogSize,
		dropped:     make(map[string]uint64),
		fanout:      ringbuf.New[time.Duration](256),
		logger:      logger.With("component", "gateway"),
		now:         time.Now,
	}
}

// Publish marshals v and broadcasts it on channel.
func (h *Hub) Publish(channel string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(channel, data)
	return nil
}

// register adds an upgraded connection and starts its pumps.
func (h *Hub) register(conn *websocket.Conn, channels []string, lastTS time.Time) *Client {
	client := newClient(h, conn, channels)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("ws client connected", "clients", count)
	if h.OnClientCount != nil {
		h.OnClientCount(count)
	}

	client.sendInitialState(lastTS)
	go client.writePump()
	go client.readPump()
	return client
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	close(c.send)
	h.mu.Unlock()

	h.logger.Info("ws client disconnected", "clients", count)
	if h.OnClientCount != nil {
		h.OnClientCount(count)
	}
}

// Latest returns the latest payload per channel.
func (h *Hub) Latest() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		cp[k] = v.Data
	}
	return cp
}

// Missed returns the envelopes of channel published after afterSeq. complete
// is false when some of them have already left the backlog.
func (h *Hub) Missed(channel string, afterSeq int64) (msgs [][]byte, complete bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	b, ok := h.backlogs[channel]
	if !ok {
		return nil, afterSeq >= h.channelSeqs[channel]
	}
	return b.after(afterSeq)
}

// ChannelSeq returns the current sequence number for a channel.
func (h *Hub) ChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		h.RemoveClient(c)
	}
}
