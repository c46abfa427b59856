// Package gateway pushes sync progress to dashboard clients over WebSocket.
// Each client watches one user; events are sequenced per user and the recent
// ones are kept so a reconnecting client can catch up.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"taxsync-pro/internal/model"

	"github.com/gorilla/websocket"
)

// Hub manages WebSocket clients and fans sync events out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool

	// Per-user monotonic sequence numbers for gap detection
	seqs map[string]int64

	// Per-user replay buffers for reconnect backfill
	replayBufs map[string]*ReplayBuffer
	replayCap  int

	upgrader websocket.Upgrader

	// OnClientsChanged is called with the client count after every
	// connect and disconnect (for metrics).
	OnClientsChanged func(n int)
}

var _ model.EventPublisher = (*Hub)(nil)

// NewHub creates a Hub keeping the last replayCap events per user.
func NewHub(replayCap int) *Hub {
	if replayCap <= 0 {
		replayCap = 100
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		seqs:       make(map[string]int64),
		replayBufs: make(map[string]*ReplayBuffer),
		replayCap:  replayCap,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// envelope is the frame sent to clients.
type envelope struct {
	Channel string          `json:"channel"`
	Data    model.SyncEvent `json:"data"`
	TS      string          `json:"ts"`
	Seq     int64           `json:"seq"`
	Initial bool            `json:"initial,omitempty"`
}

// Channel names the per-user stream.
func Channel(userID string) string { return "sync:" + userID }

// Publish sequences ev, stores it for replay and sends it to the user's
// clients. Slow clients drop the frame rather than block the publisher.
func (h *Hub) Publish(ctx context.Context, ev model.SyncEvent) {
	h.mu.Lock()
	h.seqs[ev.UserID]++
	seq := h.seqs[ev.UserID]
	rb, ok := h.replayBufs[ev.UserID]
	if !ok {
		rb = NewReplayBuffer(h.replayCap)
		h.replayBufs[ev.UserID] = rb
	}
	h.mu.Unlock()

	data, err := json.Marshal(envelope{
		Channel: Channel(ev.UserID),
		Data:    ev,
		TS:      time.Now().UTC().Format(time.RFC3339Nano),
		Seq:     seq,
	})
	if err != nil {
		log.Printf("[gateway] marshal %s event: %v", ev.Type, err)
		return
	}
	rb.Push(seq, data)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.userID != ev.UserID {
			continue
		}
		select {
		case c.send <- data:
		default:
		}
	}
}

// Relay feeds events from subscribe (e.g. the Redis cache's Subscribe)
// into the hub until ctx is done, restarting after failures.
func (h *Hub) Relay(ctx context.Context, subscribe func(context.Context, func(model.SyncEvent)) error) {
	for {
		err := subscribe(ctx, func(ev model.SyncEvent) { h.Publish(ctx, ev) })
		if ctx.Err() != nil {
			return
		}
		log.Printf("[gateway] relay stopped: %v, retrying in 2s", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

// ServeHTTP upgrades /ws?userId=...&since=N and registers the client.
// Events after seq N still in the replay buffer are sent first.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, `{"error":"userId required"}`, http.StatusBadRequest)
		return
	}
	since, _ := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] upgrade: %v", err)
		return
	}

	client := &Client{
		conn:   conn,
		send:   make(chan []byte, 256),
		hub:    h,
		userID: userID,
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("[gateway] ws client connected for %s (%d total)", userID, count)
	if h.OnClientsChanged != nil {
		h.OnClientsChanged(count)
	}

	client.sendBacklog(since)
	go client.writePump()
	go client.readPump()
}

// backlog returns the user's buffered frames after seq, marked initial.
func (h *Hub) backlog(userID string, since int64) [][]byte {
	h.mu.RLock()
	rb, ok := h.replayBufs[userID]
	h.mu.RUnlock()
	if !ok {
		return nil
	}

	entries, complete := rb.Since(since)
	if !complete {
		log.Printf("[gateway] %s resumed from seq %d past the replay window", userID, since)
	}
	out := make([][]byte, 0, len(entries))
	for _, e := range entries {
		var env envelope
		if err := json.Unmarshal(e.Data, &env); err != nil {
			continue
		}
		env.Initial = true
		data, _ := json.Marshal(env)
		out = append(out, data)
	}
	return out
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
	h.mu.Unlock()
	close(c.send)

	if h.OnClientsChanged != nil {
		h.OnClientsChanged(count)
	}
}

// Seq returns the last sequence number issued for userID.
func (h *Hub) Seq(userID string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seqs[userID]
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
