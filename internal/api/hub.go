package api

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/obsgate/internal/infrastructure/logging"
)

// Push channels. A client starts subscribed to both.
const (
	ChannelMessages = "messages"
	ChannelValues   = "values"
)

// knownChannels are the channels a client may subscribe to.
var knownChannels = map[string]bool{
	ChannelMessages: true,
	ChannelValues:   true,
}

// DeviceScoped is implemented by payloads that belong to one device.
// Clients with a device filter only receive scoped payloads for those
// devices; unscoped payloads always pass.
type DeviceScoped interface {
	DeviceName() string
}

// Hub fans gateway events out to WebSocket clients. It satisfies
// message.Broadcaster.
//
// Broadcast never blocks: a client whose queue is full misses the frame
// and the drop is counted. The gateway reactor calls it directly.
//
// Thread Safety: all methods are safe for concurrent use.
type Hub struct {
	logger  *logging.Logger
	now     func() time.Time
	dropped atomic.Uint64

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		now:     time.Now,
		clients: make(map[*client]struct{}),
	}
}

// Run blocks until ctx ends, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many frames were discarded for slow clients.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Broadcast pushes payload to every client subscribed to channel.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(Frame{
		Type:    FrameEvent,
		Channel: channel,
		Time:    h.now().UTC(),
		Data:    payload,
	})
	if err != nil {
		h.logger.Error("encoding push frame", "channel", channel, "error", err)
		return
	}

	deviceName := ""
	if scoped, ok := payload.(DeviceScoped); ok {
		deviceName = scoped.DeviceName()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(channel, deviceName) {
			continue
		}
		if !c.enqueue(data) {
			h.dropped.Add(1)
		}
	}
}

// register adds c. It fails once the hub has shut down.
func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.logger.Debug("push client connected", "user", c.user, "clients", len(h.clients))
	return true
}

// unregister removes c and closes its queue. Safe to call more than once;
// only the call that removes c closes the queue.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		close(c.queue)
		h.logger.Debug("push client disconnected", "user", c.user, "clients", n)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		close(c.queue)
		delete(h.clients, c)
	}
}
