package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/obsgate/internal/infrastructure/config"
	"github.com/nerrad567/obsgate/internal/rpc"
)

// Frame types.
const (
	FrameHello       = "hello"
	FrameEvent       = "event"
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FrameAck         = "ack"
	FramePing        = "ping"
	FramePong        = "pong"
	FrameError       = "error"
)

// clientQueueSize is the number of frames buffered per client.
const clientQueueSize = 256

// Frame is one WebSocket message in either direction.
type Frame struct {
	Type    string    `json:"type"`
	ID      string    `json:"id,omitempty"`
	Channel string    `json:"channel,omitempty"`
	Time    time.Time `json:"time,omitzero"`
	Data    any       `json:"data,omitempty"`
}

// Subscription is the data of subscribe and unsubscribe frames.
//
// Devices, when present in a subscribe frame, replaces the client's device
// filter; an empty list clears it.
type Subscription struct {
	Channels []string  `json:"channels,omitempty"`
	Devices  *[]string `json:"devices,omitempty"`
}

// SubscriptionState is acknowledged after every subscription change and
// sent in the hello frame.
type SubscriptionState struct {
	User     string   `json:"user,omitempty"`
	Channels []string `json:"channels"`
	Devices  []string `json:"devices,omitempty"`
}

// inbound is Frame with Data left undecoded.
type inbound struct {
	Type string          `json:"type"`
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// CORS middleware decides which origins reach this handler.
		return true
	},
}

// client is one push connection.
type client struct {
	hub   *Hub
	conn  *websocket.Conn
	user  string
	queue chan []byte

	mu       sync.RWMutex
	channels map[string]bool
	devices  map[string]bool // nil means every device
}

func newClient(hub *Hub, conn *websocket.Conn, user string) *client {
	return &client{
		hub:      hub,
		conn:     conn,
		user:     user,
		queue:    make(chan []byte, clientQueueSize),
		channels: map[string]bool{ChannelMessages: true, ChannelValues: true},
	}
}

// handleWebSocket authenticates the session token and upgrades the
// connection. The token comes from the Login RPC.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, r, http.StatusUnauthorized, "token query parameter is required")
		return
	}
	user, err := s.sessions.Authenticate(r.Context(), rpc.SessionUser, token)
	if err != nil {
		s.logger.Debug("push authentication failed", "error", err)
		writeError(w, r, http.StatusUnauthorized, "invalid or expired session")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(s.hub, conn, user)
	if !s.hub.register(c) {
		conn.Close()
		return
	}
	c.reply("", FrameHello, c.state())

	go c.writeLoop(s.wsCfg)
	go c.readLoop(s.wsCfg)
}

// wants reports whether a frame on channel about deviceName goes to c.
func (c *client) wants(channel, deviceName string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.channels[channel] {
		return false
	}
	return deviceName == "" || c.devices == nil || c.devices[deviceName]
}

// enqueue queues data without blocking and reports whether it fit.
// The caller holds the hub read lock, so the queue is still open.
func (c *client) enqueue(data []byte) bool {
	select {
	case c.queue <- data:
		return true
	default:
		return false
	}
}

// reply queues a frame for this client only.
func (c *client) reply(id, frameType string, data any) {
	payload, err := json.Marshal(Frame{Type: frameType, ID: id, Time: c.hub.now().UTC(), Data: data})
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; ok {
		c.enqueue(payload)
	}
}

func (c *client) readLoop(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	if cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}
	idle := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(idle)) }
	_ = extend()
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("push client read failed", "user", c.user, "error", err)
			}
			return
		}
		// Application pings count as liveness too.
		_ = extend()
		c.handle(data)
	}
}

func (c *client) writeLoop(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.queue:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handle processes one client frame.
func (c *client) handle(data []byte) {
	var f inbound
	if err := json.Unmarshal(data, &f); err != nil {
		c.reply("", FrameError, errorData("frame is not valid JSON"))
		return
	}

	switch f.Type {
	case FramePing:
		c.reply(f.ID, FramePong, nil)
	case FrameSubscribe, FrameUnsubscribe:
		var sub Subscription
		if len(f.Data) > 0 {
			if err := json.Unmarshal(f.Data, &sub); err != nil {
				c.reply(f.ID, FrameError, errorData("subscription data is malformed"))
				return
			}
		}
		if err := c.apply(f.Type == FrameSubscribe, sub); err != nil {
			c.reply(f.ID, FrameError, errorData(err.Error()))
			return
		}
		c.reply(f.ID, FrameAck, c.state())
	default:
		c.reply(f.ID, FrameError, errorData("unknown frame type "+f.Type))
	}
}

var errUnknownChannel = errors.New("unknown channel")

// apply changes the subscription. Nothing changes when a channel is unknown.
func (c *client) apply(subscribe bool, sub Subscription) error {
	for _, ch := range sub.Channels {
		if !knownChannels[ch] {
			return fmt.Errorf("%w %q", errUnknownChannel, ch)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range sub.Channels {
		if subscribe {
			c.channels[ch] = true
		} else {
			delete(c.channels, ch)
		}
	}
	if subscribe && sub.Devices != nil {
		if len(*sub.Devices) == 0 {
			c.devices = nil
		} else {
			c.devices = make(map[string]bool, len(*sub.Devices))
			for _, d := range *sub.Devices {
				c.devices[d] = true
			}
		}
	}
	return nil
}

func (c *client) state() SubscriptionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := SubscriptionState{User: c.user, Channels: make([]string, 0, len(c.channels))}
	for ch := range c.channels {
		st.Channels = append(st.Channels, ch)
	}
	for d := range c.devices {
		st.Devices = append(st.Devices, d)
	}
	sort.Strings(st.Channels)
	sort.Strings(st.Devices)
	return st
}

func errorData(msg string) map[string]string {
	return map[string]string{"message": msg}
}
