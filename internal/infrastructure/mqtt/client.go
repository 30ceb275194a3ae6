package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/obsgate/internal/infrastructure/config"
)

// Logger defines the logging interface used by the client.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MessageHandler receives one broker message. topic has wildcards expanded.
// A returned error is logged and counted, nothing more.
type MessageHandler func(topic string, payload []byte) error

// Stats describes the broker link since Connect.
type Stats struct {
	Connected       bool
	Reconnects      uint64    // successful connects after the first
	Received        uint64    // messages delivered to handlers
	HandlerFailures uint64    // handler errors and panics
	ConnectedSince  time.Time // zero while disconnected
	Subscriptions   int
}

// hooks are the callbacks and logger set after Connect.
type hooks struct {
	mu           sync.RWMutex
	logger       Logger
	onConnect    func()
	onDisconnect func(err error)
}

func (h *hooks) log() Logger {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.logger == nil {
		return noopLogger{}
	}
	return h.logger
}

func (h *hooks) connected() func() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.onConnect
}

func (h *hooks) lost() func(error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.onDisconnect
}

// Client is the gateway's connection to the device network broker.
//
// Subscriptions are remembered and replayed whenever paho reconnects, and
// the gateway's retained status topic follows the link state.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Message handlers run on paho's goroutines, never on the caller's.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig

	subs  subscriptionTable
	hooks hooks

	up         atomic.Bool
	since      atomic.Int64 // unix nanos of the current connection
	connects   atomic.Uint64
	received   atomic.Uint64
	handlerErr atomic.Uint64
}

// Connect dials the broker described by cfg and waits for the first CONNACK.
//
// The status topic carries a retained "offline" will, replaced by "online"
// on every connect. Paho reconnects on its own after a drop.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{cfg: cfg}

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.linkUp() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.linkDown(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		c.hooks.log().Debug("mqtt reconnecting", "broker", brokerURL(cfg))
	})

	c.client = pahomqtt.NewClient(opts)
	if err := wait(c.client.Connect(), defaultConnectTimeout); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// linkUp runs on paho's goroutine and may not have happened yet.
	c.markUp()
	return c, nil
}

// wait blocks on a paho token for at most timeout.
func wait(token pahomqtt.Token, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("timeout after %v", timeout)
	}
	return token.Error()
}

func (c *Client) markUp() bool {
	if c.up.Swap(true) {
		return false
	}
	c.since.Store(time.Now().UnixNano())
	return true
}

// linkUp replays subscriptions and announces the gateway as online.
func (c *Client) linkUp() {
	c.markUp()
	if c.connects.Add(1) > 1 {
		c.hooks.log().Info("mqtt connection restored", "subscriptions", c.subs.len())
	}

	for _, sub := range c.subs.all() {
		c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
	}
	c.publishStatus(statusOnline, "")

	if callback := c.hooks.connected(); callback != nil {
		callback()
	}
}

func (c *Client) linkDown(err error) {
	c.up.Store(false)
	c.since.Store(0)
	c.hooks.log().Warn("mqtt connection lost", "error", err)

	if callback := c.hooks.lost(); callback != nil {
		callback(err)
	}
}

// publishStatus writes the retained gateway status without waiting for the ack.
func (c *Client) publishStatus(status, reason string) pahomqtt.Token {
	payload := statusPayload(c.cfg.Broker.ClientID, status, reason)
	return c.client.Publish(Topics{}.GatewayStatus(), byte(c.cfg.QoS), true, payload)
}

// Close announces a graceful "offline" and disconnects.
// Closing a client that never connected does nothing.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if c.IsConnected() {
		c.publishStatus(statusOffline, reasonShutdown).WaitTimeout(defaultPublishTimeout)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.up.Store(false)
	c.since.Store(0)
	return nil
}

// HealthCheck returns ErrNotConnected while the broker link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports the link state as last seen by the client and paho.
func (c *Client) IsConnected() bool {
	return c.up.Load() && c.client != nil && c.client.IsConnected()
}

// Stats returns a snapshot of the link counters.
func (c *Client) Stats() Stats {
	st := Stats{
		Connected:       c.IsConnected(),
		Received:        c.received.Load(),
		HandlerFailures: c.handlerErr.Load(),
		Subscriptions:   c.subs.len(),
	}
	if n := c.connects.Load(); n > 1 {
		st.Reconnects = n - 1
	}
	if ns := c.since.Load(); ns != 0 && st.Connected {
		st.ConnectedSince = time.Unix(0, ns)
	}
	return st
}

// SetOnConnect sets a callback run after every connect, once
// subscriptions have been replayed.
func (c *Client) SetOnConnect(callback func()) {
	c.hooks.mu.Lock()
	c.hooks.onConnect = callback
	c.hooks.mu.Unlock()
}

// SetOnDisconnect sets a callback run when the connection drops.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.hooks.mu.Lock()
	c.hooks.onDisconnect = callback
	c.hooks.mu.Unlock()
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	c.hooks.mu.Lock()
	c.hooks.logger = logger
	c.hooks.mu.Unlock()
}

// wrapHandler adapts a MessageHandler to paho. Handler errors and panics
// are logged and counted, never propagated.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.received.Add(1)
		defer func() {
			if r := recover(); r != nil {
				c.handlerErr.Add(1)
				c.hooks.log().Error("panic recovered in mqtt handler", "topic", msg.Topic(), "panic", r)
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.handlerErr.Add(1)
			c.hooks.log().Warn("mqtt handler failed", "topic", msg.Topic(), "error", err)
		}
	}
}
