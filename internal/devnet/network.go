package devnet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/obsgate/internal/device"
	"github.com/nerrad567/obsgate/internal/infrastructure/mqtt"
	"github.com/nerrad567/obsgate/internal/message"
	"github.com/nerrad567/obsgate/internal/reactor"
)

// DefaultOutboxSize is the number of outgoing messages buffered when none is configured.
const DefaultOutboxSize = 256

// DefaultReplyTimeout bounds how long a device command may wait for its reply.
const DefaultReplyTimeout = 30 * time.Second

var (
	// ErrOutboxFull is returned when outgoing traffic is not draining.
	ErrOutboxFull = errors.New("devnet: outbox full")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("devnet: network closed")

	// ErrBadMessage is returned for undecodable device messages.
	ErrBadMessage = errors.New("devnet: bad message")
)

// Logger defines the logging interface used by the network.
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

// Broker is the MQTT side of the network. *mqtt.Client satisfies it.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Poster hands work to the goroutine that owns the registry and schedules
// one-shot callbacks on it. *reactor.Reactor satisfies it.
type Poster interface {
	Post(fn func()) error
	AfterFunc(d time.Duration, fn func()) *reactor.Timer
}

// Events receives device changes. All methods run on the reactor.
type Events interface {
	DeviceAdded(c *device.Connection)
	DeviceRemoved(c *device.Connection)
	StateChanged(c *device.Connection, prev, next device.State)
	ValueChanged(c *device.Connection, prev, next *device.TypedValue)
	DeviceLog(origin string, sev message.Severity, text string)
}

// Config tunes the network.
type Config struct {
	QoS        byte
	OutboxSize int

	// ReplyTimeout fails a command the device never answers. Zero means
	// DefaultReplyTimeout; a negative value waits forever.
	ReplyTimeout time.Duration
}

type outgoing struct {
	topic   string
	payload []byte
	qos     byte
	failed  func(error) // optional, called on the outbox goroutine
}

// Network connects the device registry to the broker.
//
// Thread Safety:
//   - HandleMessage is called from broker goroutines and only posts to the reactor.
//   - Send and Publish are safe from any goroutine; they never block.
//   - The registry and Events are touched only from posted tasks.
type Network struct {
	broker   Broker
	loop     Poster
	registry *device.Registry
	events   Events
	qos      byte
	timeout  time.Duration
	logger   Logger

	outbox chan outgoing
	mu     sync.RWMutex
	closed bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a network. Call Start to subscribe and begin sending.
func New(broker Broker, loop Poster, registry *device.Registry, events Events, cfg Config) *Network {
	size := cfg.OutboxSize
	if size <= 0 {
		size = DefaultOutboxSize
	}
	timeout := cfg.ReplyTimeout
	if timeout == 0 {
		timeout = DefaultReplyTimeout
	}
	return &Network{
		broker:   broker,
		loop:     loop,
		registry: registry,
		events:   events,
		qos:      cfg.QoS,
		timeout:  timeout,
		logger:   noopLogger{},
		outbox:   make(chan outgoing, size),
	}
}

// SetLogger sets the logger for the network.
func (n *Network) SetLogger(logger Logger) {
	n.logger = logger
}

// Start subscribes to every device topic and starts the outbox goroutine,
// which runs until ctx ends or Close is called.
func (n *Network) Start(ctx context.Context) error {
	if err := n.broker.Subscribe(mqtt.Topics{}.AllDeviceEvents(), n.qos, n.HandleMessage); err != nil {
		return fmt.Errorf("subscribing to device events: %w", err)
	}

	ctx, n.cancel = context.WithCancel(ctx)
	n.wg.Add(1)
	go n.pump(ctx)

	n.logger.Info("device network started", "topic", mqtt.Topics{}.AllDeviceEvents())
	return nil
}

// Close stops the outbox goroutine. Messages still queued are dropped.
func (n *Network) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	n.mu.Unlock()

	if n.cancel != nil {
		n.cancel()
	}
	n.wg.Wait()
}

func (n *Network) pump(ctx context.Context) {
	defer n.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-n.outbox:
			err := n.broker.Publish(msg.topic, msg.payload, msg.qos, false)
			if err == nil {
				continue
			}
			n.logger.Warn("publish to device network failed", "topic", msg.topic, "error", err)
			if msg.failed != nil {
				msg.failed(err)
			}
		}
	}
}

func (n *Network) enqueue(msg outgoing) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return ErrClosed
	}
	select {
	case n.outbox <- msg:
		return nil
	default:
		return fmt.Errorf("%w: %d messages waiting", ErrOutboxFull, cap(n.outbox))
	}
}

// Send queues cmd for the device's command topic. A publish that fails
// later completes the command with that error through a reactor task.
func (n *Network) Send(deviceName string, cmd device.Command) error {
	payload, err := json.Marshal(commandPayload{ID: cmd.ID, Text: cmd.Text, Raw: cmd.Raw})
	if err != nil {
		return fmt.Errorf("encoding command: %w", err)
	}
	return n.enqueue(outgoing{
		topic:   mqtt.Topics{}.DeviceCommand(deviceName),
		payload: payload,
		qos:     n.qos,
		failed: func(pubErr error) {
			n.post(func() {
				conn, err := n.registry.Get(deviceName)
				if err != nil {
					return
				}
				if err := conn.HandleReply(cmd.ID, pubErr); err != nil {
					n.logger.Debug("publish failure for a command no longer in flight", "device", deviceName, "id", cmd.ID)
				}
			})
		},
	})
}

// Publish queues an arbitrary message, such as a notification.
func (n *Network) Publish(topic string, payload []byte, qos byte, _ bool) error {
	return n.enqueue(outgoing{topic: topic, payload: payload, qos: qos})
}

func (n *Network) post(fn func()) {
	if err := n.loop.Post(fn); err != nil {
		n.logger.Debug("device event dropped", "error", err)
	}
}

// HandleMessage decodes one device message and posts its effect to the
// reactor. It is the broker subscription handler.
func (n *Network) HandleMessage(topic string, payload []byte) error {
	name, kind, ok := mqtt.ParseDeviceTopic(topic)
	if !ok {
		return fmt.Errorf("%w: unexpected topic %q", ErrBadMessage, topic)
	}

	switch kind {
	case mqtt.KindCommand:
		// Our own commands echoed by the wildcard subscription.
		return nil

	case mqtt.KindAnnounce:
		var a Announcement
		if err := json.Unmarshal(payload, &a); err != nil {
			return fmt.Errorf("%w: %s announce: %v", ErrBadMessage, name, err)
		}
		values, err := decodeValues(a.Values)
		if err != nil {
			return fmt.Errorf("%w: %s announce: %v", ErrBadMessage, name, err)
		}
		n.post(func() { n.applyAnnounce(name, a, values) })

	case mqtt.KindValue:
		var w WireValue
		if err := json.Unmarshal(payload, &w); err != nil {
			return fmt.Errorf("%w: %s value: %v", ErrBadMessage, name, err)
		}
		v, err := w.Decode()
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrBadMessage, name, err)
		}
		n.post(func() { n.applyValue(name, v) })

	case mqtt.KindState:
		var s device.State
		if err := json.Unmarshal(payload, &s); err != nil {
			return fmt.Errorf("%w: %s state: %v", ErrBadMessage, name, err)
		}
		n.post(func() { n.applyState(name, s) })

	case mqtt.KindReply:
		var r Reply
		if err := json.Unmarshal(payload, &r); err != nil || r.ID == "" {
			return fmt.Errorf("%w: %s reply: %v", ErrBadMessage, name, err)
		}
		n.post(func() { n.applyReply(name, r) })

	case mqtt.KindLog:
		var l LogLine
		if err := json.Unmarshal(payload, &l); err != nil {
			return fmt.Errorf("%w: %s log: %v", ErrBadMessage, name, err)
		}
		n.post(func() { n.events.DeviceLog(name, severityOf(l.Severity), l.Text) })

	case mqtt.KindStatus:
		var s Status
		if err := json.Unmarshal(payload, &s); err != nil {
			return fmt.Errorf("%w: %s status: %v", ErrBadMessage, name, err)
		}
		if s.Status == StatusOffline {
			n.post(func() { n.applyOffline(name) })
		}

	default:
		n.logger.Debug("ignoring device message", "device", name, "kind", kind)
	}
	return nil
}

// applyAnnounce installs a fresh connection. A device announcing again
// replaces its old connection, whose queued commands fail, and a state
// that differs from the old one is reported as a transition.
func (n *Network) applyAnnounce(name string, a Announcement, values []*device.TypedValue) {
	conn := device.NewConnection(name, a.Type, n)
	conn.SetLogger(n.logger)
	if n.timeout > 0 {
		conn.SetReplyTimeout(n.timeout, n.after)
	}
	for _, v := range values {
		if _, err := conn.UpdateValue(v); err != nil {
			n.logger.Warn("announced value rejected", "device", name, "value", v.Name(), "error", err)
		}
	}
	conn.SetState(a.State)

	var old *device.Connection
	if name == device.CoordinatorName {
		if prev, err := n.registry.Coordinator(); err == nil {
			old = prev
			n.events.DeviceRemoved(old)
		}
		n.registry.SetCoordinator(conn)
	} else {
		if prev, err := n.registry.Remove(name); err == nil {
			old = prev
			n.events.DeviceRemoved(old)
		}
		if err := n.registry.Add(conn); err != nil {
			n.logger.Error("registering device failed", "device", name, "error", err)
			return
		}
	}
	n.events.DeviceAdded(conn)

	if old != nil && old.State() != a.State {
		n.events.StateChanged(conn, old.State(), a.State)
	}
}

// after schedules a connection's reply timeout on the reactor.
func (n *Network) after(d time.Duration, fn func()) func() {
	return n.loop.AfterFunc(d, fn).Cancel
}

func (n *Network) applyValue(name string, v *device.TypedValue) {
	conn, err := n.registry.Get(name)
	if err != nil {
		n.logger.Debug("value from unannounced device", "device", name, "value", v.Name())
		return
	}
	prev, err := conn.UpdateValue(v)
	if err != nil {
		return
	}
	n.events.ValueChanged(conn, prev, v)
}

func (n *Network) applyState(name string, s device.State) {
	conn, err := n.registry.Get(name)
	if err != nil {
		n.logger.Debug("state from unannounced device", "device", name)
		return
	}
	prev := conn.SetState(s)
	n.events.StateChanged(conn, prev, s)
}

func (n *Network) applyReply(name string, r Reply) {
	conn, err := n.registry.Get(name)
	if err != nil {
		return
	}
	var cmdErr error
	if !r.OK {
		text := r.Error
		if text == "" {
			text = "rejected"
		}
		cmdErr = errors.New(text)
	}
	if err := conn.HandleReply(r.ID, cmdErr); err != nil {
		n.logger.Debug("reply ignored", "device", name, "error", err)
	}
}

func (n *Network) applyOffline(name string) {
	conn, err := n.registry.Remove(name)
	if err != nil {
		return
	}
	n.events.DeviceRemoved(conn)
}
