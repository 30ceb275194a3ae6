package device

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State is the device state word plus its human-readable rendering.
type State struct {
	Bits uint32 `json:"bits"`
	Text string `json:"text"`
}

// Command is one text command addressed to a device.
type Command struct {
	ID   string `json:"id"`
	Text string `json:"text"`

	// Raw asks the device to reinterpret the payload text itself.
	Raw bool `json:"raw"`

	done func(error)
}

// CommandSender delivers a command to the device network.
// Send must not block on the device's answer; the reply arrives later
// through Connection.HandleReply.
type CommandSender interface {
	Send(device string, cmd Command) error
}

// AfterFunc schedules fn to run once after d on the goroutine that owns the
// connection, and returns a function that cancels it.
type AfterFunc func(d time.Duration, fn func()) (cancel func())

// Connection is the live handle to one device or to the coordinator.
//
// It owns the device's value snapshots (in announcement order), its state
// and a FIFO command queue with at most one command in flight.
//
// Thread Safety:
//   - Not safe for concurrent use. Connections are owned by the reactor goroutine.
type Connection struct {
	name       string
	deviceType string
	state      State

	values []*TypedValue
	index  map[string]int

	queue    []*Command
	inFlight *Command
	sending  bool
	closed   bool

	replyTimeout time.Duration
	after        AfterFunc
	cancelWait   func()

	sender CommandSender
	logger Logger
}

// NewConnection creates a live connection.
func NewConnection(name, deviceType string, sender CommandSender) *Connection {
	return &Connection{
		name:       name,
		deviceType: deviceType,
		index:      make(map[string]int),
		sender:     sender,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the connection.
func (c *Connection) SetLogger(logger Logger) {
	c.logger = logger
}

// SetReplyTimeout makes a command in flight fail with ErrCommandFailed
// when no reply arrives within d, so the queue moves on. A zero d or a
// nil after disables the timeout.
func (c *Connection) SetReplyTimeout(d time.Duration, after AfterFunc) {
	c.replyTimeout = d
	c.after = after
}

// Name returns the device name.
func (c *Connection) Name() string { return c.name }

// Type returns the device type tag (for example "CCD" or "DOME").
func (c *Connection) Type() string { return c.deviceType }

// State returns the current state.
func (c *Connection) State() State { return c.state }

// Closed reports whether the connection has been torn down.
func (c *Connection) Closed() bool { return c.closed }

// SetState records a new state and returns the previous one.
func (c *Connection) SetState(s State) State {
	old := c.state
	c.state = s
	return old
}

// Values returns the value snapshots in announcement order.
func (c *Connection) Values() []*TypedValue {
	out := make([]*TypedValue, len(c.values))
	copy(out, c.values)
	return out
}

// Value returns the snapshot with the given name.
func (c *Connection) Value(name string) (*TypedValue, error) {
	i, ok := c.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrValueNotFound, c.name, name)
	}
	return c.values[i], nil
}

// UpdateValue replaces the snapshot for v.Name(), or appends it if new.
// The previous snapshot is returned (nil for a new value). An update that
// would change the base type of an existing value is rejected.
func (c *Connection) UpdateValue(v *TypedValue) (*TypedValue, error) {
	i, ok := c.index[v.Name()]
	if !ok {
		c.index[v.Name()] = len(c.values)
		c.values = append(c.values, v)
		return nil, nil
	}

	old := c.values[i]
	if old.Type() != v.Type() {
		c.logger.Warn("rejected value update with different base type",
			"device", c.name,
			"value", v.Name(),
			"have", old.Type(),
			"got", v.Type(),
		)
		return old, fmt.Errorf("%w: %s.%s is %s, update is %s",
			ErrTypeMismatch, c.name, v.Name(), old.Type(), v.Type())
	}
	c.values[i] = v
	return old, nil
}

// Queue appends a command to the FIFO. done, if non-nil, is called exactly
// once with the command outcome: nil on success, an ErrCommandFailed or
// ErrConnectionClosed wrap otherwise. Queue fails immediately on a dead
// connection without calling done.
func (c *Connection) Queue(text string, raw bool, done func(error)) error {
	if c.closed {
		return fmt.Errorf("%w: %s", ErrConnectionClosed, c.name)
	}
	c.queue = append(c.queue, &Command{
		ID:   uuid.New().String(),
		Text: text,
		Raw:  raw,
		done: done,
	})
	if c.inFlight == nil && !c.sending {
		c.sendNext()
	}
	return nil
}

// Pending returns the number of commands waiting behind the one in flight.
func (c *Connection) Pending() int { return len(c.queue) }

// HasCommand reports whether a command with this text is in flight or queued.
func (c *Connection) HasCommand(text string) bool {
	if c.inFlight != nil && c.inFlight.Text == text {
		return true
	}
	for _, cmd := range c.queue {
		if cmd.Text == text {
			return true
		}
	}
	return false
}

// InFlight returns the command awaiting a reply, if any.
func (c *Connection) InFlight() (Command, bool) {
	if c.inFlight == nil {
		return Command{}, false
	}
	return *c.inFlight, true
}

// HandleReply completes the command in flight and sends the next one.
// cmdErr is the device's rejection, or nil when it accepted the command.
func (c *Connection) HandleReply(id string, cmdErr error) error {
	if c.inFlight == nil || c.inFlight.ID != id {
		return fmt.Errorf("%w: %s reply %s", ErrUnexpectedReply, c.name, id)
	}
	cmd := c.inFlight
	c.inFlight = nil
	c.stopWait()

	if cmdErr != nil {
		finish(cmd, fmt.Errorf("%w: %s %q: %v", ErrCommandFailed, c.name, cmd.Text, cmdErr))
	} else {
		finish(cmd, nil)
	}

	if !c.closed {
		c.sendNext()
	}
	return nil
}

// Close tears the connection down. The in-flight and all queued commands
// fail with ErrConnectionClosed. Close is idempotent.
func (c *Connection) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.stopWait()

	pending := c.queue
	c.queue = nil
	if c.inFlight != nil {
		pending = append([]*Command{c.inFlight}, pending...)
		c.inFlight = nil
	}
	for _, cmd := range pending {
		finish(cmd, fmt.Errorf("%w: %s", ErrConnectionClosed, c.name))
	}
}

// sendNext pops commands until one is handed to the sender successfully.
func (c *Connection) sendNext() {
	if c.inFlight != nil {
		return
	}
	c.sending = true
	defer func() { c.sending = false }()

	for len(c.queue) > 0 && !c.closed {
		cmd := c.queue[0]
		c.queue = c.queue[1:]

		if c.sender == nil {
			finish(cmd, fmt.Errorf("%w: %s: no transport", ErrCommandFailed, c.name))
			continue
		}
		if err := c.sender.Send(c.name, *cmd); err != nil {
			c.logger.Warn("sending command failed", "device", c.name, "command", cmd.Text, "error", err)
			finish(cmd, fmt.Errorf("%w: %s %q: %v", ErrCommandFailed, c.name, cmd.Text, err))
			continue
		}
		c.inFlight = cmd
		c.awaitReply(cmd)
		return
	}
}

// awaitReply arms the reply timeout for cmd.
func (c *Connection) awaitReply(cmd *Command) {
	if c.replyTimeout <= 0 || c.after == nil {
		return
	}
	c.cancelWait = c.after(c.replyTimeout, func() { c.replyExpired(cmd) })
}

func (c *Connection) replyExpired(cmd *Command) {
	if c.inFlight != cmd || c.closed {
		return
	}
	c.inFlight = nil
	c.cancelWait = nil
	c.logger.Warn("command timed out", "device", c.name, "command", cmd.Text, "timeout", c.replyTimeout)
	finish(cmd, fmt.Errorf("%w: %s %q: no reply within %v", ErrCommandFailed, c.name, cmd.Text, c.replyTimeout))
	c.sendNext()
}

func (c *Connection) stopWait() {
	if c.cancelWait != nil {
		c.cancelWait()
		c.cancelWait = nil
	}
}

func finish(cmd *Command, err error) {
	if cmd.done != nil {
		cmd.done(err)
	}
}
