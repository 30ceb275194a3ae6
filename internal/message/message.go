package message

import "time"

// Severity classifies a message.
type Severity string

// Severity constants.
const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
	SeverityDebug   Severity = "debug"
)

// Message is one system message shown to operators.
type Message struct {
	Timestamp time.Time `json:"timestamp"`
	Severity  Severity  `json:"type"`
	Origin    string    `json:"origin"`
	Text      string    `json:"message"`
}

// DeviceName returns the origin, letting push clients filter by device.
func (m Message) DeviceName() string { return m.Origin }

// DefaultCapacity is the number of messages kept when none is configured.
const DefaultCapacity = 42

// BroadcastChannel is the WebSocket channel carrying new messages.
const BroadcastChannel = "messages"

// Broadcaster pushes payloads to subscribed clients.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Logger defines the logging interface used by the message log.
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

// Log is the bounded message history. Every appended message is also
// mirrored to the structured log and broadcast to live subscribers.
type Log struct {
	ring        *Ring[Message]
	now         func() time.Time
	broadcaster Broadcaster
	logger      Logger
}

// NewLog creates a message log holding at most capacity messages.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		ring:   NewRing[Message](capacity),
		now:    time.Now,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger messages are mirrored to.
func (l *Log) SetLogger(logger Logger) { l.logger = logger }

// SetBroadcaster sets where appended messages are pushed.
func (l *Log) SetBroadcaster(b Broadcaster) { l.broadcaster = b }

// SetClock replaces the time source used by Add.
func (l *Log) SetClock(now func() time.Time) { l.now = now }

// Append stores msg, evicting the oldest message past capacity.
func (l *Log) Append(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = l.now()
	}
	l.ring.Push(msg)

	args := []any{"origin", msg.Origin, "text", msg.Text}
	switch msg.Severity {
	case SeverityError:
		l.logger.Error("message", args...)
	case SeverityWarning:
		l.logger.Warn("message", args...)
	case SeverityDebug:
		l.logger.Debug("message", args...)
	default:
		l.logger.Info("message", args...)
	}

	if l.broadcaster != nil {
		l.broadcaster.Broadcast(BroadcastChannel, msg)
	}
}

// Add is Append with the current time.
func (l *Log) Add(sev Severity, origin, text string) {
	l.Append(Message{Timestamp: l.now(), Severity: sev, Origin: origin, Text: text})
}

// All returns the stored messages, oldest first.
func (l *Log) All() []Message {
	return l.ring.All()
}

// Len returns the number of stored messages.
func (l *Log) Len() int { return l.ring.Len() }
