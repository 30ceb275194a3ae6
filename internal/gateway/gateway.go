package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/obsgate/internal/auth"
	"github.com/nerrad567/obsgate/internal/automation"
	"github.com/nerrad567/obsgate/internal/device"
	"github.com/nerrad567/obsgate/internal/message"
	"github.com/nerrad567/obsgate/internal/process"
	"github.com/nerrad567/obsgate/internal/reactor"
	"github.com/nerrad567/obsgate/internal/rpc"
)

// ValueChannel is the WebSocket channel carrying confirmed value updates.
const ValueChannel = "values"

// ErrNoRuleFile is returned by ReloadTriggers when no rule file is configured.
var ErrNoRuleFile = errors.New("gateway: no trigger rule file configured")

// Logger defines the logging interface used by the gateway.
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

// Config holds gateway behaviour settings.
type Config struct {
	// RulesPath is the trigger rule file. Empty runs without triggers.
	RulesPath string

	// MessageCapacity bounds the message history. 0 uses message.DefaultCapacity.
	MessageCapacity int

	// Notifications enables SendNotification actions.
	Notifications bool

	// NotificationSender names the gateway in notifications. Empty keeps "obsgate".
	NotificationSender string
}

// Deps are the gateway's outside collaborators. Loop and Auth are required.
type Deps struct {
	Loop        *reactor.Reactor
	Auth        *auth.Service
	Spawner     automation.Spawner
	Publisher   automation.Publisher
	Sink        automation.ValueSink
	Broadcaster message.Broadcaster
}

// ValueUpdate is the payload pushed on ValueChannel.
type ValueUpdate struct {
	Device string    `json:"device"`
	Name   string    `json:"name"`
	Type   string    `json:"type"`
	Text   string    `json:"text"`
	Time   time.Time `json:"time"`
}

// DeviceName returns the device the update belongs to.
func (u ValueUpdate) DeviceName() string { return u.Device }

// Gateway owns the live device registry, trigger engine, message history
// and RPC method table. Everything except Dispatcher, ReloadTriggers and
// ProcessExited must run on the reactor.
type Gateway struct {
	cfg         Config
	loop        *reactor.Reactor
	auth        *auth.Service
	registry    *device.Registry
	engine      *automation.Engine
	messages    *message.Log
	dispatcher  *rpc.Dispatcher
	broadcaster message.Broadcaster
	logger      Logger
}

// New wires a gateway and registers its RPC methods.
func New(cfg Config, deps Deps) (*Gateway, error) {
	if deps.Loop == nil || deps.Auth == nil {
		return nil, errors.New("gateway: reactor and auth service are required")
	}

	messages := message.NewLog(cfg.MessageCapacity)
	messages.SetClock(deps.Loop.Now)
	if deps.Broadcaster != nil {
		messages.SetBroadcaster(deps.Broadcaster)
	}

	registry := device.NewRegistry()
	engine := automation.NewEngine(automation.Deps{
		Devices:   registry,
		Scheduler: deps.Loop,
		Spawner:   deps.Spawner,
		Publisher: deps.Publisher,
		Sink:      deps.Sink,
		Messages:  messages,
	})
	engine.SetNotificationsEnabled(cfg.Notifications)
	engine.SetNotificationSender(cfg.NotificationSender)

	g := &Gateway{
		cfg:         cfg,
		loop:        deps.Loop,
		auth:        deps.Auth,
		registry:    registry,
		engine:      engine,
		messages:    messages,
		broadcaster: deps.Broadcaster,
		logger:      noopLogger{},
	}
	g.dispatcher = rpc.NewDispatcher(authenticator{svc: deps.Auth}, deps.Loop)
	if err := g.registerMethods(); err != nil {
		return nil, err
	}
	return g, nil
}

// SetLogger sets the logger for the gateway and the components it owns.
func (g *Gateway) SetLogger(logger Logger) {
	g.logger = logger
	g.registry.SetLogger(logger)
	g.engine.SetLogger(logger)
	g.messages.SetLogger(logger)
	g.dispatcher.SetLogger(logger)
}

// Registry returns the live connection registry.
func (g *Gateway) Registry() *device.Registry { return g.registry }

// Messages returns the message history.
func (g *Gateway) Messages() *message.Log { return g.messages }

// Engine returns the trigger engine.
func (g *Gateway) Engine() *automation.Engine { return g.engine }

// Dispatcher returns the RPC dispatcher. Safe from any goroutine.
func (g *Gateway) Dispatcher() *rpc.Dispatcher { return g.dispatcher }

// ReloadTriggers re-reads the rule file on the reactor and returns the
// number of loaded triggers. On failure the current triggers stay active
// and a warning message is recorded.
func (g *Gateway) ReloadTriggers(ctx context.Context) (int, error) {
	if g.cfg.RulesPath == "" {
		return 0, ErrNoRuleFile
	}
	var (
		n   int
		err error
	)
	if doErr := g.loop.Do(ctx, func() {
		n, err = g.engine.Reload(g.cfg.RulesPath)
		if err != nil {
			g.messages.Add(message.SeverityWarning, "triggers", fmt.Sprintf("reload failed, keeping %d triggers: %v", n, err))
		}
	}); doErr != nil {
		return 0, doErr
	}
	return n, err
}

// ProcessExited reports the end of a spawned program as a message. It is
// the process spawner's exit callback and may run on any goroutine.
func (g *Gateway) ProcessExited(res process.Result) {
	sev := message.SeverityDebug
	text := fmt.Sprintf("%s exited in %s", res.Spec.Program, res.Duration.Round(time.Millisecond))
	switch {
	case res.Err != nil && res.ExitCode <= 0:
		sev = message.SeverityError
		text = fmt.Sprintf("%s failed: %v", res.Spec.Program, res.Err)
	case res.ExitCode != 0:
		sev = message.SeverityWarning
		text = fmt.Sprintf("%s exited with code %d", res.Spec.Program, res.ExitCode)
	}
	if out := strings.TrimSpace(res.Output); out != "" && sev != message.SeverityDebug {
		text += ": " + lastLine(out)
	}

	origin := res.Spec.Name
	if err := g.loop.Post(func() { g.messages.Add(sev, origin, text) }); err != nil {
		g.logger.Debug("process exit not recorded", "process", origin, "error", err)
	}
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// ─── Device events (reactor) ────────────────────────────────────────────────

// DeviceAdded records a newly announced device.
func (g *Gateway) DeviceAdded(c *device.Connection) {
	g.messages.Add(message.SeverityDebug, c.Name(), "connected as "+c.Type())
}

// DeviceRemoved records a device that went away.
func (g *Gateway) DeviceRemoved(c *device.Connection) {
	g.messages.Add(message.SeverityInfo, c.Name(), "disconnected")
}

// StateChanged runs the state triggers for a device's transition.
func (g *Gateway) StateChanged(c *device.Connection, prev, next device.State) {
	g.engine.StateChanged(automation.StateEvent{
		Device:     c.Name(),
		DeviceType: c.Type(),
		Old:        prev,
		New:        next,
		Time:       g.loop.Now(),
	})
}

// ValueChanged runs the value triggers for a confirmed value and pushes it
// to live subscribers.
func (g *Gateway) ValueChanged(c *device.Connection, _, next *device.TypedValue) {
	now := g.loop.Now()
	g.engine.ValueChanged(automation.ValueEvent{
		Device:     c.Name(),
		DeviceType: c.Type(),
		Value:      next,
		Time:       now,
	})
	if g.broadcaster != nil {
		g.broadcaster.Broadcast(ValueChannel, ValueUpdate{
			Device: c.Name(),
			Name:   next.Name(),
			Type:   string(next.Type()),
			Text:   next.DisplayText(),
			Time:   now,
		})
	}
}

// DeviceLog records a device's log line.
func (g *Gateway) DeviceLog(origin string, sev message.Severity, text string) {
	g.messages.Add(sev, origin, text)
}

// ─── Authentication ─────────────────────────────────────────────────────────

// authenticator adapts the auth service to the dispatcher.
type authenticator struct {
	svc *auth.Service
}

func (a authenticator) Authenticate(ctx context.Context, creds rpc.Credentials) (string, error) {
	user, err := a.svc.Authenticate(ctx, creds.User, creds.Secret)
	if err != nil {
		return "", fmt.Errorf("%w: %w", rpc.ErrAuthenticationFailure, err)
	}
	return user, nil
}
