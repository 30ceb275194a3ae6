package automation

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/nerrad567/obsgate/internal/device"
	"github.com/nerrad567/obsgate/internal/infrastructure/mqtt"
	"github.com/nerrad567/obsgate/internal/message"
	"github.com/nerrad567/obsgate/internal/process"
	"github.com/nerrad567/obsgate/internal/reactor"
)

// pollCommand is queued on a device whose value trigger has gone quiet.
const pollCommand = "info"

// Logger defines the logging interface used by the Engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Devices looks up live connections. device.Registry satisfies it.
type Devices interface {
	Get(name string) (*device.Connection, error)
}

// Scheduler provides the clock and repeating timers. reactor.Reactor satisfies it.
type Scheduler interface {
	Now() time.Time
	Every(period time.Duration, fn func()) reactor.Canceler
}

// Spawner starts external programs without waiting for them.
type Spawner interface {
	Spawn(spec process.Spec) error
}

// Publisher sends notifications. The MQTT client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// ValueSink stores recorded values. It must not block.
type ValueSink interface {
	RecordValue(deviceName string, v *device.TypedValue, at time.Time) error
}

// Reporter receives user-visible messages. message.Log satisfies it.
type Reporter interface {
	Add(sev message.Severity, origin, text string)
}

// Deps are the collaborators the engine's actions use. Devices and
// Scheduler are required; a nil Spawner, Publisher or Sink makes the
// matching action fail with a message.
type Deps struct {
	Devices   Devices
	Scheduler Scheduler
	Spawner   Spawner
	Publisher Publisher
	Sink      ValueSink
	Messages  Reporter
}

// Notification is the JSON body published for SendNotification.
type Notification struct {
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Trigger   string    `json:"trigger"`
	Device    string    `json:"device"`
	Text      string    `json:"text"`
	Time      time.Time `json:"time"`
}

// Engine evaluates state and value triggers and runs their actions.
//
// Triggers are evaluated in rule file order. Every matching trigger of one
// event runs within the same call, and a failing or panicking action never
// stops the ones after it.
//
// Thread Safety:
//   - Not safe for concurrent use. The gateway reactor owns the engine, and
//     the poll timers it arms post back onto that reactor.
type Engine struct {
	deps          Deps
	logger        Logger
	notifications bool
	sender        string

	states []*StateChangeTrigger
	values []*ValueChangeTrigger
}

// NewEngine creates an engine with no triggers. Notifications start enabled.
func NewEngine(deps Deps) *Engine {
	return &Engine{
		deps:          deps,
		logger:        noopLogger{},
		notifications: true,
		sender:        "obsgate",
	}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
}

// SetNotificationsEnabled switches SendNotification actions on or off.
func (e *Engine) SetNotificationsEnabled(enabled bool) {
	e.notifications = enabled
}

// SetNotificationSender names the gateway in published notifications.
func (e *Engine) SetNotificationSender(sender string) {
	if sender != "" {
		e.sender = sender
	}
}

// Load replaces the whole trigger list with rs. Timers of the previous
// triggers are cancelled before the new ones are armed.
func (e *Engine) Load(rs *RuleSet) {
	e.Stop()
	if rs == nil {
		rs = &RuleSet{}
	}
	e.states = rs.States
	e.values = rs.Values

	for _, t := range e.values {
		t := t
		if t.Cadency > 0 {
			t.timer = e.deps.Scheduler.Every(t.Cadency, func() { e.poll(t) })
		}
	}
	e.logger.Info("triggers loaded", "state_triggers", len(e.states), "value_triggers", len(e.values))
}

// Reload re-reads the rule file at path. On any error the current triggers
// stay active and the error is returned.
func (e *Engine) Reload(path string) (int, error) {
	rs, err := LoadRules(path)
	if err != nil {
		e.logger.Warn("trigger reload failed, keeping current rules", "path", path, "error", err)
		return e.Count(), err
	}
	e.Load(rs)
	return rs.Len(), nil
}

// Stop cancels every poll timer. Triggers stay loaded but no longer poll.
func (e *Engine) Stop() {
	for _, t := range e.values {
		if t.timer != nil {
			t.timer.Cancel()
			t.timer = nil
		}
	}
}

// Count returns the number of loaded triggers.
func (e *Engine) Count() int {
	return len(e.states) + len(e.values)
}

// ValueTriggers returns the loaded value triggers in evaluation order.
func (e *Engine) ValueTriggers() []*ValueChangeTrigger {
	out := make([]*ValueChangeTrigger, len(e.values))
	copy(out, e.values)
	return out
}

// StateChanged evaluates every state trigger against ev.
func (e *Engine) StateChanged(ev StateEvent) {
	for _, t := range e.states {
		if !matchFilter(t.DeviceName, ev.Device) || !matchFilter(t.DeviceType, ev.DeviceType) {
			continue
		}
		if !t.Matches(ev.Old.Bits, ev.New.Bits) {
			continue
		}
		e.logger.Debug("state trigger fired", "trigger", t.Name, "device", ev.Device,
			"old", ev.Old.Bits, "new", ev.New.Bits)
		e.fire(t.Name, t.Action, firing{
			device:     ev.Device,
			deviceType: ev.DeviceType,
			at:         ev.Time,
			from:       &ev.Old,
			to:         &ev.New,
		})
	}
}

// ValueChanged evaluates every value trigger against ev. A matching
// trigger fires when a cadency has passed since it last fired; the firing
// time advances whatever the action's outcome.
func (e *Engine) ValueChanged(ev ValueEvent) {
	if ev.Value == nil {
		return
	}
	for _, t := range e.values {
		if !matchFilter(t.DeviceName, ev.Device) || !matchFilter(t.ValueName, ev.Value.Name()) {
			continue
		}
		if !t.due(ev.Time) {
			e.logger.Debug("value trigger suppressed", "trigger", t.Name, "device", ev.Device,
				"value", ev.Value.Name(), "last_fired_at", t.lastFiredAt)
			continue
		}
		t.lastFiredAt = ev.Time
		e.fire(t.Name, t.Action, firing{
			device:     ev.Device,
			deviceType: ev.DeviceType,
			at:         ev.Time,
			value:      ev.Value,
		})
	}
}

// poll asks a quiet device for fresh values.
func (e *Engine) poll(t *ValueChangeTrigger) {
	if t.DeviceName == "" || !t.due(e.deps.Scheduler.Now()) {
		return
	}
	conn, err := e.deps.Devices.Get(t.DeviceName)
	if err != nil || conn.HasCommand(pollCommand) {
		return
	}
	if err := conn.Queue(pollCommand, false, nil); err != nil {
		e.logger.Debug("poll command not queued", "trigger", t.Name, "device", t.DeviceName, "error", err)
	}
}

// firing carries the event a single action runs for.
type firing struct {
	device     string
	deviceType string
	at         time.Time
	from, to   *device.State
	value      *device.TypedValue
}

// fire runs one action, containing failures and panics.
func (e *Engine) fire(trigger string, action Action, f firing) {
	defer func() {
		if rec := recover(); rec != nil {
			e.fail(trigger, f.device, fmt.Errorf("%w: panic: %v", ErrActionFailed, rec))
		}
	}()

	var err error
	switch a := action.(type) {
	case RequeueCommand:
		err = e.requeue(trigger, a, f)
	case SpawnProcess:
		err = e.spawn(trigger, a, f)
	case SendNotification:
		err = e.notify(trigger, a, f)
	case RecordValue:
		err = e.record(f)
	default:
		err = fmt.Errorf("%w: unknown action %T", ErrInvalidAction, action)
	}
	if err != nil {
		e.fail(trigger, f.device, err)
	}
}

func (e *Engine) fail(trigger, origin string, err error) {
	e.logger.Warn("trigger action failed", "trigger", trigger, "device", origin, "error", err)
	e.report(message.SeverityError, origin, fmt.Sprintf("trigger %s: %v", trigger, err))
}

func (e *Engine) report(sev message.Severity, origin, text string) {
	if e.deps.Messages != nil {
		e.deps.Messages.Add(sev, origin, text)
	}
}

func (e *Engine) requeue(trigger string, a RequeueCommand, f firing) error {
	target := a.Device
	if target == "" {
		target = f.device
	}
	conn, err := e.deps.Devices.Get(target)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrActionFailed, err)
	}
	done := func(cmdErr error) {
		if cmdErr != nil {
			e.logger.Warn("trigger command failed", "trigger", trigger, "device", target, "command", a.Text, "error", cmdErr)
			e.report(message.SeverityError, target, fmt.Sprintf("trigger %s: command %q failed: %v", trigger, a.Text, cmdErr))
		}
	}
	if err := conn.Queue(a.Text, false, done); err != nil {
		return fmt.Errorf("%w: queueing %q on %s: %w", ErrActionFailed, a.Text, target, err)
	}
	return nil
}

func (e *Engine) spawn(trigger string, a SpawnProcess, f firing) error {
	if e.deps.Spawner == nil {
		return fmt.Errorf("%w: no process spawner configured", ErrActionFailed)
	}
	args := append([]string(nil), a.Args...)
	if f.value != nil {
		args = append(args, f.value.Name(), unixSeconds(f.at))
	}
	spec := process.Spec{
		Name:    trigger,
		Program: a.Program,
		Args:    args,
		Env:     eventEnv(trigger, f),
	}
	if err := e.deps.Spawner.Spawn(spec); err != nil {
		return fmt.Errorf("%w: %w", ErrActionFailed, err)
	}
	return nil
}

func (e *Engine) notify(trigger string, a SendNotification, f firing) error {
	if !e.notifications {
		e.logger.Debug("notification suppressed", "trigger", trigger, "recipient", a.Recipient)
		return nil
	}
	if e.deps.Publisher == nil {
		return fmt.Errorf("%w: no notification publisher configured", ErrActionFailed)
	}

	subject := a.Subject
	if subject == "" {
		subject = e.sender + ": " + trigger
	}
	payload, err := json.Marshal(Notification{
		Sender:    e.sender,
		Recipient: a.Recipient,
		Subject:   subject,
		Trigger:   trigger,
		Device:    f.device,
		Text:      describe(f),
		Time:      f.at.UTC(),
	})
	if err != nil {
		return fmt.Errorf("%w: marshalling notification: %w", ErrActionFailed, err)
	}

	topic := mqtt.Topics{}.Notify(a.Recipient)
	if err := e.deps.Publisher.Publish(topic, payload, 1, false); err != nil {
		return fmt.Errorf("%w: publishing to %q: %w", ErrActionFailed, topic, err)
	}
	return nil
}

func (e *Engine) record(f firing) error {
	if f.value == nil {
		return fmt.Errorf("%w: record needs a value event", ErrInvalidAction)
	}
	if e.deps.Sink == nil {
		return fmt.Errorf("%w: no value sink configured", ErrActionFailed)
	}
	if err := e.deps.Sink.RecordValue(f.device, f.value, f.at); err != nil {
		return fmt.Errorf("%w: %w", ErrActionFailed, err)
	}
	return nil
}

// eventEnv describes the event to a spawned program.
func eventEnv(trigger string, f firing) []string {
	env := []string{
		"OBSGATE_TRIGGER=" + trigger,
		"OBSGATE_DEVICE=" + f.device,
		"OBSGATE_DEVICE_TYPE=" + f.deviceType,
		"OBSGATE_TIME=" + unixSeconds(f.at),
	}
	if f.from != nil && f.to != nil {
		env = append(env,
			"OBSGATE_STATE_OLD="+strconv.FormatUint(uint64(f.from.Bits), 10),
			"OBSGATE_STATE_NEW="+strconv.FormatUint(uint64(f.to.Bits), 10),
			"OBSGATE_STATE_TEXT="+f.to.Text,
		)
	}
	if f.value != nil {
		env = append(env,
			"OBSGATE_VALUE="+f.value.Name(),
			"OBSGATE_VALUE_TEXT="+f.value.DisplayText(),
		)
	}
	return env
}

func describe(f firing) string {
	switch {
	case f.value != nil:
		return fmt.Sprintf("%s.%s = %s", f.device, f.value.Name(), f.value.DisplayText())
	case f.from != nil && f.to != nil:
		return fmt.Sprintf("%s state changed from 0x%x to 0x%x (%s)", f.device, f.from.Bits, f.to.Bits, f.to.Text)
	default:
		return f.device
	}
}

// unixSeconds formats t as Unix seconds with millisecond precision.
func unixSeconds(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixMilli())/1000, 'f', 3, 64)
}
