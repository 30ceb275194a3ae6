package automation

import (
	"time"

	"github.com/nerrad567/obsgate/internal/device"
	"github.com/nerrad567/obsgate/internal/reactor"
)

// ActionKind names an Action variant.
type ActionKind string

const (
	KindRequeueCommand   ActionKind = "command"
	KindSpawnProcess     ActionKind = "spawn"
	KindSendNotification ActionKind = "notify"
	KindRecordValue      ActionKind = "record"
)

// Action is the side effect a trigger fires. The set of variants is closed.
type Action interface {
	Kind() ActionKind
}

// RequeueCommand queues Text on Device, or on the triggering device when
// Device is empty.
type RequeueCommand struct {
	Text   string
	Device string
}

// SpawnProcess runs Program with Args. The event is passed in OBSGATE_*
// environment variables.
type SpawnProcess struct {
	Program string
	Args    []string
}

// SendNotification publishes a notice for Recipient.
type SendNotification struct {
	Recipient string
	Subject   string
}

// RecordValue writes the triggering value to the telemetry sink.
type RecordValue struct{}

func (RequeueCommand) Kind() ActionKind   { return KindRequeueCommand }
func (SpawnProcess) Kind() ActionKind     { return KindSpawnProcess }
func (SendNotification) Kind() ActionKind { return KindSendNotification }
func (RecordValue) Kind() ActionKind      { return KindRecordValue }

// StateChangeTrigger fires when a device's state bits enter Value under Mask:
// (next & Mask) == Value while (prev & Mask) != Value.
type StateChangeTrigger struct {
	Name       string
	DeviceName string // empty matches any device
	DeviceType string // empty matches any type
	Mask       uint32
	Value      uint32
	Action     Action
}

// Matches reports whether the prev → next transition enters the trigger's state.
func (t *StateChangeTrigger) Matches(prev, next uint32) bool {
	return next&t.Mask == t.Value && prev&t.Mask != t.Value
}

// ValueChangeTrigger fires on updates of a value at most once per Cadency.
type ValueChangeTrigger struct {
	Name       string
	DeviceName string // empty matches any device
	ValueName  string // empty matches any value
	Cadency    time.Duration
	Action     Action

	lastFiredAt time.Time
	timer       reactor.Canceler
}

// LastFiredAt returns when the trigger last fired; zero if never.
func (t *ValueChangeTrigger) LastFiredAt() time.Time {
	return t.lastFiredAt
}

// due reports whether at least one cadency has passed since the last firing.
func (t *ValueChangeTrigger) due(now time.Time) bool {
	return t.lastFiredAt.IsZero() || now.Sub(t.lastFiredAt) >= t.Cadency
}

// StateEvent is a device state transition.
type StateEvent struct {
	Device     string
	DeviceType string
	Old        device.State
	New        device.State
	Time       time.Time
}

// ValueEvent is a confirmed value update pushed by a device.
type ValueEvent struct {
	Device     string
	DeviceType string
	Value      *device.TypedValue
	Time       time.Time
}

func matchFilter(filter, actual string) bool {
	return filter == "" || filter == actual
}
