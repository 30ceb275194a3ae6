package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes of the observatory device network.
//
// Device daemons publish under obsgate/devices/{name}/{kind} and receive
// commands on obsgate/devices/{name}/command. The gateway announces itself
// on obsgate/gateway/status and relays notifications to obsgate/notify/{recipient}.
const (
	// TopicPrefix is the root of every obsgate topic.
	TopicPrefix = "obsgate"

	// TopicPrefixDevices is the base for per-device topics.
	TopicPrefixDevices = "obsgate/devices"

	// TopicPrefixNotify is the base for notification topics.
	TopicPrefixNotify = "obsgate/notify"
)

// Kinds of message a device publishes about itself.
const (
	KindAnnounce = "announce"
	KindValue    = "value"
	KindState    = "state"
	KindReply    = "reply"
	KindLog      = "log"
	KindStatus   = "status"
	KindCommand  = "command"
)

// Topics provides builders for obsgate MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.DeviceCommand("ccd0")
//	// Returns: "obsgate/devices/ccd0/command"
type Topics struct{}

// Device returns the topic for one kind of device message.
//
// Example: obsgate/devices/dome/state
func (Topics) Device(name, kind string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixDevices, name, kind)
}

// DeviceCommand returns the topic a device reads its commands from.
//
// Example: obsgate/devices/ccd0/command
func (t Topics) DeviceCommand(name string) string {
	return t.Device(name, KindCommand)
}

// DeviceStatus returns the online/offline topic of a device.
//
// Example: obsgate/devices/ccd0/status
func (t Topics) DeviceStatus(name string) string {
	return t.Device(name, KindStatus)
}

// AllDeviceEvents returns the wildcard matching every device message.
//
// Example: obsgate/devices/+/+
func (Topics) AllDeviceEvents() string {
	return TopicPrefixDevices + "/+/+"
}

// Notify returns the topic notifications for recipient are published on.
//
// Example: obsgate/notify/night-operator
func (Topics) Notify(recipient string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixNotify, recipient)
}

// GatewayStatus returns the gateway's own online/offline topic.
//
// Example: obsgate/gateway/status
func (Topics) GatewayStatus() string {
	return TopicPrefix + "/gateway/status"
}

// ParseDeviceTopic splits obsgate/devices/{name}/{kind} into name and kind.
func ParseDeviceTopic(topic string) (name, kind string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefixDevices+"/")
	if !found {
		return "", "", false
	}
	name, kind, found = strings.Cut(rest, "/")
	if !found || name == "" || kind == "" || strings.Contains(kind, "/") {
		return "", "", false
	}
	return name, kind, true
}

// ValidSegment reports whether s can be used as a single topic level.
func ValidSegment(s string) bool {
	return s != "" && !strings.ContainsAny(s, "/+#")
}
