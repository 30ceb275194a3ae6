package mqtt

import "testing"

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"Device", topics.Device("ccd0", KindValue), "obsgate/devices/ccd0/value"},
		{"DeviceCommand", topics.DeviceCommand("dome"), "obsgate/devices/dome/command"},
		{"DeviceStatus", topics.DeviceStatus("mount"), "obsgate/devices/mount/status"},
		{"AllDeviceEvents", topics.AllDeviceEvents(), "obsgate/devices/+/+"},
		{"Notify", topics.Notify("night-operator"), "obsgate/notify/night-operator"},
		{"GatewayStatus", topics.GatewayStatus(), "obsgate/gateway/status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestParseDeviceTopic(t *testing.T) {
	tests := []struct {
		topic    string
		wantName string
		wantKind string
		wantOK   bool
	}{
		{"obsgate/devices/ccd0/value", "ccd0", "value", true},
		{"obsgate/devices/dome/announce", "dome", "announce", true},
		{"obsgate/devices/dome", "", "", false},
		{"obsgate/devices//value", "", "", false},
		{"obsgate/devices/dome/", "", "", false},
		{"obsgate/devices/dome/value/extra", "", "", false},
		{"obsgate/notify/bob", "", "", false},
		{"other/devices/dome/value", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			name, kind, ok := ParseDeviceTopic(tt.topic)
			if ok != tt.wantOK || name != tt.wantName || kind != tt.wantKind {
				t.Errorf("ParseDeviceTopic(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.topic, name, kind, ok, tt.wantName, tt.wantKind, tt.wantOK)
			}
		})
	}
}

func TestParseDeviceTopic_RoundTripsBuilder(t *testing.T) {
	for _, kind := range []string{KindAnnounce, KindValue, KindState, KindReply, KindLog, KindStatus} {
		name, got, ok := ParseDeviceTopic(Topics{}.Device("focuser", kind))
		if !ok || name != "focuser" || got != kind {
			t.Errorf("kind %s: got (%q, %q, %v)", kind, name, got, ok)
		}
	}
}

func TestValidSegment(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"observer", true},
		{"night-operator", true},
		{"", false},
		{"a/b", false},
		{"all+", false},
		{"#", false},
	}
	for _, tt := range tests {
		if got := ValidSegment(tt.in); got != tt.want {
			t.Errorf("ValidSegment(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
