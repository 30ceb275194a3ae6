package automation

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleRules = `
state_changes:
  - name: dome-closed
    device: dome
    type: DOME
    mask: 0x0f
    value: 0x02
    action:
      notify: night-operator
      subject: Dome closed
  - mask: 0x30
    value: 0x10
    action:
      command: stop
      device: mount
value_changes:
  - name: ccd-temperature
    device: ccd0
    value: temperature
    cadency: 60
    action:
      record: true
  - device: weather
    value: rain
    cadency: 1m30s
    action:
      spawn: /usr/local/bin/rain-alert
      args: ["--loud"]
`

func TestParseRules(t *testing.T) {
	rs, err := ParseRules([]byte(sampleRules))
	if err != nil {
		t.Fatalf("ParseRules() error = %v", err)
	}
	if rs.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", rs.Len())
	}

	dome := rs.States[0]
	if dome.Name != "dome-closed" || dome.DeviceName != "dome" || dome.DeviceType != "DOME" {
		t.Errorf("dome trigger = %+v", dome)
	}
	if dome.Mask != 0x0f || dome.Value != 0x02 {
		t.Errorf("mask/value = 0x%x/0x%x", dome.Mask, dome.Value)
	}
	if a, ok := dome.Action.(SendNotification); !ok || a.Recipient != "night-operator" || a.Subject != "Dome closed" {
		t.Errorf("dome action = %#v", dome.Action)
	}

	if rs.States[1].Name != "state_changes[1]" {
		t.Errorf("unnamed trigger name = %q", rs.States[1].Name)
	}
	if a, ok := rs.States[1].Action.(RequeueCommand); !ok || a.Text != "stop" || a.Device != "mount" {
		t.Errorf("requeue action = %#v", rs.States[1].Action)
	}

	if rs.Values[0].Cadency != time.Minute {
		t.Errorf("numeric cadency = %v, want 1m", rs.Values[0].Cadency)
	}
	if _, ok := rs.Values[0].Action.(RecordValue); !ok {
		t.Errorf("record action = %#v", rs.Values[0].Action)
	}
	if rs.Values[1].Cadency != 90*time.Second {
		t.Errorf("duration cadency = %v, want 1m30s", rs.Values[1].Cadency)
	}
	if a, ok := rs.Values[1].Action.(SpawnProcess); !ok || a.Program != "/usr/local/bin/rain-alert" || len(a.Args) != 1 {
		t.Errorf("spawn action = %#v", rs.Values[1].Action)
	}
}

func TestParseRules_Empty(t *testing.T) {
	rs, err := ParseRules(nil)
	if err != nil {
		t.Fatalf("ParseRules(nil) error = %v", err)
	}
	if rs.Len() != 0 {
		t.Errorf("Len() = %d, want 0", rs.Len())
	}
}

func TestParseRules_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr error
	}{
		{
			name:    "missing mask",
			yaml:    "state_changes:\n  - value: 1\n    action: {command: x}\n",
			wantErr: ErrInvalidTrigger,
		},
		{
			name:    "value outside mask",
			yaml:    "state_changes:\n  - mask: 0x01\n    value: 0x02\n    action: {command: x}\n",
			wantErr: ErrInvalidTrigger,
		},
		{
			name:    "negative cadency",
			yaml:    "value_changes:\n  - cadency: -5\n    action: {record: true}\n",
			wantErr: ErrInvalidTrigger,
		},
		{
			name:    "no action",
			yaml:    "value_changes:\n  - value: x\n",
			wantErr: ErrInvalidAction,
		},
		{
			name:    "two actions",
			yaml:    "value_changes:\n  - action: {record: true, notify: op}\n",
			wantErr: ErrInvalidAction,
		},
		{
			name:    "record on state trigger",
			yaml:    "state_changes:\n  - mask: 1\n    value: 1\n    action: {record: true}\n",
			wantErr: ErrInvalidAction,
		},
		{
			name:    "recipient with wildcard",
			yaml:    "value_changes:\n  - action: {notify: 'ops/#'}\n",
			wantErr: ErrInvalidAction,
		},
		{
			name:    "multi-line command",
			yaml:    "value_changes:\n  - action: {command: \"a\\nb\"}\n",
			wantErr: ErrInvalidAction,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRules([]byte(tt.yaml))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ParseRules() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseRules_UnknownField(t *testing.T) {
	_, err := ParseRules([]byte("value_changes:\n  - cadence: 60\n    action: {record: true}\n"))
	if err == nil || !strings.Contains(err.Error(), "cadence") {
		t.Errorf("ParseRules() error = %v, want unknown field error", err)
	}
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "triggers.yaml")
	if err := os.WriteFile(path, []byte(sampleRules), 0o600); err != nil {
		t.Fatalf("writing rules: %v", err)
	}
	rs, err := LoadRules(path)
	if err != nil || rs.Len() != 4 {
		t.Fatalf("LoadRules() = %v, %v", rs, err)
	}

	if _, err := LoadRules(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadRules() expected error for missing file")
	}
}
