package devnet

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/nerrad567/obsgate/internal/device"
	"github.com/nerrad567/obsgate/internal/message"
)

// Announcement introduces a device and its full value set.
type Announcement struct {
	Type   string       `json:"type"`
	State  device.State `json:"state"`
	Values []WireValue  `json:"values"`
}

// WireValue is one value snapshot as a device publishes it.
type WireValue struct {
	Name   string          `json:"name"`
	Type   device.BaseType `json:"type"`
	Flags  uint32          `json:"flags"`
	Value  json.RawMessage `json:"value"`
	Labels []string        `json:"labels,omitempty"`
}

// Reply completes the command with the given id.
type Reply struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// LogLine is a message a device wants operators to see.
type LogLine struct {
	Severity message.Severity `json:"severity"`
	Text     string           `json:"text"`
}

// Status is a device's online/offline marker; "offline" is also its last will.
type Status struct {
	Status string `json:"status"`
}

// Status values.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// commandPayload is what a device receives on its command topic.
type commandPayload struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Raw  bool   `json:"raw"`
}

// Decode builds the typed snapshot a WireValue describes.
func (w WireValue) Decode() (*device.TypedValue, error) {
	p, err := decodePayload(w)
	if err != nil {
		return nil, fmt.Errorf("value %q: %w", w.Name, err)
	}
	return device.NewTypedValue(w.Name, w.Type, w.Flags, p)
}

func decodePayload(w WireValue) (device.Payload, error) {
	switch {
	case w.Type.Integral():
		var n json.Number
		if err := json.Unmarshal(w.Value, &n); err != nil {
			return nil, fmt.Errorf("%w: %s needs a number", device.ErrInvalidValue, w.Type)
		}
		if i, err := n.Int64(); err == nil {
			return device.IntPayload(i), nil
		}
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", device.ErrInvalidValue, err)
		}
		return device.IntPayload(int64(math.Trunc(f))), nil

	case w.Type.Floating():
		var f float64
		if err := json.Unmarshal(w.Value, &f); err != nil {
			return nil, fmt.Errorf("%w: %s needs a number", device.ErrInvalidValue, w.Type)
		}
		return device.FloatPayload(f), nil
	}

	switch w.Type {
	case device.TypeBool:
		var b bool
		if err := json.Unmarshal(w.Value, &b); err != nil {
			return nil, fmt.Errorf("%w: bool needs true or false", device.ErrInvalidValue)
		}
		return device.BoolPayload(b), nil

	case device.TypeString:
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			return nil, fmt.Errorf("%w: string needs text", device.ErrInvalidValue)
		}
		return device.StringPayload(s), nil

	case device.TypeTime:
		return decodeTime(w.Value)

	case device.TypeSelection:
		var idx int
		if err := json.Unmarshal(w.Value, &idx); err != nil {
			return nil, fmt.Errorf("%w: selection needs an index", device.ErrInvalidValue)
		}
		return device.SelectionPayload{Index: idx, Labels: w.Labels}, nil

	default:
		return nil, fmt.Errorf("%w: unknown base type %q", device.ErrInvalidValue, w.Type)
	}
}

// decodeTime accepts RFC 3339 text or Unix seconds.
func decodeTime(raw json.RawMessage) (device.Payload, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", device.ErrInvalidValue, err)
		}
		return device.TimePayload(t.UTC()), nil
	}

	var secs float64
	if err := json.Unmarshal(raw, &secs); err != nil {
		return nil, fmt.Errorf("%w: time needs RFC 3339 text or Unix seconds", device.ErrInvalidValue)
	}
	whole, frac := math.Modf(secs)
	return device.TimePayload(time.Unix(int64(whole), int64(frac*float64(time.Second))).UTC()), nil
}

// decodeValues decodes every value of an announcement. One bad value
// rejects the whole announcement.
func decodeValues(ws []WireValue) ([]*device.TypedValue, error) {
	out := make([]*device.TypedValue, 0, len(ws))
	for _, w := range ws {
		v, err := w.Decode()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// severityOf maps a device's severity to a known one; unknown becomes info.
func severityOf(s message.Severity) message.Severity {
	switch s {
	case message.SeverityError, message.SeverityWarning, message.SeverityDebug:
		return s
	default:
		return message.SeverityInfo
	}
}
