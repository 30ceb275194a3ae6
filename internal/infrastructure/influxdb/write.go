package influxdb

import (
	"fmt"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/obsgate/internal/device"
)

// ValueMeasurement is the measurement device values are written to.
const ValueMeasurement = "device_values"

// RecordValue queues one device value snapshot for writing. It never
// blocks; batch failures are reported through SetOnError.
func (c *Client) RecordValue(deviceName string, v *device.TypedValue, at time.Time) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	p, err := ValuePoint(deviceName, v, at)
	if err != nil {
		return err
	}
	c.writeAPI.WritePoint(p)
	c.queued.Add(1)
	return nil
}

// ValuePoint converts a value snapshot into a point tagged with device,
// value name and base type.
//
// Numbers and booleans are stored in the "value" field. Strings go to
// "text"; selections store the label in "text" and the index in "value";
// times store Unix seconds in "value".
func ValuePoint(deviceName string, v *device.TypedValue, at time.Time) (*write.Point, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: nil value", ErrWriteFailed)
	}

	fields := make(map[string]interface{}, 2)
	switch p := v.Payload().(type) {
	case device.IntPayload:
		fields["value"] = int64(p)
	case device.FloatPayload:
		fields["value"] = float64(p)
	case device.BoolPayload:
		fields["value"] = bool(p)
	case device.StringPayload:
		fields["text"] = string(p)
	case device.TimePayload:
		fields["value"] = float64(time.Time(p).UnixNano()) / float64(time.Second)
	case device.SelectionPayload:
		fields["value"] = int64(p.Index)
		fields["text"] = v.DisplayText()
	default:
		return nil, fmt.Errorf("%w: unsupported payload %T", ErrWriteFailed, p)
	}

	tags := map[string]string{
		"device": deviceName,
		"value":  v.Name(),
		"type":   string(v.Type()),
	}
	return write.NewPoint(ValueMeasurement, tags, fields, at), nil
}
