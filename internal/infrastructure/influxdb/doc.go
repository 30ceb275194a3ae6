// Package influxdb records device values in InfluxDB.
//
// It is the sink behind the "record" trigger action: each recorded value
// becomes one point in the device_values measurement, tagged with the
// device, value name and base type.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // record actions will fail with a message
//	}
//	defer client.Close()
//
//	err = client.RecordValue("ccd0", value, time.Now())
//
// Writes are batched (batch_size, flush_interval in config.yaml) and never
// block the caller. Batch errors arrive on the SetOnError callback.
package influxdb
