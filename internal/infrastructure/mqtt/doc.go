// Package mqtt connects the gateway to the MQTT broker that carries the
// observatory device network.
//
// Device daemons publish announcements, values, state changes, command
// replies and log lines under obsgate/devices/{name}/{kind}; the gateway
// subscribes to all of them with one wildcard and publishes commands back
// to obsgate/devices/{name}/command. Notifications raised by triggers go
// to obsgate/notify/{recipient}.
//
//	Gateway ↔ MQTT broker ↔ device daemons (CCD, dome, mount, ...)
//
// The client reconnects on its own with exponential backoff and replays
// its subscriptions afterwards. The gateway's own retained status lives on
// obsgate/gateway/status, with a last will of "offline".
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllDeviceEvents(), 1, handler)
//	err = client.Publish(mqtt.Topics{}.DeviceCommand("dome"), cmd, 1, false)
package mqtt
