// Package devnet turns device-network traffic into gateway events.
//
// Device daemons talk to the gateway over MQTT (see package mqtt for the
// topic layout). Network decodes each message on the broker goroutine and
// posts the resulting change onto the reactor, where it updates the
// connection registry and notifies Events. In the other direction it is
// the device.CommandSender of every connection: commands and notifications
// are queued on an outbox drained by one goroutine, so the reactor never
// waits for a broker acknowledgement.
//
// Payloads (JSON):
//
//	announce  {"type":"CCD","state":{"bits":1,"text":"idle"},"values":[...]}
//	value     {"name":"exposure","type":"double","flags":0,"value":30.0}
//	state     {"bits":2,"text":"exposing"}
//	reply     {"id":"...","ok":false,"error":"shutter jammed"}
//	log       {"severity":"warning","text":"cooler at limit"}
//	status    {"status":"offline"}
//	command   {"id":"...","text":"expose 30","raw":false}
package devnet
