// Package device models the live device network as seen by the gateway.
//
// Every device daemon (camera, mount, dome, sensors) and the central
// coordinator is represented by a Connection. A Connection mirrors the
// device's values as immutable TypedValue snapshots, tracks its state word
// and owns a FIFO command queue with one command in flight.
//
// # Architecture
//
//	┌────────────────────────────────────────────────────────────┐
//	│                         Registry                           │
//	│                                                            │
//	│   coordinator ──▶ Connection("centrald")                   │
//	│   devices     ──▶ Connection("ccd0")  Connection("dome")   │
//	│                        │                                   │
//	│          ┌─────────────┼───────────────┐                   │
//	│          ▼             ▼               ▼                   │
//	│     TypedValue     State{Bits,Text}   command FIFO ──▶ CommandSender
//	└────────────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - TypedValue: name, BaseType, flags and a Payload (closed sum type)
//   - Connection: values, state and the command queue of one device
//   - Registry: name and type lookup, registration order preserved
//
// # Usage
//
//	reg := device.NewRegistry()
//	conn := device.NewConnection("ccd0", "CCD", sender)
//	_ = reg.Add(conn)
//
//	v, _ := device.NewTypedValue("exposure", device.TypeDouble, 0, device.FloatPayload(5))
//	old, err := conn.UpdateValue(v)
//
//	_ = conn.Queue("exposure=10", false, func(err error) { ... })
//
// # Thread Safety
//
// Nothing in this package locks. Registry and Connections are owned by the
// reactor goroutine; device and RPC transports post work to the reactor.
package device
