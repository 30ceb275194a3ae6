// Package gateway ties the device registry, trigger engine, message
// history and RPC method table to one reactor.
//
// Device network events (announce, value, state, log, offline) arrive
// through the Events methods on the reactor goroutine. RPC calls reach the
// same state through the dispatcher, which hands every non-direct method
// to the reactor, so no gateway state is ever shared between goroutines.
//
// Value changes requested over RPC are sent to the device as text commands
// ("exposure=5", "focus+=10"). The gateway's snapshot only changes when the
// device confirms the new value.
package gateway
