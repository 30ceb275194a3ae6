// Package rpc provides the transport-independent RPC layer of the gateway.
//
// It defines the closed Value sum type used for parameters and results,
// the fault taxonomy reported to callers, and the Dispatcher that maps a
// method name to its handler.
//
// Per call the Dispatcher:
//  1. looks the method up (unknown names fault with malformed_request)
//  2. authenticates the caller when the method requires it
//  3. runs the handler on the Executor (the gateway reactor)
//  4. turns the handler error or panic into a Fault
//
// Credentials are either (user, password) or the reserved user
// "session_id" with a session token as the secret.
//
// Fault codes:
//
//	authentication_failure  bad credentials or expired session
//	not_found               unknown device or value
//	malformed_request       unknown method, wrong parameter count or kind
//	device_command_failure  command could not be queued
//	internal_error          anything else, including handler panics
package rpc
