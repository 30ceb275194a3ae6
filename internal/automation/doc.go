// Package automation is the gateway's trigger engine.
//
// Two kinds of trigger are read from a YAML rule file:
//
//   - StateChangeTrigger fires when a device's state bits enter a masked
//     value. It fires once per transition, never while the state holds.
//   - ValueChangeTrigger fires when a device pushes a value, at most once
//     per cadency. A trigger with a cadency also polls its device with an
//     "info" command whenever it has not fired for a whole cadency.
//
// Each trigger carries one Action:
//
//	command  queue a command on the triggering (or a named) device
//	spawn    run a program with the event in OBSGATE_* variables
//	notify   publish a notification on obsgate/notify/{recipient}
//	record   write the value to the telemetry sink
//
// Action failures are logged and added to the message log; they never
// stop other triggers. Reload swaps the entire rule set in one step and
// keeps the old one when the new file does not parse or validate.
//
// # Thread Safety
//
// The Engine is owned by the gateway reactor and must only be called from it.
package automation
