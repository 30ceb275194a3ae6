package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrConnectionNotFound) {
//	    // handle not found case
//	}
var (
	// ErrConnectionNotFound is returned when no live connection has the given name.
	ErrConnectionNotFound = errors.New("device: connection not found")

	// ErrConnectionExists is returned when registering a name that is already live.
	ErrConnectionExists = errors.New("device: connection already exists")

	// ErrConnectionClosed is returned when queueing a command on a dead connection.
	ErrConnectionClosed = errors.New("device: connection closed")

	// ErrValueNotFound is returned when a connection has no value with the given name.
	ErrValueNotFound = errors.New("device: value not found")

	// ErrInvalidValue is returned when a value snapshot is malformed.
	ErrInvalidValue = errors.New("device: invalid value")

	// ErrTypeMismatch is returned when an update changes the base type of an existing value.
	ErrTypeMismatch = errors.New("device: base type mismatch")

	// ErrCommandFailed is returned when a device rejects a command or it cannot be sent.
	ErrCommandFailed = errors.New("device: command failed")

	// ErrUnexpectedReply is returned when a reply does not match the command in flight.
	ErrUnexpectedReply = errors.New("device: unexpected reply")
)
