package rpc

import (
	"errors"
	"fmt"
)

// Domain errors for the rpc package. Handlers wrap these (with %w) to
// select the fault code reported to the caller.
var (
	// ErrAuthenticationFailure is returned when credentials or a session token are rejected.
	ErrAuthenticationFailure = errors.New("rpc: authentication failure")

	// ErrNotFound is returned when a device or value does not exist.
	ErrNotFound = errors.New("rpc: not found")

	// ErrMalformedRequest is returned for unknown methods and bad parameters.
	ErrMalformedRequest = errors.New("rpc: malformed request")

	// ErrDeviceCommandFailure is returned when a command cannot be queued on a device.
	ErrDeviceCommandFailure = errors.New("rpc: device command failure")

	// ErrMethodExists is returned when registering a method name twice.
	ErrMethodExists = errors.New("rpc: method already registered")
)

// Code identifies the class of a fault.
type Code string

// Fault codes.
const (
	CodeAuthenticationFailure Code = "authentication_failure"
	CodeNotFound              Code = "not_found"
	CodeMalformedRequest      Code = "malformed_request"
	CodeDeviceCommandFailure  Code = "device_command_failure"
	CodeInternal              Code = "internal_error"
)

// Fault is the error half of an RPC response.
type Fault struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// Faultf builds a fault with a formatted message.
func Faultf(code Code, format string, args ...any) *Fault {
	return &Fault{Code: code, Message: fmt.Sprintf(format, args...)}
}

// FaultFromError classifies err into a fault. The message keeps the full
// error text so that callers can diagnose the problem.
func FaultFromError(err error) *Fault {
	var f *Fault
	if errors.As(err, &f) {
		return f
	}

	code := CodeInternal
	switch {
	case errors.Is(err, ErrAuthenticationFailure):
		code = CodeAuthenticationFailure
	case errors.Is(err, ErrNotFound):
		code = CodeNotFound
	case errors.Is(err, ErrMalformedRequest):
		code = CodeMalformedRequest
	case errors.Is(err, ErrDeviceCommandFailure):
		code = CodeDeviceCommandFailure
	}
	return &Fault{Code: code, Message: err.Error()}
}
