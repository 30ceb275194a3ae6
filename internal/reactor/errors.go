package reactor

import "errors"

// ErrStopped is returned when posting to a reactor that has shut down.
var ErrStopped = errors.New("reactor: stopped")
