package device

import "fmt"

// CoordinatorName is the conventional name of the central coordinator.
const CoordinatorName = "centrald"

// Logger defines the logging interface used by the device package.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the directory of live connections.
//
// Device connections are kept in registration order. The coordinator
// connection is held separately: it is reachable through Get and
// Coordinator but is not counted or listed as a device.
//
// Thread Safety:
//   - Not safe for concurrent use. The registry is owned by the reactor
//     goroutine; transports post closures to the reactor instead of locking.
type Registry struct {
	devices     []*Connection
	byName      map[string]*Connection
	coordinator *Connection
	logger      Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Connection),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Add registers a device connection.
// Returns ErrConnectionExists if the name is already live.
func (r *Registry) Add(c *Connection) error {
	if c.Name() == "" {
		return fmt.Errorf("%w: empty connection name", ErrInvalidValue)
	}
	if _, ok := r.byName[c.Name()]; ok || r.isCoordinator(c.Name()) {
		return fmt.Errorf("%w: %s", ErrConnectionExists, c.Name())
	}
	r.devices = append(r.devices, c)
	r.byName[c.Name()] = c
	r.logger.Info("device connected", "device", c.Name(), "type", c.Type())
	return nil
}

// SetCoordinator installs (or replaces) the coordinator connection.
// A replaced coordinator is closed.
func (r *Registry) SetCoordinator(c *Connection) {
	if r.coordinator != nil && r.coordinator != c {
		r.coordinator.Close()
	}
	r.coordinator = c
	r.logger.Info("coordinator connected", "name", c.Name())
}

// Remove unregisters and closes the named connection.
// Queued commands on it fail with ErrConnectionClosed.
func (r *Registry) Remove(name string) (*Connection, error) {
	if r.isCoordinator(name) {
		c := r.coordinator
		r.coordinator = nil
		c.Close()
		r.logger.Info("coordinator disconnected", "name", name)
		return c, nil
	}

	c, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConnectionNotFound, name)
	}
	delete(r.byName, name)
	for i, d := range r.devices {
		if d == c {
			r.devices = append(r.devices[:i], r.devices[i+1:]...)
			break
		}
	}
	c.Close()
	r.logger.Info("device disconnected", "device", name)
	return c, nil
}

// Get returns the live connection with the given name, device or coordinator.
func (r *Registry) Get(name string) (*Connection, error) {
	if c, ok := r.byName[name]; ok {
		return c, nil
	}
	if r.isCoordinator(name) {
		return r.coordinator, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrConnectionNotFound, name)
}

// Coordinator returns the coordinator connection.
func (r *Registry) Coordinator() (*Connection, error) {
	if r.coordinator == nil {
		return nil, fmt.Errorf("%w: %s", ErrConnectionNotFound, CoordinatorName)
	}
	return r.coordinator, nil
}

// ByType returns device connections with the given type tag, in registration order.
func (r *Registry) ByType(tag string) []*Connection {
	var out []*Connection
	for _, c := range r.devices {
		if c.Type() == tag {
			out = append(out, c)
		}
	}
	return out
}

// Devices returns all device connections in registration order.
func (r *Registry) Devices() []*Connection {
	out := make([]*Connection, len(r.devices))
	copy(out, r.devices)
	return out
}

// All returns the coordinator (if connected) followed by every device.
func (r *Registry) All() []*Connection {
	out := make([]*Connection, 0, len(r.devices)+1)
	if r.coordinator != nil {
		out = append(out, r.coordinator)
	}
	return append(out, r.devices...)
}

// Count returns the number of device connections.
func (r *Registry) Count() int {
	return len(r.devices)
}

func (r *Registry) isCoordinator(name string) bool {
	return r.coordinator != nil && r.coordinator.Name() == name
}
