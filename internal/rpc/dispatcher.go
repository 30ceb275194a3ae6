package rpc

import (
	"context"
	"fmt"
	"runtime/debug"
)

// SessionUser is the reserved user name whose secret is a session token.
const SessionUser = "session_id"

// Credentials are the (user, secret) pair sent with a call.
type Credentials struct {
	User   string
	Secret string
}

// Handler implements one RPC method.
type Handler func(ctx context.Context, params Params) (Value, error)

// Method describes a registered RPC method.
type Method struct {
	Name string

	// RequireAuth makes the dispatcher authenticate the caller before the handler runs.
	RequireAuth bool

	// Direct handlers run on the calling goroutine instead of the executor.
	// They must hand any shared-state access to the executor themselves.
	Direct bool

	Handler Handler
}

// Authenticator checks call credentials. It runs on the calling goroutine.
type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials) (string, error)
}

// Executor runs fn on the goroutine that owns gateway state and waits for it.
type Executor interface {
	Do(ctx context.Context, fn func()) error
}

// Logger defines the logging interface used by the dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type userKey struct{}

// UserFromContext returns the authenticated user of the current call.
func UserFromContext(ctx context.Context) (string, bool) {
	u, ok := ctx.Value(userKey{}).(string)
	return u, ok
}

// Dispatcher maps method names to handlers and applies authentication
// uniformly before any handler runs.
//
// Thread Safety:
//   - Register is not safe for concurrent use; register everything at startup.
//   - Call is safe for concurrent use once registration is complete.
type Dispatcher struct {
	methods map[string]Method
	order   []string
	auth    Authenticator
	exec    Executor
	logger  Logger
}

// NewDispatcher creates a dispatcher. A nil executor runs handlers inline.
func NewDispatcher(auth Authenticator, exec Executor) *Dispatcher {
	return &Dispatcher{
		methods: make(map[string]Method),
		auth:    auth,
		exec:    exec,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// Register adds a method. Names are unique.
func (d *Dispatcher) Register(m Method) error {
	if m.Name == "" || m.Handler == nil {
		return fmt.Errorf("%w: method needs a name and a handler", ErrMalformedRequest)
	}
	if _, ok := d.methods[m.Name]; ok {
		return fmt.Errorf("%w: %s", ErrMethodExists, m.Name)
	}
	d.methods[m.Name] = m
	d.order = append(d.order, m.Name)
	return nil
}

// Methods returns the registered method names in registration order.
func (d *Dispatcher) Methods() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// Call runs one RPC. It never panics: every failure becomes a fault.
func (d *Dispatcher) Call(ctx context.Context, name string, creds Credentials, params Params) (Value, *Fault) {
	m, ok := d.methods[name]
	if !ok {
		return nil, Faultf(CodeMalformedRequest, "unknown method %q", name)
	}

	if m.RequireAuth {
		if d.auth == nil {
			return nil, Faultf(CodeAuthenticationFailure, "no authenticator configured")
		}
		user, err := d.auth.Authenticate(ctx, creds)
		if err != nil {
			d.logger.Warn("rpc authentication failed", "method", name, "user", creds.User, "error", err)
			return nil, &Fault{Code: CodeAuthenticationFailure, Message: "authentication failed for " + name}
		}
		ctx = context.WithValue(ctx, userKey{}, user)
	}

	var (
		result Value
		err    error
	)
	run := func() {
		result, err = d.invoke(ctx, m, params)
	}

	if m.Direct || d.exec == nil {
		run()
	} else if execErr := d.exec.Do(ctx, run); execErr != nil {
		return nil, Faultf(CodeInternal, "%s not executed: %v", name, execErr)
	}

	if err != nil {
		f := FaultFromError(err)
		d.logger.Debug("rpc fault", "method", name, "code", f.Code, "message", f.Message)
		return nil, f
	}
	if result == nil {
		result = Nil{}
	}
	return result, nil
}

// invoke runs the handler, turning a panic into an internal fault.
func (d *Dispatcher) invoke(ctx context.Context, m Method, params Params) (result Value, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("panic recovered in rpc handler",
				"method", m.Name,
				"error", fmt.Sprint(rec),
				"stack", string(debug.Stack()),
			)
			result = nil
			err = Faultf(CodeInternal, "%s failed: %v", m.Name, rec)
		}
	}()
	return m.Handler(ctx, params)
}
