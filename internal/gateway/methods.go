package gateway

import (
	"context"
	"fmt"

	"github.com/nerrad567/obsgate/internal/device"
	"github.com/nerrad567/obsgate/internal/message"
	"github.com/nerrad567/obsgate/internal/rpc"
)

// RPC method names.
const (
	MethodLogin            = "Login"
	MethodDeviceCount      = "DeviceCount"
	MethodListDevices      = "ListDevices"
	MethodDeviceType       = "DeviceType"
	MethodDeviceCommand    = "DeviceCommand"
	MethodDevicesStatus    = "DevicesStatus"
	MethodListValues       = "ListValues"
	MethodListValuesDevice = "ListValuesDevice"
	MethodGetValue         = "GetValue"
	MethodSetValue         = "SetValue"
	MethodSetValueByType   = "SetValueByType"
	MethodIncValue         = "IncValue"
	MethodGetMessages      = "GetMessages"
	MethodReloadTriggers   = "ReloadTriggers"
)

func (g *Gateway) registerMethods() error {
	methods := []rpc.Method{
		{Name: MethodLogin, Direct: true, Handler: g.login},
		{Name: MethodDeviceCount, RequireAuth: true, Handler: g.deviceCount},
		{Name: MethodListDevices, RequireAuth: true, Handler: g.listDevices},
		{Name: MethodDeviceType, RequireAuth: true, Handler: g.deviceType},
		{Name: MethodDeviceCommand, RequireAuth: true, Handler: g.deviceCommand},
		{Name: MethodDevicesStatus, RequireAuth: true, Handler: g.devicesStatus},
		{Name: MethodListValues, RequireAuth: true, Handler: g.listValues},
		{Name: MethodListValuesDevice, RequireAuth: true, Handler: g.listValuesDevice},
		{Name: MethodGetValue, RequireAuth: true, Handler: g.getValue},
		{Name: MethodSetValue, RequireAuth: true, Handler: g.setValue},
		{Name: MethodSetValueByType, RequireAuth: true, Handler: g.setValueByType},
		{Name: MethodIncValue, RequireAuth: true, Handler: g.incValue},
		{Name: MethodGetMessages, RequireAuth: true, Handler: g.getMessages},
		{Name: MethodReloadTriggers, RequireAuth: true, Direct: true, Handler: g.reloadTriggers},
	}
	for _, m := range methods {
		if err := g.dispatcher.Register(m); err != nil {
			return fmt.Errorf("registering %s: %w", m.Name, err)
		}
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func (g *Gateway) connection(name string) (*device.Connection, error) {
	c, err := g.registry.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", rpc.ErrNotFound, err)
	}
	return c, nil
}

func (g *Gateway) value(c *device.Connection, name string) (*device.TypedValue, error) {
	v, err := c.Value(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", rpc.ErrNotFound, err)
	}
	return v, nil
}

// queue sends text to c. A later rejection by the device is reported as a
// message, since the call that issued it has already returned.
func (g *Gateway) queue(c *device.Connection, text string, raw bool) error {
	name := c.Name()
	done := func(err error) {
		if err != nil {
			g.messages.Add(message.SeverityError, name, fmt.Sprintf("command %q failed: %v", text, err))
		}
	}
	if err := c.Queue(text, raw, done); err != nil {
		return fmt.Errorf("%w: %w", rpc.ErrDeviceCommandFailure, err)
	}
	return nil
}

func qualifiedNames(conns []*device.Connection, keep func(*device.Connection) bool) rpc.Array {
	out := rpc.Array{}
	for _, c := range conns {
		if keep != nil && !keep(c) {
			continue
		}
		for _, v := range c.Values() {
			out = append(out, rpc.String(c.Name()+"."+v.Name()))
		}
	}
	return out
}

// ─── Handlers ───────────────────────────────────────────────────────────────

// login runs on the caller's goroutine: password hashing must not stall the reactor.
func (g *Gateway) login(ctx context.Context, p rpc.Params) (rpc.Value, error) {
	if err := p.Expect(2); err != nil {
		return nil, err
	}
	args, err := p.Strings()
	if err != nil {
		return nil, err
	}
	token, err := g.auth.Login(ctx, args[0], args[1])
	if err != nil {
		return nil, fmt.Errorf("%w: login for %q: %w", rpc.ErrAuthenticationFailure, args[0], err)
	}
	return rpc.String(token), nil
}

func (g *Gateway) deviceCount(_ context.Context, _ rpc.Params) (rpc.Value, error) {
	return rpc.Int(g.registry.Count()), nil
}

func (g *Gateway) listDevices(_ context.Context, _ rpc.Params) (rpc.Value, error) {
	devices := g.registry.Devices()
	names := make([]string, len(devices))
	for i, c := range devices {
		names[i] = c.Name()
	}
	return rpc.Strings(names), nil
}

func (g *Gateway) deviceType(_ context.Context, p rpc.Params) (rpc.Value, error) {
	if err := p.Expect(1); err != nil {
		return nil, err
	}
	name, err := p.String(0)
	if err != nil {
		return nil, err
	}
	c, err := g.connection(name)
	if err != nil {
		return nil, err
	}
	return rpc.String(c.Type()), nil
}

func (g *Gateway) deviceCommand(_ context.Context, p rpc.Params) (rpc.Value, error) {
	if err := p.Expect(2); err != nil {
		return nil, err
	}
	args, err := p.Strings()
	if err != nil {
		return nil, err
	}
	c, err := g.connection(args[0])
	if err != nil {
		return nil, err
	}
	return nil, g.queue(c, args[1], false)
}

// devicesStatus returns (state text, state bits). An empty name or the
// coordinator's name selects the coordinator.
func (g *Gateway) devicesStatus(_ context.Context, p rpc.Params) (rpc.Value, error) {
	if err := p.Expect(1); err != nil {
		return nil, err
	}
	name, err := p.String(0)
	if err != nil {
		return nil, err
	}

	var c *device.Connection
	if name == "" || name == device.CoordinatorName {
		c, err = g.registry.Coordinator()
		if err != nil {
			err = fmt.Errorf("%w: %w", rpc.ErrNotFound, err)
		}
	} else {
		c, err = g.connection(name)
	}
	if err != nil {
		return nil, err
	}

	st := c.State()
	return rpc.Array{rpc.String(st.Text), rpc.Int(st.Bits)}, nil
}

func (g *Gateway) listValues(_ context.Context, _ rpc.Params) (rpc.Value, error) {
	return qualifiedNames(g.registry.All(), nil), nil
}

// listValuesDevice describes every value of one device, or with any other
// number of names lists "device.value" for the named devices.
func (g *Gateway) listValuesDevice(_ context.Context, p rpc.Params) (rpc.Value, error) {
	names, err := p.Strings()
	if err != nil {
		return nil, err
	}

	if len(names) != 1 {
		wanted := make(map[string]bool, len(names))
		for _, n := range names {
			wanted[n] = true
		}
		return qualifiedNames(g.registry.All(), func(c *device.Connection) bool { return wanted[c.Name()] }), nil
	}

	c, err := g.connection(names[0])
	if err != nil {
		return nil, err
	}
	out := rpc.Array{}
	for _, v := range c.Values() {
		out = append(out, rpc.Struct{
			"name":  rpc.String(v.Name()),
			"flags": rpc.Int(v.Flags()),
			"value": EncodeValue(v),
		})
	}
	return out, nil
}

func (g *Gateway) getValue(_ context.Context, p rpc.Params) (rpc.Value, error) {
	if err := p.Expect(2); err != nil {
		return nil, err
	}
	args, err := p.Strings()
	if err != nil {
		return nil, err
	}
	c, err := g.connection(args[0])
	if err != nil {
		return nil, err
	}
	v, err := g.value(c, args[1])
	if err != nil {
		return nil, err
	}
	return EncodeValue(v), nil
}

// valueArgs unpacks (target, value name, new value).
func valueArgs(p rpc.Params) (target, name string, external rpc.Value, err error) {
	if err = p.Expect(3); err != nil {
		return "", "", nil, err
	}
	if target, err = p.String(0); err != nil {
		return "", "", nil, err
	}
	if name, err = p.String(1); err != nil {
		return "", "", nil, err
	}
	external, err = p.Value(2)
	return target, name, external, err
}

// change queues a value command on one device. The snapshot is left alone
// until the device pushes the new value back.
func (g *Gateway) change(deviceName, valueName, op string, external rpc.Value) error {
	c, err := g.connection(deviceName)
	if err != nil {
		return err
	}
	v, err := g.value(c, valueName)
	if err != nil {
		return err
	}
	text, raw, err := valueCommand(v, op, external)
	if err != nil {
		return err
	}
	return g.queue(c, text, raw)
}

func (g *Gateway) setValue(_ context.Context, p rpc.Params) (rpc.Value, error) {
	dev, name, external, err := valueArgs(p)
	if err != nil {
		return nil, err
	}
	return nil, g.change(dev, name, opSet, external)
}

func (g *Gateway) incValue(_ context.Context, p rpc.Params) (rpc.Value, error) {
	dev, name, external, err := valueArgs(p)
	if err != nil {
		return nil, err
	}
	return nil, g.change(dev, name, opIncrement, external)
}

// setValueByType sets the value on every device of a type. All targets are
// checked before any command is queued.
func (g *Gateway) setValueByType(_ context.Context, p rpc.Params) (rpc.Value, error) {
	tag, name, external, err := valueArgs(p)
	if err != nil {
		return nil, err
	}
	conns := g.registry.ByType(tag)
	if len(conns) == 0 {
		return nil, fmt.Errorf("%w: no device of type %q", rpc.ErrNotFound, tag)
	}

	type pending struct {
		conn *device.Connection
		text string
		raw  bool
	}
	work := make([]pending, 0, len(conns))
	for _, c := range conns {
		v, err := g.value(c, name)
		if err != nil {
			return nil, err
		}
		text, raw, err := valueCommand(v, opSet, external)
		if err != nil {
			return nil, err
		}
		work = append(work, pending{conn: c, text: text, raw: raw})
	}
	for _, w := range work {
		if err := g.queue(w.conn, w.text, w.raw); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (g *Gateway) getMessages(_ context.Context, _ rpc.Params) (rpc.Value, error) {
	msgs := g.messages.All()
	out := make(rpc.Array, len(msgs))
	for i, m := range msgs {
		// "message" mirrors "text" for older clients.
		out[i] = rpc.Struct{
			"type":      rpc.String(m.Severity),
			"origin":    rpc.String(m.Origin),
			"timestamp": rpc.Timestamp(m.Timestamp),
			"text":      rpc.String(m.Text),
			"message":   rpc.String(m.Text),
		}
	}
	return out, nil
}

// reloadTriggers is direct because ReloadTriggers hands itself to the reactor.
func (g *Gateway) reloadTriggers(ctx context.Context, _ rpc.Params) (rpc.Value, error) {
	n, err := g.ReloadTriggers(ctx)
	if err != nil {
		return nil, fmt.Errorf("reloading triggers: %w", err)
	}
	return rpc.Int(n), nil
}
