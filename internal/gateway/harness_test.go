package gateway

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/obsgate/internal/auth"
	"github.com/nerrad567/obsgate/internal/device"
	"github.com/nerrad567/obsgate/internal/process"
	"github.com/nerrad567/obsgate/internal/reactor"
	"github.com/nerrad567/obsgate/internal/rpc"
)

var epoch = time.Date(2026, 10, 18, 21, 0, 0, 0, time.UTC)

var observer = rpc.Credentials{User: "observer", Secret: "s3cret"}

// ─── Fakes ──────────────────────────────────────────────────────────────────

// fakeVerifier accepts a fixed set of passwords.
type fakeVerifier map[string]string

func (f fakeVerifier) Verify(_ context.Context, username, secret string) (bool, error) {
	want, ok := f[username]
	return ok && want == secret, nil
}

// fakeSender records commands handed to the device network.
type fakeSender struct {
	mu   sync.Mutex
	sent map[string][]device.Command
}

func (f *fakeSender) Send(dev string, cmd device.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sent == nil {
		f.sent = make(map[string][]device.Command)
	}
	f.sent[dev] = append(f.sent[dev], cmd)
	return nil
}

func (f *fakeSender) texts(dev string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent[dev] {
		out = append(out, c.Text)
	}
	return out
}

func (f *fakeSender) last(dev string) (device.Command, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmds := f.sent[dev]
	if len(cmds) == 0 {
		return device.Command{}, false
	}
	return cmds[len(cmds)-1], true
}

// fakeSpawner records specs instead of running programs.
type fakeSpawner struct {
	mu    sync.Mutex
	specs []process.Spec
}

func (f *fakeSpawner) Spawn(spec process.Spec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.specs = append(f.specs, spec)
	return nil
}

func (f *fakeSpawner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.specs)
}

// fakeBroadcaster captures pushed payloads per channel.
type fakeBroadcaster struct {
	mu       sync.Mutex
	payloads map[string][]any
}

func (f *fakeBroadcaster) Broadcast(channel string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.payloads == nil {
		f.payloads = make(map[string][]any)
	}
	f.payloads[channel] = append(f.payloads[channel], payload)
}

func (f *fakeBroadcaster) on(channel string) []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.payloads[channel]...)
}

// ─── Harness ────────────────────────────────────────────────────────────────

type harness struct {
	clock     *reactor.ManualClock
	loop      *reactor.Reactor
	gw        *Gateway
	sender    *fakeSender
	spawner   *fakeSpawner
	broadcast *fakeBroadcaster
	rulesPath string
	running   bool
}

// newHarness builds a gateway on a manual clock. rules, if non-empty, is
// written to the rule file. The reactor runs on its own goroutine only
// when running is set; otherwise the test drives it with Drain.
func newHarness(t *testing.T, rules string, running bool) *harness {
	t.Helper()

	h := &harness{
		clock:     reactor.NewManualClock(epoch),
		sender:    &fakeSender{},
		spawner:   &fakeSpawner{},
		broadcast: &fakeBroadcaster{},
		rulesPath: filepath.Join(t.TempDir(), "triggers.yaml"),
		running:   running,
	}
	h.loop = reactor.New(h.clock)
	if rules != "" {
		h.writeRules(t, rules)
	}

	sessions := auth.NewSessionManager("test-secret", time.Hour, h.clock.Now)
	svc := auth.NewService(fakeVerifier{"observer": "s3cret"}, sessions, h.loop)

	gw, err := New(Config{RulesPath: h.rulesPath, Notifications: true}, Deps{
		Loop:        h.loop,
		Auth:        svc,
		Spawner:     h.spawner,
		Broadcaster: h.broadcast,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h.gw = gw

	if running {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = h.loop.Run(ctx)
		}()
		t.Cleanup(func() {
			cancel()
			<-done
		})
	}
	return h
}

func (h *harness) writeRules(t *testing.T, rules string) {
	t.Helper()
	if err := os.WriteFile(h.rulesPath, []byte(rules), 0o600); err != nil {
		t.Fatalf("writing rules: %v", err)
	}
}

// do runs fn on the reactor and waits for it. Without a loop goroutine the
// test goroutine stands in for the reactor.
func (h *harness) do(t *testing.T, fn func()) {
	t.Helper()
	if !h.running {
		fn()
		h.loop.Drain()
		return
	}
	if err := h.loop.Do(context.Background(), fn); err != nil {
		t.Fatalf("loop.Do() error = %v", err)
	}
}

// addDevice registers a device with the given values on the reactor.
func (h *harness) addDevice(t *testing.T, name, typ string, values ...*device.TypedValue) {
	t.Helper()
	h.do(t, func() {
		c := device.NewConnection(name, typ, h.sender)
		for _, v := range values {
			if _, err := c.UpdateValue(v); err != nil {
				t.Errorf("UpdateValue(%s) error = %v", v.Name(), err)
			}
		}
		if err := h.gw.Registry().Add(c); err != nil {
			t.Errorf("Add(%s) error = %v", name, err)
			return
		}
		h.gw.DeviceAdded(c)
	})
}

// push delivers a confirmed value update from a device.
func (h *harness) push(t *testing.T, dev string, v *device.TypedValue) {
	t.Helper()
	h.do(t, func() {
		c, err := h.gw.Registry().Get(dev)
		if err != nil {
			t.Errorf("Get(%s) error = %v", dev, err)
			return
		}
		prev, err := c.UpdateValue(v)
		if err != nil {
			t.Errorf("UpdateValue() error = %v", err)
			return
		}
		h.gw.ValueChanged(c, prev, v)
	})
}

func (h *harness) call(method string, creds rpc.Credentials, params ...rpc.Value) (rpc.Value, *rpc.Fault) {
	return h.gw.Dispatcher().Call(context.Background(), method, creds, rpc.Params(params))
}

func double(t *testing.T, name string, f float64) *device.TypedValue {
	t.Helper()
	return mustValue(t, name, device.TypeDouble, device.FloatPayload(f))
}

func integer(t *testing.T, name string, n int64) *device.TypedValue {
	t.Helper()
	return mustValue(t, name, device.TypeInteger, device.IntPayload(n))
}
