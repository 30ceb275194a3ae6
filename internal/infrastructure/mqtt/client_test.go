package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/obsgate/internal/infrastructure/config"
)

const testBrokerAddr = "127.0.0.1:1883"

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "obsgate-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// connectOrSkip connects to a local broker, skipping the test when none listens.
func connectOrSkip(t *testing.T, clientID string) *Client {
	t.Helper()
	conn, err := net.DialTimeout("tcp", testBrokerAddr, 200*time.Millisecond)
	if err != nil {
		t.Skipf("no MQTT broker at %s", testBrokerAddr)
	}
	conn.Close()

	cfg := testConfig()
	cfg.Broker.ClientID = clientID
	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
	errs  []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(string, ...any)  {}
func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}
func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errs = append(l.errs, msg)
	l.mu.Unlock()
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

// ─── Options ────────────────────────────────────────────────────────────────

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "gw", Password: "pw"}

	opts := buildClientOptions(cfg)
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.ClientID != "obsgate-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "gw" || opts.Password != "pw" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if !opts.CleanSession || !opts.AutoReconnect {
		t.Error("expected clean session with auto-reconnect")
	}
	if opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("MaxReconnectInterval = %v", opts.MaxReconnectInterval)
	}
	if opts.TLSConfig != nil {
		t.Error("TLS configured for plain broker")
	}

	cfg.Broker.TLS = true
	opts = buildClientOptions(cfg)
	if opts.Servers[0].Scheme != "ssl" {
		t.Errorf("scheme = %q, want ssl", opts.Servers[0].Scheme)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS config missing or below minimum version")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, "obsgate-test")

	if !opts.WillEnabled || !opts.WillRetained || opts.WillQos != 1 {
		t.Errorf("will enabled=%v retained=%v qos=%d", opts.WillEnabled, opts.WillRetained, opts.WillQos)
	}
	if want := (Topics{}).GatewayStatus(); opts.WillTopic != want {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}

	var st Status
	if err := json.Unmarshal(opts.WillPayload, &st); err != nil {
		t.Fatalf("will payload is not JSON: %v", err)
	}
	if st.Status != statusOffline || st.Reason != reasonDisconnect || st.ClientID != "obsgate-test" {
		t.Errorf("will = %+v", st)
	}
}

func TestStatusPayload_OmitsEmptyReason(t *testing.T) {
	var m map[string]any
	if err := json.Unmarshal(statusPayload("gw", statusOnline, ""), &m); err != nil {
		t.Fatal(err)
	}
	if _, ok := m["reason"]; ok {
		t.Errorf("online payload carries reason: %v", m)
	}
	if m["status"] != "online" {
		t.Errorf("status = %v", m["status"])
	}
}

// ─── Offline Client ─────────────────────────────────────────────────────────

func TestClient_ValidationWithoutConnection(t *testing.T) {
	c := &Client{}
	handler := func(string, []byte) error { return nil }

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"publish empty topic", c.Publish("", nil, 0, false), ErrInvalidTopic},
		{"publish bad qos", c.Publish("t", nil, 3, false), ErrInvalidQoS},
		{"publish too large", c.Publish("t", make([]byte, maxPayloadSize+1), 0, false), ErrPublishFailed},
		{"publish disconnected", c.Publish("t", []byte("x"), 1, false), ErrNotConnected},
		{"subscribe empty topic", c.Subscribe("", 0, handler), ErrInvalidTopic},
		{"subscribe bad qos", c.Subscribe("t", 9, handler), ErrInvalidQoS},
		{"subscribe nil handler", c.Subscribe("t", 0, nil), ErrSubscribeFailed},
		{"subscribe disconnected", c.Subscribe("t", 0, handler), ErrNotConnected},
		{"unsubscribe empty topic", c.Unsubscribe(""), ErrInvalidTopic},
		{"unsubscribe disconnected", c.Unsubscribe("t"), ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Errorf("error = %v, want %v", tt.err, tt.want)
			}
		})
	}

	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after failed subscribes", c.SubscriptionCount())
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client = %v", err)
	}
}

func TestClient_HealthCheckCancelled(t *testing.T) {
	c := &Client{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() = %v, want context.Canceled", err)
	}
}

func TestWrapHandler_LogsErrorsAndRecoversPanics(t *testing.T) {
	logger := &recordingLogger{}
	c := &Client{}
	c.SetLogger(logger)

	failing := c.wrapHandler(func(string, []byte) error { return errors.New("bad payload") })
	failing(nil, fakeMessage{topic: "obsgate/devices/ccd0/value"})

	panicking := c.wrapHandler(func(string, []byte) error { panic("boom") })
	panicking(nil, fakeMessage{topic: "obsgate/devices/ccd0/value"})

	var got []byte
	ok := c.wrapHandler(func(_ string, payload []byte) error {
		got = payload
		return nil
	})
	ok(nil, fakeMessage{topic: "t", payload: []byte("hi")})

	if len(logger.warns) != 1 || len(logger.errs) != 1 {
		t.Errorf("warns = %v, errs = %v", logger.warns, logger.errs)
	}
	if string(got) != "hi" {
		t.Errorf("payload = %q", got)
	}
	st := c.Stats()
	if st.Received != 3 || st.HandlerFailures != 2 {
		t.Errorf("Stats() = %+v, want 3 received and 2 failures", st)
	}
}

func TestSubscriptionTable_ZeroValueAndOrder(t *testing.T) {
	var table subscriptionTable
	if table.has("a") || table.len() != 0 {
		t.Fatal("zero table should be empty")
	}
	for _, topic := range []string{"c/#", "a/+", "b"} {
		table.put(subscription{topic: topic, qos: 1})
	}
	table.put(subscription{topic: "b", qos: 2})
	table.drop("missing")

	all := table.all()
	if len(all) != 3 || all[0].topic != "a/+" || all[1].topic != "b" || all[2].topic != "c/#" {
		t.Fatalf("all() = %+v", all)
	}
	if all[1].qos != 2 {
		t.Errorf("re-put did not replace b: qos = %d", all[1].qos)
	}
}

func TestStats_Disconnected(t *testing.T) {
	c := &Client{}
	c.connects.Add(3)
	st := c.Stats()
	if st.Connected || !st.ConnectedSince.IsZero() {
		t.Errorf("unconnected client reports %+v", st)
	}
	if st.Reconnects != 2 {
		t.Errorf("Reconnects = %d, want 2", st.Reconnects)
	}
}

// ─── Broker ─────────────────────────────────────────────────────────────────

func TestConnect_BrokerRefused(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 19999
	if _, err := Connect(cfg); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestBroker_PublishSubscribeRoundTrip(t *testing.T) {
	client := connectOrSkip(t, "obsgate-test-roundtrip")

	received := make(chan string, 1)
	err := client.Subscribe(Topics{}.AllDeviceEvents(), 1, func(topic string, payload []byte) error {
		name, kind, ok := ParseDeviceTopic(topic)
		if ok && name == "rt-ccd" && kind == KindValue {
			received <- string(payload)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !client.HasSubscription(Topics{}.AllDeviceEvents()) {
		t.Error("subscription not tracked")
	}
	if st := client.Stats(); !st.Connected || st.ConnectedSince.IsZero() || st.Subscriptions != 1 {
		t.Errorf("Stats() = %+v", st)
	}

	if err := client.Publish(Topics{}.Device("rt-ccd", KindValue), []byte(`{"name":"exposure"}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-received:
		if got != `{"name":"exposure"}` {
			t.Errorf("payload = %q", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("message not received")
	}

	if err := client.Unsubscribe(Topics{}.AllDeviceEvents()); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
	if client.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", client.SubscriptionCount())
	}
}

func TestBroker_CloseDisconnects(t *testing.T) {
	client := connectOrSkip(t, "obsgate-test-close")
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
	if err := client.Publish("t", nil, 0, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() after Close = %v, want ErrNotConnected", err)
	}
}
