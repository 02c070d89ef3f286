package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/swncrew-core/internal/infrastructure/config"
)

// testConfig targets a local Mosquitto broker; tests that need it skip
// when nothing is listening.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "swncrew-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func requireBroker(t *testing.T) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", "127.0.0.1:1883", 200*time.Millisecond)
	if err != nil {
		t.Skip("MQTT broker not available at 127.0.0.1:1883")
	}
	conn.Close()
}

// ─── Broker-free ────────────────────────────────────────────────────

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		got  string
		want string
	}{
		{topics.Command("gpio", "valve-1"), "swncrew/command/gpio/valve-1"},
		{topics.State("gpio", "flowmeter-0"), "swncrew/state/gpio/flowmeter-0"},
		{topics.AllStates("gpio"), "swncrew/state/gpio/+"},
		{topics.MissionCompleted(), "swncrew/core/mission/completed"},
		{topics.ClassifierResult(), "swncrew/classifier/result"},
		{topics.SystemStatus(), "swncrew/system/status"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.got)
	}
}

func TestStatusPayload(t *testing.T) {
	var msg statusMessage
	require.NoError(t, json.Unmarshal([]byte(statusPayload("core-1", "offline", "graceful_shutdown")), &msg))

	assert.Equal(t, "offline", msg.Status)
	assert.Equal(t, "core-1", msg.ClientID)
	assert.Equal(t, "graceful_shutdown", msg.Reason)
	_, err := time.Parse(time.RFC3339, msg.Timestamp)
	assert.NoError(t, err)
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Auth.Username = "rig"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)

	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "ssl://127.0.0.1:1883", opts.Servers[0].String())
	assert.Equal(t, "swncrew-test", opts.ClientID)
	assert.Equal(t, "rig", opts.Username)
	assert.True(t, opts.WillEnabled)
	assert.Equal(t, "swncrew/system/status", opts.WillTopic)
	assert.True(t, opts.WillRetained)
	assert.NotNil(t, opts.TLSConfig)
}

func TestDisconnectedClientRejectsOperations(t *testing.T) {
	c := newClient(testConfig())
	handler := func(string, []byte) error { return nil }

	assert.False(t, c.IsConnected())
	assert.ErrorIs(t, c.HealthCheck(context.Background()), ErrNotConnected)
	assert.ErrorIs(t, c.Publish("swncrew/x", nil, 1, false), ErrNotConnected)
	assert.ErrorIs(t, c.Subscribe("swncrew/x", 1, handler), ErrNotConnected)
	assert.ErrorIs(t, c.Unsubscribe("swncrew/x"), ErrNotConnected)
	assert.Equal(t, 0, c.SubscriptionCount())
}

func TestInputValidation(t *testing.T) {
	c := newClient(testConfig())
	handler := func(string, []byte) error { return nil }

	assert.ErrorIs(t, c.Publish("", []byte("x"), 1, false), ErrInvalidTopic)
	assert.ErrorIs(t, c.Publish("t", []byte("x"), 3, false), ErrInvalidQoS)
	assert.ErrorIs(t, c.Publish("t", make([]byte, maxPayloadSize+1), 1, false), ErrPublishFailed)
	assert.ErrorIs(t, c.Subscribe("", 1, handler), ErrInvalidTopic)
	assert.ErrorIs(t, c.Subscribe("t", 3, handler), ErrInvalidQoS)
	assert.ErrorIs(t, c.Subscribe("t", 1, nil), ErrSubscribeFailed)
	assert.ErrorIs(t, c.Unsubscribe(""), ErrInvalidTopic)
	assert.ErrorIs(t, c.PublishJSON("t", make(chan int), false), ErrPublishFailed)
}

func TestHealthCheckCancelled(t *testing.T) {
	c := newClient(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, c.HealthCheck(ctx), context.Canceled)
}

func TestCloseNil(t *testing.T) {
	var c *Client
	assert.NoError(t, c.Close())
}

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

type fakeMessage struct {
	pahomqtt.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

func TestWrapHandler(t *testing.T) {
	c := newClient(testConfig())
	logger := &recordingLogger{}
	c.SetLogger(logger)
	msg := fakeMessage{topic: "swncrew/state/gpio/flowmeter-0", payload: []byte(`{}`)}

	var got string
	c.wrapHandler(func(topic string, _ []byte) error {
		got = topic
		return nil
	})(nil, msg)
	assert.Equal(t, msg.topic, got)

	c.wrapHandler(func(string, []byte) error { return errors.New("bad payload") })(nil, msg)
	c.wrapHandler(func(string, []byte) error { panic("boom") })(nil, msg)

	assert.Equal(t, []string{"MQTT handler returned error"}, logger.warns)
	assert.Equal(t, []string{"MQTT handler panic recovered"}, logger.errors)
}

// ─── Broker ─────────────────────────────────────────────────────────

func TestConnectInvalidBroker(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 19999

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := Connect(ctx, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionFailed)
}

func TestPublishSubscribeRoundtrip(t *testing.T) {
	requireBroker(t)

	cfg := testConfig()
	cfg.Broker.ClientID = "swncrew-test-roundtrip"
	client, err := Connect(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()

	received := make(chan []byte, 1)
	topic := Topics{}.State("test", "flowmeter-roundtrip")
	require.NoError(t, client.Subscribe(topic, 1, func(_ string, payload []byte) error {
		received <- payload
		return nil
	}))
	assert.Equal(t, 1, client.SubscriptionCount())

	require.NoError(t, client.PublishJSON(topic, map[string]float64{"flow_rate": 2.5}, false))

	select {
	case payload := <-received:
		assert.JSONEq(t, `{"flow_rate":2.5}`, string(payload))
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	require.NoError(t, client.Unsubscribe(topic))
	assert.Equal(t, 0, client.SubscriptionCount())
}
